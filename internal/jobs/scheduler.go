package jobs

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"AcadFinAudit/internal/config"
	"AcadFinAudit/internal/logger"
	"AcadFinAudit/internal/serviceiface"
	"AcadFinAudit/internal/session"

	"github.com/robfig/cron/v3"
)

// CronService runs the housekeeping jobs: expired-session sweep and
// export-directory retention.
type CronService struct {
	cfg  map[string]interface{}
	cron *cron.Cron
}

func NewCronService(cfg map[string]interface{}) serviceiface.Service {
	return &CronService{cfg: cfg}
}

func (s *CronService) Name() string {
	return "jobs"
}

func (s *CronService) Start() error {
	loc, err := time.LoadLocation(config.DefaultTimeZone)
	if err != nil {
		loc = time.UTC
	}
	s.cron = cron.New(cron.WithLocation(loc))

	sweepSchedule := config.DefaultSessionSweepSchedule
	if v, ok := s.cfg["session_sweep_schedule"].(string); ok && v != "" {
		sweepSchedule = v
	}
	if _, err := s.cron.AddFunc(sweepSchedule, runSessionSweep); err != nil {
		return fmt.Errorf("failed to schedule session sweep: %w", err)
	}

	exportDir, _ := s.cfg["export_dir"].(string)
	retentionDays := config.DefaultExportRetentionDays
	if v, ok := s.cfg["export_retention_days"].(int); ok && v > 0 {
		retentionDays = v
	}
	if exportDir != "" {
		_, err := s.cron.AddFunc("30 3 * * *", func() {
			runExportRetention(exportDir, retentionDays)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule export retention: %w", err)
		}
	}

	s.cron.Start()
	logger.Audit("Cron service started: session sweep + export retention")
	return nil
}

func (s *CronService) Stop() error {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	log.Println("Cron service stopped.")
	return nil
}

func runSessionSweep() {
	counts := session.SweepAll()
	total := 0
	for _, n := range counts {
		total += n
	}
	if total > 0 {
		logger.Audit(fmt.Sprintf("Session sweep dropped %d idle sessions (%v)", total, counts))
	}
}

// runExportRetention deletes exported result files older than the
// retention window. Only files with the known export extensions are
// touched.
func runExportRetention(dir string, days int) {
	cutoff := time.Now().AddDate(0, 0, -days)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".csv" && ext != ".xlsx" {
			continue
		}
		full := filepath.Join(dir, e.Name())
		info, err := os.Stat(full)
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if os.Remove(full) == nil {
			removed++
		}
	}
	if removed > 0 {
		logger.Audit(fmt.Sprintf("Export retention removed %d stale files from %s", removed, dir))
	}
}
