package audit

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"AcadFinAudit/internal/config"
	"AcadFinAudit/internal/llm"
	"AcadFinAudit/internal/logger"
	"AcadFinAudit/internal/regstore"
	"AcadFinAudit/internal/serviceiface"
	"AcadFinAudit/internal/session"
)

// analysis is the per-session pipeline state. The uploaded table is
// immutable; the working table only differs when the document-prefix
// filter dropped rows at run time.
type analysis struct {
	mu           sync.Mutex
	FileName     string
	Source       *Table
	Working      *Table
	Excluded     int
	Mapping      FieldMapping
	frozen       bool
	Flags        *FlagTable
	Selection    []int
	Verdicts     map[int]*Verdict
	validating   bool
	progressDone int
}

// AuditService runs the expense-anomaly pipeline: upload, column
// mapping, rule evaluation, external validation and export.
type AuditService struct {
	config    map[string]interface{}
	sessions  *session.Manager
	validator *Validator
	hub       *streamHub
	rng       *rand.Rand

	mu       sync.Mutex
	analyses map[string]*analysis

	maxSamples int
	exportDir  string
	s3Bucket   string
	s3Region   string

	srv    *http.Server
	cancel context.CancelFunc
	ctx    context.Context
}

func NewAuditService(cfg map[string]interface{}, pgxPool *pgxpool.Pool) serviceiface.Service {
	maxSamples := config.DefaultMaxSamples
	if v, ok := cfg["max_samples"].(int); ok && v > 0 {
		maxSamples = v
	}
	exportDir := "./exports"
	if v, ok := cfg["export_dir"].(string); ok && v != "" {
		exportDir = v
	}
	topK := config.DefaultTopK
	if v, ok := cfg["top_k"].(int); ok && v > 0 {
		topK = v
	}
	s3Bucket, _ := cfg["s3_bucket"].(string)
	s3Region, _ := cfg["s3_region"].(string)

	svc := &AuditService{
		config:   cfg,
		sessions: session.NewManager("audit", config.DefaultSessionTTL),
		validator: &Validator{
			LLM:   llm.NewClientFromEnv(),
			Store: regstore.NewStore(pgxPool),
			TopK:  topK,
		},
		hub:        newStreamHub(),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		analyses:   make(map[string]*analysis),
		maxSamples: maxSamples,
		exportDir:  exportDir,
		s3Bucket:   s3Bucket,
		s3Region:   s3Region,
	}
	svc.sessions.OnEvict(func(id string) {
		svc.mu.Lock()
		delete(svc.analyses, id)
		svc.mu.Unlock()
	})
	return svc
}

func (s *AuditService) Name() string {
	return "audit"
}

func (s *AuditService) Start() error {
	port := 6343
	if v, ok := s.config["port"].(int); ok && v > 0 {
		port = v
	}
	if err := os.MkdirAll(s.exportDir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.routes(),
	}
	go func() {
		logger.Audit(fmt.Sprintf("[Audit] service listening on :%d", port))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Audit("[Audit][ERROR] server failed: " + err.Error())
		}
	}()
	return nil
}

func (s *AuditService) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.hub.closeAll()
	if s.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(ctx)
	}
	return nil
}

// lookup returns the analysis for a live session, touching its TTL.
func (s *AuditService) lookup(sessionID string) (*analysis, bool) {
	if sessionID == "" || !s.sessions.Touch(sessionID) {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.analyses[sessionID]
	return a, ok
}
