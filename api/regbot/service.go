package regbot

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
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

// exchange is one question/answer turn kept as chat context.
type exchange struct {
	Question string
	Answer   string
}

// RegbotService answers finance-regulation questions over the ingested
// document corpus. Chat transcripts are persisted for later review;
// conversational context lives in memory per session.
type RegbotService struct {
	config   map[string]interface{}
	db       *sql.DB
	store    *regstore.Store
	llm      *llm.Client
	sessions *session.Manager

	mu        sync.Mutex
	histories map[string][]exchange

	topK      int
	chunkSize int
	overlap   int

	srv *http.Server
}

func NewRegbotService(cfg map[string]interface{}, db *sql.DB, pgxPool *pgxpool.Pool) serviceiface.Service {
	topK := config.DefaultTopK
	if v, ok := cfg["top_k"].(int); ok && v > 0 {
		topK = v
	}
	chunkSize := config.DefaultChunkSize
	if v, ok := cfg["chunk_size"].(int); ok && v > 0 {
		chunkSize = v
	}
	overlap := config.DefaultChunkOverlap
	if v, ok := cfg["chunk_overlap"].(int); ok && v >= 0 {
		overlap = v
	}

	svc := &RegbotService{
		config:    cfg,
		db:        db,
		store:     regstore.NewStore(pgxPool),
		llm:       llm.NewClientFromEnv(),
		sessions:  session.NewManager("regbot", config.DefaultSessionTTL),
		histories: make(map[string][]exchange),
		topK:      topK,
		chunkSize: chunkSize,
		overlap:   overlap,
	}
	svc.sessions.OnEvict(func(id string) {
		svc.mu.Lock()
		delete(svc.histories, id)
		svc.mu.Unlock()
	})
	return svc
}

func (s *RegbotService) Name() string {
	return "regbot"
}

func (s *RegbotService) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("regulation store schema: %w", err)
	}
	if err := s.ensureTranscriptTable(ctx); err != nil {
		return fmt.Errorf("transcript schema: %w", err)
	}

	port := 6443
	if v, ok := s.config["port"].(int); ok && v > 0 {
		port = v
	}
	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.routes(),
	}
	go func() {
		logger.Audit(fmt.Sprintf("[Regbot] service listening on :%d", port))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Audit("[Regbot][ERROR] server failed: " + err.Error())
		}
	}()
	return nil
}

func (s *RegbotService) Stop() error {
	if s.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(ctx)
	}
	return nil
}

func (s *RegbotService) ensureTranscriptTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS chat_transcripts (
			id          BIGSERIAL PRIMARY KEY,
			session_id  TEXT NOT NULL,
			question    TEXT NOT NULL,
			answer      TEXT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	return err
}

// logTranscript records one chat turn. Persistence failures are logged
// and never surfaced to the user.
func (s *RegbotService) logTranscript(ctx context.Context, sessionID, question, answer string) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_transcripts (session_id, question, answer) VALUES ($1, $2, $3)`,
		sessionID, question, answer)
	if err != nil {
		logger.Audit("[Regbot][ERROR] transcript insert failed: " + err.Error())
	}
}

// history returns a copy of the session's chat context.
func (s *RegbotService) history(sessionID string) []exchange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]exchange(nil), s.histories[sessionID]...)
}

func (s *RegbotService) appendHistory(sessionID string, ex exchange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories[sessionID] = append(s.histories[sessionID], ex)
}
