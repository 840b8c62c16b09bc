package regstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store keeps regulation document chunks and their embeddings in
// Postgres. Similarity search fetches candidate chunks and ranks them
// by cosine similarity in-process; the corpus is a few thousand chunks
// at most, so no index extension is needed.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

type Chunk struct {
	ChunkID   string
	DocID     string
	FileName  string
	Seq       int
	Content   string
	Embedding []float64
}

// SearchResult is one retrieved chunk with its similarity score.
type SearchResult struct {
	Chunk
	Score float64
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS regulation_documents (
			doc_id       uuid PRIMARY KEY,
			file_name    text NOT NULL,
			uploaded_by  text,
			uploaded_at  timestamptz NOT NULL DEFAULT now(),
			chunk_count  int NOT NULL DEFAULT 0
		)`)
	if err != nil {
		return fmt.Errorf("create regulation_documents: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS regulation_chunks (
			chunk_id   uuid PRIMARY KEY,
			doc_id     uuid NOT NULL REFERENCES regulation_documents(doc_id) ON DELETE CASCADE,
			seq        int NOT NULL,
			content    text NOT NULL,
			embedding  float8[] NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create regulation_chunks: %w", err)
	}
	return nil
}

// AddDocument stages one document's chunks and embeddings in a single
// transaction. Chunks are bulk-loaded with CopyFrom.
func (s *Store) AddDocument(ctx context.Context, fileName, uploadedBy string, chunks []string, embeddings [][]float64) (string, error) {
	if len(chunks) != len(embeddings) {
		return "", fmt.Errorf("chunk/embedding count mismatch: %d vs %d", len(chunks), len(embeddings))
	}
	docID := uuid.New()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO regulation_documents (doc_id, file_name, uploaded_by, uploaded_at, chunk_count)
		VALUES ($1, $2, $3, $4, $5)`,
		docID, fileName, uploadedBy, time.Now(), len(chunks))
	if err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}

	rows := make([][]interface{}, len(chunks))
	for i, content := range chunks {
		rows[i] = []interface{}{uuid.New(), docID, i, content, embeddings[i]}
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"regulation_chunks"},
		[]string{"chunk_id", "doc_id", "seq", "content", "embedding"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return "", fmt.Errorf("copy chunks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	committed = true
	return docID.String(), nil
}

// DeleteDocument removes a document and its chunks.
func (s *Store) DeleteDocument(ctx context.Context, docID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM regulation_documents WHERE doc_id = $1`, docID)
	return err
}

type DocumentInfo struct {
	DocID      string    `json:"doc_id"`
	FileName   string    `json:"file_name"`
	UploadedBy string    `json:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at"`
	ChunkCount int       `json:"chunk_count"`
}

func (s *Store) ListDocuments(ctx context.Context) ([]DocumentInfo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT doc_id, file_name, COALESCE(uploaded_by, ''), uploaded_at, chunk_count
		FROM regulation_documents ORDER BY uploaded_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := make([]DocumentInfo, 0)
	for rows.Next() {
		var d DocumentInfo
		if err := rows.Scan(&d.DocID, &d.FileName, &d.UploadedBy, &d.UploadedAt, &d.ChunkCount); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Search returns the top-k chunks by cosine similarity to the query
// vector.
func (s *Store) Search(ctx context.Context, queryVec []float64, k int) ([]SearchResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.chunk_id, c.doc_id, d.file_name, c.seq, c.content, c.embedding
		FROM regulation_chunks c
		JOIN regulation_documents d ON d.doc_id = c.doc_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]SearchResult, 0)
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ChunkID, &r.DocID, &r.FileName, &r.Seq, &r.Content, &r.Embedding); err != nil {
			return nil, err
		}
		r.Score = Cosine(queryVec, r.Embedding)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Cosine similarity; zero for mismatched or zero-length vectors.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
