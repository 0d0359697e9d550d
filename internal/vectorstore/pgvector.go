package vectorstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fusedchat/fusedchat/ai-core/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PgvectorStore is a vector index on PostgreSQL with the pgvector
// extension. Users must provide their own instance with pgvector
// installed; the store creates its table and indexes on startup.
type PgvectorStore struct {
	pool       *pgxpool.Pool
	dimensions int
}

// NewPgvectorStore connects and runs the schema migration.
func NewPgvectorStore(ctx context.Context, connURL string, dimensions int) (*PgvectorStore, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("pgvector connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector ping: %w", err)
	}

	s := &PgvectorStore{pool: pool, dimensions: dimensions}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector migrate: %w", err)
	}

	log.Info().Int("dims", dimensions).Msg("pgvector store initialized")
	return s, nil
}

func (s *PgvectorStore) migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;

		CREATE TABLE IF NOT EXISTS fc_chunks (
			id          TEXT NOT NULL,
			user_id     TEXT NOT NULL,
			document_id TEXT NOT NULL DEFAULT '',
			content     TEXT NOT NULL DEFAULT '',
			metadata    JSONB NOT NULL DEFAULT '{}',
			vector      vector(%d) NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, id)
		);

		CREATE INDEX IF NOT EXISTS idx_fc_chunks_user ON fc_chunks (user_id);
		CREATE INDEX IF NOT EXISTS idx_fc_chunks_doc ON fc_chunks (user_id, document_id);
	`, s.dimensions)

	_, err := s.pool.Exec(ctx, ddl)
	return err
}

func (s *PgvectorStore) Kind() string { return "pgvector" }

func (s *PgvectorStore) Upsert(ctx context.Context, userID string, docs []models.VectorDoc) error {
	if len(docs) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO fc_chunks (id, user_id, document_id, content, metadata, vector, created_at)
		VALUES `)

	args := make([]any, 0, len(docs)*7)
	for i, d := range docs {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i*7 + 1
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d)", base, base+1, base+2, base+3, base+4, base+5, base+6))
		id := d.ID
		if id == "" {
			id = uuid.NewString()
		}
		createdAt := d.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		metadata := d.Metadata
		if metadata == nil {
			metadata = map[string]string{}
		}
		args = append(args, id, userID, d.DocumentID, d.Content, metadata, pgvectorArray(d.Vector), createdAt)
	}

	sb.WriteString(` ON CONFLICT (user_id, id) DO UPDATE SET
		content = EXCLUDED.content,
		metadata = EXCLUDED.metadata,
		vector = EXCLUDED.vector,
		document_id = EXCLUDED.document_id`)

	_, err := s.pool.Exec(ctx, sb.String(), args...)
	return err
}

func (s *PgvectorStore) Search(ctx context.Context, userID string, vector []float64, topK int, filter map[string]string) ([]models.SearchResult, error) {
	// <=> is pgvector's cosine distance operator.
	query := `SELECT id, user_id, document_id, content, metadata, created_at,
		1 - (vector <=> $1) AS score
		FROM fc_chunks
		WHERE user_id = $2`

	args := []any{pgvectorArray(vector), userID}
	argIdx := 3

	if docID, ok := filter["document_id"]; ok && docID != "" {
		query += fmt.Sprintf(" AND document_id = $%d", argIdx)
		args = append(args, docID)
		argIdx++
	}
	for fk, fv := range filter {
		if fk == "document_id" {
			continue
		}
		query += fmt.Sprintf(" AND metadata->>$%d = $%d", argIdx, argIdx+1)
		args = append(args, fk, fv)
		argIdx += 2
	}

	query += fmt.Sprintf(" ORDER BY vector <=> $1 LIMIT $%d", argIdx)
	args = append(args, topK)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		var doc models.VectorDoc
		var score float64
		if err := rows.Scan(&doc.ID, &doc.UserID, &doc.DocumentID, &doc.Content, &doc.Metadata, &doc.CreatedAt, &score); err != nil {
			return nil, fmt.Errorf("pgvector scan: %w", err)
		}
		results = append(results, models.SearchResult{Doc: doc, Score: score})
	}
	return results, rows.Err()
}

func (s *PgvectorStore) GetByDocument(ctx context.Context, userID, documentID string) ([]models.VectorDoc, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, user_id, document_id, content, metadata, created_at
		FROM fc_chunks
		WHERE user_id = $1 AND document_id = $2
		ORDER BY (metadata->>'chunk_index')::int`, userID, documentID)
	if err != nil {
		return nil, fmt.Errorf("pgvector get by document: %w", err)
	}
	defer rows.Close()

	var docs []models.VectorDoc
	for rows.Next() {
		var doc models.VectorDoc
		if err := rows.Scan(&doc.ID, &doc.UserID, &doc.DocumentID, &doc.Content, &doc.Metadata, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgvector scan: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *PgvectorStore) Delete(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, "DELETE FROM fc_chunks WHERE user_id = $1 AND id = ANY($2)", userID, ids)
	return err
}

func (s *PgvectorStore) DeleteByDocument(ctx context.Context, userID, documentID string) (int, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM fc_chunks WHERE user_id = $1 AND document_id = $2", userID, documentID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PgvectorStore) Count(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM fc_chunks WHERE user_id = $1", userID).Scan(&count)
	return count, err
}

func (s *PgvectorStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PgvectorStore) Close() {
	s.pool.Close()
}

// pgvectorArray renders a vector in pgvector's text format: [1,2,3]
func pgvectorArray(v []float64) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(fmt.Sprintf("%g", f))
	}
	sb.WriteByte(']')
	return sb.String()
}
