package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"

	_ "github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"
)

// Entry is one knowledge base row for ingestion.
type Entry struct {
	ID        string
	Embedding []float32
	Metadata  Metadata
}

// VectorStore persists knowledge entries and serves similarity search.
type VectorStore interface {
	Search(ctx context.Context, vector []float32, topK int) ([]Match, error)
	Upsert(ctx context.Context, entry Entry) error
}

type postgresStore struct {
	db *sql.DB
}

var _ VectorStore = (*postgresStore)(nil)

// OpenPostgresStore connects to Postgres and prepares the knowledge
// schema. The database must have the pgvector extension available.
func OpenPostgresStore(ctx context.Context, dsn string) (VectorStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}

	if err := EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &postgresStore{db: db}, nil
}

// NewPostgresStore wraps an existing connection without touching the
// schema. Used by tests and callers that manage migrations themselves.
func NewPostgresStore(db *sql.DB) VectorStore {
	return &postgresStore{db: db}
}

// EnsureSchema creates the pgvector extension and knowledge table if
// they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS knowledge_entry (
			id TEXT PRIMARY KEY,
			embedding vector(1536) NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			updated_ts TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "ensure knowledge schema")
		}
	}
	return nil
}

// Search returns the topK nearest entries by cosine similarity.
// The <=> operator computes cosine distance, so ascending distance
// order yields the most similar entries first.
func (s *postgresStore) Search(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	query := `
		SELECT id, 1 - (embedding <=> $1) AS score, metadata
		FROM knowledge_entry
		ORDER BY embedding <=> $2
		LIMIT $3
	`

	vec := pgvector.NewVector(vector)
	rows, err := s.db.QueryContext(ctx, query, vec, vec, topK)
	if err != nil {
		return nil, errors.Wrap(err, "vector search")
	}
	defer rows.Close()

	matches := []Match{}
	for rows.Next() {
		var m Match
		var metadataBytes []byte
		if err := rows.Scan(&m.ID, &m.Score, &metadataBytes); err != nil {
			return nil, errors.Wrap(err, "scan search result")
		}
		m.Metadata = decodeMetadata(metadataBytes)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return matches, nil
}

// Upsert inserts or replaces a knowledge entry.
func (s *postgresStore) Upsert(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		return errors.New("entry id required")
	}
	if len(entry.Embedding) != EmbeddingDimensions {
		return errors.Errorf("embedding has %d dimensions, want %d", len(entry.Embedding), EmbeddingDimensions)
	}

	metadataBytes, err := json.Marshal(entry.Metadata)
	if err != nil {
		return errors.Wrap(err, "marshal metadata")
	}

	stmt := `
		INSERT INTO knowledge_entry (id, embedding, metadata, updated_ts)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id)
		DO UPDATE SET
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata,
			updated_ts = EXCLUDED.updated_ts
	`
	if _, err := s.db.ExecContext(ctx, stmt, entry.ID, pgvector.NewVector(entry.Embedding), metadataBytes); err != nil {
		return errors.Wrap(err, "upsert knowledge entry")
	}
	return nil
}

// decodeMetadata tolerates malformed or partial rows: every field comes
// back usable, with empty strings and an empty tag list as defaults.
func decodeMetadata(raw []byte) Metadata {
	var md Metadata
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &md)
	}
	if md.Tags == nil {
		md.Tags = []string{}
	}
	return md
}
