package semindex

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddl returns the players DDL with the embedding dimension substituted. The
// vector dimension is baked into the column type at schema creation time.
func ddl(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS players (
    id         TEXT         PRIMARY KEY,
    name       TEXT         NOT NULL,
    summary    TEXT         NOT NULL,
    record     JSONB        NOT NULL,
    embedding  vector(%d),
    model_id   TEXT         NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_players_name ON players (name);

CREATE INDEX IF NOT EXISTS idx_players_embedding
    ON players USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures the players table and the pgvector extension
// exist. It is idempotent and safe to call on every start.
//
// embeddingDimensions must match the configured embedding model. Changing it
// after the first migration requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, ddl(embeddingDimensions)); err != nil {
		return fmt.Errorf("semindex migrate: %w", err)
	}
	return nil
}
