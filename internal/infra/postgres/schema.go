package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaTemplate はナレッジベースのスキーマ定義
// %d にはEmbeddingの次元数が入る
const schemaTemplate = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS documents (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    title      TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_documents_user_id ON documents (user_id);

CREATE TABLE IF NOT EXISTS chunks (
    id          TEXT PRIMARY KEY,
    document_id TEXT NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
    ordinal     INTEGER NOT NULL,
    content     TEXT NOT NULL,
    embedding   VECTOR(%d) NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks (document_id);

CREATE INDEX IF NOT EXISTS idx_chunks_embedding
    ON chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
`

// Migrate はスキーマを適用する（冪等）
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimension int) error {
	if embeddingDimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", embeddingDimension)
	}

	if _, err := pool.Exec(ctx, fmt.Sprintf(schemaTemplate, embeddingDimension)); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
