package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/ai4ecpp/kb-rag/internal/core/document"
	"github.com/ai4ecpp/kb-rag/internal/core/retrieval"
	"github.com/ai4ecpp/kb-rag/pkg/db"
)

// Repository は document.Repository と retrieval.SearchRepository を実装する
// PostgreSQL（pgvector）リポジトリ。全クエリは所有ユーザーIDでスコープされる
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository は新しい Repository を返す
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var (
	_ document.Repository        = (*Repository)(nil)
	_ retrieval.SearchRepository = (*Repository)(nil)
)

// CountByOwner はユーザーが所有する文書数を返す
func (r *Repository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM documents WHERE user_id = $1`,
		ownerID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

// CreateDocumentWithChunks は文書とその全チャンクを単一トランザクションで作成する
func (r *Repository) CreateDocumentWithChunks(ctx context.Context, doc *document.Document, chunks []*document.Chunk) error {
	return db.Transact(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO documents (id, user_id, title, created_at) VALUES ($1, $2, $3, $4)`,
			doc.ID, doc.OwnerID, doc.Title, doc.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert document: %w", err)
		}

		for _, chunk := range chunks {
			_, err = tx.Exec(ctx,
				`INSERT INTO chunks (id, document_id, ordinal, content, embedding) VALUES ($1, $2, $3, $4, $5)`,
				chunk.ID, chunk.DocumentID, chunk.Ordinal, chunk.Content, pgvector.NewVector(chunk.Embedding),
			)
			if err != nil {
				return fmt.Errorf("failed to insert chunk %d: %w", chunk.Ordinal, err)
			}
		}
		return nil
	})
}

// ListByOwner はユーザーの文書一覧を作成日時の降順で返す
func (r *Repository) ListByOwner(ctx context.Context, ownerID string) ([]*document.Document, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, title, created_at FROM documents WHERE user_id = $1 ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]*document.Document, 0)
	for rows.Next() {
		var doc document.Document
		if err := rows.Scan(&doc.ID, &doc.OwnerID, &doc.Title, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}
	return docs, nil
}

// GetOwned はユーザーが所有する文書を取得する
// 存在しない場合と他ユーザー所有の場合は区別せず document.ErrDocumentNotFound を返す
func (r *Repository) GetOwned(ctx context.Context, ownerID, documentID string) (*document.Document, error) {
	var doc document.Document
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, title, created_at FROM documents WHERE id = $1 AND user_id = $2`,
		documentID, ownerID,
	).Scan(&doc.ID, &doc.OwnerID, &doc.Title, &doc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, document.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

// GetChunksOwned はユーザーが所有する文書のチャンクを分割順で返す
func (r *Repository) GetChunksOwned(ctx context.Context, ownerID, documentID string) ([]*document.Chunk, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.document_id, c.ordinal, c.content
		 FROM chunks c
		 JOIN documents d ON d.id = c.document_id
		 WHERE c.document_id = $1 AND d.user_id = $2
		 ORDER BY c.ordinal ASC`,
		documentID, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	chunks := make([]*document.Chunk, 0)
	for rows.Next() {
		var chunk document.Chunk
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Ordinal, &chunk.Content); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, &chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}
	return chunks, nil
}

// DeleteOwned はユーザーが所有する文書を削除する（チャンクはON DELETE CASCADE）
func (r *Repository) DeleteOwned(ctx context.Context, ownerID, documentID string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM documents WHERE id = $1 AND user_id = $2`,
		documentID, ownerID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return document.ErrDocumentNotFound
	}
	return nil
}

// SearchByOwner はユーザーが所有するチャンクをコサイン距離の昇順で最大limit件返す
// 同距離の場合はチャンクIDの昇順で安定させる
func (r *Repository) SearchByOwner(ctx context.Context, ownerID string, queryVector []float32, limit int) ([]*retrieval.RetrievedChunk, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.document_id, d.title, c.content, c.embedding <=> $1 AS distance
		 FROM chunks c
		 JOIN documents d ON d.id = c.document_id
		 WHERE d.user_id = $2
		 ORDER BY distance ASC, c.id ASC
		 LIMIT $3`,
		pgvector.NewVector(queryVector), ownerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	results := make([]*retrieval.RetrievedChunk, 0, limit)
	for rows.Next() {
		var chunk retrieval.RetrievedChunk
		if err := rows.Scan(&chunk.ChunkID, &chunk.DocumentID, &chunk.DocumentTitle, &chunk.Content, &chunk.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, &chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read search results: %w", err)
	}
	return results, nil
}

// Ping はデータベース接続を確認する（ヘルスチェック用）
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
