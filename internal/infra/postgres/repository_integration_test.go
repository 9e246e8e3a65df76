//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai4ecpp/kb-rag/internal/core/document"
)

const testEmbeddingDimension = 3

// setupDatabase はpgvector入りのPostgreSQLコンテナを起動し、スキーマを適用する
func setupDatabase(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dockerPool, err := dockertest.NewPool("")
	require.NoError(t, err, "failed to connect to docker")
	require.NoError(t, dockerPool.Client.Ping())

	resource, err := dockerPool.RunWithOptions(&dockertest.RunOptions{
		Repository: "pgvector/pgvector",
		Tag:        "pg16",
		Env: []string{
			"POSTGRES_USER=kbrag",
			"POSTGRES_PASSWORD=kbrag",
			"POSTGRES_DB=kbrag_test",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		_ = dockerPool.Purge(resource)
	})
	_ = resource.Expire(300)

	connString := fmt.Sprintf(
		"host=localhost port=%s user=kbrag password=kbrag dbname=kbrag_test sslmode=disable",
		resource.GetPort("5432/tcp"),
	)

	var pool *pgxpool.Pool
	dockerPool.MaxWait = 60 * time.Second
	err = dockerPool.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		p, err := pgxpool.New(ctx, connString)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	require.NoError(t, err, "postgres did not become ready")
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(context.Background(), pool, testEmbeddingDimension))
	return pool
}

func insertDocument(t *testing.T, repo *Repository, ownerID, docID, title string, embeddings [][]float32) {
	t.Helper()

	doc := &document.Document{
		ID:        docID,
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: time.Now(),
	}
	chunks := make([]*document.Chunk, 0, len(embeddings))
	for i, embedding := range embeddings {
		chunks = append(chunks, &document.Chunk{
			ID:         fmt.Sprintf("%s_chunk_%d", docID, i),
			DocumentID: docID,
			Ordinal:    i,
			Content:    fmt.Sprintf("chunk %d of %s", i, title),
			Embedding:  embedding,
		})
	}
	require.NoError(t, repo.CreateDocumentWithChunks(context.Background(), doc, chunks))
}

func TestRepository(t *testing.T) {
	pool := setupDatabase(t)
	repo := NewRepository(pool)
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		insertDocument(t, repo, "user-a", "doc-1", "First Document", [][]float32{
			{1, 0, 0},
			{0, 1, 0},
		})

		doc, err := repo.GetOwned(ctx, "user-a", "doc-1")
		require.NoError(t, err)
		assert.Equal(t, "First Document", doc.Title)
		assert.Equal(t, "user-a", doc.OwnerID)

		chunks, err := repo.GetChunksOwned(ctx, "user-a", "doc-1")
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, 0, chunks[0].Ordinal)
		assert.Equal(t, 1, chunks[1].Ordinal)

		count, err := repo.CountByOwner(ctx, "user-a")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("list is newest first", func(t *testing.T) {
		insertDocument(t, repo, "user-a", "doc-2", "Second Document", [][]float32{{0, 0, 1}})

		docs, err := repo.ListByOwner(ctx, "user-a")
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "doc-2", docs[0].ID)
		assert.Equal(t, "doc-1", docs[1].ID)
	})

	t.Run("other user cannot see documents", func(t *testing.T) {
		_, err := repo.GetOwned(ctx, "user-b", "doc-1")
		assert.ErrorIs(t, err, document.ErrDocumentNotFound)

		_, err = repo.GetChunksOwned(ctx, "user-b", "doc-1")
		assert.ErrorIs(t, err, document.ErrDocumentNotFound)

		err = repo.DeleteOwned(ctx, "user-b", "doc-1")
		assert.ErrorIs(t, err, document.ErrDocumentNotFound)

		count, err := repo.CountByOwner(ctx, "user-b")
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("search orders by cosine distance", func(t *testing.T) {
		results, err := repo.SearchByOwner(ctx, "user-a", []float32{1, 0, 0}, 10)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, "doc-1_chunk_0", results[0].ChunkID)
		assert.Equal(t, "First Document", results[0].DocumentTitle)
		assert.InDelta(t, 0.0, results[0].Distance, 1e-6)
		assert.Greater(t, results[1].Distance, results[0].Distance)
	})

	t.Run("search respects limit", func(t *testing.T) {
		results, err := repo.SearchByOwner(ctx, "user-a", []float32{1, 0, 0}, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "doc-1_chunk_0", results[0].ChunkID)
	})

	t.Run("search is scoped to owner", func(t *testing.T) {
		insertDocument(t, repo, "user-b", "doc-b", "B Document", [][]float32{{1, 0, 0}})

		results, err := repo.SearchByOwner(ctx, "user-b", []float32{1, 0, 0}, 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "doc-b_chunk_0", results[0].ChunkID)
	})

	t.Run("delete cascades to chunks", func(t *testing.T) {
		require.NoError(t, repo.DeleteOwned(ctx, "user-a", "doc-1"))

		_, err := repo.GetOwned(ctx, "user-a", "doc-1")
		assert.ErrorIs(t, err, document.ErrDocumentNotFound)

		var orphaned int
		err = pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks WHERE document_id = 'doc-1'`).Scan(&orphaned)
		require.NoError(t, err)
		assert.Equal(t, 0, orphaned)

		// 削除済み文書のチャンクは検索結果に現れない
		results, err := repo.SearchByOwner(ctx, "user-a", []float32{1, 0, 0}, 10)
		require.NoError(t, err)
		for _, chunk := range results {
			assert.NotEqual(t, "doc-1", chunk.DocumentID)
		}
	})

	t.Run("delete missing document", func(t *testing.T) {
		err := repo.DeleteOwned(ctx, "user-a", "no-such-document")
		assert.ErrorIs(t, err, document.ErrDocumentNotFound)
	})

	t.Run("migrate is idempotent", func(t *testing.T) {
		require.NoError(t, Migrate(ctx, pool, testEmbeddingDimension))
	})
}
