package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai4ecpp/kb-rag/internal/core/document"
	"github.com/ai4ecpp/kb-rag/internal/core/retrieval"
)

// memoryRepository はテスト用のインメモリ永続化実装
// ベクトル検索は総当たりのコサイン距離で行う
type memoryRepository struct {
	docs   []*document.Document
	chunks map[string][]*document.Chunk // documentID -> chunks
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{chunks: make(map[string][]*document.Chunk)}
}

func (r *memoryRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	count := 0
	for _, doc := range r.docs {
		if doc.OwnerID == ownerID {
			count++
		}
	}
	return count, nil
}

func (r *memoryRepository) CreateDocumentWithChunks(ctx context.Context, doc *document.Document, chunks []*document.Chunk) error {
	r.docs = append(r.docs, doc)
	r.chunks[doc.ID] = chunks
	return nil
}

func (r *memoryRepository) ListByOwner(ctx context.Context, ownerID string) ([]*document.Document, error) {
	var docs []*document.Document
	// 挿入の逆順 = 作成日時の降順
	for i := len(r.docs) - 1; i >= 0; i-- {
		if r.docs[i].OwnerID == ownerID {
			docs = append(docs, r.docs[i])
		}
	}
	return docs, nil
}

func (r *memoryRepository) GetOwned(ctx context.Context, ownerID, documentID string) (*document.Document, error) {
	for _, doc := range r.docs {
		if doc.ID == documentID && doc.OwnerID == ownerID {
			return doc, nil
		}
	}
	return nil, document.ErrDocumentNotFound
}

func (r *memoryRepository) GetChunksOwned(ctx context.Context, ownerID, documentID string) ([]*document.Chunk, error) {
	if _, err := r.GetOwned(ctx, ownerID, documentID); err != nil {
		return nil, err
	}
	return r.chunks[documentID], nil
}

func (r *memoryRepository) DeleteOwned(ctx context.Context, ownerID, documentID string) error {
	for i, doc := range r.docs {
		if doc.ID == documentID && doc.OwnerID == ownerID {
			r.docs = append(r.docs[:i], r.docs[i+1:]...)
			delete(r.chunks, documentID)
			return nil
		}
	}
	return document.ErrDocumentNotFound
}

func (r *memoryRepository) SearchByOwner(ctx context.Context, ownerID string, queryVector []float32, limit int) ([]*retrieval.RetrievedChunk, error) {
	var results []*retrieval.RetrievedChunk
	for _, doc := range r.docs {
		if doc.OwnerID != ownerID {
			continue
		}
		for _, chunk := range r.chunks[doc.ID] {
			results = append(results, &retrieval.RetrievedChunk{
				ChunkID:       chunk.ID,
				DocumentID:    doc.ID,
				DocumentTitle: doc.Title,
				Content:       chunk.Content,
				Distance:      cosineDistance(queryVector, chunk.Embedding),
			})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func cosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

// keywordEmbedder は決定的なテスト用Embedder
// "OLS" を含むテキストは [1,0]、それ以外は [0,1] に写す
type keywordEmbedder struct{}

func (e *keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(text, "OLS") {
		return []float32{1, 0}, nil
	}
	return []float32{0, 1}, nil
}

type fixedCompletion struct {
	answer     string
	err        error
	userPrompt string
}

func (c *fixedCompletion) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	c.userPrompt = userPrompt
	if c.err != nil {
		return "", c.err
	}
	return c.answer, nil
}

type testEnv struct {
	handler    http.Handler
	repo       *memoryRepository
	completion *fixedCompletion
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := newMemoryRepository()
	completion := &fixedCompletion{answer: "grounded answer"}

	documents, err := document.NewService(repo, &keywordEmbedder{})
	require.NoError(t, err)
	retrievalSvc := retrieval.NewService(repo, &keywordEmbedder{}, completion)

	auth := NewStaticTokenAuthenticator(map[string]string{
		"token-a": "user-a",
		"token-b": "user-b",
	})

	server := NewServer(documents, retrievalSvc, auth,
		WithHealthChecker(func(ctx context.Context) error { return nil }),
	)

	return &testEnv{
		handler:    server.Handler(),
		repo:       repo,
		completion: completion,
	}
}

func (env *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestRoutesRequireAuthentication(t *testing.T) {
	env := newTestEnv(t)

	for _, route := range []struct{ method, path string }{
		{"POST", "/api/rag/documents"},
		{"GET", "/api/rag/documents"},
		{"GET", "/api/rag/documents/some-id"},
		{"DELETE", "/api/rag/documents/some-id"},
		{"POST", "/api/rag/retrieve"},
		{"POST", "/api/rag/query"},
	} {
		w := env.do(t, route.method, route.path, "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", route.method, route.path)

		body := decodeBody(t, w)
		assert.Equal(t, "unauthorized", body["error"])
	}
}

func TestHealthDoesNotRequireAuthentication(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/rag/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])
}

func TestHealthReportsUnavailableWithoutPersistence(t *testing.T) {
	server := NewServer(nil, nil, NewStaticTokenAuthenticator(nil))
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/api/rag/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "unavailable", body["status"])
}

func TestHealthReportsError(t *testing.T) {
	auth := NewStaticTokenAuthenticator(nil)
	server := NewServer(nil, nil, auth,
		WithHealthChecker(func(ctx context.Context) error { return errors.New("connection refused") }),
	)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/api/rag/health", nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["message"], "connection refused")
}

func TestDocumentRoutesReturn503WithoutPersistence(t *testing.T) {
	auth := NewStaticTokenAuthenticator(map[string]string{"token-a": "user-a"})
	server := NewServer(nil, nil, auth)
	handler := server.Handler()

	for _, route := range []struct{ method, path string }{
		{"POST", "/api/rag/documents"},
		{"GET", "/api/rag/documents"},
		{"POST", "/api/rag/retrieve"},
		{"POST", "/api/rag/query"},
	} {
		req := httptest.NewRequest(route.method, route.path, strings.NewReader("{}"))
		req.Header.Set("Authorization", "Bearer token-a")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, "%s %s", route.method, route.path)
	}
}

func TestCreateDocument(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/rag/documents", "token-a",
		`{"title": "Econometrics Notes", "content": "OLS estimates are unbiased.\n\nR squared is 0.95."}`)
	require.Equal(t, http.StatusCreated, w.Code)

	body := decodeBody(t, w)
	assert.NotEmpty(t, body["documentId"])
	assert.Equal(t, float64(1), body["chunks"])
}

func TestCreateDocumentValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
		code string
	}{
		{name: "missing title", body: `{"content": "some content"}`, code: "invalid_request"},
		{name: "missing content", body: `{"title": "Notes"}`, code: "invalid_request"},
		{name: "whitespace content", body: `{"title": "Notes", "content": "  \n\n  "}`, code: "invalid_request"},
		{name: "malformed JSON", body: `{"title": `, code: "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "POST", "/api/rag/documents", "token-a", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.code, decodeBody(t, w)["error"])
		})
	}
}

func TestCreateDocumentQuota(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 10; i++ {
		w := env.do(t, "POST", "/api/rag/documents", "token-a",
			fmt.Sprintf(`{"title": "Doc %d", "content": "content %d"}`, i, i))
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := env.do(t, "POST", "/api/rag/documents", "token-a",
		`{"title": "One Too Many", "content": "content"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "quota_exceeded", body["error"])
	assert.Contains(t, body["message"], "10")

	// クォータ超過は書き込みを一切行わない
	count, err := env.repo.CountByOwner(context.Background(), "user-a")
	require.NoError(t, err)
	assert.Equal(t, 10, count)
}

func TestListDocumentsNewestFirst(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, "POST", "/api/rag/documents", "token-a", `{"title": "First", "content": "alpha"}`)
	env.do(t, "POST", "/api/rag/documents", "token-a", `{"title": "Second", "content": "beta"}`)

	w := env.do(t, "GET", "/api/rag/documents", "token-a", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	docs := body["documents"].([]any)
	require.Len(t, docs, 2)
	assert.Equal(t, "Second", docs[0].(map[string]any)["title"])
	assert.Equal(t, "First", docs[1].(map[string]any)["title"])
}

func TestGetDocumentRejoinsContent(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/rag/documents", "token-a",
		`{"title": "Notes", "content": "first paragraph\n\nsecond paragraph"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	docID := decodeBody(t, w)["documentId"].(string)

	w = env.do(t, "GET", "/api/rag/documents/"+docID, "token-a", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "Notes", body["title"])
	assert.Equal(t, "first paragraph\n\nsecond paragraph", body["content"])
}

func TestGetDocumentOwnershipIsIndistinguishableFromMissing(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/rag/documents", "token-a", `{"title": "Private", "content": "secret notes"}`)
	docID := decodeBody(t, w)["documentId"].(string)

	// 他ユーザーのIDでも存在しないIDでも同じ404
	w = env.do(t, "GET", "/api/rag/documents/"+docID, "token-b", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, "GET", "/api/rag/documents/no-such-id", "token-b", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteDocumentCascades(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/rag/documents", "token-a", `{"title": "Doomed", "content": "OLS content"}`)
	docID := decodeBody(t, w)["documentId"].(string)

	w = env.do(t, "DELETE", "/api/rag/documents/"+docID, "token-a", "")
	require.Equal(t, http.StatusOK, w.Code)

	// 削除後の検索は削除済み文書の内容を返さない
	w = env.do(t, "POST", "/api/rag/retrieve", "token-a", `{"question": "what about OLS?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Empty(t, body["chunks"])

	w = env.do(t, "DELETE", "/api/rag/documents/"+docID, "token-a", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteDocumentOtherUser(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/rag/documents", "token-a", `{"title": "Mine", "content": "my notes"}`)
	docID := decodeBody(t, w)["documentId"].(string)

	w = env.do(t, "DELETE", "/api/rag/documents/"+docID, "token-b", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 所有者からは引き続き見える
	w = env.do(t, "GET", "/api/rag/documents/"+docID, "token-a", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRetrieveRequiresQuestion(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/rag/retrieve", "token-a", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", decodeBody(t, w)["error"])
}

func TestRetrieveIsolatedBetweenUsers(t *testing.T) {
	env := newTestEnv(t)

	// user-bの文書のほうが質問に近いが、user-aの検索には決して現れない
	env.do(t, "POST", "/api/rag/documents", "token-b", `{"title": "B Notes", "content": "OLS regression details"}`)
	env.do(t, "POST", "/api/rag/documents", "token-a", `{"title": "A Notes", "content": "unrelated cooking recipe"}`)

	w := env.do(t, "POST", "/api/rag/retrieve", "token-a", `{"question": "tell me about OLS"}`)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	chunks := body["chunks"].([]any)
	require.Len(t, chunks, 1)
	assert.Equal(t, "A Notes", chunks[0].(map[string]any)["title"])
	assert.NotContains(t, body["context"], "B Notes")
}

func TestQueryReturnsAnswerWithSources(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, "POST", "/api/rag/documents", "token-a", `{"title": "Econometrics Notes", "content": "OLS estimates are unbiased."}`)

	w := env.do(t, "POST", "/api/rag/query", "token-a", `{"question": "what about OLS?", "topK": 1}`)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "grounded answer", body["answer"])
	assert.Equal(t, float64(1), body["sources"])

	chunksUsed := body["chunksUsed"].([]any)
	require.Len(t, chunksUsed, 1)
	assert.Equal(t, "Econometrics Notes", chunksUsed[0].(map[string]any)["title"])
}

func TestQueryCompletionFailureReturns500(t *testing.T) {
	env := newTestEnv(t)
	env.completion.err = errors.New("completion service down")

	w := env.do(t, "POST", "/api/rag/query", "token-a", `{"question": "anything?"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, decodeBody(t, w)["message"], "completion service down")
}

// エンドツーエンドシナリオ: 小さな文書と長い文書を登録し、topK=1で
// 質問に合致する文書のタイトルが返ることを確認する
func TestEndToEndIndexAndRetrieve(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/rag/documents", "token-a",
		`{"title": "Econometrics Notes", "content": "OLS estimates are unbiased.\n\nR squared is 0.95."}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, float64(1), decodeBody(t, w)["chunks"])

	longContent, err := json.Marshal(strings.Repeat("a", 1500))
	require.NoError(t, err)
	w = env.do(t, "POST", "/api/rag/documents", "token-a",
		fmt.Sprintf(`{"title": "Filler", "content": %s}`, longContent))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, float64(3), decodeBody(t, w)["chunks"])

	w = env.do(t, "POST", "/api/rag/retrieve", "token-a", `{"question": "what do my notes say about OLS?", "topK": 1}`)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	chunks := body["chunks"].([]any)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Econometrics Notes", chunks[0].(map[string]any)["title"])
}
