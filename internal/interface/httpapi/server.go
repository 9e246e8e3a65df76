package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ai4ecpp/kb-rag/internal/core/document"
	"github.com/ai4ecpp/kb-rag/internal/core/retrieval"
)

// shutdownTimeout はグレースフルシャットダウンの猶予時間
const shutdownTimeout = 10 * time.Second

// Server はRAGナレッジベースのHTTP APIを提供する
// documents/retrievalがnilの場合、該当ルートは503を返す（永続化未設定）
type Server struct {
	documents *document.Service
	retrieval *retrieval.Service
	health    HealthChecker
	auth      Authenticator
	logger    *slog.Logger
}

type serverOptions struct {
	health HealthChecker
	logger *slog.Logger
}

// ServerOption は Server のオプション設定
type ServerOption func(*serverOptions)

// WithHealthChecker は永続化層の疎通確認関数を設定する
func WithHealthChecker(health HealthChecker) ServerOption {
	return func(o *serverOptions) {
		o.health = health
	}
}

// WithServerLogger は Server にロガーを設定する
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(o *serverOptions) {
		o.logger = logger
	}
}

// NewServer は新しい Server を作成する
func NewServer(
	documents *document.Service,
	retrievalSvc *retrieval.Service,
	auth Authenticator,
	opts ...ServerOption,
) *Server {
	options := serverOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &Server{
		documents: documents,
		retrieval: retrievalSvc,
		health:    options.health,
		auth:      auth,
		logger:    options.logger,
	}
}

// Handler はAPIルート一式を持つhttp.Handlerを返す
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/rag/documents", s.withAuth(s.handleCreateDocument))
	mux.HandleFunc("GET /api/rag/documents", s.withAuth(s.handleListDocuments))
	mux.HandleFunc("GET /api/rag/documents/{id}", s.withAuth(s.handleGetDocument))
	mux.HandleFunc("DELETE /api/rag/documents/{id}", s.withAuth(s.handleDeleteDocument))
	mux.HandleFunc("POST /api/rag/retrieve", s.withAuth(s.handleRetrieve))
	mux.HandleFunc("POST /api/rag/query", s.withAuth(s.handleQuery))
	mux.HandleFunc("GET /api/rag/health", s.handleHealth)

	return s.logRequests(mux)
}

// withAuth は認証済みユーザーIDをハンドラに注入する
// ユーザーIDを解決できないリクエストはコアに到達する前に401で拒否する
func (s *Server) withAuth(handler func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.auth.Authenticate(r)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, "unauthorized", "a valid bearer token is required")
			return
		}
		handler(w, r, userID)
	}
}

// logRequests はリクエストログを出力するミドルウェア
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// ListenAndServe はHTTPサーバを起動し、ctxのキャンセルでグレースフルに停止する
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		return <-errCh
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}
