package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ai4ecpp/kb-rag/internal/core/document"
	"github.com/ai4ecpp/kb-rag/internal/core/retrieval"
	"github.com/ai4ecpp/kb-rag/internal/infra/openai"
	"github.com/ai4ecpp/kb-rag/internal/infra/postgres"
	"github.com/ai4ecpp/kb-rag/internal/platform/logger"
	"github.com/ai4ecpp/kb-rag/pkg/config"
	"github.com/ai4ecpp/kb-rag/pkg/db"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config     *config.Config
	Database   *db.DB
	Repository *postgres.Repository
	Documents  *document.Service
	Retrieval  *retrieval.Service
	logger     *slog.Logger
}

// NewAppContext は設定を読み込み、DBに接続してサービス一式を組み立てる
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	appLogger := logger.New(logger.Config{
		Level:  cfg.Server.LogLevel,
		Format: cfg.Server.LogFormat,
	})

	return NewAppContextFromConfig(ctx, cfg, appLogger)
}

// NewAppContextFromConfig は読み込み済みの設定からサービス一式を組み立てる
// サービスクライアントはここで一度だけ構築して注入する（遅延初期化は行わない）
func NewAppContextFromConfig(ctx context.Context, cfg *config.Config, appLogger *slog.Logger) (*AppContext, error) {
	if cfg.OpenAI.APIKey == "" {
		return nil, openai.ErrAPIKeyNotSet
	}

	database, err := db.New(ctx, db.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := postgres.NewRepository(database.Pool)

	embedder, err := openai.NewEmbedder(cfg.OpenAI.APIKey,
		openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
		openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
	)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	llmClient, err := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.LLMModel)
	if err != nil {
		database.Close()
		return nil, err
	}

	chunker, err := document.NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("invalid chunker config: %w", err)
	}

	documents, err := document.NewService(repo, embedder,
		document.WithChunker(chunker),
		document.WithMaxDocuments(cfg.RAG.MaxDocuments),
		document.WithLogger(appLogger),
	)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to create document service: %w", err)
	}

	retrievalSvc := retrieval.NewService(repo, embedder, llmClient,
		retrieval.WithTopKBounds(cfg.RAG.DefaultTopK, cfg.RAG.MaxTopK),
		retrieval.WithExcerptLength(cfg.RAG.ExcerptLength),
		retrieval.WithLogger(appLogger),
	)

	return &AppContext{
		Config:     cfg,
		Database:   database,
		Repository: repo,
		Documents:  documents,
		Retrieval:  retrievalSvc,
		logger:     appLogger,
	}, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.Database != nil {
		ac.Database.Close()
	}
}

// Logger はAppContextのロガーを返す
func (ac *AppContext) Logger() *slog.Logger {
	if ac.logger != nil {
		return ac.logger
	}
	return slog.Default()
}
