package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/ai4ecpp/kb-rag/internal/interface/httpapi"
	"github.com/ai4ecpp/kb-rag/internal/platform/logger"
	"github.com/ai4ecpp/kb-rag/pkg/config"
)

// ServerStartAction はHTTP APIサーバを起動するコマンドのアクション
//
// DBやOpenAIの設定不備でサービスを組み立てられない場合でもサーバは起動し、
// ナレッジベース関連ルートは503を、ヘルスチェックは "unavailable" を返す。
// 依存が未設定の状態と壊れている状態をクライアントが区別できるようにする
func ServerStartAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("env"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	appLogger := logger.New(logger.Config{
		Level:  cfg.Server.LogLevel,
		Format: cfg.Server.LogFormat,
	})

	auth := httpapi.NewStaticTokenAuthenticator(
		httpapi.ParseTokenTable(cfg.Server.APITokens),
	)

	appCtx, err := NewAppContextFromConfig(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Warn("knowledge base dependencies are unavailable, serving in degraded mode",
			"error", err,
		)
		appCtx = nil
	} else {
		defer appCtx.Close()
	}

	server := newServer(appCtx, auth, appLogger)

	port := int(cmd.Int("port"))
	if port == 0 {
		port = cfg.Server.Port
	}

	return server.ListenAndServe(ctx, port)
}

// newServer はAppContextからHTTPサーバを構築する
// appCtxがnilの場合はサービス未設定のサーバを返す（各ルートは503を返す）
func newServer(appCtx *AppContext, auth httpapi.Authenticator, appLogger *slog.Logger) *httpapi.Server {
	if appCtx == nil {
		return httpapi.NewServer(nil, nil, auth,
			httpapi.WithServerLogger(appLogger),
		)
	}

	return httpapi.NewServer(appCtx.Documents, appCtx.Retrieval, auth,
		httpapi.WithHealthChecker(appCtx.Repository.Ping),
		httpapi.WithServerLogger(appLogger),
	)
}
