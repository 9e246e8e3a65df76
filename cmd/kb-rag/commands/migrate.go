package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/ai4ecpp/kb-rag/internal/infra/postgres"
	"github.com/ai4ecpp/kb-rag/pkg/config"
	"github.com/ai4ecpp/kb-rag/pkg/db"
)

// MigrateAction はデータベーススキーマを適用する
// サービス一式の組み立ては不要なため、DB接続のみ行う
func MigrateAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("env"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
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
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if err := postgres.Migrate(ctx, database.Pool, cfg.OpenAI.EmbeddingDimension); err != nil {
		return err
	}

	fmt.Println("schema applied")
	return nil
}
