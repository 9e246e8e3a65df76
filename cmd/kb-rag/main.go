package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/ai4ecpp/kb-rag/cmd/kb-rag/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	envFlag := &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}
	userFlag := &cli.StringFlag{
		Name:     "user",
		Usage:    "操作対象のユーザーID",
		Required: true,
	}

	app := &cli.Command{
		Name:  "kb-rag",
		Usage: "AI4ECPP 学生向けナレッジベースRAGサービス",
		Commands: []*cli.Command{
			{
				Name:  "server",
				Usage: "サーバ関連コマンド",
				Commands: []*cli.Command{
					{
						Name:  "start",
						Usage: "HTTP APIサーバを起動",
						Flags: []cli.Flag{
							envFlag,
							&cli.IntFlag{
								Name:  "port",
								Usage: "HTTPポート（省略時は環境変数またはデフォルトの8080）",
							},
						},
						Action: commands.ServerStartAction,
					},
				},
			},
			{
				Name:  "migrate",
				Usage: "データベーススキーマを適用",
				Flags: []cli.Flag{
					envFlag,
				},
				Action: commands.MigrateAction,
			},
			{
				Name:  "document",
				Usage: "文書管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "add",
						Usage: "文書をインデックス化",
						Flags: []cli.Flag{
							envFlag,
							userFlag,
							&cli.StringFlag{
								Name:     "title",
								Usage:    "文書タイトル",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "file",
								Usage: "本文ファイルパス（省略時は標準入力）",
							},
						},
						Action: commands.DocumentAddAction,
					},
					{
						Name:  "list",
						Usage: "文書一覧を表示",
						Flags: []cli.Flag{
							envFlag,
							userFlag,
						},
						Action: commands.DocumentListAction,
					},
					{
						Name:  "show",
						Usage: "文書の詳細を表示",
						Flags: []cli.Flag{
							envFlag,
							userFlag,
							&cli.StringFlag{
								Name:     "id",
								Usage:    "文書ID",
								Required: true,
							},
						},
						Action: commands.DocumentShowAction,
					},
					{
						Name:  "delete",
						Usage: "文書を削除",
						Flags: []cli.Flag{
							envFlag,
							userFlag,
							&cli.StringFlag{
								Name:     "id",
								Usage:    "文書ID",
								Required: true,
							},
						},
						Action: commands.DocumentDeleteAction,
					},
				},
			},
			{
				Name:  "query",
				Usage: "検索・質問応答コマンド",
				Commands: []*cli.Command{
					{
						Name:  "retrieve",
						Usage: "質問に関連するチャンクを検索",
						Flags: []cli.Flag{
							envFlag,
							userFlag,
							&cli.StringFlag{
								Name:     "question",
								Usage:    "質問文",
								Required: true,
							},
							&cli.IntFlag{
								Name:  "top-k",
								Usage: "検索結果件数（1〜20、省略時は5）",
							},
						},
						Action: commands.QueryRetrieveAction,
					},
					{
						Name:  "ask",
						Usage: "ナレッジベースに基づいて回答を生成",
						Flags: []cli.Flag{
							envFlag,
							userFlag,
							&cli.StringFlag{
								Name:     "question",
								Usage:    "質問文",
								Required: true,
							},
							&cli.IntFlag{
								Name:  "top-k",
								Usage: "検索結果件数（1〜20、省略時は5）",
							},
						},
						Action: commands.QueryAskAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
