package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// QueryRetrieveAction は質問に関連するチャンクを検索して表示する
func QueryRetrieveAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	result, err := appCtx.Retrieval.Retrieve(ctx, cmd.String("user"), cmd.String("question"), int(cmd.Int("top-k")))
	if err != nil {
		return err
	}

	if len(result.Chunks) == 0 {
		fmt.Println("no matching chunks")
		return nil
	}
	for i, chunk := range result.Chunks {
		fmt.Printf("--- %d. [%s] (distance %.4f)\n%s\n\n", i+1, chunk.DocumentTitle, chunk.Distance, chunk.Content)
	}
	return nil
}

// QueryAskAction は質問に対する回答をナレッジベースに基づいて生成する
func QueryAskAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	result, err := appCtx.Retrieval.Answer(ctx, cmd.String("user"), cmd.String("question"), int(cmd.Int("top-k")))
	if err != nil {
		return err
	}

	fmt.Println(result.Answer)
	if len(result.ChunksUsed) > 0 {
		fmt.Printf("\nSources (%d):\n", result.Sources)
		for _, chunk := range result.ChunksUsed {
			fmt.Printf("- [%s] %s\n", chunk.Title, chunk.Excerpt)
		}
	}
	return nil
}
