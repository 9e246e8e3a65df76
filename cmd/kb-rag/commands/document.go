package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
)

// DocumentAddAction はファイルまたは標準入力から文書をインデックス化する
func DocumentAddAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	var content []byte
	if file := cmd.String("file"); file != "" {
		content, err = os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
	} else {
		content, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
	}

	result, err := appCtx.Documents.Index(ctx, cmd.String("user"), cmd.String("title"), string(content))
	if err != nil {
		return err
	}

	fmt.Printf("indexed document %s (%d chunks)\n", result.DocumentID, result.Chunks)
	return nil
}

// DocumentListAction はユーザーの文書一覧を表示する
func DocumentListAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	docs, err := appCtx.Documents.List(ctx, cmd.String("user"))
	if err != nil {
		return err
	}

	if len(docs) == 0 {
		fmt.Println("no documents")
		return nil
	}
	for _, doc := range docs {
		fmt.Printf("%s\t%s\t%s\n", doc.ID, doc.CreatedAt.Format("2006-01-02 15:04"), doc.Title)
	}
	return nil
}

// DocumentShowAction は文書の詳細（再結合した本文）を表示する
func DocumentShowAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	doc, err := appCtx.Documents.Get(ctx, cmd.String("user"), cmd.String("id"))
	if err != nil {
		return err
	}

	fmt.Printf("# %s (%s)\n\n%s\n", doc.Title, doc.CreatedAt.Format("2006-01-02 15:04"), doc.Content)
	return nil
}

// DocumentDeleteAction は文書を削除する
func DocumentDeleteAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Documents.Delete(ctx, cmd.String("user"), cmd.String("id")); err != nil {
		return err
	}

	fmt.Println("document deleted")
	return nil
}
