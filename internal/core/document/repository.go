package document

import (
	"context"
	"errors"
)

// ErrDocumentNotFound は文書が存在しないか、要求ユーザーの所有でない場合のエラー
// 他ユーザーの文書の存在を漏らさないため、両者は区別しない
var ErrDocumentNotFound = errors.New("document not found")

// Repository は文書とチャンクの永続化インターフェース
// すべてのメソッドは所有ユーザーIDでスコープされ、スコープ漏れを構造的に防ぐ
// テスト時のモック用に消費者側で定義
type Repository interface {
	// CountByOwner はユーザーが所有する文書数を返す
	CountByOwner(ctx context.Context, ownerID string) (int, error)

	// CreateDocumentWithChunks は文書とその全チャンクを単一トランザクションで作成する
	// いずれかの挿入が失敗した場合、何も永続化されない
	CreateDocumentWithChunks(ctx context.Context, doc *Document, chunks []*Chunk) error

	// ListByOwner はユーザーの文書一覧を作成日時の降順で返す
	ListByOwner(ctx context.Context, ownerID string) ([]*Document, error)

	// GetOwned はユーザーが所有する文書を取得する
	GetOwned(ctx context.Context, ownerID, documentID string) (*Document, error)

	// GetChunksOwned はユーザーが所有する文書のチャンクを分割順で返す
	GetChunksOwned(ctx context.Context, ownerID, documentID string) ([]*Chunk, error)

	// DeleteOwned はユーザーが所有する文書を削除する（チャンクはカスケード削除）
	DeleteOwned(ctx context.Context, ownerID, documentID string) error
}
