package retrieval

import (
	"context"
)

// SearchRepository はベクトル類似検索のインターフェース
// 検索は必ず所有ユーザーIDでスコープされる
// テスト時のモック用に消費者側で定義
type SearchRepository interface {
	// SearchByOwner はユーザーが所有するチャンクを距離の昇順で最大limit件返す
	// 同距離の場合はチャンクIDの昇順で安定した順序になる
	SearchByOwner(ctx context.Context, ownerID string, queryVector []float32, limit int) ([]*RetrievedChunk, error)
}
