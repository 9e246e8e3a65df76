package document

import (
	"time"
)

// Document はユーザーが登録したナレッジベース文書を表す
type Document struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"-"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Chunk は文書を分割した検索単位を表す
// IDは "{documentID}_chunk_{ordinal}" 形式で、分割順序を復元できる
type Chunk struct {
	ID         string
	DocumentID string
	Ordinal    int
	Content    string
	Embedding  []float32
}

// IndexResult はインデックス化処理の結果を表す
type IndexResult struct {
	DocumentID string
	Chunks     int
}

// DocumentContent は文書の詳細（チャンクを再結合した本文つき）を表す
type DocumentContent struct {
	Document
	Content string `json:"content"`
}
