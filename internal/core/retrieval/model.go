package retrieval

// RetrievedChunk はベクトル検索でヒットしたチャンクを表す
type RetrievedChunk struct {
	ChunkID       string  `json:"chunkID"`
	DocumentID    string  `json:"documentID"`
	DocumentTitle string  `json:"title"`
	Content       string  `json:"content"`
	Distance      float64 `json:"distance"`
}

// RetrieveResult は検索モードの結果を表す
type RetrieveResult struct {
	// Context は "[タイトル]\n本文" ブロックを関連度順に連結した文字列
	Context string
	Chunks  []*RetrievedChunk
}

// SourceChunk は回答の根拠として提示するチャンクの出典表示を表す
type SourceChunk struct {
	Title   string `json:"title"`
	Excerpt string `json:"excerpt"`
}

// AnswerResult は回答生成モードの結果を表す
type AnswerResult struct {
	Answer     string
	Sources    int
	ChunksUsed []*SourceChunk
}
