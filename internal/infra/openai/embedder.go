package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/pkoukk/tiktoken-go"
)

const (
	// DefaultEmbeddingModel はモデル未指定時のデフォルトモデル
	DefaultEmbeddingModel = "text-embedding-3-small"
	// DefaultEmbeddingDimension はOpenAI推奨のデフォルト次元
	DefaultEmbeddingDimension = 1536
	// MaxEmbeddingTokens はEmbedding APIの入力上限トークン数
	// 超過分は送信前に切り詰める
	MaxEmbeddingTokens = 8192
)

// Embedder は OpenAI API を使用してテキストをベクトルに変換する
type Embedder struct {
	client    openai.Client
	encoder   *tiktoken.Tiktoken
	model     string
	dimension int
}

type embedderOptions struct {
	model     string
	dimension int
}

// EmbedderOption は Embedder のオプション設定
type EmbedderOption func(*embedderOptions)

// WithEmbeddingModel はモデル名を上書きする
func WithEmbeddingModel(model string) EmbedderOption {
	return func(o *embedderOptions) {
		o.model = model
	}
}

// WithEmbeddingDimension はベクトル次元を上書きする
func WithEmbeddingDimension(dimension int) EmbedderOption {
	return func(o *embedderOptions) {
		o.dimension = dimension
	}
}

// NewEmbedder は新しい Embedder を作成する
func NewEmbedder(apiKey string, opts ...EmbedderOption) (*Embedder, error) {
	options := embedderOptions{
		model:     DefaultEmbeddingModel,
		dimension: DefaultEmbeddingDimension,
	}
	for _, opt := range opts {
		opt(&options)
	}

	// cl100k_baseエンコーダを使用（text-embedding-3系と互換）
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoder: %w", err)
	}

	return &Embedder{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
		),
		encoder:   encoder,
		model:     options.model,
		dimension: options.dimension,
	}, nil
}

// Embed は単一テキストの Embedding を生成する
// 入力がAPIの上限トークン数を超える場合は切り詰めてから送信する
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("no text provided")
	}

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(e.truncate(text)),
		},
	}
	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings generated")
	}

	vector := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vector[i] = float32(v)
	}
	return vector, nil
}

// truncate はテキストを上限トークン数に切り詰める
func (e *Embedder) truncate(text string) string {
	tokens := e.encoder.Encode(text, nil, nil)
	if len(tokens) <= MaxEmbeddingTokens {
		return text
	}
	return e.encoder.Decode(tokens[:MaxEmbeddingTokens])
}

// ModelName はモデル名を返す
func (e *Embedder) ModelName() string {
	return e.model
}

// Dimension はベクトル次元数を返す
func (e *Embedder) Dimension() int {
	return e.dimension
}
