package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

const (
	// MaxQuestionLength は質問文の最大文字数
	MaxQuestionLength = 2000
	// DefaultTopK は検索結果件数のデフォルト
	DefaultTopK = 5
	// MaxTopK は検索結果件数の上限
	MaxTopK = 20
	// DefaultExcerptLength は出典表示用の抜粋文字数
	DefaultExcerptLength = 200
)

var (
	// ErrQuestionRequired は質問文が空の場合のエラー
	ErrQuestionRequired = errors.New("question is required")
	// ErrQuestionTooLong は質問文が最大文字数を超えた場合のエラー
	ErrQuestionTooLong = fmt.Errorf("question exceeds maximum length of %d characters", MaxQuestionLength)
)

// Embedder はテキストのEmbedding生成インターフェース
// インデックス時と同一のモデル・次元を使用しなければならない
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CompletionClient はLLMによるテキスト生成インターフェース
type CompletionClient interface {
	// Complete はシステムプロンプトとユーザープロンプトから回答テキストを生成する
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Service は質問に対するチャンク検索と回答生成を提供する
type Service struct {
	repo          SearchRepository
	embedder      Embedder
	completion    CompletionClient
	defaultTopK   int
	maxTopK       int
	excerptLength int
	logger        *slog.Logger
}

type serviceOptions struct {
	defaultTopK   int
	maxTopK       int
	excerptLength int
	logger        *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*serviceOptions)

// WithTopKBounds は検索結果件数のデフォルトと上限を上書きする
func WithTopKBounds(defaultTopK, maxTopK int) ServiceOption {
	return func(o *serviceOptions) {
		o.defaultTopK = defaultTopK
		o.maxTopK = maxTopK
	}
}

// WithExcerptLength は出典表示用の抜粋文字数を上書きする
func WithExcerptLength(length int) ServiceOption {
	return func(o *serviceOptions) {
		o.excerptLength = length
	}
}

// WithLogger は Service にロガーを設定する
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// NewService は新しいServiceを作成する
// completionがnilの場合、Answerは利用できない（Retrieveのみ）
func NewService(repo SearchRepository, embedder Embedder, completion CompletionClient, opts ...ServiceOption) *Service {
	options := serviceOptions{
		defaultTopK:   DefaultTopK,
		maxTopK:       MaxTopK,
		excerptLength: DefaultExcerptLength,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &Service{
		repo:          repo,
		embedder:      embedder,
		completion:    completion,
		defaultTopK:   options.defaultTopK,
		maxTopK:       options.maxTopK,
		excerptLength: options.excerptLength,
		logger:        options.logger,
	}
}

// DefaultTopK は検索結果件数のデフォルトを返す
func (s *Service) DefaultTopK() int {
	return s.defaultTopK
}

// MaxTopK は検索結果件数の上限を返す
func (s *Service) MaxTopK() int {
	return s.maxTopK
}

// Retrieve は質問をEmbeddingに変換し、ユーザーのチャンクから上位topK件を検索する
// インデックス済みチャンクが0件の場合は空の結果を返す（エラーではない）
func (s *Service) Retrieve(ctx context.Context, ownerID, question string, topK int) (*RetrieveResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrQuestionRequired
	}
	if len([]rune(question)) > MaxQuestionLength {
		return nil, ErrQuestionTooLong
	}
	topK = s.clampTopK(topK)

	// 質問を毎回Embeddingに変換する（キャッシュは行わない）
	queryVector, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	chunks, err := s.repo.SearchByOwner(ctx, ownerID, queryVector, topK)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	s.logger.Info("retrieval completed",
		"owner", ownerID,
		"topK", topK,
		"hits", len(chunks),
	)

	return &RetrieveResult{
		Context: BuildContext(chunks),
		Chunks:  chunks,
	}, nil
}

// Answer は検索結果をコンテキストとしてLLMに回答を生成させる
// コンテキストが空でも生成は実行し、ナレッジベースが空である旨をプロンプトで伝える
func (s *Service) Answer(ctx context.Context, ownerID, question string, topK int) (*AnswerResult, error) {
	if s.completion == nil {
		return nil, fmt.Errorf("completion client is not configured")
	}

	result, err := s.Retrieve(ctx, ownerID, question, topK)
	if err != nil {
		return nil, err
	}

	prompt := BuildAnswerPrompt(strings.TrimSpace(question), result.Context)

	answer, err := s.completion.Complete(ctx, answerSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	used := make([]*SourceChunk, 0, len(result.Chunks))
	for _, chunk := range result.Chunks {
		used = append(used, &SourceChunk{
			Title:   chunk.DocumentTitle,
			Excerpt: excerpt(chunk.Content, s.excerptLength),
		})
	}

	s.logger.Info("answer generated",
		"owner", ownerID,
		"sources", len(used),
		"answerLength", len(answer),
	)

	return &AnswerResult{
		Answer:     answer,
		Sources:    len(used),
		ChunksUsed: used,
	}, nil
}

// clampTopK はtopKを[1, maxTopK]に収める（0以下はデフォルト値を適用）
func (s *Service) clampTopK(topK int) int {
	if topK <= 0 {
		topK = s.defaultTopK
	}
	if topK > s.maxTopK {
		topK = s.maxTopK
	}
	if topK < 1 {
		topK = 1
	}
	return topK
}

// excerpt は出典表示用にテキストを指定文字数で切り詰める
func excerpt(text string, length int) string {
	runes := []rune(text)
	if len(runes) <= length {
		return text
	}
	return string(runes[:length]) + "..."
}
