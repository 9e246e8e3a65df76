package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxTitleLength はタイトルの最大文字数（超過分は切り詰める）
	MaxTitleLength = 500
	// MaxContentLength は本文の最大文字数
	MaxContentLength = 500_000
	// DefaultMaxDocuments は1ユーザーが所有できる文書数のデフォルト上限
	DefaultMaxDocuments = 10
)

var (
	// ErrTitleRequired はタイトルが空の場合のエラー
	ErrTitleRequired = errors.New("title is required")
	// ErrContentRequired は本文が空の場合のエラー
	ErrContentRequired = errors.New("content is required")
	// ErrContentTooLarge は本文が最大文字数を超えた場合のエラー
	ErrContentTooLarge = fmt.Errorf("content exceeds maximum length of %d characters", MaxContentLength)
	// ErrEmptyContent はチャンク化の結果が0件だった場合のエラー
	ErrEmptyContent = errors.New("content produced no chunks")
	// ErrQuotaExceeded は文書数の上限に達している場合のエラー
	ErrQuotaExceeded = errors.New("document quota exceeded")
)

// Embedder はテキストのEmbedding生成インターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Service は文書のインデックス化とライフサイクル管理を提供する
type Service struct {
	repo         Repository
	embedder     Embedder
	chunker      *Chunker
	maxDocuments int
	logger       *slog.Logger
}

type serviceOptions struct {
	chunker      *Chunker
	maxDocuments int
	logger       *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*serviceOptions)

// WithChunker はチャンカーを差し替える
func WithChunker(chunker *Chunker) ServiceOption {
	return func(o *serviceOptions) {
		o.chunker = chunker
	}
}

// WithMaxDocuments は文書数の上限を上書きする
func WithMaxDocuments(max int) ServiceOption {
	return func(o *serviceOptions) {
		o.maxDocuments = max
	}
}

// WithLogger は Service にロガーを設定する
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// NewService は新しいServiceを作成する
func NewService(repo Repository, embedder Embedder, opts ...ServiceOption) (*Service, error) {
	options := serviceOptions{
		maxDocuments: DefaultMaxDocuments,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.chunker == nil {
		chunker, err := NewChunker(DefaultChunkSize, DefaultChunkOverlap)
		if err != nil {
			return nil, err
		}
		options.chunker = chunker
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &Service{
		repo:         repo,
		embedder:     embedder,
		chunker:      options.chunker,
		maxDocuments: options.maxDocuments,
		logger:       options.logger,
	}, nil
}

// MaxDocuments は文書数の上限を返す
func (s *Service) MaxDocuments() int {
	return s.maxDocuments
}

// Index はタイトルと本文からチャンク化・Embedding生成・永続化までを実行する
//
// 二段階で処理する: まず全チャンクのEmbeddingをメモリ上で順次生成し、
// その後に文書と全チャンクを単一トランザクションで挿入する。
// Embeddingやいずれかの挿入が失敗した場合、行は一切残らない。
func (s *Service) Index(ctx context.Context, ownerID, title, content string) (*IndexResult, error) {
	// 1. バリデーション（永続化前に完了させる）
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if runeLen(title) > MaxTitleLength {
		title = string([]rune(title)[:MaxTitleLength])
	}
	// 空白のみの本文はここでは弾かず、チャンク化の結果0件として扱う
	if content == "" {
		return nil, ErrContentRequired
	}
	if runeLen(content) > MaxContentLength {
		return nil, ErrContentTooLarge
	}

	// 2. 文書数クォータのチェック
	count, err := s.repo.CountByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	if count >= s.maxDocuments {
		return nil, fmt.Errorf("%w: maximum of %d documents allowed", ErrQuotaExceeded, s.maxDocuments)
	}

	// 3. チャンク化
	segments := s.chunker.Split(content)
	if len(segments) == 0 {
		return nil, ErrEmptyContent
	}

	doc := &Document{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}

	// 4. 全チャンクのEmbeddingを順次生成する
	// 順次実行でEmbeddingサービスへの同時負荷を抑える（リトライはしない）
	chunks := make([]*Chunk, 0, len(segments))
	for i, segment := range segments {
		vector, err := s.embedder.Embed(ctx, segment)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunk %d of %d: %w", i+1, len(segments), err)
		}
		chunks = append(chunks, &Chunk{
			ID:         fmt.Sprintf("%s_chunk_%d", doc.ID, i),
			DocumentID: doc.ID,
			Ordinal:    i,
			Content:    segment,
			Embedding:  vector,
		})
	}

	// 5. 文書とチャンクを単一トランザクションで永続化する
	if err := s.repo.CreateDocumentWithChunks(ctx, doc, chunks); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	s.logger.Info("document indexed",
		"documentID", doc.ID,
		"owner", ownerID,
		"chunks", len(chunks),
	)

	return &IndexResult{
		DocumentID: doc.ID,
		Chunks:     len(chunks),
	}, nil
}

// List はユーザーの文書一覧を作成日時の降順で返す
func (s *Service) List(ctx context.Context, ownerID string) ([]*Document, error) {
	docs, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// Get は文書の詳細を返す（本文はチャンクを分割順に再結合したもの）
func (s *Service) Get(ctx context.Context, ownerID, documentID string) (*DocumentContent, error) {
	doc, err := s.repo.GetOwned(ctx, ownerID, documentID)
	if err != nil {
		return nil, err
	}

	chunks, err := s.repo.GetChunksOwned(ctx, ownerID, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}

	parts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		parts = append(parts, chunk.Content)
	}

	return &DocumentContent{
		Document: *doc,
		Content:  strings.Join(parts, "\n\n"),
	}, nil
}

// Delete はユーザーが所有する文書を削除する（チャンクはカスケード削除される）
func (s *Service) Delete(ctx context.Context, ownerID, documentID string) error {
	if err := s.repo.DeleteOwned(ctx, ownerID, documentID); err != nil {
		return err
	}

	s.logger.Info("document deleted",
		"documentID", documentID,
		"owner", ownerID,
	)
	return nil
}
