package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// DefaultModel はデフォルトで使用するOpenAIモデル
const DefaultModel = "gpt-4o-mini"

// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
var ErrAPIKeyNotSet = errors.New("OpenAI API key not set: please set OPENAI_API_KEY environment variable")

// Client は OpenAI API を使用した回答生成クライアント
type Client struct {
	client openai.Client
	model  string
}

// NewClient はAPIキーとモデルを指定して Client を作成する
func NewClient(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	if model == "" {
		model = DefaultModel
	}

	return &Client{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

// ModelName はモデル名を返す
func (c *Client) ModelName() string {
	return c.model
}

// Complete はシステムプロンプトとユーザープロンプトから回答テキストを生成する
// 失敗時のリトライは行わず、エラーを即座に返す
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned")
	}

	return completion.Choices[0].Message.Content, nil
}
