package httpapi

import (
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthorized は認証に失敗した場合のエラー
var ErrUnauthorized = errors.New("missing or invalid bearer token")

// Authenticator はリクエストから検証済みユーザーIDを解決するインターフェース
// 本体の認証基盤（JWT発行等）は外部コラボレータであり、
// このサブシステムはユーザーIDの供給のみを期待する
type Authenticator interface {
	// Authenticate はリクエストを検証し、ユーザーIDを返す
	Authenticate(r *http.Request) (string, error)
}

// StaticTokenAuthenticator はBearerトークンを静的なトークンテーブルで照合する
type StaticTokenAuthenticator struct {
	tokens map[string]string // token -> userID
}

// NewStaticTokenAuthenticator は新しい StaticTokenAuthenticator を作成する
func NewStaticTokenAuthenticator(tokens map[string]string) *StaticTokenAuthenticator {
	return &StaticTokenAuthenticator{tokens: tokens}
}

var _ Authenticator = (*StaticTokenAuthenticator)(nil)

// Authenticate は Authorization: Bearer トークンをテーブルで照合する
func (a *StaticTokenAuthenticator) Authenticate(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", ErrUnauthorized
	}

	userID, ok := a.tokens[token]
	if !ok {
		return "", ErrUnauthorized
	}
	return userID, nil
}

// ParseTokenTable は "token:userID" のカンマ区切り文字列をパースする
// 不正なエントリは無視する
func ParseTokenTable(s string) map[string]string {
	tokens := make(map[string]string)
	for _, entry := range strings.Split(s, ",") {
		token, userID, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok || token == "" || userID == "" {
			continue
		}
		tokens[token] = userID
	}
	return tokens
}
