package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定
	Database DatabaseConfig

	// OpenAI設定（Embeddings + 回答生成用）
	OpenAI OpenAIConfig

	// HTTPサーバ設定
	Server ServerConfig

	// RAGナレッジベース設定
	RAG RAGConfig
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// OpenAIConfig はOpenAI API設定（Embeddings + LLM）
type OpenAIConfig struct {
	APIKey             string
	EmbeddingModel     string
	EmbeddingDimension int
	LLMModel           string // 回答生成に使用するモデル名
}

// ServerConfig はHTTPサーバ設定
type ServerConfig struct {
	Port int

	// APITokens は "token:userID" をカンマ区切りで並べた静的トークンテーブル
	APITokens string

	LogLevel  string // "debug" / "info" / "warn" / "error"
	LogFormat string // "json" / "text"
}

// RAGConfig はチャンク化・検索まわりの設定
type RAGConfig struct {
	ChunkSize     int // チャンクの目標文字数（デフォルト: 600）
	ChunkOverlap  int // チャンク間のオーバーラップ文字数（デフォルト: 100）
	MaxDocuments  int // 1ユーザーが所有できるドキュメント数の上限（デフォルト: 10）
	DefaultTopK   int // 検索結果件数のデフォルト（デフォルト: 5）
	MaxTopK       int // 検索結果件数の上限（デフォルト: 20）
	ExcerptLength int // 出典表示用の抜粋文字数（デフォルト: 200）
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "kbrag"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "kbrag"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
			LLMModel:           getEnv("OPENAI_LLM_MODEL", "gpt-4o-mini"),
		},
		Server: ServerConfig{
			Port:      getEnvAsInt("KBRAG_PORT", 8080),
			APITokens: getEnv("KBRAG_API_TOKENS", ""),
			LogLevel:  getEnv("KBRAG_LOG_LEVEL", "info"),
			LogFormat: getEnv("KBRAG_LOG_FORMAT", "json"),
		},
		RAG: RAGConfig{
			ChunkSize:     getEnvAsInt("KBRAG_CHUNK_SIZE", 600),
			ChunkOverlap:  getEnvAsInt("KBRAG_CHUNK_OVERLAP", 100),
			MaxDocuments:  getEnvAsInt("KBRAG_MAX_DOCUMENTS", 10),
			DefaultTopK:   getEnvAsInt("KBRAG_DEFAULT_TOP_K", 5),
			MaxTopK:       getEnvAsInt("KBRAG_MAX_TOP_K", 20),
			ExcerptLength: getEnvAsInt("KBRAG_EXCERPT_LENGTH", 200),
		},
	}

	return cfg, nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
