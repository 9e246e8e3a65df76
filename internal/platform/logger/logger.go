package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config はロガーの設定
type Config struct {
	Level  string    // "debug" / "info" / "warn" / "error"
	Format string    // "json" または "text"
	Output io.Writer // 省略時はos.Stdout
}

// New は設定に従ってロガーを構築し、デフォルトロガーとして登録します
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default: // "json"
		handler = slog.NewJSONHandler(out, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}

// ParseLevel はレベル文字列をslog.Levelに変換します
// 不明な値はInfoとして扱います
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
