package document

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// DefaultChunkSize はチャンクの目標文字数
	DefaultChunkSize = 600
	// DefaultChunkOverlap はチャンク間で引き継ぐ文字数
	DefaultChunkOverlap = 100
)

// blankLinePattern は段落境界（空行）を表す
var blankLinePattern = regexp.MustCompile(`\n[ \t]*\n+`)

// Chunker はテキストを段落境界を尊重しつつ重なりを持つチャンクに分割する
// Splitは純粋関数であり副作用を持たない
type Chunker struct {
	chunkSize int // チャンクの目標文字数
	overlap   int // 直前チャンクから引き継ぐ文字数
}

// NewChunker は新しいChunkerを作成する
// chunkSizeはoverlapより大きくなければならない（ストライドが0以下になるため）
func NewChunker(chunkSize, overlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("overlap must not be negative, got %d", overlap)
	}
	if overlap >= chunkSize {
		return nil, fmt.Errorf("overlap (%d) must be smaller than chunk size (%d)", overlap, chunkSize)
	}

	return &Chunker{
		chunkSize: chunkSize,
		overlap:   overlap,
	}, nil
}

// Split はテキストをチャンクに分割する
// 空または空白のみのテキストは空のスライスを返す
func (c *Chunker) Split(text string) []string {
	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil
	}

	var chunks []string
	var buf string

	for _, para := range paragraphs {
		// 単独でチャンクサイズを超える段落は固定幅で分割する
		if runeLen(para) > c.chunkSize {
			if buf != "" {
				chunks = append(chunks, buf)
				buf = ""
			}
			chunks = append(chunks, c.splitOversized(para)...)
			continue
		}

		candidate := para
		if buf != "" {
			candidate = buf + "\n\n" + para
		}

		if runeLen(candidate) <= c.chunkSize {
			buf = candidate
			continue
		}

		// あふれたら現在のバッファを確定し、末尾overlap文字を次のバッファに引き継ぐ
		chunks = append(chunks, buf)
		tail := lastRunes(buf, c.overlap)
		if tail != "" {
			buf = tail + "\n\n" + para
		} else {
			buf = para
		}
	}

	if buf != "" {
		chunks = append(chunks, buf)
	}

	return chunks
}

// splitOversized はチャンクサイズを超える単一段落を固定幅の窓で分割する
// 窓幅はchunkSize、ストライドはchunkSize-overlap（文境界は考慮しない）
func (c *Chunker) splitOversized(para string) []string {
	runes := []rune(para)
	stride := c.chunkSize - c.overlap

	var chunks []string
	for start := 0; start < len(runes); start += stride {
		end := start + c.chunkSize
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// splitParagraphs は改行コードを正規化し、空行境界で段落に分割する
func splitParagraphs(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	parts := blankLinePattern.Split(normalized, -1)
	paragraphs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}

// runeLen は文字数（rune数）を返す
func runeLen(s string) int {
	return len([]rune(s))
}

// lastRunes は末尾n文字を返す
func lastRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
