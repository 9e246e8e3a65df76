package retrieval

import (
	"fmt"
	"strings"
)

// contextDelimiter はコンテキストブロック間の区切り
const contextDelimiter = "\n\n---\n\n"

// answerSystemPrompt は回答生成時のシステムプロンプト
// コンテキストに含まれる情報のみから回答させ、捏造を禁止する
const answerSystemPrompt = `You are a study assistant for economics and public policy students.
Answer the user's question using ONLY the knowledge base excerpts provided in the context.
Cite which document title each part of your answer comes from.
If the context does not contain enough information to answer, say so plainly instead of guessing.
Do not fabricate facts, figures, or citations.`

// emptyContextNote はナレッジベースに該当コンテンツがない場合にコンテキストの代わりに渡す
const emptyContextNote = `(The user's knowledge base contains no content relevant to this question.
Tell the user that nothing in their uploaded documents answers it, and suggest adding relevant documents.)`

// BuildContext は検索結果から人間可読なコンテキスト文字列を組み立てる
// 各ブロックは "[タイトル]\n本文" 形式で、関連度順に並ぶ
func BuildContext(chunks []*RetrievedChunk) string {
	if len(chunks) == 0 {
		return ""
	}

	blocks := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		blocks = append(blocks, fmt.Sprintf("[%s]\n%s", chunk.DocumentTitle, chunk.Content))
	}
	return strings.Join(blocks, contextDelimiter)
}

// BuildAnswerPrompt は回答生成用のユーザープロンプトを構築する
func BuildAnswerPrompt(question, context string) string {
	var sb strings.Builder

	sb.WriteString("## Context\n")
	if context != "" {
		sb.WriteString(context)
	} else {
		sb.WriteString(emptyContextNote)
	}
	sb.WriteString("\n\n## Question\n")
	sb.WriteString(question)
	sb.WriteString("\n")

	return sb.String()
}
