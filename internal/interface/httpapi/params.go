package httpapi

import (
	"encoding/json"
	"strconv"
	"strings"
)

// parseTopK はリクエストのtopKを検証済みの整数に変換する
//
// JSONでは数値・数値文字列・欠落のいずれもあり得るため、
// ここで一度だけ強制変換する: パース不能・欠落・0以下はデフォルト値、
// その後 [1, max] にクランプする。コアサービスには検証済みの値のみ渡す
func parseTopK(raw json.RawMessage, defaultTopK, maxTopK int) int {
	topK := defaultTopK

	if len(raw) > 0 {
		var n float64
		var s string
		if err := json.Unmarshal(raw, &n); err == nil {
			topK = int(n)
		} else if err := json.Unmarshal(raw, &s); err == nil {
			if parsed, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
				topK = parsed
			}
		}
	}

	if topK <= 0 {
		topK = defaultTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}
	if topK < 1 {
		topK = 1
	}
	return topK
}
