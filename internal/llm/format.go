package llm

import (
	"regexp"
	"strings"
)

var thinkRe = regexp.MustCompile(`(?is)<think>.*?</think>`)

// StripThinking removes <think>...</think> blocks some models emit before
// the answer and trims surrounding whitespace.
func StripThinking(raw string) string {
	return strings.TrimSpace(thinkRe.ReplaceAllString(raw, ""))
}
