package history

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"llm-assistant/internal/llm"
	"llm-assistant/internal/logging"
	"llm-assistant/internal/storage"
)

var wordRe = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Pair is one answered exchange reconstructed from the log.
type Pair struct {
	User      string
	Assistant string
	At        time.Time
}

// Recall finds older exchanges that share words with the new message.
type Recall struct {
	src        EventSource
	enabled    bool
	maxResults int
	maxChars   int
	log        zerolog.Logger
}

func NewRecall(src EventSource, enabled bool, maxResults, maxChars int, log zerolog.Logger) *Recall {
	return &Recall{src: src, enabled: enabled, maxResults: maxResults, maxChars: maxChars, log: log}
}

// Search returns up to maxResults system turns, best match first, whose
// combined exchange text stays within maxChars. It never fails: errors are
// logged and produce no memories.
func (r *Recall) Search(ctx context.Context, userID int64, query string) []llm.Message {
	if !r.enabled || query == "" {
		return nil
	}
	events, err := r.src.FetchAll(ctx, userID)
	if err != nil {
		logging.ForUser(r.log, userID, "long_term_memory_error").Error().Err(err).Msg("error searching long-term memory")
		return nil
	}

	keywords := Keywords(query)
	type scored struct {
		score int
		pair  Pair
	}
	var candidates []scored
	for _, p := range Pairs(events) {
		if s := Score(p, keywords); s > 0 {
			candidates = append(candidates, scored{score: s, pair: p})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > r.maxResults {
		candidates = candidates[:r.maxResults]
	}

	var out []llm.Message
	used := 0
	for _, c := range candidates {
		text := fmt.Sprintf("User: %s\nAssistant: %s", c.pair.User, c.pair.Assistant)
		n := utf8.RuneCountInString(text)
		if used+n > r.maxChars {
			break
		}
		used += n
		out = append(out, llm.Message{
			Role:    llm.RoleSystem,
			Content: fmt.Sprintf("Relevant past conversation from %s:\n%s", c.pair.At.UTC().Format(time.RFC3339), text),
		})
	}
	logging.ForUser(r.log, userID, "long_term_memory_search").Debug().
		Int("found", len(out)).Msg("long-term memory search")
	return out
}

// Pairs walks events oldest first. A user message opens a pair, the next
// assistant reply fills it, and only filled pairs are kept.
func Pairs(events []storage.Event) []Pair {
	var (
		out []Pair
		cur Pair
	)
	for _, ev := range events {
		switch ev.Kind {
		case storage.KindUserMessage:
			if cur.User != "" && cur.Assistant != "" {
				out = append(out, cur)
			}
			cur = Pair{User: ev.Detail, At: ev.CreatedAt}
		case storage.KindAssistantReply:
			if cur.User != "" {
				cur.Assistant = ev.Detail
			}
		}
	}
	if cur.User != "" && cur.Assistant != "" {
		out = append(out, cur)
	}
	return out
}

// Keywords lowercases the query and splits it into word tokens.
func Keywords(query string) []string {
	return wordRe.FindAllString(strings.ToLower(query), -1)
}

// Score gives 2 points per keyword found in the user text and 1 per keyword
// found in the assistant text.
func Score(p Pair, keywords []string) int {
	user := strings.ToLower(p.User)
	assistant := strings.ToLower(p.Assistant)
	score := 0
	for _, kw := range keywords {
		if strings.Contains(user, kw) {
			score += 2
		}
		if strings.Contains(assistant, kw) {
			score++
		}
	}
	return score
}
