// Package history turns a user's event log into model context: a bounded
// window of recent turns, keyword recall of older exchanges, and the final
// prompt assembly.
package history

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"llm-assistant/internal/llm"
	"llm-assistant/internal/logging"
	"llm-assistant/internal/storage"
)

// EventSource is the read side of the event log.
type EventSource interface {
	FetchRecent(ctx context.Context, userID int64, kinds []storage.Kind, limit int) ([]storage.Event, error)
	FetchAll(ctx context.Context, userID int64) ([]storage.Event, error)
}

// Window builds the short-term context from the newest turns.
type Window struct {
	src      EventSource
	maxTurns int
	maxChars int
	log      zerolog.Logger
}

func NewWindow(src EventSource, maxTurns, maxChars int, log zerolog.Logger) *Window {
	return &Window{src: src, maxTurns: maxTurns, maxChars: maxChars, log: log}
}

// Build returns the user's latest turns in chronological order, at most
// maxTurns of them and at most maxChars characters in total. Turns are
// dropped whole from the oldest end. Retrieval errors yield no context.
func (w *Window) Build(ctx context.Context, userID int64) []llm.Message {
	log := logging.ForUser(w.log, userID, "context_formed")
	if w.maxTurns <= 0 {
		return nil
	}
	events, err := w.src.FetchRecent(ctx, userID, storage.ConversationKinds, w.maxTurns)
	if err != nil {
		logging.ForUser(w.log, userID, "context_error").Error().Err(err).Msg("error getting user context")
		return nil
	}
	if len(events) > w.maxTurns {
		events = events[:w.maxTurns]
	}

	turns := make([]llm.Message, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		content := strings.TrimSpace(ev.Detail)
		if content == "" {
			continue
		}
		switch ev.Kind {
		case storage.KindUserMessage:
			turns = append(turns, llm.Message{Role: llm.RoleUser, Content: content})
		case storage.KindAssistantReply:
			turns = append(turns, llm.Message{Role: llm.RoleAssistant, Content: content})
		}
	}

	turns = trimToBudget(turns, w.maxChars)
	log.Debug().Int("messages", len(turns)).Int("chars", totalChars(turns)).Msg("context formed")
	return turns
}

// trimToBudget keeps the longest suffix of turns whose total length fits.
func trimToBudget(turns []llm.Message, budget int) []llm.Message {
	if totalChars(turns) <= budget {
		return turns
	}
	used := 0
	start := len(turns)
	for i := len(turns) - 1; i >= 0; i-- {
		n := utf8.RuneCountInString(turns[i].Content)
		if used+n > budget {
			break
		}
		used += n
		start = i
	}
	return turns[start:]
}

func totalChars(turns []llm.Message) int {
	n := 0
	for _, t := range turns {
		n += utf8.RuneCountInString(t.Content)
	}
	return n
}
