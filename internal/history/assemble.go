package history

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"llm-assistant/internal/llm"
	"llm-assistant/internal/logging"
)

// SystemDirective opens every prompt.
const SystemDirective = "Ты — умный и внимательный собеседник, ведущий живой диалог с пользователем в формате чата. " +
	"Ниже приведена история вашей переписки: это последовательность сообщений, где роль 'user' — это пользователь, а 'assistant' — ты, ассистент. " +
	"Ты обладаешь памятью: можешь ссылаться на предыдущие сообщения, вспоминать детали прошлых обсуждений, поддерживать контекст и нить разговора. " +
	"Если пользователь спрашивает о своих или твоих прошлых репликах, ищи их в истории ниже и используй для ответа. " +
	"Старайся быть последовательным, не повторяйся, не теряй тему, реагируй на намёки и уточнения пользователя. " +
	"Веди себя естественно, дружелюбно и профессионально, как человек, который действительно помнит, о чём шла речь ранее. " +
	"Если в истории есть незавершённые вопросы или темы — можешь предложить к ним вернуться. " +
	"Всегда отвечай на русском языке, если не указано иное."

type Config struct {
	MaxTurns           int
	MaxChars           int
	LongTermEnabled    bool
	MaxLongTermResults int
	LongTermChars      int
}

// Assembler produces the exact message list sent to the model.
type Assembler struct {
	window *Window
	recall *Recall
	log    zerolog.Logger
}

func NewAssembler(src EventSource, cfg Config, log zerolog.Logger) *Assembler {
	return &Assembler{
		window: NewWindow(src, cfg.MaxTurns, cfg.MaxChars, log),
		recall: NewRecall(src, cfg.LongTermEnabled, cfg.MaxLongTermResults, cfg.LongTermChars, log),
		log:    log,
	}
}

// Build returns [directive] + recalled memories + window + [text as user].
func (a *Assembler) Build(ctx context.Context, userID int64, text string) []llm.Message {
	var (
		wg       sync.WaitGroup
		window   []llm.Message
		memories []llm.Message
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		window = a.window.Build(ctx, userID)
	}()
	go func() {
		defer wg.Done()
		memories = a.recall.Search(ctx, userID, text)
	}()
	wg.Wait()

	if len(memories) > 0 {
		logging.ForUser(a.log, userID, "long_term_memory_used").Info().
			Int("memories", len(memories)).Msg("added relevant conversations from long-term memory")
	}

	out := make([]llm.Message, 0, len(memories)+len(window)+2)
	out = append(out, llm.Message{Role: llm.RoleSystem, Content: SystemDirective})
	out = append(out, memories...)
	out = append(out, window...)
	out = append(out, llm.Message{Role: llm.RoleUser, Content: text})

	logging.ForUser(a.log, userID, "llm_messages_built").Debug().Int("messages", len(out)).Msg("built messages for llm")
	return out
}
