package telegram

import (
	"context"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"llm-assistant/internal/logging"
)

// Telegram rejects messages longer than this many characters.
const maxMessageLen = 4096

// startTyping sends the typing action now and then every interval until
// the returned stop func is called. stop blocks until the loop has exited.
func (b *Bot) startTyping(ctx context.Context, chatID, userID int64) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(b.typing)
		defer ticker.Stop()
		for {
			if _, err := b.s.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
				logging.ForUser(b.log, userID, "chat_action").Debug().Err(err).Msg("chat action error")
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// sendReply sends text to the chat; if that fails it retries once as a
// reply to the original message.
func (b *Bot) sendReply(msg *tgbotapi.Message, text string) {
	for _, part := range splitMessage(text) {
		_, err := b.s.Send(tgbotapi.NewMessage(msg.Chat.ID, part))
		if err == nil {
			continue
		}
		fallback := tgbotapi.NewMessage(msg.Chat.ID, part)
		fallback.ReplyToMessageID = msg.MessageID
		if _, ferr := b.s.Send(fallback); ferr != nil {
			logging.ForUser(b.log, msg.From.ID, "telegram_error").Error().Err(err).AnErr("fallback_error", ferr).Msg("telegram send error")
			return
		}
		logging.ForUser(b.log, msg.From.ID, "telegram_send").Info().Msg("message sent via reply fallback")
	}
}

// splitMessage cuts text into chunks Telegram accepts, preferring line
// breaks as cut points.
func splitMessage(text string) []string {
	if utf8.RuneCountInString(text) <= maxMessageLen {
		return []string{text}
	}
	var parts []string
	runes := []rune(text)
	for len(runes) > maxMessageLen {
		cut := maxMessageLen
		for i := maxMessageLen; i > maxMessageLen/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
