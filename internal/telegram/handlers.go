package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"llm-assistant/internal/content"
	"llm-assistant/internal/logging"
	"llm-assistant/internal/metrics"
	"llm-assistant/internal/storage"
)

const (
	msgGreeting       = "Здравствуйте! Я LLM-ассистент. Как вас зовут?"
	msgAskContact     = "Спасибо, %s! Пожалуйста, отправьте ваш телефон или ник в Telegram."
	msgContactSaved   = "Спасибо, %s! Мы свяжемся с вами при необходимости."
	msgFAQNotFound    = "Вопрос не найден. Пожалуйста, выберите из списка."
	msgFAQUnavailable = "Список вопросов временно недоступен."
	msgUnknownCommand = "Извините, команда не распознана. Пожалуйста, используйте /start, /faq или /services."
	unknownName       = "Неизвестно"
)

func (b *Bot) handleIncomingMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		b.count("command")
		b.handleCommand(ctx, msg)
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	st := b.state(msg.Chat.ID, msg.From.ID)
	switch st.stage {
	case stageAskName:
		b.count("dialog")
		b.handleName(ctx, msg, st, text)
	case stageAskContact:
		b.count("dialog")
		b.handleContact(ctx, msg, st, text)
	case stageFAQ:
		b.count("faq")
		b.handleFAQAnswer(ctx, msg, st, text)
	default:
		b.count("text")
		b.handleText(ctx, msg)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	st := b.state(msg.Chat.ID, userID)
	switch msg.Command() {
	case "start":
		b.record(ctx, userID, storage.KindUserMessage, "/start")
		st.stage, st.name = stageAskName, ""
		b.replyAndRecord(ctx, msg, msgGreeting)
	case "faq":
		b.record(ctx, userID, storage.KindUserMessage, "/faq")
		if len(b.faq) == 0 {
			st.stage = stageIdle
			b.replyAndRecord(ctx, msg, msgFAQUnavailable)
			return
		}
		st.stage = stageFAQ
		b.record(ctx, userID, storage.KindFAQListShown, "")
		logging.ForUser(b.log, userID, "faq").Info().Msg("faq_list_shown")
		b.replyAndRecord(ctx, msg, b.faq.List())
	case "services":
		st.stage = stageIdle
		text := content.FormatServices(b.services)
		if len(b.services) == 0 {
			logging.ForUser(b.log, userID, "services").Warn().Msg(text)
		} else {
			b.record(ctx, userID, storage.KindServicesListShown, "")
			logging.ForUser(b.log, userID, "services").Info().Msg("services_list_shown")
		}
		b.replyAndRecord(ctx, msg, text)
	default:
		logging.ForUser(b.log, userID, "unknown_command").Warn().Str("text", msg.Text).Msg("unknown command")
		b.sendReply(msg, msgUnknownCommand)
	}
}

func (b *Bot) handleName(ctx context.Context, msg *tgbotapi.Message, st *userState, name string) {
	b.record(ctx, msg.From.ID, storage.KindUserMessage, name)
	st.name = name
	st.stage = stageAskContact
	b.replyAndRecord(ctx, msg, fmt.Sprintf(msgAskContact, name))
}

func (b *Bot) handleContact(ctx context.Context, msg *tgbotapi.Message, st *userState, contact string) {
	userID := msg.From.ID
	name := st.name
	if name == "" {
		name = unknownName
	}
	st.stage, st.name = stageIdle, ""

	b.record(ctx, userID, storage.KindUserMessage, contact)
	if err := b.events.SaveContact(ctx, userID, name, contact); err != nil {
		metrics.EventLogErrorsTotal.WithLabelValues("save_contact").Inc()
		logging.ForUser(b.log, userID, "storage_error").Error().Err(err).Msg("failed to save contact")
	}
	detail := storage.FormatContactDetail(name, contact)
	b.record(ctx, userID, storage.KindContactSubmitted, detail)
	logging.ForUser(b.log, userID, "contact_submitted").Info().Msg(detail)
	b.replyAndRecord(ctx, msg, fmt.Sprintf(msgContactSaved, name))
}

// handleFAQAnswer leaves FAQ mode once a question is answered; a miss keeps
// the user in FAQ mode so they can pick again.
func (b *Bot) handleFAQAnswer(ctx context.Context, msg *tgbotapi.Message, st *userState, text string) {
	userID := msg.From.ID
	b.record(ctx, userID, storage.KindUserMessage, text)
	item, ok := b.faq.Find(text)
	if !ok {
		b.record(ctx, userID, storage.KindFAQNotFound, "question="+text)
		logging.ForUser(b.log, userID, "faq").Warn().Str("question", text).Msg("faq_not_found")
		b.replyAndRecord(ctx, msg, msgFAQNotFound)
		return
	}
	st.stage = stageIdle
	b.record(ctx, userID, storage.KindFAQAnswered, "question="+text)
	logging.ForUser(b.log, userID, "faq").Info().Str("question", text).Msg("faq_answered")
	b.replyAndRecord(ctx, msg, item.Answer)
}

// handleText shows a typing indicator while the assistant works and stops
// it before the reply goes out.
func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	stop := b.startTyping(ctx, msg.Chat.ID, msg.From.ID)
	reply := b.assistant.HandleUserText(ctx, msg.From.ID, msg.Text)
	stop()
	b.sendReply(msg, reply)
}

func (b *Bot) record(ctx context.Context, userID int64, kind storage.Kind, detail string) {
	if err := b.events.Append(ctx, userID, kind, detail); err != nil {
		metrics.EventLogErrorsTotal.WithLabelValues("append").Inc()
		logging.ForUser(b.log, userID, "storage_error").Error().Err(err).Str("kind", string(kind)).Msg("failed to record event")
	}
}

func (b *Bot) replyAndRecord(ctx context.Context, msg *tgbotapi.Message, text string) {
	b.sendReply(msg, text)
	b.record(ctx, msg.From.ID, storage.KindAssistantReply, text)
}
