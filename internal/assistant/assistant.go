// Package assistant answers free-text chat messages with the language model.
package assistant

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"llm-assistant/internal/llm"
	"llm-assistant/internal/logging"
	"llm-assistant/internal/metrics"
	"llm-assistant/internal/storage"
)

// MsgEmptyReply replaces a model answer that is empty after cleanup.
const MsgEmptyReply = "Извините, не удалось сформировать ответ. Попробуйте переформулировать вопрос."

const defaultCallTimeout = 90 * time.Second

// EventLog is the write side of the event log.
type EventLog interface {
	Append(ctx context.Context, userID int64, kind storage.Kind, detail string) error
}

// PromptBuilder assembles the model input for one message.
type PromptBuilder interface {
	Build(ctx context.Context, userID int64, text string) []llm.Message
}

type Service struct {
	events      EventLog
	prompts     PromptBuilder
	model       llm.Client
	callTimeout time.Duration
	log         zerolog.Logger
}

func New(events EventLog, prompts PromptBuilder, model llm.Client, callTimeout time.Duration, log zerolog.Logger) *Service {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &Service{events: events, prompts: prompts, model: model, callTimeout: callTimeout, log: log}
}

// HandleUserText records the message, asks the model and records the reply.
// It always returns non-empty text: failures become user-facing apologies.
func (s *Service) HandleUserText(ctx context.Context, userID int64, text string) string {
	log := s.log.With().
		Int64(logging.FieldUserID, userID).
		Str(logging.FieldRequestID, uuid.NewString()).
		Logger()
	text = strings.TrimSpace(text)

	if err := s.events.Append(ctx, userID, storage.KindUserMessage, text); err != nil {
		metrics.EventLogErrorsTotal.WithLabelValues("append").Inc()
		log.Error().Err(err).Str(logging.FieldEventType, "storage_error").Msg("failed to record user message")
	}
	log.Info().Str(logging.FieldEventType, "user_message").Str("text", text).Msg("user message")

	messages := s.prompts.Build(ctx, userID, text)
	log.Debug().Str(logging.FieldEventType, "llm_context").Int("messages", len(messages)).Msg("calling llm")

	reply := s.generate(ctx, log, messages)

	if err := s.events.Append(ctx, userID, storage.KindAssistantReply, reply); err != nil {
		metrics.EventLogErrorsTotal.WithLabelValues("append").Inc()
		log.Error().Err(err).Str(logging.FieldEventType, "storage_error").Msg("failed to record assistant reply")
	}
	log.Info().Str(logging.FieldEventType, "assistant_reply").Str("text", reply).Msg("assistant reply")
	return reply
}

func (s *Service) generate(ctx context.Context, log zerolog.Logger, messages []llm.Message) string {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	callCtx = log.WithContext(callCtx)

	resp, err := s.model.Generate(callCtx, messages)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			log.Error().Err(err).Str(logging.FieldEventType, "llm_error").Msg("llm timeout")
			return llm.MsgTimeout
		}
		log.Error().Err(err).Str(logging.FieldEventType, "llm_error").Msg("llm error")
		return llm.UserMessage(err)
	}

	log.Debug().Str(logging.FieldEventType, "assistant_reply").Str("raw", resp.Content).Msg("llm responded")
	reply := llm.StripThinking(resp.Content)
	if reply == "" {
		return MsgEmptyReply
	}
	return reply
}
