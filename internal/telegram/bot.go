package telegram

import (
	"context"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"llm-assistant/internal/content"
	"llm-assistant/internal/metrics"
	"llm-assistant/internal/storage"
)

const defaultTypingInterval = 3 * time.Second

// Responder answers free text.
type Responder interface {
	HandleUserText(ctx context.Context, userID int64, text string) string
}

// EventRecorder is the part of the event log the bot writes to directly.
type EventRecorder interface {
	Append(ctx context.Context, userID int64, kind storage.Kind, detail string) error
	SaveContact(ctx context.Context, userID int64, name, contact string) error
}

type Options struct {
	FAQ            content.FAQ
	Services       []content.Service
	TypingInterval time.Duration
}

type stage int

const (
	stageIdle stage = iota
	stageAskName
	stageAskContact
	stageFAQ
)

type userState struct {
	stage stage
	name  string
}

// stateKey scopes dialog state to a user within one chat, so every state is
// only touched under that chat's lock.
type stateKey struct {
	chatID int64
	userID int64
}

type Bot struct {
	api       *tgbotapi.BotAPI
	s         sender
	assistant Responder
	events    EventRecorder
	faq       content.FAQ
	services  []content.Service
	typing    time.Duration
	log       zerolog.Logger

	mu     sync.Mutex
	states map[stateKey]*userState
	chats  map[int64]*sync.Mutex
	wg     sync.WaitGroup
}

func New(botToken string, assistant Responder, events EventRecorder, opts Options, log zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}
	log.Info().Str("username", api.Self.UserName).Msg("authorized on telegram")
	b := newBot(botAPISender{api: api}, assistant, events, opts, log)
	b.api = api
	return b, nil
}

func newBot(s sender, assistant Responder, events EventRecorder, opts Options, log zerolog.Logger) *Bot {
	if opts.TypingInterval <= 0 {
		opts.TypingInterval = defaultTypingInterval
	}
	return &Bot{
		s:         s,
		assistant: assistant,
		events:    events,
		faq:       opts.FAQ,
		services:  opts.Services,
		typing:    opts.TypingInterval,
		log:       log,
		states:    make(map[stateKey]*userState),
		chats:     make(map[int64]*sync.Mutex),
	}
}

// Start long-polls for updates until ctx is cancelled, then waits for
// in-flight handlers. Updates for one chat are handled one at a time;
// different chats proceed concurrently.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			b.dispatch(ctx, update.Message)
		}
	}
}

// dispatch handles msg on its own goroutine under the chat lock. The handler
// keeps ctx values but not its cancellation, so replies already in flight at
// shutdown are still sent and recorded before Start returns.
func (b *Bot) dispatch(ctx context.Context, msg *tgbotapi.Message) {
	ctx = context.WithoutCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		lock := b.chatLock(msg.Chat.ID)
		lock.Lock()
		defer lock.Unlock()
		b.handleIncomingMessage(ctx, msg)
	}()
}

// SendText delivers a standalone message, e.g. the admin report.
func (b *Bot) SendText(chatID int64, text string) error {
	for _, part := range splitMessage(text) {
		if _, err := b.s.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) chatLock(chatID int64) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.chats[chatID]
	if !ok {
		l = &sync.Mutex{}
		b.chats[chatID] = l
	}
	return l
}

func (b *Bot) state(chatID, userID int64) *userState {
	key := stateKey{chatID: chatID, userID: userID}
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.states[key]
	if !ok {
		st = &userState{}
		b.states[key] = st
	}
	return st
}

func (b *Bot) count(kind string) {
	metrics.MessagesHandledTotal.WithLabelValues(kind).Inc()
}
