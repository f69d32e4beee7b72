package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"llm-assistant/internal/analytics"
	"llm-assistant/internal/assistant"
	"llm-assistant/internal/config"
	"llm-assistant/internal/content"
	"llm-assistant/internal/history"
	"llm-assistant/internal/keys"
	"llm-assistant/internal/llm"
	"llm-assistant/internal/logging"
	"llm-assistant/internal/metrics"
	"llm-assistant/internal/scheduler"
	"llm-assistant/internal/storage"
	"llm-assistant/internal/telegram"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()

	logger, closeLog, err := logging.New(logging.Options{
		Level:    cfg.LogLevel,
		Format:   cfg.LogFormat,
		FilePath: cfg.LogFilePath,
	})
	if err != nil {
		log.Fatalf("failed to init logging: %v", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, string(cfg.EventLogDriver), cfg.EventLogPath, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", string(cfg.EventLogDriver)).Msg("failed to open event log")
	}
	defer store.Close()

	catalog, err := loadCatalog(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.ModelsFilePath).Msg("failed to load model catalog")
	}
	if catalog.Len() == 0 {
		logger.Warn().Str("path", cfg.ModelsFilePath).Msg("model catalog is empty, every request will fail")
	}

	invoker := llm.NewInvoker(catalog, llm.NewFactory(), llm.Options{
		Attempts:       cfg.RetryAttempts,
		InitialDelay:   cfg.RetryInitialDelay,
		RequestTimeout: cfg.RequestTimeout,
		MaxTokens:      cfg.MaxTokens,
		InsecureTLS:    cfg.InsecureTLS,
	}, logger)

	assembler := history.NewAssembler(store, history.Config{
		MaxTurns:           cfg.MaxContextMessages,
		MaxChars:           cfg.MaxContextLength,
		LongTermEnabled:    cfg.LongTermMemoryEnabled,
		MaxLongTermResults: cfg.MaxLongTermResults,
		LongTermChars:      cfg.LongTermMemoryLength,
	}, logger)

	svc := assistant.New(store, assembler, invoker, cfg.CallTimeout, logger)

	faq, err := content.LoadFAQ(cfg.FAQFilePath)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.FAQFilePath).Msg("failed to load FAQ")
	}
	services, err := content.LoadServices(cfg.ServicesFilePath)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.ServicesFilePath).Msg("failed to load services catalog")
	}

	bot, err := telegram.New(cfg.TelegramBotToken, svc, store, telegram.Options{
		FAQ:            faq,
		Services:       services,
		TypingInterval: cfg.TypingInterval,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create bot")
	}

	if cfg.AdminUserID != 0 {
		sched := scheduler.New(cfg.DailyReportSchedule, logger)
		sched.SetReportFunction(func(ctx context.Context) error {
			stats, err := analytics.DailyReport(ctx, store, time.Now())
			if err != nil {
				return err
			}
			return bot.SendText(cfg.AdminUserID, stats.GenerateReportSummary())
		})
		if err := sched.Start(); err != nil {
			logger.Error().Err(err).Msg("failed to start scheduler")
		} else {
			defer sched.Stop()
		}
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	logger.Info().
		Str("model", catalog.DefaultName()).
		Int("models", catalog.Len()).
		Str("driver", string(cfg.EventLogDriver)).
		Msg("assistant started")
	bot.Start(ctx)
	logger.Info().Msg("assistant stopped")
}

func loadCatalog(cfg *config.Config) (*llm.Catalog, error) {
	var dec keys.Decrypter
	if cfg.MasterKey != "" {
		master, err := keys.ParseMasterKey(cfg.MasterKey)
		if err != nil {
			return nil, err
		}
		c, err := keys.New(cfg.KeyCipher, master)
		if err != nil {
			return nil, err
		}
		dec = c
	}
	catalog, err := llm.LoadCatalog(cfg.ModelsFilePath, cfg.DefaultModel, dec)
	if errors.Is(err, keys.ErrMissingMasterKey) {
		return nil, errors.New("catalog holds encrypted keys but LLM_MODEL_DECRYPT_KEY is not set")
	}
	return catalog, err
}
