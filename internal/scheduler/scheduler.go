package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultSchedule: ежедневно в 21:00 UTC
const DefaultSchedule = "0 21 * * *"

// Scheduler управляет запланированными задачами
type Scheduler struct {
	cron       *cron.Cron
	ctx        context.Context
	cancel     context.CancelFunc
	schedule   string
	reportFunc func(ctx context.Context) error
	log        zerolog.Logger
}

// New создает новый планировщик; пустое расписание означает DefaultSchedule
func New(schedule string, log zerolog.Logger) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		ctx:      ctx,
		cancel:   cancel,
		schedule: schedule,
		log:      log,
	}
}

// SetReportFunction устанавливает функцию для генерации отчетов
func (s *Scheduler) SetReportFunction(f func(ctx context.Context) error) {
	s.reportFunc = f
}

// Start запускает планировщик
func (s *Scheduler) Start() error {
	if s.reportFunc == nil {
		s.log.Warn().Msg("report function not set, scheduler will not generate reports")
		return nil
	}
	if _, err := s.cron.AddFunc(s.schedule, s.runReport); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info().Str("schedule", s.schedule).Msg("scheduler started")
	return nil
}

// RunNow выполняет отчет вне расписания
func (s *Scheduler) RunNow() error {
	if s.reportFunc == nil {
		return errors.New("report function not set")
	}
	return s.reportFunc(s.ctx)
}

func (s *Scheduler) runReport() {
	s.log.Info().Msg("triggered daily report generation")
	if err := s.reportFunc(s.ctx); err != nil {
		s.log.Error().Err(err).Msg("daily report generation failed")
	}
}

// Stop останавливает планировщик
func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.log.Info().Msg("scheduler stopped")
}

// IsRunning проверяет, запущен ли планировщик
func (s *Scheduler) IsRunning() bool {
	return s.cron != nil && len(s.cron.Entries()) > 0
}
