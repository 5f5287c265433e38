// Package scheduler запускает периодические задачи панели по cron-расписанию.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Jobs описывает задачи, выполняемые по расписанию.
type Jobs interface {
	ReconcileAll(ctx context.Context) (int, error)
	ResubmitPendingOrders(ctx context.Context) (int, error)
}

// Config задаёт расписания задач. Пустое расписание отключает задачу.
type Config struct {
	ReconcileSchedule string
	ResubmitSchedule  string
}

// Scheduler управляет cron-задачами.
type Scheduler struct {
	cron   *cron.Cron
	jobs   Jobs
	cfg    Config
	logger *zap.Logger
}

// New создаёт планировщик. Паника в задаче перехватывается и пишется в лог.
func New(jobs Jobs, cfg Config, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger.Named("cron")))
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cronLogger))),
		jobs:   jobs,
		cfg:    cfg,
		logger: logger,
	}
}

// Start регистрирует задачи и запускает планировщик. Задачи получают ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	tasks := []struct {
		name     string
		schedule string
		run      func(context.Context) (int, error)
	}{
		{"ledger reconciliation", s.cfg.ReconcileSchedule, s.jobs.ReconcileAll},
		{"pending orders resubmission", s.cfg.ResubmitSchedule, s.jobs.ResubmitPendingOrders},
	}

	for _, t := range tasks {
		if t.schedule == "" {
			s.logger.Info("job disabled", zap.String("job", t.name))
			continue
		}
		if _, err := s.cron.AddFunc(t.schedule, s.wrap(ctx, t.name, t.run)); err != nil {
			return fmt.Errorf("schedule %s: %w", t.name, err)
		}
		s.logger.Info("job scheduled", zap.String("job", t.name), zap.String("schedule", t.schedule))
	}

	s.cron.Start()
	return nil
}

func (s *Scheduler) wrap(ctx context.Context, name string, run func(context.Context) (int, error)) func() {
	return func() {
		if ctx.Err() != nil {
			return
		}
		n, err := run(ctx)
		if err != nil {
			s.logger.Error("job failed", zap.String("job", name), zap.Error(err))
			return
		}
		s.logger.Debug("job finished", zap.String("job", name), zap.Int("affected", n))
	}
}

// Stop останавливает планировщик. Возвращённый контекст завершается, когда закончатся запущенные задачи.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
