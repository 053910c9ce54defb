package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/cadencehq/cadence/internal/config"
)

// Agent runs the drivers on an internal cron so the binary can act as its
// own trigger. Each tick goes through the same ledger and counter path as
// an external one-shot invocation, so mixing the two modes is safe.
type Agent struct {
	cfg        *config.Config
	logger     *zap.Logger
	driver     *ScheduleDriver
	engagement *EngagementWorker
	network    *NetworkWorker
	cron       *cron.Cron
}

func NewAgent(
	cfg *config.Config,
	logger *zap.Logger,
	driver *ScheduleDriver,
	engagement *EngagementWorker,
	network *NetworkWorker,
) *Agent {
	return &Agent{
		cfg:        cfg,
		logger:     logger,
		driver:     driver,
		engagement: engagement,
		network:    network,
		cron:       cron.New(cron.WithLocation(time.UTC)),
	}
}

// Start registers every schedule slot plus the engagement interval and
// kicks off the cron loop. Jobs run until Stop or context cancellation.
func (a *Agent) Start(ctx context.Context, schedule *Schedule) error {
	for _, entry := range schedule.Entries() {
		spec := fmt.Sprintf("%d %d * * %d", entry.Minute, entry.Hour, int(entry.Weekday))
		slot := entry.SlotKey()
		_, err := a.cron.AddFunc(spec, func() {
			a.logger.Info("Cron tick for schedule slot", zap.String("slot", slot))
			if _, err := a.driver.Run(ctx, time.Now()); err != nil {
				a.logger.Error("Scheduled run failed", zap.String("slot", slot), zap.Error(err))
			}
		})
		if err != nil {
			return fmt.Errorf("failed to register slot %s: %w", slot, err)
		}
		a.logger.Info("Registered schedule slot",
			zap.String("slot", slot),
			zap.String("cron", spec))
	}

	if a.engagement != nil && a.cfg.Engagement.Interval != "" {
		spec := "@every " + a.cfg.Engagement.Interval
		_, err := a.cron.AddFunc(spec, func() {
			a.logger.Info("Cron tick for engagement cycle")
			if _, err := a.engagement.Cycle(ctx, time.Now()); err != nil {
				a.logger.Error("Engagement cycle failed", zap.Error(err))
			}
		})
		if err != nil {
			return fmt.Errorf("failed to register engagement interval: %w", err)
		}
		a.logger.Info("Registered engagement cycle", zap.String("cron", spec))
	}

	if a.network != nil && len(a.cfg.Network.Prospects) > 0 {
		// One connection batch per day, offset from typical posting hours
		_, err := a.cron.AddFunc("30 11 * * *", func() {
			a.logger.Info("Cron tick for connection batch")
			if _, err := a.network.RunBatch(ctx, time.Now()); err != nil {
				a.logger.Error("Connection batch failed", zap.Error(err))
			}
		})
		if err != nil {
			return fmt.Errorf("failed to register connection batch: %w", err)
		}
	}

	a.logger.Info("Starting agent", zap.Int("jobs", len(a.cron.Entries())))
	a.cron.Start()

	go func() {
		<-ctx.Done()
		a.logger.Info("Agent context cancelled")
		a.Stop()
	}()
	return nil
}

// Stop halts the cron loop and waits for in-flight jobs to finish.
func (a *Agent) Stop() {
	stopCtx := a.cron.Stop()
	<-stopCtx.Done()
	a.logger.Info("Agent shutdown completed")
}
