package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/yahiasaidi031/PFE/internal/store"
)

const janitorTimeout = time.Minute

// OutboxJanitor deletes published outbox rows past their retention on a cron schedule.
type OutboxJanitor struct {
	cron      *cron.Cron
	repo      store.OutboxRepository
	schedule  string
	retention time.Duration
	logger    zerolog.Logger
}

func NewOutboxJanitor(repo store.OutboxRepository, schedule string, retention time.Duration, logger zerolog.Logger) *OutboxJanitor {
	log := logger.With().Str("component", "outbox_janitor").Logger()
	c := cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(&log))))
	return &OutboxJanitor{
		cron:      c,
		repo:      repo,
		schedule:  schedule,
		retention: retention,
		logger:    log,
	}
}

// Start registers the purge job and starts the scheduler.
func (j *OutboxJanitor) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, j.Purge); err != nil {
		return fmt.Errorf("schedule outbox purge %q: %w", j.schedule, err)
	}
	j.logger.Info().Str("schedule", j.schedule).Dur("retention", j.retention).Msg("outbox janitor started")
	j.cron.Start()
	return nil
}

// Stop halts the scheduler; the returned context is done once a running purge finishes.
func (j *OutboxJanitor) Stop() context.Context {
	return j.cron.Stop()
}

func (j *OutboxJanitor) Purge() {
	ctx, cancel := context.WithTimeout(context.Background(), janitorTimeout)
	defer cancel()

	removed, err := j.repo.PurgePublishedOutbox(ctx, j.retention)
	if err != nil {
		j.logger.Error().Err(err).Msg("outbox purge failed")
		return
	}
	if removed > 0 {
		j.logger.Info().Int64("removed", removed).Msg("purged published outbox messages")
	}
}
