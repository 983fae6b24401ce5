package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/campusmatch/engine/internal/app"
)

// Scheduler runs the periodic sweeps on UTC cron schedules.
type Scheduler struct {
	cron *cron.Cron
	log  *slog.Logger
}

func NewScheduler(appCtx *app.AppContext) (*Scheduler, error) {
	log := appCtx.Logger.With("component", "jobs")
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger{log}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{log})),
	)

	warner := NewStreakWarner(appCtx)
	spec := appCtx.Config.Jobs.StreakWarningCron
	if _, err := c.AddFunc(spec, func() {
		if _, err := warner.Run(context.Background()); err != nil {
			log.Error("streak warning sweep failed", "err", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule streak warning %q: %w", spec, err)
	}

	return &Scheduler{cron: c, log: log}, nil
}

// Run starts the schedule and blocks until ctx is done, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.log.Info("scheduler started", "entries", len(s.cron.Entries()))
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
	return nil
}

// cronLogger routes cron's own logging to slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "err", err)...)
}
