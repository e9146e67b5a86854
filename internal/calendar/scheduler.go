package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "weekcal/internal/log"
)

// Scheduler runs Service.Refresh on the configured cron spec.
type Scheduler struct {
	cron *cron.Cron
}

// cronLogger routes cron's own messages into the process log. Its chatter
// goes to debug; errors, including recovered panics, stay visible.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}

// jobWrappers recovers panics and skips a run while the previous one is busy.
func jobWrappers(l cron.Logger) []cron.JobWrapper {
	return []cron.JobWrapper{cron.Recover(l), cron.SkipIfStillRunning(l)}
}

// NewScheduler validates spec and prepares the cron runner in the service's
// display timezone. Overlapping runs are skipped.
func NewScheduler(ctx context.Context, svc *Service, spec string) (*Scheduler, error) {
	c := cron.New(
		cron.WithLocation(svc.Location()),
		cron.WithLogger(cronLogger{}),
		cron.WithChain(jobWrappers(cronLogger{})...),
	)

	_, err := c.AddFunc(spec, func() {
		refreshCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		if _, err := svc.Refresh(refreshCtx); err != nil {
			appLog.Error("scheduled refresh failed", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("calendar: invalid refresh schedule %q: %w", spec, err)
	}

	return &Scheduler{cron: c}, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		appLog.Info("refresh scheduled", "next", e.Next.Format(time.RFC3339))
	}
}

// Stop halts the scheduler and waits for a running refresh to finish or ctx
// to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
