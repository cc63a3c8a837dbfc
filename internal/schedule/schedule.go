package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"concertcal/internal/calendar"
	appLog "concertcal/internal/log"
)

// Refresher refetches the displayed month; screen.Screen implements it.
type Refresher interface {
	Refresh() calendar.MonthKey
	WaitReady(ctx context.Context) error
}

// SnapshotFunc re-renders the PNG preview.
type SnapshotFunc func(ctx context.Context) error

// Scheduler runs the periodic refresh on a cron spec.
type Scheduler struct {
	spec     string
	cron     *cron.Cron
	screen   Refresher
	snapshot SnapshotFunc
}

// New validates spec (standard 5-field cron syntax or descriptors such
// as "@every 10m") and prepares the job. snapshot may be nil.
func New(spec string, screen Refresher, snapshot SnapshotFunc) (*Scheduler, error) {
	if screen == nil {
		return nil, errors.New("schedule: refresher is nil")
	}
	s := &Scheduler{
		spec:     spec,
		screen:   screen,
		snapshot: snapshot,
	}
	logger := cronLogger{}
	s.cron = cron.New(cron.WithChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	))
	return s, nil
}

// Start registers the job and starts the cron runner. It stops when ctx is
// cancelled; the returned channel closes once a running job has finished.
func (s *Scheduler) Start(ctx context.Context) (<-chan struct{}, error) {
	if _, err := s.cron.AddFunc(s.spec, func() { _ = s.RunOnce(ctx) }); err != nil {
		return nil, fmt.Errorf("schedule: invalid spec %q: %w", s.spec, err)
	}
	s.cron.Start()

	entries := s.cron.Entries()
	if len(entries) > 0 {
		appLog.Info("schedule: started", "spec", s.spec, "next", entries[0].Next.Format(time.RFC3339))
	}

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
		appLog.Info("schedule: stopped")
		close(done)
	}()
	return done, nil
}

// RunOnce refetches the displayed month, waits for it to be applied and
// then refreshes the snapshot. The snapshot is skipped while the screen
// needs a login.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	started := time.Now()
	key := s.screen.Refresh()
	if err := s.screen.WaitReady(ctx); err != nil {
		appLog.Warn("schedule: month not ready, snapshot skipped", "month", key.String(), "err", err)
		return err
	}
	appLog.Info("schedule: month refreshed", "month", key.String(), "took", time.Since(started))

	if s.snapshot == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.snapshot(ctx); err != nil {
		appLog.Error("schedule: snapshot failed", err)
		return err
	}
	return nil
}

// ValidateSpec reports whether spec is a usable cron schedule.
func ValidateSpec(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("schedule: invalid spec %q: %w", spec, err)
	}
	return nil
}

// cronLogger forwards cron's internal logging to the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
