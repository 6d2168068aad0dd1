package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "eventfinder/internal/log"
)

// DefaultSpec refreshes every five minutes, matching the cache window.
const DefaultSpec = "*/5 * * * *"

// Refresher is satisfied by *cache.Cache.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Scheduler runs Refresh on a cron schedule so readers rarely pay for a
// load. A run that is still in progress when the next tick fires causes
// that tick to be skipped.
type Scheduler struct {
	cron    *cron.Cron
	target  Refresher
	timeout time.Duration
	spec    string

	ctx context.Context
}

// New validates spec (standard five-field cron or a descriptor such as
// "@every 10m") and prepares a scheduler. Nothing runs until Start.
func New(spec string, target Refresher, timeout time.Duration, loc *time.Location) (*Scheduler, error) {
	if target == nil {
		return nil, errors.New("refresh target is nil")
	}
	if spec == "" {
		spec = DefaultSpec
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse refresh schedule %q: %w", spec, err)
	}
	if loc == nil {
		loc = time.Local
	}
	if timeout <= 0 {
		timeout = time.Minute
	}

	logger := cronLogger{}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		target:  target,
		timeout: timeout,
		spec:    spec,
		ctx:     context.Background(),
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("schedule refresh: %w", err)
	}
	return s, nil
}

// Start begins the schedule. It stops when ctx is cancelled; the returned
// channel closes once a running refresh (if any) has finished.
func (s *Scheduler) Start(ctx context.Context) <-chan struct{} {
	s.ctx = ctx
	s.cron.Start()
	appLog.Info("refresh scheduler started", "schedule", s.spec, "next", s.Next())

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		<-s.cron.Stop().Done()
		appLog.Info("refresh scheduler stopped")
	}()
	return done
}

// Next returns the next scheduled run, or zero before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	if err := s.target.Refresh(ctx); err != nil {
		// The cache already logged the load error and kept its entry.
		appLog.Warn("scheduled refresh failed", "took", time.Since(start))
		return
	}
	appLog.Debug("scheduled refresh done", "took", time.Since(start))
}

// cronLogger routes cron's own messages through internal/log.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}
