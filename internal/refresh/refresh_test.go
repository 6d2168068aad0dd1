package refresh

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingRefresher struct {
	calls atomic.Int32
	err   error
}

func (c *countingRefresher) Refresh(ctx context.Context) error {
	c.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("refresh context has no deadline")
	}
	return c.err
}

func TestNewRejectsBadSchedule(t *testing.T) {
	if _, err := New("every tuesday", &countingRefresher{}, 0, time.UTC); err == nil {
		t.Error("expected parse error")
	}
	if _, err := New(DefaultSpec, nil, 0, time.UTC); err == nil {
		t.Error("expected error for nil target")
	}
}

func TestRunCallsRefreshWithTimeout(t *testing.T) {
	target := &countingRefresher{}
	s, err := New("", target, time.Second, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if s.spec != DefaultSpec {
		t.Errorf("spec = %q, want default", s.spec)
	}

	s.run()
	target.err = errors.New("down")
	s.run()

	if got := target.calls.Load(); got != 2 {
		t.Errorf("Refresh calls = %d, want 2", got)
	}
}

func TestStartAndStop(t *testing.T) {
	s, err := New("@every 1h", &countingRefresher{}, 0, time.UTC)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := s.Start(ctx)

	next := s.Next()
	if next.IsZero() || next.Before(time.Now()) {
		t.Errorf("Next = %v, want a future time", next)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
