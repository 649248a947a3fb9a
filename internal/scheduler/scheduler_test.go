package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeRefresher struct {
	calls chan struct{}
	err   error
}

func (f *fakeRefresher) Refresh(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("expected a deadline")
	}
	f.calls <- struct{}{}
	return f.err
}

func TestNewRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	if _, err := New("not a schedule", time.UTC, &fakeRefresher{}, 0); err == nil {
		t.Fatalf("expected error for invalid schedule")
	}
}

func TestRunRefreshesOnSchedule(t *testing.T) {
	t.Parallel()

	target := &fakeRefresher{calls: make(chan struct{}, 4), err: errors.New("backend down")}
	s, err := New("@every 1s", time.UTC, target, time.Second)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-target.calls:
	case <-time.After(3 * time.Second):
		t.Fatalf("expected a scheduled refresh")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("expected Run to return after cancel")
	}
	if s.Runs() < 1 {
		t.Fatalf("expected at least one run, got %d", s.Runs())
	}
}
