package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ostraka/arena/internal/retry"
)

func fastPolicy() retry.Policy {
	return retry.Policy{Attempts: 3, Base: time.Millisecond}
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	sentinel := errors.New("boom")
	err := fastPolicy().Do(context.Background(), func() error {
		calls++
		return sentinel
	})
	if err == nil {
		t.Fatal("expected error after exhausted attempts")
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("cause not wrapped: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
}

func TestPermanentStopsRetrying(t *testing.T) {
	calls := 0
	sentinel := errors.New("constraint violated")
	err := fastPolicy().Do(context.Background(), func() error {
		calls++
		return retry.Permanent(sentinel)
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("got %v, want the permanent cause", err)
	}
	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
}

func TestCancelledContextAbortsWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := retry.Policy{Attempts: 3, Base: time.Hour}.Do(ctx, func() error {
		calls++
		return errors.New("transient")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls: got %d, want 1 (no retry after cancellation)", calls)
	}
}
