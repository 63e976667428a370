package indexer

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestRetryWithBudgetSucceedsAfterFailures(t *testing.T) {
	budget := newErrorBudget(5)
	attempts := 0

	err := retryWithBudget(context.Background(), budget, time.Millisecond, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if budget.consecutive != 0 {
		t.Fatalf("budget should reset on success, got %d", budget.consecutive)
	}
}

func TestRetryWithBudgetExhausts(t *testing.T) {
	budget := newErrorBudget(3)
	attempts := 0

	err := retryWithBudget(context.Background(), budget, time.Millisecond, func(context.Context) error {
		attempts++
		return fmt.Errorf("down")
	})
	if err == nil {
		t.Fatalf("expected error after budget exhaustion")
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryWithBudgetCarriesAcrossCalls(t *testing.T) {
	// The budget counts consecutive failures across the invocation, not
	// per call site.
	budget := newErrorBudget(3)

	_ = retryWithBudget(context.Background(), budget, time.Millisecond, func(context.Context) error {
		if budget.consecutive < 2 {
			return fmt.Errorf("transient")
		}
		return nil
	})
	if budget.consecutive != 0 {
		t.Fatalf("budget should reset after success")
	}

	err := retryWithBudget(context.Background(), budget, time.Millisecond, func(context.Context) error {
		return fmt.Errorf("down")
	})
	if err == nil {
		t.Fatalf("expected exhaustion on second call")
	}
}

func TestRetryWithBudgetRespectsContext(t *testing.T) {
	budget := newErrorBudget(100)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retryWithBudget(ctx, budget, time.Hour, func(context.Context) error {
		return fmt.Errorf("down")
	})
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
