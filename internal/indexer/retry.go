package indexer

import (
	"context"
	"fmt"
	"time"
)

// errorBudget counts consecutive failures across an invocation. A success
// resets it; exhausting it aborts the whole invocation so the cursor stays at
// the last completed chunk boundary.
type errorBudget struct {
	max         int
	consecutive int
}

func newErrorBudget(max int) *errorBudget {
	if max <= 0 {
		max = 1
	}
	return &errorBudget{max: max}
}

func (b *errorBudget) fail() bool {
	b.consecutive++
	return b.consecutive >= b.max
}

func (b *errorBudget) reset() {
	b.consecutive = 0
}

// retryWithBudget runs fn until it succeeds, charging every failure against
// the shared budget and sleeping a fixed backoff between attempts.
func retryWithBudget(ctx context.Context, budget *errorBudget, backoff time.Duration, fn func(context.Context) error) error {
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}

	for {
		err := fn(ctx)
		if err == nil {
			budget.reset()
			return nil
		}
		if budget.fail() {
			return fmt.Errorf("%d consecutive failures: %w", budget.consecutive, err)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
