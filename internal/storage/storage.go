package storage

import (
	"context"
	"time"

	"govscope/internal/model"
)

// SyncStateStore manages the singleton cursor row and the concurrency guard.
type SyncStateStore interface {
	// Get returns the current sync state.
	Get(ctx context.Context) (model.SyncState, error)
	// TryBegin atomically claims the sync lock. It returns false when
	// another invocation already holds it.
	TryBegin(ctx context.Context, now time.Time) (bool, error)
	// AdvanceCursor moves the cursor forward; it never moves it back.
	AdvanceCursor(ctx context.Context, block uint64) error
	// Finish releases the lock and records the failure message, empty on
	// success. It must be called on every exit path once TryBegin won.
	Finish(ctx context.Context, errMsg string) error
}

// ProposalStore persists proposal rows.
type ProposalStore interface {
	// InsertIfAbsent writes the row unless the composite key already
	// exists. It reports whether a row was inserted.
	InsertIfAbsent(ctx context.Context, p model.Proposal) (bool, error)
	// ListActive returns all rows currently in the ACTIVE status. This is
	// the only selection the refresh pass operates on, so terminal rows
	// are structurally out of reach.
	ListActive(ctx context.Context) ([]model.Proposal, error)
	// Update rewrites the mutable columns of an existing row.
	Update(ctx context.Context, p model.Proposal) error
}

// NotificationLedger is the dedup ledger for outbound notifications.
type NotificationLedger interface {
	Has(ctx context.Context, proposalID, notificationType string) (bool, error)
	Record(ctx context.Context, proposalID, notificationType string) error
}
