package model

import "time"

// SyncState is the singleton cursor row. LastSyncedBlock only ever increases;
// SyncInProgress is the cross-invocation mutual-exclusion flag.
type SyncState struct {
	LastSyncedBlock uint64
	LastSyncAt      time.Time
	SyncInProgress  bool
	ErrorMessage    string
}
