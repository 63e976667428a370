package indexer

import "time"

// Summary is the structured result of one engine invocation. It is the body
// of the trigger endpoint's JSON response.
type Summary struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	NewProposals     int    `json:"newProposals"`
	UpdatedProposals int    `json:"updatedProposals"`
	NeedsMoreSync    bool   `json:"needsMoreSync"`
	// LatestBlock is the chain head observed by the scan. Skip paths make
	// no RPC call and report the stored cursor instead.
	LatestBlock     uint64 `json:"latestBlock"`
	BlocksRemaining uint64 `json:"blocksRemaining"`

	// RateLimited marks the 429 path; RetryAfter feeds the Retry-After
	// header. Neither is part of the response body.
	RateLimited bool          `json:"-"`
	RetryAfter  time.Duration `json:"-"`
}
