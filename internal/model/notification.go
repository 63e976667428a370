package model

import "time"

// NotificationNewProposal tags the notification sent once per new proposal.
const NotificationNewProposal = "new_proposal"

// NotificationRecord is one row of the dedup ledger. At most one row exists
// per (ProposalID, NotificationType) pair.
type NotificationRecord struct {
	ProposalID       string
	NotificationType string
	SentAt           time.Time
}
