package model

import "time"

// PluginType identifies which governance plugin created a proposal.
type PluginType string

const (
	PluginSPP      PluginType = "SPP"
	PluginMultisig PluginType = "MULTISIG"
)

// Status is the canonical lifecycle status of a proposal.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusSucceeded Status = "SUCCEEDED"
	StatusDefeated  Status = "DEFEATED"
	StatusExecuted  Status = "EXECUTED"
	StatusCanceled  Status = "CANCELED"
)

// Terminal reports whether the status can never change again.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusDefeated, StatusExecuted, StatusCanceled:
		return true
	}
	return false
}

// Action is a single call descriptor attached to a proposal. Order matters.
type Action struct {
	To    string `json:"to"`
	Value string `json:"value"`
	Data  string `json:"data"`
}

// Proposal is the unified record assembled from the creation event and the
// plugin contracts. The (ProposalID, PluginAddress) pair is the identity and
// is immutable once written. ProposalID is a decimal string because the
// on-chain id is a uint256 and must not lose precision.
type Proposal struct {
	ProposalID    string
	PluginAddress string
	PluginType    PluginType

	Title       string
	Description string
	Status      Status

	StartDate  uint64
	EndDate    uint64
	ExecutedAt *time.Time

	TallyYes     string
	TallyNo      string
	TallyAbstain string

	SupportThreshold uint32
	MinParticipation uint32
	MinDuration      uint64

	CurrentStage uint16
	IsCanceled   bool
	IsOpen       bool

	Approvals    uint16
	MinApprovals uint16

	Actions []Action

	BlockNumber uint64
	TxHash      string
	Creator     string
}
