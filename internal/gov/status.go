package gov

import (
	"time"

	"govscope/internal/model"
)

// DeriveSPPStatus maps staged-processor state plus optional token-voting
// state to a canonical status. A nil voting state means the proposal is still
// in an earlier committee stage.
func DeriveSPPStatus(state SPPState, voting *VotingState) model.Status {
	if state.Executed {
		return model.StatusExecuted
	}
	if state.Canceled {
		return model.StatusCanceled
	}
	if voting == nil {
		return model.StatusPending
	}
	if voting.Open {
		return model.StatusActive
	}
	if voting.TallyYes != nil && voting.TallyNo != nil && voting.TallyYes.Cmp(voting.TallyNo) > 0 {
		return model.StatusSucceeded
	}
	return model.StatusDefeated
}

// DeriveMultisigStatus maps multisig state to a canonical status. The end
// date comes from the creation event, which is trusted over the contract
// read.
func DeriveMultisigStatus(state MultisigState, endDate uint64, now time.Time) model.Status {
	if state.Executed {
		return model.StatusExecuted
	}
	if uint64(now.Unix()) > endDate {
		if state.Approvals >= state.MinApprovals {
			return model.StatusSucceeded
		}
		return model.StatusDefeated
	}
	return model.StatusActive
}
