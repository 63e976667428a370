package gov

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Caller abstracts eth_call so contract reads can be faked in tests.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// SPPState is the staged-processor view of a proposal, decoded once at the
// RPC boundary.
type SPPState struct {
	Executed     bool
	Canceled     bool
	CurrentStage uint16
	Actions      []rawAction
}

// VotingState is the token-voting view of a proposal. A nil *VotingState
// means the voting stage has not started yet.
type VotingState struct {
	Open             bool
	Executed         bool
	SupportThreshold uint32
	MinParticipation uint32
	MinDuration      uint64
	TallyAbstain     *big.Int
	TallyYes         *big.Int
	TallyNo          *big.Int
}

// MultisigState is the multisig view of a proposal.
type MultisigState struct {
	Executed     bool
	Approvals    uint16
	MinApprovals uint16
	StartDate    uint64
	EndDate      uint64
}

type votingParams struct {
	SupportThreshold uint32
	MinParticipation uint32
	MinDuration      uint64
}

type votingTally struct {
	Abstain *big.Int
	Yes     *big.Int
	No      *big.Int
}

type multisigParams struct {
	MinApprovals uint16
	StartDate    uint64
	EndDate      uint64
}

// Reader performs typed getProposal reads against the three plugin contracts.
type Reader struct {
	caller   Caller
	spp      common.Address
	voting   common.Address
	multisig common.Address
}

func NewReader(caller Caller, spp, voting, multisig common.Address) *Reader {
	return &Reader{caller: caller, spp: spp, voting: voting, multisig: multisig}
}

// SPPProposal reads the staged-processor state for a proposal id.
func (r *Reader) SPPProposal(ctx context.Context, id *big.Int) (SPPState, error) {
	parsed, err := SPPABI()
	if err != nil {
		return SPPState{}, err
	}
	values, err := r.call(ctx, parsed, r.spp, id)
	if err != nil {
		return SPPState{}, err
	}
	if len(values) != 4 {
		return SPPState{}, fmt.Errorf("unexpected spp getProposal values: %d", len(values))
	}

	executed, ok := values[0].(bool)
	if !ok {
		return SPPState{}, fmt.Errorf("unsupported executed type %T", values[0])
	}
	canceled, ok := values[1].(bool)
	if !ok {
		return SPPState{}, fmt.Errorf("unsupported canceled type %T", values[1])
	}
	stage, err := asUint64(values[2])
	if err != nil {
		return SPPState{}, fmt.Errorf("currentStage: %w", err)
	}
	actions := *abi.ConvertType(values[3], new([]rawAction)).(*[]rawAction)

	return SPPState{
		Executed:     executed,
		Canceled:     canceled,
		CurrentStage: uint16(stage),
		Actions:      actions,
	}, nil
}

// VotingProposal reads the token-voting state for a proposal id. The call is
// expected to fail for proposals still in an earlier committee stage; the
// caller treats that error as "no voting data yet".
func (r *Reader) VotingProposal(ctx context.Context, id *big.Int) (VotingState, error) {
	parsed, err := VotingABI()
	if err != nil {
		return VotingState{}, err
	}
	values, err := r.call(ctx, parsed, r.voting, id)
	if err != nil {
		return VotingState{}, err
	}
	if len(values) != 4 {
		return VotingState{}, fmt.Errorf("unexpected voting getProposal values: %d", len(values))
	}

	open, ok := values[0].(bool)
	if !ok {
		return VotingState{}, fmt.Errorf("unsupported open type %T", values[0])
	}
	executed, ok := values[1].(bool)
	if !ok {
		return VotingState{}, fmt.Errorf("unsupported executed type %T", values[1])
	}

	params := *abi.ConvertType(values[2], new(votingParams)).(*votingParams)
	tally := *abi.ConvertType(values[3], new(votingTally)).(*votingTally)

	return VotingState{
		Open:             open,
		Executed:         executed,
		SupportThreshold: params.SupportThreshold,
		MinParticipation: params.MinParticipation,
		MinDuration:      params.MinDuration,
		TallyAbstain:     tally.Abstain,
		TallyYes:         tally.Yes,
		TallyNo:          tally.No,
	}, nil
}

// MultisigProposal reads the multisig state for a proposal id.
func (r *Reader) MultisigProposal(ctx context.Context, id *big.Int) (MultisigState, error) {
	parsed, err := MultisigABI()
	if err != nil {
		return MultisigState{}, err
	}
	values, err := r.call(ctx, parsed, r.multisig, id)
	if err != nil {
		return MultisigState{}, err
	}
	if len(values) != 3 {
		return MultisigState{}, fmt.Errorf("unexpected multisig getProposal values: %d", len(values))
	}

	executed, ok := values[0].(bool)
	if !ok {
		return MultisigState{}, fmt.Errorf("unsupported executed type %T", values[0])
	}
	approvals, err := asUint64(values[1])
	if err != nil {
		return MultisigState{}, fmt.Errorf("approvals: %w", err)
	}

	params := *abi.ConvertType(values[2], new(multisigParams)).(*multisigParams)

	return MultisigState{
		Executed:     executed,
		Approvals:    uint16(approvals),
		MinApprovals: params.MinApprovals,
		StartDate:    params.StartDate,
		EndDate:      params.EndDate,
	}, nil
}

func (r *Reader) call(ctx context.Context, parsed abi.ABI, contract common.Address, id *big.Int) ([]interface{}, error) {
	data, err := parsed.Pack("getProposal", id)
	if err != nil {
		return nil, fmt.Errorf("pack getProposal: %w", err)
	}
	msg := ethereum.CallMsg{To: &contract, Data: data}
	resp, err := r.caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call getProposal %s: %w", contract.Hex(), err)
	}
	values, err := parsed.Unpack("getProposal", resp)
	if err != nil {
		return nil, fmt.Errorf("unpack getProposal: %w", err)
	}
	return values, nil
}
