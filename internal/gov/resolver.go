package gov

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"govscope/internal/model"
)

// Resolver assembles a unified proposal record from a creation event and the
// plugin contracts, one resolution path per plugin variant.
type Resolver struct {
	reader *Reader
	logger *zap.Logger
	now    func() time.Time
}

func NewResolver(reader *Reader, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{reader: reader, logger: logger, now: time.Now}
}

// Resolve cross-references the contracts for a fresh creation event and
// returns the proposal row to persist.
func (r *Resolver) Resolve(ctx context.Context, ev model.CreationEvent) (model.Proposal, error) {
	id, err := parseProposalID(ev.ProposalID)
	if err != nil {
		return model.Proposal{}, err
	}

	meta := DecodeMetadata(ev.Metadata, ev.ProposalID)

	p := model.Proposal{
		ProposalID:    ev.ProposalID,
		PluginAddress: ev.PluginAddress,
		PluginType:    ev.Plugin,
		Title:         meta.Title,
		Description:   meta.Description,
		StartDate:     ev.StartDate,
		EndDate:       ev.EndDate,
		TallyYes:      "0",
		TallyNo:       "0",
		TallyAbstain:  "0",
		Actions:       ev.Actions,
		BlockNumber:   ev.BlockNumber,
		TxHash:        ev.TxHash,
		Creator:       ev.Creator,
	}

	switch ev.Plugin {
	case model.PluginSPP:
		if err := r.fillSPP(ctx, &p, id); err != nil {
			return model.Proposal{}, err
		}
	case model.PluginMultisig:
		if err := r.fillMultisig(ctx, &p, id); err != nil {
			return model.Proposal{}, err
		}
	default:
		return model.Proposal{}, fmt.Errorf("unknown plugin type: %s", ev.Plugin)
	}

	return p, nil
}

// Refresh re-resolves a stored proposal, recomputing the mutable fields. Only
// rows currently ACTIVE are handed to it.
func (r *Resolver) Refresh(ctx context.Context, p model.Proposal) (model.Proposal, error) {
	id, err := parseProposalID(p.ProposalID)
	if err != nil {
		return model.Proposal{}, err
	}

	switch p.PluginType {
	case model.PluginSPP:
		if err := r.fillSPP(ctx, &p, id); err != nil {
			return model.Proposal{}, err
		}
	case model.PluginMultisig:
		if err := r.fillMultisig(ctx, &p, id); err != nil {
			return model.Proposal{}, err
		}
	default:
		return model.Proposal{}, fmt.Errorf("unknown plugin type: %s", p.PluginType)
	}

	return p, nil
}

func (r *Resolver) fillSPP(ctx context.Context, p *model.Proposal, id *big.Int) error {
	state, err := r.reader.SPPProposal(ctx, id)
	if err != nil {
		return fmt.Errorf("read spp proposal %s: %w", p.ProposalID, err)
	}

	p.CurrentStage = state.CurrentStage
	p.IsCanceled = state.Canceled
	if len(p.Actions) == 0 {
		p.Actions = convertActions(state.Actions)
	}

	// Expected to fail while the proposal sits in an earlier committee
	// stage; absence of voting data is a valid state, not an error.
	var voting *VotingState
	if vs, err := r.reader.VotingProposal(ctx, id); err == nil {
		voting = &vs
	} else {
		r.logger.Debug("voting state unavailable",
			zap.String("proposal_id", p.ProposalID),
			zap.Error(err),
		)
	}

	if voting != nil {
		p.IsOpen = voting.Open
		p.SupportThreshold = voting.SupportThreshold
		p.MinParticipation = voting.MinParticipation
		p.MinDuration = voting.MinDuration
		p.TallyYes = bigString(voting.TallyYes)
		p.TallyNo = bigString(voting.TallyNo)
		p.TallyAbstain = bigString(voting.TallyAbstain)
	}

	r.applyStatus(p, DeriveSPPStatus(state, voting))
	return nil
}

func (r *Resolver) fillMultisig(ctx context.Context, p *model.Proposal, id *big.Int) error {
	state, err := r.reader.MultisigProposal(ctx, id)
	if err != nil {
		return fmt.Errorf("read multisig proposal %s: %w", p.ProposalID, err)
	}

	p.Approvals = state.Approvals
	p.MinApprovals = state.MinApprovals

	r.applyStatus(p, DeriveMultisigStatus(state, p.EndDate, r.now()))
	return nil
}

func (r *Resolver) applyStatus(p *model.Proposal, status model.Status) {
	p.Status = status
	if status == model.StatusExecuted && p.ExecutedAt == nil {
		ts := r.now().UTC()
		p.ExecutedAt = &ts
	}
}

func parseProposalID(id string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(id, 10)
	if !ok {
		return nil, fmt.Errorf("invalid proposal id: %q", id)
	}
	return value, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
