package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"govscope/internal/gov"
	"govscope/internal/model"
	"govscope/internal/storage"
)

// ChainSource is the slice of the chain client the engine needs.
type ChainSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// Resolver assembles and refreshes proposal records.
type Resolver interface {
	Resolve(ctx context.Context, ev model.CreationEvent) (model.Proposal, error)
	Refresh(ctx context.Context, p model.Proposal) (model.Proposal, error)
}

// Notifier fans out events for newly inserted proposals. Delivery is
// fire-and-forget: implementations log failures instead of returning them.
type Notifier interface {
	NotifyNewProposal(ctx context.Context, p model.Proposal)
}

// RunConfig holds runtime settings for the engine.
type RunConfig struct {
	SPPAddress           common.Address
	MultisigAddress      common.Address
	ChunkSize            uint64
	MaxBlocks            uint64
	MinInterval          time.Duration
	MaxConsecutiveErrors int
	RequestDelay         time.Duration
	RetryBackoff         time.Duration
}

// Runner is the proposal indexing engine: it claims the sync lock, scans the
// chain in bounded chunks, resolves and persists proposals, notifies for new
// rows, and advances the cursor. One invocation at a time, sequential
// throughout.
type Runner struct {
	cfg       RunConfig
	chain     ChainSource
	resolver  Resolver
	state     storage.SyncStateStore
	proposals storage.ProposalStore
	notifier  Notifier
	logger    *zap.Logger
	now       func() time.Time

	sppTopic common.Hash
	msTopic  common.Hash
}

// NewRunner builds a Runner. The ProposalCreated topic for each plugin is
// derived from that plugin's own ABI.
func NewRunner(
	cfg RunConfig,
	chainSource ChainSource,
	resolver Resolver,
	stateStore storage.SyncStateStore,
	proposalStore storage.ProposalStore,
	notifier Notifier,
	logger *zap.Logger,
) (*Runner, error) {
	if chainSource == nil {
		return nil, fmt.Errorf("chain source is nil")
	}
	if resolver == nil {
		return nil, fmt.Errorf("resolver is nil")
	}
	if stateStore == nil || proposalStore == nil {
		return nil, fmt.Errorf("stores are nil")
	}
	if cfg.ChunkSize == 0 {
		return nil, fmt.Errorf("chunk size must be greater than zero")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sppTopic, err := gov.ProposalCreatedTopic(model.PluginSPP)
	if err != nil {
		return nil, err
	}
	msTopic, err := gov.ProposalCreatedTopic(model.PluginMultisig)
	if err != nil {
		return nil, err
	}

	return &Runner{
		cfg:       cfg,
		chain:     chainSource,
		resolver:  resolver,
		state:     stateStore,
		proposals: proposalStore,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
		sppTopic:  sppTopic,
		msTopic:   msTopic,
	}, nil
}

// Run executes one engine invocation.
func (r *Runner) Run(ctx context.Context) (summary Summary, runErr error) {
	st, err := r.state.Get(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("read sync state: %w", err)
	}

	if st.SyncInProgress {
		r.logger.Info("sync already in progress, skipping")
		return Summary{
			Success:     true,
			Message:     "skipped, sync already in progress",
			LatestBlock: st.LastSyncedBlock,
		}, nil
	}

	now := r.now()
	if elapsed := now.Sub(st.LastSyncAt); !st.LastSyncAt.IsZero() && elapsed < r.cfg.MinInterval {
		wait := r.cfg.MinInterval - elapsed
		r.logger.Info("rate limited, skipping", zap.Duration("retry_after", wait))
		return Summary{
			Success:     true,
			Message:     "skipped, rate limited",
			LatestBlock: st.LastSyncedBlock,
			RateLimited: true,
			RetryAfter:  wait,
		}, nil
	}

	claimed, err := r.state.TryBegin(ctx, now)
	if err != nil {
		return Summary{}, fmt.Errorf("claim sync lock: %w", err)
	}
	if !claimed {
		// Lost the race to another invocation between Get and TryBegin.
		return Summary{
			Success:     true,
			Message:     "skipped, sync already in progress",
			LatestBlock: st.LastSyncedBlock,
		}, nil
	}

	// The lock is released on every exit path; the last failure, if any,
	// is recorded alongside it.
	defer func() {
		msg := ""
		if runErr != nil {
			msg = runErr.Error()
		}
		if ferr := r.state.Finish(context.WithoutCancel(ctx), msg); ferr != nil {
			r.logger.Error("release sync lock failed", zap.Error(ferr))
			if runErr == nil {
				runErr = fmt.Errorf("release sync lock: %w", ferr)
			}
		}
	}()

	summary, runErr = r.sync(ctx, st)
	return summary, runErr
}

func (r *Runner) sync(ctx context.Context, st model.SyncState) (Summary, error) {
	head, err := r.chain.LatestBlockNumber(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("get chain head: %w", err)
	}

	from := st.LastSyncedBlock + 1
	if from > head {
		// No new blocks, but multisig statuses depend on wall-clock time,
		// so the refresh pass still runs.
		updated, err := r.refreshActive(ctx)
		if err != nil {
			return r.abortSummary(0, updated, head, st.LastSyncedBlock), err
		}
		return Summary{
			Success:          true,
			Message:          "up to date",
			UpdatedProposals: updated,
			LatestBlock:      head,
		}, nil
	}

	to := head
	if r.cfg.MaxBlocks > 0 {
		if capped := st.LastSyncedBlock + r.cfg.MaxBlocks; to > capped {
			to = capped
		}
	}

	ranges, err := SplitRange(from, to, r.cfg.ChunkSize)
	if err != nil {
		return Summary{}, err
	}

	r.logger.Info("sync start",
		zap.Uint64("from", from),
		zap.Uint64("to", to),
		zap.Uint64("head", head),
		zap.Int("chunks", len(ranges)),
	)

	budget := newErrorBudget(r.cfg.MaxConsecutiveErrors)
	cursor := st.LastSyncedBlock
	newCount := 0

	for _, chunk := range ranges {
		select {
		case <-ctx.Done():
			return r.abortSummary(newCount, 0, head, cursor), ctx.Err()
		default:
		}

		events, err := r.scanChunk(ctx, chunk, budget)
		if err != nil {
			return r.abortSummary(newCount, 0, head, cursor),
				fmt.Errorf("scan blocks [%d, %d]: %w", chunk.From, chunk.To, err)
		}

		for _, ev := range events {
			p, err := r.resolver.Resolve(ctx, ev)
			if err != nil {
				return r.abortSummary(newCount, 0, head, cursor),
					fmt.Errorf("resolve proposal %s: %w", ev.ProposalID, err)
			}

			inserted, err := r.proposals.InsertIfAbsent(ctx, p)
			if err != nil {
				return r.abortSummary(newCount, 0, head, cursor),
					fmt.Errorf("store proposal %s: %w", p.ProposalID, err)
			}
			if !inserted {
				continue
			}

			newCount++
			r.logger.Info("new proposal",
				zap.String("proposal_id", p.ProposalID),
				zap.String("plugin", string(p.PluginType)),
				zap.String("status", string(p.Status)),
				zap.Uint64("block", p.BlockNumber),
			)
			r.notifier.NotifyNewProposal(ctx, p)
		}

		// Progress is checkpointed at chunk granularity only, never
		// mid-chunk.
		if err := r.state.AdvanceCursor(ctx, chunk.To); err != nil {
			return r.abortSummary(newCount, 0, head, cursor),
				fmt.Errorf("advance cursor to %d: %w", chunk.To, err)
		}
		cursor = chunk.To

		r.logger.Debug("chunk complete",
			zap.Uint64("from", chunk.From),
			zap.Uint64("to", chunk.To),
			zap.Int("events", len(events)),
		)

		r.sleep(ctx, r.cfg.RequestDelay)
	}

	updated, err := r.refreshActive(ctx)
	if err != nil {
		return r.abortSummary(newCount, updated, head, cursor), err
	}

	r.logger.Info("sync complete",
		zap.Uint64("cursor", cursor),
		zap.Int("new_proposals", newCount),
		zap.Int("updated_proposals", updated),
	)

	return Summary{
		Success:          true,
		Message:          "sync complete",
		NewProposals:     newCount,
		UpdatedProposals: updated,
		NeedsMoreSync:    to < head,
		LatestBlock:      head,
		BlocksRemaining:  head - cursor,
	}, nil
}

// scanChunk queries the two creation-event streams for one chunk. The two
// queries run sequentially with a small delay between them to respect
// provider rate limits.
func (r *Runner) scanChunk(ctx context.Context, chunk BlockRange, budget *errorBudget) ([]model.CreationEvent, error) {
	sppLogs, err := r.fetchLogs(ctx, chunk, r.cfg.SPPAddress, r.sppTopic, budget)
	if err != nil {
		return nil, err
	}

	r.sleep(ctx, r.cfg.RequestDelay)

	msLogs, err := r.fetchLogs(ctx, chunk, r.cfg.MultisigAddress, r.msTopic, budget)
	if err != nil {
		return nil, err
	}

	events := make([]model.CreationEvent, 0, len(sppLogs)+len(msLogs))
	events = append(events, r.decodeLogs(sppLogs, model.PluginSPP)...)
	events = append(events, r.decodeLogs(msLogs, model.PluginMultisig)...)
	return events, nil
}

func (r *Runner) fetchLogs(ctx context.Context, chunk BlockRange, address common.Address, topic common.Hash, budget *errorBudget) ([]types.Log, error) {
	var logs []types.Log
	err := retryWithBudget(ctx, budget, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = r.chain.FilterLogs(ctx, chunk.From, chunk.To, []common.Address{address}, []common.Hash{topic})
		if err != nil {
			r.logger.Warn("filter logs failed",
				zap.Error(err),
				zap.String("address", address.Hex()),
				zap.Uint64("from", chunk.From),
				zap.Uint64("to", chunk.To),
			)
		}
		return err
	})
	return logs, err
}

// decodeLogs converts raw logs into creation events. A malformed payload is
// a per-log failure: logged and skipped, never fatal for the scan.
func (r *Runner) decodeLogs(logs []types.Log, plugin model.PluginType) []model.CreationEvent {
	events := make([]model.CreationEvent, 0, len(logs))
	for _, log := range logs {
		ev, err := gov.DecodeProposalCreated(log, plugin)
		if err != nil {
			r.logger.Warn("decode proposal event failed",
				zap.Error(err),
				zap.String("plugin", string(plugin)),
				zap.String("tx", log.TxHash.Hex()),
				zap.Uint64("block", log.BlockNumber),
			)
			continue
		}
		events = append(events, ev)
	}
	return events
}

// refreshActive re-resolves every ACTIVE row and rewrites its mutable
// columns. Terminal rows never appear in the selection, so a terminal status
// can never be overwritten.
func (r *Runner) refreshActive(ctx context.Context) (int, error) {
	active, err := r.proposals.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active proposals: %w", err)
	}

	updated := 0
	for _, p := range active {
		refreshed, err := r.resolver.Refresh(ctx, p)
		if err != nil {
			return updated, fmt.Errorf("refresh proposal %s: %w", p.ProposalID, err)
		}
		if err := r.proposals.Update(ctx, refreshed); err != nil {
			return updated, fmt.Errorf("update proposal %s: %w", p.ProposalID, err)
		}
		updated++

		if refreshed.Status != p.Status {
			r.logger.Info("proposal status transition",
				zap.String("proposal_id", p.ProposalID),
				zap.String("from", string(p.Status)),
				zap.String("to", string(refreshed.Status)),
			)
		}
	}
	return updated, nil
}

func (r *Runner) abortSummary(newCount, updated int, head, cursor uint64) Summary {
	return Summary{
		Message:          "sync aborted",
		NewProposals:     newCount,
		UpdatedProposals: updated,
		NeedsMoreSync:    cursor < head,
		LatestBlock:      head,
		BlocksRemaining:  head - cursor,
	}
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
