package indexer

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"govscope/internal/gov"
	"govscope/internal/model"
)

var (
	testSPPAddr      = common.HexToAddress("0x1000000000000000000000000000000000000001")
	testMultisigAddr = common.HexToAddress("0x3000000000000000000000000000000000000003")
)

type fakeChain struct {
	head    uint64
	logs    []types.Log
	failFor map[uint64]int
	calls   int
}

func (f *fakeChain) LatestBlockNumber(context.Context) (uint64, error) {
	return f.head, nil
}

func (f *fakeChain) FilterLogs(_ context.Context, fromBlock, toBlock uint64, addresses []common.Address, _ []common.Hash) ([]types.Log, error) {
	f.calls++
	if f.failFor[fromBlock] != 0 {
		f.failFor[fromBlock]--
		return nil, fmt.Errorf("provider error")
	}

	var out []types.Log
	for _, log := range f.logs {
		if log.BlockNumber < fromBlock || log.BlockNumber > toBlock {
			continue
		}
		for _, addr := range addresses {
			if log.Address == addr {
				out = append(out, log)
			}
		}
	}
	return out, nil
}

type fakeStateStore struct {
	st          model.SyncState
	beginCalls  int
	finishMsgs  []string
	cursorSaves []uint64
}

func (f *fakeStateStore) Get(context.Context) (model.SyncState, error) {
	return f.st, nil
}

func (f *fakeStateStore) TryBegin(_ context.Context, now time.Time) (bool, error) {
	if f.st.SyncInProgress {
		return false, nil
	}
	f.st.SyncInProgress = true
	f.st.LastSyncAt = now
	f.beginCalls++
	return true, nil
}

func (f *fakeStateStore) AdvanceCursor(_ context.Context, block uint64) error {
	if block > f.st.LastSyncedBlock {
		f.st.LastSyncedBlock = block
	}
	f.cursorSaves = append(f.cursorSaves, block)
	return nil
}

func (f *fakeStateStore) Finish(_ context.Context, errMsg string) error {
	f.st.SyncInProgress = false
	f.st.ErrorMessage = errMsg
	f.finishMsgs = append(f.finishMsgs, errMsg)
	return nil
}

type fakeProposalStore struct {
	rows    map[string]model.Proposal
	inserts int
	updates int
}

func newFakeProposalStore() *fakeProposalStore {
	return &fakeProposalStore{rows: make(map[string]model.Proposal)}
}

func proposalKey(p model.Proposal) string {
	return p.ProposalID + "|" + p.PluginAddress
}

func (f *fakeProposalStore) InsertIfAbsent(_ context.Context, p model.Proposal) (bool, error) {
	key := proposalKey(p)
	if _, ok := f.rows[key]; ok {
		return false, nil
	}
	f.rows[key] = p
	f.inserts++
	return true, nil
}

func (f *fakeProposalStore) ListActive(context.Context) ([]model.Proposal, error) {
	var out []model.Proposal
	for _, p := range f.rows {
		if p.Status == model.StatusActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProposalStore) Update(_ context.Context, p model.Proposal) error {
	f.rows[proposalKey(p)] = p
	f.updates++
	return nil
}

type fakeResolver struct {
	status        model.Status
	refreshStatus model.Status
	refreshedIDs  []string
}

func (f *fakeResolver) Resolve(_ context.Context, ev model.CreationEvent) (model.Proposal, error) {
	return model.Proposal{
		ProposalID:    ev.ProposalID,
		PluginAddress: ev.PluginAddress,
		PluginType:    ev.Plugin,
		Status:        f.status,
		BlockNumber:   ev.BlockNumber,
	}, nil
}

func (f *fakeResolver) Refresh(_ context.Context, p model.Proposal) (model.Proposal, error) {
	f.refreshedIDs = append(f.refreshedIDs, p.ProposalID)
	if f.refreshStatus != "" {
		p.Status = f.refreshStatus
	}
	return p, nil
}

type fakeNotifier struct {
	sent map[string]int
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{sent: make(map[string]int)}
}

func (f *fakeNotifier) NotifyNewProposal(_ context.Context, p model.Proposal) {
	f.sent[p.ProposalID]++
}

func creationLog(t *testing.T, block uint64, id int64, address common.Address) types.Log {
	t.Helper()

	parsed, err := gov.SPPABI()
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	event := parsed.Events["ProposalCreated"]

	type action struct {
		To    common.Address
		Value *big.Int
		Data  []byte
	}
	data, err := event.Inputs.NonIndexed().Pack(uint64(0), uint64(0), []byte{}, []action{}, big.NewInt(0))
	if err != nil {
		t.Fatalf("pack event data: %v", err)
	}

	creator := common.HexToAddress("0x9000000000000000000000000000000000000009")
	return types.Log{
		Address: address,
		Topics: []common.Hash{
			event.ID,
			common.BigToHash(big.NewInt(id)),
			common.BytesToHash(common.LeftPadBytes(creator.Bytes(), 32)),
		},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(id)),
	}
}

type testEnv struct {
	runner    *Runner
	chain     *fakeChain
	state     *fakeStateStore
	proposals *fakeProposalStore
	resolver  *fakeResolver
	notifier  *fakeNotifier
}

func newTestEnv(t *testing.T, cfg RunConfig, chain *fakeChain, state *fakeStateStore) *testEnv {
	t.Helper()

	if cfg.SPPAddress == (common.Address{}) {
		cfg.SPPAddress = testSPPAddr
	}
	if cfg.MultisigAddress == (common.Address{}) {
		cfg.MultisigAddress = testMultisigAddr
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 100
	}
	if cfg.MaxConsecutiveErrors == 0 {
		cfg.MaxConsecutiveErrors = 3
	}

	proposals := newFakeProposalStore()
	resolver := &fakeResolver{status: model.StatusActive}
	notifier := newFakeNotifier()

	runner, err := NewRunner(cfg, chain, resolver, state, proposals, notifier, zap.NewNop())
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	return &testEnv{
		runner:    runner,
		chain:     chain,
		state:     state,
		proposals: proposals,
		resolver:  resolver,
		notifier:  notifier,
	}
}

func TestRunSkipsWhenSyncInProgress(t *testing.T) {
	chain := &fakeChain{head: 100}
	state := &fakeStateStore{st: model.SyncState{SyncInProgress: true, LastSyncedBlock: 7}}
	env := newTestEnv(t, RunConfig{}, chain, state)

	summary, err := env.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !summary.Success || !strings.Contains(summary.Message, "in progress") {
		t.Fatalf("expected in-progress skip, got %+v", summary)
	}
	if summary.LatestBlock != 7 {
		t.Fatalf("skip must report the stored cursor, got %d", summary.LatestBlock)
	}
	if chain.calls != 0 {
		t.Fatalf("skip must not scan, got %d calls", chain.calls)
	}
	if state.beginCalls != 0 {
		t.Fatalf("skip must not claim the lock")
	}
	if env.proposals.inserts != 0 || env.proposals.updates != 0 {
		t.Fatalf("skip must not write")
	}
}

func TestRunRateLimited(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	chain := &fakeChain{head: 100}
	state := &fakeStateStore{st: model.SyncState{LastSyncAt: now.Add(-10 * time.Second), LastSyncedBlock: 30}}
	env := newTestEnv(t, RunConfig{MinInterval: time.Minute}, chain, state)
	env.runner.now = func() time.Time { return now }

	summary, err := env.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !summary.RateLimited {
		t.Fatalf("expected rate-limited summary, got %+v", summary)
	}
	if summary.RetryAfter != 50*time.Second {
		t.Fatalf("retry-after mismatch: %s", summary.RetryAfter)
	}
	if summary.LatestBlock != 30 {
		t.Fatalf("skip must report the stored cursor, got %d", summary.LatestBlock)
	}
	if chain.calls != 0 {
		t.Fatalf("rate-limited skip must not scan")
	}
}

func TestRunIdempotentOverSameRange(t *testing.T) {
	chain := &fakeChain{
		head: 10,
		logs: []types.Log{creationLog(t, 5, 1, testSPPAddr)},
	}
	state := &fakeStateStore{}
	env := newTestEnv(t, RunConfig{}, chain, state)

	summary, err := env.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if summary.NewProposals != 1 {
		t.Fatalf("expected 1 new proposal, got %d", summary.NewProposals)
	}
	if state.st.LastSyncedBlock != 10 {
		t.Fatalf("cursor mismatch: %d", state.st.LastSyncedBlock)
	}
	if state.st.SyncInProgress {
		t.Fatalf("lock must be released")
	}

	// Rewind the cursor and replay the same range: no new rows, no second
	// notification.
	state.st.LastSyncedBlock = 0
	state.st.LastSyncAt = time.Time{}

	summary, err = env.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if summary.NewProposals != 0 {
		t.Fatalf("replay must not insert, got %d", summary.NewProposals)
	}
	if env.proposals.inserts != 1 || len(env.proposals.rows) != 1 {
		t.Fatalf("expected exactly one stored row, got %d inserts, %d rows", env.proposals.inserts, len(env.proposals.rows))
	}
	if env.notifier.sent["1"] != 1 {
		t.Fatalf("expected exactly one notification, got %d", env.notifier.sent["1"])
	}
}

func TestRunMonotonicCursorAndChunking(t *testing.T) {
	chain := &fakeChain{head: 45}
	state := &fakeStateStore{st: model.SyncState{LastSyncedBlock: 5}}
	env := newTestEnv(t, RunConfig{ChunkSize: 10}, chain, state)

	summary, err := env.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !summary.Success {
		t.Fatalf("expected success: %+v", summary)
	}

	want := []uint64{15, 25, 35, 45}
	if len(state.cursorSaves) != len(want) {
		t.Fatalf("cursor saves mismatch: %v", state.cursorSaves)
	}
	for i, block := range want {
		if state.cursorSaves[i] != block {
			t.Fatalf("cursor saves mismatch: %v", state.cursorSaves)
		}
	}
	if state.st.LastSyncedBlock != 45 {
		t.Fatalf("final cursor mismatch: %d", state.st.LastSyncedBlock)
	}
	if summary.BlocksRemaining != 0 || summary.NeedsMoreSync {
		t.Fatalf("expected fully synced summary: %+v", summary)
	}
}

func TestRunCapsAtMaxBlocks(t *testing.T) {
	chain := &fakeChain{head: 1000}
	state := &fakeStateStore{}
	env := newTestEnv(t, RunConfig{ChunkSize: 100, MaxBlocks: 200}, chain, state)

	summary, err := env.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if state.st.LastSyncedBlock != 200 {
		t.Fatalf("cursor mismatch: %d", state.st.LastSyncedBlock)
	}
	if !summary.NeedsMoreSync {
		t.Fatalf("expected needsMoreSync")
	}
	if summary.BlocksRemaining != 800 {
		t.Fatalf("blocks remaining mismatch: %d", summary.BlocksRemaining)
	}
	if summary.LatestBlock != 1000 {
		t.Fatalf("latest block mismatch: %d", summary.LatestBlock)
	}
}

func TestRunAbortLeavesCursorAtCompletedChunk(t *testing.T) {
	chain := &fakeChain{
		head:    40,
		failFor: map[uint64]int{21: 1000},
	}
	state := &fakeStateStore{}
	env := newTestEnv(t, RunConfig{ChunkSize: 10, MaxConsecutiveErrors: 3, RetryBackoff: time.Millisecond}, chain, state)

	_, err := env.runner.Run(context.Background())
	if err == nil {
		t.Fatalf("expected abort error")
	}

	if state.st.LastSyncedBlock != 20 {
		t.Fatalf("cursor must stay at last completed chunk, got %d", state.st.LastSyncedBlock)
	}
	if state.st.SyncInProgress {
		t.Fatalf("lock must be released on abort")
	}
	if state.st.ErrorMessage == "" {
		t.Fatalf("abort must record an error message")
	}
}

func TestRunRefreshesActiveWhenUpToDate(t *testing.T) {
	// A cursor already at the chain head skips the scan but not the
	// refresh pass: time-based transitions happen without new blocks.
	chain := &fakeChain{head: 10}
	state := &fakeStateStore{st: model.SyncState{LastSyncedBlock: 10}}
	env := newTestEnv(t, RunConfig{}, chain, state)
	env.resolver.refreshStatus = model.StatusDefeated

	env.proposals.rows["10|0xa"] = model.Proposal{
		ProposalID: "10", PluginAddress: "0xa", Status: model.StatusActive,
	}

	summary, err := env.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !summary.Success || summary.Message != "up to date" {
		t.Fatalf("expected up-to-date summary, got %+v", summary)
	}
	if len(env.resolver.refreshedIDs) != 1 || env.resolver.refreshedIDs[0] != "10" {
		t.Fatalf("refresh must still run, saw %v", env.resolver.refreshedIDs)
	}
	if summary.UpdatedProposals != 1 {
		t.Fatalf("expected 1 updated proposal, got %d", summary.UpdatedProposals)
	}
	if env.proposals.rows["10|0xa"].Status != model.StatusDefeated {
		t.Fatalf("expired row should transition, got %s", env.proposals.rows["10|0xa"].Status)
	}
	if state.st.SyncInProgress {
		t.Fatalf("lock must be released")
	}
}

func TestRefreshSelectsOnlyActiveRows(t *testing.T) {
	chain := &fakeChain{head: 5}
	state := &fakeStateStore{}
	env := newTestEnv(t, RunConfig{}, chain, state)
	env.resolver.refreshStatus = model.StatusSucceeded

	executedAt := time.Unix(1_690_000_000, 0)
	env.proposals.rows["10|0xa"] = model.Proposal{
		ProposalID: "10", PluginAddress: "0xa", Status: model.StatusActive,
	}
	env.proposals.rows["11|0xa"] = model.Proposal{
		ProposalID: "11", PluginAddress: "0xa", Status: model.StatusExecuted, ExecutedAt: &executedAt,
	}

	summary, err := env.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(env.resolver.refreshedIDs) != 1 || env.resolver.refreshedIDs[0] != "10" {
		t.Fatalf("refresh must only see ACTIVE rows, saw %v", env.resolver.refreshedIDs)
	}
	if summary.UpdatedProposals != 1 {
		t.Fatalf("expected 1 updated proposal, got %d", summary.UpdatedProposals)
	}
	if env.proposals.rows["10|0xa"].Status != model.StatusSucceeded {
		t.Fatalf("active row should transition, got %s", env.proposals.rows["10|0xa"].Status)
	}
	if env.proposals.rows["11|0xa"].Status != model.StatusExecuted {
		t.Fatalf("terminal row must never change, got %s", env.proposals.rows["11|0xa"].Status)
	}
}
