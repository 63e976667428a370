package gov

import (
	"math/big"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"govscope/internal/model"
)

func TestProposalCreatedTopicsAcrossPlugins(t *testing.T) {
	sppTopic, err := ProposalCreatedTopic(model.PluginSPP)
	if err != nil {
		t.Fatalf("spp topic: %v", err)
	}
	msTopic, err := ProposalCreatedTopic(model.PluginMultisig)
	if err != nil {
		t.Fatalf("multisig topic: %v", err)
	}

	if sppTopic == (common.Hash{}) {
		t.Fatalf("spp topic is zero")
	}
	// Both plugins emit the same event signature, so the independently
	// derived selectors must coincide.
	if sppTopic != msTopic {
		t.Fatalf("selector mismatch: %s != %s", sppTopic.Hex(), msTopic.Hex())
	}
}

func buildCreationLog(t *testing.T, plugin model.PluginType, id *big.Int, creator common.Address, startDate, endDate uint64, metadata []byte, actions []rawAction) types.Log {
	t.Helper()

	parsed, err := pluginABI(plugin)
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	event := parsed.Events["ProposalCreated"]

	data, err := event.Inputs.NonIndexed().Pack(startDate, endDate, metadata, actions, big.NewInt(0))
	if err != nil {
		t.Fatalf("pack event data: %v", err)
	}

	return types.Log{
		Address: common.HexToAddress("0x1000000000000000000000000000000000000001"),
		Topics: []common.Hash{
			event.ID,
			common.BigToHash(id),
			common.BytesToHash(common.LeftPadBytes(creator.Bytes(), 32)),
		},
		Data:        data,
		BlockNumber: 1234,
		TxHash:      common.HexToHash("0xabc0000000000000000000000000000000000000000000000000000000000001"),
	}
}

func TestDecodeProposalCreated(t *testing.T) {
	creator := common.HexToAddress("0x2000000000000000000000000000000000000002")
	target := common.HexToAddress("0x3000000000000000000000000000000000000003")
	id := big.NewInt(7)
	actions := []rawAction{{To: target, Value: big.NewInt(100), Data: []byte{0xde, 0xad}}}

	log := buildCreationLog(t, model.PluginSPP, id, creator, 1700000000, 1700600000, []byte(`{"title":"t"}`), actions)

	got, err := DecodeProposalCreated(log, model.PluginSPP)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	want := model.CreationEvent{
		Plugin:        model.PluginSPP,
		PluginAddress: log.Address.Hex(),
		ProposalID:    "7",
		Creator:       creator.Hex(),
		StartDate:     1700000000,
		EndDate:       1700600000,
		Metadata:      []byte(`{"title":"t"}`),
		Actions: []model.Action{
			{To: target.Hex(), Value: "100", Data: "0xdead"},
		},
		BlockNumber: 1234,
		TxHash:      log.TxHash.Hex(),
	}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("event mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestDecodeProposalCreatedMultisig(t *testing.T) {
	creator := common.HexToAddress("0x4000000000000000000000000000000000000004")
	id := new(big.Int)
	// 256-bit id must survive as a decimal string without precision loss.
	id.SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)

	log := buildCreationLog(t, model.PluginMultisig, id, creator, 0, 0, nil, nil)

	got, err := DecodeProposalCreated(log, model.PluginMultisig)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Plugin != model.PluginMultisig {
		t.Fatalf("plugin mismatch: %s", got.Plugin)
	}
	if got.ProposalID != id.String() {
		t.Fatalf("proposal id mismatch: %s", got.ProposalID)
	}
	if len(got.Actions) != 0 {
		t.Fatalf("expected no actions, got %d", len(got.Actions))
	}
}

func TestDecodeProposalCreatedBadTopics(t *testing.T) {
	log := types.Log{Topics: []common.Hash{{}}}
	if _, err := DecodeProposalCreated(log, model.PluginSPP); err == nil {
		t.Fatalf("expected error for missing topics")
	}
}
