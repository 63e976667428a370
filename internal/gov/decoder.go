package gov

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"govscope/internal/model"
)

type rawAction struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// ProposalCreatedTopic returns the ProposalCreated topic0 for a plugin,
// derived from that plugin's own ABI.
func ProposalCreatedTopic(plugin model.PluginType) (common.Hash, error) {
	parsed, err := pluginABI(plugin)
	if err != nil {
		return common.Hash{}, err
	}
	event, ok := parsed.Events["ProposalCreated"]
	if !ok {
		return common.Hash{}, fmt.Errorf("%s abi has no ProposalCreated event", plugin)
	}
	return event.ID, nil
}

// DecodeProposalCreated converts a raw log into a tagged CreationEvent.
func DecodeProposalCreated(log types.Log, plugin model.PluginType) (model.CreationEvent, error) {
	parsed, err := pluginABI(plugin)
	if err != nil {
		return model.CreationEvent{}, err
	}
	event := parsed.Events["ProposalCreated"]

	if len(log.Topics) != 3 {
		return model.CreationEvent{}, fmt.Errorf("expected 3 topics, got %d", len(log.Topics))
	}
	if log.Topics[0] != event.ID {
		return model.CreationEvent{}, fmt.Errorf("unexpected topic0: %s", log.Topics[0].Hex())
	}

	var indexed struct {
		ProposalId *big.Int
		Creator    common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), log.Topics[1:]); err != nil {
		return model.CreationEvent{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return model.CreationEvent{}, fmt.Errorf("unpack ProposalCreated: %w", err)
	}
	if len(values) != 5 {
		return model.CreationEvent{}, fmt.Errorf("unexpected ProposalCreated values: %d", len(values))
	}

	startDate, err := asUint64(values[0])
	if err != nil {
		return model.CreationEvent{}, fmt.Errorf("startDate: %w", err)
	}
	endDate, err := asUint64(values[1])
	if err != nil {
		return model.CreationEvent{}, fmt.Errorf("endDate: %w", err)
	}
	metadata, ok := values[2].([]byte)
	if !ok {
		return model.CreationEvent{}, fmt.Errorf("unsupported metadata type %T", values[2])
	}
	actions := *abi.ConvertType(values[3], new([]rawAction)).(*[]rawAction)

	return model.CreationEvent{
		Plugin:        plugin,
		PluginAddress: log.Address.Hex(),
		ProposalID:    indexed.ProposalId.String(),
		Creator:       indexed.Creator.Hex(),
		StartDate:     startDate,
		EndDate:       endDate,
		Metadata:      metadata,
		Actions:       convertActions(actions),
		BlockNumber:   log.BlockNumber,
		TxHash:        log.TxHash.Hex(),
	}, nil
}

func pluginABI(plugin model.PluginType) (abi.ABI, error) {
	switch plugin {
	case model.PluginSPP:
		return SPPABI()
	case model.PluginMultisig:
		return MultisigABI()
	default:
		return abi.ABI{}, fmt.Errorf("unknown plugin type: %s", plugin)
	}
}

func convertActions(raw []rawAction) []model.Action {
	if len(raw) == 0 {
		return nil
	}
	out := make([]model.Action, 0, len(raw))
	for _, a := range raw {
		value := "0"
		if a.Value != nil {
			value = a.Value.String()
		}
		out = append(out, model.Action{
			To:    a.To.Hex(),
			Value: value,
			Data:  hexutil.Encode(a.Data),
		})
	}
	return out
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func asUint64(value interface{}) (uint64, error) {
	switch v := value.(type) {
	case uint64:
		return v, nil
	case uint32:
		return uint64(v), nil
	case uint16:
		return uint64(v), nil
	case uint8:
		return uint64(v), nil
	case *big.Int:
		if !v.IsUint64() {
			return 0, fmt.Errorf("value does not fit in uint64: %s", v)
		}
		return v.Uint64(), nil
	default:
		return 0, fmt.Errorf("unsupported uint64 type %T", value)
	}
}
