package gov

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Both plugins emit the same ProposalCreated signature, so their selectors
// coincide. Each topic0 is still derived from its own ABI rather than a
// shared constant.
const proposalCreatedEventJSON = `{
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "proposalId", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "creator", "type": "address"},
      {"indexed": false, "internalType": "uint64", "name": "startDate", "type": "uint64"},
      {"indexed": false, "internalType": "uint64", "name": "endDate", "type": "uint64"},
      {"indexed": false, "internalType": "bytes", "name": "metadata", "type": "bytes"},
      {"components": [
        {"internalType": "address", "name": "to", "type": "address"},
        {"internalType": "uint256", "name": "value", "type": "uint256"},
        {"internalType": "bytes", "name": "data", "type": "bytes"}
      ], "indexed": false, "internalType": "struct Action[]", "name": "actions", "type": "tuple[]"},
      {"indexed": false, "internalType": "uint256", "name": "allowFailureMap", "type": "uint256"}
    ],
    "name": "ProposalCreated",
    "type": "event"
  }`

const sppABIJSON = `[
  ` + proposalCreatedEventJSON + `,
  {
    "inputs": [{"internalType": "uint256", "name": "proposalId", "type": "uint256"}],
    "name": "getProposal",
    "outputs": [
      {"internalType": "bool", "name": "executed", "type": "bool"},
      {"internalType": "bool", "name": "canceled", "type": "bool"},
      {"internalType": "uint16", "name": "currentStage", "type": "uint16"},
      {"components": [
        {"internalType": "address", "name": "to", "type": "address"},
        {"internalType": "uint256", "name": "value", "type": "uint256"},
        {"internalType": "bytes", "name": "data", "type": "bytes"}
      ], "internalType": "struct Action[]", "name": "actions", "type": "tuple[]"}
    ],
    "stateMutability": "view",
    "type": "function"
  }
]`

const votingABIJSON = `[
  {
    "inputs": [{"internalType": "uint256", "name": "proposalId", "type": "uint256"}],
    "name": "getProposal",
    "outputs": [
      {"internalType": "bool", "name": "open", "type": "bool"},
      {"internalType": "bool", "name": "executed", "type": "bool"},
      {"components": [
        {"internalType": "uint32", "name": "supportThreshold", "type": "uint32"},
        {"internalType": "uint32", "name": "minParticipation", "type": "uint32"},
        {"internalType": "uint64", "name": "minDuration", "type": "uint64"}
      ], "internalType": "struct ProposalParameters", "name": "parameters", "type": "tuple"},
      {"components": [
        {"internalType": "uint256", "name": "abstain", "type": "uint256"},
        {"internalType": "uint256", "name": "yes", "type": "uint256"},
        {"internalType": "uint256", "name": "no", "type": "uint256"}
      ], "internalType": "struct Tally", "name": "tally", "type": "tuple"}
    ],
    "stateMutability": "view",
    "type": "function"
  }
]`

const multisigABIJSON = `[
  ` + proposalCreatedEventJSON + `,
  {
    "inputs": [{"internalType": "uint256", "name": "proposalId", "type": "uint256"}],
    "name": "getProposal",
    "outputs": [
      {"internalType": "bool", "name": "executed", "type": "bool"},
      {"internalType": "uint16", "name": "approvals", "type": "uint16"},
      {"components": [
        {"internalType": "uint16", "name": "minApprovals", "type": "uint16"},
        {"internalType": "uint64", "name": "startDate", "type": "uint64"},
        {"internalType": "uint64", "name": "endDate", "type": "uint64"}
      ], "internalType": "struct ProposalParameters", "name": "parameters", "type": "tuple"}
    ],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	sppABI     abi.ABI
	sppABIOnce sync.Once
	sppABIErr  error
	votingABI  abi.ABI
	votingOnce sync.Once
	votingErr  error
	msABI      abi.ABI
	msABIOnce  sync.Once
	msABIErr   error
)

// SPPABI returns the parsed staged-proposal-processor ABI.
func SPPABI() (abi.ABI, error) {
	sppABIOnce.Do(func() {
		sppABI, sppABIErr = abi.JSON(strings.NewReader(sppABIJSON))
	})
	return sppABI, sppABIErr
}

// VotingABI returns the parsed token-voting ABI.
func VotingABI() (abi.ABI, error) {
	votingOnce.Do(func() {
		votingABI, votingErr = abi.JSON(strings.NewReader(votingABIJSON))
	})
	return votingABI, votingErr
}

// MultisigABI returns the parsed multisig ABI.
func MultisigABI() (abi.ABI, error) {
	msABIOnce.Do(func() {
		msABI, msABIErr = abi.JSON(strings.NewReader(multisigABIJSON))
	})
	return msABI, msABIErr
}
