package model

// CreationEvent is the decoded ProposalCreated log, tagged by the plugin that
// emitted it. The event payload is the trusted source for the immutable
// fields (id, creator, dates, metadata, actions): the originating contract
// may report zeroed timestamps for a still-pending proposal, so contract
// reads never override these.
type CreationEvent struct {
	Plugin        PluginType
	PluginAddress string
	ProposalID    string
	Creator       string
	StartDate     uint64
	EndDate       uint64
	Metadata      []byte
	Actions       []Action
	BlockNumber   uint64
	TxHash        string
}
