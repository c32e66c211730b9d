package events

import (
	"strconv"

	"tipchain/core/types"
	"tipchain/crypto"
)

const (
	// TypeTransfer is emitted for every native balance movement.
	TypeTransfer = "transfer.native"
)

// Transfer records value moving between two accounts. Reason names the
// operation that caused it (for example "tip" or "deposit").
type Transfer struct {
	From   [20]byte
	To     [20]byte
	Amount uint64
	Reason string
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	attrs := map[string]string{
		"from":   crypto.FormatAddress(e.From),
		"to":     crypto.FormatAddress(e.To),
		"amount": strconv.FormatUint(e.Amount, 10),
	}
	if reason := normalizeReason(e.Reason); reason != "" {
		attrs["reason"] = reason
	}
	return &types.Event{Type: TypeTransfer, Attributes: attrs}
}
