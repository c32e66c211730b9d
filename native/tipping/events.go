package tipping

import (
	"strconv"

	"tipchain/core/events"
	"tipchain/core/types"
	"tipchain/crypto"
)

const (
	// EventTypeAccountInitialized is emitted when a tipper binds a creator.
	EventTypeAccountInitialized = "tipping.account.initialized"
	// EventTypeTipSent is emitted for every accepted tip.
	EventTypeTipSent = "tipping.tip.sent"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

// AccountInitializedEvent describes a freshly created tip account.
func AccountInitializedEvent(account *TipAccount) *types.Event {
	return &types.Event{
		Type: EventTypeAccountInitialized,
		Attributes: map[string]string{
			"tipper":  crypto.FormatAddress(account.Tipper),
			"creator": crypto.FormatAddress(account.Creator),
			"deposit": strconv.FormatUint(account.Deposit, 10),
		},
	}
}

// TipSentEvent describes an accepted tip and the resulting running total.
func TipSentEvent(account *TipAccount, amount uint64) *types.Event {
	return &types.Event{
		Type: EventTypeTipSent,
		Attributes: map[string]string{
			"tipper":    crypto.FormatAddress(account.Tipper),
			"creator":   crypto.FormatAddress(account.Creator),
			"amount":    strconv.FormatUint(amount, 10),
			"totalTips": strconv.FormatUint(account.TotalTips, 10),
		},
	}
}
