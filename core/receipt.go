package core

import (
	"context"
	"time"
)

const (
	ReceiptInitialize = "initialize"
	ReceiptSendTip    = "send_tip"
	ReceiptAirdrop    = "airdrop"
)

// Receipt summarises a committed operation. For airdrops Creator holds the
// credited account and Tipper is zero.
type Receipt struct {
	Kind        string
	RequestHash []byte
	Tipper      [20]byte
	Creator     [20]byte
	Amount      uint64
	TotalTips   uint64
	Nonce       uint64
	Timestamp   time.Time
}

// ReceiptSink persists receipts after the state they describe is committed.
type ReceiptSink interface {
	Record(ctx context.Context, receipt Receipt) error
}
