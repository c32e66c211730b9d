package rpc

import (
	"encoding/json"
	"strconv"
	"time"

	"tipchain/core/state"
	"tipchain/crypto"
	"tipchain/indexer"
	"tipchain/native/tipping"
)

const jsonRPCVersion = "2.0"

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeLedgerRejected = -32010
	codeRateLimited    = -32020
	codeFaucetDisabled = -32030
)

// Exported so clients can branch on transport level failures.
const (
	CodeUnauthorized   = codeUnauthorized
	CodeLedgerRejected = codeLedgerRejected
	CodeRateLimited    = codeRateLimited
)

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return "rpc error " + strconv.Itoa(e.Code) + ": " + e.Message
}

// LedgerErrorData is attached to codeLedgerRejected errors so callers can
// rebuild the typed ledger error.
type LedgerErrorData struct {
	Kind string `json:"kind"`
}

// SignedRequestParams carries a tipper-signed request. Amount is a decimal
// string and is ignored by tip_initialize.
type SignedRequestParams struct {
	Tipper    string `json:"tipper"`
	Creator   string `json:"creator"`
	Amount    string `json:"amount,omitempty"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
}

type AirdropParams struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type ReceiptsParams struct {
	Tipper  string `json:"tipper,omitempty"`
	Creator string `json:"creator,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

type TipAccountResult struct {
	Address   string `json:"address"`
	Tipper    string `json:"tipper"`
	Creator   string `json:"creator"`
	TotalTips string `json:"totalTips"`
	Deposit   string `json:"deposit"`
	CreatedAt int64  `json:"createdAt"`
}

type SubmitResult struct {
	Hash    string           `json:"hash"`
	Nonce   uint64           `json:"nonce"`
	Account TipAccountResult `json:"account"`
}

type BalanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

type ReceiptResult struct {
	ID          string    `json:"id"`
	Digest      string    `json:"digest"`
	Kind        string    `json:"kind"`
	RequestHash string    `json:"requestHash"`
	Tipper      string    `json:"tipper,omitempty"`
	Creator     string    `json:"creator"`
	Amount      string    `json:"amount"`
	TotalTips   string    `json:"totalTips"`
	Nonce       uint64    `json:"nonce"`
	Time        time.Time `json:"time"`
}

// StreamEvent is the websocket frame for a committed event.
type StreamEvent struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func formatTipAccount(account *tipping.TipAccount) TipAccountResult {
	return TipAccountResult{
		Address:   crypto.FormatAddress(state.TipAccountAddress(account.Tipper)),
		Tipper:    crypto.FormatAddress(account.Tipper),
		Creator:   crypto.FormatAddress(account.Creator),
		TotalTips: strconv.FormatUint(account.TotalTips, 10),
		Deposit:   strconv.FormatUint(account.Deposit, 10),
		CreatedAt: account.CreatedAt,
	}
}

func formatReceipt(r indexer.Receipt) ReceiptResult {
	return ReceiptResult{
		ID:          r.ReceiptID.String(),
		Digest:      r.Digest,
		Kind:        r.Kind,
		RequestHash: r.RequestHash,
		Tipper:      r.Tipper,
		Creator:     r.Creator,
		Amount:      strconv.FormatUint(uint64(r.Amount), 10),
		TotalTips:   strconv.FormatUint(uint64(r.TotalTips), 10),
		Nonce:       uint64(r.Nonce),
		Time:        r.CreatedAt.UTC(),
	}
}
