package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tipchain/core/events"
	"tipchain/core/state"
	"tipchain/core/types"
	"tipchain/crypto"
	"tipchain/native/common"
	"tipchain/native/tipping"
	"tipchain/observability"
	tipotel "tipchain/observability/otel"
	"tipchain/storage"
)

const faucetIssuedKey = "faucet/issued"

// faucetLock guards the faucet/issued counter. Every Airdrop takes it along
// with the credited address.
var faucetLock = [20]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xfe}

var (
	// ErrAirdropAmount is returned when a faucet credit is zero.
	ErrAirdropAmount = errors.New("airdrop amount must be positive")
	// ErrNilRequest is returned when Submit is called without a request.
	ErrNilRequest = errors.New("request required")
	// ErrUnknownRequest is returned for request kinds the node does not handle.
	ErrUnknownRequest = errors.New("unknown request kind")
)

// Node is the central controller. It owns the state manager, serializes
// operations per account, commits each operation atomically and publishes
// events once they are durable.
type Node struct {
	db      storage.Database
	state   *state.Manager
	params  tipping.Params
	pauses  *common.PauseSet
	bus     *events.Bus
	locks   *addressLocks
	sink    ReceiptSink
	logger  *slog.Logger
	metrics *observability.TippingMetrics
	tracer  trace.Tracer
	nowFn   func() time.Time
}

// Option customises a Node.
type Option func(*Node)

func WithParams(params tipping.Params) Option {
	return func(n *Node) { n.params = params }
}

func WithPauses(pauses *common.PauseSet) Option {
	return func(n *Node) {
		if pauses != nil {
			n.pauses = pauses
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(n *Node) {
		if logger != nil {
			n.logger = logger
		}
	}
}

func WithReceiptSink(sink ReceiptSink) Option {
	return func(n *Node) { n.sink = sink }
}

func WithClock(now func() time.Time) Option {
	return func(n *Node) {
		if now != nil {
			n.nowFn = now
		}
	}
}

// NewNode wires a node over db.
func NewNode(db storage.Database, opts ...Option) *Node {
	n := &Node{
		db:      db,
		state:   state.NewManager(db),
		params:  tipping.DefaultParams(),
		pauses:  common.NewPauseSet(),
		bus:     events.NewBus(),
		locks:   newAddressLocks(),
		logger:  slog.Default(),
		metrics: observability.Tipping(),
		tracer:  tipotel.Tracer("core"),
		nowFn:   time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Events exposes the bus carrying committed events.
func (n *Node) Events() *events.Bus { return n.bus }

// Pauses exposes the runtime pause switches.
func (n *Node) Pauses() *common.PauseSet { return n.pauses }

// Params returns the balance requirements applied to every operation.
func (n *Node) Params() tipping.Params { return n.params }

// Result is returned for every accepted ledger request.
type Result struct {
	Kind    types.RequestKind
	Hash    []byte
	Account *tipping.TipAccount
	Nonce   uint64
}

// Submit verifies, applies and commits a signed request.
func (n *Node) Submit(ctx context.Context, req *types.TipRequest) (*Result, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	switch req.Kind {
	case types.RequestInitialize, types.RequestSendTip:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownRequest, req.Kind)
	}

	method := req.Kind.String()
	ctx, span := n.tracer.Start(ctx, "tipping."+method, trace.WithAttributes(
		attribute.String("tipper", crypto.FormatAddress(req.Tipper)),
		attribute.String("creator", crypto.FormatAddress(req.Creator)),
	))
	defer span.End()
	start := time.Now()

	result, err := n.apply(ctx, req)

	kind := ""
	if err != nil {
		kind = "internal"
		if k, ok := tipping.KindOf(err); ok {
			kind = string(k)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		n.logger.Debug("tipping request rejected",
			slog.String("method", method),
			slog.String("tipper", crypto.FormatAddress(req.Tipper)),
			slog.String("kind", kind),
			slog.Any("error", err))
	}
	n.metrics.Observe(method, kind, time.Since(start))
	return result, err
}

func (n *Node) apply(ctx context.Context, req *types.TipRequest) (*Result, error) {
	hash, err := req.Hash()
	if err != nil {
		return nil, err
	}
	// A bad signature leaves the signer zero so the engine reports
	// Unauthorized after its pause check.
	signer, sigErr := req.Signer()
	if sigErr != nil {
		signer = [20]byte{}
	}

	unlock := n.locks.lock(req.Tipper, req.Creator)
	defer unlock()

	txn := n.state.Begin()
	committed := false
	defer func() {
		if !committed {
			txn.Discard()
		}
	}()

	collector := &events.Collector{}
	engine := n.newEngine(txn, collector)

	var account *tipping.TipAccount
	switch req.Kind {
	case types.RequestInitialize:
		account, err = engine.Initialize(req.Tipper, req.Creator, signer)
	case types.RequestSendTip:
		account, err = engine.SendTip(req.Tipper, req.Creator, req.Amount, signer)
	}
	if err != nil {
		return nil, err
	}

	tipperAcc, err := txn.GetAccount(req.Tipper[:])
	if err != nil {
		return nil, err
	}
	if tipperAcc.Nonce != req.Nonce {
		return nil, tipping.ErrInvalidNonce
	}
	tipperAcc.Nonce++
	if err := txn.PutAccount(req.Tipper[:], tipperAcc); err != nil {
		return nil, err
	}
	if req.Kind == types.RequestSendTip {
		collector.Emit(events.Transfer{From: req.Tipper, To: req.Creator, Amount: req.Amount, Reason: "tip"})
	}

	if err := txn.Commit(); err != nil {
		return nil, err
	}
	committed = true

	n.publish(collector)
	amount := uint64(0)
	receiptKind := ReceiptInitialize
	if req.Kind == types.RequestSendTip {
		amount = req.Amount
		receiptKind = ReceiptSendTip
		n.metrics.AddVolume(req.Amount)
	}
	n.record(ctx, Receipt{
		Kind:        receiptKind,
		RequestHash: hash,
		Tipper:      req.Tipper,
		Creator:     req.Creator,
		Amount:      amount,
		TotalTips:   account.TotalTips,
		Nonce:       req.Nonce,
		Timestamp:   n.nowFn().UTC(),
	})
	n.logger.Info("tipping request applied",
		slog.String("method", req.Kind.String()),
		slog.String("tipper", crypto.FormatAddress(req.Tipper)),
		slog.String("creator", crypto.FormatAddress(req.Creator)),
		slog.Uint64("amount", amount),
		slog.Uint64("totalTips", account.TotalTips))

	return &Result{Kind: req.Kind, Hash: hash, Account: account, Nonce: tipperAcc.Nonce}, nil
}

func (n *Node) newEngine(txn *state.Txn, emitter events.Emitter) *tipping.Engine {
	engine := tipping.NewEngine()
	engine.SetState(txn)
	engine.SetEmitter(emitter)
	engine.SetParams(n.params)
	engine.SetPauses(n.pauses)
	engine.SetNowFunc(func() int64 { return n.nowFn().Unix() })
	return engine
}

// Airdrop credits amount to addr from the faucet.
func (n *Node) Airdrop(ctx context.Context, addr [20]byte, amount uint64) (*types.Account, error) {
	if amount == 0 {
		return nil, ErrAirdropAmount
	}
	ctx, span := n.tracer.Start(ctx, "faucet.airdrop", trace.WithAttributes(
		attribute.String("account", crypto.FormatAddress(addr)),
	))
	defer span.End()

	unlock := n.locks.lock(addr, faucetLock)
	defer unlock()

	txn := n.state.Begin()
	account, err := txn.GetAccount(addr[:])
	if err != nil {
		txn.Discard()
		return nil, err
	}
	account.Balance = new(big.Int).Add(account.Balance, new(big.Int).SetUint64(amount))
	if err := txn.PutAccount(addr[:], account); err != nil {
		txn.Discard()
		return nil, err
	}
	var issued uint64
	if _, err := txn.KVGet([]byte(faucetIssuedKey), &issued); err != nil {
		txn.Discard()
		return nil, err
	}
	issued += amount
	if err := txn.KVPut([]byte(faucetIssuedKey), issued); err != nil {
		txn.Discard()
		return nil, err
	}
	if err := txn.Commit(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	n.bus.Emit(events.Transfer{To: addr, Amount: amount, Reason: "faucet"})
	n.metrics.RecordAirdrop()
	id := uuid.New()
	n.record(ctx, Receipt{
		Kind:        ReceiptAirdrop,
		RequestHash: crypto.Keccak256([]byte(ReceiptAirdrop), id[:]),
		Creator:     addr,
		Amount:      amount,
		Timestamp:   n.nowFn().UTC(),
	})
	n.logger.Info("faucet credited account",
		slog.String("component", "faucet"),
		slog.String("creator", crypto.FormatAddress(addr)),
		slog.Uint64("amount", amount))
	return account.Clone(), nil
}

// FaucetIssued returns the total amount credited by Airdrop.
func (n *Node) FaucetIssued() (uint64, error) {
	var issued uint64
	if _, err := n.state.KVGet([]byte(faucetIssuedKey), &issued); err != nil {
		return 0, err
	}
	return issued, nil
}

// TipAccount returns the committed tip account of tipper.
func (n *Node) TipAccount(tipper [20]byte) (*tipping.TipAccount, error) {
	account, ok, err := n.state.TipAccountGet(tipper)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, tipping.ErrRecordNotFound
	}
	return account, nil
}

// GetAccount returns the committed balance and nonce of addr.
func (n *Node) GetAccount(addr [20]byte) (*types.Account, error) {
	return n.state.GetAccount(addr[:])
}

func (n *Node) publish(collector *events.Collector) {
	for _, evt := range collector.Events() {
		n.bus.Emit(evt)
	}
}

func (n *Node) record(ctx context.Context, receipt Receipt) {
	if n.sink == nil {
		return
	}
	if err := n.sink.Record(ctx, receipt); err != nil {
		n.logger.Error("record receipt",
			slog.String("kind", receipt.Kind),
			slog.Any("error", err))
	}
}

// Close releases the underlying database.
func (n *Node) Close() {
	if n.db != nil {
		n.db.Close()
	}
}
