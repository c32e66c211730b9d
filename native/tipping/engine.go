package tipping

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"tipchain/core/events"
	"tipchain/core/types"
	"tipchain/native/common"
)

// ModuleName identifies the tipping module for pause controls.
const ModuleName = "tipping"

type engineState interface {
	TipAccountGet(tipper [20]byte) (*TipAccount, bool, error)
	TipAccountPut(account *TipAccount) error
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

// Engine applies tip ledger operations against a state backend. It performs
// every check before the first write, so a returned error means nothing was
// staged. Callers are expected to serialize operations touching the same
// accounts and to commit or discard the backend as a unit.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
	params  Params
	pauses  common.PauseView
}

// NewEngine constructs a tipping engine with default dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn: func() int64 {
			return time.Now().Unix()
		},
		params: DefaultParams(),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetParams replaces the balance requirements.
func (e *Engine) SetParams(params Params) { e.params = params }

// Params returns the active balance requirements.
func (e *Engine) Params() Params { return e.params }

// SetPauses wires the pause view consulted before every operation.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// Initialize creates the tip account binding tipper to creator. The signer
// must be the tipper. The record deposit is debited from the tipper.
func (e *Engine) Initialize(tipper, creator, signer [20]byte) (*TipAccount, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.guard(); err != nil {
		return nil, err
	}
	if err := authorize(signer, tipper); err != nil {
		return nil, err
	}
	if err := ensureDistinct(tipper, creator); err != nil {
		return nil, err
	}
	_, exists, err := e.state.TipAccountGet(tipper)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateRecord
	}
	tipperAcc, err := e.loadAccount(tipper)
	if err != nil {
		return nil, err
	}
	if err := ensureSpendable(tipperAcc, e.params.RecordDeposit, e.params.MinBalance); err != nil {
		return nil, err
	}

	account := &TipAccount{
		Tipper:    tipper,
		Creator:   creator,
		TotalTips: 0,
		Deposit:   e.params.RecordDeposit,
		CreatedAt: e.now(),
	}
	if e.params.RecordDeposit > 0 {
		tipperAcc.Balance = new(big.Int).Sub(tipperAcc.Balance, new(big.Int).SetUint64(e.params.RecordDeposit))
		if err := e.state.PutAccount(tipper[:], tipperAcc); err != nil {
			return nil, err
		}
	}
	if err := e.state.TipAccountPut(account); err != nil {
		return nil, err
	}
	e.emit(AccountInitializedEvent(account))
	return account.Clone(), nil
}

// SendTip transfers amount from tipper to creator and adds it to the tip
// account's running total.
func (e *Engine) SendTip(tipper, creator [20]byte, amount uint64, signer [20]byte) (*TipAccount, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.guard(); err != nil {
		return nil, err
	}
	if err := authorize(signer, tipper); err != nil {
		return nil, err
	}
	if err := ensureDistinct(tipper, creator); err != nil {
		return nil, err
	}
	if err := requirePositive(amount); err != nil {
		return nil, err
	}
	account, exists, err := e.state.TipAccountGet(tipper)
	if err != nil {
		return nil, err
	}
	if !exists || account == nil {
		return nil, ErrRecordNotFound
	}
	if account.Tipper != tipper {
		return nil, ErrTipperMismatch
	}
	if account.Creator != creator {
		return nil, ErrCreatorMismatch
	}
	total, err := addTips(account.TotalTips, amount)
	if err != nil {
		return nil, err
	}
	tipperAcc, err := e.loadAccount(tipper)
	if err != nil {
		return nil, err
	}
	if err := ensureSpendable(tipperAcc, amount, e.params.MinBalance); err != nil {
		return nil, err
	}
	creatorAcc, err := e.loadAccount(creator)
	if err != nil {
		return nil, err
	}

	value := new(big.Int).SetUint64(amount)
	tipperAcc.Balance = new(big.Int).Sub(tipperAcc.Balance, value)
	creatorAcc.Balance = new(big.Int).Add(creatorAcc.Balance, value)
	account.TotalTips = total

	if err := e.state.PutAccount(tipper[:], tipperAcc); err != nil {
		return nil, err
	}
	if err := e.state.PutAccount(creator[:], creatorAcc); err != nil {
		return nil, err
	}
	if err := e.state.TipAccountPut(account); err != nil {
		return nil, err
	}
	e.emit(TipSentEvent(account, amount))
	return account.Clone(), nil
}

// TipAccount returns the record owned by tipper.
func (e *Engine) TipAccount(tipper [20]byte) (*TipAccount, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	account, exists, err := e.state.TipAccountGet(tipper)
	if err != nil {
		return nil, err
	}
	if !exists || account == nil {
		return nil, ErrRecordNotFound
	}
	return account.Clone(), nil
}

func (e *Engine) guard() error {
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		if errors.Is(err, common.ErrModulePaused) {
			return ErrModulePaused
		}
		return err
	}
	return nil
}

func (e *Engine) loadAccount(addr [20]byte) (*types.Account, error) {
	acc, err := e.state.GetAccount(addr[:])
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	return acc.EnsureDefaults(), nil
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}
