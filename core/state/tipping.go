package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"tipchain/native/tipping"
)

type storedTipAccount struct {
	Tipper    [20]byte
	Creator   [20]byte
	TotalTips uint64
	Deposit   uint64
	CreatedAt uint64
}

func newStoredTipAccount(account *tipping.TipAccount) *storedTipAccount {
	createdAt := account.CreatedAt
	if createdAt < 0 {
		createdAt = 0
	}
	return &storedTipAccount{
		Tipper:    account.Tipper,
		Creator:   account.Creator,
		TotalTips: account.TotalTips,
		Deposit:   account.Deposit,
		CreatedAt: uint64(createdAt),
	}
}

func (s *storedTipAccount) toTipAccount() *tipping.TipAccount {
	return &tipping.TipAccount{
		Tipper:    s.Tipper,
		Creator:   s.Creator,
		TotalTips: s.TotalTips,
		Deposit:   s.Deposit,
		CreatedAt: int64(s.CreatedAt),
	}
}

func loadTipAccount(r kvReader, tipper [20]byte) (*tipping.TipAccount, bool, error) {
	data, ok, err := r.get(TipAccountKey(tipper))
	if err != nil || !ok {
		return nil, false, err
	}
	var stored storedTipAccount
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, false, fmt.Errorf("decode tip account: %w", err)
	}
	return stored.toTipAccount(), true, nil
}

// TipAccountGet returns the committed tip account for tipper.
func (m *Manager) TipAccountGet(tipper [20]byte) (*tipping.TipAccount, bool, error) {
	return loadTipAccount(m, tipper)
}

// TipAccountGet reads the tip account through the overlay.
func (t *Txn) TipAccountGet(tipper [20]byte) (*tipping.TipAccount, bool, error) {
	return loadTipAccount(t, tipper)
}

// TipAccountPut stages the tip account at its locator.
func (t *Txn) TipAccountPut(account *tipping.TipAccount) error {
	if account == nil {
		return fmt.Errorf("tip account must not be nil")
	}
	encoded, err := rlp.EncodeToBytes(newStoredTipAccount(account))
	if err != nil {
		return err
	}
	return t.put(TipAccountKey(account.Tipper), encoded)
}
