package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"tipchain/core/types"
)

type storedAccount struct {
	Nonce   uint64
	Balance *big.Int
}

func loadAccount(r kvReader, addr []byte) (*types.Account, error) {
	if len(addr) == 0 {
		return nil, fmt.Errorf("address must not be empty")
	}
	data, ok, err := r.get(accountKey(addr))
	if err != nil {
		return nil, err
	}
	if !ok {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	var stored storedAccount
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, fmt.Errorf("decode account %x: %w", addr, err)
	}
	account := &types.Account{Nonce: stored.Nonce, Balance: stored.Balance}
	return account.EnsureDefaults(), nil
}

// GetAccount returns the committed account for addr. Unknown addresses read
// as an empty account.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	return loadAccount(m, addr)
}

// GetAccount reads the account through the overlay.
func (t *Txn) GetAccount(addr []byte) (*types.Account, error) {
	return loadAccount(t, addr)
}

// PutAccount stages the account under addr.
func (t *Txn) PutAccount(addr []byte, account *types.Account) error {
	if len(addr) == 0 {
		return fmt.Errorf("address must not be empty")
	}
	if account == nil {
		return fmt.Errorf("account must not be nil")
	}
	account = account.Clone().EnsureDefaults()
	if account.Balance.Sign() < 0 {
		return fmt.Errorf("negative balance for %x", addr)
	}
	encoded, err := rlp.EncodeToBytes(&storedAccount{Nonce: account.Nonce, Balance: account.Balance})
	if err != nil {
		return err
	}
	return t.put(accountKey(addr), encoded)
}
