package types

import "math/big"

// Account is the balance-holding record for a single identity.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
}

// EnsureDefaults fills nil numeric fields so callers can do arithmetic
// without nil checks.
func (a *Account) EnsureDefaults() *Account {
	if a == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	if a.Balance == nil {
		a.Balance = big.NewInt(0)
	}
	return a
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	}
	return &clone
}
