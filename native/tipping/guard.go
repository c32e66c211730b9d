package tipping

import (
	"github.com/holiman/uint256"

	"tipchain/core/types"
)

// ensureDistinct is the self-tip guard shared by Initialize and SendTip.
func ensureDistinct(tipper, creator [20]byte) error {
	if tipper == creator {
		return ErrSelfTip
	}
	return nil
}

// authorize checks that the verified signer is the tipper. Signature
// verification itself happens before the engine is called.
func authorize(signer, tipper [20]byte) error {
	if isZeroAddress(signer) || signer != tipper {
		return ErrUnauthorized
	}
	return nil
}

func requirePositive(amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	return nil
}

// addTips returns total+amount or ErrOverflow when the sum leaves uint64.
func addTips(total, amount uint64) (uint64, error) {
	sum := new(uint256.Int).Add(uint256.NewInt(total), uint256.NewInt(amount))
	if !sum.IsUint64() {
		return 0, ErrOverflow
	}
	return sum.Uint64(), nil
}

// ensureSpendable verifies the account can pay amount and still hold the
// minimum balance.
func ensureSpendable(acc *types.Account, amount, minBalance uint64) error {
	if acc.Balance.Sign() < 0 {
		return ErrInsufficientFunds
	}
	balance, overflow := uint256.FromBig(acc.Balance)
	if overflow {
		return errBalanceOutOfRange
	}
	required := new(uint256.Int).Add(uint256.NewInt(amount), uint256.NewInt(minBalance))
	if balance.Lt(required) {
		return ErrInsufficientFunds
	}
	return nil
}

func isZeroAddress(addr [20]byte) bool {
	var zero [20]byte
	return addr == zero
}
