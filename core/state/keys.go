package state

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	accountPrefix    = []byte("account:")
	tipAccountPrefix = []byte("tip_account")
	kvPrefix         = []byte("kv:")
)

func accountKey(addr []byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr)
	return ethcrypto.Keccak256(buf)
}

func kvKey(key []byte) []byte {
	buf := make([]byte, len(kvPrefix)+len(key))
	copy(buf, kvPrefix)
	copy(buf[len(kvPrefix):], key)
	return ethcrypto.Keccak256(buf)
}

// TipAccountKey locates the tip account owned by tipper:
// keccak256("tip_account" || tipper).
func TipAccountKey(tipper [20]byte) []byte {
	buf := make([]byte, len(tipAccountPrefix)+len(tipper))
	copy(buf, tipAccountPrefix)
	copy(buf[len(tipAccountPrefix):], tipper[:])
	return ethcrypto.Keccak256(buf)
}

// TipAccountAddress is the 20-byte address derived from the tip account key.
func TipAccountAddress(tipper [20]byte) [20]byte {
	var out [20]byte
	key := TipAccountKey(tipper)
	copy(out[:], key[len(key)-20:])
	return out
}
