package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix defines the human-readable part of an encoded address.
type AddressPrefix string

const (
	// TipPrefix is used for every account on the tip ledger.
	TipPrefix AddressPrefix = "tip"

	AddressLength   = 20
	SignatureLength = 65
)

var ErrInvalidSignature = errors.New("crypto: invalid signature")

// Address represents a 20-byte account identity with a bech32 prefix.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

func NewAddress(prefix AddressPrefix, b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("crypto: address must be %d bytes, got %d", AddressLength, len(b))
	}
	return Address{prefix: prefix, bytes: append([]byte(nil), b...)}, nil
}

// MustNewAddress is NewAddress for callers holding a fixed-size array.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	addr, err := NewAddress(prefix, b)
	if err != nil {
		panic(err)
	}
	return addr
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	return append([]byte(nil), a.bytes...)
}

// Array returns the address as the fixed-size form used by state and engines.
func (a Address) Array() [AddressLength]byte {
	var out [AddressLength]byte
	copy(out[:], a.bytes)
	return out
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(strings.TrimSpace(addrStr))
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if AddressPrefix(prefix) != TipPrefix {
		return Address{}, fmt.Errorf("unexpected address prefix %q", prefix)
	}
	return NewAddress(AddressPrefix(prefix), conv)
}

// FormatAddress renders a raw 20-byte identity with the tip prefix.
func FormatAddress(addr [AddressLength]byte) string {
	return MustNewAddress(TipPrefix, addr[:]).String()
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Sign produces a 65-byte recoverable signature over a 32-byte digest.
func (k *PrivateKey) Sign(digest []byte) ([]byte, error) {
	return crypto.Sign(digest, k.PrivateKey)
}

func (k *PublicKey) Address() Address {
	addrBytes := crypto.PubkeyToAddress(*k.PublicKey).Bytes()
	return MustNewAddress(TipPrefix, addrBytes)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// RecoverAddress returns the identity whose key produced sig over digest.
func RecoverAddress(digest, sig []byte) ([AddressLength]byte, error) {
	var out [AddressLength]byte
	if len(sig) != SignatureLength {
		return out, ErrInvalidSignature
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	copy(out[:], crypto.PubkeyToAddress(*pub).Bytes())
	return out, nil
}

// Keccak256 hashes the concatenation of data.
func Keccak256(data ...[]byte) []byte {
	return crypto.Keccak256(data...)
}
