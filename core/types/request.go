package types

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"tipchain/crypto"
)

// RequestKind defines the purpose of a signed request.
type RequestKind uint8

const (
	RequestInitialize RequestKind = 0x01 // Create the tip account for the signer
	RequestSendTip    RequestKind = 0x02 // Move value from the signer to the bound creator
)

func (k RequestKind) String() string {
	switch k {
	case RequestInitialize:
		return "initialize"
	case RequestSendTip:
		return "send_tip"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

var requestDomain = []byte("tipchain/request/v1")

var errUnsigned = errors.New("types: request is not signed")

// TipRequest is the signed envelope for both ledger operations. Amount is
// ignored for initialize requests.
type TipRequest struct {
	Kind      RequestKind
	Nonce     uint64
	Tipper    [20]byte
	Creator   [20]byte
	Amount    uint64
	Signature []byte

	signer *[20]byte
}

type requestPayload struct {
	Kind    uint8
	Nonce   uint64
	Tipper  []byte
	Creator []byte
	Amount  uint64
}

// Hash returns the digest that the tipper signs.
func (r *TipRequest) Hash() ([]byte, error) {
	encoded, err := rlp.EncodeToBytes(requestPayload{
		Kind:    uint8(r.Kind),
		Nonce:   r.Nonce,
		Tipper:  r.Tipper[:],
		Creator: r.Creator[:],
		Amount:  r.Amount,
	})
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(requestDomain, encoded), nil
}

// Sign attaches a recoverable signature made with key.
func (r *TipRequest) Sign(key *crypto.PrivateKey) error {
	hash, err := r.Hash()
	if err != nil {
		return err
	}
	sig, err := key.Sign(hash)
	if err != nil {
		return err
	}
	r.Signature = sig
	r.signer = nil
	return nil
}

// Signer recovers the identity that signed the request.
func (r *TipRequest) Signer() ([20]byte, error) {
	if r.signer != nil {
		return *r.signer, nil
	}
	if len(r.Signature) == 0 {
		return [20]byte{}, errUnsigned
	}
	hash, err := r.Hash()
	if err != nil {
		return [20]byte{}, err
	}
	addr, err := crypto.RecoverAddress(hash, r.Signature)
	if err != nil {
		return [20]byte{}, err
	}
	r.signer = &addr
	return addr, nil
}
