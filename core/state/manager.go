package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"tipchain/storage"
)

// Manager reads committed ledger state and hands out write overlays.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Begin opens an overlay on top of the committed state. Reads see the
// overlay's own staged writes first.
func (m *Manager) Begin() *Txn {
	return &Txn{base: m, writes: make(map[string][]byte)}
}

type kvReader interface {
	get(key []byte) ([]byte, bool, error)
}

func (m *Manager) get(key []byte) ([]byte, bool, error) {
	data, err := m.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// KVGet decodes the RLP value stored under key into out.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	return kvGet(m, key, out)
}

func kvGet(r kvReader, key []byte, out interface{}) (bool, error) {
	data, ok, err := r.get(kvKey(key))
	if err != nil || !ok {
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("decode %x: %w", key, err)
	}
	return true, nil
}
