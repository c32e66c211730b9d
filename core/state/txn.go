package state

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"
)

var errTxnClosed = errors.New("state: transaction already closed")

// Txn stages writes in memory and applies them with a single batch on
// Commit. A Txn is not safe for concurrent use.
type Txn struct {
	base   *Manager
	writes map[string][]byte
	closed bool
}

func (t *Txn) get(key []byte) ([]byte, bool, error) {
	if t.closed {
		return nil, false, errTxnClosed
	}
	if data, ok := t.writes[string(key)]; ok {
		return append([]byte(nil), data...), true, nil
	}
	return t.base.get(key)
}

func (t *Txn) put(key, value []byte) error {
	if t.closed {
		return errTxnClosed
	}
	t.writes[string(key)] = append([]byte(nil), value...)
	return nil
}

// KVPut stages an RLP encoded value under key.
func (t *Txn) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return t.put(kvKey(key), encoded)
}

// KVGet reads through the overlay.
func (t *Txn) KVGet(key []byte, out interface{}) (bool, error) {
	return kvGet(t, key, out)
}

// Pending returns the number of staged writes.
func (t *Txn) Pending() int { return len(t.writes) }

// Commit writes every staged entry atomically. The Txn cannot be reused.
func (t *Txn) Commit() error {
	if t.closed {
		return errTxnClosed
	}
	t.closed = true
	if len(t.writes) == 0 {
		return nil
	}
	keys := make([]string, 0, len(t.writes))
	for k := range t.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := t.base.db.NewBatch()
	for _, k := range keys {
		batch.Put([]byte(k), t.writes[k])
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	t.writes = nil
	return nil
}

// Discard drops the staged writes.
func (t *Txn) Discard() {
	t.closed = true
	t.writes = nil
}
