package state

import (
	"errors"
	"math/big"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/require"

	"tipchain/core/types"
	"tipchain/native/tipping"
	"tipchain/storage"
)

func testAddr(b byte) [20]byte {
	var out [20]byte
	out[0] = b
	return out
}

func TestTipAccountKeyDerivation(t *testing.T) {
	tipper := testAddr(7)
	want := ethcrypto.Keccak256(append([]byte("tip_account"), tipper[:]...))
	require.Equal(t, want, TipAccountKey(tipper))
	require.NotEqual(t, TipAccountKey(tipper), TipAccountKey(testAddr(8)))

	derived := TipAccountAddress(tipper)
	require.Equal(t, want[12:], derived[:])
}

func TestTxnReadsOwnWrites(t *testing.T) {
	db := storage.NewMemDB()
	manager := NewManager(db)
	addr := testAddr(1)

	txn := manager.Begin()
	require.NoError(t, txn.PutAccount(addr[:], &types.Account{Nonce: 3, Balance: big.NewInt(500)}))

	staged, err := txn.GetAccount(addr[:])
	require.NoError(t, err)
	require.Equal(t, uint64(3), staged.Nonce)
	require.Equal(t, int64(500), staged.Balance.Int64())

	committed, err := manager.GetAccount(addr[:])
	require.NoError(t, err)
	require.Zero(t, committed.Nonce)
	require.Zero(t, committed.Balance.Sign())

	require.NoError(t, txn.Commit())
	committed, err = manager.GetAccount(addr[:])
	require.NoError(t, err)
	require.Equal(t, int64(500), committed.Balance.Int64())
}

func TestTxnDiscardLeavesStateUntouched(t *testing.T) {
	db := storage.NewMemDB()
	manager := NewManager(db)
	tipper := testAddr(1)

	txn := manager.Begin()
	require.NoError(t, txn.TipAccountPut(&tipping.TipAccount{Tipper: tipper, Creator: testAddr(2)}))
	txn.Discard()

	_, ok, err := manager.TipAccountGet(tipper)
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, db.Keys())

	if err := txn.Commit(); !errors.Is(err, errTxnClosed) {
		t.Fatalf("expected closed txn error, got %v", err)
	}
}

func TestTipAccountRoundTrip(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	record := &tipping.TipAccount{
		Tipper:    testAddr(1),
		Creator:   testAddr(2),
		TotalTips: 100_000_000,
		Deposit:   1_447_680,
		CreatedAt: 1_700_000_000,
	}
	txn := manager.Begin()
	require.NoError(t, txn.TipAccountPut(record))
	require.NoError(t, txn.Commit())

	got, ok, err := manager.TipAccountGet(record.Tipper)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, record, got)
}

func TestTipAccountStoredLayout(t *testing.T) {
	db := storage.NewMemDB()
	manager := NewManager(db)
	record := &tipping.TipAccount{Tipper: testAddr(1), Creator: testAddr(2), TotalTips: 9, Deposit: 3, CreatedAt: 5}
	txn := manager.Begin()
	require.NoError(t, txn.TipAccountPut(record))
	require.NoError(t, txn.Commit())

	raw, err := db.Get(TipAccountKey(record.Tipper))
	require.NoError(t, err)
	var fields []rlp.RawValue
	require.NoError(t, rlp.DecodeBytes(raw, &fields))
	// tipper, creator, totalTips, deposit, createdAt
	require.Len(t, fields, 5)
}

func TestPutAccountRejectsNegativeBalance(t *testing.T) {
	txn := NewManager(storage.NewMemDB()).Begin()
	addr := testAddr(1)
	err := txn.PutAccount(addr[:], &types.Account{Balance: big.NewInt(-1)})
	require.Error(t, err)
	require.Zero(t, txn.Pending())
}

func TestEngineOverTxnCommitsAtomically(t *testing.T) {
	db := storage.NewMemDB()
	manager := NewManager(db)
	tipper, creator := testAddr(1), testAddr(2)

	seed := manager.Begin()
	require.NoError(t, seed.PutAccount(tipper[:], &types.Account{Balance: big.NewInt(1_000_000_000)}))
	require.NoError(t, seed.Commit())

	engine := tipping.NewEngine()
	txn := manager.Begin()
	engine.SetState(txn)
	_, err := engine.Initialize(tipper, creator, tipper)
	require.NoError(t, err)
	_, err = engine.SendTip(tipper, creator, 100_000_000, tipper)
	require.NoError(t, err)

	before, err := manager.GetAccount(creator[:])
	require.NoError(t, err)
	require.Zero(t, before.Balance.Sign())

	require.NoError(t, txn.Commit())
	after, err := manager.GetAccount(creator[:])
	require.NoError(t, err)
	require.Equal(t, int64(100_000_000), after.Balance.Int64())

	record, ok, err := manager.TipAccountGet(tipper)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(100_000_000), record.TotalTips)
}

func TestKVRoundTrip(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	txn := manager.Begin()
	require.NoError(t, txn.KVPut([]byte("faucet/total"), uint64(42)))
	require.NoError(t, txn.Commit())

	var out uint64
	ok, err := manager.KVGet([]byte("faucet/total"), &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(42), out)
}
