package indexer

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tipchain/core"
	"tipchain/crypto"
)

func setupTestIndexer(t *testing.T) *Indexer {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	ix, err := New(db)
	if err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return ix
}

func receipt(kind string, tipper, creator byte, hash byte, amount uint64) core.Receipt {
	return core.Receipt{
		Kind:        kind,
		RequestHash: []byte{hash, hash, hash},
		Tipper:      [20]byte{tipper},
		Creator:     [20]byte{creator},
		Amount:      amount,
		TotalTips:   amount,
		Timestamp:   time.Unix(1_700_000_000, 0).UTC(),
	}
}

func TestRecordIsIdempotent(t *testing.T) {
	ix := setupTestIndexer(t)
	ctx := context.Background()
	r := receipt(core.ReceiptSendTip, 1, 2, 0xaa, 100)

	require.NoError(t, ix.Record(ctx, r))
	require.NoError(t, ix.Record(ctx, r))

	rows, err := ix.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, Digest(r.Kind, r.RequestHash), rows[0].Digest)
	require.Equal(t, crypto.FormatAddress(r.Tipper), rows[0].Tipper)
	require.Equal(t, Uint64(100), rows[0].Amount)
}

func TestListFilters(t *testing.T) {
	ix := setupTestIndexer(t)
	ctx := context.Background()
	require.NoError(t, ix.Record(ctx, receipt(core.ReceiptInitialize, 1, 2, 0x01, 0)))
	require.NoError(t, ix.Record(ctx, receipt(core.ReceiptSendTip, 1, 2, 0x02, 10)))
	require.NoError(t, ix.Record(ctx, receipt(core.ReceiptSendTip, 3, 2, 0x03, 20)))
	require.NoError(t, ix.Record(ctx, receipt(core.ReceiptSendTip, 3, 4, 0x04, 30)))

	byTipper, err := ix.List(ctx, Filter{Tipper: crypto.FormatAddress([20]byte{1})})
	require.NoError(t, err)
	require.Len(t, byTipper, 2)
	require.Equal(t, core.ReceiptSendTip, byTipper[0].Kind)

	byCreator, err := ix.List(ctx, Filter{Creator: crypto.FormatAddress([20]byte{2}), Kind: core.ReceiptSendTip})
	require.NoError(t, err)
	require.Len(t, byCreator, 2)
	require.Equal(t, Uint64(20), byCreator[0].Amount)

	limited, err := ix.List(ctx, Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, Uint64(20), limited[0].Amount)
}

func TestRecordFullRangeAmounts(t *testing.T) {
	ix := setupTestIndexer(t)
	ctx := context.Background()
	r := receipt(core.ReceiptSendTip, 1, 2, 0x0f, math.MaxUint64)
	r.Nonce = math.MaxUint64 - 1
	require.NoError(t, ix.Record(ctx, r))

	rows, err := ix.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, Uint64(math.MaxUint64), rows[0].Amount)
	require.Equal(t, Uint64(math.MaxUint64), rows[0].TotalTips)
	require.Equal(t, Uint64(math.MaxUint64-1), rows[0].Nonce)
}

func TestUint64Scan(t *testing.T) {
	var u Uint64
	require.NoError(t, u.Scan([]byte("18446744073709551615")))
	require.Equal(t, Uint64(math.MaxUint64), u)
	require.NoError(t, u.Scan(int64(7)))
	require.Equal(t, Uint64(7), u)
	require.Error(t, u.Scan("-1"))
	require.Error(t, u.Scan(int64(-1)))
	require.Error(t, u.Scan(3.5))
}

func TestAirdropReceiptHasNoTipper(t *testing.T) {
	ix := setupTestIndexer(t)
	ctx := context.Background()
	r := receipt(core.ReceiptAirdrop, 0, 5, 0x09, 1_000)
	r.Tipper = [20]byte{}
	require.NoError(t, ix.Record(ctx, r))

	rows, err := ix.List(ctx, Filter{Kind: core.ReceiptAirdrop})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Empty(t, rows[0].Tipper)
}

func TestOpenSQLiteFile(t *testing.T) {
	_, err := Open("")
	require.ErrorIs(t, err, ErrDisabled)

	ix, err := Open(filepath.Join(t.TempDir(), "receipts.db"))
	require.NoError(t, err)
	defer ix.Close()
	require.NoError(t, ix.Record(context.Background(), receipt(core.ReceiptSendTip, 1, 2, 0x01, 5)))
}

func TestIsPostgresDSN(t *testing.T) {
	require.True(t, isPostgresDSN("postgres://tips@localhost/tips"))
	require.True(t, isPostgresDSN("host=localhost user=tips dbname=tips"))
	require.False(t, isPostgresDSN("file:receipts.db"))
}
