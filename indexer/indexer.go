package indexer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"lukechampine.com/blake3"

	"tipchain/core"
	"tipchain/crypto"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ErrDisabled is returned by Open when no DSN is configured.
var ErrDisabled = errors.New("indexer: disabled")

// Indexer stores receipts in a SQL database.
type Indexer struct {
	db *gorm.DB
}

// Open connects to dsn. postgres:// URLs and key=value DSNs containing a host
// use the Postgres driver; anything else is treated as a SQLite path or URI.
func Open(dsn string) (*Indexer, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrDisabled
	}
	var dialector gorm.Dialector
	if isPostgresDSN(dsn) {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open: %w", err)
	}
	return New(db)
}

// New wraps an existing gorm handle and migrates the schema.
func New(db *gorm.DB) (*Indexer, error) {
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return &Indexer{db: db}, nil
}

func isPostgresDSN(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "postgres://") ||
		strings.HasPrefix(lower, "postgresql://") ||
		strings.Contains(lower, "host=")
}

// Digest identifies a receipt: blake3(kind || request hash).
func Digest(kind string, requestHash []byte) string {
	h := blake3.New(32, nil)
	h.Write([]byte(kind))
	h.Write(requestHash)
	return hex.EncodeToString(h.Sum(nil))
}

// Record implements core.ReceiptSink. Recording the same operation twice is
// a no-op.
func (ix *Indexer) Record(ctx context.Context, receipt core.Receipt) error {
	row := Receipt{
		ReceiptID:   uuid.New(),
		Digest:      Digest(receipt.Kind, receipt.RequestHash),
		Kind:        receipt.Kind,
		RequestHash: hex.EncodeToString(receipt.RequestHash),
		Creator:     crypto.FormatAddress(receipt.Creator),
		Amount:      Uint64(receipt.Amount),
		TotalTips:   Uint64(receipt.TotalTips),
		Nonce:       Uint64(receipt.Nonce),
		CreatedAt:   receipt.Timestamp,
	}
	var zero [20]byte
	if receipt.Tipper != zero {
		row.Tipper = crypto.FormatAddress(receipt.Tipper)
	}
	return ix.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "digest"}}, DoNothing: true}).
		Create(&row).Error
}

// Filter narrows List results. Empty fields match everything.
type Filter struct {
	Tipper  string
	Creator string
	Kind    string
	Limit   int
	Offset  int
}

// List returns receipts newest first.
func (ix *Indexer) List(ctx context.Context, filter Filter) ([]Receipt, error) {
	query := ix.db.WithContext(ctx).Model(&Receipt{})
	if filter.Tipper != "" {
		query = query.Where("tipper = ?", filter.Tipper)
	}
	if filter.Creator != "" {
		query = query.Where("creator = ?", filter.Creator)
	}
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	var receipts []Receipt
	if err := query.Order("id DESC").Limit(limit).Find(&receipts).Error; err != nil {
		return nil, err
	}
	return receipts, nil
}

// Close releases the underlying connection pool.
func (ix *Indexer) Close() error {
	sqlDB, err := ix.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
