package indexer

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Receipt is the persisted form of a committed ledger operation.
type Receipt struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	ReceiptID   uuid.UUID `gorm:"type:uuid;uniqueIndex"`
	Digest      string    `gorm:"size:64;uniqueIndex"`
	Kind        string    `gorm:"size:16;index"`
	RequestHash string    `gorm:"size:64"`
	Tipper      string    `gorm:"size:64;index"`
	Creator     string    `gorm:"size:64;index"`
	Amount      Uint64    `gorm:"type:varchar(20)"`
	TotalTips   Uint64    `gorm:"type:varchar(20)"`
	Nonce       Uint64    `gorm:"type:varchar(20)"`
	CreatedAt   time.Time `gorm:"index"`
}

// AutoMigrate performs all schema migrations for the indexer.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Receipt{})
}

// Uint64 is stored as a decimal string. database/sql rejects uint64 values
// with the high bit set, and tip totals may use the full range.
type Uint64 uint64

// Value implements driver.Valuer.
func (u Uint64) Value() (driver.Value, error) {
	return strconv.FormatUint(uint64(u), 10), nil
}

// Scan implements sql.Scanner.
func (u *Uint64) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*u = 0
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	case int64:
		if v < 0 {
			return fmt.Errorf("indexer: negative value %d", v)
		}
		*u = Uint64(v)
		return nil
	default:
		return fmt.Errorf("indexer: cannot scan %T into Uint64", src)
	}
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("indexer: parse %q: %w", raw, err)
	}
	*u = Uint64(parsed)
	return nil
}
