// Package dbtest opens isolated SQLite databases carrying the ledger schema
// for repository and service tests.
package dbtest

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/payout-ledger/pkg/db"
	"github.com/angelmondragon/payout-ledger/pkg/db/models"
	"github.com/angelmondragon/payout-ledger/pkg/enums"
)

var schema = []string{
	`CREATE TABLE suppliers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending_approval',
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE order_line_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		supplier_id TEXT NOT NULL,
		name TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		unit_price_cents INTEGER NOT NULL,
		total_cents INTEGER NOT NULL,
		eligible_at DATETIME,
		payment_state TEXT NOT NULL DEFAULT 'unbilled',
		payout_id TEXT,
		version INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (order_id, id)
	)`,
	`CREATE TABLE payouts (
		id TEXT PRIMARY KEY,
		supplier_id TEXT NOT NULL,
		amount_cents INTEGER NOT NULL,
		item_count INTEGER NOT NULL,
		idempotency_key TEXT NOT NULL UNIQUE,
		request_hash TEXT NOT NULL,
		created_by TEXT,
		created_at DATETIME,
		reversed_at DATETIME,
		reversal_reason TEXT
	)`,
	`CREATE TABLE payout_items (
		payout_id TEXT NOT NULL,
		line_item_id TEXT NOT NULL UNIQUE,
		order_id TEXT NOT NULL,
		total_cents INTEGER NOT NULL,
		PRIMARY KEY (payout_id, line_item_id)
	)`,
	`CREATE TABLE line_item_reversals (
		id TEXT PRIMARY KEY,
		line_item_id TEXT NOT NULL UNIQUE,
		order_id TEXT NOT NULL,
		supplier_id TEXT NOT NULL,
		previous_state TEXT NOT NULL,
		amount_cents INTEGER NOT NULL,
		payout_id TEXT,
		reason TEXT NOT NULL,
		actor_user_id TEXT,
		created_at DATETIME
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL UNIQUE,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json BLOB NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME
	)`,
}

// Open returns a fresh database private to the test. A single connection
// serializes writers the way row locks would on postgres.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	conn := open(t, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return conn
}

// OpenWAL returns a file-backed database in WAL mode with a multi-connection
// pool. A read transaction keeps its snapshot while other connections commit.
func OpenWAL(t testing.TB) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	return open(t, fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path))
}

func open(t testing.TB, dsn string) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Discard,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}

// NewClient wraps Open in a db.Client.
func NewClient(t testing.TB) *db.Client {
	t.Helper()
	return db.NewFromGorm(Open(t))
}

// SeedSupplier inserts a supplier with the given status.
func SeedSupplier(t testing.TB, conn *gorm.DB, status enums.SupplierStatus) models.Supplier {
	t.Helper()
	supplier := models.Supplier{
		ID:     uuid.New(),
		Name:   "Supplier " + uuid.NewString()[:8],
		Status: status,
	}
	if err := conn.Create(&supplier).Error; err != nil {
		t.Fatalf("seed supplier: %v", err)
	}
	return supplier
}

// LineItemSeed describes a line item to insert.
type LineItemSeed struct {
	OrderID    uuid.UUID
	SupplierID uuid.UUID
	Name       string
	Quantity   int
	TotalCents int64
	State      enums.PaymentState
}

// SeedLineItem inserts a line item. Every state except unbilled gets eligible_at.
func SeedLineItem(t testing.TB, conn *gorm.DB, seed LineItemSeed) models.LineItem {
	t.Helper()
	if seed.OrderID == uuid.Nil {
		seed.OrderID = uuid.New()
	}
	if seed.Quantity <= 0 {
		seed.Quantity = 1
	}
	if seed.State == "" {
		seed.State = enums.PaymentStatePending
	}
	if seed.Name == "" {
		seed.Name = "item"
	}
	item := models.LineItem{
		ID:             uuid.New(),
		OrderID:        seed.OrderID,
		SupplierID:     seed.SupplierID,
		Name:           seed.Name,
		Quantity:       seed.Quantity,
		UnitPriceCents: seed.TotalCents / int64(seed.Quantity),
		TotalCents:     seed.TotalCents,
		PaymentState:   seed.State,
	}
	if seed.State != enums.PaymentStateUnbilled {
		eligible := time.Now().UTC().Add(-time.Hour)
		item.EligibleAt = &eligible
	}
	if err := conn.Create(&item).Error; err != nil {
		t.Fatalf("seed line item: %v", err)
	}
	return item
}

// ReloadLineItem reads the current row for id.
func ReloadLineItem(t testing.TB, conn *gorm.DB, id uuid.UUID) models.LineItem {
	t.Helper()
	var item models.LineItem
	if err := conn.Where("id = ?", id).First(&item).Error; err != nil {
		t.Fatalf("reload line item %s: %v", id, err)
	}
	return item
}

// Count returns the row count of table.
func Count(t testing.TB, conn *gorm.DB, table string) int64 {
	t.Helper()
	var n int64
	if err := conn.Table(table).Count(&n).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
