package repo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/payout-ledger/pkg/db/dbtest"
	"github.com/angelmondragon/payout-ledger/pkg/db/models"
	"github.com/angelmondragon/payout-ledger/pkg/pagination"
)

func TestNewBaseStoresConnection(t *testing.T) {
	db := dbtest.Open(t)
	base := NewBase(db)

	if base.db != db {
		t.Fatalf("expected base db to match provided connection")
	}
}

func TestBaseDB_BindsContext(t *testing.T) {
	db := dbtest.Open(t)
	base := NewBase(db)

	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "value")
	withCtx := base.DB(ctx)

	if withCtx == nil || withCtx.Statement == nil {
		t.Fatalf("expected statement created after WithContext")
	}
	if withCtx.Statement.Context != ctx {
		t.Fatalf("expected context to be bound")
	}
	if base.DB(nil) != db {
		t.Fatalf("expected raw handle for nil context")
	}
}

func TestBaseBind(t *testing.T) {
	db := dbtest.Open(t)
	base := NewBase(db)

	if base.Bind(nil).db != db {
		t.Fatalf("nil tx should keep the current handle")
	}
	tx := db.Begin()
	t.Cleanup(func() { tx.Rollback() })
	if base.Bind(tx).db != tx {
		t.Fatalf("expected bound transaction")
	}
}

func TestNewestFirstAppliesKeyset(t *testing.T) {
	db := dbtest.Open(t).Session(&gorm.Session{DryRun: true})

	first := db.Scopes(NewestFirst(nil, 3)).Find(&[]models.Payout{}).Statement
	require.Contains(t, first.SQL.String(), "created_at DESC")
	require.Contains(t, first.SQL.String(), "LIMIT")
	require.NotContains(t, first.SQL.String(), "created_at <")

	cursor := &pagination.Cursor{CreatedAt: time.Now().UTC(), ID: uuid.New()}
	next := db.Scopes(NewestFirst(cursor, 3)).Find(&[]models.Payout{}).Statement
	require.Contains(t, next.SQL.String(), "created_at <")
	require.Contains(t, next.Vars, cursor.ID)
}
