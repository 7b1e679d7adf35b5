package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestClassify(t *testing.T) {
	conflict := New(CodeConflict, "line items are not pending")
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"typed passes through", fmt.Errorf("outer: %w", conflict), CodeConflict},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, CodeDependency},
		{"deadlock via pq", fmt.Errorf("exec: %w", &pq.Error{Code: "40P01"}), CodeDependency},
		{"connection lost", &pgconn.PgError{Code: "08006"}, CodeDependency},
		{"unique violation", &pgconn.PgError{Code: "23505"}, CodeInternal},
		{"plain", stdErrors.New("boom"), CodeInternal},
	}
	for _, tt := range tests {
		if got := Classify(tt.err).Code(); got != tt.want {
			t.Fatalf("%s: expected %s got %s", tt.name, tt.want, got)
		}
	}
	if Classify(nil) != nil {
		t.Fatal("Classify(nil) should be nil")
	}
}

func TestDumpCapturesPostgresFields(t *testing.T) {
	err := fmt.Errorf("insert payout item: %w", &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "payout_items_line_item_key",
		TableName:      "payout_items",
	})
	d := Dump(err)
	if d.Postgres == nil || d.Postgres.Constraint != "payout_items_line_item_key" {
		t.Fatalf("postgres fields missing: %+v", d.Postgres)
	}
	if len(d.Chain) != 2 {
		t.Fatalf("expected two chain entries, got %v", d.Chain)
	}
	fields := d.Fields()
	if fields["pg_table"] != "payout_items" || fields["error_code"] != CodeInternal {
		t.Fatalf("unexpected log fields %v", fields)
	}
	if _, ok := Dump(stdErrors.New("plain")).Fields()["pg_code"]; ok {
		t.Fatal("plain errors must not carry pg fields")
	}
}

func TestPublicMessageHidesInternalText(t *testing.T) {
	if got := Wrap(CodeInternal, stdErrors.New("dsn=secret"), "load supplier").PublicMessage(); got != "internal server error" {
		t.Fatalf("internal message leaked: %q", got)
	}
	if got := Newf(CodeNotFound, "supplier %s not found", "s1").PublicMessage(); got != "supplier s1 not found" {
		t.Fatalf("unexpected public message %q", got)
	}
	if got := New(CodeForbidden, "").PublicMessage(); got != "access denied" {
		t.Fatalf("empty message should fall back, got %q", got)
	}
}
