package migrate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestCreateSQLMigrationAtRejectsCollision(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 4, 2, 10, 30, 0, 0, time.UTC)

	path, err := createSQLMigrationAt(dir, "add payout memo", at)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "20260402103000_add_payout_memo.sql"), path)

	_, err = createSQLMigrationAt(dir, "add payout memo", at)
	require.ErrorContains(t, err, "already exists")

	_, err = createSQLMigrationAt(dir, "!!!", at)
	require.Error(t, err)
	_, err = createSQLMigrationAt("", "x", at)
	require.Error(t, err)
}

func TestValidateDirReportsEveryProblem(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("20260101000000_ok.sql", "-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n")
	write("20260101000000_dup.sql", "-- +goose Up\n-- +goose Down\n")
	write("bad-name.sql", "-- +goose Up\n-- +goose Down\n")
	write("20260101000001_no_down.sql", "-- +goose Up\nSELECT 1;\n")
	write("20260101000002_unbalanced.sql", "-- +goose Up\n-- +goose StatementBegin\n-- +goose Down\n")
	write("README.md", "ignored")

	err := ValidateDir(dir)
	require.Error(t, err)
	require.Len(t, multierr.Errors(err), 4)
	require.ErrorContains(t, err, "bad-name.sql")
	require.ErrorContains(t, err, "missing \"-- +goose Down\"")
	require.ErrorContains(t, err, "StatementBegin")
	require.ErrorContains(t, err, "already used")
}
