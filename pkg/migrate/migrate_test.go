package migrate

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
)

type fakeMigrator struct {
	current int64
	upTo    int64
	downTo  int64
	err     error
}

func (f *fakeMigrator) Up(context.Context) ([]*goose.MigrationResult, error) {
	return []*goose.MigrationResult{{Source: &goose.Source{Version: 1}}}, f.err
}

func (f *fakeMigrator) Down(context.Context) (*goose.MigrationResult, error) {
	return nil, f.err
}

func (f *fakeMigrator) UpTo(_ context.Context, v int64) ([]*goose.MigrationResult, error) {
	f.upTo = v
	return nil, f.err
}

func (f *fakeMigrator) DownTo(_ context.Context, v int64) ([]*goose.MigrationResult, error) {
	f.downTo = v
	return nil, f.err
}

func (f *fakeMigrator) Status(context.Context) ([]*goose.MigrationStatus, error) {
	return []*goose.MigrationStatus{
		{State: goose.StateApplied, Source: &goose.Source{Path: "20260301090000_create_ledger_enums.sql"}},
		{State: goose.StatePending, Source: &goose.Source{Path: "20260301090100_create_suppliers.sql"}},
	}, f.err
}

func (f *fakeMigrator) GetDBVersion(context.Context) (int64, error) {
	return f.current, nil
}

func TestApplyVersionPicksDirection(t *testing.T) {
	ctx := context.Background()

	up := &fakeMigrator{current: 20260301090000}
	_, err := Apply(ctx, up, "version", "20260301090500")
	require.NoError(t, err)
	require.EqualValues(t, 20260301090500, up.upTo)
	require.Zero(t, up.downTo)

	down := &fakeMigrator{current: 20260301090500}
	_, err = Apply(ctx, down, "version", "20260301090100")
	require.NoError(t, err)
	require.EqualValues(t, 20260301090100, down.downTo)

	same := &fakeMigrator{current: 20260301090100}
	lines, err := Apply(ctx, same, "version", "20260301090100")
	require.NoError(t, err)
	require.Empty(t, lines)
	require.Zero(t, same.upTo+same.downTo)
}

func TestApplyRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	for _, target := range []string{"", "abc", "2026"} {
		_, err := Apply(ctx, &fakeMigrator{}, "version", target)
		require.Error(t, err, target)
	}
	_, err := Apply(ctx, &fakeMigrator{}, "redo", "")
	require.ErrorContains(t, err, "unknown migrate command")
}

func TestApplyStatusAndErrors(t *testing.T) {
	ctx := context.Background()
	lines, err := Apply(ctx, &fakeMigrator{}, "status", "")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.Contains(t, lines[1], "pending")

	boom := errors.New("connection reset")
	_, err = Apply(ctx, &fakeMigrator{err: boom}, "down", "")
	require.ErrorIs(t, err, boom)
	require.ErrorContains(t, err, "goose down")
}

func TestEmbeddedMigrationsMatchDirectory(t *testing.T) {
	embeddedNames, err := fs.Glob(Migrations(), "*.sql")
	require.NoError(t, err)
	onDisk, err := fs.Glob(os.DirFS("migrations"), "*.sql")
	require.NoError(t, err)
	require.Equal(t, onDisk, embeddedNames)
	require.NotEmpty(t, embeddedNames)
}
