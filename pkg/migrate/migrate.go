package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"
)

const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Migrations returns the migration set compiled into the binary, so
// deployed services do not depend on the working directory.
func Migrations() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// NewProvider builds a goose provider over db. An empty dir selects the
// embedded migrations. The schema uses plpgsql and enum types, so postgres
// is the only dialect.
func NewProvider(db *sql.DB, dir string) (*goose.Provider, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	fsys := Migrations()
	if dir != "" {
		fsys = os.DirFS(dir)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return provider, nil
}

// Migrator is the subset of *goose.Provider the commands use.
type Migrator interface {
	Up(ctx context.Context) ([]*goose.MigrationResult, error)
	Down(ctx context.Context) (*goose.MigrationResult, error)
	UpTo(ctx context.Context, version int64) ([]*goose.MigrationResult, error)
	DownTo(ctx context.Context, version int64) ([]*goose.MigrationResult, error)
	Status(ctx context.Context) ([]*goose.MigrationStatus, error)
	GetDBVersion(ctx context.Context) (int64, error)
}

// Apply runs one of up, down, status or version against m. version takes a
// target in YYYYMMDDHHMMSS form and migrates in whichever direction reaches it.
// The returned lines describe what happened, one per migration.
func Apply(ctx context.Context, m Migrator, command, target string) ([]string, error) {
	switch command {
	case "up":
		results, err := m.Up(ctx)
		return describeResults(results), wrapGoose(command, err)
	case "down":
		result, err := m.Down(ctx)
		if result == nil {
			return nil, wrapGoose(command, err)
		}
		return describeResults([]*goose.MigrationResult{result}), wrapGoose(command, err)
	case "status":
		statuses, err := m.Status(ctx)
		if err != nil {
			return nil, wrapGoose(command, err)
		}
		lines := make([]string, 0, len(statuses))
		for _, st := range statuses {
			lines = append(lines, fmt.Sprintf("%-8s %s", st.State, st.Source.Path))
		}
		return lines, nil
	case "version":
		return migrateTo(ctx, m, target)
	}
	return nil, fmt.Errorf("unknown migrate command %q", command)
}

func migrateTo(ctx context.Context, m Migrator, target string) ([]string, error) {
	if target == "" {
		return nil, errors.New("target version is required")
	}
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil || len(target) != len(versionLayout) {
		return nil, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", target)
	}
	current, err := m.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("get db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current == version:
		return nil, nil
	case current < version:
		results, err = m.UpTo(ctx, version)
	default:
		results, err = m.DownTo(ctx, version)
	}
	return describeResults(results), wrapGoose("version "+target, err)
}

func describeResults(results []*goose.MigrationResult) []string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		lines = append(lines, r.String())
	}
	return lines
}

func wrapGoose(command string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("goose %s: %w", command, err)
}
