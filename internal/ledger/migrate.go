package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/crypto"
)

//go:embed migrations/*/*.sql
var migrationsFS embed.FS

// ErrMigrationDrift means an embedded schema file no longer matches the
// checksum recorded when it was applied.
var ErrMigrationDrift = errors.New("applied migration was modified")

type DBDriver string

const (
	DBMemory   DBDriver = "memory"
	DBSQLite   DBDriver = "sqlite"
	DBPostgres DBDriver = "postgres"
)

// ParseDriver maps a configured driver name to a DBDriver.
func ParseDriver(name string) (DBDriver, error) {
	switch DBDriver(strings.ToLower(strings.TrimSpace(name))) {
	case "", DBMemory:
		return DBMemory, nil
	case DBSQLite, "sqlite3":
		return DBSQLite, nil
	case DBPostgres, "postgresql", "pg":
		return DBPostgres, nil
	default:
		return "", fmt.Errorf("unsupported db driver: %s", name)
	}
}

type migrationDialect struct {
	dir      string
	table    string
	timeType string
	// insert records a version; it must not fail when the version exists.
	insert string
	stamp  func(time.Time) any
}

func dialectFor(driver DBDriver) (migrationDialect, error) {
	switch driver {
	case DBSQLite:
		return migrationDialect{
			dir:      "migrations/sqlite",
			table:    "schema_migrations",
			timeType: "TEXT",
			insert:   `INSERT INTO schema_migrations(version, checksum, applied_at) VALUES(?, ?, ?) ON CONFLICT(version) DO NOTHING`,
			stamp:    func(t time.Time) any { return t.Format(time.RFC3339) },
		}, nil
	case DBPostgres:
		return migrationDialect{
			dir:      "migrations/postgres",
			table:    "trusai_schema_migrations",
			timeType: "TIMESTAMPTZ",
			insert:   `INSERT INTO trusai_schema_migrations(version, checksum, applied_at) VALUES($1, $2, $3) ON CONFLICT(version) DO NOTHING`,
			stamp:    func(t time.Time) any { return t },
		}, nil
	default:
		return migrationDialect{}, fmt.Errorf("unsupported db driver: %s", driver)
	}
}

type migration struct {
	version  string
	checksum string
	body     string
}

// Migrate applies the embedded schema files for driver in name order. Each
// applied file is recorded with its checksum; a rerun skips recorded files
// and fails with ErrMigrationDrift if one of them has since changed.
func Migrate(ctx context.Context, db *sql.DB, driver DBDriver) error {
	if db == nil {
		return errors.New("missing db")
	}
	d, err := dialectFor(driver)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  version TEXT PRIMARY KEY,
  checksum TEXT NOT NULL,
  applied_at %s NOT NULL
)`, d.table, d.timeType)); err != nil {
		return fmt.Errorf("create %s: %w", d.table, err)
	}

	pending, err := loadMigrations(d.dir)
	if err != nil {
		return err
	}
	applied, err := appliedChecksums(ctx, db, d.table)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, m := range pending {
		if sum, ok := applied[m.version]; ok {
			if sum != m.checksum {
				return fmt.Errorf("%w: %s recorded %s, embedded %s", ErrMigrationDrift, m.version, sum, m.checksum)
			}
			continue
		}
		if err := apply(ctx, db, d, m, now); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.version, err)
		}
	}
	return nil
}

// apply records the version before running the body so that two processes
// migrating at once do not both run it.
func apply(ctx context.Context, db *sql.DB, d migrationDialect, m migration, now time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, d.insert, m.version, m.checksum, d.stamp(now))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, m.body); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func appliedChecksums(ctx context.Context, db *sql.DB, table string) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT version, checksum FROM %s`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var version, sum string
		if err := rows.Scan(&version, &sum); err != nil {
			return nil, err
		}
		out[version] = sum
	}
	return out, rows.Err()
}

func loadMigrations(dir string) ([]migration, error) {
	entries, err := migrationsFS.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []migration
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}
		body, err := migrationsFS.ReadFile(path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, migration{
			version:  strings.TrimSuffix(e.Name(), ".sql"),
			checksum: crypto.DigestWithPrefix(body),
			body:     string(body),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}
