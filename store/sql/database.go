package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	checkoutmigrations "github.com/goliatone/go-checkout/migrations"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

// Drivers the opener knows how to pair with a bun dialect.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// DatabaseConfig is the slice of persistence settings the opener reads. Host
// persistence config structs usually satisfy it already.
type DatabaseConfig interface {
	GetDebug() bool
	GetDriver() string
	GetServer() string
	GetPingTimeout() time.Duration
	GetOtelIdentifier() string
}

// OpenDatabase opens the configured SQL database and wraps it in a
// persistence client with the dialect matching the driver.
func OpenDatabase(cfg DatabaseConfig) (*persistence.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("sqlstore: database config is required")
	}
	driver := strings.TrimSpace(strings.ToLower(cfg.GetDriver()))
	dialect, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(driver, cfg.GetServer())
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		// sqlite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: new persistence client: %w", err)
	}
	return client, nil
}

// RegisterCoreMigrations feeds the embedded checkout schema migrations whose
// dialect matches the driver into the client. Call client.Migrate afterwards.
func RegisterCoreMigrations(ctx context.Context, client *persistence.Client, driver string) error {
	if client == nil {
		return fmt.Errorf("sqlstore: persistence client is required")
	}
	target, err := migrationDialectFor(driver)
	if err != nil {
		return err
	}
	_, err = checkoutmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != target {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, checkoutmigrations.WithValidationTargets(target))
	if err != nil {
		return fmt.Errorf("sqlstore: register core migrations: %w", err)
	}
	return nil
}

func dialectFor(driver string) (schema.Dialect, error) {
	switch driver {
	case DriverPostgres:
		return pgdialect.New(), nil
	case DriverSQLite:
		return sqlitedialect.New(), nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported database driver %q", driver)
	}
}

func migrationDialectFor(driver string) (string, error) {
	switch strings.TrimSpace(strings.ToLower(driver)) {
	case DriverPostgres:
		return checkoutmigrations.DialectPostgres, nil
	case DriverSQLite:
		return checkoutmigrations.DialectSQLite, nil
	default:
		return "", fmt.Errorf("sqlstore: unsupported database driver %q", driver)
	}
}
