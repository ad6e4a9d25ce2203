package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	feishumigrations "github.com/goliatone/go-feishu/migrations"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

type persistenceConfig struct {
	driver string
	server string
	debug  bool
}

func (c persistenceConfig) GetDebug() bool {
	return c.debug
}

func (c persistenceConfig) GetDriver() string {
	return c.driver
}

func (c persistenceConfig) GetServer() string {
	return c.server
}

func (c persistenceConfig) GetPingTimeout() time.Duration {
	return 5 * time.Second
}

func (c persistenceConfig) GetOtelIdentifier() string {
	return "go-feishu"
}

// Open connects to sqlite3 or postgres and returns a persistence client
// with the matching bun dialect.
func Open(driver string, dsn string) (*persistence.Client, error) {
	driver = normalizeDriver(driver)
	dialect, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlstore: dsn is required")
	}
	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(persistenceConfig{driver: driver, server: dsn}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: persistence client: %w", err)
	}
	return client, nil
}

// Migrate registers the embedded migrations for the client's dialect and
// applies them.
func Migrate(ctx context.Context, client *persistence.Client, driver string) error {
	if client == nil {
		return fmt.Errorf("sqlstore: persistence client is required")
	}
	set, err := feishumigrations.ForDriver(driver)
	if err != nil {
		return err
	}
	client.RegisterSQLMigrations(set.FS)
	return client.Migrate(ctx)
}

func normalizeDriver(driver string) string {
	switch strings.TrimSpace(strings.ToLower(driver)) {
	case "sqlite", "sqlite3":
		return DriverSQLite
	case "postgres", "postgresql", "pg":
		return DriverPostgres
	default:
		return strings.TrimSpace(driver)
	}
}

func dialectFor(driver string) (schema.Dialect, error) {
	switch driver {
	case DriverSQLite:
		return sqlitedialect.New(), nil
	case DriverPostgres:
		return pgdialect.New(), nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
}
