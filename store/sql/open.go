package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-rendezvous/migrations"
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

// PersistenceConfig satisfies the go-persistence-bun client config.
type PersistenceConfig struct {
	Driver      string        `mapstructure:"driver" yaml:"driver" toml:"driver"`
	Server      string        `mapstructure:"server" yaml:"server" toml:"server"`
	Debug       bool          `mapstructure:"debug" yaml:"debug" toml:"debug"`
	PingTimeout time.Duration `mapstructure:"ping_timeout" yaml:"ping_timeout" toml:"ping_timeout"`
}

func (c PersistenceConfig) GetDebug() bool    { return c.Debug }
func (c PersistenceConfig) GetDriver() string { return c.Driver }
func (c PersistenceConfig) GetServer() string { return c.Server }

func (c PersistenceConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.PingTimeout
}

func (c PersistenceConfig) GetOtelIdentifier() string { return "go-rendezvous" }

// OpenSQLite opens dsn with mattn/go-sqlite3, registers migrations when
// given and migrates.
func OpenSQLite(ctx context.Context, dsn string, schema fs.FS) (*persistence.Client, error) {
	return Open(ctx, PersistenceConfig{Driver: DriverSQLite, Server: dsn}, schema)
}

// OpenPostgres opens dsn with lib/pq, registers migrations when given and
// migrates.
func OpenPostgres(ctx context.Context, dsn string, schema fs.FS) (*persistence.Client, error) {
	return Open(ctx, PersistenceConfig{Driver: DriverPostgres, Server: dsn}, schema)
}

// OpenJournal opens cfg and migrates the embedded journal schema for its
// driver.
func OpenJournal(ctx context.Context, cfg PersistenceConfig) (*persistence.Client, error) {
	schema, err := migrations.Journal(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: %w", err)
	}
	return Open(ctx, cfg, schema.FS)
}

func Open(ctx context.Context, cfg PersistenceConfig, migrationsFS fs.FS) (*persistence.Client, error) {
	cfg.Driver = strings.TrimSpace(strings.ToLower(cfg.Driver))
	if strings.TrimSpace(cfg.Server) == "" {
		return nil, fmt.Errorf("sqlstore: dsn is required")
	}
	var dialect schema.Dialect
	switch cfg.Driver {
	case DriverSQLite, "sqlite":
		cfg.Driver = DriverSQLite
		dialect = sqlitedialect.New()
	case DriverPostgres, "postgresql", "pg":
		cfg.Driver = DriverPostgres
		dialect = pgdialect.New()
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", cfg.Driver)
	}

	sqlDB, err := sql.Open(cfg.Driver, cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: persistence client: %w", err)
	}
	if migrationsFS == nil {
		return client, nil
	}
	client.RegisterSQLMigrations(migrationsFS)
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return client, nil
}
