// Package postgres is C8: the persistence layer backing checkpoints and
// run history behind the in-memory engine. A run and its checkpoints are
// mirrored to Postgres each time the orchestrator's ExecuteRun or Resume
// returns, so a process restart can
// rehydrate in-flight work; the engine stays fully functional with
// persistence disabled, per the "checkpoints without external storage"
// design note.
package postgres

import (
	"embed"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/jordigilh/orchestrator-core/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Connect opens a connection pool against cfg and applies the
// goose migrations embedded in this package. Invalid config is rejected
// before any network call is attempted.
func Connect(cfg config.Database) (*sqlx.DB, error) {
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	db, err := sqlx.Connect("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return db, nil
}

func migrate(db *sqlx.DB) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db.DB, "migrations")
}

func validate(cfg config.Database) error {
	if cfg.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("database port must be between 1 and 65535")
	}
	if cfg.User == "" {
		return fmt.Errorf("database user is required")
	}
	if cfg.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if cfg.MaxOpenConns <= 0 {
		return fmt.Errorf("max open connections must be greater than 0")
	}
	if cfg.MaxIdleConns < 0 {
		return fmt.Errorf("max idle connections must be non-negative")
	}
	return nil
}
