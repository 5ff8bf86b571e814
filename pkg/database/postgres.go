package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/noah-isme/tutor-schedule-api/pkg/config"
)

// NewPostgres returns a configured PostgreSQL pool.
func NewPostgres(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", DSN(cfg))
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// NewDedicatedPool opens a second, smaller pool for background work so it never
// competes with request handling for connections.
func NewDedicatedPool(cfg config.DatabaseConfig, maxOpen int) (*sqlx.DB, error) {
	if maxOpen <= 0 {
		maxOpen = 2
	}
	cfg.MaxOpenConns = maxOpen
	cfg.MaxIdleConns = 1
	return NewPostgres(cfg)
}

// DSN renders the lib/pq connection string.
func DSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)
}

// TxBeginner opens transactions at a fixed isolation level.
type TxBeginner struct {
	db        *sqlx.DB
	isolation sql.IsolationLevel
}

// NewTxBeginner wraps db so every BeginTxx without explicit options uses isolation.
func NewTxBeginner(db *sqlx.DB, isolation sql.IsolationLevel) *TxBeginner {
	return &TxBeginner{db: db, isolation: isolation}
}

// BeginTxx starts a transaction, applying the configured isolation when opts is nil.
func (t *TxBeginner) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	if opts == nil {
		opts = &sql.TxOptions{Isolation: t.isolation}
	}
	return t.db.BeginTxx(ctx, opts)
}
