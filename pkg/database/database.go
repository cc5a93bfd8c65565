// Package database wraps the Postgres connection pool shared by every
// repository under internal/*/infrastructure/repository.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
)

// Config configures the pooled connection.
type Config struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// Database owns the pooled *sqlx.DB every repository embeds.
type Database struct {
	DB     *sqlx.DB
	config *Config
}

// New opens the pool and verifies connectivity with a ping.
func New(cfg *Config) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database: ping: %w", err)
	}

	return &Database{DB: db, config: cfg}, nil
}

// Close releases the pool.
func (d *Database) Close() error {
	return d.DB.Close()
}

// Health pings the database.
func (d *Database) Health(ctx context.Context) error {
	return d.DB.PingContext(ctx)
}

// Transaction runs fn inside a transaction, rolling back on error or
// panic and committing otherwise. Repositories that need multi-step
// writes (e.g. upserting a News row and its NewsScore in one commit)
// use this instead of opening raw transactions themselves.
func (d *Database) Transaction(ctx context.Context, fn func(*sqlx.Tx) error) (err error) {
	tx, err := d.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("database: begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	err = fn(tx)
	return err
}
