// Package database provides database connection management for the wheel screener.
//
// This package includes:
//   - Database connection management using GORM and PostgreSQL
//   - Schema migration for every table the screener owns
//   - Typed errors shared by the repositories
//
// Data Models:
//
//	All data models (Stock, IndicatorRecord, Signal, OptionPosition, Alert, etc.) are defined in
//	the models_pkg package so the domain packages can use them without import cycles.
//	Repositories live in sub-packages (stocks, signals, positions, alerts).
package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	models "wheel-screener/database/models_pkg"
)

// PoolConfig sizes the underlying connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Database holds the GORM database connection and provides access to the underlying DB instance.
type Database struct {
	db *gorm.DB
}

// DB returns the underlying GORM database instance for direct access when needed.
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Connect establishes database connection using GORM
func Connect(host string, port int, dbname, user, password string, pool PoolConfig) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		host, port, dbname, user, password)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if pool.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}

	return &Database{db: db}, nil
}

// Migrate creates or updates every table.
func (d *Database) Migrate() error {
	err := d.db.AutoMigrate(
		&Stock{},
		&Watchlist{},
		&IndicatorRecord{},
		&OptionContract{},
		&WheelScoreRecord{},
		&Signal{},
		&OptionPosition{},
		&StockPosition{},
		&Order{},
		&Alert{},
		&AlertWebhook{},
		&UserConfig{},
	)
	if err != nil {
		return fmt.Errorf("Migrate: %w", err)
	}
	return nil
}

// Ping checks that the database answers within ctx.
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ============================================================================
// Type Aliases
// ============================================================================

// Core data models, aliased so callers can stay on the database package.
type Stock = models.Stock
type Watchlist = models.Watchlist
type IndicatorRecord = models.IndicatorRecord
type OptionContract = models.OptionContract
type WheelScoreRecord = models.WheelScoreRecord
type Signal = models.Signal
type OptionPosition = models.OptionPosition
type StockPosition = models.StockPosition
type Order = models.Order
type Alert = models.Alert
type AlertWebhook = models.AlertWebhook
type UserConfig = models.UserConfig
