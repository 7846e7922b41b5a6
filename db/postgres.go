// Package db provides the two PostgreSQL access patterns used across the
// service: a GORM connection for the Schema Registry's transactional,
// model-based persistence, and a raw pgx pool (see postgres_pgx.go) for the
// SQL/Warehouse Resolver's hand-built parameterised queries.
package db

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormConfig tunes the pool backing a GORM connection.
type GormConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// DefaultGormConfig mirrors the pool sizing the teacher's original
// PGInfo/PGMigrations helpers used for RabbitMQ logging, carried forward for
// the registry's transactional workload.
func DefaultGormConfig() GormConfig {
	return GormConfig{
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: time.Hour,
	}
}

// OpenGorm opens a GORM connection against a PostgreSQL DSN and applies pool
// limits. The caller owns running migrations against the returned handle.
func OpenGorm(dsn string, cfg GormConfig) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm connection: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return gdb, nil
}
