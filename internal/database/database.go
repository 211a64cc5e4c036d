package database

import (
	"fmt"
	"time"

	"example.com/snippetquiz/services/core/config"
	"example.com/snippetquiz/services/core/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connection holds the write and read-only database handles. Both may
// point at the same database when no replica is configured.
type Connection struct {
	DB         *gorm.DB
	ReadOnlyDB *gorm.DB
}

// Connect establishes the write and read-only connections and applies
// the pool settings from configuration.
func Connect(cfg config.DatabaseConfig) (*Connection, error) {
	db, err := open(cfg.DSN, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	readOnlyDB := db
	if cfg.ReadOnlyDSN != "" && cfg.ReadOnlyDSN != cfg.DSN {
		readOnlyDB, err = open(cfg.ReadOnlyDSN, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to read-only database: %w", err)
		}
	}

	return &Connection{DB: db, ReadOnlyDB: readOnlyDB}, nil
}

func open(dsn string, cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get DB instance: %w", err)
	}

	maxIdle := cfg.MaxIdleConns
	if maxIdle == 0 {
		maxIdle = 10
	}
	maxOpen := cfg.MaxOpenConns
	if maxOpen == 0 {
		maxOpen = 50
	}
	lifetime := cfg.ConnMaxLifetime
	if lifetime == 0 {
		lifetime = time.Hour
	}

	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetConnMaxLifetime(lifetime)

	return db, nil
}

// Migrate runs database migrations on the write handle.
func Migrate(conn *Connection) error {
	return models.SetupModels(conn.DB)
}

// Close closes both database connections.
func (c *Connection) Close() error {
	if err := closeHandle(c.DB); err != nil {
		return err
	}
	if c.ReadOnlyDB != c.DB {
		return closeHandle(c.ReadOnlyDB)
	}
	return nil
}

func closeHandle(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
