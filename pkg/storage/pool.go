package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jdziat/keyed-jobs/pkg/core"
)

// PoolConfig holds connection pool configuration.
type PoolConfig struct {
	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 25
	MaxOpenConns int

	// MaxIdleConns is the maximum number of connections in the idle pool.
	// Default: 10
	MaxIdleConns int

	// ConnMaxLifetime is the maximum amount of time a connection may be reused.
	// Default: 5 minutes
	ConnMaxLifetime time.Duration

	// ConnMaxIdleTime is the maximum amount of time a connection may be idle.
	// Default: 1 minute
	ConnMaxIdleTime time.Duration
}

// DefaultPoolConfig returns the pool settings used for PostgreSQL.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
	}
}

// SQLitePoolConfig returns the pool settings used for SQLite. A single
// connection keeps writers from tripping over SQLITE_BUSY; statements from
// different jobs still interleave between each other.
func SQLitePoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: 0,
		ConnMaxIdleTime: 0,
	}
}

// PoolOption configures connection pool settings.
type PoolOption interface {
	applyPool(*PoolConfig)
}

type poolOptionFunc func(*PoolConfig)

func (f poolOptionFunc) applyPool(c *PoolConfig) { f(c) }

// MaxOpenConns sets the maximum number of open connections.
// Values below 1 leave the preset unchanged.
func MaxOpenConns(n int) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) {
		if n > 0 {
			c.MaxOpenConns = n
		}
	})
}

// MaxIdleConns sets the maximum number of idle connections.
// Values below 1 leave the preset unchanged.
func MaxIdleConns(n int) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) {
		if n > 0 {
			c.MaxIdleConns = n
		}
	})
}

// ConnMaxLifetime sets the maximum connection lifetime.
func ConnMaxLifetime(d time.Duration) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) {
		c.ConnMaxLifetime = d
	})
}

// ConnMaxIdleTime sets the maximum idle time for connections.
func ConnMaxIdleTime(d time.Duration) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) {
		c.ConnMaxIdleTime = d
	})
}

// ConfigurePool applies base plus opts to a GORM database connection.
func ConfigurePool(db *gorm.DB, base PoolConfig, opts ...PoolOption) error {
	config := base
	for _, opt := range opts {
		opt.applyPool(&config)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying *sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	return nil
}

// Open connects to driver ("sqlite" or "postgres") at dsn, configures the
// pool with the driver's preset plus opts, and returns a migrated-ready
// storage. Callers still run Migrate.
//
// Example:
//
//	store, err := storage.Open("sqlite", "keyed-jobs.db?_busy_timeout=5000")
func Open(driver, dsn string, opts ...PoolOption) (*GormStorage, error) {
	var (
		dialector gorm.Dialector
		base      PoolConfig
	)
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
		base = SQLitePoolConfig()
	case "postgres":
		dialector = postgres.Open(dsn)
		base = DefaultPoolConfig()
	default:
		return nil, fmt.Errorf("storage: unsupported driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", driver, err)
	}
	if err := ConfigurePool(db, base, opts...); err != nil {
		return nil, err
	}
	return NewGormStorage(db), nil
}

// Connect opens the named backend and migrates it. The driver "memory"
// returns a fresh MemoryStorage and ignores dsn and opts. The returned
// close function releases the backend.
func Connect(ctx context.Context, driver, dsn string, opts ...PoolOption) (core.Storage, func() error, error) {
	if driver == "memory" {
		return NewMemoryStorage(), func() error { return nil }, nil
	}

	s, err := Open(driver, dsn, opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, nil, fmt.Errorf("storage: migrate %s: %w", driver, err)
	}
	return s, s.Close, nil
}
