// Package store persists decomposed IIIF resources, their relationships,
// indexables and contexts in SQLite through gorm.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the cgo "sqlite3" driver
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite" // registers the pure Go "sqlite" driver

	ierrors "github.com/Aman-CERP/iiifstore/internal/errors"
)

// Drivers accepted by Options.Driver.
const (
	DriverSQLite  = "sqlite"  // modernc.org/sqlite, no cgo
	DriverSQLite3 = "sqlite3" // github.com/mattn/go-sqlite3, cgo
)

// DatabaseFile is the database file name inside the data directory.
const DatabaseFile = "iiifstore.db"

// Options configures Open.
type Options struct {
	// DataDir holds the database and the writer lock. Empty opens an
	// in-memory database without locking, for tests.
	DataDir string

	Driver string

	// CanonicalHostname and ResourcePath build canonical ids:
	// {CanonicalHostname}/{ResourcePath}/{iiif_type}/{id}.
	CanonicalHostname string
	ResourcePath      string

	Logger *slog.Logger
}

// GormStore is the relational store. The zero value is not usable; call Open.
type GormStore struct {
	db     *gorm.DB
	opts   Options
	lock   *FileLock
	mu     *sync.Mutex
	inTx   bool
	logger *slog.Logger
}

// Open opens (creating if needed) the store and migrates the schema.
func Open(opts Options) (*GormStore, error) {
	if opts.Driver == "" {
		opts.Driver = DriverSQLite
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	dsn := ":memory:"
	var lock *FileLock
	if opts.DataDir != "" {
		if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
			return nil, ierrors.StoreError("failed to create data directory", err).
				WithDetail("path", opts.DataDir)
		}
		dsn = filepath.Join(opts.DataDir, DatabaseFile)
		lock = NewFileLock(opts.DataDir)
	}

	switch opts.Driver {
	case DriverSQLite, DriverSQLite3:
	default:
		return nil, ierrors.ConfigError(fmt.Sprintf("unknown store driver %q", opts.Driver), nil)
	}

	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: opts.Driver, DSN: dsn}), &gorm.Config{
		Logger: logger.NewSlogLogger(opts.Logger, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		TranslateError: true,
	})
	if err != nil {
		return nil, ierrors.StoreError("failed to open database", err).WithDetail("dsn", dsn)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, ierrors.StoreError("failed to access database handle", err)
	}
	// Single connection: SQLite serialises writers anyway, and an in-memory
	// database exists per connection.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	if opts.DataDir != "" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if err := db.Exec(p).Error; err != nil {
			_ = sqlDB.Close()
			return nil, ierrors.StoreError("failed to set pragma", err).WithDetail("pragma", p)
		}
	}

	if err := db.AutoMigrate(models()...); err != nil {
		_ = sqlDB.Close()
		return nil, ierrors.StoreError("failed to migrate schema", err)
	}

	return &GormStore{
		db:     db,
		opts:   opts,
		lock:   lock,
		mu:     &sync.Mutex{},
		logger: opts.Logger,
	}, nil
}

// Close closes the database.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DB returns a read handle bound to ctx for query building.
func (s *GormStore) DB(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// DataDir returns the data directory, "" for in-memory stores.
func (s *GormStore) DataDir() string {
	return s.opts.DataDir
}

// CanonicalID returns the public id of a resource.
func (s *GormStore) CanonicalID(iiifType, id string) string {
	parts := []string{strings.TrimSuffix(s.opts.CanonicalHostname, "/")}
	if p := strings.Trim(s.opts.ResourcePath, "/"); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, strings.ToLower(iiifType), id)
	return strings.Join(parts, "/")
}

// Transaction runs fn in one database transaction while holding the writer
// lock. The store passed to fn is bound to the transaction; using the outer
// store inside fn deadlocks on the single connection.
func (s *GormStore) Transaction(ctx context.Context, fn func(tx *GormStore) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lock != nil {
		if err := s.lock.Lock(ctx); err != nil {
			return ierrors.New(ierrors.ErrCodeStoreLocked, "data directory is locked by another writer", err).
				WithDetail("lock", s.lock.Path()).
				WithSuggestion("wait for the other iiifstore process to finish")
		}
		defer func() {
			if err := s.lock.Unlock(); err != nil {
				s.logger.Warn("store_unlock_failed", slog.String("error", err.Error()))
			}
		}()
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, opts: s.opts, lock: s.lock, mu: s.mu, inTx: true, logger: s.logger})
	})
}

// storeErr wraps a database error, keeping typed errors as they are.
func storeErr(msg string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := ierrors.As(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return ierrors.StoreError(msg, err)
}

// isDuplicate reports a unique constraint violation from either driver.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
