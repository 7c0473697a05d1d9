package hashcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// BadgerConfig holds configuration for the on-disk hash database.
type BadgerConfig struct {
	// Path is the database directory. Created if missing.
	Path string

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives badger's internal log lines. Nil disables them.
	Logger *slog.Logger
}

// BadgerStore keeps digests in a badger directory. The database is opened and
// closed inside every call, so no handle outlives a single check or commit.
type BadgerStore struct {
	cfg BadgerConfig
}

// NewBadgerStore creates a store rooted at cfg.Path.
func NewBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("path is required for hash database")
	}
	return &BadgerStore{cfg: cfg}, nil
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (s *BadgerStore) open() (*badger.DB, error) {
	if err := os.MkdirAll(s.cfg.Path, 0o750); err != nil {
		return nil, fmt.Errorf("create hash database directory %s: %w", s.cfg.Path, err)
	}

	opts := badger.DefaultOptions(s.cfg.Path).
		WithSyncWrites(s.cfg.SyncWrites).
		WithNumVersionsToKeep(1)
	if s.cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: s.cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open hash database: %w", err)
	}
	return db, nil
}

func (s *BadgerStore) closeDB(db *badger.DB) {
	if err := db.Close(); err != nil && s.cfg.Logger != nil {
		s.cfg.Logger.Warn("Failed to close hash database", "path", s.cfg.Path, "error", err)
	}
}

// Get returns the digest stored for key.
func (s *BadgerStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	db, err := s.open()
	if err != nil {
		return "", false, err
	}
	defer s.closeDB(db)

	var digest string
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			digest = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return digest, true, nil
}

// Put stores digest for key.
func (s *BadgerStore) Put(ctx context.Context, key, digest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db, err := s.open()
	if err != nil {
		return err
	}
	defer s.closeDB(db)

	err = db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(digest))
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}
