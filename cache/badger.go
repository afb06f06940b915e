// Package cache provides stageview.Cache backends.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/syssam/stageview"
)

// Badger is a stageview.Cache stored in a BadgerDB. Processes sharing the
// directory one after another share cached column sets; BadgerDB holds a
// directory lock, so concurrent processes need distinct directories.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens a cache in dir, creating it if needed. An empty dir
// opens an in-memory cache. A nil logger disables BadgerDB logging.
func OpenBadger(dir string, logger *slog.Logger) (*Badger, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("cache: create %s: %w", dir, err)
	}
	opts = opts.WithNumVersionsToKeep(1).WithLogger(nil)
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{log: logger})
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("cache: open badger: %w", err)
	}
	return &Badger{db: db}, nil
}

// NewBadger returns a cache over an open database. The caller owns db.
func NewBadger(db *badger.DB) *Badger {
	return &Badger{db: db}
}

// Get implements the stageview.Cache interface.
func (b *Badger) Get(_ context.Context, key string) ([]byte, error) {
	var v []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		v, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	return v, err
}

// Set implements the stageview.Cache interface.
func (b *Badger) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return b.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

// Delete implements the stageview.Cache interface.
func (b *Badger) Delete(_ context.Context, key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// DeletePrefix implements the stageview.Cache interface.
func (b *Badger) DeletePrefix(_ context.Context, prefix string) error {
	return b.db.DropPrefix([]byte(prefix))
}

// Close closes the database.
func (b *Badger) Close() error {
	return b.db.Close()
}

// badgerLogger adapts slog.Logger to the badger.Logger interface.
type badgerLogger struct {
	log *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.log.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

var _ stageview.Cache = (*Badger)(nil)
