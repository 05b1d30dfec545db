package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/WessleyAI/docqa/engine/domain"
	"github.com/dgraph-io/badger/v4"
)

const badgerKeyPrefix = "session/"

// BadgerStore keeps each conversation as one JSON value in an embedded
// BadgerDB. Every append rewrites the value and resets its TTL.
type BadgerStore struct {
	mu  sync.Mutex
	db  *badger.DB
	ttl time.Duration
}

var _ Store = (*BadgerStore)(nil)

// badgerLogger routes badger's internal logging through slog.
type badgerLogger struct{ log *slog.Logger }

func (l badgerLogger) Errorf(msg string, args ...any)   { l.log.Error(fmt.Sprintf(msg, args...)) }
func (l badgerLogger) Warningf(msg string, args ...any) { l.log.Warn(fmt.Sprintf(msg, args...)) }
func (l badgerLogger) Infof(msg string, args ...any)    { l.log.Debug(fmt.Sprintf(msg, args...)) }
func (l badgerLogger) Debugf(msg string, args ...any)   { l.log.Debug(fmt.Sprintf(msg, args...)) }

// OpenBadger opens a store at dir. An empty dir opens an in-memory database.
func OpenBadger(dir string, ttl time.Duration, log *slog.Logger) (*BadgerStore, error) {
	if log == nil {
		log = slog.Default()
	}
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = badgerLogger{log: log.With("component", "badger")}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("session: open badger %q: %w", dir, err)
	}
	return &BadgerStore{db: db, ttl: ttl}, nil
}

func (b *BadgerStore) Close() error { return b.db.Close() }

func (b *BadgerStore) key(id string) []byte { return []byte(badgerKeyPrefix + id) }

func readTurns(txn *badger.Txn, key []byte) ([]domain.Turn, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var turns []domain.Turn
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &turns)
	})
	return turns, err
}

func (b *BadgerStore) History(_ context.Context, id string, limit int) ([]domain.Turn, error) {
	var turns []domain.Turn
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		turns, err = readTurns(txn, b.key(id))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("session: history %s: %w", id, err)
	}
	return tail(turns, limit), nil
}

// Append runs read-modify-write in one transaction. Badger locks its
// directory to one process, so serialising appends here rules out
// ErrConflict.
func (b *BadgerStore) Append(_ context.Context, id string, t domain.Turn) error {
	b.mu.Lock()
	err := b.appendOnce(id, t)
	b.mu.Unlock()
	if err != nil {
		return fmt.Errorf("session: append %s: %w", id, err)
	}
	return nil
}

func (b *BadgerStore) appendOnce(id string, t domain.Turn) error {
	key := b.key(id)
	return b.db.Update(func(txn *badger.Txn) error {
		turns, err := readTurns(txn, key)
		if err != nil {
			return err
		}
		data, err := json.Marshal(append(turns, t))
		if err != nil {
			return err
		}
		e := badger.NewEntry(key, data)
		if b.ttl > 0 {
			e = e.WithTTL(b.ttl)
		}
		return txn.SetEntry(e)
	})
}

func (b *BadgerStore) Clear(_ context.Context, id string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(b.key(id))
	})
	if err != nil {
		return fmt.Errorf("session: clear %s: %w", id, err)
	}
	return nil
}
