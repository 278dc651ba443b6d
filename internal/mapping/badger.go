package mapping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

// keySep separates namespace and key; neither may contain it.
const keySep = "\x00"

// BadgerStore keeps mappings in an embedded BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) a BadgerDB at path. An empty path opens an in-memory DB.
func OpenBadgerStore(logger *slog.Logger, path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(&badgerLogger{logger: logger})
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func badgerKey(namespace, key string) []byte {
	return []byte(namespace + keySep + key)
}

func (s *BadgerStore) Get(ctx context.Context, namespace, key string) (string, error) {
	var value string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(namespace, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get mapping: %w", err)
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	return value, err
}

func (s *BadgerStore) Set(ctx context.Context, namespace, key, value string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(badgerKey(namespace, key), []byte(value)); err != nil {
			return fmt.Errorf("set mapping: %w", err)
		}
		return nil
	})
}

func (s *BadgerStore) Delete(ctx context.Context, namespace, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(badgerKey(namespace, key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete mapping: %w", err)
		}
		return nil
	})
}

func (s *BadgerStore) List(ctx context.Context, namespace string) (map[string]string, error) {
	out := make(map[string]string)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(namespace + keySep)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key()[len(prefix):])
			err := item.Value(func(val []byte) error {
				out[key] = string(val)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	return out, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// badgerLogger routes BadgerDB's internal logging to slog. Info chatter is demoted to debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error("badger: " + fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn("badger: " + fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug("badger: " + fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug("badger: " + fmt.Sprintf(format, args...))
}
