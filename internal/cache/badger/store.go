package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/movie-rec/backend/pkg/logger"
)

const keyPrefix = "stats:"

// Store keeps aggregates in a BadgerDB directory.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the store in dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger cache at %s: %w", dir, err)
	}

	logger.Info("Badger stats store initialized", zap.String("dir", dir))
	return &Store{db: db}, nil
}

// NewStore wraps an already open database.
func NewStore(db *badger.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get stats: %w", err)
	}
	return data, true, nil
}

func (s *Store) Set(ctx context.Context, key string, data []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+key), data)
	})
	if err != nil {
		return fmt.Errorf("failed to set stats: %w", err)
	}

	logger.Debug("Stats persisted", zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

func (s *Store) Prune(ctx context.Context, keep string) error {
	keepKey := []byte(keyPrefix + keep)
	var stale [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().KeyCopy(nil)
			if !bytes.Equal(k, keepKey) {
				stale = append(stale, k)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan stats keys: %w", err)
	}

	if len(stale) == 0 {
		return nil
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete stale stats: %w", err)
	}

	logger.Info("Stale stats pruned", zap.Int("count", len(stale)))
	return nil
}
