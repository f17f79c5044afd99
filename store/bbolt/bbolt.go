// Package bbolt provides a BBolt-backed store.Store.
package bbolt

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/dcavalli/fidelgate/store"
)

// Store implements store.Store backed by a BBolt database. Each collection
// maps to a bucket; single-key writes are atomic within a bbolt transaction.
type Store struct {
	db *bbolt.DB
}

var _ store.Store = (*Store)(nil)

// New returns a Store backed by the given BBolt database.
func New(db *bbolt.DB) *Store {
	return &Store{db: db}
}

// NewFromFile opens a BBolt database at the given path and returns a new Store.
func NewFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return New(db), nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(_ context.Context, collection, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return fmt.Errorf("%s/%s: %w", collection, key, store.ErrNotFound)
		}
		data := b.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%s/%s: %w", collection, key, store.ErrNotFound)
		}
		value = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Store) Set(_ context.Context, collection, key string, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(collection))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), value)
	})
}

func (s *Store) Delete(_ context.Context, collection, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

func (s *Store) Query(_ context.Context, collection string, match func(value []byte) bool) ([][]byte, error) {
	var results [][]byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			if match == nil || match(v) {
				results = append(results, append([]byte(nil), v...))
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Store) Keys(_ context.Context, collection string) ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}
