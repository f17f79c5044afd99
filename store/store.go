// Package store defines the persistence port for security state records.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record does not exist in a collection.
var ErrNotFound = errors.New("record not found")

// Store is a collection/key record store. Implementations must provide
// atomic single-key writes; no cross-key transaction is assumed.
type Store interface {
	// Get retrieves a record. Returns ErrNotFound if the key is absent.
	Get(ctx context.Context, collection, key string) ([]byte, error)
	// Set creates or overwrites a record.
	Set(ctx context.Context, collection, key string, value []byte) error
	// Delete removes a record. Deleting an absent key is not an error.
	Delete(ctx context.Context, collection, key string) error
	// Query returns all records in a collection matching the predicate.
	// A nil predicate matches everything.
	Query(ctx context.Context, collection string, match func(value []byte) bool) ([][]byte, error)
	// Keys returns the keys of a collection in lexicographic order.
	Keys(ctx context.Context, collection string) ([]string, error)
}
