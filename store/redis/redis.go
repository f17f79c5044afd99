// Package redis provides a Redis-backed store.Store for deployments where
// security state must be shared across processes.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/dcavalli/fidelgate/store"
)

// Store implements store.Store on top of a Redis client. Records are stored
// as plain string values under "<prefix><collection>:<key>".
type Store struct {
	client redis.UniversalClient
	prefix string
}

var _ store.Store = (*Store)(nil)

// New creates a Redis-backed store with the default "fidelgate:" key prefix.
func New(client redis.UniversalClient) *Store {
	return NewWithPrefix(client, "fidelgate:")
}

// NewWithPrefix creates a Redis-backed store with a custom key prefix.
func NewWithPrefix(client redis.UniversalClient, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) recordKey(collection, key string) string {
	return s.prefix + collection + ":" + key
}

func (s *Store) Get(ctx context.Context, collection, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.recordKey(collection, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s/%s: %w", collection, key, store.ErrNotFound)
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

func (s *Store) Set(ctx context.Context, collection, key string, value []byte) error {
	if err := s.client.Set(ctx, s.recordKey(collection, key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, key string) error {
	if err := s.client.Del(ctx, s.recordKey(collection, key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, collection string, match func(value []byte) bool) ([][]byte, error) {
	keys, err := s.scanKeys(ctx, collection)
	if err != nil {
		return nil, err
	}
	var results [][]byte
	for _, k := range keys {
		data, err := s.client.Get(ctx, k).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Deleted between SCAN and GET.
				continue
			}
			return nil, fmt.Errorf("redis get: %w", err)
		}
		if match == nil || match(data) {
			results = append(results, data)
		}
	}
	return results, nil
}

func (s *Store) Keys(ctx context.Context, collection string) ([]string, error) {
	fullKeys, err := s.scanKeys(ctx, collection)
	if err != nil {
		return nil, err
	}
	prefix := s.prefix + collection + ":"
	keys := make([]string, 0, len(fullKeys))
	for _, k := range fullKeys {
		keys = append(keys, strings.TrimPrefix(k, prefix))
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) scanKeys(ctx context.Context, collection string) ([]string, error) {
	pattern := s.prefix + collection + ":*"
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return keys, nil
}
