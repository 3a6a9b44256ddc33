// Package kv defines the key-value persistence collaborator the vault core is
// written against, plus in-memory, PostgreSQL and S3 implementations.
//
// Keys are slash-separated strings ("items/<id>"). Values are opaque bytes and
// must be non-empty.
package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/keepershare/internal/common"
)

// Store is the persistence collaborator.
type Store interface {
	// Get returns the value stored under key or common.ErrorNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns all keys starting with prefix in ascending order.
	List(ctx context.Context, prefix string) ([]string, error)

	// CompareAndSwap atomically replaces the value under key with new if the
	// current value equals old. A nil old means "key must not exist"; a nil
	// new means "delete the key". It reports whether the swap happened.
	CompareAndSwap(ctx context.Context, key string, old, new []byte) (bool, error)
}

// MaxUpdateAttempts bounds optimistic read-modify-write retries in Update.
const MaxUpdateAttempts = 16

// ErrSkip may be returned by an Update callback to abandon the write without error.
var ErrSkip = errors.New("skip update")

// Update runs an optimistic read-modify-write cycle on key: it reads the
// current value, passes it to fn and swaps in the result with CompareAndSwap,
// retrying when another writer got there first. fn returning nil deletes the
// key. A missing key is reported to fn as a nil value.
//
// Update returns the value written (nil for a delete) and common.ErrVersionConflict
// once MaxUpdateAttempts have all lost the race.
func Update(ctx context.Context, s Store, key string, fn func(cur []byte) ([]byte, error)) ([]byte, error) {
	for attempt := 0; attempt < MaxUpdateAttempts; attempt++ {
		cur, err := s.Get(ctx, key)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}

		next, err := fn(cur)
		if err != nil {
			return nil, err
		}

		ok, err := s.CompareAndSwap(ctx, key, cur, next)
		if err != nil {
			return nil, err
		}
		if ok {
			return next, nil
		}
	}
	return nil, fmt.Errorf("update %s: %w", key, common.ErrVersionConflict)
}

// Entry is a key/value pair for batched writes.
type Entry struct {
	Key   string
	Value []byte
}

// Batcher is implemented by stores that can write several keys atomically.
type Batcher interface {
	SetMany(ctx context.Context, entries []Entry) error
}

// SetMany writes entries through s, atomically when s implements Batcher and
// one key at a time otherwise.
func SetMany(ctx context.Context, s Store, entries []Entry) error {
	if b, ok := s.(Batcher); ok {
		return b.SetMany(ctx, entries)
	}
	for _, e := range entries {
		if err := s.Set(ctx, e.Key, e.Value); err != nil {
			return err
		}
	}
	return nil
}
