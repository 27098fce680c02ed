// Package doccache is the client-local document cache: a key/value store
// from document id to file content. It never talks to the backend API; the
// caller decides when to read through and populate it. Entries have no TTL
// and no size cap and stay until Clear is called.
package doccache

import (
	"context"
	"errors"
	"fmt"

	commonlog "hospital_locker/server/common/log"
)

// Store is one physical backend for cache entries. Get reports a missing
// id as (nil, false, nil).
type Store interface {
	Get(ctx context.Context, docID string) ([]byte, bool, error)
	Put(ctx context.Context, docID string, blob []byte) error
	Clear(ctx context.Context) error
	Close() error
}

var ErrEmptyDocID = errors.New("document id is required")

type Cache struct {
	store  Store
	sealer *Sealer
}

func New(store Store) *Cache {
	return &Cache{store: store}
}

// NewSealed encrypts every entry at rest with a key derived from
// passphrase. The cache behaves identically otherwise.
func NewSealed(store Store, passphrase, salt string) (*Cache, error) {
	sealer, err := NewSealer(passphrase, salt)
	if err != nil {
		return nil, fmt.Errorf("init cache sealer: %w", err)
	}
	return &Cache{store: store, sealer: sealer}, nil
}

// Get looks docID up exactly as given; callers normalise ids.
func (c *Cache) Get(ctx context.Context, docID string) ([]byte, bool, error) {
	if docID == "" {
		return nil, false, nil
	}
	blob, ok, err := c.store.Get(ctx, docID)
	if err != nil || !ok {
		return nil, false, err
	}
	if c.sealer == nil {
		return blob, true, nil
	}
	plain, err := c.sealer.Open(blob)
	if err != nil {
		// Sealed under another key: treat as a miss.
		commonlog.Warnf("cache entry unreadable doc_id=%s: %v", docID, err)
		return nil, false, nil
	}
	return plain, true, nil
}

// Put overwrites any existing entry for docID.
func (c *Cache) Put(ctx context.Context, docID string, blob []byte) error {
	if docID == "" {
		return ErrEmptyDocID
	}
	if c.sealer != nil {
		sealed, err := c.sealer.Seal(blob)
		if err != nil {
			return fmt.Errorf("seal cache entry: %w", err)
		}
		blob = sealed
	}
	return c.store.Put(ctx, docID, blob)
}

func (c *Cache) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}

func (c *Cache) Close() error {
	return c.store.Close()
}
