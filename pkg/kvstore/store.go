// Copyright 2025 Certen Protocol
//
// Package kvstore is the relayer's durable byte-keyed, byte-valued store,
// backing every persisted cursor, payload, transaction, and nonce record
// named in the persisted layout. It wraps CometBFT's dbm.DB exactly as
// the teacher's kvdb.KVAdapter wraps it for ledger.KV, generalized to a
// context-aware interface so every call can carry the per-call deadline
// the relayer's adapter contracts require.
package kvstore

import (
	"context"

	dbm "github.com/cometbft/cometbft-db"
)

// Store is the byte-keyed, byte-valued, durable interface every stage
// reads and writes persisted records through. Locking is at key
// granularity: callers never hold a Store-wide lock across an RPC call.
type Store interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	Set(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error
	Has(ctx context.Context, key []byte) (bool, error)
}

// CometStore adapts a CometBFT dbm.DB to Store.
type CometStore struct {
	db dbm.DB
}

// NewCometStore wraps db as a Store.
func NewCometStore(db dbm.DB) *CometStore {
	return &CometStore{db: db}
}

// Get returns the value for key, or (nil, nil) if key is absent.
func (s *CometStore) Get(_ context.Context, key []byte) ([]byte, error) {
	if s.db == nil {
		return nil, nil
	}
	v, err := s.db.Get(key)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Set durably writes key -> value.
func (s *CometStore) Set(_ context.Context, key, value []byte) error {
	if s.db == nil {
		return nil
	}
	return s.db.SetSync(key, value)
}

// Delete durably removes key.
func (s *CometStore) Delete(_ context.Context, key []byte) error {
	if s.db == nil {
		return nil
	}
	return s.db.DeleteSync(key)
}

// Has reports whether key is present.
func (s *CometStore) Has(_ context.Context, key []byte) (bool, error) {
	if s.db == nil {
		return false, nil
	}
	return s.db.Has(key)
}
