// Copyright 2025 Certen Protocol

package kvstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// ====== KV Key Layout ======
//
// Mirrors the persisted layout, one prefix per record kind, a big-endian
// numeric suffix wherever the record is addressed by leaf index, nonce,
// or domain, and a uuid suffix wherever it is addressed by payload or
// transaction identity.

var (
	prefixMessageByLeafIndex         = []byte("message_by_leaf_index/")
	prefixMessageByID                = []byte("message_by_id/")
	prefixMessageIDByNonce           = []byte("message_id_by_nonce/")
	prefixDispatchedBlockNumberByNonce = []byte("dispatched_block_number_by_nonce/")
	prefixProcessedLeaf              = []byte("processed_leaf/")
	prefixProofByLeafIndex           = []byte("proof_by_leaf_index/")
	prefixTxByUUID                   = []byte("tx_by_uuid/")
	prefixPayloadByUUID              = []byte("payload_by_uuid/")
	prefixNonceStatus                = []byte("nonce_status/")
	prefixFinalizedNonce             = []byte("finalized_nonce/")
	prefixUpperNonce                 = []byte("upper_nonce/")
	prefixBlockCursor                = []byte("block_cursor/")
)

func uint32Key(prefix []byte, n uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, n)
	return append(append([]byte(nil), prefix...), b...)
}

func uint64Key(prefix []byte, n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return append(append([]byte(nil), prefix...), b...)
}

func stringKey(prefix []byte, s string) []byte {
	return append(append([]byte(nil), prefix...), []byte(s)...)
}

func uuidKey(prefix []byte, id uuid.UUID) []byte {
	return append(append([]byte(nil), prefix...), id[:]...)
}

func nonceStatusKey(signer string, n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	key := append([]byte(nil), prefixNonceStatus...)
	key = append(key, []byte(signer)...)
	key = append(key, '/')
	return append(key, b...)
}

// MessageByLeafIndexKey addresses the CommittedMessage ingested at leaf i.
func MessageByLeafIndexKey(i uint32) []byte { return uint32Key(prefixMessageByLeafIndex, i) }

// MessageByIDKey addresses a CommittedMessage by its message ID, for
// lookups that precede (or bypass) the leaf index a later Merkle sync
// assigns it, such as the admin surface's manual message insertion.
func MessageByIDKey(id common.Hash) []byte { return stringKey(prefixMessageByID, id.Hex()) }

// MessageIDByNonceKey addresses an origin message's id by its dispatch nonce.
func MessageIDByNonceKey(n uint32) []byte { return uint32Key(prefixMessageIDByNonce, n) }

// DispatchedBlockNumberByNonceKey addresses the origin block a given
// dispatch nonce was observed in.
func DispatchedBlockNumberByNonceKey(n uint32) []byte {
	return uint32Key(prefixDispatchedBlockNumberByNonce, n)
}

// ProcessedLeafKey addresses whether leaf i has been marked delivered.
func ProcessedLeafKey(i uint32) []byte { return uint32Key(prefixProcessedLeaf, i) }

// ProofByLeafIndexKey addresses a cached inclusion proof for leaf i.
func ProofByLeafIndexKey(i uint32) []byte { return uint32Key(prefixProofByLeafIndex, i) }

// TxByUUIDKey addresses a lander Transaction record by uuid.
func TxByUUIDKey(id uuid.UUID) []byte { return uuidKey(prefixTxByUUID, id) }

// PayloadByUUIDKey addresses a lander Payload record by uuid.
func PayloadByUUIDKey(id uuid.UUID) []byte { return uuidKey(prefixPayloadByUUID, id) }

// NonceStatusKey addresses a signer's status for a given nonce.
func NonceStatusKey(signer string, n uint64) []byte { return nonceStatusKey(signer, n) }

// FinalizedNonceKey addresses a signer's finalized floor.
func FinalizedNonceKey(signer string) []byte { return stringKey(prefixFinalizedNonce, signer) }

// UpperNonceKey addresses a signer's assignment frontier.
func UpperNonceKey(signer string) []byte { return stringKey(prefixUpperNonce, signer) }

// BlockCursorKey addresses an origin domain's last-indexed block.
func BlockCursorKey(originDomain uint32) []byte { return uint32Key(prefixBlockCursor, originDomain) }

// TypedStore wraps a Store with JSON marshal/unmarshal helpers for the
// struct-shaped records above, matching the teacher's store_*/retrieve_*
// convention (ledger.LedgerStore's load*/save* pair) generalized to a
// single StoreJSON/LoadJSON pair reused across record kinds.
type TypedStore struct {
	Store
}

// NewTypedStore wraps store with JSON helpers.
func NewTypedStore(store Store) *TypedStore {
	return &TypedStore{Store: store}
}

// StoreJSON marshals v and writes it under key.
func (t *TypedStore) StoreJSON(ctx context.Context, key []byte, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kvstore: marshal %x: %w", key, err)
	}
	return t.Set(ctx, key, b)
}

// LoadJSON reads key and unmarshals it into v. Returns (false, nil) if
// key is absent, leaving v untouched.
func (t *TypedStore) LoadJSON(ctx context.Context, key []byte, v interface{}) (bool, error) {
	b, err := t.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("kvstore: get %x: %w", key, err)
	}
	if b == nil {
		return false, nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("kvstore: unmarshal %x: %w", key, err)
	}
	return true, nil
}
