// Copyright 2025 Certen Protocol
//
// Package chainadapter defines the six capability contracts the relayer
// core uses to treat chains as pluggable objects instead of hard-wiring
// any one chain family. Exactly one implementation of each interface
// exists per chain the relayer is configured for; the core's processor,
// lander, and merkle builder never import a chain-specific RPC client
// directly.
package chainadapter

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyperbridge/relayer-core/pkg/lander"
	"github.com/hyperbridge/relayer-core/pkg/merkle"
	"github.com/hyperbridge/relayer-core/pkg/message"
)

// =============================================================================
// INDEXER
// =============================================================================

// LogMeta carries the chain-location of an indexed event, kept alongside
// the decoded value so a caller can reconstruct block cursors.
type LogMeta struct {
	BlockNumber uint64
	BlockHash   common.Hash
	TxHash      common.Hash
	LogIndex    uint32
}

// Indexer streams dispatch events and Merkle insertions from an origin
// chain.
type Indexer interface {
	// FetchMessagesInRange returns every HyperlaneMessage dispatch in
	// [from, to], inclusive, in ascending block order.
	FetchMessagesInRange(ctx context.Context, from, to uint64) ([]message.Message, []LogMeta, error)

	// FetchInsertionsInRange returns every MerkleTreeInsertion in
	// [from, to], inclusive, in ascending leaf-index order.
	FetchInsertionsInRange(ctx context.Context, from, to uint64) ([]message.Insertion, []LogMeta, error)

	// GetFinalizedBlockNumber returns the highest block number this
	// indexer considers safe to read.
	GetFinalizedBlockNumber(ctx context.Context) (uint64, error)

	// LatestSequenceCountAndTip returns the highest known leaf count (nil
	// if the tree is empty) and the chain tip it was observed at.
	LatestSequenceCountAndTip(ctx context.Context) (count *uint32, tip uint64, err error)
}

// =============================================================================
// MAILBOX (destination)
// =============================================================================

// TxOutcome reports whether an on-chain call succeeded.
type TxOutcome struct {
	TxHash  common.Hash
	Success bool
	GasUsed uint64
}

// TxCostEstimate is a dry-run cost projection for a prospective call.
type TxCostEstimate struct {
	GasLimit uint64
	GasPrice *big.Int
}

// Mailbox is the destination-chain contract that accepts delivered
// messages.
type Mailbox interface {
	// Delivered reports whether messageID has already been processed.
	Delivered(ctx context.Context, messageID common.Hash) (bool, error)

	// Process submits (message, metadata, proof) for on-chain delivery.
	Process(ctx context.Context, msg message.Message, metadata []byte, proof *merkle.Proof) (TxOutcome, error)

	// ProcessEstimateCosts dry-runs Process without submitting it.
	ProcessEstimateCosts(ctx context.Context, msg message.Message, metadata []byte) (TxCostEstimate, error)

	// DefaultISM returns the mailbox-wide default ISM address.
	DefaultISM(ctx context.Context) (common.Address, error)

	// RecipientISM returns recipient's configured ISM, falling back to
	// DefaultISM if recipient has not configured one.
	RecipientISM(ctx context.Context, recipient common.Address) (common.Address, error)
}

// =============================================================================
// MERKLE TREE HOOK (destination)
// =============================================================================

// MerkleTreeHook exposes a destination's view of an origin's dispatch
// tree, reported through a reorg-safety lens.
type MerkleTreeHook interface {
	// Tree returns the full incremental tree as observed reorgPeriod
	// blocks back from the chain tip.
	Tree(ctx context.Context, reorgPeriod uint32) (*merkle.IncrementalMerkle, error)

	// Count returns the tree's leaf count at reorgPeriod.
	Count(ctx context.Context, reorgPeriod uint32) (uint32, error)

	// LatestCheckpoint returns the most recent (root, index) pair at
	// reorgPeriod.
	LatestCheckpoint(ctx context.Context, reorgPeriod uint32) (message.Checkpoint, error)
}

// =============================================================================
// VALIDATOR ANNOUNCE
// =============================================================================

// SignedAnnouncement is a validator's storage-location announcement,
// signed over the checkpoint domain.
type SignedAnnouncement struct {
	Validator         common.Address
	StorageLocations  []string
	Signature         []byte
}

// ValidatorAnnounce reads and writes validator storage-location
// announcements on a chain.
type ValidatorAnnounce interface {
	// GetAnnouncedStorageLocations returns, per validator, every storage
	// location it has announced.
	GetAnnouncedStorageLocations(ctx context.Context, validators []common.Address) ([][]string, error)

	// Announce submits a signed announcement.
	Announce(ctx context.Context, signed SignedAnnouncement) (TxOutcome, error)

	// AnnounceTokensNeeded returns the native-token balance required to
	// submit signed successfully (0 if already sufficient).
	AnnounceTokensNeeded(ctx context.Context, signed SignedAnnouncement) (*big.Int, error)
}

// =============================================================================
// ADAPTER (LANDER) — re-exported for a single import site
// =============================================================================

// LanderAdapter is the per-chain-kind contract the Lander drives; it is
// pkg/lander.Adapter re-exported here so callers assembling a chain's
// full capability set only need to import pkg/chainadapter.
type LanderAdapter = lander.Adapter

// MaxBatchSizeAndBlockTime is carried by chains whose Lander adapter
// wants to advertise static pipeline-tuning parameters (the Rust
// adapter's max_batch_size/estimated_block_time), without forcing every
// Adapter implementation to support it.
type MaxBatchSizeAndBlockTime interface {
	MaxBatchSize() uint32
	EstimatedBlockTime() time.Duration
}

// =============================================================================
// KV STORE — re-exported for a single import site
// =============================================================================

// Store is the byte-keyed, byte-valued, durable store every stage reads
// and writes persisted cursors, payloads, and transactions through. It
// is defined fully in pkg/kvstore; re-exported here so a chain wiring
// site can depend only on pkg/chainadapter for every capability name in
// one place.
type Store = interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	Set(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error
	Has(ctx context.Context, key []byte) (bool, error)
}

// Chain bundles every capability contract for one configured chain. An
// origin chain implements Indexer and MerkleTreeHook; a destination
// additionally implements Mailbox and a LanderAdapter; both sides
// implement ValidatorAnnounce for cross-chain validator discovery.
type Chain struct {
	Domain            uint32
	Indexer           Indexer
	Mailbox           Mailbox
	MerkleTreeHook    MerkleTreeHook
	ValidatorAnnounce ValidatorAnnounce
	Lander            LanderAdapter
}
