// Copyright 2025 Certen Protocol

package lander

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// BuildResult is one outcome of a BuildTransactions call: a group of
// Payloads the adapter managed to pack into Tx, or Tx == nil if the
// adapter could not build a transaction for this group at all (a
// malformed payload, an ABI encoding failure, a destination the chain
// rejects outright).
type BuildResult struct {
	Payloads []*Payload
	Tx       *Transaction
}

// Adapter is the destination-chain capability the Lander drives. A
// concrete implementation wraps an RPC client for one particular chain
// family (EVM, Cosmos, ...); the stages in this package know nothing
// chain-specific beyond this interface.
type Adapter interface {
	// BuildTransactions packs payloads into one or more transactions,
	// batching where the chain and calling convention allow it. Payloads
	// that cannot be built are reported with Tx == nil rather than by
	// error, so a batch's individual failures don't sink the rest.
	BuildTransactions(ctx context.Context, payloads []*Payload) ([]BuildResult, error)

	// EstimateGas returns a fresh gas price/limit estimate for tx's
	// current contents.
	EstimateGas(ctx context.Context, tx *Transaction) (*big.Int, error)

	// Simulate dry-runs tx against current chain state, returning an
	// error if it would revert.
	Simulate(ctx context.Context, tx *Transaction) error

	// Submit broadcasts tx and returns its chain-assigned hash.
	Submit(ctx context.Context, tx *Transaction) (common.Hash, error)

	// TransactionStatus reports tx's current on-chain status.
	TransactionStatus(ctx context.Context, tx *Transaction) (TxStatus, error)

	// RevertedPayloads returns the subset of tx's Payloads that reverted
	// individually within an otherwise-successful (e.g. batched) tx.
	RevertedPayloads(ctx context.Context, tx *Transaction) ([]uuid.UUID, error)
}
