// Copyright 2025 Certen Protocol
//
// Package lander implements the three-stage transaction submission
// pipeline (Building -> Inclusion -> Finality) that turns a destination
// payload into a finalized on-chain transaction, retrying and
// re-queueing at each stage as the chain's mempool and block production
// demand.
package lander

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Recorder durably persists transaction and payload lifecycle events for
// operator replay and crash recovery, independent of the pipeline's
// in-memory state. A Lander with no Recorder attached runs exactly as
// before; recording is side-channel observability, never load-bearing
// for correctness.
type Recorder interface {
	RecordTransaction(ctx context.Context, tx *Transaction)
	RecordDroppedPayload(ctx context.Context, p *Payload, reason DropReason)
}

// PayloadStatus tracks a payload's position in the pipeline, independent
// of which transaction (if any) currently carries it.
type PayloadStatus int

const (
	PayloadInQueue PayloadStatus = iota
	PayloadInTransaction
	PayloadFinalized
	PayloadDropped
)

// DropReason explains why a payload was dropped rather than delivered.
type DropReason int

const (
	DropReasonFailedToBuildAsTransaction DropReason = iota
	DropReasonReverted
	DropReasonDroppedByChain
	DropReasonFailedSimulation
)

func (r DropReason) String() string {
	switch r {
	case DropReasonFailedToBuildAsTransaction:
		return "failed_to_build_as_transaction"
	case DropReasonReverted:
		return "reverted"
	case DropReasonDroppedByChain:
		return "dropped_by_chain"
	case DropReasonFailedSimulation:
		return "failed_simulation"
	default:
		return "unknown"
	}
}

// Payload is a destination-chain call the Lander must land as a
// transaction: typically a mailbox `process(metadata, message)` call, but
// kept generic so non-message submissions (e.g. validator announcements)
// can reuse the same pipeline.
type Payload struct {
	UUID        uuid.UUID
	Destination uint32
	To          common.Address
	Data        []byte
	Value       *big.Int
	CreatedAt   time.Time
}

// TxStatus is a transaction's observed state on the destination chain.
type TxStatus int

const (
	TxPendingInclusion TxStatus = iota
	TxMempool
	TxIncluded
	TxFinalized
	TxDropped
)

func (s TxStatus) String() string {
	switch s {
	case TxPendingInclusion:
		return "pending_inclusion"
	case TxMempool:
		return "mempool"
	case TxIncluded:
		return "included"
	case TxFinalized:
		return "finalized"
	case TxDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Transaction carries one or more Payloads built into a single on-chain
// transaction.
type Transaction struct {
	UUID        uuid.UUID
	Destination uint32
	Payloads    []*Payload
	Nonce       *uint64
	GasPrice    *big.Int
	Hash        common.Hash
	Status      TxStatus
	SubmittedAt time.Time
	Attempts    int
}
