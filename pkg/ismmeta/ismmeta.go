// Copyright 2025 Certen Protocol
//
// Package ismmeta builds Interchain Security Module (ISM) metadata: the
// bytes a destination mailbox's `verify(metadata, message)` call needs to
// accept a message. ISMs form a tree (Aggregation and Routing ISMs defer
// to sub-ISMs), so metadata building is itself recursive; IsmResolver is
// the capability interface the builder uses to query ISM structure and
// cost without caring how a given chain exposes it.
package ismmeta

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyperbridge/relayer-core/pkg/message"
)

// IsmKind tags the polymorphic ISM variants this builder knows how to
// satisfy. Dispatch is a switch on this tag rather than dynamic
// method resolution, matching the teacher's strategy-registry pattern of
// keying behavior off an explicit enum.
type IsmKind uint8

const (
	IsmKindNull IsmKind = iota
	IsmKindMultisig
	IsmKindMerkleRootMultisig
	IsmKindAggregation
	IsmKindRouting
	IsmKindCcipRead
)

func (k IsmKind) String() string {
	switch k {
	case IsmKindNull:
		return "null"
	case IsmKindMultisig:
		return "multisig"
	case IsmKindMerkleRootMultisig:
		return "merkle_root_multisig"
	case IsmKindAggregation:
		return "aggregation"
	case IsmKindRouting:
		return "routing"
	case IsmKindCcipRead:
		return "ccip_read"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Metadata is the opaque byte blob passed to a mailbox's verify() call.
type Metadata []byte

// MaxRecursionDepth bounds Aggregation/Routing recursion. A chain
// misconfigured into a self-referential ISM tree would otherwise recurse
// forever; 8 comfortably covers any real deployment's nesting.
const MaxRecursionDepth = 8

var (
	// ErrAggregationThresholdNotMet is returned when fewer sub-ISMs
	// produced usable metadata than the aggregation threshold requires.
	ErrAggregationThresholdNotMet = errors.New("ismmeta: aggregation threshold not met")

	// ErrRecursionDepthExceeded names the depth-cap condition. Build
	// reports an ISM tree nested more than MaxRecursionDepth levels deep
	// as a *RefusedError, not as this sentinel.
	ErrRecursionDepthExceeded = errors.New("ismmeta: ism recursion depth exceeded")
)

// RefusedError means a sub-ISM categorically cannot produce metadata for
// this message (e.g. a routing ISM with no route, a ccip-read ISM whose
// offchain lookup failed). Refusal propagates immediately through any
// enclosing Aggregation or Routing builder rather than being treated as
// one of several failures to tolerate.
type RefusedError struct {
	Reason string
}

func (e *RefusedError) Error() string { return "ismmeta: refused: " + e.Reason }

// Refused constructs a *RefusedError.
func Refused(reason string) error { return &RefusedError{Reason: reason} }

// FailedToBuildError wraps an underlying chain-adapter failure (RPC error,
// decode error) encountered while building metadata for one ISM.
type FailedToBuildError struct {
	IsmAddress common.Address
	Reason     string
}

func (e *FailedToBuildError) Error() string {
	return fmt.Sprintf("ismmeta: failed to build metadata for %s: %s", e.IsmAddress, e.Reason)
}

// ThresholdNotMetError carries the threshold an Aggregation ISM required
// versus how many sub-metadatas cleared gas estimation.
type ThresholdNotMetError struct {
	Threshold int
	Available int
}

func (e *ThresholdNotMetError) Error() string {
	return fmt.Sprintf("%s: need %d, have %d", ErrAggregationThresholdNotMet, e.Threshold, e.Available)
}

func (e *ThresholdNotMetError) Unwrap() error { return ErrAggregationThresholdNotMet }

// IsmResolver is the capability a chain adapter exposes for ISM metadata
// building: resolving an ISM's kind and querying the on-chain state a
// particular kind needs. Gas estimation ("dry_run_verify") returns a nil
// *big.Int with a nil error when the module declines to produce an
// estimate (filtered out by the aggregation builder, not treated as a
// hard failure) — mirroring the Rust builder's
// `gas_cost.ok().flatten()`.
type IsmResolver interface {
	ModuleType(ctx context.Context, ismAddress common.Address) (IsmKind, error)
	ModulesAndThreshold(ctx context.Context, ismAddress common.Address, msg message.Message) ([]common.Address, uint8, error)
	RoutingModule(ctx context.Context, ismAddress common.Address, msg message.Message) (common.Address, error)
	DryRunVerify(ctx context.Context, ismAddress common.Address, msg message.Message, metadata Metadata) (*big.Int, error)
	MultisigMetadata(ctx context.Context, ismAddress common.Address, msg message.Message, merkleRootStyle bool) (Metadata, error)
	CcipReadMetadata(ctx context.Context, ismAddress common.Address, msg message.Message) (Metadata, error)
}
