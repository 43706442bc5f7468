// Copyright 2025 Certen Protocol

package ismmeta

import (
	"context"
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyperbridge/relayer-core/pkg/message"
	"github.com/hyperbridge/relayer-core/pkg/rlog"
)

// Builder builds ISM metadata by dispatching on IsmKind, recursing into
// sub-ISMs for Aggregation and Routing variants.
type Builder struct {
	resolver IsmResolver
	cache    *thresholdCache
	logger   *log.Logger
}

// NewBuilder constructs a Builder backed by resolver. Pass a nil logger to
// get the package's default prefixed logger.
func NewBuilder(resolver IsmResolver, logger *log.Logger) *Builder {
	return &Builder{
		resolver: resolver,
		cache:    newThresholdCache(),
		logger:   rlog.OrDefault(logger, "ismmeta"),
	}
}

// Build produces metadata for msg against the ISM at ismAddress. depth
// starts at 0 for the message's root ISM; recursive calls into sub-ISMs
// increment it.
func (b *Builder) Build(ctx context.Context, ismAddress common.Address, msg message.Message, depth int) (Metadata, error) {
	if depth > MaxRecursionDepth {
		return nil, Refused(fmt.Sprintf("ism depth exceeded at %s", ismAddress))
	}

	kind, err := b.resolver.ModuleType(ctx, ismAddress)
	if err != nil {
		return nil, &FailedToBuildError{IsmAddress: ismAddress, Reason: err.Error()}
	}

	switch kind {
	case IsmKindNull:
		return b.buildNull(ctx, ismAddress, msg)
	case IsmKindMultisig:
		return b.buildMultisig(ctx, ismAddress, msg, false)
	case IsmKindMerkleRootMultisig:
		return b.buildMultisig(ctx, ismAddress, msg, true)
	case IsmKindAggregation:
		return b.buildAggregation(ctx, ismAddress, msg, depth)
	case IsmKindRouting:
		return b.buildRouting(ctx, ismAddress, msg, depth)
	case IsmKindCcipRead:
		return b.buildCcipRead(ctx, ismAddress, msg)
	default:
		return nil, &FailedToBuildError{IsmAddress: ismAddress, Reason: fmt.Sprintf("unsupported ism kind %s", kind)}
	}
}
