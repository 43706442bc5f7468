// Copyright 2025 Certen Protocol

package ismmeta

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyperbridge/relayer-core/pkg/message"
)

// buildRouting resolves the route the message takes (typically keyed on
// message.Origin) and recurses into the routed sub-ISM one depth deeper.
func (b *Builder) buildRouting(ctx context.Context, ismAddress common.Address, msg message.Message, depth int) (Metadata, error) {
	routed, err := b.resolver.RoutingModule(ctx, ismAddress, msg)
	if err != nil {
		return nil, &FailedToBuildError{IsmAddress: ismAddress, Reason: fmt.Sprintf("routing module: %v", err)}
	}
	if routed == (common.Address{}) {
		return nil, Refused(fmt.Sprintf("no route for origin %d at %s", msg.Origin, ismAddress))
	}
	return b.Build(ctx, routed, msg, depth+1)
}
