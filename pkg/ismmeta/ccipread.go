// Copyright 2025 Certen Protocol

package ismmeta

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyperbridge/relayer-core/pkg/message"
)

// buildCcipRead asks the resolver to perform the off-chain CCIP-read
// lookup the ISM's offchain_lookup() revert data specifies. A failed or
// unavailable lookup is a refusal, not a retryable failure: the offchain
// gateway is expected to be unreachable sometimes, and the processor's
// retry heap (not this builder) decides whether to try again later.
func (b *Builder) buildCcipRead(ctx context.Context, ismAddress common.Address, msg message.Message) (Metadata, error) {
	meta, err := b.resolver.CcipReadMetadata(ctx, ismAddress, msg)
	if err != nil {
		return nil, Refused(fmt.Sprintf("ccip-read lookup failed for %s: %v", ismAddress, err))
	}
	return meta, nil
}
