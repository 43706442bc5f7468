// Copyright 2025 Certen Protocol

package ismmeta

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyperbridge/relayer-core/pkg/message"
)

// buildMultisig delegates to the resolver for the validator-signature
// metadata a (merkle-root or message-id) multisig ISM's verify() expects.
// Signature collection itself lives on the validator side (out of scope
// for the relayer core); the resolver is expected to surface whatever
// signatures have already been gossiped/observed for this checkpoint.
func (b *Builder) buildMultisig(ctx context.Context, ismAddress common.Address, msg message.Message, merkleRootStyle bool) (Metadata, error) {
	meta, err := b.resolver.MultisigMetadata(ctx, ismAddress, msg, merkleRootStyle)
	if err != nil {
		return nil, &FailedToBuildError{IsmAddress: ismAddress, Reason: fmt.Sprintf("multisig metadata: %v", err)}
	}
	if meta == nil {
		return nil, Refused(fmt.Sprintf("no quorum of signatures available for %s", ismAddress))
	}
	return meta, nil
}
