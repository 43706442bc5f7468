// Copyright 2025 Certen Protocol

package ismmeta

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyperbridge/relayer-core/pkg/message"
)

// buildNull returns empty metadata: a Null ISM's verify() ignores its
// metadata argument entirely.
func (b *Builder) buildNull(_ context.Context, _ common.Address, _ message.Message) (Metadata, error) {
	return Metadata{}, nil
}
