// Copyright 2025 Certen Protocol
//
// Aggregation ISM metadata building: fetch the sub-ISM set and threshold
// (cached per ism/message), build each sub-ISM's metadata concurrently,
// gas-estimate the ones that succeeded, keep only the cheapest `threshold`
// of them, and pack the result as a range table followed by the packed
// sub-metadata, exactly as the Solidity AggregationIsmMetadata library
// expects.

package ismmeta

import (
	"context"
	"encoding/binary"
	"errors"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyperbridge/relayer-core/pkg/message"
)

// metadataRangeSize is the byte width of one half of a (start, end) range
// tuple, matching AggregationIsmMetadata.sol.
const metadataRangeSize = 4

// subModuleMetadata pairs a sub-ISM's index within the aggregation set
// with the metadata bytes it produced.
type subModuleMetadata struct {
	index    int
	metadata Metadata
}

func (b *Builder) buildAggregation(ctx context.Context, ismAddress common.Address, msg message.Message, depth int) (Metadata, error) {
	addresses, threshold, err := b.modulesAndThreshold(ctx, ismAddress, msg)
	if err != nil {
		return nil, err
	}

	type subOutcome struct {
		meta Metadata
		err  error
	}
	outcomes := make([]subOutcome, len(addresses))
	var wg sync.WaitGroup
	for i, addr := range addresses {
		wg.Add(1)
		go func(i int, addr common.Address) {
			defer wg.Done()
			meta, err := b.Build(ctx, addr, msg, depth+1)
			outcomes[i] = subOutcome{meta: meta, err: err}
		}(i, addr)
	}
	wg.Wait()

	// A sub-ISM's categorical refusal propagates immediately: there is no
	// point tolerating it as "just one more missing signature" the way a
	// plain build failure is tolerated below.
	for _, o := range outcomes {
		var refused *RefusedError
		if errors.As(o.err, &refused) {
			return nil, refused
		}
	}

	type okSub struct {
		index      int
		ismAddress common.Address
		meta       Metadata
	}
	var oks []okSub
	for i, o := range outcomes {
		if o.err == nil {
			oks = append(oks, okSub{index: i, ismAddress: addresses[i], meta: o.meta})
		}
	}

	type metaAndGas struct {
		index int
		meta  Metadata
		gas   *big.Int
	}
	gasResults := make([]*big.Int, len(oks))
	gasErrs := make([]error, len(oks))
	var gasWg sync.WaitGroup
	for i, s := range oks {
		gasWg.Add(1)
		go func(i int, s okSub) {
			defer gasWg.Done()
			gas, err := b.resolver.DryRunVerify(ctx, s.ismAddress, msg, s.meta)
			gasResults[i] = gas
			gasErrs[i] = err
		}(i, s)
	}
	gasWg.Wait()

	var withGas []metaAndGas
	for i, s := range oks {
		// A gas-estimation error, or a nil estimate (the module declined
		// to price itself), drops this sub-ISM from consideration rather
		// than failing the whole aggregation.
		if gasErrs[i] != nil || gasResults[i] == nil {
			continue
		}
		withGas = append(withGas, metaAndGas{index: s.index, meta: s.meta, gas: gasResults[i]})
	}

	th := int(threshold)
	if len(withGas) < th {
		return nil, &ThresholdNotMetError{Threshold: th, Available: len(withGas)}
	}

	sort.Slice(withGas, func(i, j int) bool { return withGas[i].gas.Cmp(withGas[j].gas) < 0 })
	cheapest := withGas[:th]
	sort.Slice(cheapest, func(i, j int) bool { return cheapest[i].index < cheapest[j].index })

	valid := make([]subModuleMetadata, len(cheapest))
	for i, m := range cheapest {
		valid[i] = subModuleMetadata{index: m.index, metadata: m.meta}
	}

	return formatMetadata(valid, len(addresses)), nil
}

// modulesAndThreshold fetches an Aggregation ISM's sub-module addresses
// and threshold, serving from cache when the (ism, message) pair has been
// seen before: neither can change within the lifetime of a single
// message's delivery attempt.
func (b *Builder) modulesAndThreshold(ctx context.Context, ismAddress common.Address, msg message.Message) ([]common.Address, uint8, error) {
	msgID := msg.ID()
	if addrs, threshold, ok := b.cache.get(ismAddress, msgID); ok {
		return addrs, threshold, nil
	}
	addrs, threshold, err := b.resolver.ModulesAndThreshold(ctx, ismAddress, msg)
	if err != nil {
		return nil, 0, &FailedToBuildError{IsmAddress: ismAddress, Reason: err.Error()}
	}
	b.cache.put(ismAddress, msgID, addrs, threshold)
	return addrs, threshold, nil
}

// formatMetadata packs metadatas (sorted by index) into the wire format
// AggregationIsmMetadata.sol expects: a zero-initialized range table of
// ismCount (start, end) uint32 pairs, followed by each selected
// sub-module's metadata bytes appended in turn, with that sub-module's
// range tuple overwritten in place at its own index.
func formatMetadata(metadatas []subModuleMetadata, ismCount int) Metadata {
	rangeTuplesSize := metadataRangeSize * 2 * ismCount
	buffer := make([]byte, rangeTuplesSize)

	for _, sm := range metadatas {
		rangeStart := len(buffer)
		buffer = append(buffer, sm.metadata...)
		rangeEnd := len(buffer)

		encodedRangeStart := metadataRangeSize * 2 * sm.index
		binary.BigEndian.PutUint32(buffer[encodedRangeStart:encodedRangeStart+4], uint32(rangeStart))
		binary.BigEndian.PutUint32(buffer[encodedRangeStart+4:encodedRangeStart+8], uint32(rangeEnd))
	}

	return buffer
}
