// Copyright 2025 Certen Protocol
//
// EVM implementation of pkg/ismmeta.IsmResolver: the on-chain ISM-tree
// queries (module type, sub-module set, routing, gas dry-run) go
// straight over EVMClient the same way the rest of this package's
// adapters do. Validator signature collection is explicitly out of
// scope for the relayer core (see pkg/ismmeta/multisig.go), so
// multisig/ccip-read metadata is delegated to a small injected
// interface a separate validator-signature watcher satisfies.
package chainadapter

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/hyperbridge/relayer-core/pkg/ismmeta"
	"github.com/hyperbridge/relayer-core/pkg/message"
)

const ismABIJSON = `[
	{"type":"function","name":"moduleType","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"modulesAndThreshold","stateMutability":"view","inputs":[{"name":"message","type":"bytes"}],"outputs":[{"name":"","type":"address[]"},{"name":"","type":"uint8"}]},
	{"type":"function","name":"route","stateMutability":"view","inputs":[{"name":"message","type":"bytes"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"verify","stateMutability":"nonpayable","inputs":[{"name":"metadata","type":"bytes"},{"name":"message","type":"bytes"}],"outputs":[{"name":"","type":"bool"}]}
]`

// SignatureSource supplies already-gossiped validator signatures for a
// checkpoint, populated by a validator-announcement watcher independent
// of this adapter. Returning nil, nil means no quorum is available yet.
type SignatureSource interface {
	// CollectSignatures packs the validator signatures for msg's
	// checkpoint into multisig ISM metadata, given the validator set and
	// threshold the caller already resolved from the ISM itself.
	CollectSignatures(ctx context.Context, validators []common.Address, threshold int, msg message.Message, merkleRootStyle bool) (ismmeta.Metadata, error)
	CcipReadMetadata(ctx context.Context, ismAddress common.Address, msg message.Message) (ismmeta.Metadata, error)
}

// EVMIsmResolver answers ISM-tree structural queries over chain RPC and
// defers signature-bearing metadata to a SignatureSource.
type EVMIsmResolver struct {
	client     *EVMClient
	abi        abi.ABI
	signatures SignatureSource
}

// NewEVMIsmResolver returns a resolver querying ISMs over client.
// signatures may be nil if this chain never resolves to a multisig or
// ccip-read ISM (e.g. every route terminates in NullISM/AggregationISM).
func NewEVMIsmResolver(client *EVMClient, signatures SignatureSource) *EVMIsmResolver {
	parsed, err := abi.JSON(strings.NewReader(ismABIJSON))
	if err != nil {
		panic("chainadapter: invalid embedded ISM ABI: " + err.Error())
	}
	return &EVMIsmResolver{client: client, abi: parsed, signatures: signatures}
}

func (r *EVMIsmResolver) ModuleType(ctx context.Context, ismAddress common.Address) (ismmeta.IsmKind, error) {
	outputs, err := r.client.call(ctx, r.abi, ismAddress, "moduleType")
	if err != nil {
		return ismmeta.IsmKindNull, err
	}
	return ismmeta.IsmKind(outputs[0].(uint8)), nil
}

func (r *EVMIsmResolver) ModulesAndThreshold(ctx context.Context, ismAddress common.Address, msg message.Message) ([]common.Address, uint8, error) {
	outputs, err := r.client.call(ctx, r.abi, ismAddress, "modulesAndThreshold", encodeMessage(msg))
	if err != nil {
		return nil, 0, err
	}
	return outputs[0].([]common.Address), outputs[1].(uint8), nil
}

func (r *EVMIsmResolver) RoutingModule(ctx context.Context, ismAddress common.Address, msg message.Message) (common.Address, error) {
	outputs, err := r.client.call(ctx, r.abi, ismAddress, "route", encodeMessage(msg))
	if err != nil {
		return common.Address{}, err
	}
	return outputs[0].(common.Address), nil
}

// DryRunVerify estimates the gas a verify() call against metadata would
// cost, without submitting it. A revert is reported as a nil estimate
// rather than an error, matching the aggregation builder's "filtered
// out, not a hard failure" treatment of sub-ISMs that can't clear
// estimation yet.
func (r *EVMIsmResolver) DryRunVerify(ctx context.Context, ismAddress common.Address, msg message.Message, metadata ismmeta.Metadata) (*big.Int, error) {
	data, err := r.abi.Pack("verify", []byte(metadata), encodeMessage(msg))
	if err != nil {
		return nil, fmt.Errorf("chainadapter: pack verify: %w", err)
	}
	gas, err := r.client.rpc.EstimateGas(ctx, ethereum.CallMsg{To: &ismAddress, Data: data})
	if err != nil {
		return nil, nil
	}
	return new(big.Int).SetUint64(gas), nil
}

func (r *EVMIsmResolver) MultisigMetadata(ctx context.Context, ismAddress common.Address, msg message.Message, merkleRootStyle bool) (ismmeta.Metadata, error) {
	if r.signatures == nil {
		return nil, fmt.Errorf("chainadapter: no signature source configured for multisig ism %s", ismAddress)
	}
	validators, threshold, err := r.ModulesAndThreshold(ctx, ismAddress, msg)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: resolve validator set for %s: %w", ismAddress, err)
	}
	return r.signatures.CollectSignatures(ctx, validators, int(threshold), msg, merkleRootStyle)
}

func (r *EVMIsmResolver) CcipReadMetadata(ctx context.Context, ismAddress common.Address, msg message.Message) (ismmeta.Metadata, error) {
	if r.signatures == nil {
		return nil, fmt.Errorf("chainadapter: no ccip-read source configured for ism %s", ismAddress)
	}
	return r.signatures.CcipReadMetadata(ctx, ismAddress, msg)
}

var _ ismmeta.IsmResolver = (*EVMIsmResolver)(nil)
