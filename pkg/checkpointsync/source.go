// Copyright 2025 Certen Protocol
//
// Package checkpointsync fetches validator-signed checkpoints from the
// HTTP locations validators announce on-chain (S3/GCS buckets or a
// plain static file server, per the validator's own publishing choice)
// and packs them into the metadata bytes a multisig ISM's verify()
// expects. This is the relayer-side half of validator signature
// collection; producing the signatures themselves is the validator
// agent's job, out of scope here.
package checkpointsync

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/hyperbridge/relayer-core/pkg/ismmeta"
	"github.com/hyperbridge/relayer-core/pkg/message"
	"github.com/hyperbridge/relayer-core/pkg/rlog"
)

// signedCheckpointFile is the JSON document a validator publishes at
// "<storage_location>/checkpoint_<index>_with_id.json".
type signedCheckpointFile struct {
	Checkpoint struct {
		Root           string `json:"root"`
		Index          uint32 `json:"index"`
		MerkleTreeHook string `json:"merkle_tree_hook_address"`
		MessageID      string `json:"message_id"`
	} `json:"checkpoint"`
	Signature string `json:"signature"`
}

// Locator resolves a validator's announced HTTP storage locations. Any
// chainadapter.ValidatorAnnounce implementation satisfies this directly;
// declared separately so Source never imports pkg/chainadapter itself.
type Locator interface {
	GetAnnouncedStorageLocations(ctx context.Context, validators []common.Address) ([][]string, error)
}

// Source is the HTTP-fetching chainadapter.SignatureSource
// implementation: given an ISM's validator set and threshold (resolved
// by the caller beforehand), it fetches each validator's checkpoint file
// for the message's leaf index, verifies the recovered signer against
// the expected address, and packs the first quorum it finds.
type Source struct {
	locator    Locator
	httpClient *http.Client
	logger     *log.Logger
}

// NewSource returns a Source resolving validator storage locations via
// locator.
func NewSource(locator Locator, logger *log.Logger) *Source {
	return &Source{
		locator:    locator,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     rlog.OrDefault(logger, "checkpointsync"),
	}
}

// CollectSignatures fetches and verifies signatures for msg's checkpoint
// from validators, returning nil (no error) if fewer than threshold are
// available yet rather than failing outright — the processor's retry
// heap is expected to try again later.
func (s *Source) CollectSignatures(ctx context.Context, validators []common.Address, threshold int, msg message.Message, merkleRootStyle bool) (ismmeta.Metadata, error) {
	locations, err := s.locator.GetAnnouncedStorageLocations(ctx, validators)
	if err != nil {
		return nil, fmt.Errorf("checkpointsync: storage locations: %w", err)
	}

	type signed struct {
		validator common.Address
		signature []byte
		root      common.Hash
		index     uint32
		hook      common.Address
	}
	var collected []signed
	for i, validator := range validators {
		for _, loc := range locations[i] {
			cp, err := s.fetchCheckpoint(ctx, loc, msg.Nonce)
			if err != nil {
				s.logger.Printf("validator %s: fetch checkpoint at %s failed: %v", validator, loc, err)
				continue
			}
			root := common.HexToHash(cp.Checkpoint.Root)
			digest := checkpointDigest(cp.Checkpoint.MerkleTreeHook, root, cp.Checkpoint.Index, cp.Checkpoint.MessageID)
			sig := common.FromHex(cp.Signature)
			recovered, err := recoverSigner(digest, sig)
			if err != nil || recovered != validator {
				s.logger.Printf("validator %s: signature verification failed", validator)
				continue
			}
			collected = append(collected, signed{
				validator: validator,
				signature: sig,
				root:      root,
				index:     cp.Checkpoint.Index,
				hook:      common.HexToAddress(cp.Checkpoint.MerkleTreeHook),
			})
			break
		}
		if len(collected) >= threshold {
			break
		}
	}

	if len(collected) < threshold {
		return nil, nil
	}

	sort.Slice(collected, func(i, j int) bool {
		return bytes.Compare(collected[i].validator[:], collected[j].validator[:]) < 0
	})

	// Metadata layout: merkle tree hook address (20) || root (32) ||
	// index (4, big-endian) || one 65-byte signature per validator, in
	// ascending validator-address order, matching the Solidity
	// MultisigIsmMetadata library's field ordering.
	first := collected[0]
	buf := make([]byte, 0, 20+32+4+65*threshold)
	buf = append(buf, first.hook.Bytes()...)
	buf = append(buf, first.root.Bytes()...)
	indexBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(indexBytes, first.index)
	buf = append(buf, indexBytes...)
	for i := 0; i < threshold; i++ {
		buf = append(buf, collected[i].signature...)
	}
	return ismmeta.Metadata(buf), nil
}

// CcipReadMetadata is not implemented: CCIP-read ISMs resolve through an
// arbitrary offchain gateway named in the ISM's revert data, which this
// package has no generic way to call. Chains relying on ccip-read need a
// purpose-built SignatureSource.
func (s *Source) CcipReadMetadata(ctx context.Context, ismAddress common.Address, msg message.Message) (ismmeta.Metadata, error) {
	return nil, fmt.Errorf("checkpointsync: ccip-read not supported for ism %s", ismAddress)
}

func (s *Source) fetchCheckpoint(ctx context.Context, storageLocation string, index uint32) (*signedCheckpointFile, error) {
	url := fmt.Sprintf("%s/checkpoint_%d_with_id.json", storageLocation, index)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("checkpointsync: %s returned %d", url, resp.StatusCode)
	}
	var cp signedCheckpointFile
	if err := json.NewDecoder(resp.Body).Decode(&cp); err != nil {
		return nil, fmt.Errorf("checkpointsync: decode %s: %w", url, err)
	}
	return &cp, nil
}

// checkpointDigest reproduces the domain-separated hash a validator
// signs over: merkle tree hook address, root, index, and message id.
func checkpointDigest(hookAddress string, root common.Hash, index uint32, messageID string) common.Hash {
	indexBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(indexBytes, index)
	return crypto.Keccak256Hash(
		common.HexToAddress(hookAddress).Bytes(),
		root.Bytes(),
		indexBytes,
		common.HexToHash(messageID).Bytes(),
	)
}

func recoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("checkpointsync: signature must be 65 bytes, got %d", len(sig))
	}
	normalized := append([]byte(nil), sig...)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pubKey, err := crypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}
