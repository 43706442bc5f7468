// Copyright 2025 Certen Protocol
//
// Incremental Merkle Tree for Origin Dispatch Mirroring
//
// Mirrors the origin chain's append-only dispatch-insertion sequence as a
// 32-level incremental Merkle tree (the same algorithm used by the
// Hyperlane/Solidity MerkleTreeHook), and produces inclusion proofs against
// any historical leaf count the builder has passed through.

package merkle

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
)

// TreeDepth is the number of levels in the incremental tree. 2^32 leaves
// fit comfortably; depth 32 matches the on-chain MerkleTreeHook.
const TreeDepth = 32

// MaxLeaves is the maximum number of leaves representable at TreeDepth.
const MaxLeaves = 1<<TreeDepth - 1

var (
	// ErrUnexpectedLeafIndex is returned when Ingest is called with a
	// non-consecutive leaf index. The caller must re-query the origin
	// store from Count() and replay.
	ErrUnexpectedLeafIndex = errors.New("merkle: unexpected leaf index")

	// ErrInsufficientLeaves is returned by GetProof when the requested
	// leaf or target count falls outside what has been ingested.
	ErrInsufficientLeaves = errors.New("merkle: insufficient leaves for proof")
)

// UnexpectedLeafIndexError carries the expected and actual leaf index for
// a failed ingest, per §4.1's UnexpectedLeafIndex(expected, got).
type UnexpectedLeafIndexError struct {
	Expected uint32
	Got      uint32
}

func (e *UnexpectedLeafIndexError) Error() string {
	return fmt.Sprintf("merkle: expected leaf index %d, got %d", e.Expected, e.Got)
}

func (e *UnexpectedLeafIndexError) Unwrap() error { return ErrUnexpectedLeafIndex }

// zeroHashes[i] is the root of an empty subtree of depth i.
var zeroHashes = computeZeroHashes()

func computeZeroHashes() [TreeDepth + 1][32]byte {
	var z [TreeDepth + 1][32]byte
	for i := 0; i < TreeDepth; i++ {
		z[i+1] = hashPair(z[i], z[i])
	}
	return z
}

// hashPair combines two 32-byte nodes with keccak256, matching the
// on-chain tree hook's hashing scheme.
func hashPair(left, right [32]byte) [32]byte {
	var out [32]byte
	copy(out[:], crypto.Keccak256(left[:], right[:]))
	return out
}

// IncrementalMerkle is an append-only 32-level incremental Merkle tree. It
// is safe for concurrent readers; there must be a single writer (the
// origin-sync task per §5).
type IncrementalMerkle struct {
	mu sync.RWMutex

	// count is the number of leaves ingested so far.
	count uint32

	// branch holds the incremental-tree frontier: branch[i] is the
	// furthest-right filled node at level i awaiting its sibling.
	branch [TreeDepth][32]byte

	// leaves is the full ingested leaf log, used to recompute sibling
	// paths for historical proofs. A store-and-recompute strategy, per
	// the spec's design note that either storage approach is acceptable.
	leaves [][32]byte
}

// NewIncrementalMerkle returns an empty tree.
func NewIncrementalMerkle() *IncrementalMerkle {
	return &IncrementalMerkle{}
}

// Ingest appends a single leaf. leafIndex must equal Count(); otherwise
// state is left unchanged and an *UnexpectedLeafIndexError is returned.
func (t *IncrementalMerkle) Ingest(leaf [32]byte, leafIndex uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if leafIndex != t.count {
		return &UnexpectedLeafIndexError{Expected: t.count, Got: leafIndex}
	}
	if t.count >= MaxLeaves {
		return fmt.Errorf("merkle: tree full at depth %d", TreeDepth)
	}

	t.leaves = append(t.leaves, leaf)

	node := leaf
	size := t.count
	for level := 0; level < TreeDepth; level++ {
		if size&1 == 1 {
			// branch[level] holds our left sibling; this node becomes
			// the right child and we keep climbing.
			node = hashPair(t.branch[level], node)
			size >>= 1
			continue
		}
		// We are the left child at this level; store as the new
		// frontier and stop until a matching sibling arrives.
		t.branch[level] = node
		break
	}

	t.count++
	return nil
}

// Count returns the number of leaves ingested.
func (t *IncrementalMerkle) Count() uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

// Root returns the current root, a pure function of count and branch.
func (t *IncrementalMerkle) Root() [32]byte {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return foldBranch(t.branch, t.count)
}

// RootHex returns the current root as a 0x-prefixed hex string.
func (t *IncrementalMerkle) RootHex() string {
	root := t.Root()
	return "0x" + hex.EncodeToString(root[:])
}

// foldBranch computes the root given a frontier and leaf count, combining
// filled frontier slots with the canonical zero-subtree hash at each
// level, per the standard incremental Merkle algorithm.
func foldBranch(branch [TreeDepth][32]byte, count uint32) [32]byte {
	node := zeroHashes[0]
	size := count
	for level := 0; level < TreeDepth; level++ {
		if size&1 == 1 {
			node = hashPair(branch[level], node)
		} else {
			node = hashPair(node, zeroHashes[level])
		}
		size >>= 1
	}
	return node
}

// Proof is a 32-element sibling path proving inclusion of a leaf at a
// given index against the root of a tree with a given leaf count.
type Proof struct {
	Leaf      [32]byte
	LeafIndex uint32
	Count     uint32
	Siblings  [TreeDepth][32]byte
}

// GetProof returns a proof that folding up from leafIndex reproduces the
// root of the tree at exactly targetCount leaves. Fails with
// ErrInsufficientLeaves if leafIndex >= targetCount or targetCount exceeds
// what has been ingested so far.
func (t *IncrementalMerkle) GetProof(leafIndex, targetCount uint32) (*Proof, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if leafIndex >= targetCount || targetCount > t.count {
		return nil, fmt.Errorf("%w: leaf_index=%d target_count=%d count=%d",
			ErrInsufficientLeaves, leafIndex, targetCount, t.count)
	}

	return &Proof{
		Leaf:      t.leaves[leafIndex],
		LeafIndex: leafIndex,
		Count:     targetCount,
		Siblings:  siblingPath(t.leaves, leafIndex, targetCount),
	}, nil
}

// siblingPath walks from leafIndex to the root of a tree bounded to
// `count` leaves, collecting the sibling subtree hash at each level. A
// subtree lying entirely beyond `count` folds to the canonical
// zero-subtree hash for that level; otherwise it is recomputed directly
// from the leaf log. Not on the ingestion hot path, so a direct recursive
// fold is clear and sufficient.
func siblingPath(leaves [][32]byte, leafIndex, count uint32) [TreeDepth][32]byte {
	var path [TreeDepth][32]byte
	idx := leafIndex
	for level := 0; level < TreeDepth; level++ {
		siblingIdx := idx ^ 1
		path[level] = recomputeNode(leaves, level, siblingIdx, count)
		idx >>= 1
	}
	return path
}

// recomputeNode computes the hash of the subtree rooted at (level, index)
// given the full leaf log, treating any leaf at or beyond `count` as
// absent (folding to the zero-subtree hash for that level).
func recomputeNode(leaves [][32]byte, level int, index uint32, count uint32) [32]byte {
	if index<<uint(level) >= count {
		return zeroHashes[level]
	}
	if level == 0 {
		return leaves[index]
	}
	left := recomputeNode(leaves, level-1, index*2, count)
	right := recomputeNode(leaves, level-1, index*2+1, count)
	return hashPair(left, right)
}

// Fold reproduces the root implied by a proof by folding the sibling path
// up from the leaf.
func (p *Proof) Fold() [32]byte {
	node := p.Leaf
	idx := p.LeafIndex
	for level := 0; level < TreeDepth; level++ {
		if idx&1 == 1 {
			node = hashPair(p.Siblings[level], node)
		} else {
			node = hashPair(node, p.Siblings[level])
		}
		idx >>= 1
	}
	return node
}

// Verify checks that folding proof from its leaf reproduces expectedRoot.
func (p *Proof) Verify(expectedRoot [32]byte) bool {
	return p.Fold() == expectedRoot
}
