// Copyright 2025 Certen Protocol
//
// Package processor implements the per-destination message processor:
// for one destination, continuously select origin messages targeted at
// it, assemble ISM metadata, build a proof, and submit deliveries via
// the Lander until finality.
package processor

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/hyperbridge/relayer-core/pkg/chainadapter"
	"github.com/hyperbridge/relayer-core/pkg/ismmeta"
	"github.com/hyperbridge/relayer-core/pkg/kvstore"
	"github.com/hyperbridge/relayer-core/pkg/lander"
	"github.com/hyperbridge/relayer-core/pkg/merkle"
	"github.com/hyperbridge/relayer-core/pkg/message"
	"github.com/hyperbridge/relayer-core/pkg/rlog"
)

// ErrNotYetCheckpointed means the builder has not yet advanced far
// enough to produce a proof against the leaf this processor is trying
// to deliver; the caller should sleep and retry without advancing.
var ErrNotYetCheckpointed = errors.New("processor: not yet checkpointed")

// LeafMismatchError is fatal: the locally computed leaf for a message
// disagrees with what the builder's proof says that leaf is. Run returns
// it instead of scheduling a retry.
type LeafMismatchError struct {
	LeafIndex uint32
	Computed  [32]byte
	Proof     [32]byte
}

func (e *LeafMismatchError) Error() string {
	return fmt.Sprintf("processor: leaf mismatch at index %d: computed %x != proof leaf %x",
		e.LeafIndex, e.Computed, e.Proof)
}

// MessageFilter allows or denies submission by sender, independent of
// delivery status. A nil filter allows every sender.
type MessageFilter interface {
	Allowed(sender common.Address) bool
}

// AllowAll is the default MessageFilter: every sender is allowed.
type AllowAll struct{}

// Allowed always returns true.
func (AllowAll) Allowed(common.Address) bool { return true }

// retryEntry is one pending re-attempt, ordered by DueAt so the
// processor's heap always pops the next one to retry.
type retryEntry struct {
	leafIndex uint32
	retries   int
	dueAt     time.Time
}

// retryHeap is a container/heap.Interface min-heap ordered by DueAt.
type retryHeap []*retryEntry

func (h retryHeap) Len() int            { return len(h) }
func (h retryHeap) Less(i, j int) bool  { return h[i].dueAt.Before(h[j].dueAt) }
func (h retryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *retryHeap) Push(x interface{}) { *h = append(*h, x.(*retryEntry)) }
func (h *retryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}

// Config bounds a Processor's retry and polling behavior.
type Config struct {
	Destination   uint32
	ReorgPeriod   uint32
	MaxRetries    int
	ThrottleEvery time.Duration
	Filter        MessageFilter
}

// DefaultConfig returns sane defaults for Config, leaving Destination
// and ReorgPeriod for the caller to fill in.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    10,
		ThrottleEvery: 20 * time.Millisecond,
		Filter:        AllowAll{},
	}
}

// Processor drives delivery of every origin message destined for one
// destination domain, in increasing leaf-index order, interleaving
// retries opportunistically without blocking forward progress.
type Processor struct {
	cfg Config

	nextLeafIndex uint32
	retries       retryHeap

	store   kvstore.Store
	builder *merkle.IncrementalMerkle
	hook    chainadapter.MerkleTreeHook
	mailbox chainadapter.Mailbox
	ismTree *ismmeta.Builder
	lander  *lander.Lander

	logger *log.Logger
}

// New constructs a Processor for cfg.Destination.
func New(cfg Config, store kvstore.Store, builder *merkle.IncrementalMerkle, hook chainadapter.MerkleTreeHook, mailbox chainadapter.Mailbox, ismTree *ismmeta.Builder, l *lander.Lander, logger *log.Logger) *Processor {
	if cfg.Filter == nil {
		cfg.Filter = AllowAll{}
	}
	return &Processor{
		cfg:     cfg,
		store:   store,
		builder: builder,
		hook:    hook,
		mailbox: mailbox,
		ismTree: ismTree,
		lander:  l,
		logger:  rlog.OrDefault(logger, fmt.Sprintf("processor.%d", cfg.Destination)),
	}
}

// NextLeafIndex reports the cursor this Processor will next attempt.
func (p *Processor) NextLeafIndex() uint32 { return p.nextLeafIndex }

// Run drives the processor's main loop until ctx is canceled.
func (p *Processor) Run(ctx context.Context, fetchLeaf func(ctx context.Context, leafIndex uint32) (*message.CommittedMessage, bool, error)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.cfg.ThrottleEvery):
		}

		processed, err := p.isProcessed(ctx, p.nextLeafIndex)
		if err != nil {
			p.logger.Printf("leaf %d: processed-check failed: %v", p.nextLeafIndex, err)
			continue
		}
		if processed {
			p.nextLeafIndex++
			continue
		}

		msg, ok, err := fetchLeaf(ctx, p.nextLeafIndex)
		if err != nil {
			p.logger.Printf("leaf %d: fetch failed: %v", p.nextLeafIndex, err)
		} else if ok {
			err := p.attempt(ctx, p.nextLeafIndex, msg)
			var mismatch *LeafMismatchError
			switch {
			case err == nil:
				p.nextLeafIndex++
				continue
			case errors.As(err, &mismatch):
				return err
			case !errors.Is(err, ErrNotYetCheckpointed):
				p.scheduleRetry(p.nextLeafIndex)
				p.nextLeafIndex++
			}
		}

		p.maybeRetryDue(ctx, fetchLeaf)
	}
}

func (p *Processor) maybeRetryDue(ctx context.Context, fetchLeaf func(ctx context.Context, leafIndex uint32) (*message.CommittedMessage, bool, error)) {
	if p.retries.Len() == 0 {
		return
	}
	head := p.retries[0]
	if time.Now().Before(head.dueAt) {
		return
	}
	heap.Pop(&p.retries)

	msg, ok, err := fetchLeaf(ctx, head.leafIndex)
	if err != nil || !ok {
		p.requeueRetry(head)
		return
	}
	if err := p.attempt(ctx, head.leafIndex, msg); err != nil && !errors.Is(err, ErrNotYetCheckpointed) {
		p.requeueRetry(head)
	}
}

func (p *Processor) requeueRetry(prior *retryEntry) {
	if prior.retries+1 > p.cfg.MaxRetries {
		p.logger.Printf("leaf %d: giving up after %d retries, recoverable via operator replay", prior.leafIndex, prior.retries)
		return
	}
	p.scheduleRetryFrom(prior.leafIndex, prior.retries+1)
}

func (p *Processor) scheduleRetry(leafIndex uint32) {
	p.scheduleRetryFrom(leafIndex, 1)
}

func (p *Processor) scheduleRetryFrom(leafIndex uint32, retries int) {
	backoff := time.Duration(1<<uint(retries-1)) * time.Second
	heap.Push(&p.retries, &retryEntry{leafIndex: leafIndex, retries: retries, dueAt: time.Now().Add(backoff)})
}

// attempt runs steps 4-8 of the main loop for one leaf.
func (p *Processor) attempt(ctx context.Context, leafIndex uint32, msg *message.CommittedMessage) error {
	if msg.Message.Destination != p.cfg.Destination {
		return p.markProcessed(ctx, leafIndex)
	}

	delivered, err := p.mailbox.Delivered(ctx, msg.Message.ID())
	if err != nil {
		return fmt.Errorf("processor: delivered check: %w", err)
	}
	if delivered {
		return p.markProcessed(ctx, leafIndex)
	}

	if !p.cfg.Filter.Allowed(common.BytesToAddress(msg.Message.Sender.Bytes())) {
		return p.markProcessed(ctx, leafIndex)
	}

	if leafIndex >= p.builder.Count() {
		checkpoint, err := p.hook.LatestCheckpoint(ctx, p.cfg.ReorgPeriod)
		if err != nil {
			return fmt.Errorf("processor: latest checkpoint: %w", err)
		}
		if err := p.updateToCheckpoint(checkpoint); err != nil {
			return fmt.Errorf("processor: update to checkpoint: %w", err)
		}
		if leafIndex >= p.builder.Count() {
			return ErrNotYetCheckpointed
		}
	}

	proof, err := p.builder.GetProof(leafIndex, p.builder.Count())
	if err != nil {
		return fmt.Errorf("processor: get proof: %w", err)
	}
	computed := computeLeaf(msg.Message)
	if computed != proof.Leaf {
		return &LeafMismatchError{LeafIndex: leafIndex, Computed: computed, Proof: proof.Leaf}
	}

	ismAddress, err := p.mailbox.RecipientISM(ctx, common.BytesToAddress(msg.Message.Recipient.Bytes()))
	if err != nil {
		return fmt.Errorf("processor: recipient ism: %w", err)
	}
	metadata, err := p.ismTree.Build(ctx, ismAddress, msg.Message, 0)
	if err != nil {
		return fmt.Errorf("processor: build metadata: %w", err)
	}

	p.submit(msg, metadata, proof)
	return p.markProcessed(ctx, leafIndex)
}

// updateToCheckpoint does not ingest anything and always returns nil:
// the origin-sync task is the builder's single writer, so the Processor
// only re-reads the builder's count after this call.
func (p *Processor) updateToCheckpoint(_ message.Checkpoint) error {
	return nil
}

func (p *Processor) submit(msg *message.CommittedMessage, metadata ismmeta.Metadata, proof *merkle.Proof) {
	payload := &lander.Payload{
		UUID:        uuid.New(),
		Destination: p.cfg.Destination,
		To:          common.BytesToAddress(msg.Message.Recipient.Bytes()),
		Data:        encodeProcessCall(msg.Message, metadata, proof),
		Value:       big.NewInt(0),
		CreatedAt:   time.Now(),
	}
	p.lander.Enqueue(payload)
}

func (p *Processor) isProcessed(ctx context.Context, leafIndex uint32) (bool, error) {
	return p.store.Has(ctx, kvstore.ProcessedLeafKey(leafIndex))
}

func (p *Processor) markProcessed(ctx context.Context, leafIndex uint32) error {
	return p.store.Set(ctx, kvstore.ProcessedLeafKey(leafIndex), []byte{1})
}

// computeLeaf derives the Merkle leaf for msg the same way the origin's
// dispatch hook does: the message's canonical id.
func computeLeaf(msg message.Message) [32]byte {
	return [32]byte(msg.ID())
}

// encodeProcessCall encodes a mailbox `process` call as the metadata
// followed by the proof's sibling path; the message itself is not
// included. It is not an ABI packing, since the exact ABI packing is
// chain-family specific and owned by the destination's chainadapter
// implementation in a full deployment.
func encodeProcessCall(_ message.Message, metadata ismmeta.Metadata, proof *merkle.Proof) []byte {
	out := make([]byte, 0, len(metadata)+32*len(proof.Siblings))
	out = append(out, metadata...)
	for _, s := range proof.Siblings {
		out = append(out, s[:]...)
	}
	return out
}
