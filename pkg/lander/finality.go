// Copyright 2025 Certen Protocol

package lander

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hyperbridge/relayer-core/pkg/lander/nonce"
)

// FinalityStage owns every transaction the Inclusion stage has reported
// included, waiting for it to finalize, revert, or get dropped in a
// reorg. A dropped transaction's payloads are handed back to onDropped
// for re-queueing at the front of the Building stage.
type FinalityStage struct {
	mu   sync.Mutex
	pool map[uuid.UUID]*Transaction

	inbound   <-chan *Transaction
	adapter   Adapter
	nonces    *nonce.Manager
	onDropped func(tx *Transaction)

	blockTime time.Duration
	logger    *log.Logger
	recorder  Recorder
}

// SetRecorder attaches r so every finalized or dropped transaction is
// durably recorded. Passing nil disables recording.
func (s *FinalityStage) SetRecorder(r Recorder) {
	s.recorder = r
}

// NewFinalityStage constructs a FinalityStage. inbound is fed by the
// Inclusion stage. onDropped is invoked synchronously on the tick
// goroutine with any transaction the chain reports dropped, so the
// caller can re-queue its payloads.
func NewFinalityStage(adapter Adapter, nonces *nonce.Manager, inbound <-chan *Transaction, blockTime time.Duration, onDropped func(tx *Transaction), logger *log.Logger) *FinalityStage {
	return &FinalityStage{
		pool:      make(map[uuid.UUID]*Transaction),
		inbound:   inbound,
		adapter:   adapter,
		nonces:    nonces,
		onDropped: onDropped,
		blockTime: blockTime,
		logger:    logger,
	}
}

// PoolLen reports the number of transactions currently awaiting finality.
func (s *FinalityStage) PoolLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pool)
}

// Run drains inbound transactions into the pool (receive_txs) and polls
// every blockTime for finality/drops (process_txs), as two concurrent
// tasks, until ctx is canceled.
func (s *FinalityStage) Run(ctx context.Context) error {
	go s.receiveLoop(ctx)

	ticker := time.NewTicker(s.blockTime)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *FinalityStage) receiveLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case tx, ok := <-s.inbound:
			if !ok {
				return
			}
			s.mu.Lock()
			s.pool[tx.UUID] = tx
			s.mu.Unlock()
		}
	}
}

func (s *FinalityStage) snapshot() []*Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Transaction, 0, len(s.pool))
	for _, tx := range s.pool {
		out = append(out, tx)
	}
	return out
}

func (s *FinalityStage) remove(txUUID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pool, txUUID)
}

func (s *FinalityStage) tick(ctx context.Context) {
	for _, tx := range s.snapshot() {
		s.process(ctx, tx)
	}
}

func (s *FinalityStage) process(ctx context.Context, tx *Transaction) {
	status, err := s.adapter.TransactionStatus(ctx, tx)
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("tx %s: finality status check failed: %v", tx.UUID, err)
		}
		return
	}

	switch status {
	case TxFinalized:
		if tx.Nonce != nil {
			_ = s.nonces.UpdateNonceStatus(*tx.Nonce, nonce.Committed, tx.UUID)
		}
		tx.Status = TxFinalized
		s.remove(tx.UUID)
		if s.recorder != nil {
			s.recorder.RecordTransaction(ctx, tx)
		}

		reverted, err := s.adapter.RevertedPayloads(ctx, tx)
		if err != nil {
			if s.logger != nil {
				s.logger.Printf("tx %s: reverted-payload check failed: %v", tx.UUID, err)
			}
			return
		}
		if len(reverted) > 0 && s.logger != nil {
			s.logger.Printf("tx %s finalized with %d reverted payload(s)", tx.UUID, len(reverted))
		}

	case TxDropped:
		if tx.Nonce != nil {
			_ = s.nonces.UpdateNonceStatus(*tx.Nonce, nonce.Freed, tx.UUID)
		}
		tx.Status = TxDropped
		s.remove(tx.UUID)
		if s.recorder != nil {
			s.recorder.RecordTransaction(ctx, tx)
		}
		if s.onDropped != nil {
			s.onDropped(tx)
		}

	case TxIncluded, TxPendingInclusion:
		// Not yet finalized; re-check next tick.
	}
}
