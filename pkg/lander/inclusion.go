// Copyright 2025 Certen Protocol

package lander

import (
	"context"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hyperbridge/relayer-core/pkg/lander/nonce"
)

// gasEscalationNumerator/Denominator enforce at least a 1.1x bump on
// resubmission, the minimum most EVM mempools require to replace a
// pending transaction.
const (
	gasEscalationNumerator   = 11
	gasEscalationDenominator = 10
)

// InclusionStage owns every transaction the Building stage has handed
// off until the chain reports it included in a block, assigning nonces,
// simulating, submitting, and escalating gas on stale submissions.
type InclusionStage struct {
	mu   sync.Mutex
	pool map[uuid.UUID]*Transaction

	inbound    <-chan *Transaction
	finalityCh chan<- *Transaction

	adapter              Adapter
	nonces               *nonce.Manager
	tickEvery            time.Duration
	minResubmissionDelay time.Duration
	logger               *log.Logger
	recorder             Recorder
}

// SetRecorder attaches r so every inclusion-stage transaction state
// change is durably recorded. Passing nil disables recording.
func (s *InclusionStage) SetRecorder(r Recorder) {
	s.recorder = r
}

// NewInclusionStage constructs an InclusionStage. inbound is fed by the
// Building stage; finalityCh is shared with the Finality stage.
func NewInclusionStage(adapter Adapter, nonces *nonce.Manager, inbound <-chan *Transaction, finalityCh chan<- *Transaction, logger *log.Logger) *InclusionStage {
	return &InclusionStage{
		pool:                 make(map[uuid.UUID]*Transaction),
		inbound:              inbound,
		finalityCh:           finalityCh,
		adapter:              adapter,
		nonces:               nonces,
		tickEvery:            time.Second,
		minResubmissionDelay: 30 * time.Second,
		logger:               logger,
	}
}

// resubmissionVerdict is the outcome of checking whether re-submitting tx
// at a freshly estimated gas price is worth doing this tick.
type resubmissionVerdict int

const (
	resubmitAllowed resubmissionVerdict = iota
	// resubmitAlreadyExists: same price already submitted and the
	// transaction has moved past PendingInclusion — nothing to do.
	resubmitAlreadyExists
	// resubmitGasCapReached: same price, still PendingInclusion, but not
	// enough time has passed since the last attempt to retry yet.
	resubmitGasCapReached
)

// checkResubmission mirrors the adapter's check_if_resubmission_makes_sense:
// a first submission is always allowed; a strictly higher gas price is
// always allowed; an unchanged price is allowed only once minResubmissionDelay
// has elapsed and the transaction is still sitting unconfirmed.
func (s *InclusionStage) checkResubmission(tx *Transaction, newGasPrice *big.Int) resubmissionVerdict {
	if tx.GasPrice == nil || newGasPrice == nil {
		return resubmitAllowed
	}
	if newGasPrice.Cmp(tx.GasPrice) > 0 {
		return resubmitAllowed
	}
	if tx.Status != TxPendingInclusion {
		return resubmitAlreadyExists
	}
	if time.Since(tx.SubmittedAt) < s.minResubmissionDelay {
		return resubmitGasCapReached
	}
	return resubmitAllowed
}

// PoolLen reports the number of transactions currently awaiting inclusion.
func (s *InclusionStage) PoolLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pool)
}

// Run drains inbound transactions into the pool and drives them toward
// inclusion on a fixed tick, until ctx is canceled.
func (s *InclusionStage) Run(ctx context.Context) error {
	go s.receiveLoop(ctx)

	ticker := time.NewTicker(s.tickEvery)
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

func (s *InclusionStage) receiveLoop(ctx context.Context) {
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

func (s *InclusionStage) snapshot() []*Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Transaction, 0, len(s.pool))
	for _, tx := range s.pool {
		out = append(out, tx)
	}
	return out
}

func (s *InclusionStage) remove(txUUID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pool, txUUID)
}

func (s *InclusionStage) tick(ctx context.Context) {
	for _, tx := range s.snapshot() {
		s.process(ctx, tx)
	}
}

func (s *InclusionStage) process(ctx context.Context, tx *Transaction) {
	if tx.Nonce == nil {
		n := s.nonces.AssignNextNonce(tx.UUID)
		tx.Nonce = &n
	} else if s.nonces.ValidateAssignedNonce(*tx.Nonce, tx.UUID) == nonce.ActionAssign {
		n := s.nonces.AssignNextNonce(tx.UUID)
		tx.Nonce = &n
	}

	if !tx.SubmittedAt.IsZero() {
		status, err := s.adapter.TransactionStatus(ctx, tx)
		if err != nil {
			if s.logger != nil {
				s.logger.Printf("tx %s: status check failed: %v", tx.UUID, err)
			}
			return
		}
		switch status {
		case TxIncluded, TxFinalized:
			tx.Status = TxIncluded
			s.remove(tx.UUID)
			if s.recorder != nil {
				s.recorder.RecordTransaction(ctx, tx)
			}
			s.forward(ctx, tx)
			return
		case TxDropped:
			_ = s.nonces.UpdateNonceStatus(*tx.Nonce, nonce.Freed, tx.UUID)
			tx.Status = TxDropped
			s.remove(tx.UUID)
			if s.recorder != nil {
				s.recorder.RecordTransaction(ctx, tx)
			}
			return
		case TxMempool:
			tx.Status = TxMempool
		}
	}

	newGasPrice, err := s.adapter.EstimateGas(ctx, tx)
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("tx %s: gas estimation failed: %v", tx.UUID, err)
		}
		return
	}

	if tx.Status == TxMempool && tx.GasPrice != nil {
		escalated := escalateGasPrice(tx.GasPrice)
		if newGasPrice == nil || escalated.Cmp(newGasPrice) > 0 {
			newGasPrice = escalated
		}
	}

	switch s.checkResubmission(tx, newGasPrice) {
	case resubmitAlreadyExists, resubmitGasCapReached:
		return
	}

	if !tx.SubmittedAt.IsZero() {
		if err := s.adapter.Simulate(ctx, tx); err != nil {
			if s.logger != nil {
				s.logger.Printf("tx %s: simulation failed after a prior submission, dropping: %v", tx.UUID, err)
			}
			_ = s.nonces.UpdateNonceStatus(*tx.Nonce, nonce.Freed, tx.UUID)
			tx.Status = TxDropped
			s.remove(tx.UUID)
			if s.recorder != nil {
				s.recorder.RecordTransaction(ctx, tx)
			}
			return
		}
	}

	if newGasPrice != nil {
		tx.GasPrice = newGasPrice
	}

	hash, err := s.adapter.Submit(ctx, tx)
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("tx %s: submit failed, will retry next tick: %v", tx.UUID, err)
		}
		return
	}
	tx.Hash = hash
	tx.SubmittedAt = time.Now()
	tx.Attempts++
	if tx.Status != TxMempool {
		tx.Status = TxPendingInclusion
	}
	if s.recorder != nil {
		s.recorder.RecordTransaction(ctx, tx)
	}
}

func (s *InclusionStage) forward(ctx context.Context, tx *Transaction) {
	select {
	case s.finalityCh <- tx:
	case <-ctx.Done():
	}
}

func escalateGasPrice(gasPrice *big.Int) *big.Int {
	bumped := new(big.Int).Mul(gasPrice, big.NewInt(gasEscalationNumerator))
	return bumped.Div(bumped, big.NewInt(gasEscalationDenominator))
}
