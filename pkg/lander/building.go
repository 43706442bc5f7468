// Copyright 2025 Certen Protocol

package lander

import (
	"context"
	"log"
	"sync"
	"time"
)

// BuildingStage turns queued Payloads into Transactions and hands them
// off to the Inclusion stage. It never blocks on chain state: a failed
// build drops the offending payload, a BuildTransactions error re-queues
// the batch at the back and retries after pollEvery, and a failed handoff
// (context cancellation) re-queues the payload at the back and stops Run.
type BuildingStage struct {
	mu    sync.Mutex
	queue []*Payload

	adapter     Adapter
	inclusionCh chan<- *Transaction
	pollEvery   time.Duration
	logger      *log.Logger
	recorder    Recorder
}

// SetRecorder attaches r so every built transaction and dropped payload
// is durably recorded alongside the in-memory pipeline state. Passing
// nil disables recording.
func (s *BuildingStage) SetRecorder(r Recorder) {
	s.recorder = r
}

// NewBuildingStage constructs a BuildingStage. inclusionCh is owned by
// the caller (typically Lander) and shared with the Inclusion stage.
func NewBuildingStage(adapter Adapter, inclusionCh chan<- *Transaction, logger *log.Logger) *BuildingStage {
	return &BuildingStage{
		adapter:     adapter,
		inclusionCh: inclusionCh,
		pollEvery:   time.Second,
		logger:      logger,
	}
}

// Enqueue appends a payload to the back of the build queue.
func (s *BuildingStage) Enqueue(p *Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, p)
}

// EnqueueFront re-admits a payload at the front of the queue, ahead of
// everything already waiting — used when a later stage drops a
// transaction and its payloads need another attempt before anything
// newer.
func (s *BuildingStage) EnqueueFront(payloads []*Payload) {
	if len(payloads) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(append([]*Payload(nil), payloads...), s.queue...)
}

// QueueLen reports the number of payloads currently waiting to be built.
func (s *BuildingStage) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *BuildingStage) drain() []*Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	batch := s.queue
	s.queue = nil
	return batch
}

func (s *BuildingStage) requeueBack(payloads []*Payload) {
	if len(payloads) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, payloads...)
}

// Run drives the build loop until ctx is canceled.
func (s *BuildingStage) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch := s.drain()
		if len(batch) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.pollEvery):
				continue
			}
		}

		results, err := s.adapter.BuildTransactions(ctx, batch)
		if err != nil {
			if s.logger != nil {
				s.logger.Printf("build_transactions failed, requeuing %d payload(s): %v", len(batch), err)
			}
			s.requeueBack(batch)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.pollEvery):
			}
			continue
		}

		for _, r := range results {
			if r.Tx == nil {
				for _, p := range r.Payloads {
					if s.logger != nil {
						s.logger.Printf("dropping payload %s: %s", p.UUID, DropReasonFailedToBuildAsTransaction)
					}
					if s.recorder != nil {
						s.recorder.RecordDroppedPayload(ctx, p, DropReasonFailedToBuildAsTransaction)
					}
				}
				continue
			}
			if s.recorder != nil {
				s.recorder.RecordTransaction(ctx, r.Tx)
			}
			if err := s.send(ctx, r.Tx); err != nil {
				s.requeueBack(r.Payloads)
				return err
			}
		}
	}
}

func (s *BuildingStage) send(ctx context.Context, tx *Transaction) error {
	select {
	case s.inclusionCh <- tx:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
