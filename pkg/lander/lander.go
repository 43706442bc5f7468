// Copyright 2025 Certen Protocol

package lander

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/hyperbridge/relayer-core/pkg/lander/nonce"
	"github.com/hyperbridge/relayer-core/pkg/rlog"
)

// channelBuffer bounds the Building->Inclusion and Inclusion->Finality
// handoff channels, giving the pipeline natural backpressure: a stuck
// Inclusion stage stalls Building rather than letting memory grow
// unbounded.
const channelBuffer = 256

// Lander drives one destination chain's full Building -> Inclusion ->
// Finality pipeline. One Lander exists per destination domain.
type Lander struct {
	Destination uint32

	Building  *BuildingStage
	Inclusion *InclusionStage
	Finality  *FinalityStage
}

// New wires the three stages together for destination, using adapter
// for all chain interaction and nonces for nonce bookkeeping. blockTime
// paces the Finality stage's polling to roughly the destination's block
// cadence.
func New(destination uint32, adapter Adapter, nonces *nonce.Manager, blockTime time.Duration, logger *log.Logger) *Lander {
	inclusionCh := make(chan *Transaction, channelBuffer)
	finalityCh := make(chan *Transaction, channelBuffer)

	building := NewBuildingStage(adapter, inclusionCh, rlog.OrDefault(logger, "lander.building"))
	inclusion := NewInclusionStage(adapter, nonces, inclusionCh, finalityCh, rlog.OrDefault(logger, "lander.inclusion"))
	onDropped := func(tx *Transaction) { building.EnqueueFront(tx.Payloads) }
	finality := NewFinalityStage(adapter, nonces, finalityCh, blockTime, onDropped, rlog.OrDefault(logger, "lander.finality"))

	return &Lander{
		Destination: destination,
		Building:    building,
		Inclusion:   inclusion,
		Finality:    finality,
	}
}

// SetRecorder attaches r to every stage, so the full payload/transaction
// lifecycle is durably recorded alongside the in-memory pipeline.
// Passing nil disables recording.
func (l *Lander) SetRecorder(r Recorder) {
	l.Building.SetRecorder(r)
	l.Inclusion.SetRecorder(r)
	l.Finality.SetRecorder(r)
}

// Enqueue admits a payload for delivery to this Lander's destination.
func (l *Lander) Enqueue(p *Payload) {
	l.Building.Enqueue(p)
}

// Run starts all three stages and blocks until ctx is canceled or one
// of them returns an error other than context.Canceled.
func (l *Lander) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errCh := make(chan error, 3)

	run := func(fn func(context.Context) error) {
		defer wg.Done()
		if err := fn(ctx); err != nil && err != context.Canceled {
			errCh <- err
		}
	}

	wg.Add(3)
	go run(l.Building.Run)
	go run(l.Inclusion.Run)
	go run(l.Finality.Run)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case err := <-errCh:
		return err
	case <-done:
		return ctx.Err()
	}
}
