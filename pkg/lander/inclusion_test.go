// Copyright 2025 Certen Protocol

package lander

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hyperbridge/relayer-core/pkg/lander/nonce"
)

func TestInclusionStage_SubmitsAndForwardsOnInclusion(t *testing.T) {
	adapter := newFakeAdapter()
	nonces := nonce.NewManager()

	inbound := make(chan *Transaction, 8)
	finalityCh := make(chan *Transaction, 8)
	stage := NewInclusionStage(adapter, nonces, inbound, finalityCh, nil)
	stage.tickEvery = 5 * time.Millisecond

	payload := &Payload{UUID: uuid.New(), Destination: 1}
	tx := &Transaction{UUID: uuid.New(), Destination: 1, Payloads: []*Payload{payload}}
	adapter.statusOf[tx.UUID] = TxPendingInclusion

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go stage.Run(ctx)

	inbound <- tx

	select {
	case fwd := <-finalityCh:
		if fwd.UUID != tx.UUID {
			t.Fatalf("unexpected forwarded tx: %+v", fwd)
		}
		if fwd.Nonce == nil {
			t.Fatal("expected a nonce to have been assigned before submission")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for tx to reach finality channel")
	}
}

func TestInclusionStage_DroppedTxFreesNonce(t *testing.T) {
	adapter := newFakeAdapter()
	nonces := nonce.NewManager()

	inbound := make(chan *Transaction, 8)
	finalityCh := make(chan *Transaction, 8)
	stage := NewInclusionStage(adapter, nonces, inbound, finalityCh, nil)
	stage.tickEvery = 5 * time.Millisecond

	tx := &Transaction{UUID: uuid.New(), Destination: 1, Payloads: []*Payload{{UUID: uuid.New()}}}
	n := nonces.AssignNextNonce(tx.UUID)
	tx.Nonce = &n
	tx.SubmittedAt = time.Now()
	adapter.statusOf[tx.UUID] = TxDropped

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go stage.Run(ctx)
	inbound <- tx

	time.Sleep(50 * time.Millisecond)
	status, ok := nonces.StatusOf(n)
	if !ok || status != nonce.Freed {
		t.Fatalf("expected nonce %d to be freed after drop, got status=%v ok=%v", n, status, ok)
	}
	if stage.PoolLen() != 0 {
		t.Fatalf("expected dropped tx to be removed from pool, pool len=%d", stage.PoolLen())
	}
}

func TestInclusionStage_MempoolEscalatesFromStoredPriceNotFreshEstimate(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.gasEstimate = big.NewInt(25_000)
	nonces := nonce.NewManager()

	inbound := make(chan *Transaction, 8)
	finalityCh := make(chan *Transaction, 8)
	stage := NewInclusionStage(adapter, nonces, inbound, finalityCh, nil)

	tx := &Transaction{
		UUID:        uuid.New(),
		Destination: 1,
		Payloads:    []*Payload{{UUID: uuid.New()}},
		Status:      TxMempool,
		GasPrice:    big.NewInt(1_000_000),
		SubmittedAt: time.Now().Add(-time.Hour),
	}
	n := nonces.AssignNextNonce(tx.UUID)
	tx.Nonce = &n
	adapter.statusOf[tx.UUID] = TxMempool

	stage.process(context.Background(), tx)

	want := big.NewInt(1_100_000)
	if tx.GasPrice.Cmp(want) < 0 {
		t.Fatalf("expected escalated gas price >= %s (escalating the stored price, not the %s fresh estimate), got %s",
			want, adapter.gasEstimate, tx.GasPrice)
	}
}

func TestCheckResubmission_MempoolIsNotGatedOnResubmissionDelay(t *testing.T) {
	stage := NewInclusionStage(nil, nil, nil, nil, nil)
	tx := &Transaction{
		Status:      TxMempool,
		GasPrice:    big.NewInt(1_000_000),
		SubmittedAt: time.Now(),
	}

	if v := stage.checkResubmission(tx, big.NewInt(1_000_000)); v != resubmitAlreadyExists {
		t.Fatalf("expected a same-price candidate against a Mempool tx to be TxAlreadyExists, got %v", v)
	}
	if v := stage.checkResubmission(tx, big.NewInt(1_100_000)); v != resubmitAllowed {
		t.Fatalf("expected a strictly higher candidate to be allowed regardless of elapsed time, got %v", v)
	}
}
