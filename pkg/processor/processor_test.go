// Copyright 2025 Certen Protocol

package processor

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/hyperbridge/relayer-core/pkg/chainadapter"
	"github.com/hyperbridge/relayer-core/pkg/ismmeta"
	"github.com/hyperbridge/relayer-core/pkg/lander"
	"github.com/hyperbridge/relayer-core/pkg/lander/nonce"
	"github.com/hyperbridge/relayer-core/pkg/merkle"
	"github.com/hyperbridge/relayer-core/pkg/message"
)

// memStore is a minimal in-memory kvstore.Store for exercising the
// processed-leaf cursor without a real database.
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (m *memStore) Get(_ context.Context, key []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[string(key)], nil
}

func (m *memStore) Set(_ context.Context, key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (m *memStore) Delete(_ context.Context, key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

func (m *memStore) Has(_ context.Context, key []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[string(key)]
	return ok, nil
}

// fakeMailbox is a chainadapter.Mailbox test double. Delivered is keyed
// by message id so a test can mark arbitrary messages as already-landed.
type fakeMailbox struct {
	mu        sync.Mutex
	delivered map[common.Hash]bool
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{delivered: make(map[common.Hash]bool)}
}

func (m *fakeMailbox) Delivered(_ context.Context, id common.Hash) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.delivered[id], nil
}

func (m *fakeMailbox) markDelivered(id common.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered[id] = true
}

func (m *fakeMailbox) Process(context.Context, message.Message, []byte, *merkle.Proof) (chainadapter.TxOutcome, error) {
	return chainadapter.TxOutcome{Success: true}, nil
}

func (m *fakeMailbox) ProcessEstimateCosts(context.Context, message.Message, []byte) (chainadapter.TxCostEstimate, error) {
	return chainadapter.TxCostEstimate{GasLimit: 1}, nil
}

func (m *fakeMailbox) DefaultISM(context.Context) (common.Address, error) {
	return common.Address{}, nil
}

func (m *fakeMailbox) RecipientISM(context.Context, common.Address) (common.Address, error) {
	return common.Address{}, nil
}

// fakeHook is a chainadapter.MerkleTreeHook test double that always
// reports the builder's current count as caught up.
type fakeHook struct {
	builder *merkle.IncrementalMerkle
}

func (h *fakeHook) Tree(context.Context, uint32) (*merkle.IncrementalMerkle, error) {
	return h.builder, nil
}

func (h *fakeHook) Count(context.Context, uint32) (uint32, error) {
	return h.builder.Count(), nil
}

func (h *fakeHook) LatestCheckpoint(context.Context, uint32) (message.Checkpoint, error) {
	count := h.builder.Count()
	var idx uint32
	if count > 0 {
		idx = count - 1
	}
	return message.Checkpoint{Root: h.builder.Root(), Index: idx}, nil
}

// nullResolver resolves every ISM to the Null kind, so Build returns
// empty metadata without any further chain interaction.
type nullResolver struct{}

func (nullResolver) ModuleType(context.Context, common.Address) (ismmeta.IsmKind, error) {
	return ismmeta.IsmKindNull, nil
}
func (nullResolver) ModulesAndThreshold(context.Context, common.Address, message.Message) ([]common.Address, uint8, error) {
	return nil, 0, nil
}
func (nullResolver) RoutingModule(context.Context, common.Address, message.Message) (common.Address, error) {
	return common.Address{}, nil
}
func (nullResolver) DryRunVerify(context.Context, common.Address, message.Message, ismmeta.Metadata) (*big.Int, error) {
	return nil, nil
}
func (nullResolver) MultisigMetadata(context.Context, common.Address, message.Message, bool) (ismmeta.Metadata, error) {
	return nil, nil
}
func (nullResolver) CcipReadMetadata(context.Context, common.Address, message.Message) (ismmeta.Metadata, error) {
	return nil, nil
}

// fakeLanderAdapter is a minimal lander.Adapter that builds and
// immediately finalizes every payload handed to it, so a submitted
// message can be observed landing without a real chain.
type fakeLanderAdapter struct {
	mu        sync.Mutex
	delivered []uuid.UUID
}

func (a *fakeLanderAdapter) BuildTransactions(_ context.Context, payloads []*lander.Payload) ([]lander.BuildResult, error) {
	results := make([]lander.BuildResult, 0, len(payloads))
	for _, p := range payloads {
		tx := &lander.Transaction{UUID: uuid.New(), Destination: p.Destination, Payloads: []*lander.Payload{p}}
		results = append(results, lander.BuildResult{Payloads: []*lander.Payload{p}, Tx: tx})
	}
	return results, nil
}

func (a *fakeLanderAdapter) EstimateGas(context.Context, *lander.Transaction) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (a *fakeLanderAdapter) Simulate(context.Context, *lander.Transaction) error { return nil }

func (a *fakeLanderAdapter) Submit(_ context.Context, tx *lander.Transaction) (common.Hash, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range tx.Payloads {
		a.delivered = append(a.delivered, p.UUID)
	}
	return common.Hash{1}, nil
}

func (a *fakeLanderAdapter) TransactionStatus(context.Context, *lander.Transaction) (lander.TxStatus, error) {
	return lander.TxFinalized, nil
}

func (a *fakeLanderAdapter) RevertedPayloads(context.Context, *lander.Transaction) ([]uuid.UUID, error) {
	return nil, nil
}

func newTestMessage(destination uint32, nonceVal uint32) message.Message {
	return message.Message{
		Version:     3,
		Nonce:       nonceVal,
		Origin:      1,
		Sender:      common.BytesToHash(crypto.Keccak256([]byte("sender"))),
		Destination: destination,
		Recipient:   common.BytesToHash(crypto.Keccak256([]byte("recipient"))),
		Body:        []byte("hello"),
	}
}

func TestProcessor_HappyPathSingleDelivery(t *testing.T) {
	builder := merkle.NewIncrementalMerkle()
	msg := newTestMessage(2, 0)
	leaf := [32]byte(msg.ID())
	if err := builder.Ingest(leaf, 0); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	mailbox := newFakeMailbox()
	hook := &fakeHook{builder: builder}
	ismBuilder := ismmeta.NewBuilder(nullResolver{}, nil)
	adapter := &fakeLanderAdapter{}
	l := lander.New(2, adapter, nonce.NewManager(), 10*time.Millisecond, nil)

	store := newMemStore()
	cfg := DefaultConfig()
	cfg.Destination = 2
	p := New(cfg, store, builder, hook, mailbox, ismBuilder, l, nil)

	committed := &message.CommittedMessage{Message: msg}
	fetch := func(_ context.Context, leafIndex uint32) (*message.CommittedMessage, bool, error) {
		if leafIndex == 0 {
			return committed, true, nil
		}
		return nil, false, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx, fetch)
	go l.Run(ctx)

	deadline := time.After(3 * time.Second)
	for {
		adapter.mu.Lock()
		delivered := len(adapter.delivered)
		adapter.mu.Unlock()
		if delivered > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for submission, next leaf=%d", p.NextLeafIndex())
		case <-time.After(5 * time.Millisecond):
		}
	}

	adapter.mu.Lock()
	delivered := len(adapter.delivered)
	adapter.mu.Unlock()
	if delivered != 1 {
		t.Fatalf("expected exactly 1 delivered payload, got %d", delivered)
	}
}

func TestProcessor_AlreadyDeliveredMessageIsSkippedWithoutSubmission(t *testing.T) {
	builder := merkle.NewIncrementalMerkle()
	msg := newTestMessage(2, 0)
	leaf := [32]byte(msg.ID())
	if err := builder.Ingest(leaf, 0); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	mailbox := newFakeMailbox()
	mailbox.markDelivered(msg.ID())
	hook := &fakeHook{builder: builder}
	ismBuilder := ismmeta.NewBuilder(nullResolver{}, nil)
	adapter := &fakeLanderAdapter{}
	l := lander.New(2, adapter, nonce.NewManager(), 10*time.Millisecond, nil)

	store := newMemStore()
	cfg := DefaultConfig()
	cfg.Destination = 2
	p := New(cfg, store, builder, hook, mailbox, ismBuilder, l, nil)

	committed := &message.CommittedMessage{Message: msg}
	fetch := func(_ context.Context, leafIndex uint32) (*message.CommittedMessage, bool, error) {
		if leafIndex == 0 {
			return committed, true, nil
		}
		return nil, false, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx, fetch)

	deadline := time.After(time.Second)
	for p.NextLeafIndex() == 0 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for already-delivered leaf to be skipped")
		default:
		}
		time.Sleep(5 * time.Millisecond)
	}

	adapter.mu.Lock()
	delivered := len(adapter.delivered)
	adapter.mu.Unlock()
	if delivered != 0 {
		t.Fatalf("expected no submission for an already-delivered message, got %d", delivered)
	}
}

func TestProcessor_DeniedSenderIsSkippedWithoutSubmission(t *testing.T) {
	builder := merkle.NewIncrementalMerkle()
	msg := newTestMessage(2, 0)
	leaf := [32]byte(msg.ID())
	if err := builder.Ingest(leaf, 0); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	mailbox := newFakeMailbox()
	hook := &fakeHook{builder: builder}
	ismBuilder := ismmeta.NewBuilder(nullResolver{}, nil)
	adapter := &fakeLanderAdapter{}
	l := lander.New(2, adapter, nonce.NewManager(), 10*time.Millisecond, nil)

	store := newMemStore()
	cfg := DefaultConfig()
	cfg.Destination = 2
	cfg.Filter = NewSenderFilter(nil, []common.Address{common.BytesToAddress(msg.Sender.Bytes())})
	p := New(cfg, store, builder, hook, mailbox, ismBuilder, l, nil)

	committed := &message.CommittedMessage{Message: msg}
	fetch := func(_ context.Context, leafIndex uint32) (*message.CommittedMessage, bool, error) {
		if leafIndex == 0 {
			return committed, true, nil
		}
		return nil, false, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx, fetch)

	deadline := time.After(time.Second)
	for p.NextLeafIndex() == 0 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for denied-sender leaf to be skipped")
		default:
		}
		time.Sleep(5 * time.Millisecond)
	}

	adapter.mu.Lock()
	delivered := len(adapter.delivered)
	adapter.mu.Unlock()
	if delivered != 0 {
		t.Fatalf("expected no submission for a denied sender, got %d", delivered)
	}
}

func TestSenderFilter_DenyWinsOverAllow(t *testing.T) {
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	f := NewSenderFilter([]common.Address{addr}, []common.Address{addr})
	if f.Allowed(addr) {
		t.Fatal("expected deny-list to win when a sender is both allowed and denied")
	}
}

func TestSenderFilter_EmptyAllowListAllowsEveryoneNotDenied(t *testing.T) {
	f := NewSenderFilter(nil, nil)
	addr := common.HexToAddress("0x2222222222222222222222222222222222222222")
	if !f.Allowed(addr) {
		t.Fatal("expected an empty allow-list to allow an unlisted sender")
	}
}
