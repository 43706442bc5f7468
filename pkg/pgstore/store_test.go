// Copyright 2025 Certen Protocol
//
// These tests exercise pgstore against a real Postgres instance. They
// are skipped unless RELAYER_TEST_DB is set, following the validator's
// own database-test skip idiom.

package pgstore

import (
	"context"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/hyperbridge/relayer-core/pkg/lander"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	connStr := os.Getenv("RELAYER_TEST_DB")
	if connStr == "" {
		t.Skip("RELAYER_TEST_DB not set, skipping pgstore integration tests")
	}

	client, err := NewClient(connStr, Config{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	if err := client.MigrateUp(context.Background()); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}
	return client
}

func TestStore_RecordTransaction_RoundTrips(t *testing.T) {
	client := newTestClient(t)
	store := NewStore(client)
	ctx := context.Background()

	nonce := uint64(7)
	tx := &lander.Transaction{
		UUID:        uuid.New(),
		Destination: 137,
		Payloads: []*lander.Payload{
			{UUID: uuid.New(), Destination: 137, To: common.HexToAddress("0xaaa"), Value: big.NewInt(0), CreatedAt: time.Now()},
		},
		Nonce:       &nonce,
		GasPrice:    big.NewInt(1_500_000_000),
		Hash:        common.HexToHash("0xbeef"),
		Status:      lander.TxMempool,
		SubmittedAt: time.Now(),
		Attempts:    2,
	}

	store.RecordTransaction(ctx, tx)

	rec, err := store.GetTransaction(ctx, tx.UUID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a recorded transaction, got nil")
	}
	if rec.Destination != 137 || rec.Status != lander.TxMempool || rec.Attempts != 2 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Nonce == nil || *rec.Nonce != 7 {
		t.Fatalf("expected nonce 7, got %+v", rec.Nonce)
	}
	if len(rec.PayloadUUIDs) != 1 {
		t.Fatalf("expected 1 payload uuid, got %d", len(rec.PayloadUUIDs))
	}
}

func TestStore_RecordTransaction_UpsertsOnRepeatedCalls(t *testing.T) {
	client := newTestClient(t)
	store := NewStore(client)
	ctx := context.Background()

	tx := &lander.Transaction{
		UUID:        uuid.New(),
		Destination: 1,
		Status:      lander.TxPendingInclusion,
		Attempts:    1,
	}
	store.RecordTransaction(ctx, tx)

	tx.Status = lander.TxFinalized
	tx.Attempts = 3
	store.RecordTransaction(ctx, tx)

	rec, err := store.GetTransaction(ctx, tx.UUID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if rec.Status != lander.TxFinalized || rec.Attempts != 3 {
		t.Fatalf("expected upserted status/attempts, got %+v", rec)
	}
}

func TestStore_RecordDroppedPayload_IsQueryable(t *testing.T) {
	client := newTestClient(t)
	store := NewStore(client)
	ctx := context.Background()

	p := &lander.Payload{UUID: uuid.New(), Destination: 42, To: common.HexToAddress("0xccc")}
	store.RecordDroppedPayload(ctx, p, lander.DropReasonFailedSimulation)

	var count int
	row := client.db.QueryRowContext(ctx, "SELECT count(*) FROM lander_dropped_payloads WHERE payload_uuid = $1", p.UUID.String())
	if err := row.Scan(&count); err != nil {
		t.Fatalf("scan count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 dropped-payload row, got %d", count)
	}
}

func TestStore_ListTransactionsByDestination_OrdersMostRecentFirst(t *testing.T) {
	client := newTestClient(t)
	store := NewStore(client)
	ctx := context.Background()

	destination := uint32(999)
	first := &lander.Transaction{UUID: uuid.New(), Destination: destination, Status: lander.TxPendingInclusion}
	store.RecordTransaction(ctx, first)
	time.Sleep(10 * time.Millisecond)
	second := &lander.Transaction{UUID: uuid.New(), Destination: destination, Status: lander.TxPendingInclusion}
	store.RecordTransaction(ctx, second)

	recs, err := store.ListTransactionsByDestination(ctx, destination, 10)
	if err != nil {
		t.Fatalf("ListTransactionsByDestination: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].UUID != second.UUID {
		t.Fatalf("expected most recently recorded transaction first, got %s", recs[0].UUID)
	}
}
