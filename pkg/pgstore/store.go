// Copyright 2025 Certen Protocol

package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hyperbridge/relayer-core/pkg/lander"
)

// Store persists lander.Transaction and dropped-payload events to
// Postgres, implementing lander.Recorder so a Lander can attach it
// directly via Lander.SetRecorder.
type Store struct {
	client *Client
}

// NewStore wraps client as a lander.Recorder and operator-replay read
// store.
func NewStore(client *Client) *Store {
	return &Store{client: client}
}

var _ lander.Recorder = (*Store)(nil)

// RecordTransaction upserts tx's current state, implementing
// lander.Recorder.
func (s *Store) RecordTransaction(ctx context.Context, tx *lander.Transaction) {
	payloadUUIDs := make([]string, len(tx.Payloads))
	for i, p := range tx.Payloads {
		payloadUUIDs[i] = p.UUID.String()
	}

	var nonce sql.NullInt64
	if tx.Nonce != nil {
		nonce = sql.NullInt64{Int64: int64(*tx.Nonce), Valid: true}
	}

	var gasPrice sql.NullString
	if tx.GasPrice != nil {
		gasPrice = sql.NullString{String: tx.GasPrice.String(), Valid: true}
	}

	var txHash sql.NullString
	if tx.Hash != (common.Hash{}) {
		txHash = sql.NullString{String: tx.Hash.Hex(), Valid: true}
	}

	var submittedAt sql.NullTime
	if !tx.SubmittedAt.IsZero() {
		submittedAt = sql.NullTime{Time: tx.SubmittedAt, Valid: true}
	}

	_, err := s.client.db.ExecContext(ctx, `
		INSERT INTO lander_transactions
			(uuid, destination, nonce, gas_price, tx_hash, status, payload_uuids, submitted_at, attempts, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (uuid) DO UPDATE SET
			nonce = EXCLUDED.nonce,
			gas_price = EXCLUDED.gas_price,
			tx_hash = EXCLUDED.tx_hash,
			status = EXCLUDED.status,
			payload_uuids = EXCLUDED.payload_uuids,
			submitted_at = EXCLUDED.submitted_at,
			attempts = EXCLUDED.attempts,
			recorded_at = now()
	`, tx.UUID.String(), tx.Destination, nonce, gasPrice, txHash, int(tx.Status), pq.Array(payloadUUIDs), submittedAt, tx.Attempts)

	if err != nil && s.client.logger != nil {
		s.client.logger.Printf("record transaction %s failed: %v", tx.UUID, err)
	}
}

// RecordDroppedPayload records a payload the Building stage could not
// turn into a transaction.
func (s *Store) RecordDroppedPayload(ctx context.Context, p *lander.Payload, reason lander.DropReason) {
	_, err := s.client.db.ExecContext(ctx, `
		INSERT INTO lander_dropped_payloads (payload_uuid, destination, recipient, reason, dropped_at)
		VALUES ($1, $2, $3, $4, now())
	`, p.UUID.String(), p.Destination, p.To.Hex(), int(reason))

	if err != nil && s.client.logger != nil {
		s.client.logger.Printf("record dropped payload %s failed: %v", p.UUID, err)
	}
}

// DroppedPayloadRecord is a read-back projection of lander_dropped_payloads
// for the admin surface's operator-replay endpoint.
type DroppedPayloadRecord struct {
	PayloadUUID uuid.UUID
	Destination uint32
	Recipient   string
	Reason      lander.DropReason
	DroppedAt   time.Time
}

// GetDroppedPayload loads the most recent drop record for a payload, or
// (nil, nil) if that payload has never been recorded as dropped.
func (s *Store) GetDroppedPayload(ctx context.Context, id uuid.UUID) (*DroppedPayloadRecord, error) {
	row := s.client.db.QueryRowContext(ctx, `
		SELECT payload_uuid, destination, recipient, reason, dropped_at
		FROM lander_dropped_payloads WHERE payload_uuid = $1
		ORDER BY dropped_at DESC LIMIT 1
	`, id.String())

	var (
		uuidStr     string
		destination uint32
		recipient   string
		reason      int
		droppedAt   time.Time
	)
	if err := row.Scan(&uuidStr, &destination, &recipient, &reason, &droppedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("pgstore: get dropped payload %s: %w", id, err)
	}

	return &DroppedPayloadRecord{
		PayloadUUID: uuid.MustParse(uuidStr),
		Destination: destination,
		Recipient:   recipient,
		Reason:      lander.DropReason(reason),
		DroppedAt:   droppedAt,
	}, nil
}

// TransactionRecord is a read-back projection of lander_transactions for
// the admin surface's operator-replay endpoint.
type TransactionRecord struct {
	UUID         uuid.UUID
	Destination  uint32
	Nonce        *uint64
	GasPrice     *big.Int
	TxHash       string
	Status       lander.TxStatus
	PayloadUUIDs []string
	SubmittedAt  *time.Time
	Attempts     int
	RecordedAt   time.Time
}

// GetTransaction loads one recorded transaction by UUID, or (nil, nil)
// if no such transaction has ever been recorded.
func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*TransactionRecord, error) {
	row := s.client.db.QueryRowContext(ctx, `
		SELECT uuid, destination, nonce, gas_price, tx_hash, status, payload_uuids, submitted_at, attempts, recorded_at
		FROM lander_transactions WHERE uuid = $1
	`, id.String())

	rec, err := scanTransactionRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get transaction %s: %w", id, err)
	}
	return rec, nil
}

// ListTransactionsByDestination loads every recorded transaction for a
// destination domain, most recently recorded first, for operator replay.
func (s *Store) ListTransactionsByDestination(ctx context.Context, destination uint32, limit int) ([]*TransactionRecord, error) {
	rows, err := s.client.db.QueryContext(ctx, `
		SELECT uuid, destination, nonce, gas_price, tx_hash, status, payload_uuids, submitted_at, attempts, recorded_at
		FROM lander_transactions WHERE destination = $1
		ORDER BY recorded_at DESC LIMIT $2
	`, destination, limit)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list transactions for destination %d: %w", destination, err)
	}
	defer rows.Close()

	var out []*TransactionRecord
	for rows.Next() {
		rec, err := scanTransactionRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("pgstore: scan transaction row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransactionRecord(row rowScanner) (*TransactionRecord, error) {
	var (
		uuidStr      string
		destination  uint32
		nonce        sql.NullInt64
		gasPrice     sql.NullString
		txHash       sql.NullString
		status       int
		payloadUUIDs pq.StringArray
		submittedAt  sql.NullTime
		attempts     int
		recordedAt   time.Time
	)

	if err := row.Scan(&uuidStr, &destination, &nonce, &gasPrice, &txHash, &status, &payloadUUIDs, &submittedAt, &attempts, &recordedAt); err != nil {
		return nil, err
	}

	rec := &TransactionRecord{
		UUID:         uuid.MustParse(uuidStr),
		Destination:  destination,
		TxHash:       txHash.String,
		Status:       lander.TxStatus(status),
		PayloadUUIDs: []string(payloadUUIDs),
		Attempts:     attempts,
		RecordedAt:   recordedAt,
	}
	if nonce.Valid {
		n := uint64(nonce.Int64)
		rec.Nonce = &n
	}
	if gasPrice.Valid {
		if gp, ok := new(big.Int).SetString(gasPrice.String, 10); ok {
			rec.GasPrice = gp
		}
	}
	if submittedAt.Valid {
		t := submittedAt.Time
		rec.SubmittedAt = &t
	}
	return rec, nil
}
