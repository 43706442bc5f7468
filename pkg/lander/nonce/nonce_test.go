// Copyright 2025 Certen Protocol

package nonce

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestUpdateNonceStatus_InsertsUntracked(t *testing.T) {
	m := NewManager()
	tx := uuid.New()
	if err := m.UpdateNonceStatus(5, Taken, tx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	status, ok := m.StatusOf(5)
	if !ok || status != Taken {
		t.Fatalf("expected nonce 5 tracked as Taken, got %v, %v", status, ok)
	}
	if n, ok := m.NonceForTx(tx); !ok || n != 5 {
		t.Fatalf("expected reverse lookup to find nonce 5, got %d, %v", n, ok)
	}
}

func TestUpdateNonceStatus_SameStatusSameTxIsNoop(t *testing.T) {
	m := NewManager()
	tx := uuid.New()
	if err := m.UpdateNonceStatus(5, Taken, tx); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if err := m.UpdateNonceStatus(5, Taken, tx); err != nil {
		t.Fatalf("repeated identical update should be a no-op, got: %v", err)
	}
}

func TestUpdateNonceStatus_FreedToTakenAllowed(t *testing.T) {
	m := NewManager()
	tx1, tx2 := uuid.New(), uuid.New()
	if err := m.UpdateNonceStatus(5, Taken, tx1); err != nil {
		t.Fatalf("initial take: %v", err)
	}
	if err := m.UpdateNonceStatus(5, Freed, tx1); err != nil {
		t.Fatalf("free: %v", err)
	}
	if err := m.UpdateNonceStatus(5, Taken, tx2); err != nil {
		t.Fatalf("expected a freed nonce to be claimable by a different tx: %v", err)
	}
	status, _ := m.StatusOf(5)
	if status != Taken {
		t.Fatalf("expected nonce 5 to be Taken by tx2, got %v", status)
	}
	if n, ok := m.NonceForTx(tx2); !ok || n != 5 {
		t.Fatalf("expected tx2 to own nonce 5")
	}
	if _, ok := m.NonceForTx(tx1); ok {
		t.Fatal("expected tx1's reverse mapping to be cleared after losing the nonce")
	}
}

func TestUpdateNonceStatus_SameTxStatusUpdateAllowed(t *testing.T) {
	m := NewManager()
	tx := uuid.New()
	if err := m.UpdateNonceStatus(5, Taken, tx); err != nil {
		t.Fatalf("take: %v", err)
	}
	if err := m.UpdateNonceStatus(5, Committed, tx); err != nil {
		t.Fatalf("expected same-tx status transition to be allowed: %v", err)
	}
	status, _ := m.StatusOf(5)
	if status != Committed {
		t.Fatalf("expected nonce 5 to be Committed, got %v", status)
	}
}

func TestUpdateNonceStatus_DifferentTxErrors(t *testing.T) {
	m := NewManager()
	tx1, tx2 := uuid.New(), uuid.New()
	if err := m.UpdateNonceStatus(5, Taken, tx1); err != nil {
		t.Fatalf("take: %v", err)
	}
	err := m.UpdateNonceStatus(5, Taken, tx2)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected *ConflictError, got %v", err)
	}
	if conflict.Nonce != 5 || conflict.Tracked != tx1 || conflict.New != tx2 {
		t.Fatalf("unexpected conflict error fields: %+v", conflict)
	}
}

func TestValidateAssignedNonce_Untracked(t *testing.T) {
	m := NewManager()
	if got := m.ValidateAssignedNonce(5, uuid.New()); got != ActionAssign {
		t.Fatalf("expected ActionAssign for untracked nonce, got %v", got)
	}
}

func TestValidateAssignedNonce_DifferentTxAssign(t *testing.T) {
	m := NewManager()
	tx1, tx2 := uuid.New(), uuid.New()
	_ = m.UpdateNonceStatus(5, Taken, tx1)
	if got := m.ValidateAssignedNonce(5, tx2); got != ActionAssign {
		t.Fatalf("expected ActionAssign when a different tx owns the nonce, got %v", got)
	}
}

func TestValidateAssignedNonce_Freed(t *testing.T) {
	m := NewManager()
	tx := uuid.New()
	_ = m.UpdateNonceStatus(5, Taken, tx)
	_ = m.UpdateNonceStatus(5, Freed, tx)
	if got := m.ValidateAssignedNonce(5, tx); got != ActionAssign {
		t.Fatalf("expected ActionAssign for a freed nonce, got %v", got)
	}
}

func TestValidateAssignedNonce_Committed(t *testing.T) {
	m := NewManager()
	tx := uuid.New()
	_ = m.UpdateNonceStatus(5, Taken, tx)
	_ = m.UpdateNonceStatus(5, Committed, tx)
	if got := m.ValidateAssignedNonce(5, tx); got != ActionNoop {
		t.Fatalf("expected ActionNoop for a committed nonce, got %v", got)
	}
}

func TestValidateAssignedNonce_TakenAboveLowestAvailable(t *testing.T) {
	m := NewManager()
	txA, txB := uuid.New(), uuid.New()
	_ = m.UpdateNonceStatus(0, Taken, txA)
	_ = m.UpdateNonceStatus(1, Taken, txB)
	_ = m.UpdateNonceStatus(0, Freed, txA)

	// Lowest available is now 0 (freed); nonce 1 sits above that, so its
	// own owner re-validating nonce 1 should be told to reassign down to
	// the cheaper freed slot.
	if got := m.ValidateAssignedNonce(1, txB); got != ActionAssign {
		t.Fatalf("expected ActionAssign for a taken nonce above the lowest available, got %v", got)
	}
}

func TestValidateAssignedNonce_TakenAtLowestAvailable(t *testing.T) {
	m := NewManager()
	tx := uuid.New()
	_ = m.UpdateNonceStatus(0, Taken, tx)
	if got := m.ValidateAssignedNonce(0, tx); got != ActionNoop {
		t.Fatalf("expected ActionNoop when already at the lowest available nonce, got %v", got)
	}
}

func TestAssignNextNonce_NoTrackedStartsAtFinalized(t *testing.T) {
	m := NewManager()
	tx := uuid.New()
	n := m.AssignNextNonce(tx)
	if n != 0 {
		t.Fatalf("expected first assignment to be nonce 0, got %d", n)
	}
	if m.Upper() != 1 {
		t.Fatalf("expected upper to advance to 1, got %d", m.Upper())
	}
}

func TestAssignNextNonce_PrefersFreedOverExtendingFrontier(t *testing.T) {
	m := NewManager()
	txA, txB, txC := uuid.New(), uuid.New(), uuid.New()
	_ = m.UpdateNonceStatus(0, Taken, txA)
	_ = m.UpdateNonceStatus(1, Taken, txB)
	_ = m.UpdateNonceStatus(0, Freed, txA)

	n := m.AssignNextNonce(txC)
	if n != 0 {
		t.Fatalf("expected freed nonce 0 to be reused, got %d", n)
	}
}

func TestAssignNextNonce_AllTakenExtendsFrontier(t *testing.T) {
	m := NewManager()
	txA, txB, txC := uuid.New(), uuid.New(), uuid.New()
	_ = m.UpdateNonceStatus(0, Taken, txA)
	_ = m.UpdateNonceStatus(1, Taken, txB)

	n := m.AssignNextNonce(txC)
	if n != 2 {
		t.Fatalf("expected frontier to extend to nonce 2, got %d", n)
	}
	if m.Upper() != 3 {
		t.Fatalf("expected upper to advance to 3, got %d", m.Upper())
	}
}

func TestAssignNextNonce_FreedAtBoundary(t *testing.T) {
	m := NewManager()
	txA, txB := uuid.New(), uuid.New()
	_ = m.UpdateNonceStatus(0, Taken, txA)
	_ = m.UpdateNonceStatus(0, Freed, txA)

	n := m.AssignNextNonce(txB)
	if n != 0 {
		t.Fatalf("expected the only (freed, boundary) nonce to be reassigned, got %d", n)
	}
}

func TestPruneFinalized_AdvancesFloorOnContiguousCommits(t *testing.T) {
	m := NewManager()
	tx0, tx1, tx2 := uuid.New(), uuid.New(), uuid.New()
	_ = m.UpdateNonceStatus(0, Taken, tx0)
	_ = m.UpdateNonceStatus(1, Taken, tx1)
	_ = m.UpdateNonceStatus(2, Taken, tx2)

	_ = m.UpdateNonceStatus(0, Committed, tx0)
	if m.Finalized() != 1 {
		t.Fatalf("expected finalized to advance past nonce 0, got %d", m.Finalized())
	}

	// Nonce 2 commits before nonce 1: finalized must not skip over the gap.
	_ = m.UpdateNonceStatus(2, Committed, tx2)
	if m.Finalized() != 1 {
		t.Fatalf("expected finalized to stay at 1 until nonce 1 commits, got %d", m.Finalized())
	}

	_ = m.UpdateNonceStatus(1, Committed, tx1)
	if m.Finalized() != 3 {
		t.Fatalf("expected finalized to jump to 3 once the gap closes, got %d", m.Finalized())
	}
}

// seedFinalized commits nonces [0, upTo) in order, one tracked tx per
// nonce, so pruneFinalizedLocked actually advances Finalized() to upTo
// (a bare Committed insert on a never-tracked nonce does not prune).
func seedFinalized(m *Manager, upTo uint64) {
	for n := uint64(0); n < upTo; n++ {
		tx := uuid.New()
		_ = m.UpdateNonceStatus(n, Taken, tx)
		_ = m.UpdateNonceStatus(n, Committed, tx)
	}
}

func TestResetUpper_LowersFrontierWithoutTouchingFinalized(t *testing.T) {
	m := NewManager()
	seedFinalized(m, 90)

	tracked := map[uint64]uuid.UUID{105: {}, 115: {}, 125: {}, 135: {}, 145: {}, 149: {}}
	for n := range tracked {
		tx := uuid.New()
		tracked[n] = tx
		_ = m.UpdateNonceStatus(n, Taken, tx)
	}
	if m.Upper() != 150 {
		t.Fatalf("setup: expected upper=150, got %d", m.Upper())
	}

	if err := m.ResetUpper(100); err != nil {
		t.Fatalf("ResetUpper: %v", err)
	}
	if m.Finalized() != 90 {
		t.Fatalf("expected finalized to stay at 90, got %d", m.Finalized())
	}
	if m.Upper() != 100 {
		t.Fatalf("expected upper to drop to 100, got %d", m.Upper())
	}
	for n, tx := range tracked {
		if _, ok := m.StatusOf(n); ok {
			t.Fatalf("expected tracked nonce %d to be detached after reset", n)
		}
		if _, ok := m.NonceForTx(tx); ok {
			t.Fatalf("expected reverse mapping for detached nonce %d to be removed", n)
		}
	}
}

func TestResetUpper_RejectsNewUpperAtOrBelowFinalized(t *testing.T) {
	m := NewManager()
	seedFinalized(m, 90)
	_ = m.UpdateNonceStatus(149, Taken, uuid.New())
	if m.Upper() != 150 {
		t.Fatalf("setup: expected upper=150, got %d", m.Upper())
	}

	if err := m.ResetUpper(90); err == nil {
		t.Fatal("expected an error when newUpper == finalized")
	}
	if err := m.ResetUpper(50); err == nil {
		t.Fatal("expected an error when newUpper < finalized")
	}
	if m.Upper() != 150 || m.Finalized() != 90 {
		t.Fatalf("expected state unchanged after a rejected reset, got finalized=%d upper=%d", m.Finalized(), m.Upper())
	}
}

func TestResetUpper_RejectsNewUpperAtOrAboveCurrentUpper(t *testing.T) {
	m := NewManager()
	seedFinalized(m, 90)
	_ = m.UpdateNonceStatus(149, Taken, uuid.New())
	if m.Upper() != 150 {
		t.Fatalf("setup: expected upper=150, got %d", m.Upper())
	}

	if err := m.ResetUpper(150); err == nil {
		t.Fatal("expected an error when newUpper == current upper")
	}
	if err := m.ResetUpper(200); err == nil {
		t.Fatal("expected an error when newUpper > current upper")
	}
	if m.Upper() != 150 {
		t.Fatalf("expected upper unchanged after a rejected reset, got %d", m.Upper())
	}
}

func TestResetUpper_AcceptsFinalizedPlusOneBoundary(t *testing.T) {
	m := NewManager()
	seedFinalized(m, 100)
	_ = m.UpdateNonceStatus(149, Taken, uuid.New())
	if m.Upper() != 150 {
		t.Fatalf("setup: expected upper=150, got %d", m.Upper())
	}

	if err := m.ResetUpper(101); err != nil {
		t.Fatalf("expected newUpper == finalized+1 to be accepted, got: %v", err)
	}
	if m.Upper() != 101 {
		t.Fatalf("expected upper to drop to 101, got %d", m.Upper())
	}
}
