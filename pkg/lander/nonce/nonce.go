// Copyright 2025 Certen Protocol
//
// Package nonce implements the per-signer nonce manager the Lander's
// Inclusion stage uses to assign transaction nonces without collisions,
// even when transactions are rebuilt, resubmitted, or dropped out of
// order. State is kept as four views over the same facts:
//
//   - finalized: nonces below this are finalized on-chain and forgotten.
//   - upper: one past the highest nonce ever assigned (the frontier).
//   - tracked: nonce -> {status, owning tx}, for nonces in [finalized, upper).
//   - reverse: owning tx -> nonce, for O(1) lookup by transaction.
//
// The invariant finalized <= upper always holds; a new Manager starts
// with both at 0.
package nonce

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a tracked nonce.
type Status int

const (
	// Freed means a nonce was assigned to a transaction that was later
	// dropped (build failure, chain rejection, reorg) without using it.
	// It is available for reassignment.
	Freed Status = iota
	// Taken means a nonce is currently assigned to an in-flight
	// transaction awaiting inclusion or finality.
	Taken
	// Committed means a nonce's transaction has finalized on-chain.
	Committed
)

func (s Status) String() string {
	switch s {
	case Freed:
		return "freed"
	case Taken:
		return "taken"
	case Committed:
		return "committed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Action is the verdict ValidateAssignedNonce returns: whether the caller
// should assign a fresh nonce or its previously assigned nonce is still
// good to use as-is.
type Action int

const (
	ActionAssign Action = iota
	ActionNoop
)

// ErrNonceAssignedToMultipleTransactions is the sentinel behind
// *ConflictError.
var ErrNonceAssignedToMultipleTransactions = errors.New("nonce: assigned to multiple transactions")

// ConflictError reports that UpdateNonceStatus was asked to hand a nonce
// already owned by one transaction to a different one, without the
// current owner having freed it first.
type ConflictError struct {
	Nonce   uint64
	Tracked uuid.UUID
	New     uuid.UUID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("nonce %d: %v (tracked tx=%s, new tx=%s)",
		e.Nonce, ErrNonceAssignedToMultipleTransactions, e.Tracked, e.New)
}

func (e *ConflictError) Unwrap() error { return ErrNonceAssignedToMultipleTransactions }

type trackedNonce struct {
	status Status
	txUUID uuid.UUID
}

// Manager tracks nonce assignment for a single signer. It is safe for
// concurrent use.
type Manager struct {
	mu sync.Mutex

	finalized uint64
	upper     uint64
	tracked   map[uint64]trackedNonce
	reverse   map[uuid.UUID]uint64
}

// NewManager returns a Manager with no assigned nonces, floor 0.
func NewManager() *Manager {
	return &Manager{
		tracked: make(map[uint64]trackedNonce),
		reverse: make(map[uuid.UUID]uint64),
	}
}

// Finalized returns the current finalized floor.
func (m *Manager) Finalized() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalized
}

// Upper returns the current frontier (one past the highest assigned nonce).
func (m *Manager) Upper() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upper
}

// NonceForTx returns the nonce assigned to txUUID, if any.
func (m *Manager) NonceForTx(txUUID uuid.UUID) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.reverse[txUUID]
	return n, ok
}

// StatusOf returns the tracked status of nonce, if tracked.
func (m *Manager) StatusOf(n uint64) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tracked[n]
	return t.status, ok
}

// UpdateNonceStatus records a status transition for nonce, owned by
// txUUID. Rules:
//
//   - An untracked nonce is inserted with the given status and owner.
//   - The same (status, txUUID) pair applied again is a no-op.
//   - Any transition for the same txUUID that already owns the nonce is
//     allowed (including status regressions the caller believes are
//     correct; this manager trusts its callers on transitions, and only
//     guards cross-transaction collisions).
//   - A Freed nonce may be claimed by a different txUUID.
//   - Any other attempt to hand a tracked, non-Freed nonce to a different
//     txUUID is a conflict and returns *ConflictError.
func (m *Manager) UpdateNonceStatus(n uint64, status Status, txUUID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.tracked[n]
	if !ok {
		m.tracked[n] = trackedNonce{status: status, txUUID: txUUID}
		m.reverse[txUUID] = n
		if n >= m.upper {
			m.upper = n + 1
		}
		return nil
	}

	if existing.status == status && existing.txUUID == txUUID {
		return nil
	}

	if existing.txUUID != txUUID && existing.status != Freed {
		return &ConflictError{Nonce: n, Tracked: existing.txUUID, New: txUUID}
	}

	if existing.txUUID != txUUID {
		delete(m.reverse, existing.txUUID)
	}
	m.tracked[n] = trackedNonce{status: status, txUUID: txUUID}
	m.reverse[txUUID] = n

	m.pruneFinalizedLocked()
	return nil
}

// ValidateAssignedNonce reports whether a transaction that believes it
// already owns nonce n should keep using it (ActionNoop) or must be
// assigned a fresh one (ActionAssign) — e.g. because a lower nonce has
// since been freed (or was never taken) and the transaction should move
// down to it.
func (m *Manager) ValidateAssignedNonce(n uint64, txUUID uuid.UUID) Action {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.tracked[n]
	if !ok {
		return ActionAssign
	}
	if existing.txUUID != txUUID {
		return ActionAssign
	}

	switch existing.status {
	case Freed:
		return ActionAssign
	case Committed:
		return ActionNoop
	case Taken:
		if n > m.lowestAvailableLocked() {
			return ActionAssign
		}
		return ActionNoop
	default:
		return ActionNoop
	}
}

// AssignNextNonce assigns a nonce to txUUID: the smallest Freed nonce
// below the frontier if one exists, otherwise a brand-new nonce at the
// frontier (extending it by one).
func (m *Manager) AssignNextNonce(txUUID uuid.UUID) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.tracked) == 0 {
		n := m.finalized
		m.tracked[n] = trackedNonce{status: Taken, txUUID: txUUID}
		m.reverse[txUUID] = n
		m.upper = n + 1
		return n
	}

	lowest := m.lowestAvailableLocked()
	if lowest < m.upper {
		m.tracked[lowest] = trackedNonce{status: Taken, txUUID: txUUID}
		m.reverse[txUUID] = lowest
		return lowest
	}

	n := m.upper
	m.tracked[n] = trackedNonce{status: Taken, txUUID: txUUID}
	m.reverse[txUUID] = n
	m.upper = n + 1
	return n
}

// lowestAvailableLocked returns the smallest nonce in [finalized, upper)
// that is untracked or Freed, or upper if every tracked nonce in range is
// Taken or Committed.
func (m *Manager) lowestAvailableLocked() uint64 {
	for n := m.finalized; n < m.upper; n++ {
		t, ok := m.tracked[n]
		if !ok || t.status == Freed {
			return n
		}
	}
	return m.upper
}

// pruneFinalizedLocked advances finalized past any contiguous run of
// Committed nonces starting at the current floor, dropping them from
// tracked/reverse: once finalized, a nonce's bookkeeping no longer serves
// reassignment decisions.
func (m *Manager) pruneFinalizedLocked() {
	for {
		t, ok := m.tracked[m.finalized]
		if !ok || t.status != Committed {
			return
		}
		delete(m.tracked, m.finalized)
		delete(m.reverse, t.txUUID)
		m.finalized++
	}
}

// ResetUpper lowers the frontier to newUpper after a reorg has unwound
// nonces the manager previously assigned — it never touches finalized,
// since nonces below that floor are already committed on-chain and a
// reorg shallow enough to warrant this call cannot unwind them. Legal
// only when finalized < newUpper < the current upper; entries for
// nonces >= newUpper are detached (tracked and reverse), freeing their
// transactions to be rebuilt with a lower nonce on the next assignment.
func (m *Manager) ResetUpper(newUpper uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if newUpper <= m.finalized || newUpper >= m.upper {
		return fmt.Errorf("nonce: reset_upper(%d) invalid for finalized=%d upper=%d", newUpper, m.finalized, m.upper)
	}

	for n, t := range m.tracked {
		if n >= newUpper {
			delete(m.tracked, n)
			delete(m.reverse, t.txUUID)
		}
	}
	m.upper = newUpper
	return nil
}
