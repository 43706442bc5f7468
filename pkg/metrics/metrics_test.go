// Copyright 2025 Certen Protocol

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hyperbridge/relayer-core/pkg/lander"
)

func TestRecordDrop_IncrementsLabeledCounter(t *testing.T) {
	m := New()

	m.RecordDrop(1, lander.DropReasonReverted)
	m.RecordDrop(1, lander.DropReasonReverted)
	m.RecordDrop(2, lander.DropReasonFailedSimulation)

	if got := testutil.ToFloat64(m.PayloadsDropped.WithLabelValues("1", lander.DropReasonReverted.String())); got != 2 {
		t.Fatalf("expected 2 reverted drops on domain 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.PayloadsDropped.WithLabelValues("2", lander.DropReasonFailedSimulation.String())); got != 1 {
		t.Fatalf("expected 1 failed-simulation drop on domain 2, got %v", got)
	}
}

func TestRecordSubmissionAttempt_IncrementsPerDestination(t *testing.T) {
	m := New()

	m.RecordSubmissionAttempt(7)
	m.RecordSubmissionAttempt(7)
	m.RecordSubmissionAttempt(7)

	if got := testutil.ToFloat64(m.SubmissionAttempts.WithLabelValues("7")); got != 3 {
		t.Fatalf("expected 3 submission attempts on domain 7, got %v", got)
	}
}

func TestRecordFinalized_IncrementsPerDestination(t *testing.T) {
	m := New()

	m.RecordFinalized(9)

	if got := testutil.ToFloat64(m.MessagesFinalized.WithLabelValues("9")); got != 1 {
		t.Fatalf("expected 1 finalized message on domain 9, got %v", got)
	}
}

func TestSetQueueLength_ReflectsLatestValue(t *testing.T) {
	m := New()

	m.SetQueueLength(3, "inclusion", 5)
	m.SetQueueLength(3, "inclusion", 2)

	if got := testutil.ToFloat64(m.StageQueueDepth.WithLabelValues("3", "inclusion")); got != 2 {
		t.Fatalf("expected latest queue length 2, got %v", got)
	}
}

func TestSetMerkleTreeCount_ReflectsLatestValue(t *testing.T) {
	m := New()

	m.SetMerkleTreeCount(1, 100)
	m.SetMerkleTreeCount(1, 142)

	if got := testutil.ToFloat64(m.MerkleTreeCount.WithLabelValues("1")); got != 142 {
		t.Fatalf("expected latest leaf count 142, got %v", got)
	}
}

func TestRecordNonceMismatch_IncrementsPerSigner(t *testing.T) {
	m := New()

	m.RecordNonceMismatch("0xabc")
	m.RecordNonceMismatch("0xabc")

	if got := testutil.ToFloat64(m.NonceMismatches.WithLabelValues("0xabc")); got != 2 {
		t.Fatalf("expected 2 nonce mismatches for signer, got %v", got)
	}
}
