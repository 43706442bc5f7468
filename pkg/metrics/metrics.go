// Copyright 2025 Certen Protocol
//
// Package metrics provides the relayer's Prometheus collectors: drop
// reasons, submission attempts, mismatched-nonce events, and finalized
// messages by counter; per-stage queue depth and Merkle tree leaf count
// by gauge. One
// Metrics value is shared process-wide and registered against a single
// prometheus.Registry served over /metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hyperbridge/relayer-core/pkg/lander"
)

// Metrics holds every collector the relayer exports, grouped the way the
// lite client's atomic Metrics struct groups its counters by concern
// (cache/proof/performance), generalized here to Prometheus vectors
// labeled by destination domain and drop reason.
type Metrics struct {
	Registry *prometheus.Registry

	PayloadsDropped     *prometheus.CounterVec
	SubmissionAttempts  *prometheus.CounterVec
	NonceMismatches     *prometheus.CounterVec
	MessagesFinalized   *prometheus.CounterVec
	StageQueueDepth     *prometheus.GaugeVec
	MerkleTreeCount     *prometheus.GaugeVec
}

// New constructs a Metrics value with every collector registered against
// a fresh prometheus.Registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		PayloadsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relayer",
			Name:      "payloads_dropped_total",
			Help:      "Payloads dropped by the lander, labeled by destination domain and drop reason.",
		}, []string{"destination", "reason"}),
		SubmissionAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relayer",
			Name:      "submission_attempts_total",
			Help:      "Transaction submission attempts, labeled by destination domain.",
		}, []string{"destination"}),
		NonceMismatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relayer",
			Name:      "nonce_mismatches_total",
			Help:      "Assigned-nonce validation failures, labeled by signer.",
		}, []string{"signer"}),
		MessagesFinalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relayer",
			Name:      "messages_finalized_total",
			Help:      "Messages whose delivery transaction reached finality, labeled by destination domain.",
		}, []string{"destination"}),
		StageQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "relayer",
			Name:      "lander_stage_queue_depth",
			Help:      "Number of transactions or payloads currently held by a lander pipeline stage.",
		}, []string{"destination", "stage"}),
		MerkleTreeCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "relayer",
			Name:      "merkle_tree_leaf_count",
			Help:      "Leaf count of the local incremental Merkle tree mirror, labeled by origin domain.",
		}, []string{"origin"}),
	}

	registry.MustRegister(
		m.PayloadsDropped,
		m.SubmissionAttempts,
		m.NonceMismatches,
		m.MessagesFinalized,
		m.StageQueueDepth,
		m.MerkleTreeCount,
	)

	return m
}

// RecordDrop increments the drop counter for the given destination domain
// and lander.DropReason.
func (m *Metrics) RecordDrop(destination uint32, reason lander.DropReason) {
	m.PayloadsDropped.WithLabelValues(domainLabel(destination), reason.String()).Inc()
}

// RecordSubmissionAttempt increments the submission-attempt counter for
// the given destination domain.
func (m *Metrics) RecordSubmissionAttempt(destination uint32) {
	m.SubmissionAttempts.WithLabelValues(domainLabel(destination)).Inc()
}

// RecordNonceMismatch increments the nonce-mismatch counter for the given
// signer address.
func (m *Metrics) RecordNonceMismatch(signer string) {
	m.NonceMismatches.WithLabelValues(signer).Inc()
}

// RecordFinalized increments the finalized-message counter for the given
// destination domain.
func (m *Metrics) RecordFinalized(destination uint32) {
	m.MessagesFinalized.WithLabelValues(domainLabel(destination)).Inc()
}

// SetQueueLength sets the current queue depth for a lander pipeline
// stage on a destination domain.
func (m *Metrics) SetQueueLength(destination uint32, stage string, length int) {
	m.StageQueueDepth.WithLabelValues(domainLabel(destination), stage).Set(float64(length))
}

// SetMerkleTreeCount sets the current leaf count of the local Merkle tree
// mirror for an origin domain.
func (m *Metrics) SetMerkleTreeCount(origin uint32, count uint32) {
	m.MerkleTreeCount.WithLabelValues(domainLabel(origin)).Set(float64(count))
}

func domainLabel(domain uint32) string {
	return strconv.FormatUint(uint64(domain), 10)
}
