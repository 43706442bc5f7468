// Copyright 2025 Certen Protocol

package processor

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// =============================================================================
// SENDER FILTER
// =============================================================================

// SenderFilter is a MessageFilter backed by an allow-list and a deny-list,
// keyed by sender address. The deny-list always wins: a sender present in
// both is denied. An empty allow-list means "allow everyone not denied".
type SenderFilter struct {
	mu      sync.RWMutex
	allowed map[common.Address]struct{}
	denied  map[common.Address]struct{}
}

// NewSenderFilter builds a SenderFilter from an initial allow-list and
// deny-list. Either may be nil.
func NewSenderFilter(allow, deny []common.Address) *SenderFilter {
	f := &SenderFilter{
		allowed: make(map[common.Address]struct{}, len(allow)),
		denied:  make(map[common.Address]struct{}, len(deny)),
	}
	for _, a := range allow {
		f.allowed[a] = struct{}{}
	}
	for _, d := range deny {
		f.denied[d] = struct{}{}
	}
	return f
}

// Allow adds sender to the allow-list.
func (f *SenderFilter) Allow(sender common.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowed[sender] = struct{}{}
}

// Deny adds sender to the deny-list.
func (f *SenderFilter) Deny(sender common.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.denied[sender] = struct{}{}
}

// Allowed reports whether sender may be submitted for delivery.
func (f *SenderFilter) Allowed(sender common.Address) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if _, denied := f.denied[sender]; denied {
		return false
	}
	if len(f.allowed) == 0 {
		return true
	}
	_, allowed := f.allowed[sender]
	return allowed
}
