// Copyright 2025 Certen Protocol

package ismmeta

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// thresholdCacheKey mirrors the Rust builder's cache key for
// modules_and_threshold: (ism_address, message.id()). Keying on message id
// rather than the full message keeps the key small while staying unique
// per dispatch.
type thresholdCacheKey struct {
	ismAddress common.Address
	messageID  common.Hash
}

type thresholdCacheEntry struct {
	addresses []common.Address
	threshold uint8
}

// thresholdCache caches modules_and_threshold lookups. It is a
// mutex-guarded map rather than a TTL cache: a given (ism, message) pair's
// module set and threshold cannot change within the lifetime of that
// message's delivery attempt, so entries never need invalidation.
type thresholdCache struct {
	mu      sync.RWMutex
	entries map[thresholdCacheKey]thresholdCacheEntry
}

func newThresholdCache() *thresholdCache {
	return &thresholdCache{entries: make(map[thresholdCacheKey]thresholdCacheEntry)}
}

func (c *thresholdCache) get(ismAddress common.Address, messageID common.Hash) ([]common.Address, uint8, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[thresholdCacheKey{ismAddress, messageID}]
	if !ok {
		return nil, 0, false
	}
	return entry.addresses, entry.threshold, true
}

func (c *thresholdCache) put(ismAddress common.Address, messageID common.Hash, addresses []common.Address, threshold uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[thresholdCacheKey{ismAddress, messageID}] = thresholdCacheEntry{addresses: addresses, threshold: threshold}
}
