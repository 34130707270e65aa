package dataType

import (
	"sync"
	"time"
)

type cachedResult struct {
	result  BotDetectionResult
	expires time.Time
}

// ResultCache is a best-effort short-TTL cache of detection results
// keyed by fingerprint hash. A miss always yields the same decision as
// a fresh computation; the cache is never a correctness dependency.
type ResultCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cachedResult
}

// NewResultCache builds a cache; ttl <= 0 disables it.
func NewResultCache(ttl time.Duration) *ResultCache {
	return &ResultCache{
		ttl:     ttl,
		entries: make(map[string]cachedResult),
	}
}

func (rc *ResultCache) Get(hash string, now time.Time) (BotDetectionResult, bool) {
	if rc.ttl <= 0 {
		return BotDetectionResult{}, false
	}
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	entry, ok := rc.entries[hash]
	if !ok || now.After(entry.expires) {
		return BotDetectionResult{}, false
	}
	return entry.result, true
}

func (rc *ResultCache) Set(hash string, result BotDetectionResult, now time.Time) {
	if rc.ttl <= 0 {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.entries[hash] = cachedResult{result: result, expires: now.Add(rc.ttl)}
}

// Invalidate drops a single entry, used when a block or unblock makes
// a cached decision stale.
func (rc *ResultCache) Invalidate(hash string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	delete(rc.entries, hash)
}

// Purge drops everything.
func (rc *ResultCache) Purge() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.entries = make(map[string]cachedResult)
}

func (rc *ResultCache) GC(now time.Time) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for hash, entry := range rc.entries {
		if now.After(entry.expires) {
			delete(rc.entries, hash)
		}
	}
}

func StartResultCacheGC(rc *ResultCache, clock Clock, interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rc.GC(clock())
		case <-stopCh:
			return
		}
	}
}
