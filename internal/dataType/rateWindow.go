package dataType

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

type windowEntry struct {
	stamps   []int64
	lastSeen int64
}

// prune drops timestamps that have fallen out of the trailing window.
// A stamp exactly at the cutoff is dropped, so a burst at the boundary
// is admitted again once its oldest request ages out.
func (w *windowEntry) prune(cutoff int64) {
	i := 0
	for i < len(w.stamps) && w.stamps[i] <= cutoff {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

type rateBucket struct {
	mu      sync.Mutex
	entries map[uint64]*windowEntry
}

// RateWindows holds per (client, class) sliding-window timestamp lists,
// sharded by key hash so concurrent clients rarely contend.
type RateWindows struct {
	buckets     []*rateBucket
	bucketCount uint64
	maxWindow   time.Duration
}

func NewRateWindows(bucketCount int, maxWindow time.Duration) *RateWindows {
	rw := &RateWindows{
		buckets:     make([]*rateBucket, bucketCount),
		bucketCount: uint64(bucketCount),
		maxWindow:   maxWindow,
	}
	for i := 0; i < bucketCount; i++ {
		rw.buckets[i] = &rateBucket{entries: make(map[uint64]*windowEntry)}
	}
	return rw
}

func (rw *RateWindows) key(client string, class RequestClass) uint64 {
	return xxhash.Sum64String(client + "|" + string(class))
}

func (rw *RateWindows) bucket(key uint64) *rateBucket {
	return rw.buckets[key%rw.bucketCount]
}

// Observe prunes the window, records one request at now, and returns
// the resulting count. Prune and append happen under one lock so
// near-simultaneous requests from the same client never lose counts.
func (rw *RateWindows) Observe(client string, class RequestClass, now time.Time, window time.Duration) int64 {
	key := rw.key(client, class)
	bucket := rw.bucket(key)
	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	entry, ok := bucket.entries[key]
	if !ok {
		entry = &windowEntry{}
		bucket.entries[key] = entry
	}
	entry.prune(now.Add(-window).UnixNano())
	entry.stamps = append(entry.stamps, now.UnixNano())
	entry.lastSeen = now.UnixNano()
	return int64(len(entry.stamps))
}

// Count returns the in-window count without recording a request.
func (rw *RateWindows) Count(client string, class RequestClass, now time.Time, window time.Duration) int64 {
	key := rw.key(client, class)
	bucket := rw.bucket(key)
	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	entry, ok := bucket.entries[key]
	if !ok {
		return 0
	}
	entry.prune(now.Add(-window).UnixNano())
	return int64(len(entry.stamps))
}

// Reset discards every class window of a client.
func (rw *RateWindows) Reset(client string) {
	for _, class := range []RequestClass{ClassSearch, ClassAPI, ClassPage} {
		key := rw.key(client, class)
		bucket := rw.bucket(key)
		bucket.mu.Lock()
		delete(bucket.entries, key)
		bucket.mu.Unlock()
	}
}

// GC drops entries idle longer than the widest configured window.
func (rw *RateWindows) GC(now time.Time) {
	threshold := now.Add(-rw.maxWindow).UnixNano()
	for _, bucket := range rw.buckets {
		bucket.mu.Lock()
		for key, entry := range bucket.entries {
			if entry.lastSeen < threshold {
				delete(bucket.entries, key)
			}
		}
		bucket.mu.Unlock()
	}
}

func StartRateWindowGC(rw *RateWindows, clock Clock, interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rw.GC(clock())
		case <-stopCh:
			return
		}
	}
}
