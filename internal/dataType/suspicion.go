package dataType

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

type suspicionBucket struct {
	mu     sync.Mutex
	scores map[string]int
}

// SuspicionLedger keeps a per-client risk score in [0,100] that only
// moves on explicit detection and challenge events.
type SuspicionLedger struct {
	buckets     []*suspicionBucket
	bucketCount uint64
}

func NewSuspicionLedger(bucketCount int) *SuspicionLedger {
	sl := &SuspicionLedger{
		buckets:     make([]*suspicionBucket, bucketCount),
		bucketCount: uint64(bucketCount),
	}
	for i := 0; i < bucketCount; i++ {
		sl.buckets[i] = &suspicionBucket{scores: make(map[string]int)}
	}
	return sl
}

func (sl *SuspicionLedger) bucket(client string) *suspicionBucket {
	return sl.buckets[xxhash.Sum64String(client)%sl.bucketCount]
}

// Increment raises the client score, clamped to 100, and returns the
// new value.
func (sl *SuspicionLedger) Increment(client string, amount int) int {
	bucket := sl.bucket(client)
	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	score := bucket.scores[client] + amount
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	bucket.scores[client] = score
	return score
}

// Decrement lowers the client score, floored at 0, and returns the new
// value. Used to reward a completed challenge.
func (sl *SuspicionLedger) Decrement(client string, amount int) int {
	return sl.Increment(client, -amount)
}

func (sl *SuspicionLedger) Get(client string) int {
	bucket := sl.bucket(client)
	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	return bucket.scores[client]
}

// Remove erases any accumulated score, a full pardon.
func (sl *SuspicionLedger) Remove(client string) {
	bucket := sl.bucket(client)
	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	delete(bucket.scores, client)
}

// Count reports how many clients currently carry a non-zero score.
func (sl *SuspicionLedger) Count() int {
	total := 0
	for _, bucket := range sl.buckets {
		bucket.mu.Lock()
		for _, score := range bucket.scores {
			if score > 0 {
				total++
			}
		}
		bucket.mu.Unlock()
	}
	return total
}
