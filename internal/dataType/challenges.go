package dataType

import (
	"sync"
	"time"
)

// ChallengeStore keeps the server-side half of issued challenges,
// keyed by client. Records are single use.
type ChallengeStore struct {
	mu      sync.Mutex
	pending map[string]ChallengeRecord
}

func NewChallengeStore() *ChallengeStore {
	return &ChallengeStore{
		pending: make(map[string]ChallengeRecord),
	}
}

func (cs *ChallengeStore) Put(client string, rec ChallengeRecord) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.pending[client] = rec
}

func (cs *ChallengeStore) Get(client string) (ChallengeRecord, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	rec, ok := cs.pending[client]
	return rec, ok
}

func (cs *ChallengeStore) Delete(client string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	delete(cs.pending, client)
}

func (cs *ChallengeStore) Count() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.pending)
}

// GC removes expired records that were never verified.
func (cs *ChallengeStore) GC(now time.Time) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for client, rec := range cs.pending {
		if now.After(rec.Expires) {
			delete(cs.pending, client)
		}
	}
}

func StartChallengeGC(cs *ChallengeStore, clock Clock, interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cs.GC(clock())
		case <-stopCh:
			return
		}
	}
}
