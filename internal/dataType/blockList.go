package dataType

import (
	"sync"
	"time"
)

// BlockList is the explicit deny-set. Entries are added by manual or
// automatic blocks and removed only by an explicit unblock.
type BlockList struct {
	mu      sync.RWMutex
	blocked map[string]BlockEntry
}

func NewBlockList() *BlockList {
	return &BlockList{
		blocked: make(map[string]BlockEntry),
	}
}

func (bl *BlockList) Block(client, reason string, now time.Time) {
	bl.mu.Lock()
	defer bl.mu.Unlock()

	// First block wins; re-blocking keeps the original audit trail.
	if _, exists := bl.blocked[client]; exists {
		return
	}
	bl.blocked[client] = BlockEntry{Reason: reason, BlockedAt: now}
}

// Unblock removes the entry and reports whether it existed.
func (bl *BlockList) Unblock(client string) bool {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	_, exists := bl.blocked[client]
	delete(bl.blocked, client)
	return exists
}

func (bl *BlockList) Get(client string) (BlockEntry, bool) {
	bl.mu.RLock()
	defer bl.mu.RUnlock()
	entry, exists := bl.blocked[client]
	return entry, exists
}

func (bl *BlockList) IsBlocked(client string) bool {
	bl.mu.RLock()
	defer bl.mu.RUnlock()
	_, exists := bl.blocked[client]
	return exists
}

func (bl *BlockList) Count() int {
	bl.mu.RLock()
	defer bl.mu.RUnlock()
	return len(bl.blocked)
}

// GetSnapshot returns a copy of the current deny-set.
func (bl *BlockList) GetSnapshot() map[string]BlockEntry {
	bl.mu.RLock()
	defer bl.mu.RUnlock()

	snapshot := make(map[string]BlockEntry, len(bl.blocked))
	for client, entry := range bl.blocked {
		snapshot[client] = entry
	}
	return snapshot
}
