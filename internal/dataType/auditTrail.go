package dataType

import "sync"

// AuditTrail is a fixed-size ring of recent suspicious-activity
// events. Best effort: old events are overwritten, nothing persists.
type AuditTrail struct {
	mu     sync.Mutex
	events []AuditEvent
	next   int
	filled bool
}

func NewAuditTrail(size int) *AuditTrail {
	if size <= 0 {
		size = 256
	}
	return &AuditTrail{events: make([]AuditEvent, size)}
}

func (at *AuditTrail) Append(event AuditEvent) {
	at.mu.Lock()
	defer at.mu.Unlock()
	at.events[at.next] = event
	at.next++
	if at.next == len(at.events) {
		at.next = 0
		at.filled = true
	}
}

// Recent returns up to n events, newest first.
func (at *AuditTrail) Recent(n int) []AuditEvent {
	at.mu.Lock()
	defer at.mu.Unlock()

	size := at.next
	if at.filled {
		size = len(at.events)
	}
	if n > size {
		n = size
	}
	out := make([]AuditEvent, 0, n)
	for i := 0; i < n; i++ {
		idx := (at.next - 1 - i + len(at.events)) % len(at.events)
		out = append(out, at.events[idx])
	}
	return out
}
