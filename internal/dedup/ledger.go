// Package dedup implements the run-wide deduplication ledger. The
// ledger is the single authority deciding insert-vs-skip for product
// identity keys before they reach the database.
package dedup

import (
	"sync"
	"time"
)

// Entry records where and when an identity key was first seen.
type Entry struct {
	FirstSeenAt  time.Time
	CategoryPath string
}

// Ledger is a process-wide set of identity keys seen during the current
// run. It is safe for concurrent use; check-then-mark is a single
// critical section so two racing callers can never both observe "not
// present". The ledger is owned by the orchestrator and passed to
// workers explicitly, never held as package state.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]Entry
	now     func() time.Time
}

// New creates an empty Ledger.
func New() *Ledger {
	return &Ledger{
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

// CheckAndMark records key if it was not already present and returns
// true for the first caller only (first-writer-wins). Empty keys are
// rejected.
func (l *Ledger) CheckAndMark(key, categoryPath string) bool {
	if key == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[key]; ok {
		return false
	}
	l.entries[key] = Entry{
		FirstSeenAt:  l.now(),
		CategoryPath: categoryPath,
	}
	return true
}

// Entry returns the first-seen record for key.
func (l *Ledger) Entry(key string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[key]
	return entry, ok
}

// Len reports how many distinct keys have been marked this run.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
