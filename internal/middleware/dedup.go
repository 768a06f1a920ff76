package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TransactionDeduper remembers recently seen transaction keys so a revenue
// event that fires twice inside the window is only acted on once. It is safe
// for concurrent use; the tribute callback and the sweep run on different
// goroutines.
type TransactionDeduper struct {
	seen   map[string]time.Time
	mu     sync.Mutex
	window func() time.Duration
	now    func() time.Time
}

// NewTransactionDeduper creates a deduper with a fixed window. A nil clock
// means time.Now.
func NewTransactionDeduper(window time.Duration, now func() time.Time) *TransactionDeduper {
	return NewLiveTransactionDeduper(func() time.Duration { return window }, now)
}

// NewLiveTransactionDeduper reads the window on every Claim and Sweep, so a
// reloaded setting applies to entries already held.
func NewLiveTransactionDeduper(window func() time.Duration, now func() time.Time) *TransactionDeduper {
	if now == nil {
		now = time.Now
	}
	return &TransactionDeduper{
		seen:   make(map[string]time.Time),
		window: window,
		now:    now,
	}
}

// DedupKey identifies a logical transaction by its receiving realm and amount.
func DedupKey(realm uuid.UUID, amount float64) string {
	return realm.String() + ":" + strconv.FormatFloat(amount, 'f', -1, 64)
}

// Claim registers key and reports true, or reports false if an unexpired
// entry for key already exists.
func (d *TransactionDeduper) Claim(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if seenAt, exists := d.seen[key]; exists && now.Sub(seenAt) < d.window() {
		return false
	}
	d.seen[key] = now
	return true
}

// Sweep removes entries older than the window and returns how many went.
func (d *TransactionDeduper) Sweep() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	now, window := d.now(), d.window()
	removed := 0
	for key, seenAt := range d.seen {
		if now.Sub(seenAt) >= window {
			delete(d.seen, key)
			removed++
		}
	}
	return removed
}

func (d *TransactionDeduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Reset clears all entries (useful for testing)
func (d *TransactionDeduper) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]time.Time)
}
