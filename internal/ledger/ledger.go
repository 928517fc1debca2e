// Package ledger collects failure and warning records produced during a
// run. The ledger is append-only: entries are never mutated or removed.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one recorded issue. Entries appear in completion order, not
// input order.
type Entry struct {
	Timestamp string         `json:"timestamp"`
	RunID     string         `json:"run_id"`
	ItemIndex *int           `json:"item_index"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

// Ledger serializes appends from concurrent workers. Reads happen only
// after the workers have joined.
type Ledger struct {
	mu      sync.Mutex
	runID   string
	entries []Entry
	now     func() time.Time
}

// New creates an empty ledger tagged with a fresh run id.
func New() *Ledger {
	return &Ledger{
		runID:   uuid.NewString(),
		entries: make([]Entry, 0, 64),
		now:     time.Now,
	}
}

// RunID identifies this run in artifacts and the SQLite mirror.
func (l *Ledger) RunID() string {
	return l.runID
}

// Record appends an entry for one item. A negative itemIndex marks an
// issue not attributable to a specific item.
func (l *Ledger) Record(itemIndex int, message string, details map[string]any) {
	entry := Entry{
		Timestamp: l.now().UTC().Format(time.RFC3339Nano),
		RunID:     l.runID,
		Message:   message,
		Details:   details,
	}
	if itemIndex >= 0 {
		idx := itemIndex
		entry.ItemIndex = &idx
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Len reports the number of recorded entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Entries returns a snapshot copy.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// WriteFile persists the ledger as an indented JSON array.
func (l *Ledger) WriteFile(path string) error {
	payload, err := json.MarshalIndent(l.Entries(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal error ledger: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write error ledger %q: %w", path, err)
	}
	return nil
}
