package interview

import (
	"sync"
	"time"
)

// Entry is one transcript line.
type Entry struct {
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Transcript is an append-only transcript store. Lines land in
// finalization order: the order Append is called, never re-sorted.
type Transcript struct {
	mu      sync.Mutex
	entries []Entry

	// OnAppend fires for every new line.
	OnAppend func(Entry)
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{}
}

// Append adds one line and returns it.
func (t *Transcript) Append(speaker, text string) Entry {
	entry := Entry{
		Speaker:   speaker,
		Text:      text,
		Timestamp: time.Now(),
	}

	t.mu.Lock()
	t.entries = append(t.entries, entry)
	cb := t.OnAppend
	t.mu.Unlock()

	if cb != nil {
		cb(entry)
	}
	return entry
}

// Snapshot returns a copy of all lines.
func (t *Transcript) Snapshot() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of lines.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
