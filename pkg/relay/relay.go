// Package relay forwards editor code changes upstream without flooding
// the wire. Changes are debounced on the trailing edge; only the latest
// buffer is sent once typing pauses.
package relay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bep/debounce"
)

// SendFunc delivers a code snapshot. The destination is chosen by the
// caller each time it runs, so the relay never holds a stale transport.
type SendFunc func(code string)

// Relay debounces code snapshots.
type Relay struct {
	debounced func(func())
	send      SendFunc
	logger    *slog.Logger

	mu     sync.Mutex
	latest string
	set    bool
	sends  int
}

// New creates a relay that emits at most once per quiet interval.
func New(interval time.Duration, send SendFunc) *Relay {
	return &Relay{
		debounced: debounce.New(interval),
		send:      send,
		logger:    slog.Default().With("component", "relay"),
	}
}

// Update records the newest code buffer and (re)arms the debounce.
// Rapid successive calls collapse into a single emit carrying the
// final value.
func (r *Relay) Update(code string) {
	r.mu.Lock()
	r.latest = code
	r.set = true
	r.mu.Unlock()

	r.debounced(r.emit)
}

// Flush sends the latest buffer immediately, bypassing the debounce.
// Used on submit so the reviewer sees the final state. A no-op until
// Update has run at least once, so an untouched editor never produces
// an empty snapshot.
func (r *Relay) Flush() {
	r.emit()
}

// Sends returns how many snapshots have been emitted.
func (r *Relay) Sends() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sends
}

func (r *Relay) emit() {
	r.mu.Lock()
	if !r.set {
		r.mu.Unlock()
		return
	}
	code := r.latest
	r.sends++
	r.mu.Unlock()

	r.logger.Debug("emitting code snapshot", "chars", len(code))
	r.send(code)
}
