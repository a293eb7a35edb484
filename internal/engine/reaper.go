package engine

import (
	"sync"
	"time"
)

// Reaper is a delay queue of one-shot actions keyed by job id.
type Reaper struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

// NewReaper creates an empty reaper.
func NewReaper() *Reaper {
	return &Reaper{
		timers: make(map[string]*time.Timer),
	}
}

// Arm schedules fn to run once after delay. Arming an id that is already
// pending replaces the earlier action. Arm is a no-op after Stop.
func (r *Reaper) Arm(id string, delay time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}
	if prev, ok := r.timers[id]; ok {
		prev.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		r.mu.Lock()
		if r.timers[id] != t {
			// Replaced or stopped after firing began.
			r.mu.Unlock()
			return
		}
		delete(r.timers, id)
		r.mu.Unlock()

		fn()
	})
	r.timers[id] = t
}

// Pending returns the number of armed actions.
func (r *Reaper) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// Stop disarms every pending action and rejects new ones.
func (r *Reaper) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = true
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
}
