package detect

import (
	"sync"
	"time"

	"github.com/invigilo/invigilo/internal/models"
)

// Cooldown is the minimum interval between two accepted events of the same
// violation type.
const Cooldown = 3000 * time.Millisecond

// Debouncer collapses bursty raw detections into at most one logical event
// per cooldown window, independently per violation type. One instance is
// shared by every signal source of a session; it is the sole synchronization
// point bounding event rate.
type Debouncer struct {
	mu        sync.Mutex
	lastFired map[models.ViolationType]time.Time
}

func NewDebouncer() *Debouncer {
	return &Debouncer{
		lastFired: make(map[models.ViolationType]time.Time),
	}
}

// ShouldFire reports whether an event of the given type may be emitted at
// now. State is updated only on a firing decision, never on suppression, so
// rapid repeats inside the window collapse to zero additional events. An
// absent entry fires immediately.
func (d *Debouncer) ShouldFire(t models.ViolationType, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	last, seen := d.lastFired[t]
	if seen && now.Sub(last) < Cooldown {
		return false
	}
	d.lastFired[t] = now
	return true
}
