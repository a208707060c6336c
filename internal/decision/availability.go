package decision

import "sync/atomic"

// Availability is the process-wide Active/Paused flag. It starts Active.
//
// Decide reads the flag once on entry, so a request that read Active just
// before a pause may still complete. That window is accepted.
type Availability struct {
	paused atomic.Bool
}

func NewAvailability() *Availability { return &Availability{} }

func (a *Availability) Active() bool { return !a.paused.Load() }

// Pause reports whether the state changed.
func (a *Availability) Pause() bool { return a.paused.CompareAndSwap(false, true) }

// Resume reports whether the state changed.
func (a *Availability) Resume() bool { return a.paused.CompareAndSwap(true, false) }
