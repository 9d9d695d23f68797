package gate

// Debouncer forwards a signal only when its kind differs from the last one
// forwarded. Sensor ticks that do not change the state are dropped.
type Debouncer struct {
	last Kind
}

// Observe reports whether s is a transition and records it.
func (d *Debouncer) Observe(s Signal) bool {
	if s.Kind == d.last {
		return false
	}
	d.last = s.Kind
	return true
}

// Last returns the kind of the last forwarded signal, zero before the first.
func (d *Debouncer) Last() Kind { return d.last }

// Reset forgets the last state so the next signal is always forwarded.
func (d *Debouncer) Reset() { d.last = 0 }
