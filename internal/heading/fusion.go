// Package heading smooths raw compass readings and decides whether the device
// is facing the room's expected direction.
package heading

import "math"

const (
	// DefaultTarget is the expected facing direction for the room in degrees.
	DefaultTarget = 200.0
	// DefaultTolerance is the accepted circular distance from the target.
	DefaultTolerance = 40.0

	nearTarget = 30.0
	slowFactor = 0.05
	fastFactor = 0.3
)

// Fusion holds the exponentially weighted heading estimate for one session.
// The zero value is not usable; call New.
type Fusion struct {
	target    float64
	tolerance float64

	smoothed    float64
	initialized bool
	heading     int
}

// New returns an uninitialized fusion filter for the given target and tolerance.
func New(target, tolerance float64) *Fusion {
	return &Fusion{target: normalize(target), tolerance: tolerance}
}

// Ingest folds a raw compass angle into the estimate and returns the smoothed
// heading rounded to a whole degree in [0, 360). Non-finite samples are ignored.
func (f *Fusion) Ingest(raw float64) int {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return f.heading
	}
	raw = normalize(raw)

	if !f.initialized {
		f.smoothed = raw
		f.initialized = true
	} else {
		diff := raw - f.smoothed
		if diff > 180 {
			diff -= 360
		} else if diff <= -180 {
			diff += 360
		}

		factor := fastFactor
		if CircularDistance(raw, f.target) < nearTarget {
			factor = slowFactor
		}
		f.smoothed = normalize(f.smoothed + diff*factor)
	}

	f.heading = int(math.Round(f.smoothed)) % 360
	return f.heading
}

// Heading returns the last reported heading and whether any sample was seen.
func (f *Fusion) Heading() (int, bool) {
	return f.heading, f.initialized
}

// Verified reports whether the current heading lies within tolerance of the target.
func (f *Fusion) Verified() bool {
	if !f.initialized {
		return false
	}
	return CircularDistance(float64(f.heading), f.target) <= f.tolerance
}

// Reset drops the estimate, as on a new session.
func (f *Fusion) Reset() {
	f.smoothed, f.heading, f.initialized = 0, 0, false
}

// CircularDistance is the shortest angular distance between a and b, in [0, 180].
func CircularDistance(a, b float64) float64 {
	d := math.Abs(normalize(a) - normalize(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}

func normalize(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
