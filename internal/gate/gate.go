// Package gate fuses the presence factors into one signal.
package gate

import (
	"fmt"
	"math"
	"time"

	"classcheck/internal/geo"
	"classcheck/internal/pin"
)

// DefaultMaxDistance is the radius around the room that passes the GPS check.
const DefaultMaxDistance = 350.0

// Kind identifies a presence state. Kinds are ordered by evaluation priority.
type Kind int

const (
	OutOfRange Kind = iota + 1
	NotScanned
	FloorUnverified
	Verified
)

func (k Kind) String() string {
	switch k {
	case OutOfRange:
		return "out_of_range"
	case NotScanned:
		return "not_scanned"
	case FloorUnverified:
		return "floor_unverified"
	case Verified:
		return "verified"
	default:
		return "unknown"
	}
}

// Signal is the fused presence state. Distance is set for every signal; it
// is only meaningful to the user for OutOfRange.
type Signal struct {
	Kind     Kind
	Distance float64
}

func (s Signal) String() string {
	if s.Kind == OutOfRange {
		return fmt.Sprintf("%s(%.0fm)", s.Kind, s.Distance)
	}
	return s.Kind.String()
}

// Inputs are the current readings of every factor.
type Inputs struct {
	Position      geo.Coordinate
	Room          geo.Coordinate
	MaxDistance   float64
	Scanned       bool
	FloorVerified bool
}

// Evaluate returns the first failing factor in priority order (distance,
// proximity token, floor) or Verified. It is total: a non-finite distance is
// simply out of range.
func Evaluate(in Inputs) Signal {
	max := in.MaxDistance
	if max <= 0 {
		max = DefaultMaxDistance
	}
	d := geo.Distance(in.Position, in.Room)

	switch {
	case !geo.InRange(d, max):
		return Signal{Kind: OutOfRange, Distance: d}
	case !in.Scanned:
		return Signal{Kind: NotScanned, Distance: d}
	case !in.FloorVerified:
		return Signal{Kind: FloorUnverified, Distance: d}
	default:
		return Signal{Kind: Verified, Distance: d}
	}
}

// CanSubmit is the submit-enable rule: presence verified and the typed PIN
// equal to the PIN currently in force.
func CanSubmit(s Signal, pinInput string, now time.Time) bool {
	return s.Kind == Verified && pin.Matches(pinInput, now)
}

// Gauge maps distance to the 0–100 proximity bar.
func Gauge(distance, max float64) float64 {
	if max <= 0 || math.IsNaN(distance) || math.IsInf(distance, 0) {
		return 0
	}
	return math.Max(0, 100-distance*(100/max))
}
