package heading

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircularDistance(t *testing.T) {
	tests := []struct {
		a, b, want float64
	}{
		{350, 10, 20},
		{10, 350, 20},
		{0, 180, 180},
		{200, 200, 0},
		{90, 270, 180},
		{-10, 10, 20},
		{720, 0, 0},
	}
	for _, tt := range tests {
		got := CircularDistance(tt.a, tt.b)
		assert.InDelta(t, tt.want, got, 1e-9, "a=%v b=%v", tt.a, tt.b)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 180.0)
		assert.InDelta(t, got, CircularDistance(tt.b, tt.a), 1e-9)
	}
}

func TestIngest_FirstSampleSeeds(t *testing.T) {
	f := New(DefaultTarget, DefaultTolerance)
	assert.Equal(t, 123, f.Ingest(123.4))
	h, ok := f.Heading()
	assert.True(t, ok)
	assert.Equal(t, 123, h)
}

func TestIngest_FastFactorAwayFromTarget(t *testing.T) {
	f := New(DefaultTarget, DefaultTolerance)
	f.Ingest(0)
	// raw 100 is 100° from target: factor 0.3.
	assert.Equal(t, 30, f.Ingest(100))
}

func TestIngest_SlowFactorNearTarget(t *testing.T) {
	f := New(DefaultTarget, DefaultTolerance)
	f.Ingest(100)
	// raw 210 is 10° from target: factor 0.05, 100 + 110*0.05 = 105.5.
	assert.Equal(t, 106, f.Ingest(210))
}

func TestIngest_WrapsAcrossNorth(t *testing.T) {
	f := New(DefaultTarget, DefaultTolerance)
	f.Ingest(350)
	// diff = 10 - 350 = -340 -> +20, factor 0.3 -> 356.
	assert.Equal(t, 356, f.Ingest(10))
	// and back the other way.
	g := New(DefaultTarget, DefaultTolerance)
	g.Ingest(10)
	assert.Equal(t, 4, g.Ingest(350))
}

func TestIngest_ConvergesForBothRegimes(t *testing.T) {
	tests := []struct {
		name     string
		start    float64
		target   float64
		maxSteps int
	}{
		{"slow regime near target", 0, 200, 200},
		{"fast regime away from target", 0, 90, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(DefaultTarget, DefaultTolerance)
			f.Ingest(tt.start)
			steps := 0
			for ; steps < tt.maxSteps; steps++ {
				if h := f.Ingest(tt.target); h == int(tt.target) {
					break
				}
			}
			require.Less(t, steps, tt.maxSteps)
		})
	}
}

func TestVerified(t *testing.T) {
	f := New(DefaultTarget, DefaultTolerance)
	assert.False(t, f.Verified(), "no samples yet")

	f.Ingest(200)
	assert.True(t, f.Verified())

	f.Reset()
	f.Ingest(240)
	assert.True(t, f.Verified(), "exactly at tolerance")

	f.Reset()
	f.Ingest(241)
	assert.False(t, f.Verified())

	f.Reset()
	f.Ingest(165)
	assert.True(t, f.Verified())
}

func TestIngest_IgnoresNonFinite(t *testing.T) {
	f := New(DefaultTarget, DefaultTolerance)
	f.Ingest(50)
	assert.Equal(t, 50, f.Ingest(math.NaN()))
	assert.Equal(t, 50, f.Ingest(math.Inf(1)))
}

func TestReset(t *testing.T) {
	f := New(DefaultTarget, DefaultTolerance)
	f.Ingest(200)
	f.Reset()
	_, ok := f.Heading()
	assert.False(t, ok)
	assert.False(t, f.Verified())
}
