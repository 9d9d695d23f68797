package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDebouncer_OnlyTransitions(t *testing.T) {
	var d Debouncer
	seq := []Signal{
		{Kind: OutOfRange, Distance: 500},
		{Kind: OutOfRange, Distance: 480},
		{Kind: OutOfRange, Distance: 460},
		{Kind: NotScanned},
		{Kind: NotScanned},
		{Kind: Verified},
		{Kind: FloorUnverified},
		{Kind: FloorUnverified},
	}
	var forwarded []Kind
	for _, s := range seq {
		if d.Observe(s) {
			forwarded = append(forwarded, s.Kind)
		}
	}
	assert.Equal(t, []Kind{OutOfRange, NotScanned, Verified, FloorUnverified}, forwarded)
	assert.Equal(t, FloorUnverified, d.Last())
}

func TestDebouncer_Reset(t *testing.T) {
	var d Debouncer
	assert.True(t, d.Observe(Signal{Kind: Verified}))
	assert.False(t, d.Observe(Signal{Kind: Verified}))
	d.Reset()
	assert.True(t, d.Observe(Signal{Kind: Verified}))
}

func TestViewFor_Table(t *testing.T) {
	out := ViewFor(Signal{Kind: OutOfRange, Distance: 412.4}, "60")
	assert.Equal(t, "OUT OF RANGE", out.Title)
	assert.Equal(t, "Move closer to Room 60 (412m)", out.Subtitle)
	assert.Equal(t, ToneDanger, out.Tone)
	assert.False(t, out.ShowForm)

	scan := ViewFor(Signal{Kind: NotScanned}, "60")
	assert.True(t, scan.ShowScanAction)
	assert.Equal(t, ToneInfo, scan.Tone)

	floor := ViewFor(Signal{Kind: FloorUnverified}, "60")
	assert.Equal(t, ToneWarning, floor.Tone)

	ok := ViewFor(Signal{Kind: Verified}, "60")
	assert.True(t, ok.ShowForm)
	assert.Equal(t, ToneSuccess, ok.Tone)

	assert.Equal(t, "UNKNOWN", ViewFor(Signal{}, "60").Title)
}
