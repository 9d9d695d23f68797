package device

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func phone() Traits {
	return Traits{
		CanvasDigest: "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAMgAAAAyCAYAAAAZUZThAAA",
		ScreenWidth:  412,
		ScreenHeight: 915,
		Cores:        8,
		Platform:     "Linux armv81",
		ColorDepth:   24,
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	assert.Equal(t, Fingerprint(phone()), Fingerprint(phone()))
	assert.True(t, strings.HasPrefix(Fingerprint(phone()), "HW-V3-"))
}

func TestFingerprint_ChangesWithHardware(t *testing.T) {
	other := phone()
	other.Cores = 4
	assert.NotEqual(t, Fingerprint(phone()), Fingerprint(other))

	other = phone()
	other.CanvasDigest += "x"
	assert.NotEqual(t, Fingerprint(phone()), Fingerprint(other))
}

func TestFingerprint_Fallback(t *testing.T) {
	tr := phone()
	tr.CanvasDigest = ""
	assert.Equal(t, "FALLBACK-412-8", Fingerprint(tr))
}

func TestRollingHash(t *testing.T) {
	// Same recurrence as the classic 31-multiplier string hash.
	assert.Equal(t, int32(0), rollingHash(""))
	assert.Equal(t, int32(97), rollingHash("a"))
	assert.Equal(t, int32(96354), rollingHash("abc"))
	// wraps instead of overflowing
	assert.NotPanics(t, func() { rollingHash(strings.Repeat("z", 10000)) })
}

func TestFingerprint_HexIsUpperCase(t *testing.T) {
	fp := Fingerprint(phone())
	hex := strings.TrimPrefix(fp, "HW-V3-")
	assert.Equal(t, strings.ToUpper(hex), hex)
	assert.NotContains(t, hex, "-")
}
