package device

import (
	"strconv"
	"strings"
	"unicode/utf16"
)

// Traits are the rendering and hardware characteristics the fingerprint is
// derived from. CanvasDigest is whatever the host renderer produced for the
// fixed probe drawing (a data URL in browsers).
type Traits struct {
	CanvasDigest string `json:"canvas"`
	ScreenWidth  int    `json:"screen_width"`
	ScreenHeight int    `json:"screen_height"`
	Cores        int    `json:"cores"`
	Platform     string `json:"platform"`
	ColorDepth   int    `json:"color_depth"`
}

// Fingerprint derives the stable device id sent with every submission. The
// value only changes when the traits do, so it survives reloads but not a
// new browser or new hardware.
func Fingerprint(t Traits) string {
	if t.CanvasDigest == "" {
		return "FALLBACK-" + strconv.Itoa(t.ScreenWidth) + "-" + strconv.Itoa(t.Cores)
	}

	specs := strings.Join([]string{
		strconv.Itoa(t.ScreenWidth) + "x" + strconv.Itoa(t.ScreenHeight),
		strconv.Itoa(t.Cores),
		t.Platform,
		strconv.Itoa(t.ColorDepth),
	}, "|")

	h := rollingHash(t.CanvasDigest + specs)
	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	return "HW-V3-" + strings.ToUpper(strconv.FormatInt(abs, 16))
}

// rollingHash is h = h*31 + c over UTF-16 code units with 32-bit wraparound.
func rollingHash(s string) int32 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = (h << 5) - h + int32(c)
	}
	return h
}
