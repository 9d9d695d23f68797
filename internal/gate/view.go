package gate

import (
	"fmt"
	"math"
)

// Tone is the colour family a renderer uses for a state.
type Tone string

const (
	ToneDanger  Tone = "red"
	ToneInfo    Tone = "blue"
	ToneWarning Tone = "yellow"
	ToneSuccess Tone = "green"
)

// View is what a rendering layer needs for one presence state.
type View struct {
	Tag            string
	Title          string
	Subtitle       string
	Icon           string
	Tone           Tone
	ShowForm       bool
	ShowScanAction bool
	Pulse          bool
	Bounce         bool
}

var views = map[Kind]View{
	OutOfRange: {
		Tag:   "ACCESS DENIED",
		Title: "OUT OF RANGE",
		Icon:  "fa-location-dot",
		Tone:  ToneDanger,
	},
	NotScanned: {
		Tag:            "SCAN REQUIRED",
		Title:          "SCAN QR CODE",
		Subtitle:       "Please scan the QR code",
		Icon:           "fa-qrcode",
		Tone:           ToneInfo,
		ShowScanAction: true,
		Pulse:          true,
	},
	FloorUnverified: {
		Tag:      "FLOOR SECURITY",
		Title:    "VERIFYING FLOOR",
		Subtitle: "Hold phone steady in front of the QR",
		Icon:     "fa-layer-group",
		Tone:     ToneWarning,
		Bounce:   true,
	},
	Verified: {
		Tag:      "IN CLASS VERIFIED",
		Title:    "IN CLASS VERIFIED",
		Icon:     "fa-unlock-alt",
		Tone:     ToneSuccess,
		ShowForm: true,
	},
}

// ViewFor renders s through the fixed mapping table. room names the
// classroom in the out-of-range hint.
func ViewFor(s Signal, room string) View {
	v, ok := views[s.Kind]
	if !ok {
		return View{Title: "UNKNOWN", Tone: ToneDanger}
	}
	if s.Kind == OutOfRange {
		if math.IsNaN(s.Distance) || math.IsInf(s.Distance, 0) {
			v.Subtitle = fmt.Sprintf("Move closer to Room %s", room)
		} else {
			v.Subtitle = fmt.Sprintf("Move closer to Room %s (%.0fm)", room, s.Distance)
		}
	}
	return v
}
