// Package pin derives the rotating classroom PIN and the submit time token.
//
// Both values are pure functions of wall-clock time, so client and record-keeper
// must agree on the clock and the timezone. A skewed client clock produces a
// wrong PIN; this is a known weakness of the scheme, not something this
// package tries to hide.
package pin

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Window is the rotation interval of the PIN.
const Window = 5 * time.Minute

// Generate returns the 4-digit PIN valid for the 5-minute block containing t,
// evaluated in t's location.
func Generate(t time.Time) string {
	block := t.Minute() / 5
	return render((t.Day()*127 + t.Hour()*13 + block*57 + 1234) % 10000)
}

func render(v int) string {
	return fmt.Sprintf("%04d", v)
}

// Matches reports whether input equals the PIN for t. The comparison is on
// the string form, so "7" never matches "0007".
func Matches(input string, t time.Time) bool {
	return input == Generate(t)
}

// UntilRotation returns how long the PIN for t stays valid.
func UntilRotation(t time.Time) time.Duration {
	elapsed := time.Duration(t.Minute()%5)*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
	return Window - elapsed
}

// Countdown renders UntilRotation as m:ss, truncated to whole seconds.
func Countdown(t time.Time) string {
	secs := int(UntilRotation(t).Seconds())
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// TimeToken is the short token sent with every submission: the first eight
// characters of base64(hour ‖ minute ‖ salt), hour and minute unpadded.
func TimeToken(t time.Time, salt string) string {
	raw := strconv.Itoa(t.Hour()) + strconv.Itoa(t.Minute()) + salt
	enc := base64.StdEncoding.EncodeToString([]byte(raw))
	if len(enc) > 8 {
		enc = enc[:8]
	}
	return enc
}

// ValidTimeToken accepts token if it matches any minute within skew of now.
func ValidTimeToken(token string, now time.Time, salt string, skew time.Duration) bool {
	for d := -skew; d <= skew; d += time.Minute {
		if TimeToken(now.Add(d), salt) == token {
			return true
		}
	}
	return false
}
