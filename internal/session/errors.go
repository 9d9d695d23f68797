package session

import (
	"errors"

	"classcheck/internal/backend"
	"classcheck/internal/device"
)

var (
	// ErrSubmitInFlight is returned while a previous Submit is outstanding.
	ErrSubmitInFlight = errors.New("submission already in progress")
	// ErrSessionComplete is returned after a successful submission.
	ErrSessionComplete = errors.New("attendance already marked in this session")
	// ErrGateClosed means the presence signal is not Verified or the PIN does
	// not match the one in force.
	ErrGateClosed = errors.New("presence not verified")
	// ErrLocationRequired means no fresh position could be obtained.
	ErrLocationRequired = errors.New("location required")
)

// Message maps a Submit error to the text shown to the student. Backend
// rejections are passed through verbatim.
func Message(err error) string {
	var rej *backend.RejectedError
	switch {
	case err == nil:
		return "Attendance Marked!"
	case errors.As(err, &rej):
		return rej.Reason
	case errors.Is(err, device.ErrNotSupported):
		return "Biometrics not supported"
	case errors.Is(err, device.ErrDeclined), errors.Is(err, device.ErrCredentialMismatch):
		return "Verification Failed"
	case errors.Is(err, device.ErrHardwareAbsent):
		return "No biometric hardware on this device"
	case errors.Is(err, ErrLocationRequired):
		return "Location Required"
	case errors.Is(err, backend.ErrUnavailable):
		return "Network Error"
	case errors.Is(err, ErrSubmitInFlight):
		return "Submission in progress"
	case errors.Is(err, ErrSessionComplete):
		return "Attendance already marked"
	case errors.Is(err, ErrGateClosed):
		return "Presence not verified"
	default:
		return "Something went wrong"
	}
}
