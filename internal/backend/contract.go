// Package backend holds the wire contract of the record-keeper: a single POST
// endpoint dispatching on an "action" field, with JSON bodies both ways.
package backend

const (
	ActionLookup       = "lookup"
	ActionGetNotice    = "getNotice"
	ActionGetTimetable = "getTimetable"
	ActionSubmit       = "submit"
	ActionChallenge    = "challenge"
)

// AccountMarkerPrefix marks a bioSignature that carries an account challenge
// token instead of a platform-authenticator marker.
const AccountMarkerPrefix = "ACCOUNT:"

// Submission is one attendance submission. It is built once per user action
// and sent exactly once.
type Submission struct {
	DynamicPIN   string  `json:"dynamicPin" validate:"required|len:4"`
	Token        string  `json:"token" validate:"required"`
	Roll         string  `json:"roll" validate:"required"`
	Name         string  `json:"name" validate:"required"`
	Reg          string  `json:"reg" validate:"required"`
	Mobile       string  `json:"mobile"`
	Email        string  `json:"email" validate:"email"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	DeviceID     string  `json:"deviceId" validate:"required"`
	BioSignature string  `json:"bioSignature" validate:"required"`
}

// Request is the union of every action's body, as decoded by the server.
type Request struct {
	Action string `json:"action"`
	Type   string `json:"type,omitempty"`
	Submission
}

type lookupRequest struct {
	Action   string `json:"action"`
	Type     string `json:"type"`
	Roll     string `json:"roll"`
	DeviceID string `json:"deviceId,omitempty"`
}

type actionRequest struct {
	Action string `json:"action"`
}

type challengeRequest struct {
	Action   string `json:"action"`
	Roll     string `json:"roll"`
	Reg      string `json:"reg"`
	DeviceID string `json:"deviceId"`
}

// ChallengeResponse answers ActionChallenge. Token is only set on success.
type ChallengeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Token   string `json:"token,omitempty"`
}

type submitRequest struct {
	Action string `json:"action"`
	Submission
}

// Profile is a roster entry as returned by lookup.
type Profile struct {
	Found       bool   `json:"found"`
	Secured     bool   `json:"secured"`
	IsNewDevice bool   `json:"isNewDevice"`
	Name        string `json:"name"`
	Reg         string `json:"reg"`
	Mobile      string `json:"mobile"`
	Email       string `json:"email"`
}

type LookupResponse struct {
	User Profile `json:"user"`
}

type Notice struct {
	Msg  string `json:"msg"`
	Icon string `json:"icon,omitempty"`
	Link string `json:"link,omitempty"`
}

type NoticesResponse struct {
	Notices []Notice `json:"notices"`
}

// Class is one timetable slot. StartRaw and EndRaw are "HH:MM" in the
// institution's local time; Day is an upper-case weekday name.
type Class struct {
	Day         string `json:"day"`
	StartRaw    string `json:"startRaw"`
	EndRaw      string `json:"endRaw"`
	Subject     string `json:"subject"`
	Faculty     string `json:"faculty"`
	Image       string `json:"image,omitempty"`
	IsCancelled bool   `json:"isCancelled"`
	CancelNote  string `json:"cancelNote,omitempty"`
}

type Holiday struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TimetableResponse carries the weekly timetable and holidays keyed by ISO
// date (2006-01-02).
type TimetableResponse struct {
	Timetable []Class            `json:"timetable"`
	Holidays  map[string]Holiday `json:"holidays,omitempty"`
}

// SubmitResponse reports the outcome of a submission. Error is a
// human-readable rejection reason when Success is false.
type SubmitResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	EventID string `json:"eventId,omitempty"`
	Receipt string `json:"receipt,omitempty"`
}
