package attendance

import "time"

// Event statuses.
const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
	StatusFlagged   = "flagged"
)

// Student is a roster entry.
type Student struct {
	Roll   string `json:"roll"`
	Reg    string `json:"reg"`
	Name   string `json:"name"`
	Mobile string `json:"mobile"`
	Email  string `json:"email"`
}

// Pairing binds one identity to one device fingerprint.
type Pairing struct {
	Roll     string    `json:"roll"`
	DeviceID string    `json:"device_id"`
	PairedAt time.Time `json:"paired_at"`
	LastSeen time.Time `json:"last_seen"`
}

// Event is a recorded attendance submission.
type Event struct {
	ID        string    `json:"id"`
	Roll      string    `json:"roll"`
	DeviceID  string    `json:"device_id"`
	When      time.Time `json:"occurred_at"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Distance  float64   `json:"distance"`
	BioMarker string    `json:"bio_marker"`
	Status    string    `json:"status"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EventFilter narrows ListEvents.
type EventFilter struct {
	Roll     string
	DeviceID string
	Status   string
	Since    time.Time
	Limit    int
	Offset   int
}
