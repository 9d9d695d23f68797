// Package history keeps the student's own record of successful submissions on
// the device.
package history

import (
	"errors"
	"time"

	"classcheck/internal/localstore"
)

// Key is the durable storage key holding the JSON-encoded entries.
const Key = "my_attendance_history"

// DefaultDisplay is how many entries the client lists.
const DefaultDisplay = 3

type Entry struct {
	Name    string    `json:"name"`
	Roll    string    `json:"roll"`
	Room    string    `json:"room"`
	Time    string    `json:"time"`
	At      time.Time `json:"at"`
	EventID string    `json:"eventId,omitempty"`
}

// Log is an append-only list capped at limit entries; the oldest entries are
// dropped first.
type Log struct {
	store localstore.Store
	limit int
	loc   *time.Location
	now   func() time.Time
}

func New(store localstore.Store, limit int, loc *time.Location) *Log {
	if loc == nil {
		loc = time.UTC
	}
	return &Log{store: store, limit: limit, loc: loc, now: time.Now}
}

// Append records a submission made now.
func (l *Log) Append(name, roll, room, eventID string) (Entry, error) {
	entries, err := l.All()
	if err != nil {
		return Entry{}, err
	}
	now := l.now().In(l.loc)
	e := Entry{
		Name:    name,
		Roll:    roll,
		Room:    room,
		Time:    now.Format("02 Jan, 03:04 PM"),
		At:      now,
		EventID: eventID,
	}
	entries = append(entries, e)
	if l.limit > 0 && len(entries) > l.limit {
		entries = entries[len(entries)-l.limit:]
	}
	return e, localstore.SetJSON(l.store, Key, entries)
}

// All returns every stored entry, oldest first.
func (l *Log) All() ([]Entry, error) {
	var entries []Entry
	err := localstore.GetJSON(l.store, Key, &entries)
	if errors.Is(err, localstore.ErrNotFound) {
		return nil, nil
	}
	return entries, err
}

// Recent returns up to n entries, newest first.
func (l *Log) Recent(n int) ([]Entry, error) {
	entries, err := l.All()
	if err != nil {
		return nil, err
	}
	if n > len(entries) || n <= 0 {
		n = len(entries)
	}
	out := make([]Entry, 0, n)
	for i := len(entries) - 1; i >= len(entries)-n; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

func (l *Log) Clear() error {
	return l.store.Delete(Key)
}
