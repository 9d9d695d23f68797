// Package proximity validates the QR-borne vault key and the grace window
// that follows a successful scan.
//
// The expected key is a long-lived shared constant, not a nonce. Anyone who
// learns the URL can replay it inside the grace window; the other presence
// factors are what make that replay useless from outside the room.
package proximity

import (
	"net/url"
	"strconv"
	"time"

	"classcheck/internal/localstore"
)

const (
	// QueryParam carries the key in the entry URL.
	QueryParam = "vault"
	// StorageKey holds the last verification time in unix milliseconds.
	StorageKey = "qr_verified_at"
	// DefaultGrace is how long a scan stays valid without re-scanning.
	DefaultGrace = 5 * time.Minute
)

// Checker decides whether the proximity credential is currently valid.
type Checker struct {
	store    localstore.Store
	expected string
	grace    time.Duration
}

func NewChecker(store localstore.Store, expectedKey string, grace time.Duration) *Checker {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Checker{store: store, expected: expectedKey, grace: grace}
}

// Check validates presented against the expected key. A match records now
// as the verification time. Without a match, a verification recorded less
// than the grace window ago still counts. Storage failures read as "not
// verified" rather than an error, including a failure to record a match.
func (c *Checker) Check(presented string, now time.Time) bool {
	if c.expected != "" && presented == c.expected {
		return c.store.Set(StorageKey, strconv.FormatInt(now.UnixMilli(), 10)) == nil
	}
	at, ok := c.VerifiedAt()
	if !ok {
		return false
	}
	return now.Sub(at) < c.grace
}

// VerifiedAt returns the stored verification time, if any.
func (c *Checker) VerifiedAt() (time.Time, bool) {
	raw, ok, err := c.store.Get(StorageKey)
	if err != nil || !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// ExtractKey returns the vault key carried by rawURL and the same URL with
// the key removed, so it does not linger in the visible address.
func ExtractKey(rawURL string) (key, stripped string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", rawURL
	}
	q := u.Query()
	key = q.Get(QueryParam)
	if key == "" {
		return "", rawURL
	}
	q.Del(QueryParam)
	u.RawQuery = q.Encode()
	return key, u.String()
}
