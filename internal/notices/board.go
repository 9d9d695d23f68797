// Package notices decides which instructor notice is shown and remembers the
// ones a student dismissed.
package notices

import (
	"context"
	"encoding/base64"
	"strings"

	"classcheck/internal/backend"
	"classcheck/internal/localstore"
)

const dismissedPrefix = "dismissed_"

// ID derives a stable identifier from the first 15 characters of a notice.
func ID(msg string) string {
	r := []rune(msg)
	if len(r) > 15 {
		r = r[:15]
	}
	return strings.TrimRight(base64.StdEncoding.EncodeToString([]byte(string(r))), "=")
}

// Source fetches the notice feed, oldest first.
type Source interface {
	Notices(ctx context.Context) ([]backend.Notice, error)
}

// Board tracks dismissals in durable storage.
type Board struct {
	store localstore.Store
}

func NewBoard(store localstore.Store) *Board {
	return &Board{store: store}
}

// State is what the client shows: the active notice card, if any, and the
// full feed newest first.
type State struct {
	Active  *backend.Notice
	History []backend.Notice
}

// Evaluate picks the active notice. Only the most recent notice is ever shown;
// once dismissed, older notices stay in the history list only.
func (b *Board) Evaluate(feed []backend.Notice) State {
	st := State{History: Newest(feed)}
	if len(feed) == 0 {
		return st
	}
	latest := feed[len(feed)-1]
	if !b.Dismissed(latest) {
		st.Active = &latest
	}
	return st
}

// Load fetches the feed and evaluates it. Fetch errors are returned for the
// caller to log; they are never fatal to the session.
func (b *Board) Load(ctx context.Context, src Source) (State, error) {
	feed, err := src.Notices(ctx)
	if err != nil {
		return State{}, err
	}
	return b.Evaluate(feed), nil
}

func (b *Board) Dismiss(n backend.Notice) error {
	return b.store.Set(dismissedPrefix+ID(n.Msg), "true")
}

func (b *Board) Dismissed(n backend.Notice) bool {
	_, ok, err := b.store.Get(dismissedPrefix + ID(n.Msg))
	return err == nil && ok
}

// Newest returns a copy of feed in reverse order.
func Newest(feed []backend.Notice) []backend.Notice {
	out := make([]backend.Notice, len(feed))
	for i, n := range feed {
		out[len(feed)-1-i] = n
	}
	return out
}
