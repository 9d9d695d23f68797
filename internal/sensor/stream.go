// Package sensor models the position and orientation callbacks of a host
// platform as subscribable streams, so the session logic can be driven by
// real sensors and by synthetic sequences alike.
package sensor

import (
	"context"
	"errors"
	"sync"
	"time"

	"classcheck/internal/geo"
)

// ErrNoFix is returned by a Locator that has not seen a position yet.
var ErrNoFix = errors.New("no position fix")

// Fix is one position reading, or a positioning error.
type Fix struct {
	Coord    geo.Coordinate
	Accuracy float64
	At       time.Time
	Err      error
}

// Orientation is one compass reading. Absent means the device reported an
// orientation event without an absolute heading, i.e. it has no compass.
type Orientation struct {
	Alpha  float64
	Absent bool
}

// Subscription detaches a callback from its stream.
type Subscription interface {
	Unsubscribe()
}

// Stream delivers values of T to subscribers.
type Stream[T any] interface {
	Subscribe(fn func(T)) Subscription
}

// Feed is an in-process Stream. Publish calls subscribers synchronously in
// subscription order.
type Feed[T any] struct {
	mu   sync.Mutex
	next int
	subs map[int]func(T)
	ids  []int
}

func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{subs: make(map[int]func(T))}
}

func (f *Feed[T]) Subscribe(fn func(T)) Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.subs[id] = fn
	f.ids = append(f.ids, id)
	return &feedSub[T]{feed: f, id: id}
}

func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	fns := make([]func(T), 0, len(f.ids))
	for _, id := range f.ids {
		if fn, ok := f.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Subscribers returns the number of live subscriptions.
func (f *Feed[T]) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *Feed[T]) remove(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[id]; !ok {
		return
	}
	delete(f.subs, id)
	for i, v := range f.ids {
		if v == id {
			f.ids = append(f.ids[:i], f.ids[i+1:]...)
			break
		}
	}
}

type feedSub[T any] struct {
	feed *Feed[T]
	id   int
	once sync.Once
}

func (s *feedSub[T]) Unsubscribe() {
	s.once.Do(func() { s.feed.remove(s.id) })
}

// Locator answers a one-shot "where am I now" request.
type Locator interface {
	Current(ctx context.Context) (geo.Coordinate, error)
}

// LatestFix is a Locator backed by the newest fix seen on a position stream.
type LatestFix struct {
	mu   sync.Mutex
	last *Fix
	sub  Subscription
}

func NewLatestFix(s Stream[Fix]) *LatestFix {
	l := &LatestFix{}
	l.sub = s.Subscribe(func(f Fix) {
		if f.Err != nil {
			return
		}
		l.mu.Lock()
		l.last = &f
		l.mu.Unlock()
	})
	return l
}

func (l *LatestFix) Current(ctx context.Context) (geo.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return geo.Coordinate{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.last == nil {
		return geo.Coordinate{}, ErrNoFix
	}
	return l.last.Coord, nil
}

func (l *LatestFix) Close() { l.sub.Unsubscribe() }
