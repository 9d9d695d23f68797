package sensor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classcheck/internal/geo"
)

func TestFeed_PublishInOrder(t *testing.T) {
	f := NewFeed[int]()
	var got []string
	f.Subscribe(func(v int) { got = append(got, "a") })
	f.Subscribe(func(v int) { got = append(got, "b") })

	f.Publish(1)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestFeed_Unsubscribe(t *testing.T) {
	f := NewFeed[Orientation]()
	calls := 0
	sub := f.Subscribe(func(Orientation) { calls++ })

	f.Publish(Orientation{Alpha: 10})
	sub.Unsubscribe()
	sub.Unsubscribe()
	f.Publish(Orientation{Alpha: 20})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, f.Subscribers())
}

func TestFeed_UnsubscribeInsideCallback(t *testing.T) {
	f := NewFeed[int]()
	var sub Subscription
	calls := 0
	sub = f.Subscribe(func(int) {
		calls++
		sub.Unsubscribe()
	})
	f.Publish(1)
	f.Publish(2)
	assert.Equal(t, 1, calls)
}

func TestLatestFix(t *testing.T) {
	f := NewFeed[Fix]()
	l := NewLatestFix(f)
	defer l.Close()

	_, err := l.Current(context.Background())
	assert.ErrorIs(t, err, ErrNoFix)

	f.Publish(Fix{Coord: geo.Coordinate{Lat: 1, Lon: 2}})
	f.Publish(Fix{Err: errors.New("timeout")})

	c, err := l.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, geo.Coordinate{Lat: 1, Lon: 2}, c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Current(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
