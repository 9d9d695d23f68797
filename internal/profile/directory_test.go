package profile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classcheck/internal/backend"
	"classcheck/internal/localstore"
)

type stubLookup struct {
	p   backend.Profile
	err error
}

func (s stubLookup) Lookup(context.Context, string, string) (backend.Profile, error) {
	return s.p, s.err
}

func TestResolve(t *testing.T) {
	store := localstore.NewMemory()

	t.Run("roster overrides and caches", func(t *testing.T) {
		d := NewDirectory(store, stubLookup{p: backend.Profile{Found: true, Name: "Asha", Reg: "R-1"}})
		res, err := d.Resolve(context.Background(), "21CS01", "HW-V3-1")
		require.NoError(t, err)
		assert.False(t, res.Cached)
		require.NotNil(t, res.Remote)
		assert.Equal(t, "Asha", res.Fields.Name)

		f, ok := d.Cached("21CS01")
		require.True(t, ok)
		assert.Equal(t, "R-1", f.Reg)
	})

	t.Run("offline falls back to cache", func(t *testing.T) {
		d := NewDirectory(store, stubLookup{err: errors.New("offline")})
		res, err := d.Resolve(context.Background(), "21CS01", "")
		assert.Error(t, err)
		assert.True(t, res.Cached)
		assert.Equal(t, "Asha", res.Fields.Name)
	})

	t.Run("not found keeps cache", func(t *testing.T) {
		d := NewDirectory(store, stubLookup{p: backend.Profile{Found: false}})
		res, err := d.Resolve(context.Background(), "21CS01", "")
		require.NoError(t, err)
		assert.Nil(t, res.Remote)
		assert.Equal(t, "Asha", res.Fields.Name)
	})

	t.Run("empty roll", func(t *testing.T) {
		_, err := NewDirectory(store, stubLookup{}).Resolve(context.Background(), "", "")
		assert.Error(t, err)
	})
}

func TestTheme(t *testing.T) {
	s := localstore.NewMemory()
	assert.Equal(t, Dark, LoadTheme(s))

	th, err := ToggleTheme(s)
	require.NoError(t, err)
	assert.Equal(t, Light, th)
	assert.Equal(t, Light, LoadTheme(s))

	th, err = ToggleTheme(s)
	require.NoError(t, err)
	assert.Equal(t, Dark, th)
}
