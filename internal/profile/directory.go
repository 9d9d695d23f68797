// Package profile fills in a student's details from the on-device cache and
// the roster lookup.
package profile

import (
	"context"
	"errors"

	"classcheck/internal/backend"
	"classcheck/internal/localstore"
)

const keyPrefix = "student_"

// Fields are the identity fields of the submission form.
type Fields struct {
	Name   string `json:"name"`
	Reg    string `json:"reg"`
	Mobile string `json:"mobile"`
	Email  string `json:"email"`
}

// Lookuper queries the roster.
type Lookuper interface {
	Lookup(ctx context.Context, roll, deviceID string) (backend.Profile, error)
}

type Directory struct {
	store localstore.Store
	src   Lookuper
}

func NewDirectory(store localstore.Store, src Lookuper) *Directory {
	return &Directory{store: store, src: src}
}

// Result of Resolve. Remote is set when the roster answered with a match.
type Result struct {
	Fields Fields
	Cached bool
	Remote *backend.Profile
}

func (d *Directory) Cached(roll string) (Fields, bool) {
	var f Fields
	if err := localstore.GetJSON(d.store, keyPrefix+roll, &f); err != nil {
		return Fields{}, false
	}
	return f, true
}

func (d *Directory) Save(roll string, f Fields) error {
	return localstore.SetJSON(d.store, keyPrefix+roll, f)
}

// Resolve returns cached fields immediately available for roll, overridden by
// the roster entry when the lookup succeeds. A lookup failure is returned
// together with whatever the cache held.
func (d *Directory) Resolve(ctx context.Context, roll, deviceID string) (Result, error) {
	var res Result
	if roll == "" {
		return res, errors.New("roll number required")
	}
	res.Fields, res.Cached = d.Cached(roll)

	p, err := d.src.Lookup(ctx, roll, deviceID)
	if err != nil {
		return res, err
	}
	if !p.Found {
		return res, nil
	}
	res.Remote = &p
	res.Fields = Fields{Name: p.Name, Reg: p.Reg, Mobile: p.Mobile, Email: p.Email}
	return res, d.Save(roll, res.Fields)
}
