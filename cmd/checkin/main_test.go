package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"classcheck/internal/backend"
	"classcheck/internal/profile"
	"classcheck/internal/session"
	"classcheck/internal/timetable"
)

func TestFillForm_KeepsTypedValues(t *testing.T) {
	form := session.Form{Roll: "21CS01", Name: "Asha K"}
	fillForm(&form, profile.Result{Fields: profile.Fields{Name: "Asha", Reg: "R-11", Email: "asha@example.edu"}})

	assert.Equal(t, "Asha K", form.Name)
	assert.Equal(t, "R-11", form.Reg)
	assert.Equal(t, "asha@example.edu", form.Email)
	assert.Empty(t, form.Mobile)
}

func TestHostTraits_StableFingerprintInputs(t *testing.T) {
	a := hostTraits("probe")
	b := hostTraits("probe")
	assert.Equal(t, a, b)
	assert.Equal(t, "probe", a.CanvasDigest)
	assert.Positive(t, a.Cores)
}

func TestSlotLine(t *testing.T) {
	ongoing := timetable.Slot{
		Class: backend.Class{StartRaw: "10:00", EndRaw: "11:00", Subject: "Networks", Faculty: "Dr. Rao"},
		Start: 600, End: 660, State: timetable.Ongoing,
	}
	line := slotLine(ongoing, 630)
	assert.True(t, strings.HasPrefix(line, "10:00-11:00 Networks"))
	assert.True(t, strings.HasSuffix(line, "50%"))

	cancelled := ongoing
	cancelled.IsCancelled = true
	cancelled.CancelNote = "faculty on leave"
	assert.True(t, strings.HasSuffix(slotLine(cancelled, 630), "CANCELLED (faculty on leave)"))
}
