package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type auditStore struct {
	events  map[string]Event
	devices []string
	since   time.Time
	updates map[string][2]string
}

func (s *auditStore) GetEvent(_ context.Context, id string) (Event, error) {
	e, ok := s.events[id]
	if !ok {
		return Event{}, errors.New("no rows")
	}
	return e, nil
}

func (s *auditStore) DevicesSince(_ context.Context, _ string, since time.Time) ([]string, error) {
	s.since = since
	return s.devices, nil
}

func (s *auditStore) UpdateEventStatus(_ context.Context, id, status, note string) error {
	s.updates[id] = [2]string{status, note}
	return nil
}

func newAuditFixture(devices ...string) (*Auditor, *auditStore, time.Time) {
	now := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	st := &auditStore{
		events:  map[string]Event{"e1": {ID: "e1", Roll: "21CS01", DeviceID: "HW-V3-A", Status: StatusPending}},
		devices: devices,
		updates: map[string][2]string{},
	}
	a := NewAuditor(st, 48*time.Hour)
	a.now = func() time.Time { return now }
	return a, st, now
}

func TestAudit_SingleDeviceProcessed(t *testing.T) {
	a, st, now := newAuditFixture("HW-V3-A")

	status, err := a.Audit(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, status)
	assert.Equal(t, [2]string{StatusProcessed, ""}, st.updates["e1"])
	assert.Equal(t, now.Add(-48*time.Hour), st.since)
}

func TestAudit_MultipleDevicesFlagged(t *testing.T) {
	a, st, _ := newAuditFixture("HW-V3-B", "HW-V3-A")

	status, err := a.Audit(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, StatusFlagged, status)
	assert.Contains(t, st.updates["e1"][1], "HW-V3-A, HW-V3-B")
}

func TestAudit_SettledEventUntouched(t *testing.T) {
	a, st, _ := newAuditFixture("HW-V3-A", "HW-V3-B")
	e := st.events["e1"]
	e.Status = StatusProcessed
	st.events["e1"] = e

	status, err := a.Audit(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, status)
	assert.Empty(t, st.updates)
}

func TestAudit_MissingEvent(t *testing.T) {
	a, _, _ := newAuditFixture()
	_, err := a.Audit(context.Background(), "nope")
	assert.Error(t, err)
}
