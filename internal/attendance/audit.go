package attendance

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// AuditStore is what the post-processing audit reads and writes.
type AuditStore interface {
	GetEvent(ctx context.Context, id string) (Event, error)
	DevicesSince(ctx context.Context, roll string, since time.Time) ([]string, error)
	UpdateEventStatus(ctx context.Context, id, status, note string) error
}

// Auditor settles pending events. An event is flagged when its roll was
// submitted from more than one device inside the audit window.
type Auditor struct {
	store  AuditStore
	window time.Duration
	now    func() time.Time
}

func NewAuditor(store AuditStore, window time.Duration) *Auditor {
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	return &Auditor{store: store, window: window, now: time.Now}
}

// Audit settles one event and returns the status it was given. Events that
// are no longer pending are left alone.
func (a *Auditor) Audit(ctx context.Context, eventID string) (string, error) {
	evt, err := a.store.GetEvent(ctx, eventID)
	if err != nil {
		return "", fmt.Errorf("get event %s: %w", eventID, err)
	}
	if evt.Status != StatusPending {
		return evt.Status, nil
	}

	devices, err := a.store.DevicesSince(ctx, evt.Roll, a.now().Add(-a.window))
	if err != nil {
		return "", fmt.Errorf("devices for %s: %w", evt.Roll, err)
	}

	status, note := StatusProcessed, ""
	if len(devices) > 1 {
		sort.Strings(devices)
		status = StatusFlagged
		note = fmt.Sprintf("%d devices in %s: %s", len(devices), a.window, strings.Join(devices, ", "))
	}
	if err := a.store.UpdateEventStatus(ctx, evt.ID, status, note); err != nil {
		return "", fmt.Errorf("update event %s: %w", evt.ID, err)
	}
	return status, nil
}
