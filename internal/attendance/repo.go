package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"classcheck/internal/backend"
)

// Repository persists the roster, device pairings, feeds and attendance
// events in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the schema if it does not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS students (
		roll        TEXT PRIMARY KEY,
		reg         TEXT NOT NULL DEFAULT '',
		name        TEXT NOT NULL DEFAULT '',
		mobile      TEXT NOT NULL DEFAULT '',
		email       TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS device_pairings (
		roll        TEXT PRIMARY KEY REFERENCES students(roll),
		device_id   TEXT NOT NULL,
		paired_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_seen   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_pairings_device ON device_pairings(device_id);

	CREATE TABLE IF NOT EXISTS notices (
		id          BIGSERIAL PRIMARY KEY,
		msg         TEXT NOT NULL,
		icon        TEXT NOT NULL DEFAULT '',
		link        TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS timetable (
		id           BIGSERIAL PRIMARY KEY,
		day          TEXT NOT NULL,
		start_raw    TEXT NOT NULL,
		end_raw      TEXT NOT NULL,
		subject      TEXT NOT NULL,
		faculty      TEXT NOT NULL DEFAULT '',
		image        TEXT NOT NULL DEFAULT '',
		is_cancelled BOOLEAN NOT NULL DEFAULT FALSE,
		cancel_note  TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS holidays (
		day   DATE PRIMARY KEY,
		name  TEXT NOT NULL,
		kind  TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS attendance_events (
		id           UUID PRIMARY KEY,
		roll         TEXT NOT NULL,
		device_id    TEXT NOT NULL,
		occurred_at  TIMESTAMPTZ NOT NULL,
		lat          DOUBLE PRECISION NOT NULL,
		lon          DOUBLE PRECISION NOT NULL,
		distance     DOUBLE PRECISION NOT NULL,
		bio_marker   TEXT NOT NULL,
		status       TEXT NOT NULL DEFAULT 'pending',
		note         TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_events_roll_time ON attendance_events(roll, occurred_at DESC);
	`)
	return err
}

// GetStudent returns the roster entry for roll, or nil when absent.
func (r *Repository) GetStudent(ctx context.Context, roll string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT roll, reg, name, mobile, email FROM students WHERE roll = $1
	`, roll)
	var s Student
	if err := row.Scan(&s.Roll, &s.Reg, &s.Name, &s.Mobile, &s.Email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// UpsertStudent creates or updates a roster entry. Empty fields never
// overwrite stored values.
func (r *Repository) UpsertStudent(ctx context.Context, s Student) error {
	if s.Roll == "" {
		return errors.New("roll required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (roll, reg, name, mobile, email)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (roll) DO UPDATE SET
			reg = COALESCE(NULLIF(EXCLUDED.reg, ''), students.reg),
			name = COALESCE(NULLIF(EXCLUDED.name, ''), students.name),
			mobile = COALESCE(NULLIF(EXCLUDED.mobile, ''), students.mobile),
			email = COALESCE(NULLIF(EXCLUDED.email, ''), students.email),
			updated_at = NOW()
	`, s.Roll, s.Reg, s.Name, s.Mobile, s.Email)
	return err
}

// Pairing returns the device paired with roll, if any.
func (r *Repository) Pairing(ctx context.Context, roll string) (*Pairing, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT roll, device_id, paired_at, last_seen FROM device_pairings WHERE roll = $1
	`, roll)
	var p Pairing
	if err := row.Scan(&p.Roll, &p.DeviceID, &p.PairedAt, &p.LastSeen); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// PairedRoll returns the roll a device is paired with, if any.
func (r *Repository) PairedRoll(ctx context.Context, deviceID string) (string, error) {
	var roll string
	err := r.db.QueryRowContext(ctx, `SELECT roll FROM device_pairings WHERE device_id = $1 LIMIT 1`, deviceID).Scan(&roll)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return roll, err
}

// Pair binds deviceID to roll, or refreshes last_seen for an existing pair.
func (r *Repository) Pair(ctx context.Context, roll, deviceID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO device_pairings (roll, device_id)
		VALUES ($1, $2)
		ON CONFLICT (roll) DO UPDATE SET last_seen = NOW()
		WHERE device_pairings.device_id = EXCLUDED.device_id
	`, roll, deviceID)
	return err
}

// ListNotices returns notices oldest first.
func (r *Repository) ListNotices(ctx context.Context) ([]backend.Notice, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT msg, icon, link FROM notices ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []backend.Notice
	for rows.Next() {
		var n backend.Notice
		if err := rows.Scan(&n.Msg, &n.Icon, &n.Link); err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

// AddNotice appends a notice to the feed.
func (r *Repository) AddNotice(ctx context.Context, n backend.Notice) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO notices (msg, icon, link) VALUES ($1, $2, $3)`, n.Msg, n.Icon, n.Link)
	return err
}

// ListTimetable returns every weekly slot.
func (r *Repository) ListTimetable(ctx context.Context) ([]backend.Class, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT day, start_raw, end_raw, subject, faculty, image, is_cancelled, cancel_note
		FROM timetable ORDER BY day, start_raw
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []backend.Class
	for rows.Next() {
		var c backend.Class
		if err := rows.Scan(&c.Day, &c.StartRaw, &c.EndRaw, &c.Subject, &c.Faculty, &c.Image, &c.IsCancelled, &c.CancelNote); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// ListHolidays returns holidays keyed by ISO date.
func (r *Repository) ListHolidays(ctx context.Context) (map[string]backend.Holiday, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT day, name, kind FROM holidays`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]backend.Holiday{}
	for rows.Next() {
		var (
			day time.Time
			h   backend.Holiday
		)
		if err := rows.Scan(&day, &h.Name, &h.Type); err != nil {
			return nil, err
		}
		res[day.Format("2006-01-02")] = h
	}
	return res, rows.Err()
}

const eventColumns = `id, roll, device_id, occurred_at, lat, lon, distance, bio_marker, status, note, created_at`

func scanEvent(row interface{ Scan(...any) error }) (Event, error) {
	var evt Event
	err := row.Scan(&evt.ID, &evt.Roll, &evt.DeviceID, &evt.When, &evt.Lat, &evt.Lon, &evt.Distance,
		&evt.BioMarker, &evt.Status, &evt.Note, &evt.CreatedAt)
	return evt, err
}

// RecentEvent returns the newest event for roll within window, or nil.
func (r *Repository) RecentEvent(ctx context.Context, roll string, window time.Duration) (*Event, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM attendance_events
		WHERE roll = $1 AND occurred_at >= NOW() - ($2 * interval '1 second')
		ORDER BY occurred_at DESC
		LIMIT 1
	`, roll, window.Seconds())
	evt, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &evt, nil
}

// InsertEvent writes a new event.
func (r *Repository) InsertEvent(ctx context.Context, evt Event) (Event, error) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.When.IsZero() {
		evt.When = time.Now().UTC()
	}
	if evt.Status == "" {
		evt.Status = StatusPending
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_events (id, roll, device_id, occurred_at, lat, lon, distance, bio_marker, status, note)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at
	`, evt.ID, evt.Roll, evt.DeviceID, evt.When, evt.Lat, evt.Lon, evt.Distance, evt.BioMarker, evt.Status, evt.Note)
	if err := row.Scan(&evt.CreatedAt); err != nil {
		return Event{}, err
	}
	return evt, nil
}

// GetEvent returns a single event by id.
func (r *Repository) GetEvent(ctx context.Context, id string) (Event, error) {
	return scanEvent(r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM attendance_events WHERE id = $1`, id))
}

// UpdateEventStatus sets the post-processing verdict.
func (r *Repository) UpdateEventStatus(ctx context.Context, id, status, note string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE attendance_events SET status = $2, note = $3 WHERE id = $1
	`, id, status, note)
	return err
}

// DevicesSince lists the distinct devices roll submitted from since t.
func (r *Repository) DevicesSince(ctx context.Context, roll string, since time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT device_id FROM attendance_events WHERE roll = $1 AND occurred_at >= $2
	`, roll, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// ListEvents returns events with basic filters.
func (r *Repository) ListEvents(ctx context.Context, f EventFilter) ([]Event, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	query := `SELECT ` + eventColumns + ` FROM attendance_events`
	var (
		args    []any
		clauses []string
	)
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.Roll != "" {
		add("roll = $%d", f.Roll)
	}
	if f.DeviceID != "" {
		add("device_id = $%d", f.DeviceID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if !f.Since.IsZero() {
		add("occurred_at >= $%d", f.Since)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY occurred_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, evt)
	}
	return res, rows.Err()
}
