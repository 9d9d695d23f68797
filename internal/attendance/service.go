package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gookit/validate"

	"classcheck/internal/backend"
	"classcheck/internal/geo"
	"classcheck/internal/pin"
)

// Rejection is a business-rule failure. Its text goes back to the student
// verbatim.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string { return r.Reason }

var (
	ErrInvalidSubmission = &Rejection{"Incomplete submission"}
	ErrWrongPIN          = &Rejection{"Invalid PIN"}
	ErrStaleToken        = &Rejection{"Session expired, reload and try again"}
	ErrOutOfRange        = &Rejection{"You are not in the classroom"}
	ErrBiometricRequired = &Rejection{"Biometric verification required"}
	ErrDeviceMismatch    = &Rejection{"device mismatch"}
	ErrDeviceInUse       = &Rejection{"This device is registered to another student"}
	ErrUnknownAccount    = &Rejection{"Account not found"}
	ErrAccountMismatch   = &Rejection{"Registration number does not match"}
	ErrAccountToken      = &Rejection{"Account verification failed"}
)

// AccountVerifier checks an account challenge token presented in place of a
// biometric marker. *auth.Signer implements it.
type AccountVerifier interface {
	VerifyAccount(token, roll, deviceID string) error
}

// IsRejection reports whether err is a business-rule rejection rather than
// an infrastructure failure.
func IsRejection(err error) bool {
	var r *Rejection
	return errors.As(err, &r)
}

// Store is the persistence the service needs. *Repository implements it.
type Store interface {
	GetStudent(ctx context.Context, roll string) (*Student, error)
	UpsertStudent(ctx context.Context, s Student) error
	Pairing(ctx context.Context, roll string) (*Pairing, error)
	PairedRoll(ctx context.Context, deviceID string) (string, error)
	Pair(ctx context.Context, roll, deviceID string) error
	ListNotices(ctx context.Context) ([]backend.Notice, error)
	ListTimetable(ctx context.Context) ([]backend.Class, error)
	ListHolidays(ctx context.Context) (map[string]backend.Holiday, error)
	RecentEvent(ctx context.Context, roll string, window time.Duration) (*Event, error)
	InsertEvent(ctx context.Context, evt Event) (Event, error)
}

// Policy is the server-side re-validation of the client's checks.
type Policy struct {
	Room        geo.Coordinate
	MaxDistance float64
	TokenSalt   string
	TokenSkew   time.Duration
	DedupWindow time.Duration
	Location    *time.Location
	// Accounts verifies account-challenge markers. Nil rejects them.
	Accounts AccountVerifier
}

// Service coordinates lookups, re-validation, pairing and deduplication.
type Service struct {
	store  Store
	policy Policy
	now    func() time.Time
}

// NewService creates a service backed by a store.
func NewService(store Store, policy Policy) *Service {
	if policy.DedupWindow <= 0 {
		policy.DedupWindow = 5 * time.Minute
	}
	if policy.MaxDistance <= 0 {
		policy.MaxDistance = 350
	}
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	return &Service{store: store, policy: policy, now: time.Now}
}

// Lookup returns the roster entry for roll and whether deviceID is the
// device paired with it.
func (s *Service) Lookup(ctx context.Context, roll, deviceID string) (backend.Profile, error) {
	st, err := s.store.GetStudent(ctx, roll)
	if err != nil {
		return backend.Profile{}, err
	}
	if st == nil {
		return backend.Profile{}, nil
	}
	p, err := s.store.Pairing(ctx, roll)
	if err != nil {
		return backend.Profile{}, err
	}
	return backend.Profile{
		Found:       true,
		Secured:     p != nil,
		IsNewDevice: p == nil || p.DeviceID != deviceID,
		Name:        st.Name,
		Reg:         st.Reg,
		Mobile:      st.Mobile,
		Email:       st.Email,
	}, nil
}

func (s *Service) Notices(ctx context.Context) ([]backend.Notice, error) {
	n, err := s.store.ListNotices(ctx)
	if n == nil {
		n = []backend.Notice{}
	}
	return n, err
}

func (s *Service) Timetable(ctx context.Context) (backend.TimetableResponse, error) {
	classes, err := s.store.ListTimetable(ctx)
	if err != nil {
		return backend.TimetableResponse{}, err
	}
	holidays, err := s.store.ListHolidays(ctx)
	if err != nil {
		return backend.TimetableResponse{}, err
	}
	if classes == nil {
		classes = []backend.Class{}
	}
	return backend.TimetableResponse{Timetable: classes, Holidays: holidays}, nil
}

// Result of a submission.
type Result struct {
	Event     Event
	Duplicate bool
}

// Submit re-validates a submission and records it. A repeat inside the
// dedup window returns the earlier event with Duplicate set.
func (s *Service) Submit(ctx context.Context, sub backend.Submission) (Result, error) {
	if v := validate.Struct(&sub); !v.Validate() {
		return Result{}, fmt.Errorf("%w: %s", ErrInvalidSubmission, v.Errors.One())
	}

	now := s.now().In(s.policy.Location)
	if !pin.Matches(sub.DynamicPIN, now) && !pin.Matches(sub.DynamicPIN, now.Add(-pin.Window)) {
		return Result{}, ErrWrongPIN
	}
	if !pin.ValidTimeToken(sub.Token, now, s.policy.TokenSalt, s.policy.TokenSkew) {
		return Result{}, ErrStaleToken
	}
	pos := geo.Coordinate{Lat: sub.Lat, Lon: sub.Lon}
	dist := geo.Distance(pos, s.policy.Room)
	if !pos.Valid() || !geo.InRange(dist, s.policy.MaxDistance) {
		return Result{}, ErrOutOfRange
	}
	if sub.BioSignature == "" {
		return Result{}, ErrBiometricRequired
	}
	if tok, ok := strings.CutPrefix(sub.BioSignature, backend.AccountMarkerPrefix); ok {
		if s.policy.Accounts == nil || s.policy.Accounts.VerifyAccount(tok, sub.Roll, sub.DeviceID) != nil {
			return Result{}, ErrAccountToken
		}
	}

	if err := s.checkPairing(ctx, sub.Roll, sub.DeviceID); err != nil {
		return Result{}, err
	}

	if recent, err := s.store.RecentEvent(ctx, sub.Roll, s.policy.DedupWindow); err != nil {
		return Result{}, err
	} else if recent != nil {
		return Result{Event: *recent, Duplicate: true}, nil
	}

	if err := s.store.UpsertStudent(ctx, Student{Roll: sub.Roll, Reg: sub.Reg, Name: sub.Name, Mobile: sub.Mobile, Email: sub.Email}); err != nil {
		return Result{}, fmt.Errorf("upsert student: %w", err)
	}
	if err := s.store.Pair(ctx, sub.Roll, sub.DeviceID); err != nil {
		return Result{}, fmt.Errorf("pair device: %w", err)
	}

	evt, err := s.store.InsertEvent(ctx, Event{
		Roll:      sub.Roll,
		DeviceID:  sub.DeviceID,
		When:      now.UTC(),
		Lat:       sub.Lat,
		Lon:       sub.Lon,
		Distance:  dist,
		BioMarker: sub.BioSignature,
		Status:    StatusPending,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Event: evt}, nil
}

// Challenge checks an account-level claim from a device without a platform
// authenticator: the roll must be on the roster, reg must match it, and the
// privacy lock must allow deviceID. The caller signs the token on success.
func (s *Service) Challenge(ctx context.Context, roll, reg, deviceID string) error {
	if roll == "" || reg == "" || deviceID == "" {
		return ErrInvalidSubmission
	}
	st, err := s.store.GetStudent(ctx, roll)
	if err != nil {
		return err
	}
	if st == nil {
		return ErrUnknownAccount
	}
	if !strings.EqualFold(strings.TrimSpace(st.Reg), strings.TrimSpace(reg)) {
		return ErrAccountMismatch
	}
	return s.checkPairing(ctx, roll, deviceID)
}

// checkPairing is the privacy lock: one device per identity and one identity
// per device.
func (s *Service) checkPairing(ctx context.Context, roll, deviceID string) error {
	p, err := s.store.Pairing(ctx, roll)
	if err != nil {
		return err
	}
	if p != nil && p.DeviceID != deviceID {
		return ErrDeviceMismatch
	}
	other, err := s.store.PairedRoll(ctx, deviceID)
	if err != nil {
		return err
	}
	if other != "" && other != roll {
		return ErrDeviceInUse
	}
	return nil
}
