package device

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"classcheck/internal/localstore"
)

// VerifiedMarker is sent when an existing binding was re-proven.
const VerifiedMarker = "VERIFIED_HW"

// Kind tells the record-keeper which ceremony produced the marker.
type Kind int

const (
	// KindBound is a first-time registration on this device.
	KindBound Kind = iota + 1
	// KindVerified is an assertion against an existing binding.
	KindVerified
	// KindFallback is an account-level challenge on hardware without a
	// platform authenticator.
	KindFallback
)

func (k Kind) String() string {
	switch k {
	case KindBound:
		return "bound"
	case KindVerified:
		return "verified"
	case KindFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Identity is the claimed student.
type Identity struct {
	Roll string
	Reg  string
}

// StorageKey is where the credential id for id lives on this device.
func (id Identity) StorageKey() string {
	return "auth_v3_" + id.Roll + "_" + id.Reg
}

// Outcome is a successful biometric step. Marker goes out as bioSignature.
type Outcome struct {
	Kind   Kind
	Marker string
}

// Binder runs the per-(identity, device) state machine: Unbound identities
// register a credential, Bound identities assert it.
type Binder struct {
	auth     Authenticator
	store    localstore.Store
	fallback AccountChallenger
	rpName   string
	timeout  time.Duration
	rand     io.Reader
}

type BinderOption func(*Binder)

// WithFallback installs the account-level challenger used on ErrHardwareAbsent.
func WithFallback(c AccountChallenger) BinderOption {
	return func(b *Binder) { b.fallback = c }
}

// WithTimeout bounds each ceremony. Defaults to 60s.
func WithTimeout(d time.Duration) BinderOption {
	return func(b *Binder) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithRand replaces the challenge entropy source.
func WithRand(r io.Reader) BinderOption {
	return func(b *Binder) { b.rand = r }
}

func NewBinder(auth Authenticator, store localstore.Store, rpName string, opts ...BinderOption) *Binder {
	b := &Binder{
		auth:    auth,
		store:   store,
		rpName:  rpName,
		timeout: 60 * time.Second,
		rand:    rand.Reader,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Bound reports whether id already has a credential on this device.
func (b *Binder) Bound(id Identity) bool {
	_, ok, err := b.store.Get(id.StorageKey())
	return err == nil && ok
}

// Verify proves possession for id, registering first if needed. Declines are
// terminal for the attempt. A missing platform authenticator falls back to
// the account challenger exactly once.
func (b *Binder) Verify(ctx context.Context, id Identity) (Outcome, error) {
	if b.auth == nil || !b.auth.Supported() {
		return Outcome{}, ErrNotSupported
	}
	if id.Roll == "" {
		return Outcome{}, errors.New("identity roll required")
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	challenge := make([]byte, 32)
	if _, err := io.ReadFull(b.rand, challenge); err != nil {
		return Outcome{}, fmt.Errorf("challenge entropy: %w", err)
	}

	saved, ok, err := b.store.Get(id.StorageKey())
	if err != nil {
		return Outcome{}, fmt.Errorf("read binding: %w", err)
	}

	var out Outcome
	if !ok {
		out, err = b.register(ctx, id, challenge)
	} else {
		out, err = b.assert(ctx, saved, challenge)
	}
	if err == nil {
		return out, nil
	}
	if errors.Is(err, ErrHardwareAbsent) && b.fallback != nil {
		marker, ferr := b.fallback.Challenge(ctx, id)
		if ferr != nil {
			return Outcome{}, fmt.Errorf("account challenge: %w", ferr)
		}
		return Outcome{Kind: KindFallback, Marker: marker}, nil
	}
	if ctx.Err() != nil && !errors.Is(err, ErrDeclined) {
		return Outcome{}, fmt.Errorf("%w: %v", ErrDeclined, err)
	}
	return Outcome{}, err
}

func (b *Binder) register(ctx context.Context, id Identity, challenge []byte) (Outcome, error) {
	cred, err := b.auth.Create(ctx, CreateOptions{
		Challenge:        challenge,
		RPName:           b.rpName,
		UserID:           []byte(id.Reg),
		UserName:         id.Roll,
		Algorithm:        ES256,
		UserVerification: "required",
		Timeout:          b.timeout,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("register credential: %w", err)
	}

	pub := cred.PublicKey
	if len(pub) == 0 {
		parsed, perr := ParseAttestation(cred.AttestationObject)
		if perr != nil {
			return Outcome{}, fmt.Errorf("register credential: %w", perr)
		}
		pub = parsed.PublicKey
	}
	if len(cred.RawID) == 0 || len(pub) == 0 {
		return Outcome{}, errors.New("register credential: empty credential")
	}

	if err := b.store.Set(id.StorageKey(), base64.StdEncoding.EncodeToString(cred.RawID)); err != nil {
		return Outcome{}, fmt.Errorf("persist binding: %w", err)
	}
	sum := sha256.Sum256(pub)
	return Outcome{Kind: KindBound, Marker: hex.EncodeToString(sum[:])}, nil
}

func (b *Binder) assert(ctx context.Context, saved string, challenge []byte) (Outcome, error) {
	rawID, err := base64.StdEncoding.DecodeString(saved)
	if err != nil {
		return Outcome{}, fmt.Errorf("decode binding: %w", err)
	}
	if _, err := b.auth.Get(ctx, AssertOptions{
		Challenge:        challenge,
		AllowCredentials: [][]byte{rawID},
		UserVerification: "required",
		Timeout:          b.timeout,
	}); err != nil {
		return Outcome{}, fmt.Errorf("assert credential: %w", err)
	}
	return Outcome{Kind: KindVerified, Marker: VerifiedMarker}, nil
}
