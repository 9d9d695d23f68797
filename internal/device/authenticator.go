// Package device binds a student identity to one device: it derives the
// device fingerprint and drives the platform-authenticator ceremony that
// proves the submitter, not just the handset.
package device

import (
	"context"
	"errors"
	"time"
)

// Authenticator failure classes. Callers match with errors.Is.
var (
	// ErrNotSupported means the host has no credential API at all. Submission
	// is blocked outright.
	ErrNotSupported = errors.New("biometric authentication not supported")
	// ErrDeclined covers a user cancel, a policy denial or a timeout. It ends
	// the current attempt; the user has to retry explicitly.
	ErrDeclined = errors.New("biometric challenge declined")
	// ErrHardwareAbsent means the API exists but there is no platform
	// authenticator. Triggers one fallback to an account-level credential.
	ErrHardwareAbsent = errors.New("no platform authenticator")
	// ErrCredentialMismatch means the stored credential is unknown to the
	// authenticator (key deleted, different device).
	ErrCredentialMismatch = errors.New("stored credential not recognised")
)

// ES256 is the COSE algorithm identifier requested at registration.
const ES256 = -7

// CreateOptions mirrors a public-key credential creation request.
type CreateOptions struct {
	Challenge        []byte
	RPName           string
	UserID           []byte
	UserName         string
	Algorithm        int
	UserVerification string
	Timeout          time.Duration
}

// Credential is the result of a successful registration. PublicKey holds the
// SubjectPublicKeyInfo when the platform exposes it; otherwise the key is
// read from the CBOR attestation object.
type Credential struct {
	RawID             []byte
	PublicKey         []byte
	AttestationObject []byte
}

// AssertOptions mirrors a public-key credential request.
type AssertOptions struct {
	Challenge        []byte
	AllowCredentials [][]byte
	UserVerification string
	Timeout          time.Duration
}

// Assertion is a signed response to AssertOptions.
type Assertion struct {
	CredentialID      []byte
	AuthenticatorData []byte
	Signature         []byte
}

// Authenticator is the platform credential API.
type Authenticator interface {
	Supported() bool
	Create(ctx context.Context, opts CreateOptions) (Credential, error)
	Get(ctx context.Context, opts AssertOptions) (Assertion, error)
}

// AccountChallenger is the portable, account-level credential used when the
// device structurally lacks a platform authenticator. It returns the marker
// to send in place of the biometric signature.
type AccountChallenger interface {
	Challenge(ctx context.Context, id Identity) (string, error)
}
