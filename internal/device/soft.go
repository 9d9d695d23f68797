package device

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"classcheck/internal/localstore"
)

const softKeyPrefix = "soft_authenticator_"

// SoftAuthenticator is an ES256 platform authenticator kept in the local
// store. It backs the command-line client and tests; user verification is
// delegated to the Approve hook.
type SoftAuthenticator struct {
	keys localstore.Store
	rpID string

	// Approve is asked before every ceremony; nil approves. Returning an
	// error aborts with that error (ErrDeclined for a refusal).
	Approve func(ctx context.Context, action string) error
	// ExposePublicKey controls whether Create fills Credential.PublicKey or
	// leaves the key inside the attestation object only.
	ExposePublicKey bool
	// NoHardware makes every ceremony fail with ErrHardwareAbsent, as on a
	// host whose credential API has no platform authenticator behind it.
	NoHardware bool
}

func NewSoftAuthenticator(keys localstore.Store, rpID string) *SoftAuthenticator {
	return &SoftAuthenticator{keys: keys, rpID: rpID, ExposePublicKey: true}
}

func (a *SoftAuthenticator) Supported() bool { return true }

func (a *SoftAuthenticator) approve(ctx context.Context, action string) error {
	if a.NoHardware {
		return ErrHardwareAbsent
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeclined, err)
	}
	if a.Approve == nil {
		return nil
	}
	return a.Approve(ctx, action)
}

func (a *SoftAuthenticator) Create(ctx context.Context, opts CreateOptions) (Credential, error) {
	if opts.Algorithm != ES256 {
		return Credential{}, fmt.Errorf("unsupported algorithm %d", opts.Algorithm)
	}
	if err := a.approve(ctx, "create"); err != nil {
		return Credential{}, err
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return Credential{}, err
	}
	credID := make([]byte, 16)
	if _, err := rand.Read(credID); err != nil {
		return Credential{}, err
	}

	der, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return Credential{}, err
	}
	if err := a.keys.Set(softKeyPrefix+base64.RawURLEncoding.EncodeToString(credID), base64.StdEncoding.EncodeToString(der)); err != nil {
		return Credential{}, fmt.Errorf("store key: %w", err)
	}

	cose, err := coseKey(&priv.PublicKey)
	if err != nil {
		return Credential{}, err
	}
	rpHash := sha256.Sum256([]byte(a.rpID))
	att, err := marshalAttestation(buildAuthData(rpHash[:], flagUserPresent|flagUserVerified, 0, credID, cose))
	if err != nil {
		return Credential{}, err
	}

	cred := Credential{RawID: credID, AttestationObject: att}
	if a.ExposePublicKey {
		spki, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
		if err != nil {
			return Credential{}, err
		}
		cred.PublicKey = spki
	}
	return cred, nil
}

func (a *SoftAuthenticator) Get(ctx context.Context, opts AssertOptions) (Assertion, error) {
	if err := a.approve(ctx, "get"); err != nil {
		return Assertion{}, err
	}
	for _, id := range opts.AllowCredentials {
		raw, ok, err := a.keys.Get(softKeyPrefix + base64.RawURLEncoding.EncodeToString(id))
		if err != nil {
			return Assertion{}, err
		}
		if !ok {
			continue
		}
		der, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return Assertion{}, fmt.Errorf("decode key: %w", err)
		}
		priv, err := x509.ParseECPrivateKey(der)
		if err != nil {
			return Assertion{}, fmt.Errorf("parse key: %w", err)
		}

		rpHash := sha256.Sum256([]byte(a.rpID))
		authData := append(rpHash[:], flagUserPresent|flagUserVerified, 0, 0, 0, 1)
		digest := sha256.Sum256(append(append([]byte{}, authData...), opts.Challenge...))
		sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
		if err != nil {
			return Assertion{}, err
		}
		return Assertion{CredentialID: id, AuthenticatorData: authData, Signature: sig}, nil
	}
	return Assertion{}, ErrCredentialMismatch
}

// coseKey encodes an EC2 P-256 public key as a COSE_Key map.
func coseKey(pub *ecdsa.PublicKey) ([]byte, error) {
	size := (pub.Curve.Params().BitSize + 7) / 8
	x := pub.X.FillBytes(make([]byte, size))
	y := pub.Y.FillBytes(make([]byte, size))
	return cbor.Marshal(map[int]any{
		1:  2,     // kty: EC2
		3:  ES256, // alg
		-1: 1,     // crv: P-256
		-2: x,
		-3: y,
	})
}
