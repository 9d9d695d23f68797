package device

import (
	"context"
	"errors"
	"fmt"

	"classcheck/internal/backend"
)

// ChallengeIssuer obtains an account challenge token from the record-keeper.
// *backend.Client implements it.
type ChallengeIssuer interface {
	Challenge(ctx context.Context, roll, reg, deviceID string) (string, error)
}

// AccountChallenge is the account-level fallback: the record-keeper checks
// the claimed identity against the roster and the device pairing and signs a
// short-lived token bound to both. The token travels as the bioSignature.
type AccountChallenge struct {
	issuer   ChallengeIssuer
	deviceID string
}

func NewAccountChallenge(issuer ChallengeIssuer, deviceID string) *AccountChallenge {
	return &AccountChallenge{issuer: issuer, deviceID: deviceID}
}

func (a *AccountChallenge) Challenge(ctx context.Context, id Identity) (string, error) {
	if id.Reg == "" {
		return "", errors.New("registration number required")
	}
	tok, err := a.issuer.Challenge(ctx, id.Roll, id.Reg, a.deviceID)
	if err != nil {
		return "", err
	}
	if tok == "" {
		return "", fmt.Errorf("%w: empty challenge token", ErrDeclined)
	}
	return backend.AccountMarkerPrefix + tok, nil
}
