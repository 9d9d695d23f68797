package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in tokens.
const (
	RoleReceipt    = "receipt"
	RoleInstructor = "instructor"
	RoleAccount    = "account"
)

// Claims represents JWT payload. EventID is set on receipts only.
type Claims struct {
	Role    string `json:"role"`
	EventID string `json:"eid,omitempty"`
	Device  string `json:"dev,omitempty"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 tokens for one issuer.
type Signer struct {
	issuer string
	key    []byte
	now    func() time.Time
}

func NewSigner(issuer, key string) *Signer {
	return &Signer{issuer: issuer, key: []byte(key), now: time.Now}
}

// IssueReceipt signs proof that the record-keeper accepted eventID for roll.
func (s *Signer) IssueReceipt(roll, deviceID, eventID string, ttl time.Duration) (string, time.Time, error) {
	return s.issue(Claims{Role: RoleReceipt, EventID: eventID, Device: deviceID}, roll, ttl)
}

// IssueInstructor signs an access token for the event listing.
func (s *Signer) IssueInstructor(name string, ttl time.Duration) (string, time.Time, error) {
	return s.issue(Claims{Role: RoleInstructor}, name, ttl)
}

// IssueAccount signs a short-lived account challenge for roll on deviceID,
// used in place of a platform-authenticator marker.
func (s *Signer) IssueAccount(roll, deviceID string, ttl time.Duration) (string, time.Time, error) {
	return s.issue(Claims{Role: RoleAccount, Device: deviceID}, roll, ttl)
}

// VerifyAccount checks that token is a live account challenge for roll on
// deviceID.
func (s *Signer) VerifyAccount(token, roll, deviceID string) error {
	c, err := s.Parse(token)
	if err != nil {
		return err
	}
	if c.Role != RoleAccount || c.Subject != roll || c.Device != deviceID {
		return errors.New("account challenge does not match submission")
	}
	return nil
}

func (s *Signer) issue(c Claims, subject string, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(ttl)
	c.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return tok, exp, nil
}

// Parse validates a token and returns claims.
func (s *Signer) Parse(tokenStr string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.key, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	return *claims, nil
}
