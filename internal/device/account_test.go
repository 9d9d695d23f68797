package device

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classcheck/internal/backend"
	"classcheck/internal/localstore"
)

type fakeIssuer struct {
	calls             int
	roll, reg, device string
	token             string
	err               error
}

func (f *fakeIssuer) Challenge(_ context.Context, roll, reg, deviceID string) (string, error) {
	f.calls++
	f.roll, f.reg, f.device = roll, reg, deviceID
	return f.token, f.err
}

func TestAccountChallenge_NoHardwareFallsBackThroughIssuer(t *testing.T) {
	store := localstore.NewMemory()
	soft := NewSoftAuthenticator(store, "classcheck")
	soft.NoHardware = true
	issuer := &fakeIssuer{token: "signed.jwt.token"}
	b := NewBinder(soft, store, "Attendance", WithFallback(NewAccountChallenge(issuer, "HW-V3-ABC")))

	out, err := b.Verify(context.Background(), student)
	require.NoError(t, err)
	assert.Equal(t, KindFallback, out.Kind)
	assert.Equal(t, backend.AccountMarkerPrefix+"signed.jwt.token", out.Marker)
	assert.Equal(t, 1, issuer.calls)
	assert.Equal(t, student.Roll, issuer.roll)
	assert.Equal(t, student.Reg, issuer.reg)
	assert.Equal(t, "HW-V3-ABC", issuer.device)
	assert.False(t, b.Bound(student))
}

func TestAccountChallenge_OverBackendClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req backend.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, backend.ActionChallenge, req.Action)
		_ = json.NewEncoder(w).Encode(backend.ChallengeResponse{Success: true, Token: "issued-for-" + req.Roll})
	}))
	defer srv.Close()

	store := localstore.NewMemory()
	soft := NewSoftAuthenticator(store, "classcheck")
	soft.NoHardware = true
	client := backend.New(srv.URL, time.Second)
	b := NewBinder(soft, store, "Attendance", WithFallback(NewAccountChallenge(client, "HW-V3-ABC")))

	out, err := b.Verify(context.Background(), student)
	require.NoError(t, err)
	assert.Equal(t, KindFallback, out.Kind)
	assert.Equal(t, backend.AccountMarkerPrefix+"issued-for-"+student.Roll, out.Marker)
}

func TestAccountChallenge_Refused(t *testing.T) {
	store := localstore.NewMemory()
	soft := NewSoftAuthenticator(store, "classcheck")
	soft.NoHardware = true
	refusal := &backend.RejectedError{Reason: "device mismatch"}
	issuer := &fakeIssuer{err: refusal}
	b := NewBinder(soft, store, "Attendance", WithFallback(NewAccountChallenge(issuer, "HW-V3-ABC")))

	_, err := b.Verify(context.Background(), student)
	var rejected *backend.RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, 1, issuer.calls)
}

func TestAccountChallenge_RequiresReg(t *testing.T) {
	issuer := &fakeIssuer{token: "x"}
	_, err := NewAccountChallenge(issuer, "HW").Challenge(context.Background(), Identity{Roll: "21CS07"})
	assert.Error(t, err)
	assert.Zero(t, issuer.calls)
}

func TestAccountChallenge_EmptyTokenDeclined(t *testing.T) {
	m, err := NewAccountChallenge(&fakeIssuer{}, "HW").Challenge(context.Background(), student)
	assert.ErrorIs(t, err, ErrDeclined)
	assert.False(t, strings.HasPrefix(m, backend.AccountMarkerPrefix))
}
