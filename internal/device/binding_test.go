package device

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classcheck/internal/localstore"
)

var student = Identity{Roll: "21CS07", Reg: "REG-2021-07"}

type fakeAuth struct {
	supported bool
	createErr error
	getErr    error
	creates   int
	gets      int
}

func (f *fakeAuth) Supported() bool { return f.supported }

func (f *fakeAuth) Create(_ context.Context, _ CreateOptions) (Credential, error) {
	f.creates++
	if f.createErr != nil {
		return Credential{}, f.createErr
	}
	return Credential{RawID: []byte("cred-1"), PublicKey: []byte("spki")}, nil
}

func (f *fakeAuth) Get(_ context.Context, _ AssertOptions) (Assertion, error) {
	f.gets++
	if f.getErr != nil {
		return Assertion{}, f.getErr
	}
	return Assertion{CredentialID: []byte("cred-1")}, nil
}

type countingChallenger struct {
	calls  int
	marker string
	err    error
}

func (c *countingChallenger) Challenge(_ context.Context, _ Identity) (string, error) {
	c.calls++
	return c.marker, c.err
}

func TestVerify_FirstCallBindsThenVerifies(t *testing.T) {
	store := localstore.NewMemory()
	auth := NewSoftAuthenticator(store, "classcheck")
	b := NewBinder(auth, store, "Attendance")

	assert.False(t, b.Bound(student))
	first, err := b.Verify(context.Background(), student)
	require.NoError(t, err)
	assert.Equal(t, KindBound, first.Kind)
	assert.Len(t, first.Marker, 64)
	assert.True(t, b.Bound(student))

	second, err := b.Verify(context.Background(), student)
	require.NoError(t, err)
	assert.Equal(t, KindVerified, second.Kind)
	assert.Equal(t, VerifiedMarker, second.Marker)
}

func TestVerify_DoesNotReRegister(t *testing.T) {
	auth := &fakeAuth{supported: true}
	b := NewBinder(auth, localstore.NewMemory(), "Attendance")

	_, err := b.Verify(context.Background(), student)
	require.NoError(t, err)
	_, err = b.Verify(context.Background(), student)
	require.NoError(t, err)

	assert.Equal(t, 1, auth.creates)
	assert.Equal(t, 1, auth.gets)
}

func TestVerify_BindingMarkerIsPublicKeyDigest(t *testing.T) {
	b := NewBinder(&fakeAuth{supported: true}, localstore.NewMemory(), "Attendance")
	out, err := b.Verify(context.Background(), student)
	require.NoError(t, err)

	sum := sha256.Sum256([]byte("spki"))
	assert.Equal(t, hex.EncodeToString(sum[:]), out.Marker)
}

func TestVerify_PublicKeyFromAttestation(t *testing.T) {
	store := localstore.NewMemory()
	auth := NewSoftAuthenticator(store, "classcheck")
	auth.ExposePublicKey = false
	b := NewBinder(auth, store, "Attendance")

	out, err := b.Verify(context.Background(), student)
	require.NoError(t, err)
	assert.Equal(t, KindBound, out.Kind)
	assert.Len(t, out.Marker, 64)
}

func TestVerify_NotSupported(t *testing.T) {
	b := NewBinder(&fakeAuth{supported: false}, localstore.NewMemory(), "Attendance")
	_, err := b.Verify(context.Background(), student)
	assert.ErrorIs(t, err, ErrNotSupported)

	b = NewBinder(nil, localstore.NewMemory(), "Attendance")
	_, err = b.Verify(context.Background(), student)
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestVerify_DeclinedIsTerminal(t *testing.T) {
	store := localstore.NewMemory()
	ch := &countingChallenger{marker: "ACCOUNT"}
	b := NewBinder(&fakeAuth{supported: true, createErr: ErrDeclined}, store, "Attendance", WithFallback(ch))

	_, err := b.Verify(context.Background(), student)
	assert.ErrorIs(t, err, ErrDeclined)
	assert.Equal(t, 0, ch.calls)
	assert.False(t, b.Bound(student), "a declined registration must not persist a binding")
}

func TestVerify_HardwareAbsentFallsBackOnce(t *testing.T) {
	ch := &countingChallenger{marker: "ACCOUNT-OK"}
	auth := &fakeAuth{supported: true, createErr: ErrHardwareAbsent}
	b := NewBinder(auth, localstore.NewMemory(), "Attendance", WithFallback(ch))

	out, err := b.Verify(context.Background(), student)
	require.NoError(t, err)
	assert.Equal(t, KindFallback, out.Kind)
	assert.Equal(t, "ACCOUNT-OK", out.Marker)
	assert.Equal(t, 1, ch.calls)
	assert.Equal(t, 1, auth.creates)
}

func TestVerify_FallbackFailure(t *testing.T) {
	ch := &countingChallenger{err: errors.New("account locked")}
	b := NewBinder(&fakeAuth{supported: true, createErr: ErrHardwareAbsent}, localstore.NewMemory(), "Attendance", WithFallback(ch))

	_, err := b.Verify(context.Background(), student)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account locked")
	assert.Equal(t, 1, ch.calls)
}

func TestVerify_HardwareAbsentWithoutFallback(t *testing.T) {
	b := NewBinder(&fakeAuth{supported: true, createErr: ErrHardwareAbsent}, localstore.NewMemory(), "Attendance")
	_, err := b.Verify(context.Background(), student)
	assert.ErrorIs(t, err, ErrHardwareAbsent)
}

func TestVerify_MismatchFailsWithoutFallback(t *testing.T) {
	store := localstore.NewMemory()
	require.NoError(t, store.Set(student.StorageKey(), "Y3JlZC0x"))
	ch := &countingChallenger{marker: "ACCOUNT"}
	b := NewBinder(&fakeAuth{supported: true, getErr: ErrCredentialMismatch}, store, "Attendance", WithFallback(ch))

	_, err := b.Verify(context.Background(), student)
	assert.ErrorIs(t, err, ErrCredentialMismatch)
	assert.Equal(t, 0, ch.calls)
}

func TestVerify_UserRefusal(t *testing.T) {
	store := localstore.NewMemory()
	auth := NewSoftAuthenticator(store, "classcheck")
	auth.Approve = func(context.Context, string) error { return ErrDeclined }
	b := NewBinder(auth, store, "Attendance")

	_, err := b.Verify(context.Background(), student)
	assert.ErrorIs(t, err, ErrDeclined)
}

func TestVerify_TimeoutReadsAsDeclined(t *testing.T) {
	store := localstore.NewMemory()
	auth := NewSoftAuthenticator(store, "classcheck")
	auth.Approve = func(ctx context.Context, _ string) error {
		<-ctx.Done()
		return ctx.Err()
	}
	b := NewBinder(auth, store, "Attendance", WithTimeout(20*time.Millisecond))

	_, err := b.Verify(context.Background(), student)
	assert.ErrorIs(t, err, ErrDeclined)
}

func TestVerify_CancelledReadsAsDeclined(t *testing.T) {
	store := localstore.NewMemory()
	auth := NewSoftAuthenticator(store, "classcheck")
	ctx, cancel := context.WithCancel(context.Background())
	auth.Approve = func(ctx context.Context, _ string) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}
	b := NewBinder(auth, store, "Attendance")

	_, err := b.Verify(ctx, student)
	assert.ErrorIs(t, err, ErrDeclined)
}

func TestVerify_BindingsArePerIdentity(t *testing.T) {
	store := localstore.NewMemory()
	b := NewBinder(NewSoftAuthenticator(store, "classcheck"), store, "Attendance")

	out, err := b.Verify(context.Background(), student)
	require.NoError(t, err)
	assert.Equal(t, KindBound, out.Kind)

	other := Identity{Roll: "21CS08", Reg: "REG-2021-08"}
	out, err = b.Verify(context.Background(), other)
	require.NoError(t, err)
	assert.Equal(t, KindBound, out.Kind)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "bound", KindBound.String())
	assert.Equal(t, "verified", KindVerified.String())
	assert.Equal(t, "fallback", KindFallback.String())
	assert.Equal(t, "unknown", Kind(0).String())
}
