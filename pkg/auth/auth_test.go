package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"chatzalo/pkg/store"
	"chatzalo/pkg/timeutil"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestIssueVerify(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tok := NewTokens(secret, time.Hour, timeutil.Fixed(now))

	raw, exp, err := tok.Issue("u1", "a@x.io")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), exp)

	id, err := tok.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "u1", Email: "a@x.io"}, id)

	later := NewTokens(secret, time.Hour, timeutil.Fixed(now.Add(2*time.Hour)))
	_, err = later.Verify(raw)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	other := NewTokens("another-secret-another-secret-xx", time.Hour, timeutil.Fixed(now))
	_, err = other.Verify(raw)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = tok.Verify("  ")
	assert.ErrorIs(t, err, ErrTokenMissing)
	_, err = tok.Verify("not.a.jwt")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	now := time.Now()
	claims := Claims{Email: "a@x.io", RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = NewTokens(secret, time.Hour, nil).Verify(raw)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyRequiresEmail(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	_, err = NewTokens(secret, time.Hour, nil).Verify(raw)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Empty(t, BearerToken("Basic abc"))
	assert.Empty(t, BearerToken("Bearer "))
}

func TestAccounts(t *testing.T) {
	st, err := store.OpenMem()
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()
	acc := NewAccounts(st, NewTokens(secret, time.Hour, nil), bcrypt.MinCost, nil)

	p, err := acc.Register(ctx, Registration{Email: " Ann@X.io ", FullName: "Ann", Password: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, "ann@x.io", p.Email)

	_, err = acc.Register(ctx, Registration{Email: "ann@x.io", Password: "hunter22"})
	assert.ErrorIs(t, err, ErrEmailTaken)
	_, err = acc.Register(ctx, Registration{Email: "nope", Password: "hunter22"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = acc.Register(ctx, Registration{Email: "b@x.io", Password: "123"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = acc.Login(ctx, "ann@x.io", "wrong")
	assert.ErrorIs(t, err, ErrBadCredentials)
	_, err = acc.Login(ctx, "ghost@x.io", "hunter22")
	assert.ErrorIs(t, err, ErrBadCredentials)

	sess, err := acc.Login(ctx, "ANN@x.io", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "Ann", sess.User.FullName)

	id, err := acc.Authenticate(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, "ann@x.io", id.Email)

	orphan, _, err := NewTokens(secret, time.Hour, nil).Issue("u9", "ghost@x.io")
	require.NoError(t, err)
	_, err = acc.Authenticate(orphan)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
