package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return tok
}

func tokenExpiring(t *testing.T, in time.Duration) string {
	t.Helper()
	return signedToken(t, jwt.MapClaims{
		"sub": "rider-7",
		"exp": time.Now().Add(in).Unix(),
	})
}

func TestIsStructurallyValid(t *testing.T) {
	assert.True(t, IsStructurallyValid(tokenExpiring(t, time.Hour)))
}

func TestIsStructurallyValidRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"one segment":    "justsomegarbage",
		"two segments":   "abc.def",
		"four segments":  "a.b.c.d",
		"not base64":     "!!!.???.###",
		"binary payload": "eyJhbGciOiJIUzI1NiJ9.%%%%.sig",
	}

	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			assert.False(t, IsStructurallyValid(tok))
		})
	}
}

func TestIsStructurallyValidRequiresExpiry(t *testing.T) {
	noExp := signedToken(t, jwt.MapClaims{"sub": "rider-7"})
	assert.False(t, IsStructurallyValid(noExp))
}

func TestExpiryOf(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok := signedToken(t, jwt.MapClaims{"exp": exp.Unix()})

	got, ok := ExpiryOf(tok)
	require.True(t, ok)
	assert.True(t, got.Equal(exp))
}

func TestExpiryOfMalformed(t *testing.T) {
	_, ok := ExpiryOf("not.a.token")
	assert.False(t, ok)

	noExp := signedToken(t, jwt.MapClaims{"sub": "x"})
	_, ok = ExpiryOf(noExp)
	assert.False(t, ok)
}

func TestNeedsRefresh(t *testing.T) {
	// Expiring well past 2x the buffer: no refresh yet.
	assert.False(t, NeedsRefresh(tokenExpiring(t, time.Hour)))

	// Inside the 2x buffer window: refresh requested early.
	assert.True(t, NeedsRefresh(tokenExpiring(t, 9*time.Minute)))

	// Already expired.
	assert.True(t, NeedsRefresh(tokenExpiring(t, -time.Minute)))

	// Malformed fails closed into "needs refresh".
	assert.True(t, NeedsRefresh("garbage"))
}

func TestIsUsable(t *testing.T) {
	assert.True(t, IsUsable(tokenExpiring(t, time.Hour)))

	// Still nominally unexpired but inside the 1x buffer.
	assert.False(t, IsUsable(tokenExpiring(t, 2*time.Minute)))

	assert.False(t, IsUsable(tokenExpiring(t, -time.Hour)))
	assert.False(t, IsUsable("abc.def"))
}
