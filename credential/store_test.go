package credential

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := NewStore(rdb, "cred", zerolog.Nop())
	s.cooldown = 50 * time.Millisecond
	return s, mr
}

func tokenExpiring(t *testing.T, in time.Duration) string {
	t.Helper()

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "rider-7",
		"exp": time.Now().Add(in).Unix(),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return tok
}

func TestSetAndAccessTokenRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	tok := tokenExpiring(t, time.Hour)
	require.True(t, s.Set(ctx, Bundle{AccessToken: tok, RefreshToken: "r1", UserID: "rider-7"}))

	assert.Equal(t, tok, s.AccessToken(ctx))
	assert.True(t, s.IsAuthenticated(ctx))

	b, ok := s.Bundle(ctx)
	require.True(t, ok)
	assert.NotEmpty(t, b.SessionID)
	assert.Equal(t, "r1", b.RefreshToken)
	assert.NotZero(t, b.IssuedAt)
	assert.NotZero(t, b.ExpiresAt)
}

func TestSetRejectsExpiredTokenAndPersistsNothing(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	assert.False(t, s.Set(ctx, Bundle{AccessToken: tokenExpiring(t, -time.Hour)}))
	assert.False(t, mr.Exists("cred:bundle"))
}

func TestSetRejectsTokenInsideExpiryBuffer(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	// Nominally unexpired, but inside the safety buffer.
	assert.False(t, s.Set(ctx, Bundle{AccessToken: tokenExpiring(t, 2*time.Minute)}))
	assert.False(t, mr.Exists("cred:bundle"))
}

func TestSetRejectsGarbageToken(t *testing.T) {
	s, _ := newTestStore(t)
	assert.False(t, s.Set(context.Background(), Bundle{AccessToken: "not.a.jwt"}))
}

func TestAccessTokenClearsOnInvalidAtRead(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	// Plant a bundle whose token has since expired; Set would refuse it.
	encoded, err := json.Marshal(Bundle{
		AccessToken: tokenExpiring(t, -time.Minute),
		IssuedAt:    time.Now().Unix(),
		SessionID:   "stale",
	})
	require.NoError(t, err)
	require.NoError(t, mr.Set("cred:bundle", string(encoded)))

	var reasons []Reason
	s.OnLogout(func(r Reason) { reasons = append(reasons, r) })

	assert.Empty(t, s.AccessToken(ctx))
	assert.False(t, mr.Exists("cred:bundle"))
	assert.Equal(t, []Reason{ReasonInvalidToken}, reasons)
}

func TestCorruptBundleDroppedAtRead(t *testing.T) {
	s, mr := newTestStore(t)

	require.NoError(t, mr.Set("cred:bundle", "{not json"))

	assert.Empty(t, s.AccessToken(context.Background()))
	assert.False(t, mr.Exists("cred:bundle"))
}

func TestUpdateAccessTokenPreservesSessionAndRefresh(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.True(t, s.Set(ctx, Bundle{AccessToken: tokenExpiring(t, time.Hour), RefreshToken: "r1"}))
	before, ok := s.Bundle(ctx)
	require.True(t, ok)

	fresh := tokenExpiring(t, 2*time.Hour)
	require.True(t, s.UpdateAccessToken(ctx, fresh))

	after, ok := s.Bundle(ctx)
	require.True(t, ok)
	assert.Equal(t, fresh, after.AccessToken)
	assert.Equal(t, before.SessionID, after.SessionID)
	assert.Equal(t, "r1", after.RefreshToken)
	assert.Greater(t, after.ExpiresAt, before.ExpiresAt)
}

func TestUpdateAccessTokenRejectsInvalid(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.True(t, s.Set(ctx, Bundle{AccessToken: tokenExpiring(t, time.Hour)}))
	assert.False(t, s.UpdateAccessToken(ctx, tokenExpiring(t, -time.Hour)))
	assert.False(t, s.UpdateAccessToken(ctx, "garbage"))
}

func TestClearSingleFlight(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.True(t, s.Set(ctx, Bundle{AccessToken: tokenExpiring(t, time.Hour)}))

	var reasons []Reason
	s.OnLogout(func(r Reason) { reasons = append(reasons, r) })

	assert.True(t, s.Clear(ctx, ReasonExplicit))
	// Burst within the cooldown: suppressed, no second event.
	assert.False(t, s.Clear(ctx, ReasonExplicit))
	assert.False(t, s.Clear(ctx, ReasonInvalidToken))

	assert.False(t, mr.Exists("cred:bundle"))
	assert.Equal(t, []Reason{ReasonExplicit}, reasons)

	// After the cooldown the guard releases and a new clear is real again.
	time.Sleep(120 * time.Millisecond)
	require.True(t, s.Set(ctx, Bundle{AccessToken: tokenExpiring(t, time.Hour)}))
	assert.True(t, s.Clear(ctx, ReasonExplicit))
	assert.Equal(t, []Reason{ReasonExplicit, ReasonExplicit}, reasons)
}

func TestClearFromLogoutObserverDoesNotRecurse(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.True(t, s.Set(ctx, Bundle{AccessToken: tokenExpiring(t, time.Hour)}))

	calls := 0
	s.OnLogout(func(Reason) {
		calls++
		// Re-entrant clear must be a no-op, not a recursion.
		assert.False(t, s.Clear(ctx, ReasonExplicit))
	})

	assert.True(t, s.Clear(ctx, ReasonExplicit))
	assert.Equal(t, 1, calls)
}

func TestClearRemovesPersistedCSRFToken(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	s.SetCSRFToken(ctx, "tok_random")
	require.Equal(t, "tok_random", s.CSRFToken(ctx))

	s.Clear(ctx, ReasonExplicit)
	assert.False(t, mr.Exists("cred:csrf"))
	assert.Empty(t, s.CSRFToken(ctx))
}

func TestCleanupEnforcesMaxBundleAge(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.True(t, s.Set(ctx, Bundle{AccessToken: tokenExpiring(t, time.Hour)}))

	var reasons []Reason
	s.OnLogout(func(r Reason) { reasons = append(reasons, r) })

	// Not old enough yet.
	s.Cleanup(ctx)
	assert.True(t, mr.Exists("cred:bundle"))

	s.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	s.Cleanup(ctx)

	assert.False(t, mr.Exists("cred:bundle"))
	assert.Equal(t, []Reason{ReasonExpiredSession}, reasons)
}

func TestStorageUnavailableDegradesToLoggedOut(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	mr.Close()

	assert.False(t, s.Set(ctx, Bundle{AccessToken: tokenExpiring(t, time.Hour)}))
	assert.Empty(t, s.AccessToken(ctx))
	assert.False(t, s.IsAuthenticated(ctx))
	assert.Empty(t, s.CSRFToken(ctx))

	_, ok := s.Bundle(ctx)
	assert.False(t, ok)

	// Clear still runs and still broadcasts: fail closed to logged out.
	fired := false
	s.OnLogout(func(Reason) { fired = true })
	assert.True(t, s.Clear(ctx, ReasonExplicit))
	assert.True(t, fired)
}
