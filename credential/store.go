package credential

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/courierlab/goOffline/token"
)

// Reason tags a logout broadcast so observers can distinguish an explicit
// logout from a clear forced by an invalid or aged-out credential.
type Reason string

const (
	// ReasonExplicit marks a caller-initiated logout.
	ReasonExplicit Reason = "explicit"
	// ReasonInvalidToken marks a clear triggered by structural invalidity
	// detected at read time.
	ReasonInvalidToken Reason = "invalid_token"
	// ReasonExpiredSession marks a clear triggered by the bundle exceeding
	// its maximum allowed age.
	ReasonExpiredSession Reason = "expired_session"
)

// MaxBundleAge bounds how long a bundle may live regardless of what its
// token's expiry claims. Cleanup enforces it.
const MaxBundleAge = 7 * 24 * time.Hour

// clearCooldown is how long the single-flight flag stays set after a clear
// completes, absorbing bursts of near-simultaneous logout triggers (a 401
// handler and a token-expiry timer racing, typically).
const clearCooldown = time.Second

// Bundle is the credential record. Stored as plaintext JSON; see the
// package documentation of goOffline for the storage posture.
type Bundle struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresAt    int64  `json:"expiresAt"`
	IssuedAt     int64  `json:"issuedAt"`
	UserID       string `json:"userId,omitempty"`
	SessionID    string `json:"sessionId"`
}

// Store persists the bundle under a single Redis key and broadcasts logout
// events. Safe for concurrent use.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	log    zerolog.Logger
	now    func() time.Time

	// cooldown is clearCooldown in production; shortened in tests.
	cooldown time.Duration

	mu       sync.Mutex
	clearing bool
	subs     map[int]func(Reason)
	nextSub  int
}

// NewStore creates a credential store under the given key prefix.
func NewStore(client redis.UniversalClient, prefix string, log zerolog.Logger) *Store {
	return &Store{
		redis:    client,
		prefix:   prefix,
		log:      log,
		now:      time.Now,
		cooldown: clearCooldown,
		subs:     make(map[int]func(Reason)),
	}
}

func (s *Store) bundleKey() string {
	return s.prefix + ":bundle"
}

func (s *Store) csrfKey() string {
	return s.prefix + ":csrf"
}

// Set validates and persists a bundle, generating a fresh session id.
// Returns false — persisting nothing — when the access token fails the
// usability check or the backend is unavailable.
func (s *Store) Set(ctx context.Context, b Bundle) bool {
	if !token.IsUsable(b.AccessToken) {
		return false
	}

	b.SessionID = uuid.NewString()
	if b.IssuedAt == 0 {
		b.IssuedAt = s.now().Unix()
	}
	if b.ExpiresAt == 0 {
		if exp, ok := token.ExpiryOf(b.AccessToken); ok {
			b.ExpiresAt = exp.Unix()
		}
	}

	encoded, err := json.Marshal(b)
	if err != nil {
		return false
	}

	if err := s.redis.Set(ctx, s.bundleKey(), encoded, MaxBundleAge).Err(); err != nil {
		s.log.Warn().Err(err).Msg("credential store unavailable on set")
		return false
	}

	return true
}

// AccessToken returns the stored token when it is still usable. A token
// that fails validation clears the whole bundle as a side effect and is
// reported as absent.
func (s *Store) AccessToken(ctx context.Context) string {
	b, ok := s.load(ctx)
	if !ok {
		return ""
	}

	if !token.IsUsable(b.AccessToken) {
		s.Clear(ctx, ReasonInvalidToken)
		return ""
	}

	return b.AccessToken
}

// Bundle returns a snapshot of the stored bundle without the clear-on-read
// side effect. Intended for silent-refresh flows that need the refresh
// token alongside an already-dying access token.
func (s *Store) Bundle(ctx context.Context) (Bundle, bool) {
	return s.load(ctx)
}

// UpdateAccessToken swaps only the access token and expiry in place,
// preserving the session id and refresh token. Used for silent refresh.
func (s *Store) UpdateAccessToken(ctx context.Context, newToken string) bool {
	if !token.IsUsable(newToken) {
		return false
	}

	b, ok := s.load(ctx)
	if !ok {
		return false
	}

	b.AccessToken = newToken
	if exp, ok := token.ExpiryOf(newToken); ok {
		b.ExpiresAt = exp.Unix()
	}

	encoded, err := json.Marshal(b)
	if err != nil {
		return false
	}

	if err := s.redis.Set(ctx, s.bundleKey(), encoded, redis.KeepTTL).Err(); err != nil {
		s.log.Warn().Err(err).Msg("credential store unavailable on update")
		return false
	}

	return true
}

// Clear removes the bundle and the persisted CSRF token and broadcasts a
// logout event with the given reason. Single-flight: while a clear is in
// progress or inside the cooldown window, further calls are no-ops
// returning false. Returns true only for the clear that actually ran.
func (s *Store) Clear(ctx context.Context, reason Reason) bool {
	s.mu.Lock()
	if s.clearing {
		s.mu.Unlock()
		return false
	}
	s.clearing = true
	s.mu.Unlock()

	if err := s.redis.Del(ctx, s.bundleKey(), s.csrfKey()).Err(); err != nil {
		// Still treated as logged out; the bundle is unreachable either way.
		s.log.Warn().Err(err).Msg("credential store unavailable on clear")
	}

	s.log.Info().Str("reason", string(reason)).Msg("credentials cleared")
	s.emit(reason)

	// Released after a fixed cooldown, not immediately, so a burst of
	// logout triggers collapses into one real clear.
	time.AfterFunc(s.cooldown, func() {
		s.mu.Lock()
		s.clearing = false
		s.mu.Unlock()
	})

	return true
}

// IsAuthenticated reports whether a usable token is present. Shares the
// clear-on-invalid side effect with AccessToken.
func (s *Store) IsAuthenticated(ctx context.Context) bool {
	return s.AccessToken(ctx) != ""
}

// Cleanup clears the bundle when its issue time exceeds the maximum allowed
// age regardless of expiry claims, or when the stored token is no longer
// structurally valid. Intended to run periodically.
func (s *Store) Cleanup(ctx context.Context) {
	b, ok := s.load(ctx)
	if !ok {
		return
	}

	if s.now().Sub(time.Unix(b.IssuedAt, 0)) > MaxBundleAge {
		s.Clear(ctx, ReasonExpiredSession)
		return
	}
	if !token.IsStructurallyValid(b.AccessToken) {
		s.Clear(ctx, ReasonInvalidToken)
	}
}

// OnLogout subscribes fn to logout broadcasts and returns an unsubscribe
// handle. Callbacks run synchronously on the clearing goroutine and must
// not call Clear themselves — the single-flight guard turns that into a
// no-op rather than a recursion.
func (s *Store) OnLogout(fn func(Reason)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// CSRFToken returns the persisted forgery-protection token, empty when
// absent or the backend is unavailable.
func (s *Store) CSRFToken(ctx context.Context) string {
	val, err := s.redis.Get(ctx, s.csrfKey()).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Msg("credential store unavailable on csrf read")
		}
		return ""
	}
	return val
}

// SetCSRFToken persists the forgery-protection token alongside the bundle.
// Best effort; the in-memory mirror in the csrf package keeps working when
// the backend is down.
func (s *Store) SetCSRFToken(ctx context.Context, tok string) {
	if err := s.redis.Set(ctx, s.csrfKey(), tok, 0).Err(); err != nil {
		s.log.Warn().Err(err).Msg("credential store unavailable on csrf write")
	}
}

// ClearCSRFToken drops the persisted forgery-protection token.
func (s *Store) ClearCSRFToken(ctx context.Context) {
	if err := s.redis.Del(ctx, s.csrfKey()).Err(); err != nil {
		s.log.Warn().Err(err).Msg("credential store unavailable on csrf clear")
	}
}

// load reads and decodes the bundle. A corrupt record is destroyed at read
// time; backend failures degrade to "absent".
func (s *Store) load(ctx context.Context) (Bundle, bool) {
	data, err := s.redis.Get(ctx, s.bundleKey()).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Msg("credential store unavailable on read")
		}
		return Bundle{}, false
	}

	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		s.log.Warn().Err(err).Msg("corrupt credential bundle dropped")
		_ = s.redis.Del(ctx, s.bundleKey()).Err()
		return Bundle{}, false
	}

	return b, true
}

func (s *Store) emit(reason Reason) {
	s.mu.Lock()
	subs := make([]func(Reason), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(reason)
	}
}
