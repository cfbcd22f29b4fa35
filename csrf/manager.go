package csrf

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/courierlab/goOffline/internal"
)

// MaxAge is the maximum accepted token age. Older tokens, and tokens with
// timestamps in the future (clock skew), are rejected.
const MaxAge = 24 * time.Hour

// randomBytes sizes the random half of a generated token.
const randomBytes = 16

// Persistence is the narrow surface the manager needs from the credential
// store. Implementations degrade silently: a broken backend behaves like an
// empty one.
type Persistence interface {
	CSRFToken(ctx context.Context) string
	SetCSRFToken(ctx context.Context, tok string)
	ClearCSRFToken(ctx context.Context)
}

// HintSource supplies page-level token hints: a named meta tag and a named
// cookie. Empty string means no hint.
type HintSource interface {
	MetaToken() string
	CookieToken() string
}

// Manager caches the current token in memory as a mirror of the persisted
// copy. Safe for concurrent use.
type Manager struct {
	persist Persistence
	hints   HintSource
	now     func() time.Time

	mu       sync.Mutex
	cached   string
	insecure bool
}

// New creates a manager. Both persist and hints may be nil; the chain just
// skips the missing sources.
func New(persist Persistence, hints HintSource) *Manager {
	return &Manager{
		persist: persist,
		hints:   hints,
		now:     time.Now,
	}
}

// Token walks the priority chain and returns the first valid token,
// generating one when every source comes up empty. The winning token is
// cached and persisted before it is returned.
func (m *Manager) Token(ctx context.Context) string {
	m.mu.Lock()
	cached := m.cached
	m.mu.Unlock()
	if m.IsValidToken(cached) {
		return cached
	}

	if m.persist != nil {
		if tok := m.persist.CSRFToken(ctx); m.IsValidToken(tok) {
			m.adopt(ctx, tok, true)
			return tok
		}
	}

	if m.hints != nil {
		if tok := m.hints.MetaToken(); m.IsValidToken(tok) {
			m.adopt(ctx, tok, true)
			return tok
		}
		if tok := m.hints.CookieToken(); m.IsValidToken(tok) {
			m.adopt(ctx, tok, true)
			return tok
		}
	}

	tok, secure := m.generate()
	m.adopt(ctx, tok, secure)
	return tok
}

// IsValidToken reports whether tok matches the expected format: at least
// two underscore-separated segments, a parseable base36 timestamp, and an
// age between zero and MaxAge.
func (m *Manager) IsValidToken(tok string) bool {
	parts := strings.SplitN(tok, "_", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return false
	}

	ms, err := strconv.ParseInt(parts[0], 36, 64)
	if err != nil {
		return false
	}

	age := m.now().Sub(time.UnixMilli(ms))
	return age >= 0 && age <= MaxAge
}

// Clear drops both the in-memory cache and the persisted copy.
func (m *Manager) Clear(ctx context.Context) {
	m.mu.Lock()
	m.cached = ""
	m.insecure = false
	m.mu.Unlock()

	if m.persist != nil {
		m.persist.ClearCSRFToken(ctx)
	}
}

// Insecure reports whether the currently cached token was generated with
// the pseudo-random fallback rather than the CSPRNG.
func (m *Manager) Insecure() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insecure
}

func (m *Manager) adopt(ctx context.Context, tok string, secure bool) {
	m.mu.Lock()
	m.cached = tok
	m.insecure = !secure
	m.mu.Unlock()

	if m.persist != nil {
		m.persist.SetCSRFToken(ctx, tok)
	}
}

func (m *Manager) generate() (tok string, secure bool) {
	mat := internal.TokenMaterial(randomBytes)
	ts := strconv.FormatInt(m.now().UnixMilli(), 36)
	return ts + "_" + mat.Value, mat.Secure
}
