package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiryBuffer is the safety margin applied when deciding whether a token is
// still usable. A token expiring inside the buffer is treated as expired so
// that in-flight requests never carry a token that dies mid-round-trip.
const ExpiryBuffer = 5 * time.Minute

// parser decodes without verifying signatures or validating claims; both
// are out of scope for structural judgment.
var parser = jwt.NewParser(jwt.WithoutClaimsValidation())

// IsStructurallyValid reports whether tok has exactly three dot-separated
// segments, each segment decodes, and the payload carries an expiry claim.
func IsStructurallyValid(tok string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(tok, claims); err != nil {
		return false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}

	return true
}

// ExpiryOf returns the expiry claim of tok. The second return is false when
// the token is malformed or carries no expiry.
func ExpiryOf(tok string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(tok, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}

	return exp.Time, true
}

// NeedsRefresh reports whether tok should be refreshed now. Refresh is
// requested at twice the expiry buffer so the refresh flow has headroom
// before the token stops being usable outright.
func NeedsRefresh(tok string) bool {
	exp, ok := ExpiryOf(tok)
	if !ok {
		return true
	}
	return !exp.After(time.Now().Add(2 * ExpiryBuffer))
}

// IsUsable reports whether tok is structurally valid and expires later than
// now plus the expiry buffer. This is the "present" predicate the credential
// store applies before handing a token to callers.
func IsUsable(tok string) bool {
	if !IsStructurallyValid(tok) {
		return false
	}
	exp, ok := ExpiryOf(tok)
	if !ok {
		return false
	}
	return exp.After(time.Now().Add(ExpiryBuffer))
}
