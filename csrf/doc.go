// Package csrf produces and validates forgery-protection tokens.
//
// Tokens are opaque strings of the form base36(timestamp-ms) + "_" + random
// material, valid for 24 hours. Token sourcing is a priority chain, not a
// set of redundant lookups: in-memory cache, then the persisted copy, then
// a page-supplied meta hint, then a cookie hint, then local generation —
// the first source holding a valid token wins, and every acceptance path
// re-primes the cache and persists the winner.
//
// Random material comes from the platform CSPRNG. When that is unavailable
// the manager degrades to a pseudo-random fallback and reports it through
// Insecure; tokens generated that way are NOT suitable for CSRF protection
// and hosts should surface the condition.
package csrf
