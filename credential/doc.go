// Package credential owns the persisted credential bundle: access token,
// optional refresh token, expiry, session id. The bundle is mutated only
// through Set, UpdateAccessToken, and Clear; a token that fails structural
// validation at read time destroys the whole bundle — a corrupt or expired
// token is never partially usable.
//
// Clear is single-flight guarded. Clearing can itself trigger observers
// that call Clear again, so a boolean flag (checked-and-set before any I/O)
// suppresses re-entrant and near-simultaneous clears, and is released only
// after a short cooldown once the clear completes.
//
// Storage failures never surface as errors: every operation degrades to a
// conservative default (false/empty) so callers treat "no credential" and
// "storage broken" identically and fail closed to the logged-out state.
package credential
