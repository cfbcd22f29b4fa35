package goOffline

import "errors"

var (
	// ErrNoConnectivityNoCache is returned for a GET issued offline with no
	// unexpired cached entry. Distinct from server-side failures so hosts
	// can show "working offline" instead of a hard error.
	ErrNoConnectivityNoCache = errors.New("no connectivity and no cached response")
	// ErrRateLimited is returned when a sensitive mutating request exceeds
	// its sliding-window budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrStoreUnavailable wraps durable-store failures that could not be
	// absorbed, e.g. failing to queue an offline action.
	ErrStoreUnavailable = errors.New("durable store unavailable")
	// ErrClientClosed is returned by every operation after Close.
	ErrClientClosed = errors.New("client closed")
)
