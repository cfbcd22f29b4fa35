// Package ratelimit implements a per-key sliding-window rate limiter used to
// protect sensitive client-triggered actions.
//
// The window is a trailing interval: timestamps older than the window are
// pruned before every check, and a successful check records its own
// timestamp atomically. State is process-local; cross-process coordination
// is out of scope.
package ratelimit
