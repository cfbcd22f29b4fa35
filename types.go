package goOffline

import "context"

const (
	// SyncTag is the background-sync registration tag the client requests
	// when it queues an offline action.
	SyncTag = "api-sync"
	// MessageSkipWaiting is the message type a host sends its background
	// worker to promote a pending update immediately.
	MessageSkipWaiting = "SKIP_WAITING"
)

// Response is the success-shaped result of a client request. Queued and
// FromCache are markers, not errors: a queued mutation and a cache-sourced
// read both resolve normally so hosts can show a non-alarming message.
type Response struct {
	StatusCode int
	Data       []byte

	// FromCache marks a response served from local storage rather than the
	// network, so callers can reason about freshness.
	FromCache bool

	// Queued marks a mutating request captured for later replay instead of
	// being sent. ActionID identifies the queue entry.
	Queued   bool
	ActionID string
}

// CacheStats is a point-in-time view of both cache layers and the queue.
type CacheStats struct {
	MemoryEntries  int
	MemoryExpired  int
	DurableEntries int
	QueuedActions  int
}

// SyncResult summarizes one replay pass over the offline queue.
type SyncResult struct {
	Processed int
	Succeeded int
	Failed    int
}

// BackgroundRegistrar is the narrow capability interface for the host's
// background-capable worker. The client only uses it as a trigger: it asks
// for a sync registration when an action is queued, and the worker is
// expected to re-invoke SyncOfflineActions when connectivity returns.
type BackgroundRegistrar interface {
	RegisterSync(ctx context.Context, tag string) error
}

// NoopRegistrar satisfies BackgroundRegistrar for hosts without a
// background worker. The client's own connectivity subscription still
// drives replay.
type NoopRegistrar struct{}

// RegisterSync implements BackgroundRegistrar.
func (NoopRegistrar) RegisterSync(context.Context, string) error { return nil }
