// Package goOffline is a client-side resilience and trust layer: a
// request/response cache with offline queuing and prioritized replay,
// paired with credential storage that issues, validates, and retires bearer
// tokens while guarding against cross-site forgery and logout races.
//
// The package is designed for host applications that issue typed requests
// through [Client] and react to the lifecycle events it emits (forced
// logout, connectivity change). Client methods are safe to call from
// multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goOffline is the public surface. It exposes [Client], [Builder],
// [Config], and value types (Response, CacheStats, SyncResult). The
// credential, csrf, ratelimit, storage, and connectivity subpackages are
// importable building blocks; the client only ever references them one-way —
// nothing they do reaches back into the client.
//
// # What this package must NOT do
//
//   - Render, route, or carry domain business logic. Hosts own all of that.
//   - Surface storage failures as errors: a broken backend degrades to the
//     logged-out, uncached state, never to a panic or an exception path.
//   - Serve a cached response past its computed expiry, under any load.
//
// # Storage posture
//
// Credentials are persisted as plaintext JSON, not encrypted. Obfuscation
// with a fixed key would be theater; genuine encryption-at-rest needs key
// management outside this core's scope. Hosts requiring it should wrap the
// Redis client they inject.
package goOffline
