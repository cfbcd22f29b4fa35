// Package storage is the durable, transactional key-addressed store behind
// the request client. It holds two independent collections under one key
// prefix: delivery payloads (cached read responses keyed by identity) and
// offline actions (append-ordered mutations awaiting replay).
//
// Every operation is a bounded unit of work over Redis. Multi-key writes go
// through a transactional pipeline so a failed operation never leaves a
// partially written record observable.
package storage
