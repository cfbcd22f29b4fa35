// Package connectivity tracks online/offline state for the request client.
//
// The host feeds transitions through [Gate.SetOnline], either directly or by
// polling a [Probe] with [Gate.Run]. Observers register callbacks through
// [Gate.Subscribe] and receive an unsubscribe handle; [Gate.AwaitOnline]
// blocks until connectivity returns or the context is done.
package connectivity
