package goOffline

import (
	"context"
	"sort"
)

// SyncOfflineActions replays the offline queue. Concurrent triggers — a
// reconnect event and a background-sync wakeup arriving together — coalesce
// into a single drain through the singleflight group.
//
// Ordering is a strict invariant: priority descending, then enqueue time
// ascending. Every high-priority action completes before any medium, and
// every medium before any low; within a tier, FIFO.
func (c *Client) SyncOfflineActions(ctx context.Context) (SyncResult, error) {
	if c.isClosed() {
		return SyncResult{}, ErrClientClosed
	}

	v, err, _ := c.syncGroup.Do("sync", func() (interface{}, error) {
		return c.drainQueue(ctx)
	})
	if err != nil {
		return SyncResult{}, err
	}
	return v.(SyncResult), nil
}

// drainQueue replays each action with its original method, URL, body, and
// headers. Success is tracked per action: only replayed actions are
// consumed, so a resync after partial failure never re-sends an action that
// already went through.
func (c *Client) drainQueue(ctx context.Context) (SyncResult, error) {
	actions, err := c.store.Actions(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	if len(actions) == 0 {
		return SyncResult{}, nil
	}

	sort.SliceStable(actions, func(i, j int) bool {
		if actions[i].Priority != actions[j].Priority {
			return actions[i].Priority > actions[j].Priority
		}
		if actions[i].Timestamp != actions[j].Timestamp {
			return actions[i].Timestamp < actions[j].Timestamp
		}
		return actions[i].Seq < actions[j].Seq
	})

	var result SyncResult
	for _, action := range actions {
		result.Processed++

		resp, err := c.send(ctx, action.Method, action.URL, action.Data, action.Headers)
		if err != nil {
			result.Failed++
			c.log.Warn().Err(err).
				Str("action", action.ID).
				Str("method", action.Method).
				Str("path", action.URL).
				Msg("offline action replay failed, left queued")
			continue
		}

		// Server errors retry next sync; client errors are consumed, since
		// replaying them cannot change the outcome.
		if resp.StatusCode >= 500 {
			result.Failed++
			c.log.Warn().
				Int("status", resp.StatusCode).
				Str("action", action.ID).
				Msg("offline action rejected by server, left queued")
			continue
		}

		if err := c.store.Remove(ctx, action.ID); err != nil {
			c.log.Warn().Err(err).Str("action", action.ID).Msg("failed to consume replayed action")
		}
		result.Succeeded++

		c.log.Debug().
			Str("action", action.ID).
			Str("method", action.Method).
			Str("path", action.URL).
			Int("status", resp.StatusCode).
			Msg("offline action replayed")
	}

	return result, nil
}

// ClearQueue drops every queued action. The only cancellation primitive the
// queue offers.
func (c *Client) ClearQueue(ctx context.Context) error {
	if c.isClosed() {
		return ErrClientClosed
	}
	return c.store.ClearActions(ctx)
}
