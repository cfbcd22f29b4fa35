package goOffline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/courierlab/goOffline/connectivity"
	"github.com/courierlab/goOffline/credential"
	"github.com/courierlab/goOffline/csrf"
	"github.com/courierlab/goOffline/ratelimit"
	"github.com/courierlab/goOffline/storage"
)

// Client is the resilient request client. It intercepts every request,
// decides cache-vs-network-vs-queue, and replays the queue in priority
// order when connectivity returns.
type Client struct {
	config    Config
	http      *http.Client
	store     *storage.Store
	creds     *credential.Store
	csrf      *csrf.Manager
	limiter   *ratelimit.Limiter
	gate      *connectivity.Gate
	registrar BackgroundRegistrar
	log       zerolog.Logger
	now       func() time.Time

	mu     sync.Mutex
	cache  map[string]cacheEntry
	closed bool

	syncGroup   singleflight.Group
	unsubscribe func()
	stop        chan struct{}
}

type cacheEntry struct {
	data      []byte
	timestamp time.Time
	expires   time.Time
}

// start owns the subscription lifetime (released in Close) and the hourly
// housekeeping loop.
func (c *Client) start() {
	c.unsubscribe = c.gate.Subscribe(func(online bool) {
		if !online {
			return
		}
		go func() {
			if _, err := c.SyncOfflineActions(context.Background()); err != nil {
				c.log.Warn().Err(err).Msg("reconnect sync failed")
			}
		}()
	})

	go c.housekeeping()
}

// Close releases the connectivity subscription and stops housekeeping.
// Subsequent requests return ErrClientClosed.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.unsubscribe()
	close(c.stop)
}

// Credentials exposes the credential store so hosts can set bundles and
// subscribe to logout broadcasts.
func (c *Client) Credentials() *credential.Store {
	return c.creds
}

// CSRF exposes the forgery-protection token manager.
func (c *Client) CSRF() *csrf.Manager {
	return c.csrf
}

// Gate exposes the connectivity gate the client observes.
func (c *Client) Gate() *connectivity.Gate {
	return c.gate
}

// Get issues a GET with cache fallback and offline support.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post issues a POST, queueing it when offline.
func (c *Client) Post(ctx context.Context, path string, body []byte) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

// Put issues a PUT, queueing it when offline.
func (c *Client) Put(ctx context.Context, path string, body []byte) (*Response, error) {
	return c.do(ctx, http.MethodPut, path, body)
}

// Patch issues a PATCH, queueing it when offline.
func (c *Client) Patch(ctx context.Context, path string, body []byte) (*Response, error) {
	return c.do(ctx, http.MethodPatch, path, body)
}

// Delete issues a DELETE, queueing it when offline.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*Response, error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}

	if method == http.MethodGet {
		return c.doGet(ctx, path)
	}
	return c.doMutate(ctx, method, path, body)
}

func (c *Client) doGet(ctx context.Context, path string) (*Response, error) {
	if !c.gate.Online() {
		if resp, ok := c.fromCache(ctx, path); ok {
			return resp, nil
		}
		return nil, fmt.Errorf("%w: GET %s", ErrNoConnectivityNoCache, path)
	}

	resp, err := c.send(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		// Network failed while nominally online; prefer a stale-free cached
		// copy over surfacing the error.
		if cached, ok := c.fromCache(ctx, path); ok {
			return cached, nil
		}
		return nil, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.cacheResponse(ctx, path, resp.Data)
	}

	return resp, nil
}

func (c *Client) doMutate(ctx context.Context, method, path string, body []byte) (*Response, error) {
	if c.config.RateLimit.Enabled && c.isSensitive(path) {
		if !c.limiter.Allow(method+" "+path, c.config.RateLimit.MaxRequests, c.config.RateLimit.Window) {
			return nil, fmt.Errorf("%w: %s %s", ErrRateLimited, method, path)
		}
	}

	if !c.gate.Online() {
		return c.enqueue(ctx, method, path, body)
	}

	headers := map[string]string{"X-CSRF-Token": c.csrf.Token(ctx)}
	return c.send(ctx, method, path, body, headers)
}

// enqueue captures the mutation as an offline action. The original call
// resolves as queued, not as an error.
func (c *Client) enqueue(ctx context.Context, method, path string, body []byte) (*Response, error) {
	action := storage.Action{
		ID:     uuid.NewString(),
		Type:   "api",
		Method: method,
		URL:    path,
		Data:   body,
		Headers: map[string]string{
			"X-CSRF-Token": c.csrf.Token(ctx),
		},
		Timestamp: c.now().UnixMilli(),
		Priority:  c.priorityFor(path),
	}

	if err := c.store.Add(ctx, &action); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := c.registrar.RegisterSync(ctx, SyncTag); err != nil {
		c.log.Warn().Err(err).Msg("background sync registration failed")
	}

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Uint8("priority", uint8(action.Priority)).
		Msg("action queued offline")

	return &Response{Queued: true, ActionID: action.ID}, nil
}

// send performs one network round-trip. extraHeaders layers on top of the
// standard auth header; a bearer token is attached whenever one is present.
func (c *Client) send(ctx context.Context, method, path string, body []byte, extraHeaders map[string]string) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.HTTP.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.creds.AccessToken(ctx); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for k, v := range extraHeaders {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	return &Response{StatusCode: res.StatusCode, Data: data}, nil
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) isSensitive(path string) bool {
	return containsAny(path, c.config.RateLimit.SensitivePaths)
}

func (c *Client) priorityFor(path string) storage.Priority {
	if containsAny(path, c.config.Queue.HighPriorityPaths) {
		return storage.PriorityHigh
	}
	if containsAny(path, c.config.Queue.MediumPriorityPaths) {
		return storage.PriorityMedium
	}
	return storage.PriorityLow
}

func containsAny(path string, fragments []string) bool {
	for _, f := range fragments {
		if f != "" && strings.Contains(path, f) {
			return true
		}
	}
	return false
}
