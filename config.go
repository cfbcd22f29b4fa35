package goOffline

import (
	"errors"
	"time"
)

// Config defines all tuning knobs for the client. Configure once, pass to
// [Builder.WithConfig], and treat as immutable afterwards.
type Config struct {
	HTTP      HTTPConfig
	Cache     CacheConfig
	Queue     QueueConfig
	RateLimit RateLimitConfig
	Storage   StorageConfig
}

/*
====================================
HTTP CONFIG
====================================
*/

// HTTPConfig covers the network boundary. Timeout is the transport's own
// timeout; the client has no cancellation primitive beyond it and the
// caller's context.
type HTTPConfig struct {
	BaseURL string
	Timeout time.Duration
}

/*
====================================
CACHE CONFIG
====================================
*/

// CacheConfig holds the endpoint-classified TTL table and the housekeeping
// cadence. ImportantPaths name the URL fragments whose responses are also
// durably stored for offline reads.
type CacheConfig struct {
	DefaultTTL   time.Duration
	TrackTTL     time.Duration
	LocationTTL  time.Duration
	IdentityTTL  time.Duration
	AnalyticsTTL time.Duration

	ImportantPaths []string

	HousekeepingInterval time.Duration
}

/*
====================================
QUEUE CONFIG
====================================
*/

// QueueConfig maps URL fragments to replay priorities. Anything unmatched
// queues at low priority.
type QueueConfig struct {
	HighPriorityPaths   []string
	MediumPriorityPaths []string
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig gates sensitive mutating paths behind the sliding-window
// limiter. Disabled by default.
type RateLimitConfig struct {
	Enabled        bool
	MaxRequests    int
	Window         time.Duration
	SensitivePaths []string
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageConfig names the Redis key namespace shared by the credential
// store, the CSRF mirror, and both durable collections.
type StorageConfig struct {
	RedisPrefix string
}

func defaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Timeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			DefaultTTL:           15 * time.Minute,
			TrackTTL:             5 * time.Minute,
			LocationTTL:          time.Minute,
			IdentityTTL:          30 * time.Minute,
			AnalyticsTTL:         time.Hour,
			ImportantPaths:       []string{"/delivery/", "/auth/", "/rider/"},
			HousekeepingInterval: time.Hour,
		},
		Queue: QueueConfig{
			HighPriorityPaths:   []string{"emergency", "location"},
			MediumPriorityPaths: []string{"status", "auth"},
		},
		RateLimit: RateLimitConfig{
			Enabled:     false,
			MaxRequests: 10,
			Window:      time.Minute,
		},
		Storage: StorageConfig{
			RedisPrefix: "api",
		},
	}
}

// Validate rejects configurations the client cannot run with.
func (c *Config) Validate() error {
	if c.HTTP.Timeout <= 0 {
		return errors.New("HTTP timeout must be positive")
	}
	if c.Cache.DefaultTTL <= 0 || c.Cache.TrackTTL <= 0 || c.Cache.LocationTTL <= 0 ||
		c.Cache.IdentityTTL <= 0 || c.Cache.AnalyticsTTL <= 0 {
		return errors.New("cache TTLs must be positive")
	}
	if c.Cache.HousekeepingInterval <= 0 {
		return errors.New("housekeeping interval must be positive")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.MaxRequests <= 0 {
			return errors.New("rate limit max requests must be positive")
		}
		if c.RateLimit.Window <= 0 {
			return errors.New("rate limit window must be positive")
		}
	}
	if c.Storage.RedisPrefix == "" {
		return errors.New("redis prefix required")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Cache.ImportantPaths = cloneStrings(cfg.Cache.ImportantPaths)
	out.Queue.HighPriorityPaths = cloneStrings(cfg.Queue.HighPriorityPaths)
	out.Queue.MediumPriorityPaths = cloneStrings(cfg.Queue.MediumPriorityPaths)
	out.RateLimit.SensitivePaths = cloneStrings(cfg.RateLimit.SensitivePaths)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
