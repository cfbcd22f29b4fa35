package goOffline

import (
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/courierlab/goOffline/connectivity"
	"github.com/courierlab/goOffline/credential"
	"github.com/courierlab/goOffline/csrf"
	"github.com/courierlab/goOffline/ratelimit"
	"github.com/courierlab/goOffline/storage"
)

// Builder assembles a [Client]. Construction is allocation-only until
// Build; no I/O happens before then.
type Builder struct {
	config     Config
	redis      redis.UniversalClient
	httpClient *http.Client
	gate       *connectivity.Gate
	registrar  BackgroundRegistrar
	hints      csrf.HintSource
	logger     zerolog.Logger

	built bool
}

// New creates a builder seeded with the default configuration and a nop
// logger.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
		logger: zerolog.Nop(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing every durable collection.
// Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithHTTPClient replaces the transport. Defaults to a client with the
// configured timeout.
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

// WithConnectivityGate injects the gate the host feeds online/offline
// transitions into. Defaults to a gate that starts online.
func (b *Builder) WithConnectivityGate(gate *connectivity.Gate) *Builder {
	b.gate = gate
	return b
}

// WithBackgroundRegistrar injects the host's background-sync trigger.
// Defaults to [NoopRegistrar].
func (b *Builder) WithBackgroundRegistrar(r BackgroundRegistrar) *Builder {
	b.registrar = r
	return b
}

// WithCSRFHints injects the page-supplied token hint channel (meta tag and
// cookie). Optional.
func (b *Builder) WithCSRFHints(h csrf.HintSource) *Builder {
	b.hints = h
	return b
}

// WithLogger sets the structured logger. Defaults to zerolog.Nop.
func (b *Builder) WithLogger(log zerolog.Logger) *Builder {
	b.logger = log
	return b
}

// Build validates the configuration, wires every subsystem, and starts the
// client's connectivity subscription and housekeeping loop. A builder can
// build once.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := b.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTP.Timeout}
	}

	gate := b.gate
	if gate == nil {
		gate = connectivity.NewGate(true)
	}

	registrar := b.registrar
	if registrar == nil {
		registrar = NoopRegistrar{}
	}

	creds := credential.NewStore(b.redis, cfg.Storage.RedisPrefix+":cred", b.logger)

	client := &Client{
		config:    cfg,
		http:      httpClient,
		store:     storage.New(b.redis, cfg.Storage.RedisPrefix),
		creds:     creds,
		csrf:      csrf.New(creds, b.hints),
		limiter:   ratelimit.New(),
		gate:      gate,
		registrar: registrar,
		log:       b.logger,
		now:       time.Now,
		cache:     make(map[string]cacheEntry),
		stop:      make(chan struct{}),
	}
	client.start()

	b.built = true

	return client, nil
}
