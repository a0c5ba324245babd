package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	sserr "github.com/StricklySoft/identity-gateway/pkg/errors"
)

const (
	// DefaultKeySetTTL is how long a fetched key set is trusted.
	DefaultKeySetTTL = 24 * time.Hour

	// DefaultFetchTimeout bounds one refresh of the provider configuration.
	DefaultFetchTimeout = 10 * time.Second

	refreshKey = "oidc-config"
)

// oidcEntry is one successfully fetched provider configuration.
type oidcEntry struct {
	params    *TrustParameters
	document  DiscoveryDocument
	fetchedAt time.Time
}

// OIDCConfigCache lazily fetches the external provider's signing keys and
// publishes the [TrustParameters] for provider-issued tokens.
//
// The first successful fetch makes the cache ready. A failed fetch leaves
// it as it was, so the next caller retries; there is no failure state to
// recover from. Concurrent callers share a single in-flight fetch. Once
// the TTL elapses the next caller refreshes; if that refresh fails the
// previous key set keeps being served and the refresh is retried on the
// following call.
type OIDCConfigCache struct {
	source       KeySetSource
	trust        ExternalTrustConfig
	ttl          time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger

	group singleflight.Group

	mu    sync.RWMutex
	entry *oidcEntry

	refreshes metric.Int64Counter
}

// CacheOption configures an OIDCConfigCache.
type CacheOption func(*OIDCConfigCache)

// WithTTL sets how long a key set is trusted. Zero never expires it.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *OIDCConfigCache) { c.ttl = ttl }
}

// WithFetchTimeout bounds a single refresh.
func WithFetchTimeout(d time.Duration) CacheOption {
	return func(c *OIDCConfigCache) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// WithCacheClock sets the time source used for TTL checks.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *OIDCConfigCache) { c.now = now }
}

// WithCacheLogger sets the logger.
func WithCacheLogger(l *slog.Logger) CacheOption {
	return func(c *OIDCConfigCache) { c.logger = l }
}

// WithCacheMeter sets the meter for the refresh counter.
func WithCacheMeter(m metric.Meter) CacheOption {
	return func(c *OIDCConfigCache) {
		c.refreshes = counter(m, "idgw.oidc.refreshes", "Identity provider key set refresh attempts")
	}
}

// NewOIDCConfigCache returns an empty cache over source. Nothing is fetched
// until the first call to EnsureReady.
func NewOIDCConfigCache(source KeySetSource, trust ExternalTrustConfig, opts ...CacheOption) *OIDCConfigCache {
	c := &OIDCConfigCache{
		source:       source,
		trust:        trust,
		ttl:          DefaultKeySetTTL,
		fetchTimeout: DefaultFetchTimeout,
		now:          time.Now,
		logger:       slog.Default(),
	}
	WithCacheMeter(otel.Meter(tracerName))(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureReady reports whether external trust parameters are available,
// fetching them if the cache is empty or expired. It returns false when no
// key set has ever been fetched and the fetch fails, or when ctx ends
// before the shared fetch completes.
func (c *OIDCConfigCache) EnsureReady(ctx context.Context) bool {
	entry := c.current()
	if entry != nil && c.fresh(entry) {
		return true
	}

	ch := c.group.DoChan(refreshKey, func() (any, error) {
		if e := c.current(); e != nil && c.fresh(e) {
			return e, nil
		}
		return c.refresh(ctx)
	})

	select {
	case res := <-ch:
		if res.Err == nil {
			return true
		}
		if entry != nil {
			c.logger.WarnContext(ctx, "auth: identity provider refresh failed, serving previous key set",
				append(sserrAttrs(res.Err), "fetched_at", entry.fetchedAt)...)
			return true
		}
		return false
	case <-ctx.Done():
		c.logger.DebugContext(ctx, "auth: gave up waiting for identity provider configuration",
			"error", ctx.Err())
		return entry != nil
	}
}

// refresh fetches and publishes a new entry. The fetch is detached from the
// triggering request's cancellation because other callers share it; it is
// bounded by the fetch timeout instead.
func (c *OIDCConfigCache) refresh(ctx context.Context) (*oidcEntry, error) {
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
	defer cancel()

	entry, err := c.fetch(fetchCtx)
	if err != nil {
		c.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "failure")))
		c.logger.ErrorContext(ctx, "auth: failed to load identity provider configuration", sserrAttrs(err)...)
		return nil, err
	}
	c.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "success")))

	c.mu.Lock()
	c.entry = entry
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "auth: identity provider configuration loaded",
		"issuer", entry.params.ExpectedIssuer,
		"keys", entry.params.Keys.Len(),
	)
	return entry, nil
}

func (c *OIDCConfigCache) fetch(ctx context.Context) (*oidcEntry, error) {
	if c.source == nil {
		return nil, sserr.New(sserr.CodeConfigurationTrust, "auth: no identity provider key source configured")
	}
	pk, err := c.source.FetchKeys(ctx)
	if err != nil {
		return nil, err
	}
	params := ExternalTrustParameters(c.trust, pk.Keys, pk.Document.Issuer)
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &oidcEntry{params: params, document: pk.Document, fetchedAt: c.now()}, nil
}

// TrustParameters returns the published parameters, possibly stale. The
// returned value must not be modified.
func (c *OIDCConfigCache) TrustParameters() (*TrustParameters, bool) {
	entry := c.current()
	if entry == nil {
		return nil, false
	}
	return entry.params, true
}

// Document returns the provider's discovery document from the last
// successful fetch.
func (c *OIDCConfigCache) Document() (DiscoveryDocument, bool) {
	entry := c.current()
	if entry == nil {
		return DiscoveryDocument{}, false
	}
	return entry.document, true
}

// Ready reports whether a key set has been fetched, without fetching.
func (c *OIDCConfigCache) Ready() bool {
	return c.current() != nil
}

// Invalidate drops the cached configuration so the next EnsureReady
// fetches again.
func (c *OIDCConfigCache) Invalidate() {
	c.mu.Lock()
	c.entry = nil
	c.mu.Unlock()
}

func (c *OIDCConfigCache) current() *oidcEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entry
}

func (c *OIDCConfigCache) fresh(e *oidcEntry) bool {
	if c.ttl <= 0 {
		return true
	}
	return c.now().Sub(e.fetchedAt) < c.ttl
}
