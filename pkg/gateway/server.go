// Package gateway serves the identity gateway's HTTP endpoints: the
// sign-in redirect and callback, tenant switching, the client-credentials
// exchange, logout, and the discovery document and key set other services
// use to validate minted tokens.
//
// Routes:
//
//	GET  /connect/authorize
//	POST /connect/callback
//	POST /connect/switch/{tenant}
//	POST /connect/token
//	GET  /connect/logout
//	GET  /.well-known/openid-configuration
//	GET  /.well-known/openid-configuration/jwks
//	GET  /v1/status, /api/status
//	GET  /v1/tenants                           (authenticated)
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/StricklySoft/identity-gateway/pkg/auth"
	sserr "github.com/StricklySoft/identity-gateway/pkg/errors"
	"github.com/StricklySoft/identity-gateway/pkg/keys"
	"github.com/StricklySoft/identity-gateway/pkg/lifecycle"
	"github.com/StricklySoft/identity-gateway/pkg/tenant"
	"github.com/StricklySoft/identity-gateway/pkg/token"
)

// ProviderTrust is the view of the external provider the gateway needs.
// [*auth.OIDCConfigCache] implements it.
type ProviderTrust interface {
	auth.TrustSource
	Ready() bool
	Document() (auth.DiscoveryDocument, bool)
}

// Deps are the components the server routes to. All fields except
// HTTPClient are required.
type Deps struct {
	Trust      ProviderTrust
	Validator  *auth.TokenValidator
	Middleware *auth.Middleware
	Issuer     *token.Issuer
	Resolver   *tenant.Resolver
	KeyPair    *keys.KeyPair
	Service    *lifecycle.Service

	// HTTPClient is used for the client-credentials exchange. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
}

func (d *Deps) validate() error {
	switch {
	case d.Trust == nil, d.Validator == nil, d.Middleware == nil,
		d.Issuer == nil, d.Resolver == nil, d.KeyPair == nil, d.Service == nil:
		return sserr.New(sserr.CodeInternalConfiguration, "gateway: missing server dependency")
	}
	return nil
}

// Server is the gateway HTTP server.
type Server struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	router chi.Router
}

// Option configures a [Server].
type Option func(*Server)

// WithLogger sets the logger. The default is [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer validates cfg and deps and builds the router.
func NewServer(cfg Config, deps Deps, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalConfiguration, "gateway: invalid config")
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = http.DefaultClient
	}
	s := &Server{cfg: cfg, deps: deps, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.deps.Middleware.Handler)

	r.Route("/connect", func(r chi.Router) {
		r.Get("/authorize", s.handleAuthorize)
		r.Post("/callback", s.handleCallback)
		r.Post("/switch/{tenant}", s.handleSwitch)
		r.Post("/token", s.handleToken)
		r.Get("/logout", s.handleLogout)
	})

	r.Get("/.well-known/openid-configuration", s.handleDiscovery)
	r.Get("/.well-known/openid-configuration/jwks", s.handleJWKS)

	r.Get("/v1/status", s.handleStatus)
	r.Get("/api/status", s.handleStatus)
	r.Get("/v1/tenants", s.handleTenants)
	return r
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully within the configured timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.logger.InfoContext(ctx, "gateway: listening", "address", ln.Addr().String())

	select {
	case err := <-errc:
		return sserr.Wrap(err, sserr.CodeUnavailable, "gateway: server stopped")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return sserr.Wrap(err, sserr.CodeTimeout, "gateway: shutdown")
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return sserr.Wrap(err, sserr.CodeUnavailable, "gateway: server stopped")
	}
	s.logger.InfoContext(ctx, "gateway: server stopped")
	return nil
}
