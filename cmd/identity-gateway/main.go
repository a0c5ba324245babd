// Command identity-gateway runs the multi-tenant sign-in and token
// issuance service.
//
// Configuration is read from environment variables prefixed IDGW_ and,
// when IDGW_CONFIG_FILE names one, a YAML or JSON file:
//
//	IDGW_PROVIDER_AUTHORITY=https://login.example.com/tenant/v2.0 \
//	IDGW_GATEWAY_PROVIDER_AUTHORIZE_URI=https://login.example.com/tenant/oauth2/v2.0/authorize \
//	IDGW_KEYS_PRIVATE_KEY="$(cat signing-key.pem)" \
//	identity-gateway
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/StricklySoft/identity-gateway/pkg/auth"
	"github.com/StricklySoft/identity-gateway/pkg/clients/minio"
	"github.com/StricklySoft/identity-gateway/pkg/clients/postgres"
	"github.com/StricklySoft/identity-gateway/pkg/clients/redis"
	"github.com/StricklySoft/identity-gateway/pkg/config"
	sserr "github.com/StricklySoft/identity-gateway/pkg/errors"
	"github.com/StricklySoft/identity-gateway/pkg/gateway"
	"github.com/StricklySoft/identity-gateway/pkg/keys"
	"github.com/StricklySoft/identity-gateway/pkg/lifecycle"
	"github.com/StricklySoft/identity-gateway/pkg/tenant"
	"github.com/StricklySoft/identity-gateway/pkg/token"
)

func main() {
	cfg := defaultConfig()
	loader := config.New().WithEnvPrefix("IDGW").WithFile(os.Getenv("IDGW_CONFIG_FILE"))
	if err := loader.Load(&cfg); err != nil {
		slog.Error("identity-gateway: invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.logLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("identity-gateway: exiting", "error", err)
		os.Exit(1)
	}
}

// app holds what the start hook builds.
type app struct {
	cfg    Config
	logger *slog.Logger

	store    tenant.Store
	pair     *keys.KeyPair
	closers  []func()
	server   *gateway.Server
	provider *keys.Provider
}

func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	a := &app{cfg: cfg, logger: logger}

	svc := lifecycle.NewService(cfg.Name, cfg.Version,
		lifecycle.WithLogger(logger),
		lifecycle.WithOnStart(a.connectStore),
		lifecycle.WithOnStart(a.loadKeys),
		lifecycle.WithOnStop(a.close),
		lifecycle.OnStateChange(func(old, new lifecycle.State) {
			logger.Info("identity-gateway: state transition", "from", old.String(), "to", new.String())
		}),
	)
	if err := svc.Start(ctx); err != nil {
		_ = a.close(ctx)
		return err
	}

	if err := a.buildServer(svc); err != nil {
		svc.Fail(ctx, err)
		return err
	}

	ln, err := net.Listen("tcp", cfg.Gateway.ListenAddress)
	if err != nil {
		serr := sserr.Wrap(err, sserr.CodeInternalConfiguration, "identity-gateway: listen")
		svc.Fail(ctx, serr)
		return serr
	}

	serveErr := a.server.Serve(ctx, ln)
	if err := svc.Stop(context.WithoutCancel(ctx)); err != nil {
		return errors.Join(serveErr, err)
	}
	return serveErr
}

// connectStore opens the configured tenant store.
func (a *app) connectStore(ctx context.Context) error {
	switch a.cfg.Store {
	case storeRedis:
		client, err := redis.NewClient(ctx, a.cfg.Redis)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.store = tenant.NewRedisStore(client)
	case storePostgres:
		client, err := postgres.NewClient(ctx, a.cfg.Postgres)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, client.Close)
		store := tenant.NewPostgresStore(client)
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		a.store = store
	default:
		a.logger.WarnContext(ctx, "identity-gateway: using the in-memory tenant store, assignments are lost on restart")
		a.store = tenant.NewMemoryStore()
	}
	a.logger.InfoContext(ctx, "identity-gateway: tenant store ready", "store", a.cfg.Store)
	return nil
}

// loadKeys reads the own signing key. Failure stops the process before it
// serves traffic.
func (a *app) loadKeys(ctx context.Context) error {
	var objects keys.ObjectReader
	if a.cfg.Keys.Source == keys.SourceObject {
		client, err := minio.NewClient(ctx, a.cfg.MinIO)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, client.Close)
		objects = client
	}
	own, err := keys.NewSource(a.cfg.Keys, objects)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeConfigurationKey, "identity-gateway: signing key source")
	}

	discovery, err := auth.NewDiscoveryClient(a.cfg.Provider, nil)
	if err != nil {
		return err
	}
	a.provider = keys.NewProvider(own, discovery, keys.WithLogger(a.logger))

	pair, err := a.provider.OwnSigningKeyPair(ctx)
	if err != nil {
		return err
	}
	a.pair = pair
	a.logger.InfoContext(ctx, "identity-gateway: signing key loaded", "source", own.Name(), "kid", pair.KeyID())
	return nil
}

func (a *app) permissions() (*auth.PermissionTable, error) {
	if a.cfg.PermissionsFile == "" {
		return auth.DefaultPermissionTable(), nil
	}
	f, err := os.Open(a.cfg.PermissionsFile)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalConfiguration, "identity-gateway: open permissions file")
	}
	defer func() { _ = f.Close() }()
	table, err := auth.LoadPermissionTable(f)
	if err != nil {
		return nil, err
	}
	return table.WithLogger(a.logger), nil
}

func (a *app) buildServer(svc *lifecycle.Service) error {
	permissions, err := a.permissions()
	if err != nil {
		return err
	}

	cache := auth.NewOIDCConfigCache(a.provider, a.cfg.Trust,
		auth.WithTTL(a.cfg.Provider.RefreshInterval),
		auth.WithFetchTimeout(a.cfg.Provider.FetchTimeout),
		auth.WithCacheLogger(a.logger),
	)
	validator := auth.NewTokenValidator(auth.WithValidatorLogger(a.logger))

	if !a.cfg.Auth.Enabled {
		a.logger.Warn("identity-gateway: authentication is disabled, every request is forwarded unauthenticated")
	}
	a.logger.Warn("identity-gateway: requests without the external marker header are trusted as internal calls",
		"header", a.cfg.Auth.ExternalMarkerHeader)
	mw := auth.NewMiddleware(a.cfg.Auth, cache, validator, permissions, auth.WithMiddlewareLogger(a.logger))

	resolver := tenant.NewResolver(a.store, tenant.WithLogger(a.logger))
	issuer := token.NewIssuer(resolver, a.pair, token.WithLogger(a.logger), token.WithValidator(validator))

	server, err := gateway.NewServer(a.cfg.Gateway, gateway.Deps{
		Trust:      cache,
		Validator:  validator,
		Middleware: mw,
		Issuer:     issuer,
		Resolver:   resolver,
		KeyPair:    a.pair,
		Service:    svc,
		HTTPClient: &http.Client{Timeout: a.cfg.Provider.FetchTimeout},
	}, gateway.WithLogger(a.logger))
	if err != nil {
		return err
	}
	a.server = server
	return nil
}

func (a *app) close(context.Context) error {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	return nil
}
