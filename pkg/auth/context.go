package auth

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// contextKey is an unexported type used for context keys in this package.
type contextKey int

const (
	authzKey contextKey = iota
	tenantKey
)

// AuthorizationContext holds the facts derived for one request. It is
// created by the middleware, read by handlers and never persisted.
type AuthorizationContext struct {
	// External is false for service-to-service calls trusted by the
	// service trust policy.
	External bool

	// AuthRequired mirrors the middleware configuration. Downstream
	// authorization checks are skipped when it is false.
	AuthRequired bool

	// Authenticated is true only when a token was validated.
	Authenticated bool

	Claims         ClaimSet
	AllowedActions ActionSet

	// TenantID is the tenant claim of the token, or the internal tenant
	// header for internal calls. Empty when neither is present.
	TenantID string
}

// Subject returns the "sub" claim.
func (a *AuthorizationContext) Subject() string {
	sub, _ := a.Claims.Subject()
	return sub
}

// Allowed reports whether the request may perform action. Internal calls
// and deployments with authentication disabled are always allowed.
func (a *AuthorizationContext) Allowed(action Action) bool {
	if !a.External || !a.AuthRequired {
		return true
	}
	return a.AllowedActions.Has(action)
}

// ContextWithAuthorization attaches ac to ctx. The tenant from ac is also
// attached for outbound propagation.
func ContextWithAuthorization(ctx context.Context, ac *AuthorizationContext) context.Context {
	ctx = context.WithValue(ctx, authzKey, ac)
	if ac.TenantID != "" {
		ctx = ContextWithTenant(ctx, ac.TenantID)
	}
	return ctx
}

// AuthorizationFromContext returns the request's AuthorizationContext.
//
// Example:
//
//	ac, ok := auth.AuthorizationFromContext(ctx)
//	if !ok || !ac.Allowed(auth.ActionDeleteDevices) {
//	    return errors.Forbidden("not allowed")
//	}
func AuthorizationFromContext(ctx context.Context) (*AuthorizationContext, bool) {
	ac, ok := ctx.Value(authzKey).(*AuthorizationContext)
	return ac, ok && ac != nil
}

// ContextWithTenant attaches the current tenant id to ctx.
func ContextWithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// TenantFromContext returns the current tenant id.
func TenantFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(tenantKey).(string)
	return id, ok && id != ""
}

// TraceIDFromContext returns the active OpenTelemetry trace id as hex.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.HasTraceID() {
		return "", false
	}
	return spanCtx.TraceID().String(), true
}
