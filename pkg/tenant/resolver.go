package tenant

import (
	"context"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/identity-gateway/pkg/errors"
)

const tracerName = "github.com/StricklySoft/identity-gateway/pkg/tenant"

// Source records which rule picked the tenant.
type Source string

const (
	SourceExplicit Source = "explicit"
	SourceLastUsed Source = "last_used"
	SourceFirst    Source = "first_assigned"
	SourceNone     Source = "none"
)

// Request is the input to [Resolver.Resolve].
type Request struct {
	UserID string

	// RequestedTenant, when set, must be one of the user's tenants.
	RequestedTenant string

	// DisplayName is the user's current name claim. When it differs from
	// the name stored on the resolved assignment the assignment is
	// updated.
	DisplayName string
}

// Resolution is the outcome of [Resolver.Resolve].
type Resolution struct {
	// TenantID is empty when the user has no assignments.
	TenantID string

	// Active is the assignment for TenantID, or nil.
	Active *Assignment

	// Assignments lists every tenant the user belongs to, ordered by
	// tenant id.
	Assignments []Assignment

	Source Source
}

// Resolved reports whether a tenant was picked.
func (r *Resolution) Resolved() bool { return r != nil && r.TenantID != "" }

// Roles returns the roles of the active assignment.
func (r *Resolution) Roles() []string {
	if r == nil || r.Active == nil {
		return nil
	}
	return r.Active.Roles
}

// TenantIDs returns the ids of every assignment.
func (r *Resolution) TenantIDs() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, len(r.Assignments))
	for i, a := range r.Assignments {
		ids[i] = a.TenantID
	}
	return ids
}

// Resolver picks the tenant a token is issued for.
type Resolver struct {
	store  Store
	logger *slog.Logger
	tracer trace.Tracer
}

// ResolverOption configures a [Resolver].
type ResolverOption func(*Resolver)

// WithLogger sets the logger. The default is [slog.Default].
func WithLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver returns a Resolver over store.
func NewResolver(store Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{store: store, logger: slog.Default(), tracer: otel.Tracer(tracerName)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the underlying store.
func (r *Resolver) Store() Store { return r.store }

// Resolve picks a tenant for req.UserID. Rules, in order:
//
//  1. RequestedTenant, which must be assigned to the user; otherwise the
//     call fails with [sserr.CodeAuthorizationTenant]
//  2. the LastUsedTenant setting, if the user is still assigned to it
//  3. the assignment with the lexicographically smallest tenant id
//  4. none: the user is authenticated but not provisioned
//
// Whenever a tenant is picked the LastUsedTenant setting is overwritten and
// a changed display name is written to the assignment. Both writes are best
// effort: failures are logged and do not fail the call, and both are
// skipped once ctx is done.
func (r *Resolver) Resolve(ctx context.Context, req Request) (res *Resolution, err error) {
	ctx, span := r.tracer.Start(ctx, "tenant.Resolve")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.String("tenant.source", string(res.Source)))
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	if req.UserID == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, "tenant: user id is required")
	}

	list, err := r.store.ListAssignments(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	res = &Resolution{Assignments: list, Source: SourceNone}

	switch {
	case req.RequestedTenant != "":
		if !res.pick(req.RequestedTenant, SourceExplicit) {
			r.logger.DebugContext(ctx, "tenant: requested tenant not assigned",
				"user_id", req.UserID, "tenant", req.RequestedTenant)
			return nil, sserr.Newf(sserr.CodeAuthorizationTenant,
				"tenant: user has no access to tenant %s", req.RequestedTenant)
		}
	case len(list) > 0:
		if last := r.lastUsed(ctx, req.UserID); last == "" || !res.pick(last, SourceLastUsed) {
			res.pick(list[0].TenantID, SourceFirst)
		}
	}

	if res.Resolved() {
		r.remember(ctx, req, res)
	}
	return res, nil
}

// pick makes tenantID active if it is one of the assignments.
func (res *Resolution) pick(tenantID string, source Source) bool {
	for i := range res.Assignments {
		if res.Assignments[i].TenantID == tenantID {
			res.TenantID = tenantID
			res.Active = &res.Assignments[i]
			res.Source = source
			return true
		}
	}
	return false
}

func (r *Resolver) lastUsed(ctx context.Context, userID string) string {
	st, err := r.store.GetSetting(ctx, userID, SettingLastUsedTenant)
	switch {
	case sserr.IsNotFound(err):
		return ""
	case err != nil:
		r.logger.WarnContext(ctx, "tenant: failed to read last used tenant",
			append([]any{"user_id", userID}, errAttrs(err)...)...)
		return ""
	}
	return st.Value
}

func (r *Resolver) remember(ctx context.Context, req Request, res *Resolution) {
	if ctx.Err() != nil {
		return
	}
	err := r.store.UpsertSetting(ctx, Setting{UserID: req.UserID, Key: SettingLastUsedTenant, Value: res.TenantID})
	if err != nil {
		r.logger.WarnContext(ctx, "tenant: failed to store last used tenant",
			append([]any{"user_id", req.UserID, "tenant", res.TenantID}, errAttrs(err)...)...)
	}

	if req.DisplayName == "" || req.DisplayName == res.Active.DisplayName || ctx.Err() != nil {
		return
	}
	updated := res.Active.clone()
	updated.DisplayName = req.DisplayName
	if err := r.store.UpsertAssignment(ctx, updated); err != nil {
		r.logger.WarnContext(ctx, "tenant: failed to update display name",
			append([]any{"user_id", req.UserID, "tenant", res.TenantID}, errAttrs(err)...)...)
		return
	}
	res.Active.DisplayName = req.DisplayName
}

// Invitation points at a placeholder assignment provisioned for an invitee
// who had no account yet. The placeholder's roles are what the invitee
// receives.
type Invitation struct {
	PlaceholderID string
	TenantID      string
}

// Accept copies the placeholder assignment of inv to userID as a member
// assignment, then removes the placeholder.
//
// Error codes returned:
//   - [sserr.CodeValidationRequired]: inv has no tenant or placeholder
//   - [sserr.CodeAuthorizationTenant]: no placeholder exists for inv
//   - store errors from the lookup or the upsert
func (r *Resolver) Accept(ctx context.Context, inv Invitation, userID, displayName string) error {
	if inv.TenantID == "" || inv.PlaceholderID == "" {
		return sserr.New(sserr.CodeValidationRequired, "tenant: invitation needs a tenant and a placeholder")
	}
	placeholder, err := r.store.GetAssignment(ctx, inv.PlaceholderID, inv.TenantID)
	if err != nil {
		if sserr.IsNotFound(err) {
			return sserr.Wrap(err, sserr.CodeAuthorizationTenant, "tenant: invitation is not pending").
				WithDetail("placeholder_id", inv.PlaceholderID).
				WithDetail("tenant", inv.TenantID)
		}
		return err
	}
	if inv.PlaceholderID == userID {
		return nil
	}

	err = r.store.UpsertAssignment(ctx, Assignment{
		UserID:      userID,
		TenantID:    inv.TenantID,
		Roles:       slices.Clone(placeholder.Roles),
		DisplayName: displayName,
		Type:        TypeMember,
	})
	if err != nil {
		return err
	}
	if err := r.store.DeleteAssignment(ctx, inv.PlaceholderID, inv.TenantID); err != nil {
		r.logger.WarnContext(ctx, "tenant: failed to remove invitation placeholder",
			append([]any{"placeholder_id", inv.PlaceholderID, "tenant", inv.TenantID}, errAttrs(err)...)...)
	}
	r.logger.InfoContext(ctx, "tenant: invitation accepted", "user_id", userID, "tenant", inv.TenantID)
	return nil
}

func errAttrs(err error) []any {
	if e, ok := sserr.AsError(err); ok {
		return e.LogAttrs()
	}
	return []any{"error", err}
}
