// Package tenant stores which tenants a user belongs to and resolves the
// tenant a newly issued token is scoped to.
//
// A user may hold zero or more [Assignment] records, one per tenant, each
// carrying the roles granted in that tenant. The per-user
// [SettingLastUsedTenant] preference remembers the last tenant a token was
// issued for so the next login lands there again.
//
// Three [Store] implementations are provided: [MemoryStore] for tests and
// single-process deployments, [RedisStore] and [PostgresStore].
package tenant

import (
	"context"
	"errors"
	"slices"
	"strings"

	sserr "github.com/StricklySoft/identity-gateway/pkg/errors"
)

// SettingLastUsedTenant is the setting key holding the last resolved
// tenant id.
const SettingLastUsedTenant = "LastUsedTenant"

// Assignment types.
const (
	TypeMember = "Member"
	TypeClient = "Client"
)

// Assignment grants a user roles in one tenant. (UserID, TenantID) is
// unique.
type Assignment struct {
	UserID      string   `json:"userId"`
	TenantID    string   `json:"tenantId"`
	Roles       []string `json:"roles"`
	DisplayName string   `json:"displayName,omitempty"`
	Type        string   `json:"type,omitempty"`
}

func (a Assignment) clone() Assignment {
	a.Roles = slices.Clone(a.Roles)
	return a
}

func (a Assignment) validate() error {
	if a.UserID == "" || a.TenantID == "" {
		return sserr.New(sserr.CodeValidationRequired, "tenant: assignment requires user and tenant ids")
	}
	return nil
}

// Setting is a per-user key/value preference.
type Setting struct {
	UserID string `json:"userId"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

func (s Setting) validate() error {
	if s.UserID == "" || s.Key == "" {
		return sserr.New(sserr.CodeValidationRequired, "tenant: setting requires user id and key")
	}
	return nil
}

// Store persists assignments and settings.
//
// Get methods return a [sserr.CodeNotFoundAssignment] or
// [sserr.CodeNotFoundSetting] error when the record does not exist, so
// callers can tell missing data from store failures. ListAssignments
// returns the user's assignments ordered by tenant id. Deleting a record
// that does not exist is not an error.
type Store interface {
	GetAssignment(ctx context.Context, userID, tenantID string) (*Assignment, error)
	ListAssignments(ctx context.Context, userID string) ([]Assignment, error)
	UpsertAssignment(ctx context.Context, a Assignment) error
	DeleteAssignment(ctx context.Context, userID, tenantID string) error

	GetSetting(ctx context.Context, userID, key string) (*Setting, error)
	UpsertSetting(ctx context.Context, s Setting) error
	DeleteSetting(ctx context.Context, userID, key string) error
}

func sortByTenant(list []Assignment) {
	slices.SortFunc(list, func(a, b Assignment) int { return strings.Compare(a.TenantID, b.TenantID) })
}

func assignmentNotFound(userID, tenantID string) error {
	return sserr.Newf(sserr.CodeNotFoundAssignment, "tenant: no assignment for user %s in tenant %s", userID, tenantID)
}

func settingNotFound(userID, key string) error {
	return sserr.Newf(sserr.CodeNotFoundSetting, "tenant: no setting %s for user %s", key, userID)
}

// storeError wraps a driver failure. Errors that already carry a code are
// returned unchanged.
func storeError(err error, message string) error {
	if _, ok := sserr.AsError(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return sserr.Wrap(err, sserr.CodeTimeoutStore, message)
	}
	return sserr.Wrap(err, sserr.CodeInternalStore, message)
}
