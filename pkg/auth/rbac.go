package auth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"

	sserr "github.com/StricklySoft/identity-gateway/pkg/errors"
)

// Action is a fine-grained permission granted to a role, such as
// "CreateDevices". Actions are compared case-sensitively.
type Action string

// Platform actions.
const (
	ActionReadAll              Action = "ReadAll"
	ActionUpdateAlarms         Action = "UpdateAlarms"
	ActionDeleteAlarms         Action = "DeleteAlarms"
	ActionCreateDevices        Action = "CreateDevices"
	ActionUpdateDevices        Action = "UpdateDevices"
	ActionDeleteDevices        Action = "DeleteDevices"
	ActionCreateDeviceGroups   Action = "CreateDeviceGroups"
	ActionUpdateDeviceGroups   Action = "UpdateDeviceGroups"
	ActionDeleteDeviceGroups   Action = "DeleteDeviceGroups"
	ActionCreateRules          Action = "CreateRules"
	ActionUpdateRules          Action = "UpdateRules"
	ActionDeleteRules          Action = "DeleteRules"
	ActionCreateJobs           Action = "CreateJobs"
	ActionUpdateSimManagement  Action = "UpdateSimManagement"
	ActionAcquireToken         Action = "AcquireToken"
	ActionCreateDeployments    Action = "CreateDeployments"
	ActionDeleteDeployments    Action = "DeleteDeployments"
	ActionCreatePackages       Action = "CreatePackages"
	ActionDeletePackages       Action = "DeletePackages"
	ActionTagPackages          Action = "TagPackages"
	ActionInviteUsers          Action = "InviteUsers"
	ActionDeleteUsers          Action = "DeleteUsers"
	ActionDeleteTenant         Action = "DeleteTenant"
	ActionEnableAlerting       Action = "EnableAlerting"
	ActionDisableAlerting      Action = "DisableAlerting"
	ActionSendC2DMessages      Action = "SendC2DMessages"
)

// Built-in role names.
const (
	RoleAdmin    = "admin"
	RoleReadOnly = "readOnly"
)

// ActionSet is an immutable set of actions. The zero value is empty.
type ActionSet struct {
	actions map[Action]struct{}
}

// NewActionSet returns a set holding actions.
func NewActionSet(actions ...Action) ActionSet {
	if len(actions) == 0 {
		return ActionSet{}
	}
	m := make(map[Action]struct{}, len(actions))
	for _, a := range actions {
		m[a] = struct{}{}
	}
	return ActionSet{actions: m}
}

// Has reports whether a is in the set.
func (s ActionSet) Has(a Action) bool {
	_, ok := s.actions[a]
	return ok
}

// Len returns the number of actions.
func (s ActionSet) Len() int { return len(s.actions) }

// Slice returns the actions sorted by name.
func (s ActionSet) Slice() []Action {
	out := slices.Collect(maps.Keys(s.actions))
	slices.Sort(out)
	return out
}

// Strings returns the action names sorted.
func (s ActionSet) Strings() []string {
	out := make([]string, 0, len(s.actions))
	for _, a := range s.Slice() {
		out = append(out, string(a))
	}
	return out
}

// union returns a set holding the actions of s and o.
func (s ActionSet) union(o ActionSet) ActionSet {
	if o.Len() == 0 {
		return s
	}
	m := make(map[Action]struct{}, len(s.actions)+len(o.actions))
	maps.Copy(m, s.actions)
	maps.Copy(m, o.actions)
	return ActionSet{actions: m}
}

// PermissionTable maps role names to allowed actions. It is built once at
// startup and read-only afterwards, so it is safe for concurrent use.
type PermissionTable struct {
	roles  map[string]ActionSet
	logger *slog.Logger
}

// NewPermissionTable builds a table from role to action list.
func NewPermissionTable(roles map[string][]Action) *PermissionTable {
	t := &PermissionTable{roles: make(map[string]ActionSet, len(roles)), logger: slog.Default()}
	for role, actions := range roles {
		t.roles[role] = NewActionSet(actions...)
	}
	return t
}

// DefaultPermissionTable returns the built-in policies: admin holds every
// platform action and readOnly may only read.
func DefaultPermissionTable() *PermissionTable {
	return NewPermissionTable(map[string][]Action{
		RoleAdmin: {
			ActionUpdateAlarms, ActionDeleteAlarms,
			ActionCreateDevices, ActionUpdateDevices, ActionDeleteDevices,
			ActionCreateDeviceGroups, ActionUpdateDeviceGroups, ActionDeleteDeviceGroups,
			ActionCreateRules, ActionUpdateRules, ActionDeleteRules,
			ActionCreateJobs, ActionUpdateSimManagement, ActionAcquireToken,
			ActionCreateDeployments, ActionDeleteDeployments,
			ActionCreatePackages, ActionDeletePackages, ActionTagPackages,
			ActionReadAll, ActionInviteUsers, ActionDeleteUsers, ActionDeleteTenant,
			ActionEnableAlerting, ActionDisableAlerting, ActionSendC2DMessages,
		},
		RoleReadOnly: {ActionReadAll},
	})
}

// policyFile is the YAML form of a permission table:
//
//	roles:
//	  - role: admin
//	    allowedActions: [CreateDevices, ReadAll]
type policyFile struct {
	Roles []struct {
		Role           string   `yaml:"role"`
		AllowedActions []string `yaml:"allowedActions"`
	} `yaml:"roles"`
}

// LoadPermissionTable reads a YAML policy file.
func LoadPermissionTable(r io.Reader) (*PermissionTable, error) {
	var pf policyFile
	if err := yaml.NewDecoder(r).Decode(&pf); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalConfiguration, "auth: failed to parse policy file")
	}
	if len(pf.Roles) == 0 {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "auth: policy file defines no roles")
	}

	roles := make(map[string][]Action, len(pf.Roles))
	for i, p := range pf.Roles {
		if p.Role == "" {
			return nil, sserr.New(sserr.CodeInternalConfiguration,
				fmt.Sprintf("auth: policy %d has no role name", i))
		}
		if _, dup := roles[p.Role]; dup {
			return nil, sserr.New(sserr.CodeInternalConfiguration,
				fmt.Sprintf("auth: role %q is defined twice", p.Role))
		}
		actions := make([]Action, 0, len(p.AllowedActions))
		for _, a := range p.AllowedActions {
			actions = append(actions, Action(a))
		}
		roles[p.Role] = actions
	}
	return NewPermissionTable(roles), nil
}

// WithLogger returns a copy of the table that logs to l.
func (t *PermissionTable) WithLogger(l *slog.Logger) *PermissionTable {
	return &PermissionTable{roles: t.roles, logger: l}
}

// Actions returns the actions allowed for role. Unknown roles yield an
// empty set and false.
func (t *PermissionTable) Actions(role string) (ActionSet, bool) {
	s, ok := t.roles[role]
	return s, ok
}

// Roles returns the known role names, sorted.
func (t *PermissionTable) Roles() []string {
	out := make([]string, 0, len(t.roles))
	for r := range t.roles {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Derive returns the union of the actions of every role claim in claims.
// Unknown roles are logged and skipped. A claim set with no role claims at
// all yields the empty set and is logged separately, since it usually
// means the token was minted for a user with no tenant.
func (t *PermissionTable) Derive(ctx context.Context, claims ClaimSet) ActionSet {
	roles := claims.All(ClaimRole)
	if len(roles) == 0 {
		t.logger.DebugContext(ctx, "auth: token carries no role claims")
		return ActionSet{}
	}

	var out ActionSet
	matched := false
	for _, role := range roles {
		actions, ok := t.roles[role]
		if !ok {
			t.logger.WarnContext(ctx, "auth: ignoring unknown role", "role", role)
			continue
		}
		matched = true
		out = out.union(actions)
	}
	if !matched {
		t.logger.InfoContext(ctx, "auth: no role claim matched a known role", "roles", roles)
	}
	return out
}
