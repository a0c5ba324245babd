package auth

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/identity-gateway/internal/testutil"
	sserr "github.com/StricklySoft/identity-gateway/pkg/errors"
)

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

// ---------------------------------------------------------------------------
// DefaultPermissionTable
// ---------------------------------------------------------------------------

func TestDefaultPermissionTable(t *testing.T) {
	t.Parallel()
	pt := DefaultPermissionTable()

	assert.Equal(t, []string{RoleAdmin, RoleReadOnly}, pt.Roles())

	admin, ok := pt.Actions(RoleAdmin)
	require.True(t, ok)
	assert.Equal(t, 26, admin.Len())
	assert.True(t, admin.Has(ActionCreateDeviceGroups))
	assert.True(t, admin.Has(ActionUpdateDeviceGroups))
	assert.True(t, admin.Has(ActionReadAll))

	ro, ok := pt.Actions(RoleReadOnly)
	require.True(t, ok)
	assert.Equal(t, []Action{ActionReadAll}, ro.Slice())

	_, ok = pt.Actions("nobody")
	assert.False(t, ok)
}

// ---------------------------------------------------------------------------
// Derive
// ---------------------------------------------------------------------------

func TestDerive_UnknownRoleIsLoggedAndIgnored(t *testing.T) {
	t.Parallel()
	logger, buf := bufferLogger()
	pt := DefaultPermissionTable().WithLogger(logger)

	claims := NewClaimSet(Claim{ClaimRole, RoleAdmin}, Claim{ClaimRole, "unknownRole"})
	got := pt.Derive(context.Background(), claims)

	admin, _ := pt.Actions(RoleAdmin)
	assert.Equal(t, admin.Slice(), got.Slice())
	assert.Contains(t, buf.String(), "ignoring unknown role")
	assert.Contains(t, buf.String(), "unknownRole")
}

func TestDerive_UnionAcrossRoles(t *testing.T) {
	t.Parallel()
	pt := NewPermissionTable(map[string][]Action{
		"a": {ActionCreateDevices},
		"b": {ActionDeleteDevices, ActionCreateDevices},
	})
	got := pt.Derive(context.Background(), NewClaimSet(Claim{ClaimRole, "a"}, Claim{ClaimRole, "b"}))
	assert.Equal(t, []Action{ActionCreateDevices, ActionDeleteDevices}, got.Slice())
}

func TestDerive_NoRoleClaimsVersusNoKnownRole(t *testing.T) {
	t.Parallel()
	logger, buf := bufferLogger()
	pt := DefaultPermissionTable().WithLogger(logger)

	got := pt.Derive(context.Background(), NewClaimSet(Claim{ClaimSubject, "u"}))
	assert.Zero(t, got.Len())
	assert.Contains(t, buf.String(), "token carries no role claims")

	buf.Reset()
	got = pt.Derive(context.Background(), NewClaimSet(Claim{ClaimRole, "ghost"}))
	assert.Zero(t, got.Len())
	assert.Contains(t, buf.String(), "no role claim matched a known role")
	assert.NotContains(t, buf.String(), "token carries no role claims")
}

// ---------------------------------------------------------------------------
// LoadPermissionTable
// ---------------------------------------------------------------------------

func TestLoadPermissionTable(t *testing.T) {
	t.Parallel()
	policy := `
roles:
  - role: operator
    allowedActions: [CreateDevices, UpdateDevices]
  - role: auditor
    allowedActions: [ReadAll]
`
	pt, err := LoadPermissionTable(strings.NewReader(policy))
	require.NoError(t, err)

	op, ok := pt.Actions("operator")
	require.True(t, ok)
	assert.Equal(t, []string{"CreateDevices", "UpdateDevices"}, op.Strings())
	_, ok = pt.Actions(RoleAdmin)
	assert.False(t, ok, "a policy file replaces the built-in roles")
}

func TestLoadPermissionTable_Errors(t *testing.T) {
	t.Parallel()
	for name, policy := range map[string]string{
		"not yaml":  "roles: [",
		"empty":     "roles: []",
		"no name":   "roles:\n  - allowedActions: [ReadAll]\n",
		"duplicate": "roles:\n  - role: a\n  - role: a\n",
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadPermissionTable(strings.NewReader(policy))
			testutil.AssertErrorCode(t, err, sserr.CodeInternalConfiguration)
		})
	}
}

func TestActionSet_ZeroValue(t *testing.T) {
	t.Parallel()
	var s ActionSet
	assert.False(t, s.Has(ActionReadAll))
	assert.Zero(t, s.Len())
	assert.Empty(t, s.Slice())
}
