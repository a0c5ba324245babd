// Package fixtures provides shared test data constants for the identity
// gateway test suite.
package fixtures

// Identity values used in token tests.
const (
	// UserID is the subject of the default test user.
	UserID = "4b9c3bde-5b0e-4c7b-9a35-5ad00f0b4d11"

	// UserName is the display name of the default test user.
	UserName = "Test User"

	// UserEmail is the email of the default test user.
	UserEmail = "test.user@example.test"

	// AltUserID is a second subject for tests requiring two users.
	AltUserID = "c1f0b8a6-19aa-4a55-9c1b-2f2b4c9d7e20"

	// ProviderIssuer is a fixed external issuer for tests that do not start
	// an OIDC server.
	ProviderIssuer = "https://login.example.test/tenant/v2.0/"

	// Audience is the default client id used as token audience.
	Audience = "iot-web"
)

// Tenant ids. TenantA sorts before TenantB.
const (
	TenantA = "1a2b3c4d-0000-4000-8000-00000000000a"
	TenantB = "1a2b3c4d-0000-4000-8000-00000000000b"
	TenantC = "1a2b3c4d-0000-4000-8000-00000000000c"
)
