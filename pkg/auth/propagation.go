package auth

import "strings"

// Header names used on inbound and internal requests. HTTP header lookups
// are case-insensitive; gRPC metadata keys are the lower-cased forms.
const (
	// HeaderAuthorization carries "Bearer <token>".
	HeaderAuthorization = "Authorization"

	// HeaderSource is set by the edge reverse proxy on every request that
	// arrived from outside the cluster. Its absence marks an internal
	// service-to-service call. The proxy must strip any client-supplied
	// copy for that distinction to hold.
	HeaderSource = "X-Source"

	// HeaderTenant carries the tenant of an internal call.
	HeaderTenant = "ApplicationTenantID"
)

// bearerPrefix is the standard "Bearer " prefix for authorization tokens.
const bearerPrefix = "Bearer "

// ExtractBearerToken extracts the token from an authorization header value.
// It handles the "Bearer " prefix case-insensitively.
// Returns an empty string if the header is empty or does not have a bearer prefix.
func ExtractBearerToken(authHeader string) string {
	if len(authHeader) <= len(bearerPrefix) {
		return ""
	}
	prefix := authHeader[:len(bearerPrefix)]
	if !strings.EqualFold(prefix, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(bearerPrefix):])
}
