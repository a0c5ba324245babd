// Package auth authenticates requests reaching the identity gateway and the
// services behind it.
//
// Request decisions:
//
// [Middleware.Decide] classifies every request into exactly one [Decision].
// Allow-listed path prefixes are bypassed. Requests that a
// [ServiceTrustPolicy] reports as internal are checked against the gateway's
// own keys ([InternalTrustParameters]) and may name their tenant in a header.
// External requests wait for the provider's keys through a [TrustSource];
// while none are available they are answered with 503 and never forwarded.
// A missing bearer token and a token that fails validation are reported
// separately so callers can tell them apart in logs and metrics.
// [Middleware.Handler] and the gRPC server interceptors apply the same
// decision to HTTP and gRPC traffic.
//
// Provider keys:
//
// [OIDCConfigCache] is the production [TrustSource]. It fetches the
// provider's discovery document and JWKS through a [KeySetSource] (normally a
// [DiscoveryClient]) on first use, shares one in-flight fetch among
// concurrent callers, refreshes after its TTL and keeps serving the last good
// key set when a refresh fails. A failed first fetch is retried by the next
// request.
//
// Validation:
//
// [TokenValidator] checks signature, algorithm, issuer, audience and
// lifetime against a [TrustParameters] value and returns the token's claims
// as a [ClaimSet], which keeps repeated claim types such as "role".
//
// Authorization and propagation:
//
// A [PermissionTable] maps role claims to [Action] values. The result is
// stored on the request context as an [AuthorizationContext] and checked by
// [RequireAction]. The selected tenant travels to downstream services through
// [TenantRoundTripper] and the gRPC client interceptors.
package auth
