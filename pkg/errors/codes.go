package errors

import "strings"

// Code is a machine-readable error code of the form CATEGORY_NNN. Codes are
// stable once assigned; dashboards and alerts key on them.
type Code string

const (
	categoryValidation     = "VAL"
	categoryAuthentication = "AUTH"
	categoryAuthorization  = "AUTHZ"
	categoryNotFound       = "NF"
	categoryConfiguration  = "CFG"
	categoryInternal       = "INT"
	categoryUnavailable    = "UNAVAIL"
	categoryTimeout        = "TIMEOUT"
)

// Validation errors (VAL_xxx), HTTP 400.
const (
	// CodeValidation indicates a general input validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field or parameter is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeValidationFormat indicates a value has an invalid format, such as
	// a relative redirect URI or a tenant id that is not a UUID.
	CodeValidationFormat Code = "VAL_003"

	// CodeValidationState indicates the opaque authentication state returned
	// by the identity provider could not be decoded.
	CodeValidationState Code = "VAL_004"

	// CodeValidationProvider indicates the identity provider returned an
	// error on the callback.
	CodeValidationProvider Code = "VAL_005"
)

// Authentication errors (AUTH_xxx), HTTP 401. These never expose the reason
// to the caller; the reason is logged.
const (
	// CodeAuthentication indicates a general authentication failure.
	CodeAuthentication Code = "AUTH_001"

	// CodeAuthenticationMissing indicates no bearer token was presented.
	CodeAuthenticationMissing Code = "AUTH_002"

	// CodeAuthenticationInvalid indicates the token is malformed or its
	// signature does not verify against the trusted key set.
	CodeAuthenticationInvalid Code = "AUTH_003"

	// CodeAuthenticationExpired indicates the token is expired or not yet valid.
	CodeAuthenticationExpired Code = "AUTH_004"

	// CodeAuthenticationAlgorithm indicates the token is signed with an
	// algorithm outside the allow-list.
	CodeAuthenticationAlgorithm Code = "AUTH_005"

	// CodeAuthenticationIssuer indicates the issuer claim is not trusted.
	CodeAuthenticationIssuer Code = "AUTH_006"

	// CodeAuthenticationAudience indicates the audience claim does not match.
	CodeAuthenticationAudience Code = "AUTH_007"

	// CodeAuthenticationClaims indicates a required claim (such as sub) is absent.
	CodeAuthenticationClaims Code = "AUTH_008"
)

// Authorization errors (AUTHZ_xxx), HTTP 403.
const (
	// CodeAuthorization indicates a general authorization failure.
	CodeAuthorization Code = "AUTHZ_001"

	// CodeAuthorizationTenant indicates the subject holds no assignment for
	// the requested tenant.
	CodeAuthorizationTenant Code = "AUTHZ_002"

	// CodeAuthorizationAction indicates none of the subject's roles allow
	// the requested action.
	CodeAuthorizationAction Code = "AUTHZ_003"
)

// Not found errors (NF_xxx), HTTP 404.
const (
	// CodeNotFound indicates a general not found error.
	CodeNotFound Code = "NF_001"

	// CodeNotFoundAssignment indicates no (user, tenant) assignment exists.
	CodeNotFoundAssignment Code = "NF_002"

	// CodeNotFoundSetting indicates no (user, key) setting exists.
	CodeNotFoundSetting Code = "NF_003"

	// CodeNotFoundObject indicates an object is missing from object storage.
	CodeNotFoundObject Code = "NF_004"
)

// Configuration errors (CFG_xxx), HTTP 500. Raised at startup; the process
// must not serve traffic while one is outstanding.
const (
	// CodeConfiguration indicates a general configuration error.
	CodeConfiguration Code = "CFG_001"

	// CodeConfigurationKey indicates this service's own signing key pair is
	// missing or cannot be decoded.
	CodeConfigurationKey Code = "CFG_002"

	// CodeConfigurationTrust indicates trust parameters are inconsistent,
	// for example an empty algorithm allow-list.
	CodeConfigurationTrust Code = "CFG_003"
)

// Internal errors (INT_xxx), HTTP 500.
const (
	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalStore indicates a tenant store operation failed.
	CodeInternalStore Code = "INT_002"

	// CodeInternalConfiguration indicates the configuration loader failed.
	CodeInternalConfiguration Code = "INT_003"

	// CodeInternalSigning indicates token signing failed.
	CodeInternalSigning Code = "INT_004"
)

// Unavailable errors (UNAVAIL_xxx), HTTP 503. Transient; never cached.
const (
	// CodeUnavailable indicates a general unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableDependency indicates a store or object storage
	// dependency could not be reached.
	CodeUnavailableDependency Code = "UNAVAIL_002"

	// CodeUnavailableKeys indicates the external signing key set could not
	// be fetched from the identity provider.
	CodeUnavailableKeys Code = "UNAVAIL_003"
)

// Timeout errors (TIMEOUT_xxx), HTTP 504. Transient.
const (
	// CodeTimeout indicates a general timeout.
	CodeTimeout Code = "TIMEOUT_001"

	// CodeTimeoutStore indicates a tenant store call exceeded its deadline.
	CodeTimeoutStore Code = "TIMEOUT_002"

	// CodeTimeoutDependency indicates an outbound call exceeded its deadline.
	CodeTimeoutDependency Code = "TIMEOUT_003"
)

// String returns the code as a plain string.
func (c Code) String() string {
	return string(c)
}

// Category returns the prefix before the first underscore ("AUTH" for
// "AUTH_003"), or the whole code if it has none.
func (c Code) Category() string {
	category, _, _ := strings.Cut(string(c), "_")
	return category
}
