package errors

import "errors"

// AsError returns the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode returns the code of the first *Error in err's chain, or "" if
// there is none.
func GetCode(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries exactly code.
func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}

func hasCategory(err error, category string) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == category
}

// IsValidation reports whether err is a VAL_xxx error.
func IsValidation(err error) bool { return hasCategory(err, categoryValidation) }

// IsAuthentication reports whether err is an AUTH_xxx error.
func IsAuthentication(err error) bool { return hasCategory(err, categoryAuthentication) }

// IsAuthorization reports whether err is an AUTHZ_xxx error.
func IsAuthorization(err error) bool { return hasCategory(err, categoryAuthorization) }

// IsNotFound reports whether err is an NF_xxx error.
func IsNotFound(err error) bool { return hasCategory(err, categoryNotFound) }

// IsConfiguration reports whether err is a CFG_xxx error.
func IsConfiguration(err error) bool { return hasCategory(err, categoryConfiguration) }

// IsInternal reports whether err is an INT_xxx error.
func IsInternal(err error) bool { return hasCategory(err, categoryInternal) }

// IsUnavailable reports whether err is an UNAVAIL_xxx error.
func IsUnavailable(err error) bool { return hasCategory(err, categoryUnavailable) }

// IsTimeout reports whether err is a TIMEOUT_xxx error.
func IsTimeout(err error) bool { return hasCategory(err, categoryTimeout) }

// IsTransient reports whether err is a dependency failure that the next
// request may not see: unavailable and timeout errors. Callers degrade the
// current request and keep no state derived from the failure.
func IsTransient(err error) bool {
	return IsUnavailable(err) || IsTimeout(err)
}

// IsRetryable is an alias of IsTransient kept for call sites that decide
// whether to retry rather than how to respond.
func IsRetryable(err error) bool {
	return IsTransient(err)
}

// IsClientError reports whether err maps to a 4xx response.
func IsClientError(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	status := e.HTTPStatus()
	return status >= 400 && status < 500
}

// IsServerError reports whether err maps to a 5xx response. Errors that are
// not *Error count as server errors.
func IsServerError(err error) bool {
	if err == nil {
		return false
	}
	e, ok := AsError(err)
	if !ok {
		return true
	}
	return e.HTTPStatus() >= 500
}
