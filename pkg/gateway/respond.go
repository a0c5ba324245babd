package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/StricklySoft/identity-gateway/pkg/auth"
	sserr "github.com/StricklySoft/identity-gateway/pkg/errors"
)

// maxBodyBytes bounds JSON and form request bodies.
const maxBodyBytes = 64 << 10

// writeFailure logs err and writes the JSON error body for its status.
// Only validation messages reach the caller; every other class gets a
// fixed message.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := sserr.AsError(err)
	if !ok {
		e = sserr.Wrap(err, sserr.CodeInternal, "gateway: unexpected error")
	}
	status := e.HTTPStatus()

	attrs := append([]any{"path", r.URL.Path, "status", status}, e.LogAttrs()...)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "gateway: request failed", attrs...)
	} else {
		s.logger.InfoContext(r.Context(), "gateway: request rejected", attrs...)
	}

	auth.WriteError(w, status, publicMessage(e, status))
}

func publicMessage(e *sserr.Error, status int) string {
	switch {
	case sserr.IsValidation(e):
		// Drop the "pkg: " prefix of internal messages.
		if _, msg, ok := strings.Cut(e.Message, ": "); ok {
			return msg
		}
		return e.Message
	case status == http.StatusUnauthorized:
		return auth.MessageAuthenticationRequired
	case status == http.StatusForbidden:
		return auth.MessageForbidden
	case status == http.StatusServiceUnavailable:
		return auth.MessageServiceUnavailable
	default:
		return http.StatusText(status)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		auth.WriteError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeToken answers with the bare token string.
func writeToken(w http.ResponseWriter, signed string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(signed))
}

func bearerToken(r *http.Request) string {
	return auth.ExtractBearerToken(r.Header.Get(auth.HeaderAuthorization))
}
