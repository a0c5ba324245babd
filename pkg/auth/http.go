package auth

import (
	"encoding/json"
	"net/http"
)

// MessageForbidden is the body message written by [RequireAction].
const MessageForbidden = "Forbidden"

// httpRequest adapts *http.Request to [Request].
type httpRequest struct{ r *http.Request }

func (h httpRequest) Path() string { return h.r.URL.Path }

func (h httpRequest) Header(name string) string { return h.r.Header.Get(name) }

func (h httpRequest) HasHeader(name string) bool {
	_, ok := h.r.Header[http.CanonicalHeaderKey(name)]
	return ok
}

// HTTPRequest wraps r as a [Request].
func HTTPRequest(r *http.Request) Request { return httpRequest{r: r} }

// Handler returns HTTP middleware running [Middleware.Decide] on each
// request. Forwarded requests carry the [AuthorizationContext] in their
// context.
//
// Example:
//
//	r := chi.NewRouter()
//	r.Use(mw.Handler)
//	r.With(auth.RequireAction(auth.ActionDeleteDevices)).Delete("/devices/{id}", deleteDevice)
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out := m.Decide(r.Context(), HTTPRequest(r))
		switch {
		case out.Decision == DecisionServiceUnavailable:
			WriteError(w, http.StatusServiceUnavailable, MessageServiceUnavailable)
			return
		case !out.Forward:
			WriteError(w, http.StatusUnauthorized, MessageAuthenticationRequired)
			return
		}
		ctx := ContextWithAuthorization(r.Context(), out.Authorization)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAction returns middleware that answers 403 unless the request's
// [AuthorizationContext] allows action. Requests that reached it without
// passing through [Middleware.Handler] are answered 401.
func RequireAction(action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, ok := AuthorizationFromContext(r.Context())
			if !ok {
				WriteError(w, http.StatusUnauthorized, MessageAuthenticationRequired)
				return
			}
			if !ac.Allowed(action) {
				WriteError(w, http.StatusForbidden, MessageForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// errorBody is the JSON error shape shared by every endpoint.
type errorBody struct {
	Error string `json:"Error"`
}

// WriteError writes {"Error": message} with status.
func WriteError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body, _ := json.Marshal(errorBody{Error: message})
	_, _ = w.Write(body)
}

// TenantRoundTripper wraps an [http.RoundTripper] to set the internal
// tenant header on outgoing requests from the tenant in the request
// context. Requests without a tenant in context, or that already carry the
// header, are sent unchanged.
//
// Example:
//
//	client := &http.Client{Transport: auth.NewTenantRoundTripper(nil)}
//	resp, err := client.Do(req.WithContext(ctx))
type TenantRoundTripper struct {
	wrapped http.RoundTripper
	header  string
}

// NewTenantRoundTripper wraps transport. If transport is nil,
// [http.DefaultTransport] is used.
func NewTenantRoundTripper(transport http.RoundTripper) *TenantRoundTripper {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &TenantRoundTripper{wrapped: transport, header: HeaderTenant}
}

// RoundTrip implements [http.RoundTripper].
func (t *TenantRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	tenantID, ok := TenantFromContext(r.Context())
	if !ok || r.Header.Get(t.header) != "" {
		return t.wrapped.RoundTrip(r)
	}
	clone := r.Clone(r.Context())
	clone.Header.Set(t.header, tenantID)
	return t.wrapped.RoundTrip(clone)
}
