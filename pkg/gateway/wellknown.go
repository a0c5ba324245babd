package gateway

import (
	"net/http"
	"strings"

	"github.com/StricklySoft/identity-gateway/pkg/auth"
	sserr "github.com/StricklySoft/identity-gateway/pkg/errors"
	"github.com/StricklySoft/identity-gateway/pkg/keys"
	"github.com/StricklySoft/identity-gateway/pkg/tenant"
	"github.com/StricklySoft/identity-gateway/pkg/token"
)

// discoveryDocument describes this service as a token issuer.
type discoveryDocument struct {
	Issuer                string   `json:"issuer"`
	JWKSURI               string   `json:"jwks_uri"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	EndSessionEndpoint    string   `json:"end_session_endpoint"`
	SigningAlgorithms     []string `json:"id_token_signing_alg_values_supported"`
	ResponseTypes         []string `json:"response_types_supported"`
	SubjectTypes          []string `json:"subject_types_supported"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	issuer := token.IssuerFromRequest(r)
	base := strings.TrimSuffix(issuer, "/")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSON(w, http.StatusOK, discoveryDocument{
		Issuer:                issuer,
		JWKSURI:               base + "/.well-known/openid-configuration/jwks",
		AuthorizationEndpoint: base + "/connect/authorize",
		TokenEndpoint:         base + "/connect/token",
		EndSessionEndpoint:    base + "/connect/logout",
		SigningAlgorithms:     []string{keys.SigningAlgorithm},
		ResponseTypes:         []string{"id_token"},
		SubjectTypes:          []string{"public"},
	})
}

func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	body, err := s.deps.KeyPair.JWKS()
	if err != nil {
		s.writeFailure(w, r, sserr.Wrap(err, sserr.CodeInternalSigning, "gateway: encode key set"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

type statusResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	State     string `json:"state"`
	Uptime    string `json:"uptime,omitempty"`
	OIDCReady bool   `json:"oidcReady"`
}

// handleStatus answers 200 while the service runs and 503 otherwise.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	info := s.deps.Service.Info()
	resp := statusResponse{
		Name:      info.Name,
		Version:   info.Version,
		State:     info.State.String(),
		OIDCReady: s.deps.Trust.Ready(),
	}
	if info.Uptime > 0 {
		resp.Uptime = info.Uptime.String()
	}
	status := http.StatusOK
	if s.deps.Service.Health(r.Context()) != nil {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

type tenantsResponse struct {
	Tenants []tenant.Assignment `json:"tenants"`
}

// handleTenants lists the assignments of the authenticated caller.
func (s *Server) handleTenants(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.AuthorizationFromContext(r.Context())
	if !ok || !ac.Authenticated || ac.Subject() == "" {
		s.writeFailure(w, r, sserr.New(sserr.CodeAuthenticationMissing, "gateway: authentication required"))
		return
	}
	list, err := s.deps.Resolver.Store().ListAssignments(r.Context(), ac.Subject())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if list == nil {
		list = []tenant.Assignment{}
	}
	writeJSON(w, http.StatusOK, tenantsResponse{Tenants: list})
}
