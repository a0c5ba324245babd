package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

// OIDCServer is an httptest identity provider serving a discovery document
// and a key set. Failures and stalls can be injected to exercise caching
// and retry behavior.
type OIDCServer struct {
	*httptest.Server

	mu        sync.Mutex
	jwks      []byte
	issuer    string
	failNext  int
	gate      chan struct{}
	discovery atomic.Int64
	keys      atomic.Int64
}

// NewOIDCServer starts a server publishing jwks. The issuer defaults to
// the server URL. The server is closed when the test ends.
func NewOIDCServer(t testing.TB, jwks []byte) *OIDCServer {
	t.Helper()
	s := &OIDCServer{jwks: jwks}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", s.serveDiscovery)
	mux.HandleFunc("GET /jwks", s.serveJWKS)
	mux.HandleFunc("POST /token", s.serveToken)
	s.Server = httptest.NewServer(mux)
	s.issuer = s.URL + "/"
	t.Cleanup(s.Close)
	return s
}

// Issuer returns the issuer published in the discovery document.
func (s *OIDCServer) Issuer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issuer
}

// SetIssuer changes the published issuer.
func (s *OIDCServer) SetIssuer(iss string) {
	s.mu.Lock()
	s.issuer = iss
	s.mu.Unlock()
}

// SetJWKS replaces the published key set.
func (s *OIDCServer) SetJWKS(jwks []byte) {
	s.mu.Lock()
	s.jwks = jwks
	s.mu.Unlock()
}

// FailNext makes the next n discovery requests answer 503.
func (s *OIDCServer) FailNext(n int) {
	s.mu.Lock()
	s.failNext = n
	s.mu.Unlock()
}

// Hold blocks discovery requests until the returned release func is
// called.
func (s *OIDCServer) Hold() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.gate = nil
			s.mu.Unlock()
			close(gate)
		})
	}
}

// DiscoveryHits returns the number of discovery requests served,
// including failed ones.
func (s *OIDCServer) DiscoveryHits() int { return int(s.discovery.Load()) }

// KeyHits returns the number of key set requests served.
func (s *OIDCServer) KeyHits() int { return int(s.keys.Load()) }

func (s *OIDCServer) serveDiscovery(w http.ResponseWriter, r *http.Request) {
	s.discovery.Add(1)

	s.mu.Lock()
	gate := s.gate
	fail := s.failNext > 0
	if fail {
		s.failNext--
	}
	issuer := s.issuer
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}
	if fail {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"issuer":                 issuer,
		"jwks_uri":               s.URL + "/jwks",
		"authorization_endpoint": s.URL + "/authorize",
		"token_endpoint":         s.URL + "/token",
		"end_session_endpoint":   s.URL + "/logout",
	})
}

func (s *OIDCServer) serveJWKS(w http.ResponseWriter, _ *http.Request) {
	s.keys.Add(1)
	s.mu.Lock()
	body := s.jwks
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

// serveToken answers client-credentials requests. The secret "secret"
// succeeds; anything else is rejected with invalid_client.
func (s *OIDCServer) serveToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	_, secret, ok := r.BasicAuth()
	if !ok {
		secret = r.PostForm.Get("client_secret")
	}
	w.Header().Set("Content-Type", "application/json")
	if secret != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
		return
	}
	_, _ = w.Write([]byte(`{"access_token":"provider-access-token","token_type":"Bearer","expires_in":3600}`))
}
