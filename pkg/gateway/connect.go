package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/StricklySoft/identity-gateway/pkg/auth"
	sserr "github.com/StricklySoft/identity-gateway/pkg/errors"
	"github.com/StricklySoft/identity-gateway/pkg/tenant"
	"github.com/StricklySoft/identity-gateway/pkg/token"
)

// ClientCredentialsType is the type claim of tokens minted for service
// clients.
const ClientCredentialsType = "Client Credentials"

// authState round-trips through the identity provider as the state
// parameter.
type authState struct {
	ReturnURL  string `json:"returnUrl"`
	State      string `json:"state,omitempty"`
	Tenant     string `json:"tenant,omitempty"`
	Nonce      string `json:"nonce,omitempty"`
	ClientID   string `json:"clientId,omitempty"`
	Invitation string `json:"invitation,omitempty"`
}

// callbackURL is where the provider posts the id_token back to.
func callbackURL(r *http.Request) string {
	return strings.TrimSuffix(token.IssuerFromRequest(r), "/") + "/connect/callback"
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	redirect := q.Get("redirect_uri")
	if !absoluteURL(redirect) {
		s.writeFailure(w, r, sserr.New(sserr.CodeValidationFormat, "gateway: redirect_uri must be an absolute URI"))
		return
	}
	if q.Has("tenant") {
		if _, err := uuid.Parse(q.Get("tenant")); err != nil {
			s.writeFailure(w, r, sserr.New(sserr.CodeValidationFormat, "gateway: tenant must be a UUID"))
			return
		}
	}

	state, err := json.Marshal(authState{
		ReturnURL:  redirect,
		State:      q.Get("state"),
		Tenant:     q.Get("tenant"),
		Nonce:      q.Get("nonce"),
		ClientID:   q.Get("client_id"),
		Invitation: q.Get("invite"),
	})
	if err != nil {
		s.writeFailure(w, r, sserr.Wrap(err, sserr.CodeInternal, "gateway: encode state"))
		return
	}

	target, err := url.Parse(s.cfg.ProviderAuthorizeURI)
	if err != nil {
		s.writeFailure(w, r, sserr.Wrap(err, sserr.CodeInternalConfiguration, "gateway: provider authorize uri"))
		return
	}
	query := target.Query()
	query.Set("state", string(state))
	query.Set("redirect_uri", callbackURL(r))
	target.RawQuery = query.Encode()

	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		s.writeFailure(w, r, sserr.Wrap(err, sserr.CodeValidation, "gateway: unreadable form"))
		return
	}

	if providerErr := r.PostForm.Get("error"); providerErr != "" {
		s.writeFailure(w, r, sserr.New(sserr.CodeValidationProvider, "gateway: identity provider returned an error").
			WithDetail("provider_error", providerErr).
			WithDetail("provider_error_description", r.PostForm.Get("error_description")))
		return
	}

	var state authState
	if err := json.Unmarshal([]byte(r.PostForm.Get("state")), &state); err != nil || !absoluteURL(state.ReturnURL) {
		s.writeFailure(w, r, sserr.New(sserr.CodeValidationState, "gateway: invalid state from authentication redirect"))
		return
	}

	vt, err := s.verifyExternal(ctx, r.PostForm.Get("id_token"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	claims := vt.Claims.Keep(auth.ClaimSubject, auth.ClaimName)
	sub, ok := claims.Subject()
	if !ok || sub == "" {
		s.writeFailure(w, r, sserr.New(sserr.CodeAuthenticationClaims, "gateway: id_token has no subject"))
		return
	}
	name, _ := claims.Get(auth.ClaimName)

	if state.Invitation != "" {
		if err := s.acceptInvitation(ctx, state.Invitation, sub, name); err != nil {
			s.writeFailure(w, r, err)
			return
		}
	}

	if emails := vt.Claims.All(auth.ClaimEmails); len(emails) > 0 {
		claims.Add(auth.ClaimEmail, emails[0])
	}
	if state.Nonce != "" {
		claims.Add(auth.ClaimNonce, state.Nonce)
	}

	signed, _, err := s.deps.Issuer.Issue(ctx, token.IssueRequest{
		Claims:   claims,
		Tenant:   state.Tenant,
		Issuer:   token.IssuerFromRequest(r),
		Audience: state.ClientID,
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	// The token travels in the fragment so browsers never send it to the
	// return host.
	ret, _ := url.Parse(state.ReturnURL)
	ret.Fragment, ret.RawFragment = "", ""
	location := ret.String() + "#id_token=" + signed + "&state=" + url.QueryEscape(state.State)
	http.Redirect(w, r, location, http.StatusFound)
}

// verifyExternal validates a provider-issued id_token.
func (s *Server) verifyExternal(ctx context.Context, idToken string) (*auth.VerifiedToken, error) {
	if !s.deps.Trust.EnsureReady(ctx) {
		return nil, sserr.New(sserr.CodeUnavailableKeys, "gateway: provider keys are not available")
	}
	params, ok := s.deps.Trust.TrustParameters()
	if !ok {
		return nil, sserr.New(sserr.CodeUnavailableKeys, "gateway: provider keys are not available")
	}
	return s.deps.Validator.Parse(idToken, params)
}

// acceptInvitation turns an invitation token minted by this service into a
// member assignment for sub.
func (s *Server) acceptInvitation(ctx context.Context, invitation, sub, name string) error {
	vt, err := s.deps.Issuer.VerifyInternal(invitation)
	if err != nil {
		return err
	}
	tenantID, ok := vt.Claims.Get(auth.ClaimTenant)
	if !ok || tenantID == "" {
		return sserr.New(sserr.CodeValidationState, "gateway: invitation has no tenant")
	}
	// Invitations name their placeholder in both sub and userId. Session
	// tokens carry no userId and are refused here.
	placeholder, _ := vt.Claims.Get(auth.ClaimUserID)
	invitee, _ := vt.Claims.Subject()
	if placeholder == "" || placeholder != invitee {
		return sserr.New(sserr.CodeAuthorizationTenant, "gateway: token is not an invitation")
	}
	return s.deps.Resolver.Accept(ctx, tenant.Invitation{
		PlaceholderID: placeholder,
		TenantID:      tenantID,
	}, sub, name)
}

func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	bearer := bearerToken(r)
	if bearer == "" {
		s.writeFailure(w, r, sserr.New(sserr.CodeAuthenticationMissing, "gateway: no bearer token"))
		return
	}
	signed, err := s.deps.Issuer.Switch(r.Context(), bearer, chi.URLParam(r, "tenant"), token.IssuerFromRequest(r))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeToken(w, signed)
}

// clientCredentialsInput is the JSON body of POST /connect/token.
type clientCredentialsInput struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Scope        string `json:"scope"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in clientCredentialsInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		s.writeFailure(w, r, sserr.Wrap(err, sserr.CodeValidationFormat, "gateway: body must be a JSON object"))
		return
	}
	if in.ClientID == "" || in.ClientSecret == "" {
		s.writeFailure(w, r, sserr.New(sserr.CodeValidationRequired, "gateway: client_id and client_secret are required"))
		return
	}

	tokenURI, err := s.providerTokenURI(ctx)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	cc := clientcredentials.Config{
		ClientID:     in.ClientID,
		ClientSecret: in.ClientSecret,
		TokenURL:     tokenURI,
		Scopes:       s.cfg.ClientScopes,
	}
	if _, err := cc.Token(context.WithValue(ctx, oauth2.HTTPClient, s.deps.HTTPClient)); err != nil {
		s.writeFailure(w, r, sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "gateway: client credentials rejected").
			WithDetail("client_id", in.ClientID))
		return
	}

	assignments, err := s.deps.Resolver.Store().ListAssignments(ctx, in.ClientID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	granted := slices.ContainsFunc(assignments, func(a tenant.Assignment) bool {
		return in.Scope == "" || a.TenantID == in.Scope
	})
	if !granted {
		s.writeFailure(w, r, sserr.New(sserr.CodeAuthorizationTenant, "gateway: client has no access to the tenant").
			WithDetail("client_id", in.ClientID).
			WithDetail("tenant", in.Scope))
		return
	}

	claims := auth.NewClaimSet(
		auth.Claim{Type: auth.ClaimClientID, Value: in.ClientID},
		auth.Claim{Type: auth.ClaimSubject, Value: in.ClientID},
		auth.Claim{Type: auth.ClaimName, Value: in.ClientID},
		auth.Claim{Type: auth.ClaimType, Value: ClientCredentialsType},
	)
	signed, _, err := s.deps.Issuer.Issue(ctx, token.IssueRequest{
		Claims:   claims,
		Tenant:   in.Scope,
		Issuer:   token.IssuerFromRequest(r),
		Audience: s.cfg.ClientAudience,
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeToken(w, signed)
}

func (s *Server) providerTokenURI(ctx context.Context) (string, error) {
	if s.cfg.ProviderTokenURI != "" {
		return s.cfg.ProviderTokenURI, nil
	}
	if !s.deps.Trust.EnsureReady(ctx) {
		return "", sserr.New(sserr.CodeUnavailableKeys, "gateway: provider configuration is not available")
	}
	doc, ok := s.deps.Trust.Document()
	if !ok || doc.TokenEndpoint == "" {
		return "", sserr.New(sserr.CodeInternalConfiguration, "gateway: provider publishes no token endpoint")
	}
	return doc.TokenEndpoint, nil
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	redirect := r.URL.Query().Get("post_logout_redirect_uri")
	if !absoluteURL(redirect) {
		s.writeFailure(w, r, sserr.New(sserr.CodeValidationFormat, "gateway: post_logout_redirect_uri must be an absolute URI"))
		return
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}
