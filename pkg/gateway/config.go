package gateway

import (
	"fmt"
	"net/url"
	"time"
)

// Config configures the HTTP surface.
type Config struct {
	ListenAddress string `env:"LISTEN_ADDRESS" envDefault:":8080" yaml:"listen_address" json:"listen_address"`

	// ProviderAuthorizeURI is the identity provider's sign-in page. Its
	// existing query parameters are kept when the state and redirect are
	// added.
	ProviderAuthorizeURI string `env:"PROVIDER_AUTHORIZE_URI" required:"true" yaml:"provider_authorize_uri" json:"provider_authorize_uri"`

	// ProviderTokenURI is the provider endpoint for the client-credentials
	// exchange. When empty, the token_endpoint of the discovery document
	// is used.
	ProviderTokenURI string `env:"PROVIDER_TOKEN_URI" yaml:"provider_token_uri" json:"provider_token_uri"`

	ClientScopes []string `env:"CLIENT_SCOPES" envDefault:"https://graph.microsoft.com/.default" yaml:"client_scopes" json:"client_scopes"`

	// ClientAudience is the aud of tokens minted for service clients.
	ClientAudience string `env:"CLIENT_AUDIENCE" envDefault:"IoTPlatform" yaml:"client_audience" json:"client_audience"`

	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"10s" yaml:"read_header_timeout" json:"read_header_timeout"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// Validate reports unusable settings.
func (c *Config) Validate() error {
	if !absoluteURL(c.ProviderAuthorizeURI) {
		return fmt.Errorf("gateway: provider_authorize_uri %q must be an absolute URL", c.ProviderAuthorizeURI)
	}
	if c.ProviderTokenURI != "" && !absoluteURL(c.ProviderTokenURI) {
		return fmt.Errorf("gateway: provider_token_uri %q must be an absolute URL", c.ProviderTokenURI)
	}
	if c.ClientAudience == "" {
		return fmt.Errorf("gateway: client_audience must not be empty")
	}
	return nil
}

// absoluteURL reports whether s parses with a scheme and a host.
func absoluteURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}
