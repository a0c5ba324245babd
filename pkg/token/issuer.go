package token

import (
	"net/http"
	"strings"
)

// IssuerFromRequest returns the iss value for tokens minted while serving
// r: https://<host>/ where host is the first X-Forwarded-Host value set by
// a reverse proxy, or the request's own Host.
func IssuerFromRequest(r *http.Request) string {
	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			host = first
		}
	}
	return "https://" + host + "/"
}
