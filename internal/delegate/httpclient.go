package delegate

import (
	"net"
	"net/http"
	"time"
)

const (
	// clientTimeout is the total request timeout for vendor calls.
	// Generation endpoints can take most of a minute under load.
	clientTimeout = 90 * time.Second
	// dialTimeout is the connection timeout.
	dialTimeout = 10 * time.Second
	// tlsHandshakeTimeout is the TLS negotiation timeout.
	tlsHandshakeTimeout = 10 * time.Second
)

// NewHTTPClient creates an HTTP client configured for vendor API calls.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: clientTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   dialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: tlsHandshakeTimeout,
			MaxIdleConns:        50,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
