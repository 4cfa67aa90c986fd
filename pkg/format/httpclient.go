package format

import (
	"net/http"
	"time"
)

// HTTPClient is an interface matching the Do method of *http.Client.
// This allows injecting mock clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient creates the default client used for probes and fetches.
// Redirects are followed up to ten hops.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}
