package gemini

import (
	"net/http"
	"time"
)

// Option configures the Provider.
type Option func(*Provider)

// WithModel sets the model name. Default: gemini-2.0-flash
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL overrides the API endpoint. Empty keeps the SDK default.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = url
	}
}

// WithHTTPClient sets the HTTP client for API requests.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// WithTimeout bounds each Generate call. Zero means no deadline beyond the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}
