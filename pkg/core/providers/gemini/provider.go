// Package gemini implements the vision-language model gateway on top of the
// Google Gen AI SDK. One call sends one prompt and exactly one image.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/vango-go/vlearn/pkg/core"
	"github.com/vango-go/vlearn/pkg/core/types"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "gemini-2.0-flash"

	providerName = "gemini"
)

// Provider calls Gemini's generateContent endpoint.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration

	once      sync.Once
	client    *genai.Client
	clientErr error
}

// New creates a new Gemini provider. The SDK client is built lazily on the first call.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey: strings.TrimSpace(apiKey),
		model:  DefaultModel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return providerName
}

// Model returns the configured model name.
func (p *Provider) Model() string {
	return p.model
}

// Generate sends prompt together with the asset's image and returns the first
// candidate's text.
func (p *Provider) Generate(ctx context.Context, prompt string, media types.MediaAsset) (string, error) {
	if p.apiKey == "" {
		return "", core.NewNoAPIKeyError(providerName)
	}
	if media.NeedsContent() {
		return "", core.NewContentUnavailableError(media.ID)
	}
	data, err := media.Content.ReadContent()
	if err != nil {
		return "", &core.Error{
			Type:    core.ErrContentUnavailable,
			Message: fmt.Sprintf("read media %q: %v", media.ID, err),
			Param:   "media",
			Cause:   err,
		}
	}
	mimeType := media.MimeType
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	client, err := p.getClient(ctx)
	if err != nil {
		return "", err
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(data, mimeType),
		}, genai.RoleUser),
	}

	resp, err := client.Models.GenerateContent(ctx, p.model, contents, nil)
	if err != nil {
		return "", p.mapError(err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", core.NewEmptyResponseError(providerName)
	}
	return text, nil
}

func (p *Provider) getClient(ctx context.Context) (*genai.Client, error) {
	p.once.Do(func() {
		cfg := &genai.ClientConfig{
			APIKey:     p.apiKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: p.httpClient,
		}
		if p.baseURL != "" {
			cfg.HTTPOptions.BaseURL = p.baseURL
		}
		p.client, p.clientErr = genai.NewClient(ctx, cfg)
		if p.clientErr != nil {
			p.clientErr = core.NewNetworkError(providerName, fmt.Errorf("create client: %w", p.clientErr))
		}
	})
	return p.client, p.clientErr
}

func (p *Provider) mapError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden {
			return &core.Error{
				Type:    core.ErrNoAPIKey,
				Message: fmt.Sprintf("%s rejected the API key: %s", providerName, apiErr.Message),
				Cause:   err,
			}
		}
	}
	return core.NewNetworkError(providerName, err)
}
