package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/vango-go/vlearn/pkg/core"
)

const (
	// DefaultGoogleBaseURL is the Cloud Text-to-Speech endpoint.
	DefaultGoogleBaseURL = "https://texttospeech.googleapis.com"

	// DefaultVoice is a warm female WaveNet voice.
	DefaultVoice = "en-US-Wavenet-F"

	googleName      = "google-tts"
	defaultLanguage = "en-US"
	defaultGender   = "FEMALE"
)

// GoogleProvider implements Provider with the Cloud Text-to-Speech v1 REST API.
type GoogleProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewGoogle creates a Cloud Text-to-Speech provider authenticated with an API key.
func NewGoogle(apiKey string) *GoogleProvider {
	return &GoogleProvider{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    DefaultGoogleBaseURL,
		httpClient: &http.Client{},
	}
}

// NewGoogleWithClient creates a provider with a custom base URL and HTTP client.
func NewGoogleWithClient(apiKey, baseURL string, client *http.Client) *GoogleProvider {
	p := NewGoogle(apiKey)
	if baseURL != "" {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
	if client != nil {
		p.httpClient = client
	}
	return p
}

// Name returns the provider identifier.
func (g *GoogleProvider) Name() string {
	return googleName
}

type synthesizeRequest struct {
	Input       synthesisInput `json:"input"`
	Voice       voiceSelection `json:"voice"`
	AudioConfig audioConfig    `json:"audioConfig"`
}

type synthesisInput struct {
	Text string `json:"text"`
}

type voiceSelection struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name,omitempty"`
	SSMLGender   string `json:"ssmlGender,omitempty"`
}

type audioConfig struct {
	AudioEncoding   string  `json:"audioEncoding"`
	SpeakingRate    float64 `json:"speakingRate,omitempty"`
	SampleRateHertz int     `json:"sampleRateHertz,omitempty"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

// Synthesize calls text:synthesize. A response without audioContent is reported
// as no_audio_content.
func (g *GoogleProvider) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error) {
	if g.apiKey == "" {
		return nil, core.NewNoAPIKeyError(googleName)
	}

	voice := opts.Voice
	if voice == "" {
		voice = DefaultVoice
	}
	language := opts.Language
	if language == "" {
		language = defaultLanguage
	}
	gender := opts.Gender
	if gender == "" && voice == DefaultVoice {
		gender = defaultGender
	}
	format := strings.ToLower(opts.Format)
	if format == "" {
		format = "mp3"
	}
	encoding, mediaType := googleEncoding(format)

	body, err := json.Marshal(synthesizeRequest{
		Input: synthesisInput{Text: text},
		Voice: voiceSelection{LanguageCode: language, Name: voice, SSMLGender: gender},
		AudioConfig: audioConfig{
			AudioEncoding:   encoding,
			SpeakingRate:    opts.Speed,
			SampleRateHertz: opts.SampleRate,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	reqURL := g.baseURL + "/v1/text:synthesize?key=" + url.QueryEscape(g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, core.NewNetworkError(googleName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, core.NewNetworkError(googleName, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}

	var parsed synthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, core.NewNetworkError(googleName, fmt.Errorf("parse response: %w", err))
	}
	if parsed.AudioContent == "" {
		return nil, core.NewNoAudioContentError(googleName)
	}
	audio, err := base64.StdEncoding.DecodeString(parsed.AudioContent)
	if err != nil || len(audio) == 0 {
		return nil, core.NewNoAudioContentError(googleName)
	}

	return &Synthesis{Audio: audio, Format: format, MediaType: mediaType}, nil
}

func googleEncoding(format string) (encoding, mediaType string) {
	switch format {
	case "wav", "pcm", "linear16":
		return "LINEAR16", "audio/wav"
	case "ogg", "opus":
		return "OGG_OPUS", "audio/ogg"
	default:
		return "MP3", "audio/mpeg"
	}
}
