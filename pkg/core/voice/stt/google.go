package stt

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
	// DefaultGoogleBaseURL is the Cloud Speech-to-Text endpoint.
	DefaultGoogleBaseURL = "https://speech.googleapis.com"

	googleName            = "google-speech"
	defaultLanguage       = "en-US"
	defaultOpusSampleRate = 48000
)

// GoogleProvider implements Provider with the Cloud Speech-to-Text v1 REST API.
type GoogleProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewGoogle creates a Cloud Speech provider authenticated with an API key.
func NewGoogle(apiKey string) *GoogleProvider {
	return &GoogleProvider{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    DefaultGoogleBaseURL,
		httpClient: &http.Client{},
	}
}

// NewGoogleWithClient creates a Cloud Speech provider with a custom base URL and HTTP client.
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

type recognizeRequest struct {
	Config recognitionConfig `json:"config"`
	Audio  recognitionAudio  `json:"audio"`
}

type recognitionConfig struct {
	Encoding        string `json:"encoding,omitempty"`
	SampleRateHertz int    `json:"sampleRateHertz,omitempty"`
	LanguageCode    string `json:"languageCode"`
	Model           string `json:"model,omitempty"`
}

type recognitionAudio struct {
	Content string `json:"content"`
}

type recognizeResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
		LanguageCode string `json:"languageCode"`
	} `json:"results"`
}

// Transcribe sends the whole clip to speech:recognize. An empty result set is
// reported as no_speech_detected.
func (g *GoogleProvider) Transcribe(ctx context.Context, audio io.Reader, opts TranscribeOptions) (*Transcript, error) {
	if g.apiKey == "" {
		return nil, core.NewNoAPIKeyError(googleName)
	}

	audioData, err := io.ReadAll(audio)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	language := opts.Language
	if language == "" {
		language = defaultLanguage
	}
	encoding := googleEncoding(opts.Format)
	sampleRate := opts.SampleRate
	if sampleRate == 0 && (encoding == "WEBM_OPUS" || encoding == "OGG_OPUS") {
		sampleRate = defaultOpusSampleRate
	}

	body, err := json.Marshal(recognizeRequest{
		Config: recognitionConfig{
			Encoding:        encoding,
			SampleRateHertz: sampleRate,
			LanguageCode:    language,
			Model:           opts.Model,
		},
		Audio: recognitionAudio{Content: base64.StdEncoding.EncodeToString(audioData)},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	reqURL := g.baseURL + "/v1/speech:recognize?key=" + url.QueryEscape(g.apiKey)
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

	var parsed recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, core.NewNetworkError(googleName, fmt.Errorf("parse response: %w", err))
	}

	out := &Transcript{Language: language}
	var parts []string
	for i, result := range parsed.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		alt := result.Alternatives[0]
		if text := strings.TrimSpace(alt.Transcript); text != "" {
			parts = append(parts, text)
		}
		if i == 0 {
			out.Confidence = alt.Confidence
			if result.LanguageCode != "" {
				out.Language = result.LanguageCode
			}
		}
	}
	out.Text = strings.Join(parts, " ")
	if out.Text == "" {
		return nil, core.NewNoSpeechError()
	}
	return out, nil
}

// googleEncoding maps a format hint to a RecognitionConfig encoding. Unknown
// formats leave the encoding unset so the service sniffs the header (WAV, FLAC).
func googleEncoding(format string) string {
	switch strings.ToLower(format) {
	case "webm", "webm_opus", "opus":
		return "WEBM_OPUS"
	case "ogg", "ogg_opus":
		return "OGG_OPUS"
	case "pcm", "l16", "linear16", "s16le":
		return "LINEAR16"
	case "flac":
		return "FLAC"
	case "mp3", "mpeg":
		return "MP3"
	default:
		return ""
	}
}
