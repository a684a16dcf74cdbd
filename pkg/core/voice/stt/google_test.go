package stt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vango-go/vlearn/pkg/core"
)

func TestGoogleTranscribe_BuildsRequestAndJoinsResults(t *testing.T) {
	var got recognizeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/speech:recognize" {
			t.Errorf("path = %q, want /v1/speech:recognize", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "k-123" {
			t.Errorf("key = %q, want k-123", r.URL.Query().Get("key"))
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = io.WriteString(w, `{"results":[
			{"alternatives":[{"transcript":"I see three","confidence":0.9}],"languageCode":"en-us"},
			{"alternatives":[{"transcript":" circles "}]}
		]}`)
	}))
	defer srv.Close()

	p := NewGoogleWithClient("k-123", srv.URL, srv.Client())
	tr, err := p.Transcribe(context.Background(), bytes.NewReader([]byte("opus")), TranscribeOptions{Format: "webm"})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if tr.Text != "I see three circles" {
		t.Fatalf("Text = %q, want %q", tr.Text, "I see three circles")
	}
	if tr.Language != "en-us" {
		t.Fatalf("Language = %q, want en-us", tr.Language)
	}
	if got.Config.Encoding != "WEBM_OPUS" || got.Config.SampleRateHertz != 48000 || got.Config.LanguageCode != "en-US" {
		t.Fatalf("config = %+v, want WEBM_OPUS/48000/en-US", got.Config)
	}
	if got.Audio.Content != base64.StdEncoding.EncodeToString([]byte("opus")) {
		t.Fatalf("audio content = %q", got.Audio.Content)
	}
}

func TestGoogleTranscribe_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	p := NewGoogleWithClient("k", srv.URL, srv.Client())
	_, err := p.Transcribe(context.Background(), bytes.NewReader([]byte("x")), TranscribeOptions{})
	if !core.IsType(err, core.ErrNoSpeechDetected) {
		t.Fatalf("Transcribe() error = %v, want %s", err, core.ErrNoSpeechDetected)
	}
}

func TestGoogleTranscribe_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewGoogleWithClient("k", srv.URL, srv.Client())
	_, err := p.Transcribe(context.Background(), bytes.NewReader([]byte("x")), TranscribeOptions{})
	if !core.IsType(err, core.ErrNetwork) {
		t.Fatalf("Transcribe() error = %v, want %s", err, core.ErrNetwork)
	}
}

func TestGoogleTranscribe_NoAPIKey(t *testing.T) {
	p := NewGoogle("")
	_, err := p.Transcribe(context.Background(), bytes.NewReader(nil), TranscribeOptions{})
	if !core.IsType(err, core.ErrNoAPIKey) {
		t.Fatalf("Transcribe() error = %v, want %s", err, core.ErrNoAPIKey)
	}
}

func TestGoogleEncoding(t *testing.T) {
	tests := map[string]string{
		"webm": "WEBM_OPUS",
		"OGG":  "OGG_OPUS",
		"pcm":  "LINEAR16",
		"flac": "FLAC",
		"mp3":  "MP3",
		"wav":  "",
	}
	for in, want := range tests {
		if got := googleEncoding(in); got != want {
			t.Errorf("googleEncoding(%q) = %q, want %q", in, got, want)
		}
	}
}
