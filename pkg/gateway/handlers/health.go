package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vango-go/vlearn/pkg/gateway/config"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// ReadyHandler reports whether the gateway can serve turns. A missing Gemini
// key makes it unready; a missing speech key only disables voice.
type ReadyHandler struct {
	Config   config.Config
	Draining func() bool
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK           bool     `json:"ok"`
		AuthMode     string   `json:"auth_mode"`
		VoiceEnabled bool     `json:"voice_enabled"`
		StoreDriver  string   `json:"store_driver"`
		MediaDriver  string   `json:"media_driver"`
		Draining     bool     `json:"draining,omitempty"`
		Issues       []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 2)
	if strings.TrimSpace(h.Config.GeminiAPIKey) == "" {
		issues = append(issues, "GEMINI_API_KEY is not set")
	}
	draining := h.Draining != nil && h.Draining()
	if draining {
		issues = append(issues, "gateway is draining")
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:           ok,
		AuthMode:     string(h.Config.AuthMode),
		VoiceEnabled: strings.TrimSpace(h.Config.GoogleCloudAPIKey) != "",
		StoreDriver:  h.Config.StoreDriver,
		MediaDriver:  h.Config.MediaDriver,
		Draining:     draining,
		Issues:       issues,
	})
}
