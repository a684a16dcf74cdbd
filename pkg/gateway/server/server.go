package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/vango-go/vlearn/pkg/core/session"
	"github.com/vango-go/vlearn/pkg/core/voice"
	"github.com/vango-go/vlearn/pkg/gateway/config"
	"github.com/vango-go/vlearn/pkg/gateway/handlers"
	"github.com/vango-go/vlearn/pkg/gateway/live/sessions"
	"github.com/vango-go/vlearn/pkg/gateway/metrics"
	"github.com/vango-go/vlearn/pkg/gateway/mw"
	"github.com/vango-go/vlearn/pkg/gateway/ratelimit"
	"github.com/vango-go/vlearn/pkg/mediastore"
)

// Deps are the session components the gateway serves. Capture and Playback
// are nil when voice is not configured; Remote must then be nil too.
type Deps struct {
	Session  *session.Controller
	Media    *mediastore.Store
	Capture  *voice.CaptureController
	Playback *voice.PlaybackController
	Remote   *handlers.Remote
	Metrics  *metrics.Metrics
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux
	deps   Deps

	draining atomic.Bool
	live     *sessions.Tracker
	uploads  *ratelimit.Limiter
}

func New(cfg config.Config, logger *slog.Logger, deps Deps) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Remote == nil {
		deps.Remote = handlers.NewRemote()
	}
	s := &Server{
		cfg:    cfg,
		logger: logger,
		mux:    http.NewServeMux(),
		deps:   deps,
		live:   sessions.NewTracker(),
	}
	if limits := (ratelimit.Config{
		RPS:           cfg.UploadRPS,
		Burst:         cfg.UploadBurst,
		MaxConcurrent: cfg.UploadMaxConcurrent,
	}); limits.Enabled() {
		s.uploads = ratelimit.New(limits)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("GET /healthz", handlers.HealthHandler{})
	s.mux.Handle("GET /readyz", handlers.ReadyHandler{Config: s.cfg, Draining: s.IsDraining})
	if s.cfg.MetricsEnabled && s.deps.Metrics != nil {
		s.mux.Handle("GET /metrics", s.deps.Metrics.Handler())
	}

	if s.deps.Session == nil {
		s.mux.Handle("/", handlers.NotFoundHandler{})
		return
	}

	if s.deps.Media != nil {
		media := handlers.MediaHandler{
			Store:          s.deps.Media,
			Session:        s.deps.Session,
			MaxUploadBytes: s.cfg.MaxUploadBytes,
			Metrics:        s.deps.Metrics,
			Logger:         s.logger,
		}
		s.mux.HandleFunc("GET /v1/media", media.List)
		s.mux.Handle("POST /v1/media", mw.RateLimit(s.uploads, s.logger, http.HandlerFunc(media.Upload)))
		s.mux.HandleFunc("DELETE /v1/media", media.Delete)
		s.mux.HandleFunc("DELETE /v1/media/{id}", media.Delete)
	}
	s.mux.Handle("GET /v1/export", handlers.ExportHandler{Session: s.deps.Session})
	s.mux.Handle("GET /v1/live", handlers.NewLiveHandler(handlers.LiveOptions{
		Config:   s.cfg,
		Logger:   s.logger,
		Session:  s.deps.Session,
		Capture:  s.deps.Capture,
		Playback: s.deps.Playback,
		Remote:   s.deps.Remote,
		Sessions: s.live,
		Metrics:  s.deps.Metrics,
		Draining: s.IsDraining,
	}))
	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = s.deps.Metrics.Middleware(h)
	h = mw.Auth(s.cfg, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining makes /readyz report unready and refuses new live connections.
func (s *Server) SetDraining() {
	s.draining.Store(true)
}

func (s *Server) IsDraining() bool {
	return s.draining.Load()
}

func (s *Server) WarnLiveSessionsDraining() int {
	return s.live.WarnAll("server_draining", "gateway is shutting down")
}

// WaitLiveSessions blocks until every live connection has closed or ctx ends.
func (s *Server) WaitLiveSessions(ctx context.Context) bool {
	return s.live.Wait(ctx)
}

func (s *Server) CancelLiveSessions() int {
	return s.live.CancelAll()
}

func (s *Server) LiveSessionCount() int {
	return s.live.Count()
}
