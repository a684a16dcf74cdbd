package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/vango-go/vlearn/pkg/core/providers/gemini"
	"github.com/vango-go/vlearn/pkg/core/session"
	"github.com/vango-go/vlearn/pkg/core/voice"
	"github.com/vango-go/vlearn/pkg/core/voice/stt"
	"github.com/vango-go/vlearn/pkg/core/voice/tts"
	"github.com/vango-go/vlearn/pkg/gateway/config"
	"github.com/vango-go/vlearn/pkg/gateway/handlers"
	"github.com/vango-go/vlearn/pkg/gateway/metrics"
	gatewayserver "github.com/vango-go/vlearn/pkg/gateway/server"
	"github.com/vango-go/vlearn/pkg/mediastore"
	"github.com/vango-go/vlearn/pkg/store"
)

// appOptions selects which parts of the session a command needs.
type appOptions struct {
	// Mic and Player enable voice when GOOGLE_CLOUD_API_KEY is set.
	Mic    voice.Microphone
	Player voice.Player
	// Ephemeral keeps the conversation in memory whatever the store driver.
	Ephemeral bool
	// WithMedia opens the configured media store.
	WithMedia bool
	// Restore reloads the saved conversation and media library.
	Restore bool
}

// app is one wired session: model, speech, persistence and media.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	kv     store.KV

	Session  *session.Controller
	Media    *mediastore.Store
	Pipeline *voice.Pipeline
	Capture  *voice.CaptureController
	Playback *voice.PlaybackController
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

func newGenerator(cfg config.Config, client *http.Client) *gemini.Provider {
	return gemini.New(cfg.GeminiAPIKey,
		gemini.WithModel(cfg.GeminiModel),
		gemini.WithBaseURL(cfg.GeminiBaseURL),
		gemini.WithHTTPClient(client),
		gemini.WithTimeout(cfg.GenerationTimeout),
	)
}

func newPipeline(cfg config.Config, client *http.Client) *voice.Pipeline {
	return voice.NewPipelineWithProviders(
		stt.NewGoogleWithClient(cfg.GoogleCloudAPIKey, cfg.SpeechBaseURL, client),
		tts.NewGoogleWithClient(cfg.GoogleCloudAPIKey, cfg.TTSBaseURL, client),
		voice.WithTranscribeOptions(stt.TranscribeOptions{Language: cfg.STTLanguage}),
		voice.WithSynthesizeOptions(tts.SynthesizeOptions{Voice: cfg.TTSVoice, Language: cfg.TTSLanguage, Format: "mp3"}),
	)
}

func openMediaStore(cfg config.Config, logger *slog.Logger) (*mediastore.Store, error) {
	var bucket mediastore.Bucket
	switch cfg.MediaDriver {
	case "s3":
		b, err := mediastore.NewS3Bucket(mediastore.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UsePathStyle:    cfg.S3PathStyle,
		})
		if err != nil {
			return nil, err
		}
		bucket = b
	default:
		b, err := mediastore.NewDirBucket(cfg.MediaDir)
		if err != nil {
			return nil, err
		}
		bucket = b
	}
	return mediastore.New(bucket, mediastore.WithLogger(logger)), nil
}

func openApp(ctx context.Context, cfg config.Config, logger *slog.Logger, opts appOptions) (*app, error) {
	if logger == nil {
		logger = slog.Default()
	}
	storeCfg := store.Config{
		Driver:        store.Driver(cfg.StoreDriver),
		SQLitePath:    cfg.SQLitePath,
		DatabaseURL:   cfg.DatabaseURL,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		Namespace:     "vlearn",
	}
	if opts.Ephemeral {
		storeCfg = store.Config{Driver: store.DriverMemory}
	}
	kv, err := store.Open(ctx, storeCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, kv: kv}
	client := newHTTPClient()

	sessOpts := session.Options{
		Generator:       newGenerator(cfg, client),
		Persister:       store.NewPersister(kv),
		Logger:          logger,
		SuggestionCount: cfg.SuggestionCount,
	}
	if strings.TrimSpace(cfg.GoogleCloudAPIKey) != "" && opts.Mic != nil && opts.Player != nil {
		a.Pipeline = newPipeline(cfg, client)
		a.Capture = voice.NewCaptureController(opts.Mic, a.Pipeline, logger)
		a.Playback = voice.NewPlaybackController(a.Pipeline, opts.Player, logger)
		sessOpts.Capture = a.Capture
		sessOpts.Speaker = a.Playback
	}
	a.Session = session.New(sessOpts)

	if opts.WithMedia {
		media, err := openMediaStore(cfg, logger)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("open media store: %w", err)
		}
		a.Media = media
	}

	if opts.Restore {
		if err := a.Session.Restore(ctx); err != nil {
			logger.Warn("restore session", "error", err)
		} else if a.Media != nil {
			if n := handlers.ReattachMedia(ctx, a.Session, a.Media, logger); n > 0 {
				logger.Info("media reattached", "count", n)
			}
		}
	}
	return a, nil
}

func (a *app) VoiceEnabled() bool {
	return a.Capture != nil && a.Playback != nil
}

// Close stops voice and releases the store.
func (a *app) Close() error {
	if a == nil {
		return nil
	}
	if a.Capture != nil {
		a.Capture.Cancel()
	}
	if a.Playback != nil {
		a.Playback.Stop()
	}
	if a.kv == nil {
		return nil
	}
	if err := a.kv.Close(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

func (a *app) gatewayDeps(remote *handlers.Remote, m *metrics.Metrics) gatewayserver.Deps {
	return gatewayserver.Deps{
		Session:  a.Session,
		Media:    a.Media,
		Capture:  a.Capture,
		Playback: a.Playback,
		Remote:   remote,
		Metrics:  m,
	}
}

func newGateway(cfg config.Config, logger *slog.Logger, deps gatewayserver.Deps) *gatewayserver.Server {
	return gatewayserver.New(cfg, logger, deps)
}
