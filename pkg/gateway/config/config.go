package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeDisabled AuthMode = "disabled"
)

type Config struct {
	Addr string

	// Bearer tokens accepted by the HTTP surface. Empty disables auth.
	AuthMode AuthMode
	APIKeys  map[string]struct{}

	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Vision-language model.
	GeminiAPIKey      string
	GeminiModel       string
	GeminiBaseURL     string
	GenerationTimeout time.Duration // 0 => no deadline
	SuggestionCount   int

	// Speech.
	GoogleCloudAPIKey string
	SpeechBaseURL     string
	TTSBaseURL        string
	STTLanguage       string
	TTSVoice          string
	TTSLanguage       string

	// Key-value persistence.
	StoreDriver   string
	SQLitePath    string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Media storage.
	MediaDriver       string
	MediaDir          string
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3PathStyle       bool
	MaxUploadBytes    int64

	// Per-client upload budget. Zero RPS and zero concurrency disable it.
	UploadRPS           float64
	UploadBurst         int
	UploadMaxConcurrent int

	// Live WebSocket (/v1/live).
	WSWriteTimeout     time.Duration
	WSPingInterval     time.Duration
	WSMaxMessageBytes  int64
	WSHandshakeTimeout time.Duration

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
	MetricsEnabled      bool

	LogFormat string
	LogLevel  string
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("VLEARN_ADDR", ":8080"),
		APIKeys:             make(map[string]struct{}),
		CORSAllowedOrigins:  make(map[string]struct{}),
		GeminiAPIKey:        envOr("GEMINI_API_KEY", ""),
		GeminiModel:         envOr("VLEARN_GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiBaseURL:       envOr("VLEARN_GEMINI_BASE_URL", ""),
		GenerationTimeout:   envDurationOr("VLEARN_GENERATION_TIMEOUT", 0),
		SuggestionCount:     envIntOr("VLEARN_SUGGESTION_COUNT", 4),
		GoogleCloudAPIKey:   envOr("GOOGLE_CLOUD_API_KEY", ""),
		SpeechBaseURL:       envOr("VLEARN_SPEECH_BASE_URL", "https://speech.googleapis.com"),
		TTSBaseURL:          envOr("VLEARN_TTS_BASE_URL", "https://texttospeech.googleapis.com"),
		STTLanguage:         envOr("VLEARN_STT_LANGUAGE", "en-US"),
		TTSVoice:            envOr("VLEARN_TTS_VOICE", "en-US-Wavenet-F"),
		TTSLanguage:         envOr("VLEARN_TTS_LANGUAGE", "en-US"),
		StoreDriver:         strings.ToLower(envOr("VLEARN_STORE_DRIVER", "sqlite")),
		SQLitePath:          envOr("VLEARN_SQLITE_PATH", "data/vlearn.db"),
		DatabaseURL:         envOr("VLEARN_DATABASE_URL", ""),
		RedisAddr:           envOr("VLEARN_REDIS_ADDR", ""),
		RedisPassword:       envOr("VLEARN_REDIS_PASSWORD", ""),
		RedisDB:             envIntOr("VLEARN_REDIS_DB", 0),
		MediaDriver:         strings.ToLower(envOr("VLEARN_MEDIA_DRIVER", "dir")),
		MediaDir:            envOr("VLEARN_MEDIA_DIR", "data/media"),
		S3Bucket:            envOr("VLEARN_S3_BUCKET", ""),
		S3Region:            envOr("VLEARN_S3_REGION", "us-east-1"),
		S3Endpoint:          envOr("VLEARN_S3_ENDPOINT", ""),
		S3AccessKeyID:       envOr("VLEARN_S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey:   envOr("VLEARN_S3_SECRET_ACCESS_KEY", ""),
		S3PathStyle:         envBoolOr("VLEARN_S3_PATH_STYLE", false),
		MaxUploadBytes:      envInt64Or("VLEARN_MAX_UPLOAD_BYTES", 10<<20), // 10 MiB
		UploadRPS:           envFloatOr("VLEARN_UPLOAD_RPS", 1),
		UploadBurst:         envIntOr("VLEARN_UPLOAD_BURST", 10),
		UploadMaxConcurrent: envIntOr("VLEARN_UPLOAD_MAX_CONCURRENT", 2),
		WSWriteTimeout:      envDurationOr("VLEARN_WS_WRITE_TIMEOUT", 5*time.Second),
		WSPingInterval:      envDurationOr("VLEARN_WS_PING_INTERVAL", 20*time.Second),
		WSMaxMessageBytes:   envInt64Or("VLEARN_WS_MAX_MESSAGE_BYTES", 1<<20),
		WSHandshakeTimeout:  envDurationOr("VLEARN_WS_HANDSHAKE_TIMEOUT", 10*time.Second),
		ReadHeaderTimeout:   envDurationOr("VLEARN_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod: envDurationOr("VLEARN_SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		MetricsEnabled:      envBoolOr("VLEARN_METRICS_ENABLED", true),
		LogFormat:           strings.ToLower(envOr("VLEARN_LOG_FORMAT", "text")),
		LogLevel:            strings.ToLower(envOr("VLEARN_LOG_LEVEL", "info")),
	}

	for _, key := range splitCSV(os.Getenv("VLEARN_API_KEYS")) {
		cfg.APIKeys[key] = struct{}{}
	}
	cfg.AuthMode = AuthModeDisabled
	if len(cfg.APIKeys) > 0 {
		cfg.AuthMode = AuthModeRequired
	}

	for _, origin := range splitCSV(os.Getenv("VLEARN_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and driver-specific requirements.
func (cfg Config) Validate() error {
	if cfg.SuggestionCount < 1 || cfg.SuggestionCount > 6 {
		return fmt.Errorf("VLEARN_SUGGESTION_COUNT must be between 1 and 6")
	}
	if cfg.GenerationTimeout < 0 {
		return fmt.Errorf("VLEARN_GENERATION_TIMEOUT must be >= 0")
	}

	switch cfg.StoreDriver {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			return fmt.Errorf("VLEARN_SQLITE_PATH must be set when VLEARN_STORE_DRIVER=sqlite")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return fmt.Errorf("VLEARN_DATABASE_URL must be set when VLEARN_STORE_DRIVER=postgres")
		}
	case "redis":
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return fmt.Errorf("VLEARN_REDIS_ADDR must be set when VLEARN_STORE_DRIVER=redis")
		}
	default:
		return fmt.Errorf("VLEARN_STORE_DRIVER must be one of memory|sqlite|postgres|redis")
	}
	if cfg.RedisDB < 0 {
		return fmt.Errorf("VLEARN_REDIS_DB must be >= 0")
	}

	switch cfg.MediaDriver {
	case "dir":
		if strings.TrimSpace(cfg.MediaDir) == "" {
			return fmt.Errorf("VLEARN_MEDIA_DIR must be set when VLEARN_MEDIA_DRIVER=dir")
		}
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return fmt.Errorf("VLEARN_S3_BUCKET must be set when VLEARN_MEDIA_DRIVER=s3")
		}
	default:
		return fmt.Errorf("VLEARN_MEDIA_DRIVER must be one of dir|s3")
	}

	if cfg.MaxUploadBytes <= 0 {
		return fmt.Errorf("VLEARN_MAX_UPLOAD_BYTES must be > 0")
	}
	if cfg.UploadRPS < 0 || cfg.UploadBurst < 0 || cfg.UploadMaxConcurrent < 0 {
		return fmt.Errorf("VLEARN_UPLOAD_RPS, VLEARN_UPLOAD_BURST and VLEARN_UPLOAD_MAX_CONCURRENT must be >= 0")
	}
	if cfg.UploadRPS > 0 && cfg.UploadBurst == 0 {
		return fmt.Errorf("VLEARN_UPLOAD_BURST must be > 0 when VLEARN_UPLOAD_RPS is set")
	}
	if cfg.WSWriteTimeout <= 0 {
		return fmt.Errorf("VLEARN_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return fmt.Errorf("VLEARN_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSMaxMessageBytes <= 0 {
		return fmt.Errorf("VLEARN_WS_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.WSHandshakeTimeout <= 0 {
		return fmt.Errorf("VLEARN_WS_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return fmt.Errorf("VLEARN_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("VLEARN_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("VLEARN_LOG_FORMAT must be one of text|json")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("VLEARN_LOG_LEVEL must be one of debug|info|warn|error")
	}
	return nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloatOr(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return f
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
