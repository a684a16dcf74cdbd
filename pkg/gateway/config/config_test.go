package config

import (
	"strings"
	"testing"
	"time"
)

var envKeys = []string{
	"VLEARN_ADDR",
	"VLEARN_API_KEYS",
	"VLEARN_CORS_ORIGINS",
	"GEMINI_API_KEY",
	"VLEARN_GEMINI_MODEL",
	"VLEARN_GEMINI_BASE_URL",
	"VLEARN_GENERATION_TIMEOUT",
	"VLEARN_SUGGESTION_COUNT",
	"GOOGLE_CLOUD_API_KEY",
	"VLEARN_SPEECH_BASE_URL",
	"VLEARN_TTS_BASE_URL",
	"VLEARN_STT_LANGUAGE",
	"VLEARN_TTS_VOICE",
	"VLEARN_TTS_LANGUAGE",
	"VLEARN_STORE_DRIVER",
	"VLEARN_SQLITE_PATH",
	"VLEARN_DATABASE_URL",
	"VLEARN_REDIS_ADDR",
	"VLEARN_REDIS_PASSWORD",
	"VLEARN_REDIS_DB",
	"VLEARN_MEDIA_DRIVER",
	"VLEARN_MEDIA_DIR",
	"VLEARN_S3_BUCKET",
	"VLEARN_S3_REGION",
	"VLEARN_S3_ENDPOINT",
	"VLEARN_S3_ACCESS_KEY_ID",
	"VLEARN_S3_SECRET_ACCESS_KEY",
	"VLEARN_S3_PATH_STYLE",
	"VLEARN_MAX_UPLOAD_BYTES",
	"VLEARN_UPLOAD_RPS",
	"VLEARN_UPLOAD_BURST",
	"VLEARN_UPLOAD_MAX_CONCURRENT",
	"VLEARN_WS_WRITE_TIMEOUT",
	"VLEARN_WS_PING_INTERVAL",
	"VLEARN_WS_MAX_MESSAGE_BYTES",
	"VLEARN_WS_HANDSHAKE_TIMEOUT",
	"VLEARN_READ_HEADER_TIMEOUT",
	"VLEARN_SHUTDOWN_GRACE_PERIOD",
	"VLEARN_METRICS_ENABLED",
	"VLEARN_LOG_FORMAT",
	"VLEARN_LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.AuthMode != AuthModeDisabled {
		t.Fatalf("AuthMode = %q, want %q", cfg.AuthMode, AuthModeDisabled)
	}
	if cfg.GeminiModel != "gemini-2.0-flash" {
		t.Fatalf("GeminiModel = %q", cfg.GeminiModel)
	}
	if cfg.GenerationTimeout != 0 {
		t.Fatalf("GenerationTimeout = %v, want 0", cfg.GenerationTimeout)
	}
	if cfg.SuggestionCount != 4 {
		t.Fatalf("SuggestionCount = %d, want 4", cfg.SuggestionCount)
	}
	if cfg.StoreDriver != "sqlite" || cfg.SQLitePath != "data/vlearn.db" {
		t.Fatalf("store = %q %q", cfg.StoreDriver, cfg.SQLitePath)
	}
	if cfg.MediaDriver != "dir" || cfg.MediaDir != "data/media" {
		t.Fatalf("media = %q %q", cfg.MediaDriver, cfg.MediaDir)
	}
	if cfg.TTSVoice != "en-US-Wavenet-F" || cfg.STTLanguage != "en-US" {
		t.Fatalf("voice = %q %q", cfg.TTSVoice, cfg.STTLanguage)
	}
	if cfg.MaxUploadBytes != 10<<20 {
		t.Fatalf("MaxUploadBytes = %d, want %d", cfg.MaxUploadBytes, int64(10<<20))
	}
	if cfg.UploadRPS != 1 || cfg.UploadBurst != 10 || cfg.UploadMaxConcurrent != 2 {
		t.Fatalf("upload budget = %v %d %d", cfg.UploadRPS, cfg.UploadBurst, cfg.UploadMaxConcurrent)
	}
	if cfg.WSWriteTimeout != 5*time.Second {
		t.Fatalf("WSWriteTimeout = %v, want 5s", cfg.WSWriteTimeout)
	}
	if cfg.ShutdownGracePeriod != 10*time.Second {
		t.Fatalf("ShutdownGracePeriod = %v, want 10s", cfg.ShutdownGracePeriod)
	}
	if !cfg.MetricsEnabled {
		t.Fatal("MetricsEnabled = false, want true")
	}
	if cfg.LogFormat != "text" || cfg.LogLevel != "info" {
		t.Fatalf("log = %q %q", cfg.LogFormat, cfg.LogLevel)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("VLEARN_ADDR", ":9090")
	t.Setenv("VLEARN_API_KEYS", "k1, k2")
	t.Setenv("VLEARN_CORS_ORIGINS", "http://localhost:3000")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("VLEARN_GENERATION_TIMEOUT", "45s")
	t.Setenv("VLEARN_SUGGESTION_COUNT", "6")
	t.Setenv("VLEARN_STORE_DRIVER", "Redis")
	t.Setenv("VLEARN_REDIS_ADDR", "localhost:6379")
	t.Setenv("VLEARN_REDIS_DB", "2")
	t.Setenv("VLEARN_MEDIA_DRIVER", "s3")
	t.Setenv("VLEARN_S3_BUCKET", "media")
	t.Setenv("VLEARN_S3_PATH_STYLE", "yes")
	t.Setenv("VLEARN_METRICS_ENABLED", "off")
	t.Setenv("VLEARN_LOG_FORMAT", "JSON")
	t.Setenv("VLEARN_UPLOAD_RPS", "0.5")
	t.Setenv("VLEARN_UPLOAD_MAX_CONCURRENT", "0")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("Addr = %q", cfg.Addr)
	}
	if cfg.AuthMode != AuthModeRequired || len(cfg.APIKeys) != 2 {
		t.Fatalf("auth = %q %v", cfg.AuthMode, cfg.APIKeys)
	}
	if _, ok := cfg.APIKeys["k2"]; !ok {
		t.Fatalf("APIKeys = %v, want k2", cfg.APIKeys)
	}
	if _, ok := cfg.CORSAllowedOrigins["http://localhost:3000"]; !ok {
		t.Fatalf("CORSAllowedOrigins = %v", cfg.CORSAllowedOrigins)
	}
	if cfg.GeminiAPIKey != "g-key" || cfg.GenerationTimeout != 45*time.Second || cfg.SuggestionCount != 6 {
		t.Fatalf("gemini = %q %v %d", cfg.GeminiAPIKey, cfg.GenerationTimeout, cfg.SuggestionCount)
	}
	if cfg.StoreDriver != "redis" || cfg.RedisAddr != "localhost:6379" || cfg.RedisDB != 2 {
		t.Fatalf("store = %q %q %d", cfg.StoreDriver, cfg.RedisAddr, cfg.RedisDB)
	}
	if cfg.MediaDriver != "s3" || cfg.S3Bucket != "media" || !cfg.S3PathStyle {
		t.Fatalf("media = %q %q %v", cfg.MediaDriver, cfg.S3Bucket, cfg.S3PathStyle)
	}
	if cfg.MetricsEnabled {
		t.Fatal("MetricsEnabled = true, want false")
	}
	if cfg.LogFormat != "json" {
		t.Fatalf("LogFormat = %q", cfg.LogFormat)
	}
	if cfg.UploadRPS != 0.5 || cfg.UploadMaxConcurrent != 0 {
		t.Fatalf("upload budget = %v %d", cfg.UploadRPS, cfg.UploadMaxConcurrent)
	}
}

func TestLoadFromEnv_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"suggestion count too high", map[string]string{"VLEARN_SUGGESTION_COUNT": "7"}, "VLEARN_SUGGESTION_COUNT"},
		{"suggestion count zero", map[string]string{"VLEARN_SUGGESTION_COUNT": "0"}, "VLEARN_SUGGESTION_COUNT"},
		{"unknown store", map[string]string{"VLEARN_STORE_DRIVER": "etcd"}, "VLEARN_STORE_DRIVER"},
		{"postgres without url", map[string]string{"VLEARN_STORE_DRIVER": "postgres"}, "VLEARN_DATABASE_URL"},
		{"redis without addr", map[string]string{"VLEARN_STORE_DRIVER": "redis"}, "VLEARN_REDIS_ADDR"},
		{"s3 without bucket", map[string]string{"VLEARN_MEDIA_DRIVER": "s3"}, "VLEARN_S3_BUCKET"},
		{"unknown media", map[string]string{"VLEARN_MEDIA_DRIVER": "ftp"}, "VLEARN_MEDIA_DRIVER"},
		{"negative upload", map[string]string{"VLEARN_MAX_UPLOAD_BYTES": "-1"}, "VLEARN_MAX_UPLOAD_BYTES"},
		{"negative timeout", map[string]string{"VLEARN_GENERATION_TIMEOUT": "-1s"}, "VLEARN_GENERATION_TIMEOUT"},
		{"negative upload rps", map[string]string{"VLEARN_UPLOAD_RPS": "-2"}, "VLEARN_UPLOAD_RPS"},
		{"upload rps without burst", map[string]string{"VLEARN_UPLOAD_BURST": "0"}, "VLEARN_UPLOAD_BURST"},
		{"bad log level", map[string]string{"VLEARN_LOG_LEVEL": "trace"}, "VLEARN_LOG_LEVEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFromEnv()
			if err == nil {
				t.Fatal("LoadFromEnv() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("LoadFromEnv() error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}
