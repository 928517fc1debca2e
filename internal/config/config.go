// Package config resolves the annotator configuration from the
// environment once at process start.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultModel        = "Qwen/Qwen3-30B-A3B-Instruct-2507-FP8"
	defaultServerURL    = "http://127.0.0.1:12345/v1/chat/completions"
	defaultAPIKey       = "EMPTY"
	defaultMaxNewTokens = 1024
	defaultMaxWorkers   = 32
	defaultTimeoutSec   = 120
	defaultMaxRetries   = 3
	defaultBackoffSec   = 2.0
	defaultErrorLogPath = "analysis_errors.json"
	defaultCacheSize    = 0
)

// Config holds every tunable the pipeline reads. Values come from the
// environment (optionally seeded from a .env file) and are resolved once.
type Config struct {
	Model        string
	ServerURL    string
	APIKey       string
	MaxNewTokens int
	MaxWorkers   int
	Timeout      time.Duration
	MaxRetries   int
	// RetryBackoff scales linearly with the attempt number
	// (delay = RetryBackoff * attempt), despite the name suggesting
	// an exponential schedule. Kept for compatibility.
	RetryBackoff time.Duration
	ErrorLogPath string
	CacheSize    int
}

// Load reads the environment, applying defaults for anything unset.
// A .env file in the working directory is honored when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Model:        envString("LLM_MODEL", defaultModel),
		ServerURL:    envString("SGLANG_SERVER_URL", defaultServerURL),
		APIKey:       envString("SGLANG_API_KEY", defaultAPIKey),
		ErrorLogPath: envString("LLM_ERROR_LOG", defaultErrorLogPath),
	}

	var err error
	if cfg.MaxNewTokens, err = envInt("LLM_MAX_NEW_TOKENS", defaultMaxNewTokens); err != nil {
		return Config{}, err
	}
	if cfg.MaxWorkers, err = envInt("LLM_MAX_WORKERS", defaultMaxWorkers); err != nil {
		return Config{}, err
	}
	timeoutSec, err := envInt("LLM_REQUEST_TIMEOUT", defaultTimeoutSec)
	if err != nil {
		return Config{}, err
	}
	cfg.Timeout = time.Duration(timeoutSec) * time.Second
	if cfg.MaxRetries, err = envInt("LLM_MAX_RETRIES", defaultMaxRetries); err != nil {
		return Config{}, err
	}
	backoffSec, err := envFloat("LLM_RETRY_BACKOFF", defaultBackoffSec)
	if err != nil {
		return Config{}, err
	}
	cfg.RetryBackoff = time.Duration(backoffSec * float64(time.Second))
	if cfg.CacheSize, err = envInt("LLM_CACHE_SIZE", defaultCacheSize); err != nil {
		return Config{}, err
	}

	if cfg.MaxWorkers < 1 {
		return Config{}, fmt.Errorf("LLM_MAX_WORKERS must be >= 1, got %d", cfg.MaxWorkers)
	}
	if cfg.MaxRetries < 1 {
		return Config{}, fmt.Errorf("LLM_MAX_RETRIES must be >= 1, got %d", cfg.MaxRetries)
	}
	return cfg, nil
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s=%q: %w", key, raw, err)
	}
	return v, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s=%q: %w", key, raw, err)
	}
	return v, nil
}
