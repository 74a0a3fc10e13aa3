// ABOUTME: Configuration loader for the FlashVault client SDK
// ABOUTME: Loads settings from environment variables (and .env) with defaults

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// StorageKeys names the entries the credential store uses for well-known
// values. Keys are configurable so an embedding app can avoid collisions
// with its own storage entries.
type StorageKeys struct {
	AuthToken     string
	UserProfile   string
	Theme         string
	Language      string
	MigrationFlag string
}

type Config struct {
	// API client
	APIBaseURL string        // base URL for relative request paths (required)
	APITimeout time.Duration // per-attempt timeout (default 30s)
	MaxRetries int           // attempts per request (default 3)
	RetryDelay time.Duration // linear backoff unit: delay * attempt (default 1s)
	AppVersion string        // sent as X-Client-Version (default "dev")
	Platform   string        // sent as X-Platform (default "go")

	// Credential store
	SecretsPath       string // encrypted secrets file (default "flashvault-secrets.enc")
	PrefsPath         string // plain preferences file (default "flashvault-prefs.json")
	SecretsPassphrase string // passphrase for the encrypted tier (required)

	Keys StorageKeys
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first if present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APIBaseURL: ensureScheme(os.Getenv("API_BASE_URL")),
		APITimeout: time.Duration(getEnvInt("API_TIMEOUT_MS", 30000)) * time.Millisecond,
		MaxRetries: getEnvInt("MAX_RETRIES", 3),
		RetryDelay: time.Duration(getEnvInt("RETRY_DELAY_MS", 1000)) * time.Millisecond,
		AppVersion: getEnv("APP_VERSION", "dev"),
		Platform:   getEnv("CLIENT_PLATFORM", "go"),

		SecretsPath:       getEnv("SECRETS_PATH", "flashvault-secrets.enc"),
		PrefsPath:         getEnv("PREFS_PATH", "flashvault-prefs.json"),
		SecretsPassphrase: os.Getenv("SECRETS_PASSPHRASE"),

		Keys: StorageKeys{
			AuthToken:     getEnv("STORAGE_KEY_TOKEN", "auth_token"),
			UserProfile:   getEnv("STORAGE_KEY_USER", "user_profile"),
			Theme:         getEnv("STORAGE_KEY_THEME", "theme"),
			Language:      getEnv("STORAGE_KEY_LANGUAGE", "language"),
			MigrationFlag: getEnv("STORAGE_KEY_MIGRATED", "secure_storage_migrated"),
		},
	}

	// Validate required fields
	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("API_BASE_URL is required")
	}
	if cfg.SecretsPassphrase == "" {
		return nil, fmt.Errorf("SECRETS_PASSPHRASE is required")
	}

	if cfg.APITimeout <= 0 {
		return nil, fmt.Errorf("API_TIMEOUT_MS must be positive, got %d", cfg.APITimeout/time.Millisecond)
	}
	if cfg.RetryDelay < 0 {
		return nil, fmt.Errorf("RETRY_DELAY_MS must not be negative, got %d", cfg.RetryDelay/time.Millisecond)
	}
	if cfg.MaxRetries < 1 || cfg.MaxRetries > 10 {
		return nil, fmt.Errorf("MAX_RETRIES must be between 1 and 10, got %d", cfg.MaxRetries)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// ensureScheme adds https:// prefix if the URL has no scheme
func ensureScheme(url string) string {
	if url == "" {
		return url
	}
	if !strings.Contains(url, "://") {
		return "https://" + url
	}
	return url
}
