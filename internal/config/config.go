// Package config loads gateway settings from the environment (and an optional .env file).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting the gateway process needs.
type Config struct {
	Server      ServerConfig
	RateLimit   RateLimitConfig
	Gemini      GeminiConfig
	Translation TranslationConfig
	Database    DatabaseConfig
	AdminKey    string
	Debug       bool
}

type ServerConfig struct {
	Port           string
	AllowedOrigins []string
	MaxBodyBytes   int64
}

type RateLimitConfig struct {
	GlobalLimit   int
	ClientLimit   int
	Window        time.Duration
	SweepInterval time.Duration
}

type GeminiConfig struct {
	APIKey      string
	Model       string
	BaseURL     string // overrides the public endpoint, used by tests and proxies
	Timeout     time.Duration
	MaxRPS      float64 // 0 disables outbound pacing
	Temperature float32
	MaxTokens   int32
}

type TranslationConfig struct {
	CredentialsPath string // Google service account JSON for Cloud Translation fallback
	CacheTTL        time.Duration
}

type DatabaseConfig struct {
	Path string
}

const (
	defaultPort          = "8080"
	defaultGeminiModel   = "gemini-2.0-flash"
	defaultDBPath        = "./data/kaiwa.db"
	defaultMaxBodyBytes  = 64 * 1024
	defaultGlobalLimit   = 700
	defaultClientLimit   = 30
	defaultWindow        = time.Minute
	defaultSweepInterval = time.Minute
	defaultGeminiTimeout = 15 * time.Second
	defaultCacheTTL      = 30 * 24 * time.Hour
)

// Load reads the configuration. A .env file in the working directory is loaded
// first when present; variables already set in the environment win.
func Load() (Config, error) {
	_ = godotenv.Load()

	rateLimit, err := buildRateLimitConfig()
	if err != nil {
		return Config{}, err
	}

	gemini, err := buildGeminiConfig()
	if err != nil {
		return Config{}, err
	}

	maxBody, err := getInt64("MAX_BODY_BYTES", defaultMaxBodyBytes)
	if err != nil {
		return Config{}, err
	}

	cacheTTL, err := getDuration("TRANSLATION_CACHE_TTL", defaultCacheTTL)
	if err != nil {
		return Config{}, err
	}

	return Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", defaultPort),
			AllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
			MaxBodyBytes:   maxBody,
		},
		RateLimit: rateLimit,
		Gemini:    gemini,
		Translation: TranslationConfig{
			CredentialsPath: expandHome(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),
			CacheTTL:        cacheTTL,
		},
		Database: DatabaseConfig{Path: getEnv("DB_PATH", defaultDBPath)},
		AdminKey: strings.TrimSpace(os.Getenv("ADMIN_KEY")),
		Debug:    isTruthy(os.Getenv("CHAT_DEBUG")),
	}, nil
}

func buildRateLimitConfig() (RateLimitConfig, error) {
	global, err := getInt("RATE_LIMIT_GLOBAL", defaultGlobalLimit)
	if err != nil {
		return RateLimitConfig{}, err
	}
	client, err := getInt("RATE_LIMIT_CLIENT", defaultClientLimit)
	if err != nil {
		return RateLimitConfig{}, err
	}
	window, err := getDuration("RATE_LIMIT_WINDOW", defaultWindow)
	if err != nil {
		return RateLimitConfig{}, err
	}
	sweep, err := getDuration("RATE_LIMIT_SWEEP_INTERVAL", defaultSweepInterval)
	if err != nil {
		return RateLimitConfig{}, err
	}
	if global <= 0 || client <= 0 || window <= 0 {
		return RateLimitConfig{}, fmt.Errorf("rate limits must be positive (global=%d client=%d window=%s)", global, client, window)
	}
	return RateLimitConfig{
		GlobalLimit:   global,
		ClientLimit:   client,
		Window:        window,
		SweepInterval: sweep,
	}, nil
}

func buildGeminiConfig() (GeminiConfig, error) {
	timeout, err := getDuration("GEMINI_TIMEOUT", defaultGeminiTimeout)
	if err != nil {
		return GeminiConfig{}, err
	}
	maxRPS, err := getFloat("GEMINI_MAX_RPS", 0)
	if err != nil {
		return GeminiConfig{}, err
	}
	temperature, err := getFloat("GEMINI_TEMPERATURE", 0.7)
	if err != nil {
		return GeminiConfig{}, err
	}
	maxTokens, err := getInt("GEMINI_MAX_OUTPUT_TOKENS", 512)
	if err != nil {
		return GeminiConfig{}, err
	}

	return GeminiConfig{
		APIKey:      geminiAPIKey(),
		Model:       getEnv("GEMINI_MODEL", defaultGeminiModel),
		BaseURL:     strings.TrimSpace(os.Getenv("GEMINI_BASE_URL")),
		Timeout:     timeout,
		MaxRPS:      maxRPS,
		Temperature: float32(temperature),
		MaxTokens:   int32(maxTokens),
	}, nil
}

// geminiAPIKey resolves the key from GEMINI_API_KEY, GOOGLE_API_KEY, or the file
// named by GEMINI_API_KEY_FILE (for local dev and mounted secrets).
func geminiAPIKey() string {
	for _, name := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"} {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	if keyPath := os.Getenv("GEMINI_API_KEY_FILE"); keyPath != "" {
		if data, err := os.ReadFile(expandHome(keyPath)); err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	return ""
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getInt64(key string, fallback int64) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

// getDuration accepts Go duration strings ("90s", "1m") or a bare number of seconds.
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func isTruthy(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "1" || v == "true" || v == "yes"
}

// expandHome expands a leading ~/ to the user's home directory.
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return strings.Replace(path, "~", home, 1)
		}
	}
	return path
}
