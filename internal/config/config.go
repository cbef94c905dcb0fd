package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robalobadob/birdle/internal/birdnet"
	"github.com/robalobadob/birdle/internal/subject"
)

// Config holds application configuration
type Config struct {
	Port     string
	LogLevel string
	DBPath   string

	APIURL    string
	ImageURL  string
	TZ        string
	Location  *time.Location // resolved from TZ
	NamesFile string

	JWTSecret      string
	JWTExpiresDays int
	CookieName     string
	AnonCookieName string
	ClientOrigin   string
	Production     bool

	SessionIdleTimeout time.Duration
	UploadMaxBytes     int
	UploadRatePerMin   int
}

// Load reads configuration from environment variables with sensible defaults.
// Malformed numbers and durations fall back to their defaults; an unknown
// time zone is an error.
func Load() (*Config, error) {
	cfg := &Config{
		Port:     getEnv("PORT", "5175"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DBPath:   getEnv("DB_PATH", "./data/birdle.db"),

		APIURL:    getEnv("BIRDLE_API_URL", birdnet.DefaultBaseURL),
		ImageURL:  getEnv("BIRDLE_IMAGE_URL", subject.DefaultImageBase),
		TZ:        getEnv("BIRDLE_TZ", "Local"),
		NamesFile: os.Getenv("BIRDLE_NAMES_FILE"),

		JWTSecret:      getEnv("JWT_SECRET", "dev_secret_change_me"),
		JWTExpiresDays: getInt("JWT_EXPIRES_DAYS", 14),
		CookieName:     getEnv("COOKIE_NAME", "birdle_token"),
		AnonCookieName: getEnv("ANON_COOKIE_NAME", "birdle_anon"),
		ClientOrigin:   getEnv("CLIENT_ORIGIN", "http://localhost:5173"),
		Production:     os.Getenv("NODE_ENV") == "production",

		SessionIdleTimeout: getDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		UploadMaxBytes:     getInt("UPLOAD_MAX_BYTES", birdnet.DefaultMaxUploadBytes),
		UploadRatePerMin:   getInt("UPLOAD_RATE_PER_MIN", 5),
	}

	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		return nil, fmt.Errorf("BIRDLE_TZ: %w", err)
	}
	cfg.Location = loc
	return cfg, nil
}

// Addr is the listen address for Port.
func (c *Config) Addr() string { return ":" + c.Port }

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
