// Package config handles application configuration.
//
// Go Pattern: Configuration via environment variables with sensible defaults.
// A dotenv file is loaded first (if present) so local development works
// without exporting every variable, but real environment variables always win.
package config

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment names accepted in API_ENV.
const (
	EnvDevelop    = "develop"
	EnvProduction = "production"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port   string
	APIEnv string // "develop" enables debug gin mode and the colour log handler
	Log    string // Log level name: DEBUG, INFO, WARNING, ERROR

	// LINE Messaging API
	LineChannelSecret      string
	LineChannelAccessToken string

	// Google OAuth client (Forms + Drive scopes)
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// Gemini
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	// reurl.cc shortener
	ReurlAPIKey  string
	ReurlBaseURL string

	// Database (optional). Empty means tokens live in memory only.
	DatabaseURL    string
	MigrationsPath string

	// Audio
	FFmpegPath   string
	AudioTempDir string

	// Authorization flow
	AuthTimeout      time.Duration // How long a consent link stays valid
	SessionSecret    string        // Signs OAuth state and seals stored tokens
	CodeRetrievalURL string        // Optional ad hoc endpoint returning {"authorization_code": "..."}
	CodePollInterval time.Duration

	// Forms
	PublishForms bool
	PromptsFile  string // Optional YAML prompt catalogue; the built-in one is used when empty

	// Worker settings
	WorkerCount  int
	JobQueueSize int
	JobTimeout   time.Duration // Upper bound for one message, download to reply

	// HTTP surface
	AllowedOrigins []string
	AdminAPIKey    string // Enables the /api/v1/admin routes when set
}

// required lists the variables the process refuses to start without.
var required = []string{
	"LINE_CHANNEL_SECRET",
	"LINE_CHANNEL_ACCESS_TOKEN",
	"CLIENT_ID",
	"CLIENT_SECRET",
	"REDIRECT_URI",
	"GEMINI_API_KEY",
}

// Load reads configuration from the environment, after loading envFile if it
// exists. An empty envFile skips dotenv loading.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		// godotenv.Load never overrides variables that are already set.
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	var missing []string
	for _, key := range required {
		if strings.TrimSpace(os.Getenv(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	cfg := &Config{
		Port:   getEnv("PORT", "8080"),
		APIEnv: getEnv("API_ENV", EnvDevelop),
		Log:    getEnv("LOG", "WARNING"),

		LineChannelSecret:      os.Getenv("LINE_CHANNEL_SECRET"),
		LineChannelAccessToken: os.Getenv("LINE_CHANNEL_ACCESS_TOKEN"),

		ClientID:     os.Getenv("CLIENT_ID"),
		ClientSecret: os.Getenv("CLIENT_SECRET"),
		RedirectURI:  os.Getenv("REDIRECT_URI"),

		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiBaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),

		ReurlAPIKey:  getEnv("REURL_API_KEY", ""),
		ReurlBaseURL: getEnv("REURL_BASE_URL", "https://api.reurl.cc"),

		DatabaseURL:    getEnv("DATABASE_URL", ""),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),

		FFmpegPath:   getEnv("FFMPEG_PATH", findFFmpeg()),
		AudioTempDir: getEnv("AUDIO_TEMP_DIR", os.TempDir()),

		AuthTimeout:      getEnvDuration("AUTH_TIMEOUT", 10*time.Minute),
		SessionSecret:    getEnv("SESSION_SECRET", ""),
		CodeRetrievalURL: getEnv("CODE_RETRIEVAL_URL", ""),
		CodePollInterval: getEnvDuration("CODE_POLL_INTERVAL", 3*time.Second),

		PublishForms: getEnvBool("PUBLISH_FORMS", false),
		PromptsFile:  getEnv("PROMPTS_FILE", ""),

		WorkerCount:  getEnvInt("WORKER_COUNT", 3),
		JobQueueSize: getEnvInt("JOB_QUEUE_SIZE", 100),
		JobTimeout:   getEnvDuration("JOB_TIMEOUT", 5*time.Minute),

		AllowedOrigins: splitList(getEnv("CORS_ORIGIN", "*")),
		AdminAPIKey:    getEnv("ADMIN_API_KEY", ""),
	}

	// The client secret is already a server-side secret, so it is a usable
	// default for signing state when no dedicated secret is configured.
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = cfg.ClientSecret
	}

	if cfg.FFmpegPath == "" {
		return nil, fmt.Errorf("ffmpeg not found; set FFMPEG_PATH environment variable")
	}

	if cfg.AuthTimeout <= 0 {
		return nil, fmt.Errorf("AUTH_TIMEOUT must be positive, got %s", cfg.AuthTimeout)
	}
	if cfg.CodePollInterval <= 0 {
		return nil, fmt.Errorf("CODE_POLL_INTERVAL must be positive, got %s", cfg.CodePollInterval)
	}

	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	if cfg.JobQueueSize < 1 {
		cfg.JobQueueSize = 1
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}

	return cfg, nil
}

// IsDevelop reports whether the service runs in the develop environment.
func (c *Config) IsDevelop() bool {
	return c.APIEnv == EnvDevelop
}

// getEnv reads an environment variable with a fallback default.
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

// getEnvInt reads an integer environment variable with a fallback.
func getEnvInt(key string, fallback int) int {
	str := getEnv(key, "")
	if str == "" {
		return fallback
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return fallback
	}
	return val
}

func getEnvBool(key string, fallback bool) bool {
	str := getEnv(key, "")
	if str == "" {
		return fallback
	}
	val, err := strconv.ParseBool(str)
	if err != nil {
		return fallback
	}
	return val
}

// getEnvDuration accepts Go duration strings ("90s", "10m").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	str := getEnv(key, "")
	if str == "" {
		return fallback
	}
	val, err := time.ParseDuration(str)
	if err != nil {
		return fallback
	}
	return val
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// findFFmpeg checks PATH and the usual install locations for ffmpeg.
func findFFmpeg() string {
	if p, err := exec.LookPath("ffmpeg"); err == nil {
		return p
	}
	paths := []string{
		"/usr/local/bin/ffmpeg",
		"/usr/bin/ffmpeg",
		"/opt/homebrew/bin/ffmpeg",
		"/home/linuxbrew/.linuxbrew/bin/ffmpeg",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
