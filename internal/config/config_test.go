package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("LINE_CHANNEL_SECRET", "line-secret")
	t.Setenv("LINE_CHANNEL_ACCESS_TOKEN", "line-token")
	t.Setenv("CLIENT_ID", "client-id")
	t.Setenv("CLIENT_SECRET", "client-secret")
	t.Setenv("REDIRECT_URI", "https://bot.example.com/oauth2callback")
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("FFMPEG_PATH", "/usr/bin/ffmpeg")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want %q", cfg.Port, "8080")
	}
	if cfg.APIEnv != EnvDevelop || !cfg.IsDevelop() {
		t.Errorf("APIEnv = %q, want %q", cfg.APIEnv, EnvDevelop)
	}
	if cfg.Log != "WARNING" {
		t.Errorf("Log = %q, want WARNING", cfg.Log)
	}
	if cfg.AuthTimeout != 10*time.Minute {
		t.Errorf("AuthTimeout = %s, want 10m", cfg.AuthTimeout)
	}
	if cfg.SessionSecret != "client-secret" {
		t.Errorf("SessionSecret = %q, want client secret fallback", cfg.SessionSecret)
	}
	if cfg.GeminiModel != "gemini-1.5-flash" {
		t.Errorf("GeminiModel = %q", cfg.GeminiModel)
	}
	if cfg.PublishForms {
		t.Error("PublishForms = true, want false")
	}
	if cfg.JobTimeout != 5*time.Minute {
		t.Errorf("JobTimeout = %s, want 5m", cfg.JobTimeout)
	}
	if cfg.AdminAPIKey != "" {
		t.Errorf("AdminAPIKey = %q, want empty", cfg.AdminAPIKey)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("CLIENT_SECRET", "")
	t.Setenv("GEMINI_API_KEY", "")

	_, err := Load("")
	if err == nil {
		t.Fatal("Load() error = nil, want missing variables error")
	}
	for _, key := range []string{"CLIENT_SECRET", "GEMINI_API_KEY"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not name %s", err, key)
		}
	}
	if strings.Contains(err.Error(), "CLIENT_ID") {
		t.Errorf("error %q names a variable that is set", err)
	}
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "9000")
	t.Setenv("API_ENV", "production")
	t.Setenv("AUTH_TIMEOUT", "90s")
	t.Setenv("WORKER_COUNT", "0")
	t.Setenv("JOB_TIMEOUT", "2m")
	t.Setenv("PUBLISH_FORMS", "true")
	t.Setenv("SESSION_SECRET", "dedicated")
	t.Setenv("CORS_ORIGIN", "https://a.example.com, https://b.example.com")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != "9000" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.IsDevelop() {
		t.Error("IsDevelop() = true for production")
	}
	if cfg.AuthTimeout != 90*time.Second {
		t.Errorf("AuthTimeout = %s", cfg.AuthTimeout)
	}
	if cfg.WorkerCount != 1 {
		t.Errorf("WorkerCount = %d, want clamp to 1", cfg.WorkerCount)
	}
	if cfg.JobTimeout != 2*time.Minute {
		t.Errorf("JobTimeout = %s, want 2m", cfg.JobTimeout)
	}
	if !cfg.PublishForms {
		t.Error("PublishForms = false")
	}
	if cfg.SessionSecret != "dedicated" {
		t.Errorf("SessionSecret = %q", cfg.SessionSecret)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example.com" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
}

func TestLoad_RejectsNonPositiveDurations(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"AUTH_TIMEOUT", "0s"},
		{"AUTH_TIMEOUT", "-1m"},
		{"CODE_POLL_INTERVAL", "0s"},
		{"CODE_POLL_INTERVAL", "-3s"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load("")
			if err == nil {
				t.Fatalf("Load() error = nil, want error for %s=%s", tt.key, tt.value)
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error %q does not name %s", err, tt.key)
			}
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	setRequired(t)
	// t.Setenv restores the original value; Unsetenv makes the key absent.
	t.Setenv("GEMINI_MODEL", "")
	os.Unsetenv("GEMINI_MODEL")

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("GEMINI_MODEL=gemini-2.0-flash\nLINE_CHANNEL_SECRET=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Absent variables are filled from the file; set ones keep their value.
	if cfg.GeminiModel != "gemini-2.0-flash" {
		t.Errorf("GeminiModel = %q, want value from env file", cfg.GeminiModel)
	}
	if cfg.LineChannelSecret != "line-secret" {
		t.Errorf("LineChannelSecret = %q, want environment value", cfg.LineChannelSecret)
	}
}

func TestLoad_MissingEnvFileIsIgnored(t *testing.T) {
	setRequired(t)

	if _, err := Load(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}
