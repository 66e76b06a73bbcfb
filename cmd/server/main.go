// Package main is the entry point for the voice forms bot server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	cli "github.com/spf13/pflag"

	"github.com/Shimizu-Technology/voice-forms-bot/internal/config"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/database"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/handlers"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/router"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/secret"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/services/audio"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/services/forms"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/services/gemini"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/services/line"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/services/oauth"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/services/pipeline"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/services/shortener"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/services/worker"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/store"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// logLevels maps the LOG variable. WARNING and CRITICAL are accepted for
// deployments that still use the old level names.
var logLevels = map[string]slog.Level{
	"DEBUG":    slog.LevelDebug,
	"INFO":     slog.LevelInfo,
	"WARN":     slog.LevelWarn,
	"WARNING":  slog.LevelWarn,
	"ERROR":    slog.LevelError,
	"CRITICAL": slog.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	cli.Parse()

	// Step 1: Load Configuration
	cfg, err := config.Load(*envFile)
	if err != nil {
		slog.Error("❌ Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("🚀 Voice forms bot starting", "version", Version, "env", cfg.APIEnv)

	if cfg.IsDevelop() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("❌ Server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("👋 Server stopped. Goodbye!")
}

func setupLogger(cfg *config.Config) *slog.Logger {
	level, ok := logLevels[strings.ToUpper(cfg.Log)]
	if !ok {
		level = slog.LevelWarn
	}
	if cfg.IsDevelop() {
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// Step 2: Storage (postgres when configured, memory otherwise)
	st, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// Step 3: Create Services
	messenger, err := line.NewClient(cfg.LineChannelAccessToken)
	if err != nil {
		return fmt.Errorf("failed to create LINE client: %w", err)
	}

	prompts, err := forms.LoadPrompts(cfg.PromptsFile)
	if err != nil {
		return err
	}
	ai := gemini.NewClientWithURL(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL)
	builder := forms.NewBuilder(ai, prompts, forms.Options{Publish: cfg.PublishForms}, logger)
	logger.Info("✅ Form builder ready", "model", ai.Model(), "publish", cfg.PublishForms)

	states, err := oauth.NewStateSigner(cfg.SessionSecret, cfg.AuthTimeout)
	if err != nil {
		return err
	}

	if cfg.ReurlAPIKey == "" {
		logger.Warn("⚠️  REURL_API_KEY not set; reurl.cc will reject shorten requests")
	}

	pool := worker.NewPool(cfg.WorkerCount, cfg.JobQueueSize, cfg.JobTimeout, logger)

	deps := pipeline.Deps{
		Messenger:   messenger,
		Authorizer:  oauth.NewExchanger(cfg.ClientID, cfg.ClientSecret, cfg.RedirectURI),
		States:      states,
		Pending:     oauth.NewPending(),
		Store:       st,
		Builder:     builder,
		Shortener:   shortener.New(cfg.ReurlAPIKey, cfg.ReurlBaseURL),
		Transcoder:  audio.NewTranscoder(cfg.FFmpegPath),
		Queue:       pool,
		TempDir:     cfg.AudioTempDir,
		AuthTimeout: cfg.AuthTimeout,
		Logger:      logger,
	}
	if cfg.CodeRetrievalURL != "" {
		deps.CodeWaiter = oauth.NewCodePoller(cfg.CodeRetrievalURL, cfg.CodePollInterval, logger)
		logger.Info("✅ Code retrieval poller enabled", "url", cfg.CodeRetrievalURL)
	}
	orch := pipeline.New(deps)

	// Step 4: Start the workers and the expiry janitor
	pool.Start(orch)
	orch.Start(30 * time.Second)

	// Step 5: Setup HTTP Router
	h := handlers.NewHandler(st, pool, orch, cfg.LineChannelSecret, Version, logger)
	r := router.Setup(h, router.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AdminAPIKey:    cfg.AdminAPIKey,
	})
	if cfg.AdminAPIKey == "" {
		logger.Info("Admin routes disabled (set ADMIN_API_KEY to enable)")
	}

	// Step 6: Start the HTTP Server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("🌐 Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Step 7: Graceful Shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("🛑 Received signal, shutting down gracefully...")
	case err := <-serveErr:
		if err != nil {
			orch.Close()
			pool.Stop(0)
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("⚠️  Server forced to shutdown", "error", err)
	}

	// No new webhooks can arrive, so let queued messages finish.
	pool.Stop(cfg.JobTimeout)
	orch.Close()
	return nil
}

// openStore returns the token and form store plus a cleanup function.
func openStore(cfg *config.Config, logger *slog.Logger) (store.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("⚠️  DATABASE_URL not set; tokens are kept in memory and lost on restart")
		return store.NewMemory(), func() {}, nil
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("✅ Database connected")

	if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migration failed: %w", err)
	}

	sealer, err := secret.NewSealer(cfg.SessionSecret)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return store.NewPostgres(db, sealer), func() { db.Close() }, nil
}
