// Package main is the entry point for the Graphiste GPT API server.
// It loads configuration, connects to services, sets up routing, starts
// the maintenance jobs and serves HTTP with graceful shutdown support.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"graphiste/internal/ai"
	"graphiste/internal/cache"
	"graphiste/internal/config"
	"graphiste/internal/conversation"
	"graphiste/internal/database"
	"graphiste/internal/generation"
	"graphiste/internal/handlers"
	"graphiste/internal/jobs"
	"graphiste/internal/middleware"
	"graphiste/internal/payments"
	"graphiste/internal/router"
	"graphiste/internal/storage"
	"graphiste/internal/store"
)

// aiCallsPerUser caps the AI endpoints per user and minute.
const aiCallsPerUser = 20

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// JSON in production, text in development.
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.IsDev() {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))

	slog.Info("configuration loaded", "env", cfg.Env, "addr", cfg.Addr())

	db, err := database.Connect(cfg.DSN())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	// Plans and role permissions are upserted on every start.
	if err := database.Seed(db); err != nil {
		slog.Error("failed to seed database", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	valkeyClient, err := cache.ConnectValkey(ctx, cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword)
	if err != nil {
		slog.Error("failed to connect to valkey", "error", err)
		os.Exit(1)
	}
	defer valkeyClient.Close()

	st := store.New(db)
	catalog := cache.NewCatalog(valkeyClient, cache.DefaultCatalogTTL)
	convs := conversation.NewStore(valkeyClient)

	// Object storage is optional. The interfaces stay nil without it so
	// the handlers can tell.
	var (
		files     handlers.Files
		pubFiles  handlers.PublicFiles
		generated generation.Uploader
	)
	storageClient, err := storage.New(storage.Config{
		Endpoint:      cfg.S3Endpoint,
		Region:        cfg.S3Region,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		PublicBucket:  cfg.S3BucketPublic,
		PrivateBucket: cfg.S3BucketPrivate,
		PublicURL:     cfg.S3PublicURL,
	})
	switch {
	case err != nil:
		slog.Error("failed to initialize S3 storage", "error", err)
		os.Exit(1)
	case storageClient != nil:
		files, pubFiles, generated = storageClient, storageClient, storageClient
		slog.Info("s3 storage connected",
			"endpoint", cfg.S3Endpoint,
			"public_bucket", cfg.S3BucketPublic,
			"private_bucket", cfg.S3BucketPrivate,
		)
	default:
		slog.Warn("s3 storage not configured, generation and uploads disabled")
	}

	aiRegistry := ai.NewRegistry(cfg.AIProvider, map[string]ai.ProviderConfig{
		"openai": {
			APIKey: cfg.OpenAIKey, Model: cfg.OpenAIModel, BaseURL: cfg.OpenAIBaseURL,
			ImageModel: cfg.ImageModel, TranscribeModel: cfg.TranscribeModel,
			RequestsPerMinute: cfg.AIRequestsPerMin,
		},
		"gemini":  {APIKey: cfg.GeminiKey, Model: cfg.GeminiModel, BaseURL: cfg.GeminiBaseURL, RequestsPerMinute: cfg.AIRequestsPerMin},
		"claude":  {APIKey: cfg.ClaudeKey, Model: cfg.ClaudeModel, BaseURL: cfg.ClaudeBaseURL, RequestsPerMinute: cfg.AIRequestsPerMin},
		"mistral": {APIKey: cfg.MistralKey, Model: cfg.MistralModel, BaseURL: cfg.MistralBaseURL, RequestsPerMinute: cfg.AIRequestsPerMin},
	})
	if cfg.ImageTaskURL != "" {
		aiRegistry.SetImageGenerator(ai.NewTaskImageProvider(ai.TaskConfig{
			BaseURL:           cfg.ImageTaskURL,
			APIKey:            cfg.ImageTaskKey,
			Model:             cfg.ImageTaskModel,
			RequestsPerMinute: cfg.AIRequestsPerMin,
		}))
	}
	slog.Info("ai providers initialized",
		"active", aiRegistry.ActiveName(),
		"available", aiRegistry.Available(),
		"image_generation", aiRegistry.SupportsImageGeneration(),
	)

	aiCfg := handlers.AIConfig{
		ActiveProvider: cfg.AIProvider,
		Providers: []handlers.AIProviderInfo{
			{Name: "openai", Label: "OpenAI", HasKey: cfg.OpenAIKey != "", Active: cfg.AIProvider == "openai", Model: cfg.OpenAIModel, KeyEnvVar: "OPENAI_API_KEY"},
			{Name: "gemini", Label: "Google Gemini", HasKey: cfg.GeminiKey != "", Active: cfg.AIProvider == "gemini", Model: cfg.GeminiModel, KeyEnvVar: "GEMINI_API_KEY"},
			{Name: "claude", Label: "Anthropic Claude", HasKey: cfg.ClaudeKey != "", Active: cfg.AIProvider == "claude", Model: cfg.ClaudeModel, KeyEnvVar: "CLAUDE_API_KEY"},
			{Name: "mistral", Label: "Mistral", HasKey: cfg.MistralKey != "", Active: cfg.AIProvider == "mistral", Model: cfg.MistralModel, KeyEnvVar: "MISTRAL_API_KEY"},
		},
	}

	// Payment providers are enabled by their secret key.
	var gateways []payments.Provider
	if cfg.MonerooSecretKey != "" {
		gateways = append(gateways, payments.NewMoneroo(cfg.MonerooBaseURL, cfg.MonerooSecretKey, cfg.MonerooWebhookSecret))
	}
	if cfg.FedaPaySecretKey != "" {
		gateways = append(gateways, payments.NewFedaPay(cfg.FedaPayBaseURL, cfg.FedaPaySecretKey, cfg.FedaPayWebhookSecret))
	}
	pay := payments.NewService(payments.NewProviders(gateways...), st, cfg.PaymentReturnURL)
	var userPay *payments.Service
	if len(gateways) > 0 {
		userPay = pay
		slog.Info("payment providers enabled", "providers", pay.Providers())
	} else {
		slog.Warn("no payment provider configured, checkout disabled")
	}

	gen := generation.NewService(st, aiRegistry, generated)

	limiter := middleware.NewRateLimiter(aiCallsPerUser, time.Minute)
	defer limiter.Stop()

	r := router.New(router.Deps{
		Auth: middleware.NewAuthenticator(middleware.AuthConfig{
			JWTSecret:   cfg.SupabaseJWTSecret,
			SupabaseURL: cfg.SupabaseURL,
			AnonKey:     cfg.SupabaseAnonKey,
		}, st),
		Limiter:        limiter,
		API:            handlers.NewAPI(st, convs, gen, aiRegistry, files, userPay, catalog),
		Public:         handlers.NewPublic(st, catalog),
		Admin:          handlers.NewAdmin(st, aiRegistry, pubFiles, catalog, aiCfg),
		Webhooks:       handlers.NewWebhooks(pay),
		AllowedOrigins: cfg.AllowedOrigins,
		HSTS:           cfg.Env == "production",
	})

	runner := jobs.New(st)
	if err := runner.Start(); err != nil {
		slog.Error("failed to schedule jobs", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  router.ReadTimeout,
		WriteTimeout: router.WriteTimeout,
		IdleTimeout:  router.IdleTimeout,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig)

	// Generations in flight may need the full write timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), router.WriteTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	runner.Stop(shutdownCtx)

	slog.Info("server stopped gracefully")
}
