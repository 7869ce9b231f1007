package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/brunobiangulo/clinextract"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (JSON)")
	addr := flag.String("addr", ":8080", "Listen address")
	flag.Parse()

	// Structured JSON logging.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg := clinextract.DefaultConfig()
	if *configPath != "" {
		f, err := os.Open(*configPath)
		if err != nil {
			slog.Error("opening config", "error", err)
			os.Exit(1)
		}
		if err := json.NewDecoder(f).Decode(&cfg); err != nil {
			f.Close()
			slog.Error("parsing config", "error", err)
			os.Exit(1)
		}
		f.Close()
	}

	// Override from environment variables.
	if v := os.Getenv("CLINEXTRACT_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("CLINEXTRACT_CHAT_BASE_URL"); v != "" {
		cfg.Chat.BaseURL = v
	}
	if v := os.Getenv("CLINEXTRACT_EMBED_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("CLINEXTRACT_CHAT_API_KEY"); v != "" {
		cfg.Chat.APIKey = v
	}
	if v := os.Getenv("CLINEXTRACT_EMBED_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("CLINEXTRACT_CHAT_MODEL"); v != "" {
		cfg.Chat.Model = v
	}
	if v := os.Getenv("CLINEXTRACT_CHAT_PROVIDER"); v != "" {
		cfg.Chat.Provider = v
	}
	if v := os.Getenv("CLINEXTRACT_EMBED_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}

	// Fallback: check well-known provider env vars for API keys.
	if cfg.Chat.APIKey == "" {
		switch cfg.Chat.Provider {
		case "openai", "openai_sdk":
			cfg.Chat.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			cfg.Chat.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case "groq":
			cfg.Chat.APIKey = os.Getenv("GROQ_API_KEY")
		}
	}

	apiKey := os.Getenv("CLINEXTRACT_API_KEY")
	corsOrigins := os.Getenv("CLINEXTRACT_CORS_ORIGINS")

	sink := newHTTPSink(os.Getenv("CLINEXTRACT_PUBLICATION_SINK_URL"))

	engine, err := clinextract.NewEngine(cfg, sink)
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(recoveryMiddleware(), logMiddleware(), corsMiddleware(corsOrigins), authMiddleware(apiKey))

	h := newHandler(engine)
	router.POST("/v1/encounters", h.handleProcessEncounter)
	router.POST("/v1/jobs/:job_id/cancel", h.handleCancelJob)
	router.GET("/v1/jobs/:job_id", h.handleJobStatus)
	router.POST("/v1/templates/validate", h.handleValidateTemplates)
	router.GET("/v1/doctors/:doctor_id/preferences", h.handleGetPreferences)
	router.PUT("/v1/doctors/:doctor_id/preferences", h.handlePutPreferences)
	router.GET("/health", h.handleHealth)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // section generation can run long
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}
