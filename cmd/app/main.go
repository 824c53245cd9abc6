package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"learningodyssey/internal/choice"
	"learningodyssey/internal/config"
	"learningodyssey/internal/content"
	"learningodyssey/internal/httpserver"
	"learningodyssey/internal/imageprompt"
	"learningodyssey/internal/llmgateway"
	"learningodyssey/internal/llmgateway/providers"
	"learningodyssey/internal/promptbuilder"
	"learningodyssey/internal/session"
	"learningodyssey/internal/store"
	"learningodyssey/internal/streamhandler"
	"learningodyssey/internal/transport"

	"log/slog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.LogLevel)

	httpClient := transport.NewHTTPClient(cfg.RequestTimeout)

	reasoning := providers.NewAnthropicProvider(cfg.Anthropic.APIKey, cfg.Anthropic.ReasoningModel)
	utility := providers.NewOpenAIProvider(cfg.OpenAI.APIKey, cfg.OpenAI.UtilityModel)
	gateway := llmgateway.New(reasoning, utility, logger)

	imageClient := imageprompt.NewClient(cfg.Image.APIKey, cfg.Image.BaseURL, httpClient, logger)
	imageSynth := imageprompt.NewSynthesizer(gateway, imageClient)

	catalog := content.NewYAMLStoryCatalog(cfg.Content.StoryCatalogDir)
	lessons, err := content.NewCSVLessonBank(cfg.Content.LessonBankPath)
	if err != nil {
		log.Fatalf("failed to load lesson bank: %v", err)
	}

	var stateStore store.Store
	switch {
	case cfg.Store.RedisAddr != "":
		redisStore, err := store.NewRedisStore(cfg.Store.RedisAddr, cfg.Store.RedisPassword, cfg.Store.RedisDB)
		if err != nil {
			log.Fatalf("failed to init redis store: %v", err)
		}
		stateStore = redisStore
	case cfg.Store.FileStorePath != "":
		fileStore, err := store.NewFileStore(cfg.Store.FileStorePath, logger)
		if err != nil {
			log.Fatalf("failed to init file store: %v", err)
		}
		stateStore = fileStore
	default:
		// FILE_STORE_PATH explicitly set empty with no Redis configured: run
		// fully in-memory, e.g. for local smoke tests with no disk writes.
		stateStore = store.NewMemoryStore(30 * 24 * time.Hour)
	}

	builder := promptbuilder.New()
	choiceProc := choice.New(gateway, logger)
	stream := streamhandler.New(gateway, builder, imageSynth, stateStore, logger)

	sessionHandler := session.NewHandler(stream, choiceProc, stateStore, catalog, lessons, cfg.Environment, logger)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		Logger:         logger,
		SessionHandler: sessionHandler,
	})

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // adventures stream for minutes at a time over one long-lived connection
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server starting", slog.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}

func newLogger(level string) *slog.Logger {
	slogLevel := slog.LevelInfo
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel}))
}
