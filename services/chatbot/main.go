// Copyright (C) 2025 MindCare AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/mindcare-ai/mindcare/pkg/logging"
	"github.com/mindcare-ai/mindcare/services/chatbot/config"
	"github.com/mindcare-ai/mindcare/services/chatbot/conversation"
	"github.com/mindcare-ai/mindcare/services/chatbot/handlers"
	"github.com/mindcare-ai/mindcare/services/chatbot/observability"
	"github.com/mindcare-ai/mindcare/services/chatbot/prompt"
	"github.com/mindcare-ai/mindcare/services/chatbot/routes"
	"github.com/mindcare-ai/mindcare/services/chatbot/security"
	"github.com/mindcare-ai/mindcare/services/chatbot/ttl"
	"github.com/mindcare-ai/mindcare/services/llm"
)

// initTracer wires the OTLP gRPC exporter. When no endpoint is
// configured, tracing stays on the default no-op provider and the
// returned cleanup does nothing.
func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		slog.Info("OTEL_EXPORTER_OTLP_ENDPOINT not set, tracing disabled")
		return func(context.Context) {}, nil
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("chatbot-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// newLLMClient builds the configured generation backend.
func newLLMClient(cfg *config.Config) (llm.Client, error) {
	options := llm.Options{
		Temperature: float32(cfg.Generation.Temperature),
		NumCtx:      cfg.Generation.NumCtx,
		NumPredict:  cfg.Generation.NumPredict,
		TopP:        float32(cfg.Generation.TopP),
	}

	switch cfg.LLM.Backend {
	case "openai":
		slog.Info("Using OpenAI-compatible LLM backend", "model", cfg.LLM.Model)
		return llm.NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model, options)
	default:
		slog.Info("Using Ollama LLM backend",
			"base_url", cfg.LLM.BaseURL,
			"model", cfg.LLM.Model,
		)
		return llm.NewOllamaClient(cfg.LLM.BaseURL, cfg.LLM.Model, options, cfg.LLM.Timeout), nil
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logCloser := logging.Setup(logging.Config{
		Level:      cfg.Logging.Level,
		Service:    "chatbot",
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer logCloser()

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	metrics := observability.InitMetrics()

	llmClient, err := newLLMClient(cfg)
	if err != nil {
		log.Fatalf("failed to initialize LLM client: %v", err)
	}

	store := conversation.NewStore()

	sweeper := ttl.NewSweeper(store, metrics, ttl.SweeperConfig{
		Interval:    cfg.Sessions.SweepInterval,
		IdleTimeout: cfg.Sessions.IdleTimeout,
	})
	sweepCtx, stopSweeps := context.WithCancel(context.Background())
	defer stopSweeps()
	if err := sweeper.Start(sweepCtx); err != nil {
		log.Fatalf("failed to start session sweeper: %v", err)
	}
	defer sweeper.Stop()

	router := gin.Default()
	router.Use(otelgin.Middleware("chatbot-service"))

	routes.SetupRoutes(router, routes.Deps{
		Chat: handlers.ChatDeps{
			Store:              store,
			Validator:          security.NewValidator(),
			Composer:           prompt.NewComposer(store),
			Client:             llmClient,
			Metrics:            metrics,
			FallbackToBlocking: cfg.Generation.FallbackToBlocking,
		},
		Limiter:      security.NewRateLimiter(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window),
		TrustProxy:   cfg.RateLimit.TrustProxy,
		Personality:  handlers.NewPersonalityRegistry(),
		AllowOrigins: cfg.Server.AllowOrigins,
	})

	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
	}

	go func() {
		slog.Info("Starting the chatbot server", "addr", cfg.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutdown signal received, draining connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}
	slog.Info("Server stopped")
}
