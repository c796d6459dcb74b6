// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command analysis starts the Aleutian Ledger analysis API server.
//
// Aleutian Ledger analysis answers natural-language questions about
// household expenses with:
//   - An LLM SQL authoring agent with a bounded validate-and-repair loop
//   - A tenant-scoped SQL sandbox (single virtual view, hard row cap)
//   - Household context resolution with a fuzzy retry pass
//   - A full per-question audit trail
//
// Usage:
//
//	go run ./cmd/analysis
//	go run ./cmd/analysis -port 9090
//
// With a cloud provider (Cerebras shown; Groq, OpenAI, and Gemini work
// the same way via their own API key variables):
//
//	CEREBRAS_API_KEY=csk-... go run ./cmd/analysis
//
// Without any API key the server still runs: questions are answered by
// the deterministic query planner.
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/v1/analysis/health
//
//	# Ask a question
//	curl -X POST http://localhost:8080/v1/analysis/ask \
//	  -H "Content-Type: application/json" \
//	  -d '{"text": "how much did we spend on food last month?",
//	       "household_id": "…", "user_id": "…"}'
//
//	# Prometheus metrics
//	curl http://localhost:8080/metrics
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AleutianAI/AleutianLedger/services/analysis"
	"github.com/AleutianAI/AleutianLedger/services/analysis/providers"
	"github.com/AleutianAI/AleutianLedger/services/analysis/storage"
)

// setupTracing installs the W3C propagator and, when an OTLP endpoint is
// configured, a gRPC span exporter. Returns a shutdown function that
// flushes pending spans.
func setupTracing(ctx context.Context) func(context.Context) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
		return func(context.Context) {}
	}

	exporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		slog.Warn("OTLP trace exporter unavailable, continuing without span export",
			slog.String("error", err.Error()))
		return func(context.Context) {}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", "aleutian-ledger-analysis"),
		)),
	)
	otel.SetTracerProvider(tp)
	slog.Info("OTLP trace export enabled")

	return func(ctx context.Context) {
		if err := tp.Shutdown(ctx); err != nil {
			slog.Warn("Failed to shut down tracer provider", slog.String("error", err.Error()))
		}
	}
}

func printBanner(port int, cfg providers.RuntimeConfig) {
	fmt.Println("=========================================")
	fmt.Println(" Aleutian Ledger Analysis")
	fmt.Println("=========================================")
	fmt.Printf("  Listening on :%d\n", port)
	fmt.Printf("  Provider:  %s\n", cfg.Provider)
	fmt.Printf("  Strategy:  %s\n", cfg.Strategy)
	fmt.Printf("  Database:  %s\n", cfg.DBPath)
	fmt.Printf("  Timezone:  %s\n", cfg.Timezone)
	fmt.Println("=========================================")
}

func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracing := setupTracing(context.Background())

	cfg, err := providers.LoadRuntimeConfig()
	if err != nil {
		slog.Error("Invalid runtime configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := storage.Migrate(context.Background(), db); err != nil {
		slog.Error("Failed to migrate database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	svc, err := analysis.NewService(cfg, db)
	if err != nil {
		slog.Error("Failed to create analysis service", slog.String("error", err.Error()))
		os.Exit(1)
	}
	handlers := analysis.NewHandlers(svc)

	router := gin.New()
	router.Use(gin.Recovery())
	// Extract W3C trace context from inbound headers so handlers can
	// correlate logs with distributed traces.
	router.Use(otelgin.Middleware("aleutian-ledger-analysis"))
	if *debug {
		router.Use(gin.Logger())
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	analysis.RegisterRoutes(v1, handlers)

	printBanner(*port, cfg)

	addr := fmt.Sprintf(":%d", *port)
	server := &http.Server{Addr: addr, Handler: router}

	go func() {
		slog.Info("Starting Aleutian Ledger analysis server", slog.String("address", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Failed to start server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Let in-flight requests drain before closing the database.
	slog.Info("Shutting down Aleutian Ledger analysis server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Server shutdown was not clean", slog.String("error", err.Error()))
	}
	shutdownTracing(shutdownCtx)
	if err := db.Close(); err != nil {
		slog.Warn("Failed to close database", slog.String("error", err.Error()))
	}
}
