// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator assembles the Proteo HTTP service.
//
// It wires the knowledge base, the open-data gateway and its cache warmer,
// the conversation memory store, the retrieval composer, the chat
// orchestrator, tracing, metrics and the gin router.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc, err := orchestrator.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	log.Fatal(svc.Run(ctx))
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianProteo/services/llm"
	"github.com/AleutianAI/AleutianProteo/services/opendata"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator/config"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator/conversation"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator/knowledge"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator/middleware"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator/routes"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator/services"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service is the orchestrator lifecycle.
//
// # Thread Safety
//
// Run blocks and must be called at most once. Router may be called from
// any goroutine.
type Service interface {
	// Run serves HTTP until ctx is cancelled or the listener fails, then
	// shuts down gracefully within the configured timeout.
	Run(ctx context.Context) error

	// Router returns the configured gin engine, primarily for tests.
	Router() *gin.Engine
}

// =============================================================================
// Options
// =============================================================================

// Option customises New. Options exist for tests; production passes none.
type Option func(*service)

// WithRegistry replaces the fresh Prometheus registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *service) { s.registry = reg }
}

// WithGatewayOptions appends options to the open-data gateway, for example
// a fake HTTP client.
func WithGatewayOptions(opts ...opendata.Option) Option {
	return func(s *service) { s.gatewayOpts = append(s.gatewayOpts, opts...) }
}

// WithLLMClient uses client instead of building one from the sealed key.
func WithLLMClient(client llm.LLMClient) Option {
	return func(s *service) { s.llmClient = client }
}

// =============================================================================
// Implementation
// =============================================================================

type service struct {
	config *config.Config

	registry    *prometheus.Registry
	gatewayOpts []opendata.Option
	llmClient   llm.LLMClient

	router        *gin.Engine
	gateway       *opendata.Gateway
	warmer        *opendata.Warmer
	chat          *services.ChatOrchestrator
	tracerCleanup func(context.Context)
}

// New builds every component described by cfg.
//
// # Description
//
// Initialisation order:
//  1. tracing (OTLP, stdout or none)
//  2. Prometheus metrics on a private registry
//  3. knowledge base, open-data gateway and warmer
//  4. conversation memory, composer and chat orchestrator
//  5. the optional LLM client, when an API key is sealed in cfg
//  6. gin router with otelgin, request id and access log middleware
//
// # Outputs
//
//   - Service: Ready to Run.
//   - error: Tracer or knowledge base construction failed. A missing or
//     broken LLM configuration is not an error; the service runs without
//     enhancement.
func New(cfg *config.Config, opts ...Option) (Service, error) {
	s := &service{config: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	cleanup, err := initTracer(cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	metrics := observability.NewMetrics(s.registry)

	kb, err := knowledge.NewMarine()
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to load knowledge base: %w", err)
	}

	gatewayOpts := []opendata.Option{
		opendata.WithRecorder(metrics),
		opendata.WithRequestTimeout(cfg.OpenData.RequestTimeout),
		opendata.WithCache(cfg.OpenData.CacheTTL, cfg.OpenData.CacheCapacity),
		opendata.WithCopernicusKey(cfg.CopernicusKey().Reveal),
	}
	s.gateway = opendata.NewGateway(append(gatewayOpts, s.gatewayOpts...)...)
	if cfg.OpenData.WarmerEnabled {
		s.warmer = opendata.NewWarmer(s.gateway, cfg.OpenData.WarmInterval, slog.Default())
	}

	th := cfg.Thresholds
	memory := conversation.NewStore(
		conversation.WithMaxTurns(cfg.Memory.MaxTurns),
		conversation.WithThresholds(conversation.Thresholds{
			Relevance: th.Relevance,
			Technical: th.Technical,
			Expertise: th.Expertise,
		}),
	)
	composer := services.NewRetrievalComposer(kb, s.gateway, memory,
		services.WithRelationThreshold(th.Relation),
	)

	chatOpts := []services.OrchestratorOption{
		services.WithHealthSources(s.gateway, kb),
		services.WithMetrics(metrics),
		services.WithOrchestratorThresholds(services.OrchestratorThresholds{
			Enhance:      th.Enhance,
			RealData:     th.RealData,
			Mock:         th.Mock,
			HealthQuorum: th.Health,
		}),
	}
	if client := s.initLLMClient(); client != nil {
		chatOpts = append(chatOpts,
			services.WithLLM(client),
			services.WithSystemPrompt(cfg.LLM.SystemPrompt),
		)
	}
	s.chat = services.NewChatOrchestrator(composer, memory, chatOpts...)

	s.initRouter(kb)
	slog.Info("Orchestrator initialized", cfg.LogFields()...)
	return s, nil
}

// Run serves until ctx is done.
func (s *service) Run(ctx context.Context) error {
	defer s.cleanup()

	if s.warmer != nil {
		s.warmer.Start(ctx)
		defer s.warmer.Stop()
	}

	srv := &http.Server{
		Addr:              s.config.Server.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting orchestrator server", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down orchestrator server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// Router returns the gin engine.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// initTracer installs the global tracer provider.
//
// An OTLP endpoint wins over the stdout exporter. With neither, the global
// no-op provider stays in place and the returned cleanup does nothing.
func initTracer(cfg config.TracingConfig) (func(context.Context), error) {
	ctx := context.Background()

	var exporter sdktrace.SpanExporter
	switch {
	case cfg.OTLPEndpoint != "":
		conn, err := grpc.NewClient(cfg.OTLPEndpoint,
			grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
		}
		exporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
	case cfg.Stdout:
		var err error
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
	default:
		slog.Info("Tracing disabled; set OTEL_EXPORTER_OTLP_ENDPOINT or PROTEO_TRACE_STDOUT to enable")
		return func(context.Context) {}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceProvider.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown tracer provider", "error", err)
		}
	}, nil
}

// initLLMClient returns the injected client, or an OpenAI-compatible one
// when a key is configured, or nil.
func (s *service) initLLMClient() llm.LLMClient {
	if s.llmClient != nil {
		return s.llmClient
	}
	if !s.config.LLMKey().Present() {
		slog.Info("No LLM API key configured; answers will not be enhanced")
		return nil
	}
	key, err := s.config.LLMKey().Open()
	if err != nil {
		slog.Warn("Failed to open the LLM API key; continuing without enhancement", "error", err)
		return nil
	}
	client, err := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:  key,
		BaseURL: s.config.LLM.BaseURL,
		Model:   s.config.LLM.Model,
		Timeout: s.config.LLM.Timeout,
	})
	if err != nil {
		slog.Warn("Failed to create the LLM client; continuing without enhancement", "error", err)
		return nil
	}
	return client
}

func (s *service) initRouter(kb *knowledge.Base) {
	if s.config.Server.GinMode != "" {
		gin.SetMode(s.config.Server.GinMode)
	}
	s.router = gin.New()
	s.router.Use(
		gin.Recovery(),
		otelgin.Middleware(s.config.Tracing.ServiceName),
		middleware.RequestID(),
		middleware.AccessLog(slog.Default()),
	)

	routes.SetupRoutes(s.router, routes.Dependencies{
		Chat:      s.chat,
		Data:      s.gateway,
		Knowledge: kb,
		Gatherer:  s.registry,
	})
}

// cleanup releases resources held by the service.
func (s *service) cleanup() {
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
