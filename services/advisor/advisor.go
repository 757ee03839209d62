// Copyright (C) 2026 Agronova AI (dev@agronova.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package advisor provides the core advisory service for AgronovaLocal.
//
// This package contains the main advisor type that coordinates all
// components of the service: HTTP routing, the turn pipeline with its
// redaction, routing, context aggregation and rule stages, LLM clients,
// checkpointing, and observability infrastructure.
//
// # Usage
//
//	cfg := advisor.Config{Port: 12310}
//	svc, err := advisor.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AgronovaAI/AgronovaLocal/services/advisor/cache"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/checkpoint"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/contextagg"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/observability"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/pipeline"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/providers"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/rateguard"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/router"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/routes"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/rules"
	"github.com/AgronovaAI/AgronovaLocal/services/llm"
	"github.com/AgronovaAI/AgronovaLocal/services/redaction"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the advisor service.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and should
// only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds advisor configuration options.
//
// # Required Fields
//
// None - all fields have sensible defaults, though without RegistryURL
// and AdvisoryURL every turn runs on synthetic context.
//
// # Examples
//
//	// Minimal config (uses all defaults)
//	cfg := Config{}
//
//	// Custom port and LLM backend
//	cfg := Config{
//	    Port:       8080,
//	    LLMBackend: "openai",
//	}
type Config struct {
	// Port is the HTTP server port. Default: 12310
	Port int

	// LLMBackend specifies the LLM provider.
	// Valid values: "ollama", "openai"
	// Default: "ollama"
	LLMBackend string

	// RegistryURL is the farm registry base URL serving farm profiles
	// and site readings. If empty, profile and site context fall back
	// to synthetic values on every turn.
	RegistryURL string

	// AdvisoryURL is the regional advisory service base URL. If empty,
	// weather context falls back to seasonal climatology.
	AdvisoryURL string

	// CheckpointDir is the durable conversation store directory.
	// If empty, checkpoints live in the ephemeral in-memory tier.
	CheckpointDir string

	// CacheDir is the on-disk context cache directory.
	// If empty, the cache is process-local memory.
	CacheDir string

	// DisableVolatileFallback makes startup fatal when neither badger
	// checkpoint tier can open, instead of serving from a process map.
	DisableVolatileFallback bool

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "agronova-otel-collector:4317"
	OTelEndpoint string

	// EnableMetrics enables the Prometheus metrics endpoint.
	// Default: true
	EnableMetrics bool

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	// Default: uses GIN_MODE env var or "debug"
	GinMode string

	// RateLimit is the per-client request budget per RateWindow.
	// Default: 60 per minute.
	RateLimit  int
	RateWindow time.Duration
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
type service struct {
	config        Config
	router        *gin.Engine
	llmClient     llm.LLMClient
	redactor      *redaction.Engine
	rulesEngine   *rules.Engine
	checkpoints   checkpoint.Store
	contextCache  *cache.Layer
	pipeline      *pipeline.Pipeline
	guard         *rateguard.Guard
	tracerCleanup func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a new advisor Service with the given configuration.
//
// # Description
//
// New initializes all advisor components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing
//  3. Initializes Prometheus metrics
//  4. Compiles the redaction patterns and agronomy rules
//  5. Selects the checkpoint backend (durable, ephemeral, or volatile)
//  6. Creates the LLM client, context providers, and cache
//  7. Assembles the turn pipeline and HTTP routes
//
// # Outputs
//
//   - Service: Ready-to-run advisor service
//   - error: Non-nil if initialization fails
//
// # Assumptions
//
//   - Environment variables are set for the LLM provider (API keys, URLs)
//   - Network is available for the registry and advisory services
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	// Initialize OpenTelemetry tracer
	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	// Initialize Prometheus metrics
	if s.config.EnableMetrics {
		observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics")
	}

	// Compile redaction patterns
	s.redactor, err = redaction.NewEngine()
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize redaction engine: %w", err)
	}

	// Compile agronomy rules
	s.rulesEngine, err = rules.NewEngine()
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize rules engine: %w", err)
	}

	// Select the checkpoint backend once for the process lifetime
	s.checkpoints, err = checkpoint.Open(checkpoint.Config{
		Dir:                     s.config.CheckpointDir,
		DisableVolatileFallback: s.config.DisableVolatileFallback,
	})
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}

	// Initialize LLM client
	if err := s.initLLMClient(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	// Assemble the turn pipeline
	if err := s.initPipeline(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to assemble pipeline: %w", err)
	}

	s.guard = rateguard.New(rateguard.NewMemoryStore(), s.config.RateLimit, s.config.RateWindow)

	// Setup HTTP router
	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting advisor server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "ollama"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "agronova-otel-collector:4317"
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 60
	}
	if cfg.RateWindow == 0 {
		cfg.RateWindow = time.Minute
	}
	cfg.EnableMetrics = true

	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Limitations
//
//   - Uses insecure gRPC connection (appropriate for internal networks)
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("advisor-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initLLMClient initializes the LLM provider client.
func (s *service) initLLMClient() error {
	var err error

	switch s.config.LLMBackend {
	case "openai":
		s.llmClient, err = llm.NewOpenAIClient()
		slog.Info("Using OpenAI LLM backend")
	case "ollama":
		s.llmClient, err = llm.NewOllamaClient()
		slog.Info("Using Ollama LLM backend")
	default:
		slog.Warn("Unknown LLM backend, defaulting to ollama", "backend", s.config.LLMBackend)
		s.llmClient, err = llm.NewOllamaClient()
	}

	return err
}

// initPipeline wires the context providers, cache, router, and stages
// into the turn pipeline.
func (s *service) initPipeline() error {
	httpClient := &http.Client{Timeout: 10 * time.Second}

	registry := providers.NewRegistryClient(s.config.RegistryURL, httpClient)
	advisories := providers.NewAdvisoryClient(s.config.AdvisoryURL, httpClient,
		providers.DefaultRetryPolicy())

	store := cache.NewMemoryStore()
	if s.config.CacheDir != "" {
		var err error
		store, err = cache.NewBadgerStore(s.config.CacheDir)
		if err != nil {
			slog.Warn("On-disk cache unavailable, using in-memory cache",
				"dir", s.config.CacheDir, "error", err)
			store = cache.NewMemoryStore()
		}
	}
	s.contextCache = cache.NewLayer(store, cache.DefaultTTLs())

	aggregator := contextagg.New(registry, registry, advisories, s.contextCache,
		contextagg.DefaultAggregatorConfig())

	intentRouter := router.New(s.llmClient, router.DefaultConfig())

	s.pipeline = pipeline.New(s.redactor, intentRouter, aggregator,
		s.rulesEngine, s.checkpoints, s.llmClient)

	return nil
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("advisor-service"))

	routes.SetupRoutes(s.router, s.pipeline, s.redactor, s.guard)
}

// cleanup releases all resources held by the service.
//
// Called when Run() exits or on initialization failure.
func (s *service) cleanup() {
	if s.contextCache != nil {
		if err := s.contextCache.Close(); err != nil {
			slog.Warn("Context cache close error", "error", err)
		}
	}

	if s.checkpoints != nil {
		if err := s.checkpoints.Close(); err != nil {
			slog.Warn("Checkpoint store close error", "error", err)
		}
	}

	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
