// Copyright (C) 2026 Agronova AI (dev@agronova.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command advisor starts the AgronovaLocal advisory HTTP server.
//
// This is the main entry point for the containerized advisor service.
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - ADVISOR_PORT: HTTP server port (default: 12310)
//   - LLM_BACKEND_TYPE: LLM provider - ollama, openai (default: ollama)
//   - FARM_REGISTRY_URL: farm registry base URL (optional)
//   - ADVISORY_SERVICE_URL: regional advisory base URL (optional)
//   - ADVISOR_CHECKPOINT_DIR: durable conversation store directory (optional)
//   - ADVISOR_CACHE_DIR: on-disk context cache directory (optional)
//   - ADVISOR_DISABLE_VOLATILE_FALLBACK: refuse the in-process checkpoint map (default: false)
//   - ADVISOR_RATE_LIMIT: per-client requests per window (default: 60)
//   - ADVISOR_RATE_WINDOW: rate window duration (default: 1m)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: agronova-otel-collector:4317)
//
// # Usage
//
//	# Build
//	go build -o advisor ./cmd/advisor
//
//	# Run
//	./advisor
//
//	# Or via container
//	podman-compose up advisor
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/AgronovaAI/AgronovaLocal/services/advisor"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Build configuration from environment variables
	cfg := advisor.Config{
		Port:                    getEnvInt("ADVISOR_PORT", 12310),
		LLMBackend:              getEnvString("LLM_BACKEND_TYPE", "ollama"),
		RegistryURL:             os.Getenv("FARM_REGISTRY_URL"),
		AdvisoryURL:             os.Getenv("ADVISORY_SERVICE_URL"),
		CheckpointDir:           os.Getenv("ADVISOR_CHECKPOINT_DIR"),
		CacheDir:                os.Getenv("ADVISOR_CACHE_DIR"),
		DisableVolatileFallback: getEnvBool("ADVISOR_DISABLE_VOLATILE_FALLBACK", false),
		RateLimit:               getEnvInt("ADVISOR_RATE_LIMIT", 60),
		RateWindow:              getEnvDuration("ADVISOR_RATE_WINDOW", time.Minute),
		OTelEndpoint:            getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "agronova-otel-collector:4317"),
	}

	slog.Info("Starting advisor",
		"port", cfg.Port,
		"llm_backend", cfg.LLMBackend,
		"registry_url", cfg.RegistryURL,
		"advisory_url", cfg.AdvisoryURL,
	)

	svc, err := advisor.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create advisor: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Advisor error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns the environment variable as bool or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration returns the environment variable as a duration or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
