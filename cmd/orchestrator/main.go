// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command orchestrator starts the Proteo HTTP server.
//
// # Environment Variables
//
//   - PROTEO_CONFIG: optional YAML configuration file
//   - PROTEO_ADDR: listen address (default: :12210)
//   - PROTEO_LLM_API_KEY: enables answer enhancement
//   - PROTEO_COPERNICUS_API_KEY: enables the Copernicus marine source
//   - PROTEO_LOG_LEVEL, PROTEO_LOG_FILE, PROTEO_LOG_JSON: logging
//   - OTEL_EXPORTER_OTLP_ENDPOINT, PROTEO_TRACE_STDOUT: tracing
//
// A .env file in the working directory is read as well; variables already
// set in the environment take precedence.
//
// # Usage
//
//	go build -o orchestrator ./cmd/orchestrator
//	./orchestrator
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleutianAI/AleutianProteo/pkg/logging"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "orchestrator: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Log.Level),
		LogFile: cfg.Log.File,
		Service: cfg.Tracing.ServiceName,
		JSON:    cfg.Log.JSON,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())
	defer config.PurgeSecrets()

	svc, err := orchestrator.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return svc.Run(ctx)
}
