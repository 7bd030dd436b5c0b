// Copyright 2025 The Weft Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/wefthq/weft/internal/config"
	"github.com/wefthq/weft/internal/daemon"
	"github.com/wefthq/weft/internal/log"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	// Parse command line flags
	var (
		configPath  = flag.String("config", "", "Path to config file (default: the weft init location, if present)")
		listenAddr  = flag.String("addr", "", "Listen address (host:port)")
		backendType = flag.String("backend", "", "Storage backend (sqlite, postgres, memory)")
		postgresURL = flag.String("postgres-url", "", "PostgreSQL connection URL")
		dbPath      = flag.String("db", "", "SQLite database path")
		mcpEnabled  = flag.Bool("mcp", false, "Serve the MCP query tools at /mcp")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("weftd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Load .env if present (non-fatal; production won't have one) before
	// anything reads the environment.
	_ = godotenv.Load()

	// Initialize structured logging from environment
	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	// Without --config, pick up the file weft init writes when it exists.
	path := *configPath
	if path == "" {
		if candidate := config.DefaultPath(); fileExists(candidate) {
			path = candidate
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	// Apply CLI flag overrides
	if *listenAddr != "" {
		cfg.Listen.Addr = *listenAddr
	}
	if *backendType != "" {
		cfg.Storage.Backend = *backendType
	}
	if *postgresURL != "" {
		cfg.Storage.Postgres.ConnectionString = *postgresURL
	}
	if *dbPath != "" {
		cfg.Storage.Path = *dbPath
	}
	if *mcpEnabled {
		cfg.MCP.Enabled = true
	}

	// Re-validate: the overrides bypassed Load's checks.
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Create daemon instance
	d, err := daemon.New(ctx, cfg, daemon.Options{
		Version:    version,
		Commit:     commit,
		BuildDate:  buildDate,
		ConfigPath: path,
	})
	if err != nil {
		logger.Error("Failed to create daemon", slog.Any("error", err))
		os.Exit(1)
	}

	// Start daemon
	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Start(ctx)
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		fmt.Printf("\nReceived signal %v, shutting down...\n", sig)
		cancel()
		// Let Start finish draining the HTTP server before tearing the
		// components down underneath it.
		if err := <-errCh; err != nil {
			logger.Error("Daemon error during shutdown", slog.Any("error", err))
		}
		if err := d.Shutdown(context.Background()); err != nil {
			logger.Error("Error during shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil {
			logger.Error("Daemon error", slog.Any("error", err))
			os.Exit(1)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
