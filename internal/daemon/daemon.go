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

// Package daemon assembles and runs the weftd process: the span store,
// the aggregation engine, the HTTP API, and the background workers
// (retention sweep, span forwarder, config watcher).
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"golang.org/x/sync/errgroup"

	"github.com/wefthq/weft/internal/api"
	"github.com/wefthq/weft/internal/assemble"
	"github.com/wefthq/weft/internal/budget"
	"github.com/wefthq/weft/internal/classify"
	"github.com/wefthq/weft/internal/config"
	"github.com/wefthq/weft/internal/engine"
	"github.com/wefthq/weft/internal/export"
	"github.com/wefthq/weft/internal/live"
	"github.com/wefthq/weft/internal/log"
	"github.com/wefthq/weft/internal/mcp"
	"github.com/wefthq/weft/internal/rollup"
	"github.com/wefthq/weft/internal/store"
)

// Options contains daemon options set at build time.
type Options struct {
	Version   string
	Commit    string
	BuildDate string

	// ConfigPath is the loaded config file. When set, the daemon watches
	// it and hot-reloads the pricing and provider alias tables.
	ConfigPath string
}

// Daemon is the main weftd daemon.
type Daemon struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger
	server *http.Server
	ln     net.Listener

	store         store.Store
	classifier    *classify.Classifier
	assembler     *assemble.Assembler
	live          *live.Broadcaster
	roller        *rollup.Roller
	tracker       *budget.Tracker
	forwarder     *export.Forwarder
	engine        *engine.Engine
	mcpServer     *mcp.Server
	retention     *store.RetentionManager
	watcher       *config.Watcher
	meterProvider *metric.MeterProvider

	mu      sync.Mutex
	started bool
}

// New creates a new daemon instance from a validated configuration. The
// context bounds slow construction work (the postgres pool, exporter
// dials); it is not retained.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Daemon, error) {
	logger := log.WithComponent(log.New(&log.Config{
		Level:     cfg.Log.Level,
		Format:    log.Format(cfg.Log.Format),
		Output:    os.Stderr,
		AddSource: cfg.Log.AddSource,
	}), "daemon")

	st, err := newStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s store: %w", cfg.Storage.Backend, err)
	}

	classifier := classify.New()
	classifier.Update(cfg.Aliases(), cfg.PriceTable())

	assembler := assemble.New(assemble.Config{MaxTraces: cfg.Assembler.MaxTraces}, logger)
	broadcaster := live.New(live.Config{Buffer: cfg.Live.Buffer}, logger)

	ownership := rollup.NewStaticOwnership(st, cfg.Rollup.Projects, cfg.Rollup.DefaultProject)
	roller := rollup.New(st, classifier, ownership, logger)

	tracker := budget.New(roller, budget.Settings{
		Enabled:          cfg.Budget.Enabled,
		TokenLimit:       cfg.Budget.TokenLimit,
		Period:           cfg.Budget.Period,
		WarningThreshold: cfg.Budget.WarningThreshold,
	}, logger)

	// Create span forwarder if configured
	var forwarder *export.Forwarder
	if cfg.Forward.Enabled {
		exporter, err := export.NewExporter(ctx, export.ExporterConfig{
			Type:     cfg.Forward.Type,
			Endpoint: cfg.Forward.Endpoint,
			Headers:  cfg.Forward.Headers,
			TLS: export.TLSInput{
				Enabled:           cfg.Forward.TLS.Enabled,
				VerifyCertificate: cfg.Forward.TLS.VerifyCertificate,
				CACertPath:        cfg.Forward.TLS.CACertPath,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create span exporter: %w", err)
		}
		forwarder = export.NewForwarder(exporter, export.ForwarderConfig{
			Buffer:  cfg.Forward.Buffer,
			Timeout: time.Duration(cfg.Forward.TimeoutSeconds) * time.Second,
		}, logger)
	}

	// Self-metrics: an OpenTelemetry meter backed by the Prometheus
	// exporter, served on /metrics by promhttp.
	meterProvider, err := newMeterProvider(opts.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to create meter provider: %w", err)
	}
	metrics, err := engine.NewMetrics(meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine metrics: %w", err)
	}

	engOpts := engine.Options{
		Store:            st,
		Assembler:        assembler,
		Classifier:       classifier,
		Live:             broadcaster,
		Roller:           roller,
		Budget:           tracker,
		Metrics:          metrics,
		Logger:           logger,
		RetryAttempts:    cfg.Ingest.RetryAttempts,
		RetryBackoffBase: cfg.Ingest.RetryBackoffBase.Std(),
	}
	// Leave Forward nil-interfaced when forwarding is off.
	if forwarder != nil {
		engOpts.Forward = forwarder
	}
	eng, err := engine.New(engOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	var mcpSrv *mcp.Server
	if cfg.MCP.Enabled {
		mcpSrv = mcp.NewServer(eng, mcp.Config{
			Version:           opts.Version,
			RequestsPerMinute: cfg.MCP.RequestsPerMinute,
		}, logger)
	}

	var retention *store.RetentionManager
	if cfg.Storage.Retention.Enabled {
		maxAge := time.Duration(cfg.Storage.Retention.TraceDays) * 24 * time.Hour
		retention = store.NewRetentionManager(st, maxAge, cfg.Storage.Retention.SweepInterval.Std(), logger)
	}

	return &Daemon{
		cfg:           cfg,
		opts:          opts,
		logger:        logger,
		store:         st,
		classifier:    classifier,
		assembler:     assembler,
		live:          broadcaster,
		roller:        roller,
		tracker:       tracker,
		forwarder:     forwarder,
		engine:        eng,
		mcpServer:     mcpSrv,
		retention:     retention,
		meterProvider: meterProvider,
	}, nil
}

// newStore creates the span store for the configured backend.
func newStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		if cfg.Storage.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		return store.NewSQLite(store.SQLiteConfig{Path: cfg.Storage.Path})
	case "postgres":
		return store.NewPostgres(ctx, store.PostgresConfig{
			ConnectionString: cfg.Storage.Postgres.ConnectionString,
			MaxConns:         cfg.Storage.Postgres.MaxConns,
			MinConns:         cfg.Storage.Postgres.MinConns,
		})
	case "memory":
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// newMeterProvider builds the Prometheus-backed meter provider. The
// exporter registers with the default Prometheus registry, which is what
// promhttp.Handler serves.
func newMeterProvider(version string) (*metric.MeterProvider, error) {
	// Empty schema URL so merging with the default resource never
	// conflicts.
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName("weftd"),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	return metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(exporter),
	), nil
}

// Start runs the daemon until the context is cancelled or a component
// fails. The HTTP server is drained inside Start; Shutdown finishes the
// teardown of the background components afterwards.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return fmt.Errorf("daemon already started")
	}
	d.started = true
	d.mu.Unlock()

	ln, err := net.Listen("tcp", d.cfg.Listen.Addr)
	if err != nil {
		// Nothing is running yet; let Shutdown stay a no-op.
		d.mu.Lock()
		d.started = false
		d.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", d.cfg.Listen.Addr, err)
	}
	d.mu.Lock()
	d.ln = ln
	d.mu.Unlock()

	router := api.NewRouter(d.engine, api.Config{
		Version:  d.opts.Version,
		MaxBatch: d.cfg.Ingest.MaxBatch,
		Rate:     d.cfg.Ingest.Rate,
		Burst:    d.cfg.Ingest.Burst,
	}, d.logger)

	router.SetMetricsHandler(promhttp.Handler())

	if d.mcpServer != nil {
		router.SetMCPHandler(mcpserver.NewStreamableHTTPServer(d.mcpServer.MCPServer()))
		d.logger.Info("MCP server mounted", slog.String("path", "/mcp"))
	}

	d.server = &http.Server{
		Handler: router,
		// No WriteTimeout: /v1/live holds its response open for the
		// lifetime of the subscription.
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	if d.retention != nil {
		d.retention.Start()
	}
	if d.forwarder != nil {
		d.forwarder.Start()
	}
	if d.opts.ConfigPath != "" {
		w, err := config.Watch(d.opts.ConfigPath, d.logger, d.onConfigReload)
		if err != nil {
			// Hot reload is a convenience, not a requirement.
			d.logger.Warn("config watcher unavailable", log.Error(err))
		} else {
			d.watcher = w
		}
	}

	d.logger.Info("weftd starting",
		slog.String("version", d.opts.Version),
		slog.String("commit", d.opts.Commit),
		slog.String("build_date", d.opts.BuildDate),
		slog.String("listen_addr", ln.Addr().String()),
		slog.String("backend", d.cfg.Storage.Backend),
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := d.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()

		// Closing the broadcaster ends every /v1/live stream with a
		// done event, so the drain below can complete.
		d.live.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), d.cfg.Listen.ShutdownTimeout.Std())
		defer cancel()
		if err := d.server.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn("drain timeout exceeded, closing remaining connections", log.Error(err))
			return d.server.Close()
		}
		return nil
	})

	return g.Wait()
}

// Addr returns the bound listen address, or "" before Start. With a
// ":0" listen config this is where the daemon actually ended up.
func (d *Daemon) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ln == nil {
		return ""
	}
	return d.ln.Addr().String()
}

// onConfigReload applies the hot-reloadable parts of a fresh config: the
// pricing table and the provider aliases. Everything else requires a
// restart.
func (d *Daemon) onConfigReload(cfg *config.Config) {
	d.classifier.Update(cfg.Aliases(), cfg.PriceTable())
	d.logger.Info("pricing and provider aliases reloaded",
		slog.Int("pricing_rules", len(cfg.Pricing)),
		slog.Int("provider_aliases", len(cfg.ProviderAliases)),
	)
}

// Shutdown stops the background components and releases storage. Call it
// after Start has returned; the HTTP listener is already drained by then.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return nil
	}

	d.logger.Info("shutting down")

	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			d.logger.Error("config watcher shutdown error", log.Error(err))
		}
	}

	if d.retention != nil {
		d.retention.Stop()
	}

	// Safe to repeat; Start's drain path already closed it on the
	// cancellation path.
	d.live.Close()

	if d.forwarder != nil {
		flushCtx, cancel := context.WithTimeout(ctx, d.cfg.Listen.ShutdownTimeout.Std())
		defer cancel()
		if err := d.forwarder.Stop(flushCtx); err != nil {
			d.logger.Error("forwarder shutdown error", log.Error(err))
		}
	}

	if d.meterProvider != nil {
		meterCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := d.meterProvider.Shutdown(meterCtx); err != nil {
			d.logger.Error("meter provider shutdown error", log.Error(err))
		}
	}

	if err := d.store.Close(); err != nil {
		d.logger.Error("failed to close store", log.Error(err))
	}

	d.started = false
	d.logger.Info("daemon stopped")
	return nil
}
