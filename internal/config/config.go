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

// Package config loads and validates the weftd configuration from YAML
// files and environment variables. Environment variables take precedence
// over file values; Default() supplies everything else.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wefthq/weft/internal/assemble"
	"github.com/wefthq/weft/internal/classify"
	wefterrors "github.com/wefthq/weft/pkg/errors"
)

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Duration is a time.Duration that YAML-decodes from "10s" style strings.
// Plain integers are accepted as nanoseconds for compatibility with
// programmatically generated files.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err == nil {
		parsed, perr := time.ParseDuration(raw)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, perr)
		}
		*d = Duration(parsed)
		return nil
	}

	var nanos int64
	if err := value.Decode(&nanos); err != nil {
		return fmt.Errorf("invalid duration value on line %d", value.Line)
	}
	*d = Duration(nanos)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// Config represents the complete weftd configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Storage   StorageConfig   `yaml:"storage"`
	Assembler AssemblerConfig `yaml:"assembler"`
	Live      LiveConfig      `yaml:"live"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Rollup    RollupConfig    `yaml:"rollup"`
	Budget    BudgetConfig    `yaml:"budget"`
	Forward   ForwardConfig   `yaml:"forward"`
	MCP       MCPConfig       `yaml:"mcp"`
	Log       LogConfig       `yaml:"log"`

	// Pricing overrides the built-in price table. Rules are matched in
	// order; the first provider/model-glob match wins.
	Pricing []classify.PriceRule `yaml:"pricing,omitempty"`

	// ProviderAliases maps reported provider strings to canonical names
	// (e.g. "azure_openai" -> "openai"). Merged over the built-in table.
	ProviderAliases map[string]string `yaml:"provider_aliases,omitempty"`
}

// ListenConfig configures the daemon's HTTP listener.
type ListenConfig struct {
	// Addr is the address to bind (host:port).
	// Environment: WEFT_LISTEN_ADDR
	// Default: 127.0.0.1:8787
	Addr string `yaml:"addr,omitempty"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 10s
	ShutdownTimeout Duration `yaml:"shutdown_timeout,omitempty"`
}

// StorageConfig configures the span store backend.
type StorageConfig struct {
	// Backend is the storage type: "sqlite", "postgres", or "memory".
	// Environment: WEFT_STORAGE_BACKEND
	// Default: sqlite
	Backend string `yaml:"backend,omitempty"`

	// Path is the SQLite database path (for backend=sqlite).
	// Environment: WEFT_DB_PATH
	// Default: DataDir/weft.db
	Path string `yaml:"path,omitempty"`

	// DataDir is the directory for daemon data.
	// Environment: WEFT_DATA_DIR
	DataDir string `yaml:"data_dir,omitempty"`

	// Postgres contains PostgreSQL-specific settings (for backend=postgres).
	Postgres PostgresConfig `yaml:"postgres,omitempty"`

	// Retention defines how long spans are kept.
	Retention RetentionConfig `yaml:"retention,omitempty"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	// ConnectionString is the PostgreSQL connection URL.
	// Environment: WEFT_POSTGRES_URL
	ConnectionString string `yaml:"connection_string,omitempty"`

	// MaxConns sets the maximum pool size.
	MaxConns int `yaml:"max_conns,omitempty"`

	// MinConns sets the minimum number of idle connections.
	MinConns int `yaml:"min_conns,omitempty"`
}

// RetentionConfig defines the span retention policy.
type RetentionConfig struct {
	// Enabled activates the background retention sweep.
	Enabled bool `yaml:"enabled"`

	// TraceDays is how long to keep span data (in days).
	TraceDays int `yaml:"trace_days,omitempty"`

	// SweepInterval is how often the retention loop runs.
	SweepInterval Duration `yaml:"sweep_interval,omitempty"`
}

// AssemblerConfig configures the in-memory trace registry.
type AssemblerConfig struct {
	// MaxTraces bounds resident traces; the oldest trace is evicted when
	// the cap is reached. Evicted traces remain readable from the store.
	// Default: 2048
	MaxTraces int `yaml:"max_traces,omitempty"`
}

// LiveConfig configures the live span feed.
type LiveConfig struct {
	// Buffer is the per-subscriber queue depth. When a subscriber falls
	// behind, the oldest queued span is dropped rather than blocking
	// ingestion.
	// Default: 64
	Buffer int `yaml:"buffer,omitempty"`
}

// IngestConfig configures the ingest path.
type IngestConfig struct {
	// Rate limits ingest requests per second. Zero disables limiting.
	Rate float64 `yaml:"rate,omitempty"`

	// Burst is the rate limiter burst size.
	Burst int `yaml:"burst,omitempty"`

	// MaxBatch caps the number of spans accepted in one batch request.
	// Default: 1000
	MaxBatch int `yaml:"max_batch,omitempty"`

	// RetryAttempts is how many times a retryable store failure is
	// retried before the ingest fails.
	// Default: 3
	RetryAttempts int `yaml:"retry_attempts,omitempty"`

	// RetryBackoffBase is the initial backoff between store retries;
	// it doubles on each attempt.
	// Default: 50ms
	RetryBackoffBase Duration `yaml:"retry_backoff_base,omitempty"`
}

// RollupConfig configures rollup grouping.
type RollupConfig struct {
	// DefaultProject is the project assigned to executions no rule
	// matches.
	// Default: default
	DefaultProject string `yaml:"default_project,omitempty"`

	// Projects maps workflow names to owning projects for the
	// cost-by-project rollup.
	Projects map[string]string `yaml:"projects,omitempty"`
}

// BudgetConfig configures token budget tracking.
type BudgetConfig struct {
	// Enabled activates budget checks.
	Enabled bool `yaml:"enabled"`

	// TokenLimit is the token allowance per period. Zero means no limit.
	TokenLimit int64 `yaml:"token_limit,omitempty"`

	// Period is the budget window: "monthly" or "daily".
	// Default: monthly
	Period string `yaml:"period,omitempty"`

	// WarningThreshold is the usage fraction at which status becomes
	// "warning" (0.0 - 1.0).
	// Default: 0.8
	WarningThreshold float64 `yaml:"warning_threshold,omitempty"`
}

// ForwardConfig configures mirroring of ingested spans to an external
// collector.
type ForwardConfig struct {
	// Enabled activates span forwarding.
	Enabled bool `yaml:"enabled"`

	// Type is the exporter type: "otlp", "otlp-http", or "console".
	Type string `yaml:"type,omitempty"`

	// Endpoint is the OTLP receiver address.
	Endpoint string `yaml:"endpoint,omitempty"`

	// Headers are additional headers for authentication.
	Headers map[string]string `yaml:"headers,omitempty"`

	// TLS configures secure connections.
	TLS TLSConfig `yaml:"tls,omitempty"`

	// TimeoutSeconds is the export timeout in seconds.
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`

	// Buffer is the forwarding queue depth. The oldest queued span is
	// dropped when the queue is full; forwarding never blocks ingestion.
	// Default: 512
	Buffer int `yaml:"buffer,omitempty"`
}

// TLSConfig configures TLS for the forwarder.
type TLSConfig struct {
	// Enabled activates TLS.
	Enabled bool `yaml:"enabled"`

	// VerifyCertificate controls certificate validation.
	VerifyCertificate bool `yaml:"verify_certificate"`

	// CACertPath is the path to the CA certificate.
	CACertPath string `yaml:"ca_cert_path,omitempty"`
}

// MCPConfig configures the MCP query server.
type MCPConfig struct {
	// Enabled mounts the MCP tools at /mcp on the HTTP listener.
	Enabled bool `yaml:"enabled"`

	// RequestsPerMinute rate-limits tool calls. Zero disables limiting.
	// Default: 60
	RequestsPerMinute int `yaml:"requests_per_minute,omitempty"`
}

// LogConfig configures daemon logging.
type LogConfig struct {
	// Level is the log level (trace, debug, info, warn, error).
	Level string `yaml:"level,omitempty"`

	// Format is the log format (json, text).
	Format string `yaml:"format,omitempty"`

	// AddSource adds source file and line information to logs.
	AddSource bool `yaml:"add_source"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	dataDir := defaultDataDir()

	return &Config{
		Listen: ListenConfig{
			Addr:            "127.0.0.1:8787",
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Storage: StorageConfig{
			Backend: "sqlite",
			Path:    "", // resolved to DataDir/weft.db by applyDefaults
			DataDir: dataDir,
			Postgres: PostgresConfig{
				MaxConns: 8,
				MinConns: 1,
			},
			Retention: RetentionConfig{
				Enabled:       true,
				TraceDays:     7,
				SweepInterval: Duration(time.Hour),
			},
		},
		Assembler: AssemblerConfig{
			MaxTraces: assemble.DefaultMaxTraces,
		},
		Live: LiveConfig{
			Buffer: 64,
		},
		Ingest: IngestConfig{
			Rate:             0, // unlimited
			Burst:            0,
			MaxBatch:         1000,
			RetryAttempts:    3,
			RetryBackoffBase: Duration(50 * time.Millisecond),
		},
		Rollup: RollupConfig{
			DefaultProject: "default",
		},
		Budget: BudgetConfig{
			Enabled:          false,
			Period:           "monthly",
			WarningThreshold: 0.8,
		},
		Forward: ForwardConfig{
			Enabled:        false,
			Type:           "otlp",
			TimeoutSeconds: 10,
			Buffer:         512,
		},
		MCP: MCPConfig{
			Enabled:           false,
			RequestsPerMinute: 60,
		},
		Log: LogConfig{
			Level:     "info",
			Format:    "json",
			AddSource: false,
		},
	}
}

// Load loads configuration from environment variables and optionally from a
// YAML file. Environment variables take precedence over file-based
// configuration. If configPath is empty, only environment variables are used.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &wefterrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	// Fill zero values back in so minimal configs work
	cfg.applyDefaults()

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &wefterrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

// applyDefaults fills in zero values with sensible defaults. This allows
// minimal configs (e.g. just a pricing table) to work without specifying
// every field.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Listen.Addr == "" {
		c.Listen.Addr = defaults.Listen.Addr
	}
	if c.Listen.ShutdownTimeout == 0 {
		c.Listen.ShutdownTimeout = defaults.Listen.ShutdownTimeout
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = defaults.Storage.Backend
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = defaults.Storage.DataDir
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.Storage.DataDir, "weft.db")
	}
	if c.Storage.Postgres.MaxConns == 0 {
		c.Storage.Postgres.MaxConns = defaults.Storage.Postgres.MaxConns
	}
	if c.Storage.Postgres.MinConns == 0 {
		c.Storage.Postgres.MinConns = defaults.Storage.Postgres.MinConns
	}
	if c.Storage.Retention.TraceDays == 0 {
		c.Storage.Retention.TraceDays = defaults.Storage.Retention.TraceDays
	}
	if c.Storage.Retention.SweepInterval == 0 {
		c.Storage.Retention.SweepInterval = defaults.Storage.Retention.SweepInterval
	}

	if c.Assembler.MaxTraces == 0 {
		c.Assembler.MaxTraces = defaults.Assembler.MaxTraces
	}

	if c.Live.Buffer == 0 {
		c.Live.Buffer = defaults.Live.Buffer
	}

	if c.Ingest.MaxBatch == 0 {
		c.Ingest.MaxBatch = defaults.Ingest.MaxBatch
	}
	if c.Ingest.RetryAttempts == 0 {
		c.Ingest.RetryAttempts = defaults.Ingest.RetryAttempts
	}
	if c.Ingest.RetryBackoffBase == 0 {
		c.Ingest.RetryBackoffBase = defaults.Ingest.RetryBackoffBase
	}

	if c.Budget.Period == "" {
		c.Budget.Period = defaults.Budget.Period
	}
	if c.Budget.WarningThreshold == 0 {
		c.Budget.WarningThreshold = defaults.Budget.WarningThreshold
	}

	if c.Forward.Type == "" {
		c.Forward.Type = defaults.Forward.Type
	}
	if c.Forward.TimeoutSeconds == 0 {
		c.Forward.TimeoutSeconds = defaults.Forward.TimeoutSeconds
	}
	if c.Forward.Buffer == 0 {
		c.Forward.Buffer = defaults.Forward.Buffer
	}

	if c.MCP.RequestsPerMinute == 0 {
		c.MCP.RequestsPerMinute = defaults.MCP.RequestsPerMinute
	}

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
}

// loadFromFile reads and parses a YAML config file into c.
func (c *Config) loadFromFile(path string) error {
	// Expand home directory if present
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("WEFT_LISTEN_ADDR"); val != "" {
		c.Listen.Addr = val
	}
	if val := os.Getenv("WEFT_SHUTDOWN_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Listen.ShutdownTimeout = Duration(duration)
		}
	}

	if val := os.Getenv("WEFT_STORAGE_BACKEND"); val != "" {
		c.Storage.Backend = strings.ToLower(val)
	}
	if val := os.Getenv("WEFT_DB_PATH"); val != "" {
		c.Storage.Path = val
	}
	if val := os.Getenv("WEFT_DATA_DIR"); val != "" {
		c.Storage.DataDir = val
	}
	if val := os.Getenv("WEFT_POSTGRES_URL"); val != "" {
		c.Storage.Postgres.ConnectionString = val
	}

	if val := os.Getenv("WEFT_MAX_TRACES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Assembler.MaxTraces = n
		}
	}

	if val := os.Getenv("WEFT_LIVE_BUFFER"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Live.Buffer = n
		}
	}

	if val := os.Getenv("WEFT_INGEST_RATE"); val != "" {
		if rate, err := strconv.ParseFloat(val, 64); err == nil {
			c.Ingest.Rate = rate
		}
	}
	if val := os.Getenv("WEFT_INGEST_BURST"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Ingest.Burst = n
		}
	}

	if val := os.Getenv("WEFT_BUDGET_TOKEN_LIMIT"); val != "" {
		if limit, err := strconv.ParseInt(val, 10, 64); err == nil {
			c.Budget.TokenLimit = limit
			c.Budget.Enabled = limit > 0
		}
	}
	if val := os.Getenv("WEFT_BUDGET_PERIOD"); val != "" {
		c.Budget.Period = strings.ToLower(val)
	}

	if val := os.Getenv("WEFT_FORWARD_ENDPOINT"); val != "" {
		c.Forward.Endpoint = val
		c.Forward.Enabled = true
	}
	if val := os.Getenv("WEFT_FORWARD_TYPE"); val != "" {
		c.Forward.Type = strings.ToLower(val)
	}

	if val := os.Getenv("WEFT_MCP_ENABLED"); val != "" {
		c.MCP.Enabled = val == "1" || strings.ToLower(val) == "true"
	}

	if val := os.Getenv("WEFT_LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	} else if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("WEFT_LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	} else if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = val == "1" || strings.ToLower(val) == "true"
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Listen.Addr == "" {
		errs = append(errs, "listen.addr must not be empty")
	}
	if c.Listen.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("listen.shutdown_timeout must be positive, got %v", c.Listen.ShutdownTimeout))
	}

	validBackends := map[string]bool{"sqlite": true, "postgres": true, "memory": true}
	if !validBackends[c.Storage.Backend] {
		errs = append(errs, fmt.Sprintf("storage.backend must be one of [sqlite, postgres, memory], got %q", c.Storage.Backend))
	}
	if c.Storage.Backend == "postgres" && c.Storage.Postgres.ConnectionString == "" {
		errs = append(errs, "storage.postgres.connection_string is required when storage.backend is postgres")
	}
	if c.Storage.Retention.Enabled {
		if c.Storage.Retention.TraceDays <= 0 {
			errs = append(errs, fmt.Sprintf("storage.retention.trace_days must be positive, got %d", c.Storage.Retention.TraceDays))
		}
		if c.Storage.Retention.SweepInterval <= 0 {
			errs = append(errs, fmt.Sprintf("storage.retention.sweep_interval must be positive, got %v", c.Storage.Retention.SweepInterval))
		}
	}

	if c.Assembler.MaxTraces <= 0 {
		errs = append(errs, fmt.Sprintf("assembler.max_traces must be positive, got %d", c.Assembler.MaxTraces))
	}

	if c.Live.Buffer <= 0 {
		errs = append(errs, fmt.Sprintf("live.buffer must be positive, got %d", c.Live.Buffer))
	}

	if c.Ingest.Rate < 0 {
		errs = append(errs, fmt.Sprintf("ingest.rate must be non-negative, got %v", c.Ingest.Rate))
	}
	if c.Ingest.Rate > 0 && c.Ingest.Burst <= 0 {
		errs = append(errs, "ingest.burst must be positive when ingest.rate is set")
	}
	if c.Ingest.MaxBatch <= 0 {
		errs = append(errs, fmt.Sprintf("ingest.max_batch must be positive, got %d", c.Ingest.MaxBatch))
	}
	if c.Ingest.RetryAttempts < 0 {
		errs = append(errs, fmt.Sprintf("ingest.retry_attempts must be non-negative, got %d", c.Ingest.RetryAttempts))
	}

	if c.Budget.Enabled {
		if c.Budget.TokenLimit <= 0 {
			errs = append(errs, fmt.Sprintf("budget.token_limit must be positive when budget is enabled, got %d", c.Budget.TokenLimit))
		}
		validPeriods := map[string]bool{"monthly": true, "daily": true}
		if !validPeriods[c.Budget.Period] {
			errs = append(errs, fmt.Sprintf("budget.period must be one of [monthly, daily], got %q", c.Budget.Period))
		}
		if c.Budget.WarningThreshold <= 0 || c.Budget.WarningThreshold > 1 {
			errs = append(errs, fmt.Sprintf("budget.warning_threshold must be in (0, 1], got %v", c.Budget.WarningThreshold))
		}
	}

	if c.Forward.Enabled {
		validTypes := map[string]bool{"otlp": true, "otlp-http": true, "console": true}
		if !validTypes[c.Forward.Type] {
			errs = append(errs, fmt.Sprintf("forward.type must be one of [otlp, otlp-http, console], got %q", c.Forward.Type))
		}
		if c.Forward.Type != "console" && c.Forward.Endpoint == "" {
			errs = append(errs, fmt.Sprintf("forward.endpoint is required for forward.type %q", c.Forward.Type))
		}
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [trace, debug, info, warn, warning, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	for i, rule := range c.Pricing {
		if rule.Provider == "" {
			errs = append(errs, fmt.Sprintf("pricing[%d]: provider is required", i))
		}
		if rule.Model == "" {
			errs = append(errs, fmt.Sprintf("pricing[%d]: model pattern is required", i))
		}
		if rule.InputPerMillion < 0 || rule.OutputPerMillion < 0 {
			errs = append(errs, fmt.Sprintf("pricing[%d] (%s/%s): rates must be non-negative", i, rule.Provider, rule.Model))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}

	return nil
}

// PriceTable builds the effective price table: configured rules first (so
// they shadow the defaults), then the built-in table.
func (c *Config) PriceTable() *classify.PriceTable {
	if len(c.Pricing) == 0 {
		return classify.DefaultPriceTable()
	}
	rules := make([]classify.PriceRule, 0, len(c.Pricing)+len(classify.DefaultPriceTable().Rules))
	rules = append(rules, c.Pricing...)
	rules = append(rules, classify.DefaultPriceTable().Rules...)
	return classify.NewPriceTable(rules)
}

// Aliases builds the effective provider alias table: built-in aliases with
// configured entries merged over them.
func (c *Config) Aliases() map[string]string {
	aliases := classify.DefaultAliases()
	for k, v := range c.ProviderAliases {
		aliases[strings.ToLower(k)] = strings.ToLower(v)
	}
	return aliases
}

// defaultDataDir returns the default data directory.
func defaultDataDir() string {
	// Use XDG_DATA_HOME if available
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "weft")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/weft-data"
	}

	return filepath.Join(homeDir, ".weft", "data")
}

// DefaultPath returns the conventional config file location:
// $XDG_CONFIG_HOME/weft/config.yaml, falling back to ~/.config/weft/config.yaml.
// The path is not created; callers decide whether the file should exist.
func DefaultPath() string {
	var base string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		base = xdg
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".", "weft.yaml")
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "weft", "config.yaml")
}
