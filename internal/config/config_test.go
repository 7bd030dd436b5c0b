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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wefthq/weft/internal/classify"
)

func priceRule(provider, model string, in, out float64) classify.PriceRule {
	return classify.PriceRule{
		Provider:         provider,
		Model:            model,
		InputPerMillion:  in,
		OutputPerMillion: out,
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Listen.Addr != "127.0.0.1:8787" {
		t.Errorf("expected listen addr 127.0.0.1:8787, got %q", cfg.Listen.Addr)
	}
	if cfg.Listen.ShutdownTimeout != Duration(10*time.Second) {
		t.Errorf("expected shutdown timeout 10s, got %v", cfg.Listen.ShutdownTimeout)
	}

	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("expected backend 'sqlite', got %q", cfg.Storage.Backend)
	}
	if cfg.Storage.Retention.TraceDays != 7 {
		t.Errorf("expected trace_days 7, got %d", cfg.Storage.Retention.TraceDays)
	}

	if cfg.Assembler.MaxTraces != 2048 {
		t.Errorf("expected max_traces 2048, got %d", cfg.Assembler.MaxTraces)
	}
	if cfg.Live.Buffer != 64 {
		t.Errorf("expected live buffer 64, got %d", cfg.Live.Buffer)
	}

	if cfg.Ingest.RetryAttempts != 3 {
		t.Errorf("expected retry attempts 3, got %d", cfg.Ingest.RetryAttempts)
	}
	if cfg.Ingest.RetryBackoffBase != Duration(50*time.Millisecond) {
		t.Errorf("expected retry backoff base 50ms, got %v", cfg.Ingest.RetryBackoffBase)
	}

	if cfg.Budget.Enabled {
		t.Errorf("expected budget disabled by default")
	}
	if cfg.Budget.Period != "monthly" {
		t.Errorf("expected budget period 'monthly', got %q", cfg.Budget.Period)
	}
	if cfg.Budget.WarningThreshold != 0.8 {
		t.Errorf("expected warning threshold 0.8, got %v", cfg.Budget.WarningThreshold)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("expected log level 'info', got %q", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("expected log format 'json', got %q", cfg.Log.Format)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
		errText string
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "empty listen addr",
			modify: func(c *Config) {
				c.Listen.Addr = ""
			},
			wantErr: true,
			errText: "listen.addr must not be empty",
		},
		{
			name: "invalid storage backend",
			modify: func(c *Config) {
				c.Storage.Backend = "cassandra"
			},
			wantErr: true,
			errText: "storage.backend must be one of [sqlite, postgres, memory]",
		},
		{
			name: "postgres without connection string",
			modify: func(c *Config) {
				c.Storage.Backend = "postgres"
			},
			wantErr: true,
			errText: "storage.postgres.connection_string is required",
		},
		{
			name: "retention without trace days",
			modify: func(c *Config) {
				c.Storage.Retention.Enabled = true
				c.Storage.Retention.TraceDays = -1
			},
			wantErr: true,
			errText: "storage.retention.trace_days must be positive",
		},
		{
			name: "non-positive max traces",
			modify: func(c *Config) {
				c.Assembler.MaxTraces = 0
			},
			wantErr: true,
			errText: "assembler.max_traces must be positive",
		},
		{
			name: "rate without burst",
			modify: func(c *Config) {
				c.Ingest.Rate = 100
				c.Ingest.Burst = 0
			},
			wantErr: true,
			errText: "ingest.burst must be positive when ingest.rate is set",
		},
		{
			name: "budget enabled without limit",
			modify: func(c *Config) {
				c.Budget.Enabled = true
				c.Budget.TokenLimit = 0
			},
			wantErr: true,
			errText: "budget.token_limit must be positive",
		},
		{
			name: "invalid budget period",
			modify: func(c *Config) {
				c.Budget.Enabled = true
				c.Budget.TokenLimit = 1000
				c.Budget.Period = "weekly"
			},
			wantErr: true,
			errText: "budget.period must be one of [monthly, daily]",
		},
		{
			name: "forward otlp without endpoint",
			modify: func(c *Config) {
				c.Forward.Enabled = true
				c.Forward.Type = "otlp"
				c.Forward.Endpoint = ""
			},
			wantErr: true,
			errText: "forward.endpoint is required",
		},
		{
			name: "forward console needs no endpoint",
			modify: func(c *Config) {
				c.Forward.Enabled = true
				c.Forward.Type = "console"
			},
			wantErr: false,
		},
		{
			name: "invalid forward type",
			modify: func(c *Config) {
				c.Forward.Enabled = true
				c.Forward.Type = "kafka"
			},
			wantErr: true,
			errText: "forward.type must be one of [otlp, otlp-http, console]",
		},
		{
			name: "invalid log level",
			modify: func(c *Config) {
				c.Log.Level = "loud"
			},
			wantErr: true,
			errText: "log.level must be one of",
		},
		{
			name: "invalid log format",
			modify: func(c *Config) {
				c.Log.Format = "xml"
			},
			wantErr: true,
			errText: "log.format must be one of [json, text]",
		},
		{
			name: "pricing rule without provider",
			modify: func(c *Config) {
				c.Pricing = append(c.Pricing, priceRule("", "gpt-4*", 1, 2))
			},
			wantErr: true,
			errText: "pricing[0]: provider is required",
		},
		{
			name: "pricing rule with negative rate",
			modify: func(c *Config) {
				c.Pricing = append(c.Pricing, priceRule("openai", "gpt-4*", -1, 2))
			},
			wantErr: true,
			errText: "rates must be non-negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()

			if tt.wantErr && err == nil {
				t.Errorf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
			if tt.wantErr && err != nil && !strings.Contains(err.Error(), tt.errText) {
				t.Errorf("expected error to contain %q, got %q", tt.errText, err.Error())
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	oldEnv := saveEnv()
	defer restoreEnv(oldEnv)
	clearConfigEnv()

	envVars := map[string]string{
		"WEFT_LISTEN_ADDR":        "0.0.0.0:9999",
		"WEFT_STORAGE_BACKEND":    "memory",
		"WEFT_MAX_TRACES":         "512",
		"WEFT_INGEST_RATE":        "250",
		"WEFT_INGEST_BURST":       "50",
		"WEFT_BUDGET_TOKEN_LIMIT": "1000000",
		"WEFT_LOG_LEVEL":          "debug",
		"LOG_FORMAT":              "text",
	}

	for k, v := range envVars {
		os.Setenv(k, v)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Listen.Addr != "0.0.0.0:9999" {
		t.Errorf("expected listen addr from env, got %q", cfg.Listen.Addr)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("expected backend 'memory', got %q", cfg.Storage.Backend)
	}
	if cfg.Assembler.MaxTraces != 512 {
		t.Errorf("expected max_traces 512, got %d", cfg.Assembler.MaxTraces)
	}
	if cfg.Ingest.Rate != 250 {
		t.Errorf("expected ingest rate 250, got %v", cfg.Ingest.Rate)
	}
	if cfg.Ingest.Burst != 50 {
		t.Errorf("expected ingest burst 50, got %d", cfg.Ingest.Burst)
	}
	if !cfg.Budget.Enabled || cfg.Budget.TokenLimit != 1000000 {
		t.Errorf("expected budget enabled with limit 1000000, got enabled=%v limit=%d", cfg.Budget.Enabled, cfg.Budget.TokenLimit)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level 'debug', got %q", cfg.Log.Level)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("expected log format 'text', got %q", cfg.Log.Format)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
listen:
  addr: 127.0.0.1:4000
  shutdown_timeout: 15s

storage:
  backend: sqlite
  path: /tmp/weft-test.db
  retention:
    enabled: true
    trace_days: 30

assembler:
  max_traces: 4096

live:
  buffer: 128

pricing:
  - provider: openai
    model: "gpt-4*"
    input_per_million: 25.0
    output_per_million: 50.0

provider_aliases:
  my_gateway: openai
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	oldEnv := saveEnv()
	defer restoreEnv(oldEnv)
	clearConfigEnv()

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Listen.Addr != "127.0.0.1:4000" {
		t.Errorf("expected listen addr 127.0.0.1:4000, got %q", cfg.Listen.Addr)
	}
	if cfg.Listen.ShutdownTimeout != Duration(15*time.Second) {
		t.Errorf("expected shutdown timeout 15s, got %v", cfg.Listen.ShutdownTimeout)
	}
	if cfg.Storage.Path != "/tmp/weft-test.db" {
		t.Errorf("expected db path /tmp/weft-test.db, got %q", cfg.Storage.Path)
	}
	if cfg.Storage.Retention.TraceDays != 30 {
		t.Errorf("expected trace_days 30, got %d", cfg.Storage.Retention.TraceDays)
	}
	if cfg.Assembler.MaxTraces != 4096 {
		t.Errorf("expected max_traces 4096, got %d", cfg.Assembler.MaxTraces)
	}
	if cfg.Live.Buffer != 128 {
		t.Errorf("expected live buffer 128, got %d", cfg.Live.Buffer)
	}
	if len(cfg.Pricing) != 1 || cfg.Pricing[0].Provider != "openai" {
		t.Fatalf("expected one openai pricing rule, got %+v", cfg.Pricing)
	}
	if cfg.Pricing[0].InputPerMillion != 25.0 {
		t.Errorf("expected input rate 25.0, got %v", cfg.Pricing[0].InputPerMillion)
	}
	if cfg.ProviderAliases["my_gateway"] != "openai" {
		t.Errorf("expected alias my_gateway -> openai, got %q", cfg.ProviderAliases["my_gateway"])
	}

	// Unset sections keep defaults
	if cfg.Ingest.MaxBatch != 1000 {
		t.Errorf("expected default max_batch 1000, got %d", cfg.Ingest.MaxBatch)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected default log level 'info', got %q", cfg.Log.Level)
	}
}

func TestDurationYAML(t *testing.T) {
	var out struct {
		D Duration `yaml:"d"`
	}

	if err := yaml.Unmarshal([]byte("d: 90s"), &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.D != Duration(90*time.Second) {
		t.Errorf("expected 90s, got %v", out.D)
	}

	// Bare integers are nanoseconds.
	if err := yaml.Unmarshal([]byte("d: 1000000000"), &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.D != Duration(time.Second) {
		t.Errorf("expected 1s, got %v", out.D)
	}

	if err := yaml.Unmarshal([]byte("d: soon"), &out); err == nil {
		t.Error("expected error for unparseable duration")
	}

	raw, err := yaml.Marshal(struct {
		D Duration `yaml:"d"`
	}{D: Duration(15 * time.Second)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(raw), "15s") {
		t.Errorf("expected marshaled form 15s, got %q", raw)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
listen:
  shutdown_timeout: whenever
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	oldEnv := saveEnv()
	defer restoreEnv(oldEnv)
	clearConfigEnv()

	if _, err := Load(configPath); err == nil {
		t.Fatal("expected error for bad duration value")
	}
}

func TestLoadFromFileWithEnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
listen:
  addr: 127.0.0.1:4000
log:
  level: info
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	oldEnv := saveEnv()
	defer restoreEnv(oldEnv)
	clearConfigEnv()

	os.Setenv("WEFT_LOG_LEVEL", "debug")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Env overrides file
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level 'debug' from env, got %q", cfg.Log.Level)
	}
	// Addr keeps the file value
	if cfg.Listen.Addr != "127.0.0.1:4000" {
		t.Errorf("expected listen addr from file, got %q", cfg.Listen.Addr)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Errorf("expected error for nonexistent file, got nil")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "bad.yaml")

	if err := os.WriteFile(configPath, []byte("invalid: yaml: content:"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Errorf("expected error for invalid YAML, got nil")
	}
}

func TestLoadValidationFailure(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid-config.yaml")

	yamlContent := `
storage:
  backend: cassandra
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	oldEnv := saveEnv()
	defer restoreEnv(oldEnv)
	clearConfigEnv()

	_, err := Load(configPath)
	if err == nil {
		t.Errorf("expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "validation failed") {
		t.Errorf("expected validation error message, got %q", err.Error())
	}
}

func TestPriceTableShadowsDefaults(t *testing.T) {
	cfg := Default()
	cfg.Pricing = append(cfg.Pricing, priceRule("openai", "gpt-4o*", 99.0, 99.0))

	table := cfg.PriceTable()
	cost, ok := table.Estimate("openai", "gpt-4o-2024-08-06", i64(1_000_000), i64(0), nil)
	if !ok {
		t.Fatalf("expected a price match")
	}
	if cost != 99.0 {
		t.Errorf("expected configured rule to shadow the default, got cost %v", cost)
	}

	// Models not covered by config rules fall through to the defaults
	_, ok = table.Estimate("anthropic", "claude-3-5-sonnet-20241022", i64(1000), nil, nil)
	if !ok {
		t.Errorf("expected default rules to remain reachable")
	}
}

func TestAliasesMergeOverDefaults(t *testing.T) {
	cfg := Default()
	cfg.ProviderAliases = map[string]string{
		"My_Gateway":   "OpenAI",
		"azure_openai": "azure", // shadow a built-in
	}

	aliases := cfg.Aliases()
	if aliases["my_gateway"] != "openai" {
		t.Errorf("expected lowercased merge, got %q", aliases["my_gateway"])
	}
	if aliases["azure_openai"] != "azure" {
		t.Errorf("expected config to shadow built-in alias, got %q", aliases["azure_openai"])
	}
}

// Helper functions for environment management
func saveEnv() map[string]string {
	env := make(map[string]string)
	for _, e := range os.Environ() {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) == 2 {
			env[parts[0]] = parts[1]
		}
	}
	return env
}

func restoreEnv(env map[string]string) {
	os.Clearenv()
	for k, v := range env {
		os.Setenv(k, v)
	}
}

func clearConfigEnv() {
	envVars := []string{
		"WEFT_LISTEN_ADDR", "WEFT_SHUTDOWN_TIMEOUT",
		"WEFT_STORAGE_BACKEND", "WEFT_DB_PATH", "WEFT_DATA_DIR", "WEFT_POSTGRES_URL",
		"WEFT_MAX_TRACES", "WEFT_LIVE_BUFFER",
		"WEFT_INGEST_RATE", "WEFT_INGEST_BURST",
		"WEFT_BUDGET_TOKEN_LIMIT", "WEFT_BUDGET_PERIOD",
		"WEFT_FORWARD_ENDPOINT", "WEFT_FORWARD_TYPE",
		"WEFT_MCP_ENABLED",
		"WEFT_LOG_LEVEL", "LOG_LEVEL", "LOG_FORMAT", "LOG_SOURCE",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}

func i64(v int64) *int64 { return &v }
