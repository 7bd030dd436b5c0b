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
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	oldEnv := saveEnv()
	defer restoreEnv(oldEnv)
	clearConfigEnv()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	writeConfigFile(t, configPath, "live:\n  buffer: 64\n")

	reloads := make(chan *Config, 8)
	w, err := Watch(configPath, nil, func(c *Config) {
		reloads <- c
	})
	if err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	writeConfigFile(t, configPath, "live:\n  buffer: 256\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-reloads:
			if cfg.Live.Buffer == 256 {
				return
			}
			// A partial write can surface defaults; keep waiting.
		case <-deadline:
			t.Fatalf("timed out waiting for config reload")
		}
	}
}

func TestWatchKeepsPreviousConfigOnBadFile(t *testing.T) {
	oldEnv := saveEnv()
	defer restoreEnv(oldEnv)
	clearConfigEnv()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	writeConfigFile(t, configPath, "live:\n  buffer: 64\n")

	reloads := make(chan *Config, 8)
	w, err := Watch(configPath, nil, func(c *Config) {
		reloads <- c
	})
	if err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	// A file that fails to parse must not produce a callback; the watcher
	// keeps running and picks up the next good write.
	writeConfigFile(t, configPath, ":::\tnot yaml")
	writeConfigFile(t, configPath, "listen:\n  addr: 127.0.0.1:4242\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-reloads:
			if err := cfg.Validate(); err != nil {
				t.Fatalf("watcher delivered an invalid config: %v", err)
			}
			if cfg.Listen.Addr == "127.0.0.1:4242" {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for recovery after bad config write")
		}
	}
}

func TestWatchIgnoresOtherFiles(t *testing.T) {
	oldEnv := saveEnv()
	defer restoreEnv(oldEnv)
	clearConfigEnv()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	writeConfigFile(t, configPath, "live:\n  buffer: 64\n")

	reloads := make(chan *Config, 8)
	w, err := Watch(configPath, nil, func(c *Config) {
		reloads <- c
	})
	if err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	writeConfigFile(t, filepath.Join(tmpDir, "other.yaml"), "live:\n  buffer: 999\n")

	select {
	case <-reloads:
		t.Fatalf("unexpected reload for unrelated file")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatchStop(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	writeConfigFile(t, configPath, "live:\n  buffer: 64\n")

	w, err := Watch(configPath, nil, func(c *Config) {})
	if err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}

	if err := w.Stop(); err != nil {
		t.Errorf("unexpected error from Stop: %v", err)
	}
}
