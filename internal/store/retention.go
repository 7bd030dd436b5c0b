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

package store

import (
	"context"
	"log/slog"
	"time"
)

// RetentionManager periodically deletes traces older than the retention
// window.
type RetentionManager struct {
	store         Store
	maxAge        time.Duration
	sweepInterval time.Duration
	logger        *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewRetentionManager creates a retention manager.
//
// maxAge is how long traces are kept. sweepInterval is how often cleanup
// runs; if zero, it defaults to 1 hour.
func NewRetentionManager(s Store, maxAge, sweepInterval time.Duration, logger *slog.Logger) *RetentionManager {
	if sweepInterval <= 0 {
		sweepInterval = time.Hour
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &RetentionManager{
		store:         s,
		maxAge:        maxAge,
		sweepInterval: sweepInterval,
		logger:        logger,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start begins the background cleanup loop.
func (rm *RetentionManager) Start() {
	go rm.run()
}

// Stop halts the background cleanup loop and waits for it to finish.
func (rm *RetentionManager) Stop() {
	close(rm.stopCh)
	<-rm.doneCh
}

func (rm *RetentionManager) run() {
	defer close(rm.doneCh)

	// Run an initial cleanup on startup
	rm.cleanup()

	ticker := time.NewTicker(rm.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rm.stopCh:
			return
		case <-ticker.C:
			rm.cleanup()
		}
	}
}

func (rm *RetentionManager) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-rm.maxAge)
	deleted, err := rm.store.DeleteTracesOlderThan(ctx, cutoff)
	if err != nil {
		rm.logger.Error("trace retention cleanup failed", "error", err)
		return
	}

	if deleted > 0 {
		rm.logger.Info("trace retention cleanup completed",
			"deleted", deleted,
			"max_age", rm.maxAge.String(),
		)
	}
}

// CleanupNow runs a cleanup immediately and returns the number of traces
// deleted.
func (rm *RetentionManager) CleanupNow(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-rm.maxAge)
	return rm.store.DeleteTracesOlderThan(ctx, cutoff)
}
