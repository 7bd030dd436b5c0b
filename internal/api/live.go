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

package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/wefthq/weft/internal/log"
)

// handleLive handles GET /v1/live: every ingested span streamed as a
// server-sent `span` event. A `done` event marks the end of the stream
// when the daemon shuts down.
func (rt *Router) handleLive(w http.ResponseWriter, r *http.Request) {
	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	id, ch, cancel := rt.engine.SubscribeLive()
	defer cancel()

	rt.logger.Debug("live subscriber connected", slog.String(log.SubscriberKey, id))
	defer rt.logger.Debug("live subscriber disconnected", slog.String(log.SubscriberKey, id))

	// Flush the headers so the client sees the stream open before the
	// first span arrives.
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case span, ok := <-ch:
			if !ok {
				// Broadcaster closed: the daemon is shutting down.
				fmt.Fprintf(w, "event: done\ndata: {\"reason\":\"shutdown\"}\n\n")
				flusher.Flush()
				return
			}
			data, err := json.Marshal(span)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: span\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
