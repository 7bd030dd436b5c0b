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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/wefthq/weft/pkg/telemetry"
)

// batchItemError reports why one span of a batch was rejected.
type batchItemError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// batchResponse is the body returned for a batch ingest.
type batchResponse struct {
	Accepted int              `json:"accepted"`
	Rejected int              `json:"rejected"`
	Errors   []batchItemError `json:"errors,omitempty"`
}

// handleIngest handles POST /v1/spans. The body is either a single span
// object or an array of spans; a batch tolerates bad items and reports
// them per index.
func (rt *Router) handleIngest(w http.ResponseWriter, r *http.Request) {
	if rt.limiter != nil && !rt.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "ingest rate limit exceeded")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read request body: %v", err))
		return
	}

	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) == 0 {
		writeError(w, http.StatusBadRequest, "request body required")
		return
	}

	if trimmed[0] == '[' {
		rt.ingestBatch(w, r, trimmed)
		return
	}
	rt.ingestSingle(w, r, trimmed)
}

func (rt *Router) ingestSingle(w http.ResponseWriter, r *http.Request, body []byte) {
	var span telemetry.Span
	if err := json.Unmarshal(body, &span); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	merged, err := rt.engine.Ingest(r.Context(), &span)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, merged)
}

func (rt *Router) ingestBatch(w http.ResponseWriter, r *http.Request, body []byte) {
	var spans []*telemetry.Span
	if err := json.Unmarshal(body, &spans); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if rt.config.MaxBatch > 0 && len(spans) > rt.config.MaxBatch {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("batch of %d spans exceeds limit of %d", len(spans), rt.config.MaxBatch))
		return
	}

	result, err := rt.engine.IngestBatch(r.Context(), spans)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	resp := batchResponse{
		Accepted: result.Accepted,
		Rejected: len(result.Rejected),
	}
	for _, item := range result.Rejected {
		resp.Errors = append(resp.Errors, batchItemError{
			Index: item.Index,
			Error: item.Err.Error(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
