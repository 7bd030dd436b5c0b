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
	"net/http"
	"time"

	"github.com/wefthq/weft/internal/api/httputil"
	wefterrors "github.com/wefthq/weft/pkg/errors"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	httputil.WriteError(w, status, message)
}

// writeEngineError maps an engine error onto its HTTP status.
func writeEngineError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

// statusFor maps engine error types onto HTTP statuses: validation
// failures are the client's fault, missing resources are 404, and
// retryable store trouble asks the producer to come back later.
func statusFor(err error) int {
	switch {
	case wefterrors.IsValidation(err):
		return http.StatusBadRequest
	case wefterrors.IsNotFound(err):
		return http.StatusNotFound
	case wefterrors.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// parseTimeParam parses an RFC 3339 query parameter. An empty value
// returns the zero time with no error.
func parseTimeParam(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, &wefterrors.ValidationError{
			Field:      name,
			Message:    "must be an RFC 3339 timestamp",
			Suggestion: "e.g. 2025-06-15T00:00:00Z",
		}
	}
	return t, nil
}
