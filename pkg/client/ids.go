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

package client

import (
	"strings"

	"github.com/google/uuid"
)

// NewTraceID returns a random W3C-compatible trace ID (32 hex chars).
// The daemon accepts any non-empty ID, but hex IDs survive OTLP
// forwarding verbatim instead of being hashed into synthetic ones.
func NewTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewSpanID returns a random W3C-compatible span ID (16 hex chars).
func NewSpanID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// NewExecutionID returns a random execution identifier.
func NewExecutionID() string {
	return uuid.NewString()
}
