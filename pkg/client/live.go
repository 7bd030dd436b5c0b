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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/wefthq/weft/pkg/telemetry"
)

// maxEventSize bounds one SSE line; spans with oversized attribute
// payloads would otherwise kill the scanner.
const maxEventSize = 1024 * 1024

// WatchLive opens the daemon's live span stream. The stream stays open
// until ctx is cancelled, Close is called, or the daemon shuts down.
func (c *Client) WatchLive(ctx context.Context) (*LiveStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/v1/live", nil), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open live stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	return &LiveStream{body: resp.Body, scanner: scanner}, nil
}

// LiveStream reads server-sent span events.
type LiveStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

// Next blocks until the next span arrives. It returns io.EOF once the
// daemon ends the stream; cancelling the watch context surfaces as a
// read error.
func (s *LiveStream) Next() (*telemetry.Span, error) {
	var event, data string
	for s.scanner.Scan() {
		line := s.scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "":
			switch event {
			case "done":
				return nil, io.EOF
			case "span":
				var span telemetry.Span
				if err := json.Unmarshal([]byte(data), &span); err != nil {
					return nil, fmt.Errorf("decode span event: %w", err)
				}
				return &span, nil
			}
			// Unknown or empty frame; keep reading.
			event, data = "", ""
		}
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Close terminates the stream.
func (s *LiveStream) Close() error {
	return s.body.Close()
}
