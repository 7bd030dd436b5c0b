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

package shared

import (
	"os"
	"strings"

	"github.com/wefthq/weft/pkg/client"
)

// Addr resolves the daemon address: the --addr flag wins, then the
// WEFT_ADDR environment variable, then the client default.
func Addr() string {
	if addrFlag != "" {
		return normalizeAddr(addrFlag)
	}
	if env := os.Getenv("WEFT_ADDR"); env != "" {
		return normalizeAddr(env)
	}
	return client.DefaultBaseURL
}

// normalizeAddr accepts bare host:port values so --addr localhost:8787
// works without spelling out the scheme.
func normalizeAddr(addr string) string {
	if strings.Contains(addr, "://") {
		return addr
	}
	return "http://" + addr
}

// NewClient builds the SDK client every command talks to the daemon
// through.
func NewClient() (*client.Client, error) {
	c, err := client.New(client.Options{
		BaseURL:   Addr(),
		UserAgent: "weft-cli/" + version,
	})
	if err != nil {
		return nil, NewUsageError("invalid daemon address", err)
	}
	return c, nil
}
