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

package budget

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wefthq/weft/internal/commands/shared"
	"github.com/wefthq/weft/pkg/client"
)

func fakeDaemon(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/budget" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	t.Setenv("WEFT_ADDR", srv.URL)
	return srv
}

func TestBudgetDisabled(t *testing.T) {
	fakeDaemon(t, `{"enabled":false,"status":"ok","used":0,"remaining":0,"percentage":0}`)
	shared.SetOutputForTest("", "")

	cmd := NewBudgetCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("budget failed: %v", err)
	}
	if !strings.Contains(buf.String(), "not enabled") {
		t.Errorf("expected disabled message, got: %s", buf.String())
	}
}

func TestBudgetStatusLine(t *testing.T) {
	fakeDaemon(t, `{"enabled":true,"status":"warning","used":85000,"limit":100000,"remaining":15000,"percentage":85,"period":"monthly","period_start":"2025-08-01T00:00:00Z"}`)
	shared.SetOutputForTest("", "")

	cmd := NewBudgetCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("budget failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"warning", "85,000", "100,000", "85.0%", "Remaining:", "monthly"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestBudgetJSON(t *testing.T) {
	fakeDaemon(t, `{"enabled":true,"status":"ok","used":1000,"limit":100000,"remaining":99000,"percentage":1}`)
	shared.SetOutputForTest("json", "")
	defer shared.SetOutputForTest("", "")

	cmd := NewBudgetCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("budget failed: %v", err)
	}

	var report client.BudgetReport
	if err := json.Unmarshal(buf.Bytes(), &report); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if !report.Enabled || report.Status != "ok" || report.Used != 1000 {
		t.Errorf("report = %+v", report)
	}
}
