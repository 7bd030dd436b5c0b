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
	"context"
	"fmt"
	"testing"
	"time"
)

func TestUploaderFlush(t *testing.T) {
	c, eng := newTestDaemon(t)

	u := NewUploader(c, UploaderOptions{FlushInterval: time.Hour})
	defer u.Close(context.Background())

	u.Record(testSpan("t1", "s1"))
	u.Record(testSpan("t1", "s2"))
	if err := u.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	tr, err := eng.GetTrace(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetTrace: %v", err)
	}
	if len(tr.Spans) != 2 {
		t.Errorf("got %d spans after flush, want 2", len(tr.Spans))
	}
}

func TestUploaderFlushesFullBatches(t *testing.T) {
	c, eng := newTestDaemon(t)

	u := NewUploader(c, UploaderOptions{BatchSize: 10, FlushInterval: time.Hour})
	defer u.Close(context.Background())

	for i := 0; i < 25; i++ {
		u.Record(testSpan("t1", fmt.Sprintf("s%02d", i)))
	}

	// Full batches go out on their own; anything below the threshold
	// waits for the next interval or an explicit flush.
	waitFor(t, func() bool {
		tr, err := eng.GetTrace(context.Background(), "t1")
		return err == nil && len(tr.Spans) >= 20
	})

	if err := u.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	tr, err := eng.GetTrace(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetTrace: %v", err)
	}
	if len(tr.Spans) != 25 {
		t.Errorf("got %d spans, want all 25", len(tr.Spans))
	}
	if u.Dropped() != 0 {
		t.Errorf("dropped = %d, want 0", u.Dropped())
	}
}

func TestUploaderCloseFlushesRemainder(t *testing.T) {
	c, eng := newTestDaemon(t)

	u := NewUploader(c, UploaderOptions{FlushInterval: time.Hour})
	u.Record(testSpan("t1", "s1"))
	if err := u.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	tr, err := eng.GetTrace(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetTrace: %v", err)
	}
	if len(tr.Spans) != 1 {
		t.Errorf("got %d spans after close, want 1", len(tr.Spans))
	}

	// Close is idempotent.
	if err := u.Close(context.Background()); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestUploaderDropsOnDeadDaemon(t *testing.T) {
	c, err := New(Options{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	u := NewUploader(c, UploaderOptions{FlushInterval: time.Hour})
	defer u.Close(context.Background())

	u.Record(testSpan("t1", "s1"))
	u.Record(testSpan("t1", "s2"))
	if err := u.Flush(context.Background()); err == nil {
		t.Error("Flush succeeded against a dead daemon")
	}
	if u.Dropped() != 2 {
		t.Errorf("dropped = %d, want 2", u.Dropped())
	}

	// Recording after a failed flush still never blocks.
	u.Record(testSpan("t1", "s3"))
}

func TestUploaderRecordNilIsNoop(t *testing.T) {
	c, _ := newTestDaemon(t)

	u := NewUploader(c, UploaderOptions{FlushInterval: time.Hour})
	defer u.Close(context.Background())

	u.Record(nil)
	if err := u.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}
