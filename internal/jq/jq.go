// Package jq applies user-supplied jq expressions to CLI output.
//
// Commands accept a --jq flag so users can project the JSON they would
// otherwise print in full. Expressions run under a bounded timeout
// because a jq program can loop forever.
package jq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/itchyny/gojq"
)

// DefaultTimeout bounds a single projection. Command output is small,
// so anything slower is an expression stuck in a loop.
const DefaultTimeout = 1 * time.Second

// Apply runs a jq expression over input and returns the projected
// value. Input is round-tripped through JSON first, so typed API
// results can be passed in directly. An expression that emits a single
// value returns it bare; one that emits several returns them as a
// slice.
func Apply(ctx context.Context, expression string, input interface{}) (interface{}, error) {
	normalized, err := normalize(input)
	if err != nil {
		return nil, err
	}
	if expression == "" {
		return normalized, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression: %w", err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression: %w", err)
	}

	execCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	resultChan := make(chan interface{}, 1)
	errorChan := make(chan error, 1)

	go func() {
		// RunWithContext aborts the iterator when execCtx expires, so a
		// stuck expression does not leak this goroutine.
		iter := code.RunWithContext(execCtx, normalized)
		var results []interface{}
		for {
			v, ok := iter.Next()
			if !ok {
				break
			}
			if err, isErr := v.(error); isErr {
				errorChan <- fmt.Errorf("jq execution error: %w", err)
				return
			}
			results = append(results, v)
		}
		switch len(results) {
		case 0:
			resultChan <- nil
		case 1:
			resultChan <- results[0]
		default:
			resultChan <- results
		}
	}()

	select {
	case result := <-resultChan:
		return result, nil
	case err := <-errorChan:
		return nil, err
	case <-execCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("jq expression did not finish within %v", DefaultTimeout)
	}
}

// Validate checks that an expression parses and compiles without
// running it, so a bad --jq flag is rejected before any request is
// made.
func Validate(expression string) error {
	if expression == "" {
		return nil
	}
	query, err := gojq.Parse(expression)
	if err != nil {
		return fmt.Errorf("invalid jq expression: %w", err)
	}
	if _, err := gojq.Compile(query); err != nil {
		return fmt.Errorf("invalid jq expression: %w", err)
	}
	return nil
}

// normalize round-trips input through JSON so gojq sees plain maps,
// slices and primitives rather than Go structs.
func normalize(input interface{}) (interface{}, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("encode input for jq: %w", err)
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode input for jq: %w", err)
	}
	return v, nil
}
