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
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/wefthq/weft/pkg/client"
	wefterrors "github.com/wefthq/weft/pkg/errors"
)

// Exit codes for the weft CLI
const (
	ExitSuccess     = 0
	ExitFailure     = 1
	ExitUsage       = 2  // bad flags, filter, or jq expression
	ExitNotFound    = 3  // trace or execution does not exist
	ExitUnavailable = 69 // daemon unreachable (EX_UNAVAILABLE from sysexits.h)
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewUsageError creates an error for invalid flags or expressions
func NewUsageError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitUsage,
		Message: msg,
		Cause:   cause,
	}
}

// NewUnavailableError creates an error for an unreachable daemon
func NewUnavailableError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitUnavailable,
		Message: msg,
		Cause:   cause,
	}
}

// WrapClientError classifies a failed daemon call into an exit code: API
// errors keep their HTTP meaning (404 is "no such trace", 400 is a bad
// expression), anything else is a daemon that could not be reached.
func WrapClientError(msg string, err error) *ExitError {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		code := ExitFailure
		switch {
		case apiErr.NotFound():
			code = ExitNotFound
		case apiErr.StatusCode == http.StatusBadRequest:
			code = ExitUsage
		}
		return &ExitError{Code: code, Message: msg, Cause: err}
	}
	return NewUnavailableError(msg, err)
}

// HandleExitError checks if an error is an ExitError and exits with the appropriate code
func HandleExitError(err error) {
	if err == nil {
		return
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		msg := exitErr.Error()
		if len(msg) > 0 {
			fmt.Fprintln(os.Stderr, "Error:", msg)
		}

		// Check if the error (or any in the chain) implements UserVisibleError
		printUserVisibleSuggestion(err)

		os.Exit(exitErr.Code)
	}

	// Default to generic failure
	fmt.Fprintln(os.Stderr, "Error:", err.Error())

	printUserVisibleSuggestion(err)

	os.Exit(ExitFailure)
}

// printUserVisibleSuggestion checks if an error implements UserVisibleError
// and prints the suggestion if available.
func printUserVisibleSuggestion(err error) {
	// Walk the error chain to find a UserVisibleError
	for err != nil {
		if userErr, ok := err.(wefterrors.UserVisibleError); ok {
			if userErr.IsUserVisible() {
				suggestion := userErr.UserSuggestion()
				if suggestion != "" {
					fmt.Fprintf(os.Stderr, "\nSuggestion: %s\n", suggestion)
				}
			}
			return
		}

		// Continue unwrapping
		err = errors.Unwrap(err)
	}
}
