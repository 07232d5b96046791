// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// Exit codes with a meaning beyond plain failure.
const (
	// ExitNotFound reports that a named entry does not exist in any
	// tier. Scripts use it to tell "absent" from "store unreachable".
	ExitNotFound = 3
)

// ExitError ends the process with Code and no further message; the
// command has already written whatever the user should see.
type ExitError struct {
	Code int
}

// Exit returns an ExitError for code.
func Exit(code int) error {
	return &ExitError{Code: code}
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode satisfies the interface process.Report looks for.
func (e *ExitError) ExitCode() int {
	return e.Code
}
