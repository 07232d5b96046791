// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// exitCoder is implemented by errors that carry their own exit code.
// Such errors have already been reported by the command.
type exitCoder interface {
	ExitCode() int
}

// Fatal reports err on stderr and exits. Errors that carry an exit
// code exit with it silently; everything else prints "error: err" and
// exits 1. Use it in main() for errors from run().
func Fatal(err error) {
	os.Exit(Report(os.Stderr, err))
}

// Report writes err to w unless it carries its own exit code, and
// returns the code the process should exit with. A nil err returns 0.
func Report(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	var coder exitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	fmt.Fprintf(w, "error: %v\n", err)
	return 1
}
