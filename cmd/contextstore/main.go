// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// contextstore manages tiered conversational context: a TTL-bound hot
// tier in Redis and warm and cold tiers in SQLite, with access-driven
// promotion and scheduled migration between them.
package main

import (
	"context"
	"os"

	"github.com/bureau-foundation/contextstore/cmd/contextstore/commands"
	"github.com/bureau-foundation/contextstore/lib/process"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	return commands.Root().Execute(context.Background(), os.Args[1:])
}
