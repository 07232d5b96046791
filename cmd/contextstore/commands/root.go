// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/contextstore/cmd/contextstore/cli"
	"github.com/bureau-foundation/contextstore/lib/config"
	"github.com/bureau-foundation/contextstore/lib/version"
)

// app carries the I/O shared by every command.
type app struct {
	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader

	// serveReady, if set, is called once serve is accepting metrics
	// connections and its background jobs are running.
	serveReady func(serveHandle)
}

// Root builds and returns the complete contextstore command tree.
func Root() *cli.Command {
	return (&app{stdout: os.Stdout, stderr: os.Stderr, stdin: os.Stdin}).root()
}

func (a *app) root() *cli.Command {
	return &cli.Command{
		Name: "contextstore",
		Description: `contextstore: tiered storage for conversational context.

Entries live in a hot tier (Redis, with a TTL), a warm tier, and a cold
tier (both SQLite). Frequently read entries are promoted to hot; idle
ones migrate down to warm and then cold.`,
		Subcommands: []*cli.Command{
			a.serveCommand(),
			a.putCommand(),
			a.getCommand(),
			a.updateCommand(),
			a.deleteCommand(),
			a.sessionCommand(),
			a.userCommand(),
			a.migrateCommand(),
			a.compressCommand(),
			a.statsCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, _ []string, _ *slog.Logger) error {
					fmt.Fprintf(a.stdout, "contextstore %s\n", version.Full())
					return nil
				},
			},
		},
	}
}

// configFlag is embedded in every command's parameters.
type configFlag struct {
	path string
}

func (c *configFlag) add(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.path, "config", "",
		"config file (default: $"+config.EnvironmentVariable+")")
}

// load reads and validates the configuration.
func (c *configFlag) load() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if c.path != "" {
		cfg, err = config.LoadFile(c.path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

// withRuntime loads the configuration, opens a runtime for the
// duration of fn, and closes it afterwards.
func (a *app) withRuntime(ctx context.Context, flags *configFlag, logger *slog.Logger, fn func(*runtime) error) (err error) {
	cfg, err := flags.load()
	if err != nil {
		return err
	}
	rt, err := openRuntime(ctx, cfg, logger, runtimeOptions{OneShot: true})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(rt)
}
