// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/contextstore/cmd/contextstore/cli"
	"github.com/bureau-foundation/contextstore/lib/schema/contextentry"
)

func (a *app) migrateCommand() *cli.Command {
	var params struct {
		configFlag
		cli.JSONOutput
		from  string
		to    string
		cycle bool
		drain bool
	}
	return &cli.Command{
		Name:    "migrate",
		Summary: "Move entries between tiers now",
		Description: `Run a tier migration immediately instead of waiting for the scheduler.

Supported moves are hot to warm (entries read at most
migration.hot_to_warm_access_threshold times), warm to cold (entries not
read for migration.warm_to_cold_age_seconds), and cold to warm (every
cold entry). --cycle runs a complete scheduler cycle, including reaping
expired warm entries. --drain moves every hot entry to warm regardless
of access count.`,
		Usage: "contextstore migrate (--from <tier> --to <tier> | --cycle | --drain) [flags]",
		Examples: []cli.Example{
			{
				Description: "Retire idle warm entries",
				Command:     "contextstore migrate --from warm --to cold",
			},
			{
				Description: "Empty the hot tier before a Redis maintenance window",
				Command:     "contextstore migrate --drain",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
			params.configFlag.add(flagSet)
			params.AddJSONFlag(flagSet)
			flagSet.StringVar(&params.from, "from", "", "source tier")
			flagSet.StringVar(&params.to, "to", "", "destination tier")
			flagSet.BoolVar(&params.cycle, "cycle", false, "run one full migration cycle")
			flagSet.BoolVar(&params.drain, "drain", false, "move every hot entry to warm")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected arguments: %v", args)
			}
			modes := 0
			for _, set := range []bool{params.cycle, params.drain, params.from != "" || params.to != ""} {
				if set {
					modes++
				}
			}
			if modes != 1 {
				return fmt.Errorf("%w: specify exactly one of --from/--to, --cycle, or --drain", contextentry.ErrValidation)
			}

			return a.withRuntime(ctx, &params.configFlag, logger, func(rt *runtime) error {
				switch {
				case params.cycle:
					report, err := rt.manager.Scheduler().RunCycle(ctx)
					if done, jsonErr := params.EmitJSON(a.stdout, report); done {
						if err != nil {
							return err
						}
						return jsonErr
					}
					writeCycleReport(a.stdout, report)
					return err

				case params.drain:
					moved, err := rt.manager.Scheduler().DrainHot(ctx)
					return a.reportMigration(&params.JSONOutput, contextentry.TierHot, contextentry.TierWarm, moved, err)
				}

				from, err := contextentry.ParseTier(params.from)
				if err != nil {
					return err
				}
				to, err := contextentry.ParseTier(params.to)
				if err != nil {
					return err
				}
				moved, err := rt.manager.MigrateContext(ctx, from, to)
				return a.reportMigration(&params.JSONOutput, from, to, moved, err)
			})
		},
	}
}

func (a *app) reportMigration(output *cli.JSONOutput, from, to contextentry.Tier, moved int, err error) error {
	if err != nil {
		return fmt.Errorf("migrating %s to %s after moving %d entries: %w", from, to, moved, err)
	}
	result := struct {
		From  contextentry.Tier `json:"from"`
		To    contextentry.Tier `json:"to"`
		Moved int               `json:"moved"`
	}{from, to, moved}
	if done, err := output.EmitJSON(a.stdout, result); done {
		return err
	}
	fmt.Fprintf(a.stdout, "migrated %d entries from %s to %s\n", moved, from, to)
	return nil
}

func (a *app) compressCommand() *cli.Command {
	var params struct {
		configFlag
		cli.JSONOutput
		olderThan time.Duration
	}
	return &cli.Command{
		Name:    "compress",
		Summary: "Compress old persistent entries",
		Description: `Compress warm and cold entries created before the cutoff that are
stored uncompressed. Already compressed entries are skipped, so the
command is safe to repeat. The default age is
maintenance.compress_older_than_seconds.`,
		Usage: "contextstore compress [--older-than <duration>] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("compress", pflag.ContinueOnError)
			params.configFlag.add(flagSet)
			params.AddJSONFlag(flagSet)
			flagSet.DurationVar(&params.olderThan, "older-than", 0, "minimum entry age (e.g. 24h)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected arguments: %v", args)
			}
			if params.olderThan < 0 {
				return fmt.Errorf("%w: --older-than must not be negative", contextentry.ErrValidation)
			}
			return a.withRuntime(ctx, &params.configFlag, logger, func(rt *runtime) error {
				olderThan := params.olderThan
				if olderThan == 0 {
					olderThan = rt.config.Maintenance.CompressOlderThan()
				}
				count, err := rt.manager.CompressOldContext(ctx, olderThan)
				if err != nil {
					return fmt.Errorf("compressing after %d entries: %w", count, err)
				}
				if done, err := params.EmitJSON(a.stdout, map[string]int{"compressed": count}); done {
					return err
				}
				fmt.Fprintf(a.stdout, "compressed %d entries older than %s\n", count, olderThan)
				return nil
			})
		},
	}
}

func (a *app) statsCommand() *cli.Command {
	var params struct {
		configFlag
		cli.JSONOutput
	}
	return &cli.Command{
		Name:    "stats",
		Summary: "Show per-tier statistics",
		Description: `Show entry counts, stored sizes, compression ratios, average access
counts, and creation time ranges for each tier and in total. If the
hot tier is unreachable it is reported as unavailable and counted as
empty.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("stats", pflag.ContinueOnError)
			params.configFlag.add(flagSet)
			params.AddJSONFlag(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected arguments: %v", args)
			}
			return a.withRuntime(ctx, &params.configFlag, logger, func(rt *runtime) error {
				stats, err := rt.manager.GetContextStats(ctx)
				if err != nil {
					return err
				}
				if done, err := params.EmitJSON(a.stdout, stats); done {
					return err
				}
				return writeStats(a.stdout, stats)
			})
		},
	}
}
