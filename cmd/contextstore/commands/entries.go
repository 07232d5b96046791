// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/contextstore/cmd/contextstore/cli"
	"github.com/bureau-foundation/contextstore/lib/codec"
	"github.com/bureau-foundation/contextstore/lib/schema/contextentry"
	"github.com/bureau-foundation/contextstore/lib/tierstore"
)

func (a *app) putCommand() *cli.Command {
	var params struct {
		configFlag
		contentFlags
		cli.JSONOutput
		session  string
		user     string
		tier     string
		metadata []string
	}
	return &cli.Command{
		Name:    "put",
		Summary: "Store a new context entry",
		Description: `Store a new context entry and print its id.

Entries go to the hot tier unless --tier says otherwise. An entry too
large for the hot tier is placed in warm. With an in-process hot tier
(no redis.address configured) the default is warm.`,
		Usage: "contextstore put --session <id> --user <id> (--content <value> | --file <path>) [flags]",
		Examples: []cli.Example{
			{
				Description: "Store a structured turn",
				Command:     `contextstore put --session s-42 --user u-7 --content '{"role": "user", "text": "hello"}'`,
			},
			{
				Description: "Archive a transcript straight to cold storage",
				Command:     "contextstore put --session s-42 --user u-7 --file transcript.txt --raw --tier cold",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("put", pflag.ContinueOnError)
			params.configFlag.add(flagSet)
			params.contentFlags.add(flagSet)
			params.AddJSONFlag(flagSet)
			flagSet.StringVar(&params.session, "session", "", "session id (required)")
			flagSet.StringVar(&params.user, "user", "", "user id (required)")
			flagSet.StringVar(&params.tier, "tier", "", "tier to store in: hot, warm, or cold")
			flagSet.StringArrayVar(&params.metadata, "metadata", nil, "metadata key=value (repeatable)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected arguments: %v", args)
			}
			content, err := params.contentFlags.read(a.stdin)
			if err != nil {
				return err
			}
			metadata, err := parseMetadata(params.metadata)
			if err != nil {
				return err
			}

			return a.withRuntime(ctx, &params.configFlag, logger, func(rt *runtime) error {
				options := []tierstore.StoreOption{tierstore.WithMetadata(metadata)}
				switch {
				case params.tier != "":
					tier, err := contextentry.ParseTier(params.tier)
					if err != nil {
						return err
					}
					options = append(options, tierstore.WithTier(tier))
				case rt.inProcessHot:
					options = append(options, tierstore.WithTier(contextentry.TierWarm))
				}

				id, err := rt.manager.StoreContext(ctx, params.session, params.user, content, options...)
				if err != nil {
					return err
				}
				if done, err := params.EmitJSON(a.stdout, map[string]string{"id": id}); done {
					return err
				}
				fmt.Fprintln(a.stdout, id)
				return nil
			})
		},
	}
}

func (a *app) getCommand() *cli.Command {
	var params struct {
		configFlag
		cli.JSONOutput
		diagnostic bool
	}
	return &cli.Command{
		Name:    "get",
		Summary: "Fetch an entry by id",
		Description: `Fetch an entry by id from whichever tier holds it.

A read counts as an access: it may promote a warm or cold entry to the
hot tier. Exits with code 3 if no tier holds the entry.`,
		Usage: "contextstore get <id> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("get", pflag.ContinueOnError)
			params.configFlag.add(flagSet)
			params.AddJSONFlag(flagSet)
			flagSet.BoolVar(&params.diagnostic, "diagnostic", false,
				"print the stored content in CBOR diagnostic notation")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one entry id, got %d arguments", len(args))
			}
			id := args[0]

			return a.withRuntime(ctx, &params.configFlag, logger, func(rt *runtime) error {
				entry, err := rt.manager.GetContext(ctx, id)
				if errors.Is(err, contextentry.ErrNotFound) {
					fmt.Fprintf(a.stderr, "entry %s not found\n", id)
					return cli.Exit(cli.ExitNotFound)
				}
				if err != nil {
					return err
				}

				if params.diagnostic {
					encoded, err := codec.EncodeContent(entry.Content)
					if err != nil {
						return err
					}
					notation, err := codec.Diagnose(encoded)
					if err != nil {
						return fmt.Errorf("diagnosing content of %s: %w", id, err)
					}
					fmt.Fprintln(a.stdout, notation)
					return nil
				}
				if done, err := params.EmitJSON(a.stdout, entry); done {
					return err
				}
				return writeEntry(a.stdout, entry)
			})
		},
	}
}

func (a *app) updateCommand() *cli.Command {
	var params struct {
		configFlag
		contentFlags
		cli.JSONOutput
	}
	return &cli.Command{
		Name:    "update",
		Summary: "Replace the content of an entry",
		Description: `Replace the content of an entry in whichever tier holds it.

A hot entry gets a fresh TTL; one that no longer fits the hot size
limit moves to warm. Exits with code 3 if no tier holds the entry.`,
		Usage: "contextstore update <id> (--content <value> | --file <path>) [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("update", pflag.ContinueOnError)
			params.configFlag.add(flagSet)
			params.contentFlags.add(flagSet)
			params.AddJSONFlag(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one entry id, got %d arguments", len(args))
			}
			id := args[0]
			content, err := params.contentFlags.read(a.stdin)
			if err != nil {
				return err
			}

			return a.withRuntime(ctx, &params.configFlag, logger, func(rt *runtime) error {
				entry, err := rt.manager.UpdateContext(ctx, id, content)
				if errors.Is(err, contextentry.ErrNotFound) {
					fmt.Fprintf(a.stderr, "entry %s not found\n", id)
					return cli.Exit(cli.ExitNotFound)
				}
				if err != nil {
					return err
				}
				if done, err := params.EmitJSON(a.stdout, entry); done {
					return err
				}
				fmt.Fprintf(a.stdout, "updated %s (%s tier)\n", entry.ID, entry.Tier)
				return nil
			})
		},
	}
}

func (a *app) deleteCommand() *cli.Command {
	var params struct {
		configFlag
	}
	return &cli.Command{
		Name:    "delete",
		Aliases: []string{"rm"},
		Summary: "Delete entries from every tier",
		Description: `Delete entries from every tier that holds them. Deleting an id
that does not exist succeeds.`,
		Usage: "contextstore delete <id>... [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("delete", pflag.ContinueOnError)
			params.configFlag.add(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) == 0 {
				return fmt.Errorf("expected at least one entry id")
			}
			return a.withRuntime(ctx, &params.configFlag, logger, func(rt *runtime) error {
				for _, id := range args {
					if err := rt.manager.DeleteContext(ctx, id); err != nil {
						return fmt.Errorf("deleting %s: %w", id, err)
					}
				}
				fmt.Fprintf(a.stdout, "deleted %d entries\n", len(args))
				return nil
			})
		},
	}
}

// listCommand builds "session" and "user", which differ only in the
// manager query they run.
func (a *app) listCommand(name, summary, noun string, query func(*tierstore.Manager, context.Context, string, int) ([]*contextentry.Entry, error)) *cli.Command {
	var params struct {
		configFlag
		cli.JSONOutput
		limit int
	}
	return &cli.Command{
		Name:    name,
		Summary: summary,
		Description: fmt.Sprintf(`%s.

Entries from every tier are merged, most recently accessed first. An
entry present in two tiers during a migration is listed once.`, summary),
		Usage: fmt.Sprintf("contextstore %s <%s-id> [flags]", name, noun),
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
			params.configFlag.add(flagSet)
			params.AddJSONFlag(flagSet)
			flagSet.IntVar(&params.limit, "limit", 50, "maximum entries to list (0 for no limit)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one %s id, got %d arguments", noun, len(args))
			}
			if params.limit < 0 {
				return fmt.Errorf("%w: --limit must not be negative", contextentry.ErrValidation)
			}
			return a.withRuntime(ctx, &params.configFlag, logger, func(rt *runtime) error {
				entries, err := query(rt.manager, ctx, args[0], params.limit)
				if err != nil {
					return err
				}
				if done, err := params.EmitJSON(a.stdout, entries); done {
					return err
				}
				return writeEntryTable(a.stdout, entries)
			})
		},
	}
}

func (a *app) sessionCommand() *cli.Command {
	return a.listCommand("session", "List the entries of a session", "session",
		(*tierstore.Manager).GetSessionContext)
}

func (a *app) userCommand() *cli.Command {
	return a.listCommand("user", "List the persisted entries of a user", "user",
		(*tierstore.Manager).GetUserContext)
}
