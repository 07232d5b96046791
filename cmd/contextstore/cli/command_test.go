// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func quiet(command *Command) *Command {
	command.Logger = slog.New(slog.DiscardHandler)
	command.HelpOutput = io.Discard
	return command
}

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := quiet(&Command{
		Name: "contextstore",
		Subcommands: []*Command{
			{
				Name: "version",
				Run: func(_ context.Context, args []string, _ *slog.Logger) error {
					called = "version"
					return nil
				},
			},
			{
				Name: "stats",
				Run: func(_ context.Context, args []string, _ *slog.Logger) error {
					called = "stats"
					return nil
				},
			},
		},
	})

	if err := root.Execute(context.Background(), []string{"stats"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "stats" {
		t.Errorf("dispatched to %q, want %q", called, "stats")
	}
}

func TestCommand_Execute_NestedSubcommands(t *testing.T) {
	var called string
	var receivedArgs []string

	root := quiet(&Command{
		Name: "contextstore",
		Subcommands: []*Command{
			{
				Name: "entry",
				Subcommands: []*Command{
					{
						Name: "get",
						Run: func(_ context.Context, args []string, _ *slog.Logger) error {
							called = "entry get"
							receivedArgs = args
							return nil
						},
					},
				},
			},
		},
	})

	if err := root.Execute(context.Background(), []string{"entry", "get", "ctx-1"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "entry get" {
		t.Errorf("dispatched to %q, want %q", called, "entry get")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "ctx-1" {
		t.Errorf("args = %v, want [ctx-1]", receivedArgs)
	}
}

func TestCommand_Execute_InheritsLogger(t *testing.T) {
	var buffer bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buffer, nil))

	root := &Command{
		Name:   "contextstore",
		Logger: logger,
		Subcommands: []*Command{
			{
				Name: "serve",
				Run: func(_ context.Context, _ []string, logger *slog.Logger) error {
					logger.Info("serving")
					return nil
				},
			},
		},
	}

	if err := root.Execute(context.Background(), []string{"serve"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !strings.Contains(buffer.String(), "serving") {
		t.Errorf("root logger not passed to subcommand; log output: %q", buffer.String())
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var tier string
	var target string

	command := quiet(&Command{
		Name: "migrate",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
			flagSet.StringVar(&tier, "from", "hot", "source tier")
			return flagSet
		},
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if len(args) > 0 {
				target = args[0]
			}
			return nil
		},
	})

	if err := command.Execute(context.Background(), []string{"--from", "warm", "cold"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if tier != "warm" {
		t.Errorf("tier = %q, want %q", tier, "warm")
	}
	if target != "cold" {
		t.Errorf("target = %q, want %q", target, "cold")
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	command := quiet(&Command{
		Name: "get",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("get", pflag.ContinueOnError)
			flagSet.Bool("diagnostic", false, "print CBOR diagnostic notation")
			flagSet.String("config", "", "config file")
			return flagSet
		},
		Run: func(context.Context, []string, *slog.Logger) error { return nil },
	})

	err := command.Execute(context.Background(), []string{"--diagnotsic"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "did you mean --diagnostic") {
		t.Errorf("error = %q, want suggestion for '--diagnostic'", errStr)
	}
	if !strings.Contains(errStr, "diagnotsic") {
		t.Errorf("error = %q, should mention the bad flag", errStr)
	}
	if !strings.Contains(errStr, "--help") {
		t.Errorf("error = %q, should point to --help", errStr)
	}
}

func TestCommand_Execute_UnknownFlagNoSuggestion(t *testing.T) {
	command := quiet(&Command{
		Name: "get",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("get", pflag.ContinueOnError)
			flagSet.Bool("diagnostic", false, "print CBOR diagnostic notation")
			return flagSet
		},
		Run: func(context.Context, []string, *slog.Logger) error { return nil },
	})

	err := command.Execute(context.Background(), []string{"--zzzzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not suggest for distant flag", err.Error())
	}
	if !strings.Contains(err.Error(), "--help") {
		t.Errorf("error = %q, should point to --help", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandSuggestion(t *testing.T) {
	root := quiet(&Command{
		Name: "contextstore",
		Subcommands: []*Command{
			{Name: "serve"},
			{Name: "migrate"},
			{Name: "version"},
		},
	})

	err := root.Execute(context.Background(), []string{"migrat"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if !strings.Contains(err.Error(), "did you mean \"migrate\"") {
		t.Errorf("error = %q, want suggestion for 'migrate'", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandNoSuggestion(t *testing.T) {
	root := quiet(&Command{
		Name: "contextstore",
		Subcommands: []*Command{
			{Name: "serve"},
			{Name: "migrate"},
		},
	})

	err := root.Execute(context.Background(), []string{"zzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not contain suggestion for distant input", err.Error())
	}
}

func TestCommand_Execute_HelpFlag(t *testing.T) {
	for _, helpArg := range []string{"-h", "--help", "help"} {
		t.Run(helpArg, func(t *testing.T) {
			var buffer bytes.Buffer
			root := &Command{
				Name:       "contextstore",
				Summary:    "Tiered context storage",
				HelpOutput: &buffer,
				Subcommands: []*Command{
					{Name: "serve", Summary: "Run the migration scheduler"},
				},
			}

			if err := root.Execute(context.Background(), []string{helpArg}); err != nil {
				t.Errorf("Execute(%q) error: %v", helpArg, err)
			}
			if !strings.Contains(buffer.String(), "Run the migration scheduler") {
				t.Errorf("help output missing subcommand summary:\n%s", buffer.String())
			}
		})
	}
}

func TestCommand_Execute_NoArgsShowsHelp(t *testing.T) {
	root := quiet(&Command{
		Name: "contextstore",
		Subcommands: []*Command{
			{Name: "serve", Summary: "Run the migration scheduler"},
		},
	})

	err := root.Execute(context.Background(), []string{})
	if err == nil {
		t.Fatal("Execute() = nil, want error for missing subcommand")
	}
	if !errors.Is(err, ErrSubcommandRequired) {
		t.Errorf("error = %v, want ErrSubcommandRequired", err)
	}
}

func TestCommand_PrintHelp(t *testing.T) {
	command := &Command{
		Name:        "contextstore",
		Description: "Tiered storage for conversational context.",
		Subcommands: []*Command{
			{Name: "get", Summary: "Fetch an entry by id"},
			{Name: "migrate", Summary: "Move entries between tiers"},
			{Name: "version", Summary: "Print version information"},
		},
		Examples: []Example{
			{
				Description: "Fetch an entry as JSON",
				Command:     "contextstore get 7f1c --json",
			},
			{
				Description: "Move idle warm entries to cold storage",
				Command:     "contextstore migrate --from warm --to cold",
			},
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"Tiered storage for conversational context.",
		"Usage:",
		"contextstore <command> [flags]",
		"Commands:",
		"get",
		"Fetch an entry by id",
		"migrate",
		"Move entries between tiers",
		"Examples:",
		"contextstore get 7f1c --json",
		"contextstore migrate --from warm",
		"Run 'contextstore <command> --help'",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_PrintHelp_WithFlags(t *testing.T) {
	command := &Command{
		Name:    "get",
		Summary: "Fetch an entry by id",
		Usage:   "contextstore get <id> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("get", pflag.ContinueOnError)
			flagSet.String("config", "", "config file")
			flagSet.Bool("json", false, "output as JSON")
			return flagSet
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"contextstore get <id> [flags]",
		"Flags:",
		"--config",
		"--json",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_FullName(t *testing.T) {
	root := &Command{Name: "contextstore"}
	entry := &Command{Name: "entry", parent: root}
	get := &Command{Name: "get", parent: entry}

	if got := root.fullName(); got != "contextstore" {
		t.Errorf("root.fullName() = %q, want %q", got, "contextstore")
	}
	if got := entry.fullName(); got != "contextstore entry" {
		t.Errorf("entry.fullName() = %q, want %q", got, "contextstore entry")
	}
	if got := get.fullName(); got != "contextstore entry get" {
		t.Errorf("get.fullName() = %q, want %q", got, "contextstore entry get")
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"serve", "serve", 0},
		{"migrat", "migrate", 1},
		{"stast", "stats", 2},
		{"kitten", "sitting", 3},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestEmitJSON(t *testing.T) {
	var buffer bytes.Buffer

	var disabled JSONOutput
	done, err := disabled.EmitJSON(&buffer, []string{"a"})
	if done || err != nil || buffer.Len() != 0 {
		t.Fatalf("EmitJSON without --json = (%v, %v), wrote %q", done, err, buffer.String())
	}

	enabled := JSONOutput{OutputJSON: true}
	var empty []string
	done, err = enabled.EmitJSON(&buffer, empty)
	if !done || err != nil {
		t.Fatalf("EmitJSON with --json = (%v, %v)", done, err)
	}
	if strings.TrimSpace(buffer.String()) != "[]" {
		t.Errorf("nil slice encoded as %q, want []", buffer.String())
	}
}

func TestCommand_Execute_Alias(t *testing.T) {
	var deleted []string
	root := quiet(&Command{
		Name: "contextstore",
		Subcommands: []*Command{{
			Name:    "delete",
			Aliases: []string{"rm"},
			Run: func(_ context.Context, args []string, _ *slog.Logger) error {
				deleted = args
				return nil
			},
		}},
	})

	if err := root.Execute(context.Background(), []string{"rm", "a", "b"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if strings.Join(deleted, ",") != "a,b" {
		t.Errorf("delete received %v, want [a b]", deleted)
	}
}

func TestCommand_PrintHelp_Aliases(t *testing.T) {
	var buffer bytes.Buffer
	(&Command{Name: "delete", Aliases: []string{"rm"}}).PrintHelp(&buffer)
	if !strings.Contains(buffer.String(), "Aliases:\n  rm") {
		t.Errorf("help missing aliases:\n%s", buffer.String())
	}
}

func TestLevelFromEnvironment(t *testing.T) {
	tests := []struct {
		value string
		want  slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"chatty", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Setenv(LogLevelVariable, tt.value)
		if got := LevelFromEnvironment(); got != tt.want {
			t.Errorf("LevelFromEnvironment(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestNewLoggerWritesJSONWhenNotTerminal(t *testing.T) {
	var buffer bytes.Buffer
	NewLogger(&buffer, slog.LevelWarn).Info("dropped")
	NewLogger(&buffer, slog.LevelWarn).Warn("kept", "entry_id", "e1")
	output := buffer.String()
	if strings.Contains(output, "dropped") {
		t.Errorf("info record written at warn level: %s", output)
	}
	if !strings.Contains(output, `"entry_id":"e1"`) {
		t.Errorf("output = %q, want a JSON record", output)
	}
}

func TestExit(t *testing.T) {
	err := Exit(ExitNotFound)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != ExitNotFound {
		t.Fatalf("Exit(%d) = %v", ExitNotFound, err)
	}
}

func TestSuggestFlag(t *testing.T) {
	flagSet := pflag.NewFlagSet("put", pflag.ContinueOnError)
	flagSet.String("session", "", "")
	flagSet.String("user", "", "")

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"--sesion", "s1"}, "--session"},
		{[]string{"--usr=u1"}, "--user"},
		{[]string{"-session", "s1"}, "--session"},
		{[]string{"--user", "u1", "--compression"}, ""},
		{[]string{"--", "--sesion"}, ""},
	}
	for _, tt := range tests {
		if got := suggestFlag(tt.args, flagSet); got != tt.want {
			t.Errorf("suggestFlag(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestSuggestCommandMapsAliasToName(t *testing.T) {
	commands := []*Command{{Name: "delete", Aliases: []string{"rm"}}, {Name: "stats"}}
	if got := suggestCommand("rmm", commands); got != "delete" {
		t.Errorf("suggestCommand(rmm) = %q, want delete", got)
	}
}
