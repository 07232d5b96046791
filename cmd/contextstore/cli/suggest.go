// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"

	"github.com/spf13/pflag"
)

// maxSuggestionDistance is the largest edit distance still suggested.
const maxSuggestionDistance = 3

// suggestCommand returns the subcommand name (never an alias) closest
// to unknown, or "" if none is within maxSuggestionDistance. Aliases
// count as candidates for matching.
func suggestCommand(unknown string, commands []*Command) string {
	primary := make(map[string]string)
	var candidates []string
	for _, command := range commands {
		for _, name := range append([]string{command.Name}, command.Aliases...) {
			primary[name] = command.Name
			candidates = append(candidates, name)
		}
	}
	if best := closest(unknown, candidates); best != "" {
		return primary[best]
	}
	return ""
}

// suggestFlag looks at the first flag in args that flagSet does not
// define and returns the closest defined long flag as "--name". A
// single-dash long flag ("-session") is treated as its double-dash
// form.
func suggestFlag(args []string, flagSet *pflag.FlagSet) string {
	var defined []string
	flagSet.VisitAll(func(flag *pflag.Flag) {
		defined = append(defined, flag.Name)
	})

	for _, arg := range args {
		if arg == "--" {
			return ""
		}
		name, ok := flagName(arg)
		if !ok || flagSet.Lookup(name) != nil {
			continue
		}
		if best := closest(name, defined); best != "" {
			return "--" + best
		}
		return ""
	}
	return ""
}

// flagName extracts the name from "--name", "--name=value", or a
// multi-letter "-name". Single-letter shorthands are not names.
func flagName(arg string) (string, bool) {
	var name string
	switch {
	case strings.HasPrefix(arg, "--"):
		name = arg[2:]
	case strings.HasPrefix(arg, "-") && len(arg) > 2:
		name = arg[1:]
	default:
		return "", false
	}
	name, _, _ = strings.Cut(name, "=")
	return name, name != ""
}

func closest(unknown string, candidates []string) string {
	best, bestDistance := "", maxSuggestionDistance+1
	for _, candidate := range candidates {
		if distance := levenshtein(unknown, candidate); distance < bestDistance {
			best, bestDistance = candidate, distance
		}
	}
	return best
}

// levenshtein is the edit distance between a and b, computed over
// bytes with two rolling rows.
func levenshtein(a, b string) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(a); i++ {
		diagonal := row[0]
		row[0] = i
		for j := 1; j <= len(b); j++ {
			substitution := diagonal
			if a[i-1] != b[j-1] {
				substitution++
			}
			diagonal = row[j]
			row[j] = min(row[j]+1, row[j-1]+1, substitution)
		}
	}
	return row[len(b)]
}
