// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/contextstore/lib/schema/contextentry"
)

// contentFlags selects where a command reads entry content from.
type contentFlags struct {
	inline string
	file   string
	raw    bool
}

func (c *contentFlags) add(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.inline, "content", "", "entry content (YAML or JSON)")
	flagSet.StringVar(&c.file, "file", "", "read entry content from a file (- for stdin)")
	flagSet.BoolVar(&c.raw, "raw", false, "store the content as a plain string instead of parsing it")
}

// read returns the content named by the flags. Exactly one of
// --content and --file must be set. Content is parsed as YAML, which
// accepts JSON, so structured payloads keep their maps, lists, and
// integer types.
func (c *contentFlags) read(stdin io.Reader) (any, error) {
	var data []byte
	switch {
	case c.inline != "" && c.file != "":
		return nil, fmt.Errorf("%w: --content and --file are mutually exclusive", contextentry.ErrValidation)
	case c.inline != "":
		data = []byte(c.inline)
	case c.file == "-":
		read, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading content from stdin: %w", err)
		}
		data = read
	case c.file != "":
		read, err := os.ReadFile(c.file)
		if err != nil {
			return nil, fmt.Errorf("reading content: %w", err)
		}
		data = read
	default:
		return nil, fmt.Errorf("%w: one of --content or --file is required", contextentry.ErrValidation)
	}

	if strings.TrimSpace(string(data)) == "" {
		return nil, fmt.Errorf("%w: content is empty", contextentry.ErrValidation)
	}
	if c.raw {
		return string(data), nil
	}
	return parseContent(data)
}

func parseContent(data []byte) (any, error) {
	var content any
	if err := yaml.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("%w: parsing content (use --raw for plain text): %w", contextentry.ErrValidation, err)
	}
	return content, nil
}

// parseMetadata turns repeated key=value flags into a map.
func parseMetadata(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	metadata := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: metadata %q is not key=value", contextentry.ErrValidation, pair)
		}
		metadata[key] = value
	}
	return metadata, nil
}
