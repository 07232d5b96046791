// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/contextstore/lib/schema/contextentry"
	"github.com/bureau-foundation/contextstore/lib/tierstore"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	value := float64(n)
	for _, suffix := range []string{"KiB", "MiB", "GiB"} {
		value /= unit
		if value < unit {
			return fmt.Sprintf("%.1f %s", value, suffix)
		}
	}
	return fmt.Sprintf("%.1f TiB", value/unit)
}

// writeEntry prints one entry as aligned fields followed by its
// content rendered as YAML.
func writeEntry(w io.Writer, entry *contextentry.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "id:\t%s\n", entry.ID)
	fmt.Fprintf(tw, "session:\t%s\n", entry.SessionID)
	fmt.Fprintf(tw, "user:\t%s\n", entry.UserID)
	fmt.Fprintf(tw, "tier:\t%s\n", entry.Tier)
	fmt.Fprintf(tw, "created:\t%s\n", formatTime(entry.CreatedAt))
	fmt.Fprintf(tw, "last accessed:\t%s\n", formatTime(entry.LastAccessedAt))
	fmt.Fprintf(tw, "access count:\t%d\n", entry.AccessCount)
	size := formatBytes(entry.SizeBytes)
	if entry.Compressed {
		size += fmt.Sprintf(" (compressed from %s)", formatBytes(entry.RawSizeBytes))
	}
	fmt.Fprintf(tw, "size:\t%s\n", size)
	if entry.ExpiresAt != nil {
		fmt.Fprintf(tw, "expires:\t%s\n", formatTime(*entry.ExpiresAt))
	}
	if len(entry.Metadata) > 0 {
		var pairs []string
		for _, key := range slices.Sorted(maps.Keys(entry.Metadata)) {
			pairs = append(pairs, key+"="+entry.Metadata[key])
		}
		fmt.Fprintf(tw, "metadata:\t%s\n", strings.Join(pairs, ", "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	rendered, err := yaml.Marshal(entry.Content)
	if err != nil {
		return fmt.Errorf("rendering content: %w", err)
	}
	fmt.Fprintln(w, "content:")
	for _, line := range strings.Split(strings.TrimRight(string(rendered), "\n"), "\n") {
		fmt.Fprintf(w, "  %s\n", line)
	}
	return nil
}

// writeEntryTable prints a listing of entries, one per row.
func writeEntryTable(w io.Writer, entries []*contextentry.Entry) error {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no entries")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSESSION\tTIER\tACCESSES\tLAST ACCESSED\tSIZE")
	for _, entry := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			entry.ID,
			entry.SessionID,
			entry.Tier,
			entry.AccessCount,
			formatTime(entry.LastAccessedAt),
			formatBytes(entry.SizeBytes),
		)
	}
	return tw.Flush()
}

// writeStats prints per-tier statistics and the total.
func writeStats(w io.Writer, stats tierstore.Stats) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIER\tENTRIES\tSIZE\tCOMPRESSION\tAVG ACCESSES\tOLDEST\tNEWEST")
	row := func(name string, tierStats contextentry.TierStats) {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%.2fx\t%.1f\t%s\t%s\n",
			name,
			tierStats.Count,
			formatBytes(tierStats.SizeBytes),
			tierStats.CompressionRatio(),
			tierStats.AverageAccessCount(),
			formatTime(tierStats.Oldest),
			formatTime(tierStats.Newest),
		)
	}
	for _, tierStats := range stats.Tiers {
		name := string(tierStats.Tier)
		if tierStats.Tier == contextentry.TierHot && stats.HotUnavailable {
			name += " (unavailable)"
		}
		row(name, tierStats)
	}
	row("total", stats.Total)
	return tw.Flush()
}

func writeCycleReport(w io.Writer, report tierstore.CycleReport) {
	fmt.Fprintf(w, "hot to warm: scanned %d, migrated %d, failed %d\n",
		report.Scanned, report.Migrated, report.Failed)
	fmt.Fprintf(w, "warm to cold: retiered %d\n", report.Retiered)
	fmt.Fprintf(w, "expired warm entries reaped: %d\n", report.Reaped)
	fmt.Fprintf(w, "duration: %s\n", report.Duration.Round(time.Millisecond))
}
