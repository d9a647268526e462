package mcp

import (
	"fmt"
	"strings"

	"github.com/pario-ai/meter/pkg/models"
)

// formatUsage formats a usage result as a text table.
func formatUsage(result models.UsageResult) string {
	if len(result.Entries) == 0 && len(result.Skipped) == 0 {
		return "No usage data found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %-26s %-32s %10s\n", "Message ID", "Timestamp", "Report", "Credits")
	b.WriteString(strings.Repeat("-", 83) + "\n")
	for _, e := range result.Entries {
		report := "-"
		if e.ReportName != nil {
			report = *e.ReportName
		}
		if len(report) > 32 {
			report = report[:29] + "..."
		}
		fmt.Fprintf(&b, "%-12s %-26s %-32s %10.2f\n",
			models.RawString(e.MessageID), models.RawString(e.Timestamp), report, e.Credits())
	}
	b.WriteString(strings.Repeat("-", 83) + "\n")
	fmt.Fprintf(&b, "%72s %10.2f\n", "Total:", result.TotalCredits())
	if len(result.Skipped) > 0 {
		fmt.Fprintf(&b, "\nSkipped (report not found): %d\n", len(result.Skipped))
	}
	return b.String()
}

// formatCacheStats formats report cache statistics.
func formatCacheStats(stats models.CacheStats) string {
	total := stats.Hits + stats.Misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	return fmt.Sprintf("Entries:  %d\nHits:     %d\nMisses:   %d\nHit Rate: %.1f%%",
		stats.Entries, stats.Hits, stats.Misses, hitRate)
}
