package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pario-ai/meter/pkg/models"
	"github.com/pario-ai/meter/pkg/server"
)

func newUsageCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Compute credit usage for the current billing period",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			svc, _, cleanup, err := newUsageService(cfg, newLogger(cfg.Log), nil)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := svc.ComputeUsage(context.Background())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(server.UsageResponse{
					Usage:   result.Entries,
					Status:  http.StatusOK,
					Skipped: len(result.Skipped),
				})
			}
			return writeUsageTable(os.Stdout, result)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the same JSON body as GET /usage")
	return cmd
}

func writeUsageTable(out io.Writer, result models.UsageResult) error {
	if len(result.Entries) == 0 && len(result.Skipped) == 0 {
		fmt.Fprintln(out, "No usage data found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MESSAGE ID\tTIMESTAMP\tREPORT\tCREDITS")
	for _, e := range result.Entries {
		report := ""
		if e.ReportName != nil {
			report = *e.ReportName
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\n",
			models.RawString(e.MessageID), models.RawString(e.Timestamp), report, e.Credits())
	}
	fmt.Fprintf(w, "\t\tTOTAL\t%.2f\n", result.TotalCredits())
	if err := w.Flush(); err != nil {
		return err
	}

	if len(result.Skipped) > 0 {
		fmt.Fprintf(out, "\n%d message(s) skipped, report not found:\n", len(result.Skipped))
		for _, s := range result.Skipped {
			fmt.Fprintf(out, "  message %s (report %s)\n", models.RawString(s.MessageID), s.ReportID)
		}
	}
	return nil
}
