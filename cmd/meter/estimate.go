package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pario-ai/meter/pkg/estimate"
)

func newEstimateCmd() *cobra.Command {
	var rate float64

	cmd := &cobra.Command{
		Use:   "estimate TEXT...",
		Short: "Estimate tokens and credits for a message text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("rate") {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				rate = cfg.Usage.Rate
			}
			if rate <= 0 {
				return fmt.Errorf("--rate must be positive, got %v", rate)
			}
			text := strings.Join(args, " ")
			fmt.Fprintf(cmd.OutOrStdout(), "Tokens:  %.2f\nCredits: %.2f\n",
				estimate.EstimateTokens(text), estimate.CalculateCredits(text, rate))
			return nil
		},
	}

	cmd.Flags().Float64Var(&rate, "rate", estimate.BaseModelRate, "credits per 100 tokens (defaults to usage.rate from the config)")
	return cmd
}
