package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pario-ai/meter/pkg/estimate"
)

type estimateArgs struct {
	Text string   `json:"text"`
	Rate *float64 `json:"rate,omitempty"`
}

type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"meter_usage":       handleUsage,
	"meter_estimate":    handleEstimate,
	"meter_cache_stats": handleCacheStats,
}

var allTools = []ToolDefinition{
	{
		Name:        "meter_usage",
		Description: "Compute per-message credit usage for the current billing period.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "meter_estimate",
		Description: "Estimate tokens and credits for a message text.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"text"},
			"properties": map[string]any{
				"text": map[string]any{
					"type":        "string",
					"description": "The message text to price",
				},
				"rate": map[string]any{
					"type":        "number",
					"description": "Credits per 100 tokens (optional, defaults to the configured rate)",
				},
			},
		},
	},
	{
		Name:        "meter_cache_stats",
		Description: "Show report cache statistics (entries, hits, misses, hit rate).",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
}

func handleUsage(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	result, err := s.usage.ComputeUsage(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("compute usage: %v", err))
	}
	return textResult(formatUsage(result))
}

func handleEstimate(_ context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args estimateArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return errorResult("invalid arguments")
		}
	}
	rate := s.rate
	if args.Rate != nil {
		rate = *args.Rate
	}
	if rate <= 0 {
		return errorResult("rate must be positive")
	}
	return textResult(fmt.Sprintf("Tokens:  %.2f\nCredits: %.2f",
		estimate.EstimateTokens(args.Text), estimate.CalculateCredits(args.Text, rate)))
}

func handleCacheStats(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.cache == nil {
		return textResult("Report cache is disabled.")
	}
	stats, err := s.cache.Stats()
	if err != nil {
		return errorResult(fmt.Sprintf("cache stats: %v", err))
	}
	return textResult(formatCacheStats(stats))
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}, IsError: true}
}
