// Package usage derives per-message credit usage from the billing feed.
package usage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pario-ai/meter/pkg/estimate"
	"github.com/pario-ai/meter/pkg/metrics"
	"github.com/pario-ai/meter/pkg/models"
)

// ReportSource looks up report overrides by id.
type ReportSource interface {
	FetchReport(ctx context.Context, reportID string) models.ReportResult
}

// Builder turns billing feed messages into usage entries.
type Builder struct {
	reports     ReportSource
	rate        float64
	concurrency int
	logger      zerolog.Logger
	metrics     *metrics.Collector
}

// Option configures a Builder.
type Option func(*Builder)

// WithConcurrency bounds how many messages are priced at once. Values below
// one mean sequential processing.
func WithConcurrency(n int) Option {
	return func(b *Builder) {
		if n < 1 {
			n = 1
		}
		b.concurrency = n
	}
}

// WithLogger sets the logger used when the context carries none.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// WithMetrics records per-message metrics on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(b *Builder) { b.metrics = c }
}

// NewBuilder creates a Builder pricing text at rate credits per 100 tokens.
func NewBuilder(reports ReportSource, rate float64, opts ...Option) *Builder {
	b := &Builder{
		reports:     reports,
		rate:        rate,
		concurrency: 1,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// slot holds the outcome for the message at the same index.
type slot struct {
	entry    models.UsageEntry
	skipped  bool
	reportID string
}

// Construct prices every message and returns the entries in input order.
// Messages whose report is not found are left out and listed in Skipped.
// Any other report failure aborts the whole computation.
func (b *Builder) Construct(ctx context.Context, messages []models.Message) (models.UsageResult, error) {
	result := models.UsageResult{Entries: []models.UsageEntry{}}
	if len(messages) == 0 {
		return result, nil
	}

	for i, m := range messages {
		if err := m.Validate(); err != nil {
			return models.UsageResult{}, fmt.Errorf("message %d: %w", i, err)
		}
	}

	slots := make([]slot, len(messages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i := range messages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := b.price(gctx, messages[i])
			if err != nil {
				return fmt.Errorf("message %s: %w", messages[i].IDString(), err)
			}
			slots[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.UsageResult{}, err
	}

	logger := b.loggerFor(ctx)
	for i, s := range slots {
		if s.skipped {
			logger.Warn().
				Str("message_id", messages[i].IDString()).
				Str("report_id", s.reportID).
				Msg("report not found, message skipped")
			b.metrics.RecordMessage("skipped", 0)
			result.Skipped = append(result.Skipped, models.SkippedMessage{
				MessageID: messages[i].ID,
				ReportID:  s.reportID,
			})
			continue
		}
		b.metrics.RecordMessage(string(s.entry.Costing), s.entry.Credits())
		result.Entries = append(result.Entries, s.entry)
	}

	logger.Debug().
		Int("messages", len(messages)).
		Int("entries", len(result.Entries)).
		Int("skipped", len(result.Skipped)).
		Msg("usage constructed")
	return result, nil
}

// price decides between report-based and text-based costing for m.
func (b *Builder) price(ctx context.Context, m models.Message) (slot, error) {
	if reportID, ok := m.ReportKey(); ok {
		res := b.reports.FetchReport(ctx, reportID)
		switch res.Outcome {
		case models.ReportNotFound:
			return slot{skipped: true, reportID: reportID}, nil
		case models.ReportFailed:
			return slot{}, fmt.Errorf("fetch report %s: %w", reportID, res.Err)
		}
		return slot{entry: models.UsageEntry{
			MessageID:   m.ID,
			Timestamp:   m.Timestamp,
			Costing:     models.CostingReport,
			ReportName:  res.Report.Name,
			CreditsUsed: res.Report.CreditCost,
		}}, nil
	}

	credits := estimate.CalculateCredits(m.Text, b.rate)
	return slot{entry: models.UsageEntry{
		MessageID:   m.ID,
		Timestamp:   m.Timestamp,
		Costing:     models.CostingText,
		CreditsUsed: &credits,
	}}, nil
}

func (b *Builder) loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &b.logger
}
