package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pario-ai/meter/pkg/metrics"
	"github.com/pario-ai/meter/pkg/models"
)

// ErrTimeout is returned when a computation exceeds its overall deadline.
var ErrTimeout = errors.New("usage computation timed out")

// BillingSource fetches the current billing period feed.
type BillingSource interface {
	FetchCurrentBilling(ctx context.Context) (models.BillingPeriod, error)
}

// Service computes usage for the current billing period.
type Service struct {
	billing  BillingSource
	builder  *Builder
	deadline time.Duration
	logger   zerolog.Logger
	metrics  *metrics.Collector
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// Deadline bounds a whole ComputeUsage call. Zero means no deadline.
	Deadline time.Duration
	Logger   zerolog.Logger
	Metrics  *metrics.Collector
}

// NewService creates a Service fetching from billing and pricing with builder.
func NewService(billing BillingSource, builder *Builder, cfg ServiceConfig) *Service {
	return &Service{
		billing:  billing,
		builder:  builder,
		deadline: cfg.Deadline,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// ComputeUsage fetches the billing feed and prices every message in it.
// Upstream failures are returned unchanged; there is no partial result.
func (s *Service) ComputeUsage(ctx context.Context) (models.UsageResult, error) {
	logger := s.logger.With().Str("run_id", uuid.NewString()).Logger()
	ctx = logger.WithContext(ctx)
	start := time.Now()

	if s.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, s.deadline, ErrTimeout)
		defer cancel()
	}

	period, err := s.billing.FetchCurrentBilling(ctx)
	if err != nil {
		return s.fail(ctx, &logger, fmt.Errorf("fetch billing: %w", err))
	}

	result, err := s.builder.Construct(ctx, period.Messages)
	if err != nil {
		return s.fail(ctx, &logger, fmt.Errorf("construct usage: %w", err))
	}

	s.metrics.RecordRun("ok")
	logger.Info().
		Int("messages", len(period.Messages)).
		Int("entries", len(result.Entries)).
		Int("skipped", len(result.Skipped)).
		Float64("credits", result.TotalCredits()).
		Dur("duration", time.Since(start)).
		Msg("usage computed")
	return result, nil
}

func (s *Service) fail(ctx context.Context, logger *zerolog.Logger, err error) (models.UsageResult, error) {
	status := "error"
	if errors.Is(context.Cause(ctx), ErrTimeout) {
		status = "timeout"
		err = fmt.Errorf("%w after %s: %w", ErrTimeout, s.deadline, err)
	}
	s.metrics.RecordRun(status)
	logger.Error().Err(err).Msg("usage computation failed")
	return models.UsageResult{}, err
}
