package upstream

import (
	"context"
	"net/url"

	"github.com/pario-ai/meter/pkg/models"
)

// FetchReportRaw fetches the report for reportID. It returns an error
// wrapping ErrNotFound when the report does not exist, or *UpstreamError.
func (c *Client) FetchReportRaw(ctx context.Context, reportID string) (models.Report, error) {
	var report models.Report
	if err := c.getJSON(ctx, "reports", "/reports/"+url.PathEscape(reportID), &report); err != nil {
		return models.Report{}, err
	}
	return report, nil
}

// FetchReport fetches the report for reportID, classifying a missing
// report as NotFound rather than a failure. Some report ids are known to
// have no report upstream.
func (c *Client) FetchReport(ctx context.Context, reportID string) models.ReportResult {
	report, err := c.FetchReportRaw(ctx, reportID)
	switch {
	case err == nil:
		return models.Found(report)
	case IsNotFound(err):
		return models.NotFound()
	default:
		return models.Failed(err)
	}
}
