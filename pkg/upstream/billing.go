package upstream

import (
	"context"
	"errors"
	"net/http"

	"github.com/pario-ai/meter/pkg/models"
)

const billingPath = "/messages/current-period"

// FetchCurrentBilling returns the current billing period feed. Any failure,
// including a 404, is returned as *UpstreamError.
func (c *Client) FetchCurrentBilling(ctx context.Context) (models.BillingPeriod, error) {
	var period models.BillingPeriod
	if err := c.getJSON(ctx, "billing", billingPath, &period); err != nil {
		if IsNotFound(err) {
			return models.BillingPeriod{}, &UpstreamError{Op: "billing", StatusCode: http.StatusNotFound, Err: errors.New("billing feed not found")}
		}
		return models.BillingPeriod{}, err
	}
	if period.Messages == nil {
		period.Messages = []models.Message{}
	}
	return period, nil
}
