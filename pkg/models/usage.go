package models

import "encoding/json"

// Costing identifies how a usage entry was priced.
type Costing string

const (
	CostingReport Costing = "report"
	CostingText   Costing = "text"
)

// UsageEntry is the computed usage for one message.
type UsageEntry struct {
	MessageID   json.RawMessage
	Timestamp   json.RawMessage
	Costing     Costing
	ReportName  *string
	CreditsUsed *float64
}

type reportEntryJSON struct {
	MessageID   json.RawMessage `json:"message_id"`
	Timestamp   json.RawMessage `json:"timestamp"`
	ReportName  *string         `json:"report_name"`
	CreditsUsed *float64        `json:"credits_used"`
}

type textEntryJSON struct {
	MessageID   json.RawMessage `json:"message_id"`
	Timestamp   json.RawMessage `json:"timestamp"`
	CreditsUsed *float64        `json:"credits_used"`
}

// MarshalJSON emits report_name (possibly null) only for report-costed entries.
func (e UsageEntry) MarshalJSON() ([]byte, error) {
	if e.Costing == CostingReport {
		return json.Marshal(reportEntryJSON{
			MessageID:   e.MessageID,
			Timestamp:   e.Timestamp,
			ReportName:  e.ReportName,
			CreditsUsed: e.CreditsUsed,
		})
	}
	return json.Marshal(textEntryJSON{
		MessageID:   e.MessageID,
		Timestamp:   e.Timestamp,
		CreditsUsed: e.CreditsUsed,
	})
}

// Credits returns the credits used, treating a missing upstream cost as zero.
func (e UsageEntry) Credits() float64 {
	if e.CreditsUsed == nil {
		return 0
	}
	return *e.CreditsUsed
}

// SkippedMessage records a message dropped because its report was not found.
type SkippedMessage struct {
	MessageID json.RawMessage `json:"message_id"`
	ReportID  string          `json:"report_id"`
}

// UsageResult is the output of a usage computation.
type UsageResult struct {
	Entries []UsageEntry
	Skipped []SkippedMessage
}

// TotalCredits sums credits across all entries.
func (r UsageResult) TotalCredits() float64 {
	var total float64
	for _, e := range r.Entries {
		total += e.Credits()
	}
	return total
}
