package models

// Report is the override record served for a message's report_id.
type Report struct {
	Name       *string  `json:"name"`
	CreditCost *float64 `json:"credit_cost"`
}

// ReportOutcome classifies a report lookup.
type ReportOutcome int

const (
	ReportFound ReportOutcome = iota
	ReportNotFound
	ReportFailed
)

func (o ReportOutcome) String() string {
	switch o {
	case ReportFound:
		return "found"
	case ReportNotFound:
		return "not_found"
	default:
		return "error"
	}
}

// ReportResult is the outcome of a report lookup. Report is only meaningful
// when Outcome is ReportFound; Err only when it is ReportFailed.
type ReportResult struct {
	Outcome ReportOutcome
	Report  Report
	Err     error
}

// Found wraps a fetched report.
func Found(r Report) ReportResult {
	return ReportResult{Outcome: ReportFound, Report: r}
}

// NotFound marks a report id that has no report upstream.
func NotFound() ReportResult {
	return ReportResult{Outcome: ReportNotFound}
}

// Failed wraps an upstream failure.
func Failed(err error) ReportResult {
	return ReportResult{Outcome: ReportFailed, Err: err}
}
