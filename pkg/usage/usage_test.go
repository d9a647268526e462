package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pario-ai/meter/pkg/estimate"
	"github.com/pario-ai/meter/pkg/models"
)

type fakeReports struct {
	mu      sync.Mutex
	reports map[string]models.ReportResult
	delay   func(id string) time.Duration
	calls   []string
}

func (f *fakeReports) FetchReport(ctx context.Context, id string) models.ReportResult {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	f.mu.Unlock()

	if f.delay != nil {
		select {
		case <-time.After(f.delay(id)):
		case <-ctx.Done():
			return models.Failed(ctx.Err())
		}
	}
	res, ok := f.reports[id]
	if !ok {
		return models.NotFound()
	}
	return res
}

type fakeBilling struct {
	period models.BillingPeriod
	err    error
	block  bool
}

func (f *fakeBilling) FetchCurrentBilling(ctx context.Context) (models.BillingPeriod, error) {
	if f.block {
		<-ctx.Done()
		return models.BillingPeriod{}, ctx.Err()
	}
	return f.period, f.err
}

func strPtr(s string) *string { return &s }
func floatPtr(f float64) *float64 { return &f }

func msg(id int, text string, reportID string) models.Message {
	m := models.Message{
		ID:        json.RawMessage(fmt.Sprint(id)),
		Timestamp: json.RawMessage(`"2024-04-29T02:08:29.375Z"`),
		Text:      text,
	}
	if reportID != "" {
		m.ReportID = json.RawMessage(reportID)
	}
	return m
}

func TestConstructEmpty(t *testing.T) {
	b := NewBuilder(&fakeReports{}, estimate.BaseModelRate)
	res, err := b.Construct(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Entries == nil || len(res.Entries) != 0 {
		t.Errorf("expected empty non-nil entries, got %v", res.Entries)
	}
}

func TestConstructTextCosted(t *testing.T) {
	b := NewBuilder(&fakeReports{}, estimate.BaseModelRate)
	text := strings.Repeat("a", 400)
	res, err := b.Construct(context.Background(), []models.Message{msg(1, text, "")})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(res.Entries))
	}
	e := res.Entries[0]
	if e.Costing != models.CostingText || e.ReportName != nil {
		t.Errorf("expected text-costed entry, got %+v", e)
	}
	if *e.CreditsUsed != estimate.CalculateCredits(text, estimate.BaseModelRate) {
		t.Errorf("unexpected credits %v", *e.CreditsUsed)
	}
}

func TestConstructReportCosted(t *testing.T) {
	reports := &fakeReports{reports: map[string]models.ReportResult{
		"5392": models.Found(models.Report{Name: strPtr("Tenant Obligations Report"), CreditCost: floatPtr(0.37)}),
	}}
	b := NewBuilder(reports, estimate.BaseModelRate)
	res, err := b.Construct(context.Background(), []models.Message{msg(1, strings.Repeat("a", 4000), "5392")})
	if err != nil {
		t.Fatal(err)
	}
	e := res.Entries[0]
	if e.Costing != models.CostingReport {
		t.Fatalf("expected report costing, got %s", e.Costing)
	}
	if *e.ReportName != "Tenant Obligations Report" {
		t.Errorf("unexpected report name %q", *e.ReportName)
	}
	// Upstream cost is trusted verbatim, no floor.
	if *e.CreditsUsed != 0.37 {
		t.Errorf("expected 0.37 credits, got %v", *e.CreditsUsed)
	}
}

func TestConstructSkipsMissingReport(t *testing.T) {
	reports := &fakeReports{reports: map[string]models.ReportResult{
		"1": models.Found(models.Report{Name: strPtr("A"), CreditCost: floatPtr(5)}),
	}}
	b := NewBuilder(reports, estimate.BaseModelRate)
	msgs := []models.Message{
		msg(10, "hello", "1"),
		msg(11, "hello", "999"),
		msg(12, "hello", ""),
	}
	res, err := b.Construct(context.Background(), msgs)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(res.Entries))
	}
	if string(res.Entries[0].MessageID) != "10" || string(res.Entries[1].MessageID) != "12" {
		t.Errorf("unexpected order: %s, %s", res.Entries[0].MessageID, res.Entries[1].MessageID)
	}
	if len(res.Skipped) != 1 || res.Skipped[0].ReportID != "999" || string(res.Skipped[0].MessageID) != "11" {
		t.Errorf("unexpected skipped list %+v", res.Skipped)
	}
}

func TestConstructFalsyReportIDUsesText(t *testing.T) {
	reports := &fakeReports{}
	b := NewBuilder(reports, estimate.BaseModelRate)
	msgs := []models.Message{msg(1, "hi", "null"), msg(2, "hi", `""`), msg(3, "hi", "0")}
	res, err := b.Construct(context.Background(), msgs)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(res.Entries))
	}
	for _, e := range res.Entries {
		if e.Costing != models.CostingText {
			t.Errorf("expected text costing for %s", e.MessageID)
		}
	}
	if len(reports.calls) != 0 {
		t.Errorf("expected no report lookups, got %v", reports.calls)
	}
}

func TestConstructReportFailure(t *testing.T) {
	upstreamErr := errors.New("502 bad gateway")
	reports := &fakeReports{reports: map[string]models.ReportResult{
		"1": models.Failed(upstreamErr),
	}}
	b := NewBuilder(reports, estimate.BaseModelRate)
	_, err := b.Construct(context.Background(), []models.Message{msg(1, "", "1"), msg(2, "text", "")})
	if !errors.Is(err, upstreamErr) {
		t.Errorf("expected upstream error to propagate, got %v", err)
	}
}

func TestConstructMissingID(t *testing.T) {
	b := NewBuilder(&fakeReports{}, estimate.BaseModelRate)
	_, err := b.Construct(context.Background(), []models.Message{{Text: "no id"}})
	if !errors.Is(err, models.ErrInvalidMessage) {
		t.Errorf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestConstructConcurrentPreservesOrder(t *testing.T) {
	reports := &fakeReports{
		reports: map[string]models.ReportResult{},
		delay: func(id string) time.Duration {
			var n int
			fmt.Sscan(id, &n)
			return time.Duration(20-n) * time.Millisecond
		},
	}
	var msgs []models.Message
	for i := 0; i < 20; i++ {
		id := fmt.Sprint(i)
		if i%5 != 0 {
			reports.reports[id] = models.Found(models.Report{Name: strPtr("r" + id), CreditCost: floatPtr(float64(i))})
		}
		msgs = append(msgs, msg(i, "", id))
	}

	b := NewBuilder(reports, estimate.BaseModelRate, WithConcurrency(8))
	res, err := b.Construct(context.Background(), msgs)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entries) != 16 || len(res.Skipped) != 4 {
		t.Fatalf("expected 16 entries and 4 skipped, got %d and %d", len(res.Entries), len(res.Skipped))
	}
	prev := -1.0
	for _, e := range res.Entries {
		if *e.CreditsUsed <= prev {
			t.Fatalf("entries out of order: %v after %v", *e.CreditsUsed, prev)
		}
		prev = *e.CreditsUsed
	}
}

func TestComputeUsage(t *testing.T) {
	billing := &fakeBilling{period: models.BillingPeriod{Messages: []models.Message{
		msg(1, strings.Repeat("a", 400), ""),
		msg(2, "", "7"),
	}}}
	reports := &fakeReports{reports: map[string]models.ReportResult{
		"7": models.Found(models.Report{Name: strPtr("Short Lease Report"), CreditCost: floatPtr(61)}),
	}}
	svc := NewService(billing, NewBuilder(reports, estimate.BaseModelRate), ServiceConfig{})

	res, err := svc.ComputeUsage(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(res.Entries))
	}
	if res.TotalCredits() != 101 {
		t.Errorf("expected 101 total credits, got %v", res.TotalCredits())
	}
}

func TestComputeUsageBillingError(t *testing.T) {
	billingErr := errors.New("billing down")
	reports := &fakeReports{}
	svc := NewService(&fakeBilling{err: billingErr}, NewBuilder(reports, estimate.BaseModelRate), ServiceConfig{})

	res, err := svc.ComputeUsage(context.Background())
	if !errors.Is(err, billingErr) {
		t.Fatalf("expected billing error, got %v", err)
	}
	if res.Entries != nil {
		t.Errorf("expected no usage, got %v", res.Entries)
	}
	if len(reports.calls) != 0 {
		t.Error("no reports should be fetched when billing fails")
	}
}

func TestComputeUsageDeadline(t *testing.T) {
	svc := NewService(&fakeBilling{block: true}, NewBuilder(&fakeReports{}, estimate.BaseModelRate), ServiceConfig{
		Deadline: 10 * time.Millisecond,
	})

	_, err := svc.ComputeUsage(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}
