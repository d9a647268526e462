package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pario-ai/meter/pkg/models"
)

func newTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cache_test.db")
	c, err := New(dbPath, ttl)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func report(name string, cost float64) models.Report {
	return models.Report{Name: &name, CreditCost: &cost}
}

func TestPutAndGet(t *testing.T) {
	c := newTestCache(t, time.Hour)
	ctx := context.Background()

	if err := c.Put(ctx, "5392", models.Found(report("Tenant Obligations Report", 79))); err != nil {
		t.Fatal(err)
	}

	res, ok := c.Get(ctx, "5392")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if res.Outcome != models.ReportFound || *res.Report.Name != "Tenant Obligations Report" || *res.Report.CreditCost != 79 {
		t.Errorf("unexpected cached result: %+v", res)
	}

	if _, ok := c.Get(ctx, "1"); ok {
		t.Error("expected cache miss for unknown report")
	}
}

func TestNotFoundCached(t *testing.T) {
	c := newTestCache(t, time.Hour)
	ctx := context.Background()

	if err := c.Put(ctx, "404", models.NotFound()); err != nil {
		t.Fatal(err)
	}
	res, ok := c.Get(ctx, "404")
	if !ok || res.Outcome != models.ReportNotFound {
		t.Errorf("expected cached not found, got %+v (%v)", res, ok)
	}
}

func TestFailureNotCached(t *testing.T) {
	c := newTestCache(t, time.Hour)
	ctx := context.Background()

	if err := c.Put(ctx, "1", models.Failed(errors.New("boom"))); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get(ctx, "1"); ok {
		t.Error("failures must not be cached")
	}
}

func TestTTLExpiration(t *testing.T) {
	c := newTestCache(t, 1*time.Millisecond)
	ctx := context.Background()

	// ttl_seconds truncates to 0, so the entry expires immediately.
	if err := c.Put(ctx, "1", models.Found(report("A", 1))); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get(ctx, "1"); ok {
		t.Error("expected cache miss after TTL expiration")
	}
}

func TestStatsAndClear(t *testing.T) {
	c := newTestCache(t, time.Hour)
	ctx := context.Background()

	_ = c.Put(ctx, "1", models.Found(report("A", 1)))
	_ = c.Put(ctx, "2", models.NotFound())
	c.Get(ctx, "1")
	c.Get(ctx, "3")

	stats, err := c.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 2 || stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	if err := c.Clear(true); err != nil {
		t.Fatal(err)
	}
	if stats, _ := c.Stats(); stats.Entries != 2 {
		t.Errorf("expected unexpired entries to survive, got %d", stats.Entries)
	}

	if err := c.Clear(false); err != nil {
		t.Fatal(err)
	}
	if stats, _ := c.Stats(); stats.Entries != 0 {
		t.Errorf("expected empty cache, got %d", stats.Entries)
	}
}

func TestClearExpiredRemovesStaleEntries(t *testing.T) {
	c := newTestCache(t, time.Minute)
	ctx := context.Background()

	if err := c.Put(ctx, "stale", models.Found(report("A", 1))); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(ctx, "fresh", models.NotFound()); err != nil {
		t.Fatal(err)
	}
	if _, err := c.db.Exec(`UPDATE report_cache SET created_at = created_at - 3600 WHERE report_id = ?`, "stale"); err != nil {
		t.Fatal(err)
	}

	if err := c.Clear(true); err != nil {
		t.Fatal(err)
	}
	stats, err := c.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 1 {
		t.Fatalf("expected 1 entry after clearing expired, got %d", stats.Entries)
	}
	if _, ok := c.Get(ctx, "fresh"); !ok {
		t.Error("expected fresh entry to survive")
	}
}

func TestClearExpiredAfterTTL(t *testing.T) {
	c := newTestCache(t, time.Millisecond)
	ctx := context.Background()

	if err := c.Put(ctx, "1", models.Found(report("A", 1))); err != nil {
		t.Fatal(err)
	}
	time.Sleep(1100 * time.Millisecond)

	if err := c.Clear(true); err != nil {
		t.Fatal(err)
	}
	if stats, _ := c.Stats(); stats.Entries != 0 {
		t.Errorf("expected expired entry to be removed, got %d", stats.Entries)
	}
}

type countingFetcher struct {
	calls int
	res   models.ReportResult
}

func (f *countingFetcher) FetchReport(ctx context.Context, reportID string) models.ReportResult {
	f.calls++
	return f.res
}

func TestCachedReports(t *testing.T) {
	c := newTestCache(t, time.Hour)
	ctx := context.Background()
	next := &countingFetcher{res: models.Found(report("A", 3))}
	r := NewCachedReports(next, c, zerolog.Nop(), nil)

	for range 3 {
		res := r.FetchReport(ctx, "9")
		if res.Outcome != models.ReportFound || *res.Report.CreditCost != 3 {
			t.Fatalf("unexpected result %+v", res)
		}
	}
	if next.calls != 1 {
		t.Errorf("expected 1 upstream call, got %d", next.calls)
	}
}

func TestCachedReportsRetriesFailures(t *testing.T) {
	c := newTestCache(t, time.Hour)
	ctx := context.Background()
	next := &countingFetcher{res: models.Failed(errors.New("boom"))}
	r := NewCachedReports(next, c, zerolog.Nop(), nil)

	r.FetchReport(ctx, "9")
	r.FetchReport(ctx, "9")
	if next.calls != 2 {
		t.Errorf("expected failures to reach upstream each time, got %d calls", next.calls)
	}
}
