package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/pario-ai/meter/pkg/metrics"
	"github.com/pario-ai/meter/pkg/models"
)

// Cache stores report lookups, including not-found results, in SQLite.
type Cache struct {
	db     *sql.DB
	ttl    time.Duration
	hits   atomic.Int64
	misses atomic.Int64
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS report_cache (
	report_id TEXT PRIMARY KEY,
	found INTEGER NOT NULL,
	report BLOB,
	created_at INTEGER NOT NULL,
	ttl_seconds INTEGER NOT NULL
);
`

// New creates a Cache with the given database path and TTL.
func New(dbPath string, ttl time.Duration) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	// Concurrent report fetches share one writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Cache{db: db, ttl: ttl}, nil
}

// Get returns the cached lookup for reportID. ok is false if nothing is
// cached or the entry expired.
func (c *Cache) Get(ctx context.Context, reportID string) (models.ReportResult, bool) {
	var (
		found      bool
		data       []byte
		createdAt  int64
		ttlSeconds int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT found, report, created_at, ttl_seconds FROM report_cache WHERE report_id = ?`,
		reportID,
	).Scan(&found, &data, &createdAt, &ttlSeconds)
	if err != nil {
		c.misses.Add(1)
		return models.ReportResult{}, false
	}

	if time.Since(time.Unix(createdAt, 0)) > time.Duration(ttlSeconds)*time.Second {
		c.misses.Add(1)
		return models.ReportResult{}, false
	}

	if !found {
		c.hits.Add(1)
		return models.NotFound(), true
	}

	var report models.Report
	if err := json.Unmarshal(data, &report); err != nil {
		c.misses.Add(1)
		return models.ReportResult{}, false
	}
	c.hits.Add(1)
	return models.Found(report), true
}

// Put stores a lookup result. Failed lookups are never cached.
func (c *Cache) Put(ctx context.Context, reportID string, res models.ReportResult) error {
	var data []byte
	switch res.Outcome {
	case models.ReportFailed:
		return nil
	case models.ReportFound:
		var err error
		data, err = json.Marshal(res.Report)
		if err != nil {
			return fmt.Errorf("cache put: %w", err)
		}
	}

	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO report_cache (report_id, found, report, created_at, ttl_seconds)
		 VALUES (?, ?, ?, ?, ?)`,
		reportID, res.Outcome == models.ReportFound, data, time.Now().Unix(), int64(c.ttl.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Stats returns cache performance metrics.
func (c *Cache) Stats() (models.CacheStats, error) {
	var count int64
	err := c.db.QueryRow(`SELECT COUNT(*) FROM report_cache`).Scan(&count)
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	return models.CacheStats{
		Entries: count,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}, nil
}

// Clear removes cache entries. If expiredOnly is true, only expired entries are removed.
func (c *Cache) Clear(expiredOnly bool) error {
	var query string
	if expiredOnly {
		query = `DELETE FROM report_cache WHERE CAST(strftime('%s', 'now') AS INTEGER) - created_at > ttl_seconds`
	} else {
		query = `DELETE FROM report_cache`
	}
	_, err := c.db.Exec(query)
	if err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Fetcher looks up a report upstream.
type Fetcher interface {
	FetchReport(ctx context.Context, reportID string) models.ReportResult
}

// CachedReports serves report lookups from the cache before asking next.
type CachedReports struct {
	next    Fetcher
	cache   *Cache
	logger  zerolog.Logger
	metrics *metrics.Collector
}

// NewCachedReports wraps next with c.
func NewCachedReports(next Fetcher, c *Cache, logger zerolog.Logger, m *metrics.Collector) *CachedReports {
	return &CachedReports{next: next, cache: c, logger: logger, metrics: m}
}

// FetchReport implements usage.ReportSource.
func (r *CachedReports) FetchReport(ctx context.Context, reportID string) models.ReportResult {
	if res, ok := r.cache.Get(ctx, reportID); ok {
		r.metrics.RecordCache(true)
		return res
	}
	r.metrics.RecordCache(false)

	res := r.next.FetchReport(ctx, reportID)
	if err := r.cache.Put(ctx, reportID, res); err != nil {
		r.logger.Warn().Err(err).Str("report_id", reportID).Msg("report cache write failed")
	}
	return res
}
