package cache

import (
	"context"
	"sync"
	"time"

	"tindahan/backend/internal/domain"
)

// SummaryCache holds computed daily summaries keyed by business date.
type SummaryCache interface {
	Get(ctx context.Context, date time.Time) (*domain.DailySummary, bool, error)
	Set(ctx context.Context, summary domain.DailySummary, ttl time.Duration) error
	Delete(ctx context.Context, date time.Time) error
}

func summaryKey(date time.Time) string {
	return "tindahan:summary:" + domain.FormatDate(date)
}

type NoopSummaryCache struct{}

func (NoopSummaryCache) Get(_ context.Context, _ time.Time) (*domain.DailySummary, bool, error) {
	return nil, false, nil
}

func (NoopSummaryCache) Set(_ context.Context, _ domain.DailySummary, _ time.Duration) error {
	return nil
}

func (NoopSummaryCache) Delete(_ context.Context, _ time.Time) error {
	return nil
}

type memoryEntry struct {
	summary   domain.DailySummary
	expiresAt time.Time
}

// MemorySummaryCache is a process-local cache used when Redis is not configured.
type MemorySummaryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemorySummaryCache() *MemorySummaryCache {
	return &MemorySummaryCache{entries: map[string]memoryEntry{}, now: time.Now}
}

func (c *MemorySummaryCache) Get(_ context.Context, date time.Time) (*domain.DailySummary, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := summaryKey(date)
	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	summary := entry.summary
	return &summary, true, nil
}

func (c *MemorySummaryCache) Set(_ context.Context, summary domain.DailySummary, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := memoryEntry{summary: summary}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.entries[summaryKey(summary.Date)] = entry
	return nil
}

func (c *MemorySummaryCache) Delete(_ context.Context, date time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, summaryKey(date))
	return nil
}
