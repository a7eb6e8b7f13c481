package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tindahan/backend/internal/apperror"
	"tindahan/backend/internal/domain"
	"tindahan/backend/internal/logger"
	"tindahan/backend/internal/store"
)

const maxSummaryRangeDays = 93

const maxRecomputeAttempts = 3

// Recompute rebuilds the day's summary from orders and expenses. The stored
// row is marked clean only if no contributing mutation landed while the
// aggregates were read; otherwise it is rebuilt again, and after
// maxRecomputeAttempts it is left dirty for the next read.
func (s *Service) Recompute(ctx context.Context, date time.Time) (domain.DailySummary, error) {
	var summary domain.DailySummary
	for attempt := 1; attempt <= maxRecomputeAttempts; attempt++ {
		var version int64
		stored, err := s.repo.GetSummary(ctx, date)
		switch {
		case err == nil:
			version = stored.Version
		case !errors.Is(err, store.ErrNotFound):
			return domain.DailySummary{}, translate(err, "summary", domain.FormatDate(date))
		}

		sales, err := s.repo.AggregateSales(ctx, date)
		if err != nil {
			return domain.DailySummary{}, translate(err, "summary", domain.FormatDate(date))
		}
		expenses, err := s.repo.SumExpenses(ctx, date)
		if err != nil {
			return domain.DailySummary{}, translate(err, "summary", domain.FormatDate(date))
		}

		summary = domain.BuildSummary(sales, expenses)
		summary.Date = date
		summary.Version = version
		summary.UpdatedAt = s.now().UTC()
		clean, err := s.repo.UpsertSummary(ctx, summary)
		if err != nil {
			return domain.DailySummary{}, translate(err, "summary", domain.FormatDate(date))
		}
		if clean {
			s.cacheIfCurrent(ctx, summary)
			return summary, nil
		}
		logger.Info(ctx, "summary changed during recompute", "date", domain.FormatDate(date), "attempt", attempt)
	}
	summary.Dirty = true
	return summary, nil
}

// cacheIfCurrent caches a clean summary, then evicts it again if the stored
// row moved on in the meantime. Mutations mark the row before evicting, so
// either this check or their eviction removes a stale entry.
func (s *Service) cacheIfCurrent(ctx context.Context, summary domain.DailySummary) {
	if err := s.cache.Set(ctx, summary, s.summaryTTL); err != nil {
		logger.Warn(ctx, "failed to cache summary", "date", domain.FormatDate(summary.Date), "error", err)
		return
	}
	current, err := s.repo.GetSummary(ctx, summary.Date)
	if err == nil && !current.Dirty && current.Version == summary.Version {
		return
	}
	if err := s.cache.Delete(ctx, summary.Date); err != nil {
		logger.Warn(ctx, "failed to evict cached summary", "date", domain.FormatDate(summary.Date), "error", err)
	}
}

// RecomputeSummary is the admin-triggered form of Recompute.
func (s *Service) RecomputeSummary(ctx context.Context, date time.Time) (domain.DailySummary, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.DailySummary{}, err
	}
	summary, err := s.Recompute(ctx, date)
	if err != nil {
		return domain.DailySummary{}, err
	}
	s.logAudit(ctx, "summary_recompute", "summary", domain.FormatDate(date), "gross="+summary.TotalGrossSales.StringFixed(2))
	return summary, nil
}

// Summary reads the day's summary from cache, then storage, recomputing it
// when it is missing or dirty.
func (s *Service) Summary(ctx context.Context, date time.Time) (domain.DailySummary, error) {
	cached, ok, err := s.cache.Get(ctx, date)
	if err != nil {
		logger.Warn(ctx, "summary cache read failed", "date", domain.FormatDate(date), "error", err)
	}
	if ok {
		return *cached, nil
	}

	stored, err := s.repo.GetSummary(ctx, date)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return s.Recompute(ctx, date)
	case err != nil:
		return domain.DailySummary{}, translate(err, "summary", domain.FormatDate(date))
	case stored.Dirty:
		return s.Recompute(ctx, date)
	}

	s.cacheIfCurrent(ctx, *stored)
	return *stored, nil
}

// Summaries returns each day in [from, to] plus their total.
func (s *Service) Summaries(ctx context.Context, from time.Time, to time.Time) (domain.SummaryRange, error) {
	if to.Before(from) {
		return domain.SummaryRange{}, apperror.NewValidation("from must not be after to")
	}
	if days := int(to.Sub(from).Hours()/24) + 1; days > maxSummaryRangeDays {
		return domain.SummaryRange{}, apperror.NewValidation(fmt.Sprintf("range must not exceed %d days", maxSummaryRangeDays))
	}

	result := domain.SummaryRange{
		From: domain.FormatDate(from),
		To:   domain.FormatDate(to),
		Days: make([]domain.DailySummary, 0, 31),
	}
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		summary, err := s.Summary(ctx, day)
		if err != nil {
			return domain.SummaryRange{}, err
		}
		result.Days = append(result.Days, summary)
		result.Total = result.Total.Add(summary)
	}
	return result, nil
}

// RepairDirty recomputes every summary marked dirty and reports how many succeeded.
func (s *Service) RepairDirty(ctx context.Context) (int, error) {
	dates, err := s.repo.ListDirtySummaryDates(ctx)
	if err != nil {
		return 0, translate(err, "summary", nil)
	}

	repaired := 0
	var errs []error
	for _, date := range dates {
		if _, err := s.Recompute(ctx, date); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", domain.FormatDate(date), err))
			continue
		}
		repaired++
	}
	return repaired, errors.Join(errs...)
}

// invalidateSummary marks the day dirty after a contributing mutation.
func (s *Service) invalidateSummary(ctx context.Context, date time.Time) {
	if err := s.repo.MarkSummaryDirty(ctx, date); err != nil {
		logger.Warn(ctx, "failed to mark summary dirty", "date", domain.FormatDate(date), "error", err)
	}
	if err := s.cache.Delete(ctx, date); err != nil {
		logger.Warn(ctx, "failed to evict cached summary", "date", domain.FormatDate(date), "error", err)
	}
}
