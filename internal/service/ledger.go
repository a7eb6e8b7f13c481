package service

import (
	"context"
	"fmt"
	"time"

	"tindahan/backend/internal/apperror"
	"tindahan/backend/internal/domain"
)

// LedgerEntry returns the item's record for date, opening it from the previous
// closing quantity when the day has not been touched yet.
func (s *Service) LedgerEntry(ctx context.Context, item domain.ItemRef, date time.Time) (domain.UsageRecord, error) {
	if !item.Valid() {
		return domain.UsageRecord{}, apperror.NewValidation("invalid item").WithDetail("item", item.String())
	}
	rec, err := s.repo.GetOrInitUsage(ctx, item, date)
	if err != nil {
		return domain.UsageRecord{}, translate(err, string(item.Kind), item.ID)
	}
	return *rec, nil
}

// ApplyUsage records consumption or receipt against the item's ledger row for date.
func (s *Service) ApplyUsage(ctx context.Context, item domain.ItemRef, date time.Time, delta domain.UsageDelta) (domain.UsageRecord, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.UsageRecord{}, err
	}
	if !item.Valid() {
		return domain.UsageRecord{}, apperror.NewValidation("invalid item").WithDetail("item", item.String())
	}
	if err := s.check(delta); err != nil {
		return domain.UsageRecord{}, err
	}

	rec, err := s.repo.ApplyUsage(ctx, item, date, delta)
	if err != nil {
		return domain.UsageRecord{}, translate(err, string(item.Kind), item.ID)
	}

	s.logAudit(ctx, "usage_apply", string(item.Kind), fmt.Sprint(item.ID),
		fmt.Sprintf("date=%s,used=%d,delivered=%d,ending=%d", domain.FormatDate(date), delta.Used, delta.Delivered, rec.Ending))
	return *rec, nil
}

func (s *Service) ListLedger(ctx context.Context, kind domain.ItemKind, date time.Time) ([]domain.UsageRecord, error) {
	if !kind.Valid() {
		return nil, apperror.NewValidation("kind must be product or inventory").WithDetail("kind", string(kind))
	}
	records, err := s.repo.ListUsage(ctx, kind, date)
	return records, translate(err, "ledger", domain.FormatDate(date))
}

// ReprojectLiveQuantities rewrites every item's live quantity from its latest
// ledger ending on or before date. Items with no ledger history keep theirs.
func (s *Service) ReprojectLiveQuantities(ctx context.Context, date time.Time) (int, error) {
	quantities := make(map[domain.ItemRef]int, 64)
	for _, kind := range []domain.ItemKind{domain.KindProduct, domain.KindInventory} {
		latest, err := s.repo.LatestUsageOnOrBefore(ctx, kind, date)
		if err != nil {
			return 0, translate(err, "ledger", domain.FormatDate(date))
		}
		for id, rec := range latest {
			quantities[domain.ItemRef{Kind: kind, ID: id}] = rec.Ending
		}
	}
	if len(quantities) == 0 {
		return 0, nil
	}

	if err := s.repo.SetLiveQuantities(ctx, quantities); err != nil {
		return 0, translate(err, "item", nil)
	}
	s.logAudit(ctx, "live_quantity_reproject", "ledger", domain.FormatDate(date), fmt.Sprintf("items=%d", len(quantities)))
	return len(quantities), nil
}
