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

// DeliveryData returns the day's delivery sheet, seeding it on first access.
// A failed seed is logged and whatever rows exist are returned.
func (s *Service) DeliveryData(ctx context.Context, date time.Time) (domain.DeliveryData, error) {
	if err := s.ensureSeeded(ctx, date); err != nil {
		logger.Warn(ctx, "delivery seeding failed", "date", domain.FormatDate(date), "error", err)
	}
	rows, err := s.repo.ListDeliveries(ctx, date)
	if err != nil {
		return domain.DeliveryData{}, translate(err, "delivery", domain.FormatDate(date))
	}

	data := domain.DeliveryData{
		Date:      domain.FormatDate(date),
		Products:  make([]domain.DeliveryRow, 0, len(rows)),
		Inventory: make([]domain.DeliveryRow, 0, len(rows)),
	}
	for _, d := range rows {
		if d.Item.Kind == domain.KindProduct {
			data.Products = append(data.Products, d.Row())
		} else {
			data.Inventory = append(data.Inventory, d.Row())
		}
	}
	return data, nil
}

// ensureSeeded runs the day's seeding unless it has rows already. Every path
// that creates a delivery row goes through here first, so an existing row
// always means the full seed has run.
func (s *Service) ensureSeeded(ctx context.Context, date time.Time) error {
	rows, err := s.repo.ListDeliveries(ctx, date)
	if err != nil {
		return translate(err, "delivery", domain.FormatDate(date))
	}
	if len(rows) > 0 {
		return nil
	}
	_, err = s.InitializeDay(ctx, date)
	return err
}

// InitializeDay seeds one delivery row (and its ledger twin) per active item
// with stock. Concurrent callers for the same date are serialized by the
// locker; the store's insert-if-absent keeps the result single either way.
func (s *Service) InitializeDay(ctx context.Context, date time.Time) (int, error) {
	release, err := s.locker.Acquire(ctx, "seed:"+domain.FormatDate(date), s.seedLockTTL)
	if err != nil {
		return 0, apperror.NewTransient(fmt.Errorf("acquire seed lock: %w", err))
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn(ctx, "failed to release seed lock", "date", domain.FormatDate(date), "error", err)
		}
	}()

	seeds, err := s.daySeeds(ctx, date)
	if err != nil {
		return 0, err
	}
	if len(seeds) == 0 {
		return 0, nil
	}

	created, err := s.repo.SeedDeliveries(ctx, date, seeds)
	if err != nil {
		return 0, translate(err, "delivery", domain.FormatDate(date))
	}
	if created > 0 {
		logger.Info(ctx, "seeded deliveries", "date", domain.FormatDate(date), "created", created)
	}
	return created, nil
}

// beginnings resolves opening quantities for one kind: the previous day's
// delivery ending, else the latest earlier ledger ending.
type beginnings struct {
	deliveries map[domain.ItemRef]int
	ledger     map[domain.ItemKind]map[int64]domain.UsageRecord
}

func (s *Service) loadBeginnings(ctx context.Context, date time.Time) (beginnings, error) {
	b := beginnings{
		deliveries: map[domain.ItemRef]int{},
		ledger:     map[domain.ItemKind]map[int64]domain.UsageRecord{},
	}
	previous, err := s.repo.ListDeliveries(ctx, domain.PreviousDay(date))
	if err != nil {
		return b, translate(err, "delivery", domain.FormatDate(date))
	}
	for _, d := range previous {
		b.deliveries[d.Item] = d.Ending
	}
	for _, kind := range []domain.ItemKind{domain.KindProduct, domain.KindInventory} {
		latest, err := s.repo.LatestUsageBefore(ctx, kind, date)
		if err != nil {
			return b, translate(err, "ledger", domain.FormatDate(date))
		}
		b.ledger[kind] = latest
	}
	return b, nil
}

func (b beginnings) resolve(item domain.ItemRef, live int) int {
	if ending, ok := b.deliveries[item]; ok {
		return ending
	}
	if rec, ok := b.ledger[item.Kind][item.ID]; ok {
		return rec.Ending
	}
	return live
}

func (s *Service) daySeeds(ctx context.Context, date time.Time) ([]domain.Delivery, error) {
	b, err := s.loadBeginnings(ctx, date)
	if err != nil {
		return nil, err
	}
	products, err := s.repo.ListProducts(ctx, false)
	if err != nil {
		return nil, translate(err, "product", nil)
	}
	materials, err := s.repo.ListMaterials(ctx, false)
	if err != nil {
		return nil, translate(err, "material", nil)
	}

	now := s.now().UTC()
	seeds := make([]domain.Delivery, 0, len(products)+len(materials))
	add := func(item domain.ItemRef, live int) {
		if beginning := b.resolve(item, live); beginning > 0 {
			seeds = append(seeds, domain.NewSeedDelivery(item, date, beginning, now))
		}
	}
	for _, p := range products {
		add(domain.ProductRef(p.ID), p.Quantity)
	}
	for _, m := range materials {
		add(domain.InventoryRef(m.ID), m.Quantity)
	}
	return seeds, nil
}

// OpenDelivery creates the day's row for a single item, including items that
// seeding skipped because they had no stock. An existing row is returned as is.
func (s *Service) OpenDelivery(ctx context.Context, req domain.DeliveryOpenRequest) (domain.DeliveryRow, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.DeliveryRow{}, err
	}
	if !req.Item.Valid() {
		return domain.DeliveryRow{}, apperror.NewValidation("invalid item").WithDetail("item", req.Item.String())
	}
	date, err := s.ResolveDate(req.Date)
	if err != nil {
		return domain.DeliveryRow{}, err
	}

	if err := s.ensureSeeded(ctx, date); err != nil {
		return domain.DeliveryRow{}, err
	}
	existing, err := s.repo.FindDelivery(ctx, date, req.Item)
	if err == nil {
		return existing.Row(), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.DeliveryRow{}, translate(err, "delivery", req.Item.String())
	}

	live, err := s.liveQuantity(ctx, req.Item)
	if err != nil {
		return domain.DeliveryRow{}, err
	}
	b, err := s.loadBeginnings(ctx, date)
	if err != nil {
		return domain.DeliveryRow{}, err
	}
	seed := domain.NewSeedDelivery(req.Item, date, b.resolve(req.Item, live), s.now().UTC())
	if _, err := s.repo.SeedDeliveries(ctx, date, []domain.Delivery{seed}); err != nil {
		return domain.DeliveryRow{}, translate(err, "delivery", req.Item.String())
	}

	d, err := s.repo.FindDelivery(ctx, date, req.Item)
	if err != nil {
		return domain.DeliveryRow{}, translate(err, "delivery", req.Item.String())
	}
	s.logAudit(ctx, "delivery_open", "delivery", fmt.Sprint(d.ID), fmt.Sprintf("item=%s,date=%s,beginning=%d", req.Item, domain.FormatDate(date), d.Beginning))
	return d.Row(), nil
}

func (s *Service) liveQuantity(ctx context.Context, item domain.ItemRef) (int, error) {
	switch item.Kind {
	case domain.KindProduct:
		p, err := s.repo.GetProduct(ctx, item.ID)
		if err != nil {
			return 0, translate(err, "product", item.ID)
		}
		return p.Quantity, nil
	default:
		m, err := s.repo.GetMaterial(ctx, item.ID)
		if err != nil {
			return 0, translate(err, "material", item.ID)
		}
		return m.Quantity, nil
	}
}

// UpdateDeliveries applies all edits atomically; the last write wins per row.
func (s *Service) UpdateDeliveries(ctx context.Context, req domain.DeliveryUpdateRequest) ([]domain.DeliveryRow, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.check(req); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateDeliveries(ctx, req.Edits, actor.Username, s.now().UTC())
	if err != nil {
		return nil, translate(err, "delivery", nil)
	}

	rows := make([]domain.DeliveryRow, 0, len(updated))
	for _, d := range updated {
		rows = append(rows, d.Row())
		s.logAudit(ctx, "delivery_update", "delivery", fmt.Sprint(d.ID),
			fmt.Sprintf("beginning=%d,delivered=%d,ending=%d", d.Beginning, d.Delivered, d.Ending))
	}
	return rows, nil
}

// ConfirmDelivery writes the delivery into the ledger. Repeated confirmation
// succeeds without touching the ledger again.
func (s *Service) ConfirmDelivery(ctx context.Context, id int64) (domain.ConfirmResult, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.ConfirmResult{}, err
	}

	d, already, err := s.repo.ConfirmDelivery(ctx, id, actor.Username, s.now().UTC())
	if err != nil {
		return domain.ConfirmResult{}, translate(err, "delivery", id)
	}
	if !already {
		s.logAudit(ctx, "delivery_confirm", "delivery", fmt.Sprint(id),
			fmt.Sprintf("item=%s,used=%d,delivered=%d,ending=%d", d.Item, d.Used(), d.Delivered, d.Ending))
	}
	return domain.ConfirmResult{Success: true, AlreadyConfirmed: already, Delivery: *d}, nil
}
