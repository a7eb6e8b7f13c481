package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"

	"tindahan/backend/internal/domain"
	"tindahan/backend/internal/store"
)

func deliverySelect() squirrel.SelectBuilder {
	return psql.Select(
		"d.id",
		"d.business_date AS date",
		`d.item_kind AS "item.kind"`,
		`d.item_id AS "item.id"`,
		"COALESCE(p.name, i.name, '') AS item_name",
		"d.beginning", "d.delivered", "d.ending", "d.status", "d.owner",
		"d.edited_at", "d.confirmed_at", "d.confirmed_by", "d.created_at",
	).
		From("deliveries d").
		LeftJoin("products p ON d.item_kind = 'product' AND p.id = d.item_id").
		LeftJoin("inventory i ON d.item_kind = 'inventory' AND i.id = d.item_id")
}

func (s *Store) ListDeliveries(ctx context.Context, date time.Time) ([]domain.Delivery, error) {
	sqlText, args, err := deliverySelect().
		Where(squirrel.Eq{"d.business_date": nowDateUTC(date)}).
		OrderBy("d.item_kind", "item_name").
		ToSql()
	if err != nil {
		return nil, err
	}

	deliveries := make([]domain.Delivery, 0, 32)
	if err := sqlscan.Select(ctx, s.db, &deliveries, sqlText, args...); err != nil {
		return nil, err
	}
	return deliveries, nil
}

func (s *Store) GetDelivery(ctx context.Context, id int64) (*domain.Delivery, error) {
	return getDelivery(ctx, s.db, squirrel.Eq{"d.id": id}, false)
}

func (s *Store) FindDelivery(ctx context.Context, date time.Time, item domain.ItemRef) (*domain.Delivery, error) {
	return getDelivery(ctx, s.db, squirrel.Eq{
		"d.business_date": nowDateUTC(date),
		"d.item_kind":     string(item.Kind),
		"d.item_id":       item.ID,
	}, false)
}

func getDelivery(ctx context.Context, q sqlscan.Querier, where squirrel.Sqlizer, forUpdate bool) (*domain.Delivery, error) {
	query := deliverySelect().Where(where)
	if forUpdate {
		query = query.Suffix("FOR UPDATE OF d")
	}
	sqlText, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var d domain.Delivery
	if err := sqlscan.Get(ctx, q, &d, sqlText, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (s *Store) SeedDeliveries(ctx context.Context, date time.Time, seeds []domain.Delivery) (int, error) {
	for _, seed := range seeds {
		if !seed.Item.Valid() || seed.Beginning < 0 {
			return 0, store.ErrInvalidInput
		}
	}

	day := nowDateUTC(date)
	created := 0
	err := s.withTx(ctx, "seed_deliveries", sql.LevelReadCommitted, func(ctx context.Context, tx *sql.Tx) error {
		created = 0
		for _, seed := range seeds {
			if _, err := liveQuantityTx(ctx, tx, seed.Item); err != nil {
				return err
			}

			sqlText, args, err := psql.Insert("deliveries").
				Columns("business_date", "item_kind", "item_id", "beginning", "delivered", "ending", "status").
				Values(day, string(seed.Item.Kind), seed.Item.ID, seed.Beginning, 0, seed.Beginning, string(domain.DeliveryPending)).
				Suffix("ON CONFLICT (business_date, item_kind, item_id) DO NOTHING").
				ToSql()
			if err != nil {
				return err
			}
			res, err := tx.ExecContext(ctx, sqlText, args...)
			if err != nil {
				return err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			created += int(affected)

			table, column, err := ledgerTable(seed.Item.Kind)
			if err != nil {
				return err
			}
			sqlText, args, err = psql.Insert(table).
				Columns(column, "business_date", "beginning", "delivered", "used", "ending").
				Values(seed.Item.ID, day, seed.Beginning, 0, 0, seed.Beginning).
				Suffix("ON CONFLICT (" + column + ", business_date) DO NOTHING").
				ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, sqlText, args...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

func (s *Store) UpdateDeliveries(ctx context.Context, edits []domain.DeliveryEdit, owner string, at time.Time) ([]domain.Delivery, error) {
	updated := make([]domain.Delivery, 0, len(edits))
	err := s.withTx(ctx, "update_deliveries", sql.LevelReadCommitted, func(ctx context.Context, tx *sql.Tx) error {
		updated = updated[:0]
		for _, edit := range edits {
			d, err := getDelivery(ctx, tx, squirrel.Eq{"d.id": edit.ID}, true)
			if err != nil {
				return fmt.Errorf("delivery %d: %w", edit.ID, err)
			}
			if d.Status == domain.DeliveryConfirmed {
				return fmt.Errorf("delivery %d is confirmed: %w", edit.ID, store.ErrConflict)
			}
			d.Beginning = edit.Beginning
			d.Delivered = edit.Delivered
			d.Ending = edit.Ending
			if err := d.Validate(); err != nil {
				return fmt.Errorf("delivery %d: %w: %v", edit.ID, store.ErrInvalidInput, err)
			}
			editedAt := at.UTC()
			d.EditedAt = &editedAt
			d.Owner = owner

			sqlText, args, err := psql.Update("deliveries").
				Set("beginning", d.Beginning).
				Set("delivered", d.Delivered).
				Set("ending", d.Ending).
				Set("owner", d.Owner).
				Set("edited_at", editedAt).
				Where(squirrel.Eq{"id": d.ID}).
				ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, sqlText, args...); err != nil {
				return err
			}
			updated = append(updated, *d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) ConfirmDelivery(ctx context.Context, id int64, by string, at time.Time) (*domain.Delivery, bool, error) {
	var (
		confirmed *domain.Delivery
		already   bool
	)
	err := s.withTx(ctx, "confirm_delivery", sql.LevelSerializable, func(ctx context.Context, tx *sql.Tx) error {
		d, err := getDelivery(ctx, tx, squirrel.Eq{"d.id": id}, true)
		if err != nil {
			return err
		}
		if d.Status == domain.DeliveryConfirmed {
			confirmed, already = d, true
			return nil
		}
		if err := d.Validate(); err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
		}

		// Item row before ledger row, the same order checkout locks them in.
		current, err := lockedLiveQuantityTx(ctx, tx, d.Item)
		if err != nil {
			return err
		}
		if _, err := applyUsageTx(ctx, tx, d.Item, d.Date, d.WriteBack()); err != nil {
			return err
		}
		if err := setLiveQuantityTx(ctx, tx, d.Item, d.ConfirmedLiveQuantity(current)); err != nil {
			return err
		}

		confirmedAt := at.UTC()
		sqlText, args, err := psql.Update("deliveries").
			Set("status", string(domain.DeliveryConfirmed)).
			Set("confirmed_at", confirmedAt).
			Set("confirmed_by", by).
			Where(squirrel.Eq{"id": d.ID}).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, sqlText, args...); err != nil {
			return err
		}

		d.Status = domain.DeliveryConfirmed
		d.ConfirmedAt = &confirmedAt
		d.ConfirmedBy = by
		confirmed, already = d, false
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return confirmed, already, nil
}
