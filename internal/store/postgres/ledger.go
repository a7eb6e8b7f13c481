package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"

	"tindahan/backend/internal/domain"
	"tindahan/backend/internal/store"
)

// ledgerTable maps an item kind onto its usage table and foreign key column.
func ledgerTable(kind domain.ItemKind) (table string, column string, err error) {
	switch kind {
	case domain.KindProduct:
		return "product_sold", "product_id", nil
	case domain.KindInventory:
		return "inventory_used", "inventory_id", nil
	default:
		return "", "", store.ErrInvalidInput
	}
}

func usageSelect(kind domain.ItemKind) (squirrel.SelectBuilder, string, error) {
	table, column, err := ledgerTable(kind)
	if err != nil {
		return squirrel.SelectBuilder{}, "", err
	}
	query := psql.Select(
		"id",
		fmt.Sprintf("'%s' AS \"item.kind\"", kind),
		column+` AS "item.id"`,
		"business_date AS date",
		"beginning", "delivered", "used", "ending", "updated_at",
	).From(table)
	return query, column, nil
}

func (s *Store) GetUsage(ctx context.Context, item domain.ItemRef, date time.Time) (*domain.UsageRecord, error) {
	query, column, err := usageSelect(item.Kind)
	if err != nil {
		return nil, err
	}
	sqlText, args, err := query.Where(squirrel.Eq{column: item.ID, "business_date": nowDateUTC(date)}).ToSql()
	if err != nil {
		return nil, err
	}

	var rec domain.UsageRecord
	if err := sqlscan.Get(ctx, s.db, &rec, sqlText, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (s *Store) GetOrInitUsage(ctx context.Context, item domain.ItemRef, date time.Time) (*domain.UsageRecord, error) {
	var rec domain.UsageRecord
	err := s.withTx(ctx, "get_or_init_usage", sql.LevelReadCommitted, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		rec, err = getOrInitUsageTx(ctx, tx, item, nowDateUTC(date), false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// getOrInitUsageTx returns the row for (item, date), inserting it when missing.
// With forUpdate the row stays locked until the transaction ends.
func getOrInitUsageTx(ctx context.Context, tx *sql.Tx, item domain.ItemRef, date time.Time, forUpdate bool) (domain.UsageRecord, error) {
	query, column, err := usageSelect(item.Kind)
	if err != nil {
		return domain.UsageRecord{}, err
	}
	query = query.Where(squirrel.Eq{column: item.ID, "business_date": date})
	if forUpdate {
		query = query.Suffix("FOR UPDATE")
	}
	sqlText, args, err := query.ToSql()
	if err != nil {
		return domain.UsageRecord{}, err
	}

	var rec domain.UsageRecord
	err = sqlscan.Get(ctx, tx, &rec, sqlText, args...)
	if err == nil {
		return rec, nil
	}
	if !sqlscan.NotFound(err) {
		return domain.UsageRecord{}, err
	}

	beginning, err := carriedBeginningTx(ctx, tx, item, date)
	if err != nil {
		return domain.UsageRecord{}, err
	}

	table, _, _ := ledgerTable(item.Kind)
	insertText, insertArgs, err := psql.Insert(table).
		Columns(column, "business_date", "beginning", "delivered", "used", "ending").
		Values(item.ID, date, beginning, 0, 0, beginning).
		Suffix("ON CONFLICT (" + column + ", business_date) DO NOTHING").
		ToSql()
	if err != nil {
		return domain.UsageRecord{}, err
	}
	if _, err := tx.ExecContext(ctx, insertText, insertArgs...); err != nil {
		return domain.UsageRecord{}, err
	}

	// A concurrent writer may have won the insert; read whichever row exists.
	if err := sqlscan.Get(ctx, tx, &rec, sqlText, args...); err != nil {
		return domain.UsageRecord{}, err
	}
	return rec, nil
}

// carriedBeginningTx is the latest earlier ending for item, else its live quantity.
func carriedBeginningTx(ctx context.Context, tx *sql.Tx, item domain.ItemRef, date time.Time) (int, error) {
	table, column, err := ledgerTable(item.Kind)
	if err != nil {
		return 0, err
	}
	sqlText, args, err := psql.Select("ending").From(table).
		Where(squirrel.Eq{column: item.ID}).
		Where(squirrel.Lt{"business_date": date}).
		OrderBy("business_date DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return 0, err
	}

	var ending int
	err = tx.QueryRowContext(ctx, sqlText, args...).Scan(&ending)
	switch {
	case err == nil:
		return ending, nil
	case errors.Is(err, sql.ErrNoRows):
		return liveQuantityTx(ctx, tx, item)
	default:
		return 0, err
	}
}

func (s *Store) ApplyUsage(ctx context.Context, item domain.ItemRef, date time.Time, delta domain.UsageDelta) (*domain.UsageRecord, error) {
	var rec domain.UsageRecord
	err := s.withTx(ctx, "apply_usage", sql.LevelReadCommitted, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		rec, err = applyUsageTx(ctx, tx, item, nowDateUTC(date), delta)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func applyUsageTx(ctx context.Context, tx *sql.Tx, item domain.ItemRef, date time.Time, delta domain.UsageDelta) (domain.UsageRecord, error) {
	rec, err := getOrInitUsageTx(ctx, tx, item, date, true)
	if err != nil {
		return domain.UsageRecord{}, err
	}

	next, err := rec.Apply(delta)
	switch {
	case errors.Is(err, domain.ErrNegativeEnding):
		name, _ := itemNameTx(ctx, tx, item)
		return domain.UsageRecord{}, &store.InsufficientStockError{
			Item:      item,
			Name:      name,
			Available: rec.Beginning + rec.Delivered + delta.Delivered - rec.Used,
			Requested: delta.Used,
		}
	case err != nil:
		return domain.UsageRecord{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	table, _, _ := ledgerTable(item.Kind)
	sqlText, args, err := psql.Update(table).
		Set("delivered", next.Delivered).
		Set("used", next.Used).
		Set("ending", next.Ending).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": rec.ID}).
		Suffix("RETURNING updated_at").
		ToSql()
	if err != nil {
		return domain.UsageRecord{}, err
	}
	if err := tx.QueryRowContext(ctx, sqlText, args...).Scan(&next.UpdatedAt); err != nil {
		return domain.UsageRecord{}, err
	}
	return next, nil
}

func (s *Store) ListUsage(ctx context.Context, kind domain.ItemKind, date time.Time) ([]domain.UsageRecord, error) {
	query, column, err := usageSelect(kind)
	if err != nil {
		return nil, err
	}
	sqlText, args, err := query.Where(squirrel.Eq{"business_date": nowDateUTC(date)}).OrderBy(column).ToSql()
	if err != nil {
		return nil, err
	}

	records := make([]domain.UsageRecord, 0, 32)
	if err := sqlscan.Select(ctx, s.db, &records, sqlText, args...); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) LatestUsageBefore(ctx context.Context, kind domain.ItemKind, date time.Time) (map[int64]domain.UsageRecord, error) {
	return s.latestUsage(ctx, kind, squirrel.Lt{"business_date": nowDateUTC(date)})
}

func (s *Store) LatestUsageOnOrBefore(ctx context.Context, kind domain.ItemKind, date time.Time) (map[int64]domain.UsageRecord, error) {
	return s.latestUsage(ctx, kind, squirrel.LtOrEq{"business_date": nowDateUTC(date)})
}

func (s *Store) latestUsage(ctx context.Context, kind domain.ItemKind, bound squirrel.Sqlizer) (map[int64]domain.UsageRecord, error) {
	query, column, err := usageSelect(kind)
	if err != nil {
		return nil, err
	}
	sqlText, args, err := query.
		Options("DISTINCT ON (" + column + ")").
		Where(bound).
		OrderBy(column, "business_date DESC").
		ToSql()
	if err != nil {
		return nil, err
	}

	var records []domain.UsageRecord
	if err := sqlscan.Select(ctx, s.db, &records, sqlText, args...); err != nil {
		return nil, err
	}
	latest := make(map[int64]domain.UsageRecord, len(records))
	for _, rec := range records {
		latest[rec.Item.ID] = rec
	}
	return latest, nil
}

func itemNameTx(ctx context.Context, tx *sql.Tx, item domain.ItemRef) (string, error) {
	table, err := itemTable(item.Kind)
	if err != nil {
		return "", err
	}
	var name string
	err = tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT name FROM %s WHERE id = $1`, table), item.ID).Scan(&name)
	return name, err
}
