package postgres

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"

	"tindahan/backend/internal/domain"
	"tindahan/backend/internal/store"
)

var summaryColumns = []string{
	"business_date AS date",
	"total_gross_sales", "total_expenses", "total_net_sales",
	"total_cash", "total_gcash", "total_grabfood", "total_foodpanda",
	"total_deposited", "orders", "dirty", "version", "updated_at",
}

func (s *Store) GetSummary(ctx context.Context, date time.Time) (*domain.DailySummary, error) {
	sqlText, args, err := psql.Select(summaryColumns...).From("summary").
		Where(squirrel.Eq{"business_date": nowDateUTC(date)}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var summary domain.DailySummary
	if err := sqlscan.Get(ctx, s.db, &summary, sqlText, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &summary, nil
}

func (s *Store) ListSummaries(ctx context.Context, from time.Time, to time.Time) ([]domain.DailySummary, error) {
	sqlText, args, err := psql.Select(summaryColumns...).From("summary").
		Where(squirrel.GtOrEq{"business_date": nowDateUTC(from)}).
		Where(squirrel.LtOrEq{"business_date": nowDateUTC(to)}).
		OrderBy("business_date").
		ToSql()
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.DailySummary, 0, 31)
	if err := sqlscan.Select(ctx, s.db, &summaries, sqlText, args...); err != nil {
		return nil, err
	}
	return summaries, nil
}

// UpsertSummary stores recomputed totals. The row is left clean only when its
// version still equals summary.Version; otherwise it stays dirty and false is returned.
func (s *Store) UpsertSummary(ctx context.Context, summary domain.DailySummary) (bool, error) {
	sqlText, args, err := psql.Insert("summary").
		Columns(
			"business_date", "total_gross_sales", "total_expenses", "total_net_sales",
			"total_cash", "total_gcash", "total_grabfood", "total_foodpanda",
			"total_deposited", "orders", "dirty", "updated_at",
		).
		Values(
			nowDateUTC(summary.Date), summary.TotalGrossSales, summary.TotalExpenses, summary.TotalNetSales,
			summary.TotalCash, summary.TotalGCash, summary.TotalGrabFood, summary.TotalFoodPanda,
			summary.TotalDeposited, summary.Orders, false, squirrel.Expr("NOW()"),
		).
		Suffix(`ON CONFLICT (business_date) DO UPDATE SET
			total_gross_sales = EXCLUDED.total_gross_sales,
			total_expenses = EXCLUDED.total_expenses,
			total_net_sales = EXCLUDED.total_net_sales,
			total_cash = EXCLUDED.total_cash,
			total_gcash = EXCLUDED.total_gcash,
			total_grabfood = EXCLUDED.total_grabfood,
			total_foodpanda = EXCLUDED.total_foodpanda,
			total_deposited = EXCLUDED.total_deposited,
			orders = EXCLUDED.orders,
			dirty = summary.version <> ?,
			updated_at = NOW()
			RETURNING NOT dirty`, summary.Version).
		ToSql()
	if err != nil {
		return false, err
	}
	var clean bool
	if err := s.db.QueryRowContext(ctx, sqlText, args...).Scan(&clean); err != nil {
		return false, err
	}
	return clean, nil
}

func (s *Store) AdjustSummaryExpenses(ctx context.Context, date time.Time, delta domain.Money) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO summary (business_date, dirty, version, updated_at)
		VALUES ($1, TRUE, 1, NOW())
		ON CONFLICT (business_date) DO UPDATE SET
			total_expenses = summary.total_expenses + $2,
			total_net_sales = summary.total_net_sales - $2,
			total_deposited = summary.total_deposited - $2,
			dirty = TRUE,
			version = summary.version + 1,
			updated_at = NOW()
	`, nowDateUTC(date), delta)
	return err
}

func (s *Store) MarkSummaryDirty(ctx context.Context, date time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO summary (business_date, dirty, version, updated_at)
		VALUES ($1, TRUE, 1, NOW())
		ON CONFLICT (business_date) DO UPDATE SET dirty = TRUE, version = summary.version + 1, updated_at = NOW()
	`, nowDateUTC(date))
	return err
}

func (s *Store) ListDirtySummaryDates(ctx context.Context) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT business_date FROM summary WHERE dirty ORDER BY business_date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dates := make([]time.Time, 0, 8)
	for rows.Next() {
		var date time.Time
		if err := rows.Scan(&date); err != nil {
			return nil, err
		}
		dates = append(dates, date)
	}
	return dates, rows.Err()
}
