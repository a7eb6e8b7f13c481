package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"

	"tindahan/backend/internal/domain"
	"tindahan/backend/internal/store"
)

// checkoutLockKey serializes order id allocation across concurrent checkouts.
// The lock is taken first so every later statement reads committed stock.
const checkoutLockKey = 7_301_100

func (s *Store) CreateCheckout(ctx context.Context, lines []domain.Order) (int64, error) {
	if len(lines) == 0 {
		return 0, store.ErrInvalidInput
	}

	requested := make(map[int64]int, len(lines))
	for _, line := range lines {
		if line.Quantity < 1 {
			return 0, store.ErrInvalidInput
		}
		requested[line.ProductID] += line.Quantity
	}
	// Lock rows in id order so concurrent checkouts cannot deadlock.
	productIDs := make([]int64, 0, len(requested))
	for id := range requested {
		productIDs = append(productIDs, id)
	}
	sort.Slice(productIDs, func(i, j int) bool { return productIDs[i] < productIDs[j] })

	var orderID int64
	err := s.withTx(ctx, "checkout", sql.LevelReadCommitted, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, checkoutLockKey); err != nil {
			return err
		}

		for _, productID := range productIDs {
			var (
				name     string
				quantity int
				active   bool
			)
			err := tx.QueryRowContext(ctx,
				`SELECT name, quantity, active FROM products WHERE id = $1 FOR UPDATE`,
				productID,
			).Scan(&name, &quantity, &active)
			if err == sql.ErrNoRows || (err == nil && !active) {
				return fmt.Errorf("product %d: %w", productID, store.ErrNotFound)
			}
			if err != nil {
				return err
			}
			if quantity < requested[productID] {
				return &store.InsufficientStockError{
					Item:      domain.ProductRef(productID),
					Name:      name,
					Available: quantity,
					Requested: requested[productID],
				}
			}
		}

		// Sales are recorded as used on the product ledger row of the order's day.
		date := nowDateUTC(lines[0].BusinessDate)
		for _, productID := range productIDs {
			if _, err := applyUsageTx(ctx, tx, domain.ProductRef(productID), date, domain.UsageDelta{Used: requested[productID]}); err != nil {
				return err
			}
		}

		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(order_id), 0) + 1 FROM orders`).Scan(&orderID); err != nil {
			return err
		}

		insert := psql.Insert("orders").Columns(
			"order_id", "product_id", "quantity", "subtotal", "tax", "discount", "total",
			"payment", "change", "status", "payment_method", "business_date", "created_by",
		)
		for _, line := range lines {
			insert = insert.Values(
				orderID, line.ProductID, line.Quantity, line.Subtotal, line.Tax, line.Discount, line.Total,
				line.Payment, line.Change, line.Status, line.PaymentMethod, nowDateUTC(line.BusinessDate), line.CreatedBy,
			)
		}
		sqlText, args, err := insert.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, sqlText, args...); err != nil {
			return err
		}

		for _, productID := range productIDs {
			if _, err := tx.ExecContext(ctx,
				`UPDATE products SET quantity = quantity - $1 WHERE id = $2`,
				requested[productID], productID,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return orderID, nil
}

func (s *Store) ListOrderLines(ctx context.Context, orderID int64) ([]domain.Order, error) {
	sqlText, args, err := psql.Select(
		"o.id", "o.order_id", "o.product_id", "p.name AS product_name", "o.quantity",
		"o.subtotal", "o.tax", "o.discount", "o.total", "o.payment", "o.change",
		"o.status", "o.payment_method", "o.business_date", "o.created_by", "o.created_at",
	).
		From("orders o").
		Join("products p ON p.id = o.product_id").
		Where(squirrel.Eq{"o.order_id": orderID}).
		OrderBy("o.id").
		ToSql()
	if err != nil {
		return nil, err
	}

	lines := make([]domain.Order, 0, 8)
	if err := sqlscan.Select(ctx, s.db, &lines, sqlText, args...); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, store.ErrNotFound
	}
	return lines, nil
}

func (s *Store) AggregateSales(ctx context.Context, date time.Time) (domain.SalesTotals, error) {
	sqlText, args, err := psql.Select("payment_method", "COALESCE(SUM(total), 0) AS total").
		From("orders").
		Where(squirrel.Eq{"business_date": nowDateUTC(date)}).
		GroupBy("payment_method").
		ToSql()
	if err != nil {
		return domain.SalesTotals{}, err
	}

	var rows []struct {
		PaymentMethod string
		Total         domain.Money
	}
	if err := sqlscan.Select(ctx, s.db, &rows, sqlText, args...); err != nil {
		return domain.SalesTotals{}, err
	}

	var totals domain.SalesTotals
	for _, row := range rows {
		totals.Gross = totals.Gross.Add(row.Total)
		totals.AddToMethod(row.PaymentMethod, row.Total)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT order_id) FROM orders WHERE business_date = $1`,
		nowDateUTC(date),
	).Scan(&totals.Orders); err != nil {
		return domain.SalesTotals{}, err
	}
	return totals, nil
}
