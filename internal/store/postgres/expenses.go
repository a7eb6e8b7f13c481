package postgres

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"

	"tindahan/backend/internal/domain"
	"tindahan/backend/internal/store"
)

var expenseColumns = []string{"id", "user_id", "title", "description", "amount", "business_date AS date", "created_at"}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.Title == "" || !expense.Amount.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	expense.Date = nowDateUTC(expense.Date)

	sqlText, args, err := psql.Insert("expenses").
		Columns("user_id", "title", "description", "amount", "business_date").
		Values(expense.UserID, expense.Title, expense.Description, expense.Amount, expense.Date).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, sqlText, args...).Scan(&expense.ID, &expense.CreatedAt); err != nil {
		return nil, err
	}
	return &expense, nil
}

func (s *Store) GetExpense(ctx context.Context, id int64) (*domain.Expense, error) {
	sqlText, args, err := psql.Select(expenseColumns...).From("expenses").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}

	var e domain.Expense
	if err := sqlscan.Get(ctx, s.db, &e, sqlText, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (s *Store) DeleteExpense(ctx context.Context, id int64) (*domain.Expense, error) {
	sqlText, args, err := psql.Delete("expenses").
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING " + joinColumns(expenseColumns)).
		ToSql()
	if err != nil {
		return nil, err
	}

	var e domain.Expense
	if err := sqlscan.Get(ctx, s.db, &e, sqlText, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// ListExpenses returns expenses dated within [from, to], oldest first.
func (s *Store) ListExpenses(ctx context.Context, from time.Time, to time.Time) ([]domain.Expense, error) {
	sqlText, args, err := psql.Select(expenseColumns...).From("expenses").
		Where(squirrel.GtOrEq{"business_date": nowDateUTC(from)}).
		Where(squirrel.LtOrEq{"business_date": nowDateUTC(to)}).
		OrderBy("business_date", "id").
		ToSql()
	if err != nil {
		return nil, err
	}

	expenses := make([]domain.Expense, 0, 16)
	if err := sqlscan.Select(ctx, s.db, &expenses, sqlText, args...); err != nil {
		return nil, err
	}
	return expenses, nil
}

func (s *Store) SumExpenses(ctx context.Context, date time.Time) (domain.Money, error) {
	var total domain.Money
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM expenses WHERE business_date = $1`,
		nowDateUTC(date),
	).Scan(&total)
	return total, err
}
