package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tindahan/backend/internal/apperror"
	"tindahan/backend/internal/domain"
	"tindahan/backend/internal/logger"
)

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Expense{}, err
	}

	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	if err := s.check(req); err != nil {
		return domain.Expense{}, err
	}
	if !req.Amount.IsPositive() {
		return domain.Expense{}, apperror.NewValidation("amount must be greater than zero").WithDetail("amount", req.Amount.String())
	}
	date, err := s.ResolveDate(req.Date)
	if err != nil {
		return domain.Expense{}, err
	}

	created, err := s.repo.CreateExpense(ctx, domain.Expense{
		UserID:      actor.Username,
		Title:       req.Title,
		Description: req.Description,
		Amount:      domain.Round2(req.Amount),
		Date:        date,
	})
	if err != nil {
		return domain.Expense{}, translate(err, "expense", req.Title)
	}

	s.adjustSummaryExpenses(ctx, date, created.Amount)
	s.logAudit(ctx, "expense_create", "expense", fmt.Sprint(created.ID),
		fmt.Sprintf("title=%s,amount=%s,date=%s", created.Title, created.Amount.StringFixed(2), domain.FormatDate(date)))
	return *created, nil
}

func (s *Service) DeleteExpense(ctx context.Context, id int64) (domain.Expense, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.Expense{}, err
	}

	deleted, err := s.repo.DeleteExpense(ctx, id)
	if err != nil {
		return domain.Expense{}, translate(err, "expense", id)
	}

	s.adjustSummaryExpenses(ctx, deleted.Date, deleted.Amount.Neg())
	s.logAudit(ctx, "expense_delete", "expense", fmt.Sprint(id),
		fmt.Sprintf("title=%s,amount=%s,date=%s", deleted.Title, deleted.Amount.StringFixed(2), domain.FormatDate(deleted.Date)))
	return *deleted, nil
}

func (s *Service) ListExpenses(ctx context.Context, from time.Time, to time.Time) ([]domain.Expense, error) {
	if to.Before(from) {
		return nil, apperror.NewValidation("from must not be after to")
	}
	expenses, err := s.repo.ListExpenses(ctx, from, to)
	return expenses, translate(err, "expense", nil)
}

// adjustSummaryExpenses nudges the stored summary and marks it dirty so the
// next read recomputes it. Failures only delay that recompute.
func (s *Service) adjustSummaryExpenses(ctx context.Context, date time.Time, delta domain.Money) {
	if err := s.repo.AdjustSummaryExpenses(ctx, date, delta); err != nil {
		logger.Warn(ctx, "failed to adjust summary expenses", "date", domain.FormatDate(date), "delta", delta.String(), "error", err)
	}
	if err := s.cache.Delete(ctx, date); err != nil {
		logger.Warn(ctx, "failed to evict cached summary", "date", domain.FormatDate(date), "error", err)
	}
}
