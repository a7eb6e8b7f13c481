package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"tindahan/backend/internal/apperror"
	"tindahan/backend/internal/domain"
	"tindahan/backend/internal/events"
	"tindahan/backend/internal/logger"
)

// Checkout records a cart as one order and decrements live product stock. The
// whole cart fails if any product cannot cover its summed quantity.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	for i := range req.Lines {
		req.Lines[i].PaymentMethod = domain.NormalizePaymentMethod(req.Lines[i].PaymentMethod)
	}
	if err := s.check(req); err != nil {
		return domain.CheckoutResponse{}, err
	}

	date := s.Today()
	total := decimal.Zero
	orders := make([]domain.Order, 0, len(req.Lines))
	for i, line := range req.Lines {
		if !domain.IsSupportedPaymentMethod(line.PaymentMethod) {
			return domain.CheckoutResponse{}, apperror.NewValidation("unsupported payment method").
				WithDetail(fmt.Sprintf("lines[%d].payment_method", i), line.PaymentMethod)
		}
		for name, amount := range map[string]decimal.Decimal{
			"subtotal": line.Subtotal, "tax": line.Tax, "discount": line.Discount,
			"total": line.Total, "payment": line.Payment, "change": line.Change,
		} {
			if amount.IsNegative() {
				return domain.CheckoutResponse{}, apperror.NewValidation("amounts must not be negative").
					WithDetail(fmt.Sprintf("lines[%d].%s", i, name), amount.String())
			}
		}

		total = total.Add(line.Total)
		orders = append(orders, domain.Order{
			ProductID:     line.ProductID,
			Quantity:      line.Quantity,
			Subtotal:      domain.Round2(line.Subtotal),
			Tax:           domain.Round2(line.Tax),
			Discount:      domain.Round2(line.Discount),
			Total:         domain.Round2(line.Total),
			Payment:       domain.Round2(line.Payment),
			Change:        domain.Round2(line.Change),
			Status:        domain.OrderStatusPaid,
			PaymentMethod: line.PaymentMethod,
			BusinessDate:  date,
			CreatedBy:     actor.Username,
		})
	}

	orderID, err := s.repo.CreateCheckout(ctx, orders)
	if err != nil {
		return domain.CheckoutResponse{}, translate(err, "product", nil)
	}

	s.invalidateSummary(ctx, date)
	s.logAudit(ctx, "checkout", "order", fmt.Sprint(orderID),
		fmt.Sprintf("lines=%d,total=%s,method=%s", len(orders), total.StringFixed(2), orders[0].PaymentMethod))

	lines, err := s.repo.ListOrderLines(ctx, orderID)
	if err != nil {
		logger.Warn(ctx, "failed to reload order lines", "order_id", orderID, "error", err)
		lines = orders
		for i := range lines {
			lines[i].OrderID = orderID
		}
	}
	s.publishReceipt(ctx, orderID, lines)

	return domain.CheckoutResponse{
		OrderID:       orderID,
		BusinessDate:  domain.FormatDate(date),
		Lines:         lines,
		Total:         domain.Round2(total),
		PaymentMethod: orders[0].PaymentMethod,
	}, nil
}

// publishReceipt is best-effort; the order is already committed.
func (s *Service) publishReceipt(ctx context.Context, orderID int64, lines []domain.Order) {
	receipt := buildReceipt(orderID, lines)
	event := events.ReceiptEvent{
		OrderID:       orderID,
		BusinessDate:  domain.FormatDate(lines[0].BusinessDate),
		PaymentMethod: lines[0].PaymentMethod,
		Total:         receipt.Total,
		Lines:         lines,
		EscposBase64:  receipt.EscposBase64,
		PublishedAt:   s.now().UTC(),
	}
	if err := s.publisher.PublishReceipt(ctx, event); err != nil {
		logger.Warn(ctx, "failed to publish receipt", "order_id", orderID, "error", err)
	}
}
