package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tindahan/backend/internal/apperror"
	"tindahan/backend/internal/domain"
)

const receiptWidth = 32

// Receipt renders a stored order for the client-side thermal printer driver.
func (s *Service) Receipt(ctx context.Context, orderID int64) (domain.ReceiptResponse, error) {
	if orderID < 1 {
		return domain.ReceiptResponse{}, apperror.NewNotFound("order", orderID)
	}
	lines, err := s.repo.ListOrderLines(ctx, orderID)
	if err != nil {
		return domain.ReceiptResponse{}, translate(err, "order", orderID)
	}
	return buildReceipt(orderID, lines), nil
}

func buildReceipt(orderID int64, lines []domain.Order) domain.ReceiptResponse {
	total, payment, change := decimal.Zero, decimal.Zero, decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Total)
		payment = payment.Add(line.Payment)
		change = change.Add(line.Change)
	}

	text := []string{
		"Tindahan",
		strings.Repeat("=", receiptWidth),
		fmt.Sprintf("Order #%d", orderID),
	}
	if len(lines) > 0 {
		text = append(text,
			"Date: "+lines[0].CreatedAt.Format("2006-01-02 15:04"),
			"Paid via: "+strings.ToUpper(lines[0].PaymentMethod),
		)
	}
	text = append(text, strings.Repeat("-", receiptWidth))
	for _, line := range lines {
		name := line.ProductName
		if name == "" {
			name = fmt.Sprintf("Product %d", line.ProductID)
		}
		text = append(text, fmt.Sprintf("%s x%d", name, line.Quantity))
		text = append(text, receiptAmount("", line.Total))
	}
	text = append(text,
		strings.Repeat("-", receiptWidth),
		receiptAmount("Total", total),
		receiptAmount("Payment", payment),
		receiptAmount("Change", change),
		strings.Repeat("=", receiptWidth),
		"Salamat po!",
		"",
	)

	escpos := []byte{0x1b, 0x40}
	for _, line := range text {
		escpos = append(escpos, []byte(line)...)
		escpos = append(escpos, '\n')
	}
	escpos = append(escpos, []byte{0x1d, 0x56, 0x41, 0x10}...)

	return domain.ReceiptResponse{
		OrderID:      orderID,
		Lines:        lines,
		Total:        total,
		Payment:      payment,
		Change:       change,
		EscposBase64: base64.StdEncoding.EncodeToString(escpos),
		PreviewText:  strings.Join(text, "\n"),
		FileName:     fmt.Sprintf("receipt-%d.bin", orderID),
	}
}

func receiptAmount(label string, amount decimal.Decimal) string {
	value := amount.StringFixed(2)
	pad := receiptWidth - len(label) - len(value)
	if pad < 1 {
		pad = 1
	}
	return label + strings.Repeat(" ", pad) + value
}
