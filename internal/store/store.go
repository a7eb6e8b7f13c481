package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tindahan/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
	ErrDuplicate         = errors.New("duplicate")
)

// ErrTransient marks infrastructure failures that survived local retries.
var ErrTransient = errors.New("transient storage failure")

// InsufficientStockError names the item that could not cover a decrement.
type InsufficientStockError struct {
	Item      domain.ItemRef
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	name := e.Name
	if name == "" {
		name = e.Item.String()
	}
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d", name, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

type Catalog interface {
	ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	ListMaterials(ctx context.Context, includeInactive bool) ([]domain.Material, error)
	GetMaterial(ctx context.Context, id int64) (*domain.Material, error)
	CreateMaterial(ctx context.Context, material domain.Material) (*domain.Material, error)
	UpdateMaterial(ctx context.Context, material domain.Material) (*domain.Material, error)
	SetItemImage(ctx context.Context, item domain.ItemRef, path string) error
	// SetLiveQuantities overwrites the cached live quantity of each item.
	SetLiveQuantities(ctx context.Context, quantities map[domain.ItemRef]int) error
}

type Ledger interface {
	GetUsage(ctx context.Context, item domain.ItemRef, date time.Time) (*domain.UsageRecord, error)
	// GetOrInitUsage returns the item's row for date, creating it from the latest
	// earlier ending (or the live quantity) when absent.
	GetOrInitUsage(ctx context.Context, item domain.ItemRef, date time.Time) (*domain.UsageRecord, error)
	ApplyUsage(ctx context.Context, item domain.ItemRef, date time.Time, delta domain.UsageDelta) (*domain.UsageRecord, error)
	ListUsage(ctx context.Context, kind domain.ItemKind, date time.Time) ([]domain.UsageRecord, error)
	// LatestUsageBefore returns, per item id, the most recent row dated strictly before date.
	LatestUsageBefore(ctx context.Context, kind domain.ItemKind, date time.Time) (map[int64]domain.UsageRecord, error)
	// LatestUsageOnOrBefore is LatestUsageBefore including date itself.
	LatestUsageOnOrBefore(ctx context.Context, kind domain.ItemKind, date time.Time) (map[int64]domain.UsageRecord, error)
}

type Deliveries interface {
	ListDeliveries(ctx context.Context, date time.Time) ([]domain.Delivery, error)
	GetDelivery(ctx context.Context, id int64) (*domain.Delivery, error)
	FindDelivery(ctx context.Context, date time.Time, item domain.ItemRef) (*domain.Delivery, error)
	// SeedDeliveries inserts each delivery and its twin ledger row unless they exist,
	// all in one transaction. It returns how many deliveries were created.
	SeedDeliveries(ctx context.Context, date time.Time, seeds []domain.Delivery) (int, error)
	UpdateDeliveries(ctx context.Context, edits []domain.DeliveryEdit, owner string, at time.Time) ([]domain.Delivery, error)
	// ConfirmDelivery writes the delivery back into the ledger exactly once. The
	// boolean is true when the delivery had already been confirmed.
	ConfirmDelivery(ctx context.Context, id int64, by string, at time.Time) (*domain.Delivery, bool, error)
}

type Orders interface {
	// CreateCheckout persists all lines under one new order id and decrements stock.
	CreateCheckout(ctx context.Context, lines []domain.Order) (int64, error)
	ListOrderLines(ctx context.Context, orderID int64) ([]domain.Order, error)
	AggregateSales(ctx context.Context, date time.Time) (domain.SalesTotals, error)
}

type Expenses interface {
	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	GetExpense(ctx context.Context, id int64) (*domain.Expense, error)
	DeleteExpense(ctx context.Context, id int64) (*domain.Expense, error)
	ListExpenses(ctx context.Context, from time.Time, to time.Time) ([]domain.Expense, error)
	SumExpenses(ctx context.Context, date time.Time) (domain.Money, error)
}

type Summaries interface {
	GetSummary(ctx context.Context, date time.Time) (*domain.DailySummary, error)
	ListSummaries(ctx context.Context, from time.Time, to time.Time) ([]domain.DailySummary, error)
	// UpsertSummary stores recomputed totals and clears the dirty flag only if
	// the stored version still equals summary.Version. It reports whether it did.
	UpsertSummary(ctx context.Context, summary domain.DailySummary) (bool, error)
	// AdjustSummaryExpenses shifts expenses and net sales by delta, marks the row
	// dirty and bumps its version. MarkSummaryDirty does the same without the shift.
	AdjustSummaryExpenses(ctx context.Context, date time.Time, delta domain.Money) error
	MarkSummaryDirty(ctx context.Context, date time.Time) error
	ListDirtySummaryDates(ctx context.Context) ([]time.Time, error)
}

type Repository interface {
	Catalog
	Ledger
	Deliveries
	Orders
	Expenses
	Summaries
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
