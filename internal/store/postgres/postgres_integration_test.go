package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tindahan/backend/internal/domain"
	"tindahan/backend/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("TINDAHAN_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set TINDAHAN_TEST_DATABASE_URL to run postgres integration tests")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

func integrationDay(t *testing.T) time.Time {
	t.Helper()
	// Far-future dates keep runs from colliding with each other or real data.
	offset := time.Now().UnixNano() % 100_000
	return time.Date(2200, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, int(offset))
}

func TestConfirmDeliveryWritesLedgerOnce(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	day := integrationDay(t)

	m, err := s.CreateMaterial(ctx, domain.Material{
		Name:     fmt.Sprintf("IT Rice %d", time.Now().UnixNano()),
		Unit:     "kg",
		Price:    decimal.NewFromInt(55),
		Quantity: 50,
		Active:   true,
	})
	require.NoError(t, err)
	item := domain.InventoryRef(m.ID)

	created, err := s.SeedDeliveries(ctx, day, []domain.Delivery{{Item: item, Beginning: 50}})
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	created, err = s.SeedDeliveries(ctx, day, []domain.Delivery{{Item: item, Beginning: 50}})
	require.NoError(t, err)
	assert.Zero(t, created)

	d, err := s.FindDelivery(ctx, day, item)
	require.NoError(t, err)
	assert.Equal(t, m.Name, d.ItemName)

	_, err = s.UpdateDeliveries(ctx, []domain.DeliveryEdit{{ID: d.ID, Beginning: 50, Delivered: 5, Ending: 40}}, "maria", time.Now())
	require.NoError(t, err)

	_, already, err := s.ConfirmDelivery(ctx, d.ID, "maria", time.Now())
	require.NoError(t, err)
	assert.False(t, already)
	_, already, err = s.ConfirmDelivery(ctx, d.ID, "maria", time.Now())
	require.NoError(t, err)
	assert.True(t, already)

	rec, err := s.GetUsage(ctx, item, day)
	require.NoError(t, err)
	assert.Equal(t, 15, rec.Used)
	assert.Equal(t, 5, rec.Delivered)
	assert.Equal(t, 40, rec.Ending)

	got, err := s.GetMaterial(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, got.Quantity)

	next, err := s.GetOrInitUsage(ctx, item, day.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, 40, next.Beginning)
}

func TestConcurrentCheckoutNeverOversells(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	day := integrationDay(t)

	p, err := s.CreateProduct(ctx, domain.Product{
		Name:     fmt.Sprintf("IT Halo-Halo %d", time.Now().UnixNano()),
		Category: "dessert",
		Price:    decimal.NewFromInt(85),
		Quantity: 5,
		Active:   true,
	})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateCheckout(ctx, []domain.Order{{
				ProductID:     p.ID,
				Quantity:      1,
				Total:         decimal.NewFromInt(85),
				Status:        domain.OrderStatusPaid,
				PaymentMethod: domain.PaymentCash,
				BusinessDate:  day,
			}})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, store.ErrInsufficientStock)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Quantity)

	rec, err := s.GetUsage(ctx, domain.ProductRef(p.ID), day)
	require.NoError(t, err)
	assert.Equal(t, 5, rec.Beginning)
	assert.Equal(t, 5, rec.Used)
	assert.Zero(t, rec.Ending)

	totals, err := s.AggregateSales(ctx, day)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, totals.Orders, 5)
}

func TestSummaryExpenseAdjustmentMarksDirty(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	day := integrationDay(t)

	clean, err := s.UpsertSummary(ctx, domain.DailySummary{
		Date:            day,
		TotalGrossSales: decimal.NewFromInt(500),
		TotalNetSales:   decimal.NewFromInt(500),
		TotalCash:       decimal.NewFromInt(500),
		TotalDeposited:  decimal.NewFromInt(500),
	})
	require.NoError(t, err)
	assert.True(t, clean)
	require.NoError(t, s.AdjustSummaryExpenses(ctx, day, decimal.NewFromInt(100)))

	summary, err := s.GetSummary(ctx, day)
	require.NoError(t, err)
	assert.True(t, summary.Dirty)
	assert.Equal(t, int64(1), summary.Version)
	assert.True(t, summary.TotalNetSales.Equal(decimal.NewFromInt(400)))
	assert.True(t, summary.TotalDeposited.Equal(decimal.NewFromInt(400)))

	dates, err := s.ListDirtySummaryDates(ctx)
	require.NoError(t, err)
	assert.Contains(t, dates, day)

	// Totals read before the adjustment must not clear the dirty flag.
	clean, err = s.UpsertSummary(ctx, domain.DailySummary{Date: day, TotalGrossSales: decimal.NewFromInt(500)})
	require.NoError(t, err)
	assert.False(t, clean)
	clean, err = s.UpsertSummary(ctx, domain.DailySummary{Date: day, TotalGrossSales: decimal.NewFromInt(500), Version: 1})
	require.NoError(t, err)
	assert.True(t, clean)

	dates, err = s.ListDirtySummaryDates(ctx)
	require.NoError(t, err)
	assert.NotContains(t, dates, day)
}
