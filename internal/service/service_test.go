package service

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tindahan/backend/internal/apperror"
	"tindahan/backend/internal/cache"
	"tindahan/backend/internal/domain"
	"tindahan/backend/internal/events"
	"tindahan/backend/internal/lock"
	"tindahan/backend/internal/store/memory"
)

var (
	manila  = time.FixedZone("PHT", 8*60*60)
	testDay = time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
)

type fixture struct {
	svc       *Service
	repo      *memory.Store
	publisher *events.RecordingPublisher
	clock     *time.Time
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	repo, err := memory.NewSeeded(context.Background())
	require.NoError(t, err)
	publisher := &events.RecordingPublisher{}
	now := time.Date(2026, 4, 10, 10, 0, 0, 0, manila)
	svc := New(repo, Options{
		Cache:     cache.NewMemorySummaryCache(),
		Locker:    lock.NewLocalLocker(),
		Publisher: publisher,
		Location:  manila,
		Now:       func() time.Time { return now },
	})
	return fixture{svc: svc, repo: repo, publisher: publisher, clock: &now}
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func staffCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "maria", Role: domain.RoleStaff})
}

func findRow(t *testing.T, rows []domain.DeliveryRow, item domain.ItemRef) domain.DeliveryRow {
	t.Helper()
	for _, row := range rows {
		if row.Item == item {
			return row
		}
	}
	t.Fatalf("no delivery row for %s", item)
	return domain.DeliveryRow{}
}

func requireCode(t *testing.T, err error, code string) *apperror.AppError {
	t.Helper()
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	require.Equal(t, code, appErr.Code)
	return appErr
}

func TestTodayUsesBusinessTimezone(t *testing.T) {
	f := newFixture(t)
	*f.clock = time.Date(2026, 4, 10, 17, 30, 0, 0, time.UTC) // 01:30 next day in Manila
	assert.Equal(t, testDay.AddDate(0, 0, 1), f.svc.Today())

	date, err := f.svc.ResolveDate("")
	require.NoError(t, err)
	assert.Equal(t, testDay.AddDate(0, 0, 1), date)

	_, err = f.svc.ResolveDate("10/04/2026")
	requireCode(t, err, apperror.CodeValidation)
}

func TestDeliveryConfirmationScenario(t *testing.T) {
	f := newFixture(t)
	ctx := staffCtx()
	rice := domain.InventoryRef(1)

	data, err := f.svc.DeliveryData(ctx, testDay)
	require.NoError(t, err)
	row := findRow(t, data.Inventory, rice)
	assert.Equal(t, 50, row.Beginning)
	assert.Equal(t, domain.StateSeeded, row.State)

	updated, err := f.svc.UpdateDeliveries(ctx, domain.DeliveryUpdateRequest{
		Edits: []domain.DeliveryEdit{{ID: row.ID, Beginning: 50, Ending: 40}},
	})
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, 10, updated[0].Used)
	assert.Equal(t, domain.StateEdited, updated[0].State)
	assert.Equal(t, "maria", updated[0].Owner)

	result, err := f.svc.ConfirmDelivery(ctx, row.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.AlreadyConfirmed)

	rec, err := f.svc.LedgerEntry(ctx, rice, testDay)
	require.NoError(t, err)
	assert.Equal(t, 10, rec.Used)
	assert.Equal(t, 40, rec.Ending)

	again, err := f.svc.ConfirmDelivery(ctx, row.ID)
	require.NoError(t, err)
	assert.True(t, again.Success)
	assert.True(t, again.AlreadyConfirmed)

	rec, err = f.svc.LedgerEntry(ctx, rice, testDay)
	require.NoError(t, err)
	assert.Equal(t, 10, rec.Used)
	assert.Equal(t, 40, rec.Ending)

	_, err = f.svc.UpdateDeliveries(ctx, domain.DeliveryUpdateRequest{
		Edits: []domain.DeliveryEdit{{ID: row.ID, Beginning: 50, Ending: 30}},
	})
	requireCode(t, err, apperror.CodeConflict)
}

func TestSeedingCarriesConfirmedEndingForward(t *testing.T) {
	f := newFixture(t)
	ctx := staffCtx()
	rice := domain.InventoryRef(1)

	data, err := f.svc.DeliveryData(ctx, testDay)
	require.NoError(t, err)
	row := findRow(t, data.Inventory, rice)
	_, err = f.svc.UpdateDeliveries(ctx, domain.DeliveryUpdateRequest{
		Edits: []domain.DeliveryEdit{{ID: row.ID, Beginning: 50, Delivered: 10, Ending: 35}},
	})
	require.NoError(t, err)
	_, err = f.svc.ConfirmDelivery(ctx, row.ID)
	require.NoError(t, err)

	next, err := f.svc.DeliveryData(ctx, testDay.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 35, findRow(t, next.Inventory, rice).Beginning)

	rec, err := f.svc.LedgerEntry(ctx, rice, testDay.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 35, rec.Beginning)
	assert.True(t, rec.Balanced())
}

func TestSeedingSkipsEmptyItemsAndOpenDeliveryAddsThem(t *testing.T) {
	f := newFixture(t)
	ctx := staffCtx()
	ice := domain.InventoryRef(5)

	data, err := f.svc.DeliveryData(ctx, testDay)
	require.NoError(t, err)
	assert.Len(t, data.Products, 6)
	assert.Len(t, data.Inventory, 4)
	for _, row := range data.Inventory {
		assert.NotEqual(t, ice, row.Item)
	}

	row, err := f.svc.OpenDelivery(ctx, domain.DeliveryOpenRequest{Item: ice, Date: "2026-04-10"})
	require.NoError(t, err)
	assert.Equal(t, 0, row.Beginning)
	assert.Equal(t, "Ice", row.ItemName)

	same, err := f.svc.OpenDelivery(ctx, domain.DeliveryOpenRequest{Item: ice, Date: "2026-04-10"})
	require.NoError(t, err)
	assert.Equal(t, row.ID, same.ID)

	_, err = f.svc.UpdateDeliveries(ctx, domain.DeliveryUpdateRequest{
		Edits: []domain.DeliveryEdit{{ID: row.ID, Delivered: 30, Ending: 12}},
	})
	require.NoError(t, err)
	_, err = f.svc.ConfirmDelivery(ctx, row.ID)
	require.NoError(t, err)

	m, err := f.repo.GetMaterial(ctx, ice.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, m.Quantity)
}

func TestSeedOnceUnderConcurrentReaders(t *testing.T) {
	f := newFixture(t)
	ctx := staffCtx()

	var wg sync.WaitGroup
	for range 12 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.DeliveryData(ctx, testDay)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rows, err := f.repo.ListDeliveries(ctx, testDay)
	require.NoError(t, err)
	assert.Len(t, rows, 10)

	seen := map[domain.ItemRef]bool{}
	for _, d := range rows {
		assert.False(t, seen[d.Item], "duplicate delivery for %s", d.Item)
		seen[d.Item] = true
	}
}

func TestConfirmingProductDeliveryAddsDeliveredToLiveStock(t *testing.T) {
	f := newFixture(t)
	ctx := staffCtx()
	adobo := domain.ProductRef(1)

	_, err := f.svc.Checkout(ctx, domain.CheckoutRequest{Lines: []domain.CheckoutLine{
		{ProductID: adobo.ID, Quantity: 4, Total: decimal.NewFromInt(480), PaymentMethod: "cash"},
	}})
	require.NoError(t, err)

	data, err := f.svc.DeliveryData(ctx, testDay)
	require.NoError(t, err)
	row := findRow(t, data.Products, adobo)
	assert.Equal(t, 36, row.Beginning)

	_, err = f.svc.UpdateDeliveries(ctx, domain.DeliveryUpdateRequest{
		Edits: []domain.DeliveryEdit{{ID: row.ID, Beginning: 36, Delivered: 10, Ending: 40}},
	})
	require.NoError(t, err)
	_, err = f.svc.ConfirmDelivery(ctx, row.ID)
	require.NoError(t, err)

	p, err := f.repo.GetProduct(ctx, adobo.ID)
	require.NoError(t, err)
	assert.Equal(t, 46, p.Quantity)
}

func TestConcurrentCheckoutScenario(t *testing.T) {
	f := newFixture(t)
	product, err := f.svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name: "Leche Flan", Category: "dessert", Price: decimal.NewFromInt(60), InitialQuantity: 5,
	})
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.Checkout(staffCtx(), domain.CheckoutRequest{Lines: []domain.CheckoutLine{
				{ProductID: product.ID, Quantity: 3, Total: decimal.NewFromInt(180), PaymentMethod: "cash"},
			}})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		appErr := requireCode(t, err, apperror.CodeInsufficientStock)
		assert.Equal(t, 2, appErr.Details["available"])
		assert.Equal(t, 3, appErr.Details["requested"])
	}
	assert.Equal(t, 1, succeeded)

	got, err := f.repo.GetProduct(context.Background(), product.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Quantity)
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	f := newFixture(t)
	halo := int64(4) // 20 in stock

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ordered int
	)
	for i := range 30 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			qty := 1 + i%3
			_, err := f.svc.Checkout(staffCtx(), domain.CheckoutRequest{Lines: []domain.CheckoutLine{
				{ProductID: halo, Quantity: qty, Total: decimal.NewFromInt(int64(85 * qty)), PaymentMethod: "gcash"},
			}})
			if err == nil {
				mu.Lock()
				ordered += qty
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	p, err := f.repo.GetProduct(context.Background(), halo)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, p.Quantity, 0)
	assert.Equal(t, 20-ordered, p.Quantity)

	rec, err := f.repo.GetUsage(context.Background(), domain.ProductRef(halo), testDay)
	require.NoError(t, err)
	assert.Equal(t, ordered, rec.Used)
	assert.Equal(t, p.Quantity, rec.Ending)
}

func TestCheckoutNormalizesPaymentAndPublishesReceipt(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Checkout(staffCtx(), domain.CheckoutRequest{Lines: []domain.CheckoutLine{
		{ProductID: 1, Quantity: 2, Subtotal: decimal.NewFromInt(240), Total: decimal.NewFromInt(240), PaymentMethod: " GrabF "},
		{ProductID: 5, Quantity: 1, Subtotal: decimal.NewFromInt(45), Total: decimal.NewFromInt(45), PaymentMethod: "grabf"},
	}})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentGrabFood, resp.PaymentMethod)
	assert.Equal(t, "2026-04-10", resp.BusinessDate)
	assert.True(t, resp.Total.Equal(decimal.NewFromInt(285)))
	require.Len(t, resp.Lines, 2)
	assert.Equal(t, resp.OrderID, resp.Lines[1].OrderID)

	receipts := f.publisher.Receipts()
	require.Len(t, receipts, 1)
	assert.Equal(t, resp.OrderID, receipts[0].OrderID)
	assert.NotEmpty(t, receipts[0].EscposBase64)

	summary, err := f.svc.Summary(staffCtx(), testDay)
	require.NoError(t, err)
	assert.True(t, summary.TotalGrabFood.Equal(decimal.NewFromInt(285)))
	assert.Equal(t, 1, summary.Orders)
}

func TestCheckoutRejectsUnknownPaymentMethod(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Checkout(staffCtx(), domain.CheckoutRequest{Lines: []domain.CheckoutLine{
		{ProductID: 1, Quantity: 1, Total: decimal.NewFromInt(120), PaymentMethod: "card"},
	}})
	requireCode(t, err, apperror.CodeValidation)

	_, err = f.svc.Checkout(context.Background(), domain.CheckoutRequest{Lines: []domain.CheckoutLine{
		{ProductID: 1, Quantity: 1, Total: decimal.NewFromInt(120), PaymentMethod: "cash"},
	}})
	requireCode(t, err, apperror.CodeUnauthorized)
}

func TestReceiptRendersEscPos(t *testing.T) {
	f := newFixture(t)
	resp, err := f.svc.Checkout(staffCtx(), domain.CheckoutRequest{Lines: []domain.CheckoutLine{
		{ProductID: 2, Quantity: 1, Total: decimal.NewFromInt(150), Payment: decimal.NewFromInt(200), Change: decimal.NewFromInt(50), PaymentMethod: "cash"},
	}})
	require.NoError(t, err)

	receipt, err := f.svc.Receipt(staffCtx(), resp.OrderID)
	require.NoError(t, err)
	assert.Contains(t, receipt.PreviewText, "Sisig x1")
	assert.Contains(t, receipt.PreviewText, "50.00")
	assert.True(t, receipt.Change.Equal(decimal.NewFromInt(50)))
	raw, err := base64.StdEncoding.DecodeString(receipt.EscposBase64)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1b, 0x40}, raw[:2])
	assert.Equal(t, []byte{0x1d, 0x56, 0x41, 0x10}, raw[len(raw)-4:])

	_, err = f.svc.Receipt(staffCtx(), 999)
	requireCode(t, err, apperror.CodeNotFound)
}

func TestExpenseSummaryScenario(t *testing.T) {
	f := newFixture(t)
	ctx := staffCtx()

	_, err := f.svc.Checkout(ctx, domain.CheckoutRequest{Lines: []domain.CheckoutLine{
		{ProductID: 1, Quantity: 5, Total: decimal.NewFromInt(500), PaymentMethod: "cash"},
	}})
	require.NoError(t, err)

	summary, err := f.svc.Summary(ctx, testDay)
	require.NoError(t, err)
	assert.True(t, summary.TotalNetSales.Equal(decimal.NewFromInt(500)))

	expense, err := f.svc.CreateExpense(ctx, domain.ExpenseCreateRequest{Title: "LPG refill", Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	assert.Equal(t, "maria", expense.UserID)
	assert.Equal(t, testDay, expense.Date)

	summary, err = f.svc.Summary(ctx, testDay)
	require.NoError(t, err)
	assert.True(t, summary.TotalNetSales.Equal(decimal.NewFromInt(400)))
	assert.True(t, summary.TotalDeposited.Equal(decimal.NewFromInt(400)))
	assert.False(t, summary.Dirty)

	_, err = f.svc.DeleteExpense(ctx, expense.ID)
	require.NoError(t, err)

	summary, err = f.svc.Summary(ctx, testDay)
	require.NoError(t, err)
	assert.True(t, summary.TotalNetSales.Equal(decimal.NewFromInt(500)))

	_, err = f.svc.DeleteExpense(ctx, expense.ID)
	requireCode(t, err, apperror.CodeNotFound)
}

func TestSummaryStaysConsistentAcrossExpenseChurn(t *testing.T) {
	f := newFixture(t)
	ctx := staffCtx()

	_, err := f.svc.Checkout(ctx, domain.CheckoutRequest{Lines: []domain.CheckoutLine{
		{ProductID: 3, Quantity: 4, Total: decimal.RequireFromString("380.50"), PaymentMethod: "foodp"},
	}})
	require.NoError(t, err)

	var ids []int64
	for _, amount := range []string{"12.25", "40", "7.75"} {
		e, err := f.svc.CreateExpense(ctx, domain.ExpenseCreateRequest{Title: "supplies", Amount: decimal.RequireFromString(amount)})
		require.NoError(t, err)
		ids = append(ids, e.ID)
	}
	_, err = f.svc.DeleteExpense(ctx, ids[1])
	require.NoError(t, err)

	summary, err := f.svc.Recompute(ctx, testDay)
	require.NoError(t, err)
	assert.True(t, summary.TotalNetSales.Equal(summary.TotalGrossSales.Sub(summary.TotalExpenses)))
	assert.True(t, summary.TotalExpenses.Equal(decimal.NewFromInt(20)))
	assert.True(t, summary.TotalFoodPanda.Equal(decimal.RequireFromString("380.50")))
}

func TestCreateExpenseValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateExpense(staffCtx(), domain.ExpenseCreateRequest{Title: "x", Amount: decimal.Zero})
	requireCode(t, err, apperror.CodeValidation)

	_, err = f.svc.CreateExpense(staffCtx(), domain.ExpenseCreateRequest{Title: " ", Amount: decimal.NewFromInt(5)})
	requireCode(t, err, apperror.CodeValidation)
}

func TestRepairDirtyRecomputesMarkedDays(t *testing.T) {
	f := newFixture(t)
	ctx := staffCtx()

	_, err := f.svc.CreateExpense(ctx, domain.ExpenseCreateRequest{Title: "ice", Amount: decimal.NewFromInt(30), Date: "2026-04-08"})
	require.NoError(t, err)
	_, err = f.svc.Checkout(ctx, domain.CheckoutRequest{Lines: []domain.CheckoutLine{
		{ProductID: 6, Quantity: 2, Total: decimal.NewFromInt(40), PaymentMethod: "cash"},
	}})
	require.NoError(t, err)

	repaired, err := f.svc.RepairDirty(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, repaired)

	dirty, err := f.repo.ListDirtySummaryDates(ctx)
	require.NoError(t, err)
	assert.Empty(t, dirty)

	stored, err := f.repo.GetSummary(ctx, time.Date(2026, 4, 8, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, stored.TotalNetSales.Equal(decimal.NewFromInt(-30)))
}

func TestSummariesRangeTotals(t *testing.T) {
	f := newFixture(t)
	ctx := staffCtx()

	_, err := f.svc.Checkout(ctx, domain.CheckoutRequest{Lines: []domain.CheckoutLine{
		{ProductID: 1, Quantity: 1, Total: decimal.NewFromInt(120), PaymentMethod: "cash"},
	}})
	require.NoError(t, err)
	_, err = f.svc.CreateExpense(ctx, domain.ExpenseCreateRequest{Title: "gas", Amount: decimal.NewFromInt(20), Date: "2026-04-09"})
	require.NoError(t, err)

	rng, err := f.svc.Summaries(ctx, testDay.AddDate(0, 0, -1), testDay)
	require.NoError(t, err)
	require.Len(t, rng.Days, 2)
	assert.True(t, rng.Total.TotalNetSales.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 1, rng.Total.Orders)

	_, err = f.svc.Summaries(ctx, testDay, testDay.AddDate(0, 0, -1))
	requireCode(t, err, apperror.CodeValidation)
}

func TestExportSummariesCSV(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ExportSummaries(staffCtx(), testDay, testDay, ExportCSV)
	requireCode(t, err, apperror.CodeForbidden)

	out, err := f.svc.ExportSummaries(adminCtx(), testDay, testDay, ExportCSV)
	require.NoError(t, err)
	assert.Equal(t, "summary-2026-04-10-to-2026-04-10.csv", out.FileName)
	assert.Contains(t, string(out.Data), "Date,Orders,Gross Sales")
	assert.Contains(t, string(out.Data), "Total,0,0.00")

	xlsx, err := f.svc.ExportSummaries(adminCtx(), testDay, testDay, "")
	require.NoError(t, err)
	assert.Equal(t, "PK", string(xlsx.Data[:2]))

	_, err = f.svc.ExportSummaries(adminCtx(), testDay, testDay, "pdf")
	requireCode(t, err, apperror.CodeValidation)
}

func TestApplyUsageAndReproject(t *testing.T) {
	f := newFixture(t)
	ctx := staffCtx()
	oil := domain.InventoryRef(4)

	_, err := f.svc.ApplyUsage(ctx, oil, testDay, domain.UsageDelta{Used: 9})
	appErr := requireCode(t, err, apperror.CodeInsufficientStock)
	assert.Equal(t, "Cooking Oil", appErr.Details["product"])

	rec, err := f.svc.ApplyUsage(ctx, oil, testDay, domain.UsageDelta{Used: 3, Delivered: 2})
	require.NoError(t, err)
	assert.Equal(t, 7, rec.Ending)

	_, err = f.svc.ApplyUsage(ctx, oil, testDay, domain.UsageDelta{Used: -1})
	requireCode(t, err, apperror.CodeValidation)

	records, err := f.svc.ListLedger(ctx, domain.KindInventory, testDay)
	require.NoError(t, err)
	require.Len(t, records, 1)

	n, err := f.svc.ReprojectLiveQuantities(ctx, testDay)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	m, err := f.repo.GetMaterial(ctx, oil.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, m.Quantity)
}

func TestCatalogRequiresAdmin(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateProduct(staffCtx(), domain.ProductCreateRequest{Name: "Lumpia", Category: "mains", Price: decimal.NewFromInt(90)})
	requireCode(t, err, apperror.CodeForbidden)

	created, err := f.svc.CreateMaterial(adminCtx(), domain.MaterialCreateRequest{Name: "Vinegar", Unit: "L", Price: decimal.NewFromInt(45), InitialQuantity: 6})
	require.NoError(t, err)
	assert.Equal(t, 6, created.Quantity)

	_, err = f.svc.CreateMaterial(adminCtx(), domain.MaterialCreateRequest{Name: "Vinegar"})
	requireCode(t, err, apperror.CodeConflict)

	inactive := false
	updated, err := f.svc.UpdateMaterial(adminCtx(), created.ID, domain.MaterialUpdateRequest{Active: &inactive})
	require.NoError(t, err)
	assert.False(t, updated.Active)

	_, err = f.svc.UpdateProduct(adminCtx(), 404, domain.ProductUpdateRequest{})
	requireCode(t, err, apperror.CodeNotFound)
}

func TestUploadItemImageRequiresStorage(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.UploadItemImage(adminCtx(), domain.ProductRef(1), []byte("x"))
	requireCode(t, err, apperror.CodeConflict)
}

func TestAuditTrailRecordsMutations(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateExpense(staffCtx(), domain.ExpenseCreateRequest{Title: "rice sack", Amount: decimal.NewFromInt(1500)})
	require.NoError(t, err)

	_, err = f.svc.ListAuditLogs(staffCtx(), "", 10)
	requireCode(t, err, apperror.CodeForbidden)

	logs, err := f.svc.ListAuditLogs(adminCtx(), "", 10)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, "expense_create", logs[0].Action)
	assert.Equal(t, "maria", logs[0].ActorUsername)
}

func TestCheckoutRecordsSalesOnProductLedger(t *testing.T) {
	f := newFixture(t)
	ctx := staffCtx()
	adobo := domain.ProductRef(1)

	data, err := f.svc.DeliveryData(ctx, testDay)
	require.NoError(t, err)
	row := findRow(t, data.Products, adobo)
	require.Equal(t, 40, row.Beginning)

	_, err = f.svc.Checkout(ctx, domain.CheckoutRequest{Lines: []domain.CheckoutLine{
		{ProductID: adobo.ID, Quantity: 3, Total: decimal.NewFromInt(360), PaymentMethod: "cash"},
	}})
	require.NoError(t, err)

	rec, err := f.svc.LedgerEntry(ctx, adobo, testDay)
	require.NoError(t, err)
	assert.Equal(t, 40, rec.Beginning)
	assert.Equal(t, 3, rec.Used)
	assert.Equal(t, 37, rec.Ending)

	_, err = f.svc.UpdateDeliveries(ctx, domain.DeliveryUpdateRequest{
		Edits: []domain.DeliveryEdit{{ID: row.ID, Beginning: 40, Delivered: 10, Ending: 50}},
	})
	require.NoError(t, err)
	_, err = f.svc.ConfirmDelivery(ctx, row.ID)
	require.NoError(t, err)

	// Replenishment adds on top of the sales already recorded.
	rec, err = f.svc.LedgerEntry(ctx, adobo, testDay)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Used)
	assert.Equal(t, 10, rec.Delivered)
	assert.Equal(t, 47, rec.Ending)
	assert.True(t, rec.Balanced())

	p, err := f.repo.GetProduct(ctx, adobo.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Ending, p.Quantity)
}

func TestReprojectKeepsSoldStockOut(t *testing.T) {
	f := newFixture(t)
	ctx := staffCtx()
	adobo := domain.ProductRef(1)

	_, err := f.svc.Checkout(ctx, domain.CheckoutRequest{Lines: []domain.CheckoutLine{
		{ProductID: adobo.ID, Quantity: 10, Total: decimal.NewFromInt(1200), PaymentMethod: "gcash"},
	}})
	require.NoError(t, err)

	_, err = f.svc.ReprojectLiveQuantities(ctx, testDay)
	require.NoError(t, err)

	p, err := f.repo.GetProduct(ctx, adobo.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, p.Quantity)

	_, err = f.svc.Checkout(ctx, domain.CheckoutRequest{Lines: []domain.CheckoutLine{
		{ProductID: adobo.ID, Quantity: 31, Total: decimal.NewFromInt(3720), PaymentMethod: "cash"},
	}})
	appErr := requireCode(t, err, apperror.CodeInsufficientStock)
	assert.Equal(t, 30, appErr.Details["available"])
}

func TestOpenDeliveryBeforeSheetStillSeedsDay(t *testing.T) {
	f := newFixture(t)
	ctx := staffCtx()
	ice := domain.InventoryRef(5)

	row, err := f.svc.OpenDelivery(ctx, domain.DeliveryOpenRequest{Item: ice, Date: "2026-04-10"})
	require.NoError(t, err)
	assert.Equal(t, ice, row.Item)

	data, err := f.svc.DeliveryData(ctx, testDay)
	require.NoError(t, err)
	assert.Len(t, data.Products, 6)
	assert.Len(t, data.Inventory, 5)
	assert.Equal(t, row.ID, findRow(t, data.Inventory, ice).ID)

	// Opening an item the seed already covered returns the seeded row.
	rice := domain.InventoryRef(1)
	opened, err := f.svc.OpenDelivery(ctx, domain.DeliveryOpenRequest{Item: rice, Date: "2026-04-10"})
	require.NoError(t, err)
	assert.Equal(t, findRow(t, data.Inventory, rice).ID, opened.ID)
}

// racingRepo commits a sale and marks the day dirty while the first
// aggregation is in flight, the way a concurrent checkout would.
type racingRepo struct {
	*memory.Store
	once sync.Once
}

func (r *racingRepo) AggregateSales(ctx context.Context, date time.Time) (domain.SalesTotals, error) {
	totals, err := r.Store.AggregateSales(ctx, date)
	r.once.Do(func() {
		_, err := r.Store.CreateCheckout(ctx, []domain.Order{{
			ProductID:     5,
			Quantity:      1,
			Total:         decimal.NewFromInt(120),
			Status:        domain.OrderStatusPaid,
			PaymentMethod: domain.PaymentCash,
			BusinessDate:  date,
		}})
		if err == nil {
			err = r.Store.MarkSummaryDirty(ctx, date)
		}
		if err != nil {
			panic(err)
		}
	})
	return totals, err
}

func TestRecomputeDoesNotLoseConcurrentDirtyMark(t *testing.T) {
	ctx := staffCtx()
	base, err := memory.NewSeeded(context.Background())
	require.NoError(t, err)
	repo := &racingRepo{Store: base}
	now := time.Date(2026, 4, 10, 10, 0, 0, 0, manila)
	svc := New(repo, Options{
		Cache:    cache.NewMemorySummaryCache(),
		Location: manila,
		Now:      func() time.Time { return now },
	})

	summary, err := svc.Summary(ctx, testDay)
	require.NoError(t, err)
	assert.True(t, summary.TotalGrossSales.Equal(decimal.NewFromInt(120)), summary.TotalGrossSales.String())

	stored, err := base.GetSummary(ctx, testDay)
	require.NoError(t, err)
	assert.False(t, stored.Dirty)
	assert.True(t, stored.TotalCash.Equal(decimal.NewFromInt(120)))

	again, err := svc.Summary(ctx, testDay)
	require.NoError(t, err)
	assert.True(t, again.TotalGrossSales.Equal(decimal.NewFromInt(120)))
}
