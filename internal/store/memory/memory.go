package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"tindahan/backend/internal/domain"
	"tindahan/backend/internal/logger"
	"tindahan/backend/internal/store"
)

type usageKey struct {
	item domain.ItemRef
	date string
}

type Store struct {
	mu              sync.RWMutex
	seq             map[string]int64
	products        map[int64]domain.Product
	materials       map[int64]domain.Material
	usage           map[usageKey]domain.UsageRecord
	deliveries      map[int64]domain.Delivery
	deliveryIndex   map[usageKey]int64
	orders          []domain.Order
	maxOrderID      int64
	expenses        map[int64]domain.Expense
	summaries       map[string]domain.DailySummary
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		seq:             make(map[string]int64),
		products:        make(map[int64]domain.Product),
		materials:       make(map[int64]domain.Material),
		usage:           make(map[usageKey]domain.UsageRecord),
		deliveries:      make(map[int64]domain.Delivery),
		deliveryIndex:   make(map[usageKey]int64),
		orders:          make([]domain.Order, 0, 256),
		expenses:        make(map[int64]domain.Expense),
		summaries:       make(map[string]domain.DailySummary),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD; when
// unset, dev defaults are used with a warning.
func seedUsers(ctx context.Context) (map[string]domain.UserAccount, error) {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		logger.Warn(ctx, "memory store is using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"staff", staffPwd, domain.RoleStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.MinCost)
		if err != nil {
			return nil, fmt.Errorf("hash seed password for %s: %w", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with demo users, menu items and raw materials.
func NewSeeded(ctx context.Context) (*Store, error) {
	users, err := seedUsers(ctx)
	if err != nil {
		return nil, err
	}
	s := New()
	s.usersByUsername = users

	now := time.Now().UTC()
	for _, p := range []domain.Product{
		{Name: "Chicken Adobo Rice", Category: "meals", Price: decimal.RequireFromString("120.00"), Quantity: 40},
		{Name: "Pork Sisig", Category: "meals", Price: decimal.RequireFromString("150.00"), Quantity: 30},
		{Name: "Pancit Canton", Category: "meals", Price: decimal.RequireFromString("95.00"), Quantity: 25},
		{Name: "Halo-Halo", Category: "desserts", Price: decimal.RequireFromString("85.00"), Quantity: 20},
		{Name: "Iced Tea", Category: "drinks", Price: decimal.RequireFromString("35.00"), Quantity: 60},
		{Name: "Bottled Water", Category: "drinks", Price: decimal.RequireFromString("20.00"), Quantity: 80},
	} {
		p.Active = true
		p.CreatedAt = now
		p.ID = s.next("product")
		s.products[p.ID] = p
	}
	for _, m := range []domain.Material{
		{Name: "Rice", Unit: "kg", Price: decimal.RequireFromString("52.00"), Quantity: 50},
		{Name: "Chicken", Unit: "kg", Price: decimal.RequireFromString("190.00"), Quantity: 20},
		{Name: "Pork Belly", Unit: "kg", Price: decimal.RequireFromString("320.00"), Quantity: 12},
		{Name: "Cooking Oil", Unit: "L", Price: decimal.RequireFromString("110.00"), Quantity: 8},
		{Name: "Ice", Unit: "bag", Price: decimal.RequireFromString("40.00"), Quantity: 0},
	} {
		m.Active = true
		m.CreatedAt = now
		m.ID = s.next("material")
		s.materials[m.ID] = m
	}
	return s, nil
}

func (s *Store) next(name string) int64 {
	s.seq[name]++
	return s.seq[name]
}

func dateKey(date time.Time) string {
	return domain.FormatDate(date)
}

func (s *Store) ListProducts(_ context.Context, includeInactive bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !includeInactive && !p.Active {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Category == result[j].Category {
			return result[i].Name < result[j].Name
		}
		return result[i].Category < result[j].Category
	})
	return result, nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.products {
		if strings.EqualFold(existing.Name, product.Name) {
			return nil, store.ErrDuplicate
		}
	}
	product.ID = s.next("product")
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	existing.Name = product.Name
	existing.Category = product.Category
	existing.Price = product.Price
	existing.Active = product.Active
	s.products[product.ID] = existing
	return &existing, nil
}

func (s *Store) ListMaterials(_ context.Context, includeInactive bool) ([]domain.Material, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Material, 0, len(s.materials))
	for _, m := range s.materials {
		if !includeInactive && !m.Active {
			continue
		}
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *Store) GetMaterial(_ context.Context, id int64) (*domain.Material, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.materials[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

func (s *Store) CreateMaterial(_ context.Context, material domain.Material) (*domain.Material, error) {
	if material.Name == "" || material.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.materials {
		if strings.EqualFold(existing.Name, material.Name) {
			return nil, store.ErrDuplicate
		}
	}
	material.ID = s.next("material")
	if material.CreatedAt.IsZero() {
		material.CreatedAt = time.Now().UTC()
	}
	s.materials[material.ID] = material
	return &material, nil
}

func (s *Store) UpdateMaterial(_ context.Context, material domain.Material) (*domain.Material, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.materials[material.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	existing.Name = material.Name
	existing.Unit = material.Unit
	existing.Price = material.Price
	existing.Active = material.Active
	s.materials[material.ID] = existing
	return &existing, nil
}

func (s *Store) SetItemImage(_ context.Context, item domain.ItemRef, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch item.Kind {
	case domain.KindProduct:
		p, ok := s.products[item.ID]
		if !ok {
			return store.ErrNotFound
		}
		p.ImagePath = path
		s.products[item.ID] = p
	case domain.KindInventory:
		m, ok := s.materials[item.ID]
		if !ok {
			return store.ErrNotFound
		}
		m.ImagePath = path
		s.materials[item.ID] = m
	default:
		return store.ErrInvalidInput
	}
	return nil
}

func (s *Store) SetLiveQuantities(_ context.Context, quantities map[domain.ItemRef]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for item, qty := range quantities {
		if qty < 0 {
			return store.ErrInvalidInput
		}
		if _, err := s.liveQuantityLocked(item); err != nil {
			return err
		}
	}
	for item, qty := range quantities {
		s.setLiveQuantityLocked(item, qty)
	}
	return nil
}

func (s *Store) liveQuantityLocked(item domain.ItemRef) (int, error) {
	switch item.Kind {
	case domain.KindProduct:
		if p, ok := s.products[item.ID]; ok {
			return p.Quantity, nil
		}
	case domain.KindInventory:
		if m, ok := s.materials[item.ID]; ok {
			return m.Quantity, nil
		}
	}
	return 0, store.ErrNotFound
}

func (s *Store) itemNameLocked(item domain.ItemRef) string {
	switch item.Kind {
	case domain.KindProduct:
		return s.products[item.ID].Name
	case domain.KindInventory:
		return s.materials[item.ID].Name
	}
	return ""
}

func (s *Store) setLiveQuantityLocked(item domain.ItemRef, qty int) {
	switch item.Kind {
	case domain.KindProduct:
		p := s.products[item.ID]
		p.Quantity = qty
		s.products[item.ID] = p
	case domain.KindInventory:
		m := s.materials[item.ID]
		m.Quantity = qty
		s.materials[item.ID] = m
	}
}

func (s *Store) GetUsage(_ context.Context, item domain.ItemRef, date time.Time) (*domain.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.usage[usageKey{item: item, date: dateKey(date)}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

func (s *Store) GetOrInitUsage(_ context.Context, item domain.ItemRef, date time.Time) (*domain.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.getOrInitUsageLocked(item, date)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) getOrInitUsageLocked(item domain.ItemRef, date time.Time) (domain.UsageRecord, error) {
	key := usageKey{item: item, date: dateKey(date)}
	if rec, ok := s.usage[key]; ok {
		return rec, nil
	}

	live, err := s.liveQuantityLocked(item)
	if err != nil {
		return domain.UsageRecord{}, err
	}
	beginning := live
	if prev, ok := s.latestUsageLocked(item, date, false); ok {
		beginning = prev.Ending
	}

	rec := domain.NewUsageRecord(item, date, beginning, time.Now().UTC())
	rec.ID = s.next("usage:" + string(item.Kind))
	s.usage[key] = rec
	return rec, nil
}

func (s *Store) latestUsageLocked(item domain.ItemRef, date time.Time, inclusive bool) (domain.UsageRecord, bool) {
	var (
		latest domain.UsageRecord
		found  bool
	)
	for key, rec := range s.usage {
		if key.item != item {
			continue
		}
		if rec.Date.After(date) || (!inclusive && rec.Date.Equal(date)) {
			continue
		}
		if !found || rec.Date.After(latest.Date) {
			latest = rec
			found = true
		}
	}
	return latest, found
}

func (s *Store) ApplyUsage(_ context.Context, item domain.ItemRef, date time.Time, delta domain.UsageDelta) (*domain.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.applyUsageLocked(item, date, delta)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) applyUsageLocked(item domain.ItemRef, date time.Time, delta domain.UsageDelta) (domain.UsageRecord, error) {
	rec, err := s.getOrInitUsageLocked(item, date)
	if err != nil {
		return domain.UsageRecord{}, err
	}

	next, err := rec.Apply(delta)
	switch {
	case errors.Is(err, domain.ErrNegativeEnding):
		return domain.UsageRecord{}, &store.InsufficientStockError{
			Item:      item,
			Name:      s.itemNameLocked(item),
			Available: rec.Beginning + rec.Delivered + delta.Delivered - rec.Used,
			Requested: delta.Used,
		}
	case err != nil:
		return domain.UsageRecord{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	next.UpdatedAt = time.Now().UTC()
	s.usage[usageKey{item: item, date: dateKey(date)}] = next
	return next, nil
}

func (s *Store) ListUsage(_ context.Context, kind domain.ItemKind, date time.Time) ([]domain.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := dateKey(date)
	result := make([]domain.UsageRecord, 0, 32)
	for key, rec := range s.usage {
		if key.item.Kind == kind && key.date == day {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Item.ID < result[j].Item.ID })
	return result, nil
}

func (s *Store) LatestUsageBefore(_ context.Context, kind domain.ItemKind, date time.Time) (map[int64]domain.UsageRecord, error) {
	return s.latestUsageByItem(kind, date, false), nil
}

func (s *Store) LatestUsageOnOrBefore(_ context.Context, kind domain.ItemKind, date time.Time) (map[int64]domain.UsageRecord, error) {
	return s.latestUsageByItem(kind, date, true), nil
}

func (s *Store) latestUsageByItem(kind domain.ItemKind, date time.Time, inclusive bool) map[int64]domain.UsageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[int64]domain.UsageRecord)
	for key, rec := range s.usage {
		if key.item.Kind != kind {
			continue
		}
		if rec.Date.After(date) || (!inclusive && rec.Date.Equal(date)) {
			continue
		}
		if prev, ok := result[key.item.ID]; !ok || rec.Date.After(prev.Date) {
			result[key.item.ID] = rec
		}
	}
	return result
}

func (s *Store) ListDeliveries(_ context.Context, date time.Time) ([]domain.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := dateKey(date)
	result := make([]domain.Delivery, 0, 32)
	for key, id := range s.deliveryIndex {
		if key.date != day {
			continue
		}
		d := s.deliveries[id]
		d.ItemName = s.itemNameLocked(d.Item)
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) GetDelivery(_ context.Context, id int64) (*domain.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.deliveries[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	d.ItemName = s.itemNameLocked(d.Item)
	return &d, nil
}

func (s *Store) FindDelivery(_ context.Context, date time.Time, item domain.ItemRef) (*domain.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.deliveryIndex[usageKey{item: item, date: dateKey(date)}]
	if !ok {
		return nil, store.ErrNotFound
	}
	d := s.deliveries[id]
	d.ItemName = s.itemNameLocked(d.Item)
	return &d, nil
}

func (s *Store) SeedDeliveries(_ context.Context, date time.Time, seeds []domain.Delivery) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, seed := range seeds {
		if !seed.Item.Valid() || seed.Beginning < 0 {
			return 0, store.ErrInvalidInput
		}
		if _, err := s.liveQuantityLocked(seed.Item); err != nil {
			return 0, err
		}
	}

	created := 0
	now := time.Now().UTC()
	day := dateKey(date)
	for _, seed := range seeds {
		key := usageKey{item: seed.Item, date: day}
		if _, exists := s.deliveryIndex[key]; !exists {
			d := domain.NewSeedDelivery(seed.Item, date, seed.Beginning, now)
			d.ID = s.next("delivery")
			s.deliveries[d.ID] = d
			s.deliveryIndex[key] = d.ID
			created++
		}
		if _, exists := s.usage[key]; !exists {
			rec := domain.NewUsageRecord(seed.Item, date, seed.Beginning, now)
			rec.ID = s.next("usage:" + string(seed.Item.Kind))
			s.usage[key] = rec
		}
	}
	return created, nil
}

func (s *Store) UpdateDeliveries(_ context.Context, edits []domain.DeliveryEdit, owner string, at time.Time) ([]domain.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make([]domain.Delivery, 0, len(edits))
	for _, edit := range edits {
		d, ok := s.deliveries[edit.ID]
		if !ok {
			return nil, fmt.Errorf("delivery %d: %w", edit.ID, store.ErrNotFound)
		}
		if d.Status == domain.DeliveryConfirmed {
			return nil, fmt.Errorf("delivery %d is confirmed: %w", edit.ID, store.ErrConflict)
		}
		d.Beginning = edit.Beginning
		d.Delivered = edit.Delivered
		d.Ending = edit.Ending
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("delivery %d: %w: %v", edit.ID, store.ErrInvalidInput, err)
		}
		editedAt := at
		d.EditedAt = &editedAt
		d.Owner = owner
		staged = append(staged, d)
	}

	for i, d := range staged {
		s.deliveries[d.ID] = d
		staged[i].ItemName = s.itemNameLocked(d.Item)
	}
	return staged, nil
}

func (s *Store) ConfirmDelivery(_ context.Context, id int64, by string, at time.Time) (*domain.Delivery, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deliveries[id]
	if !ok {
		return nil, false, store.ErrNotFound
	}
	d.ItemName = s.itemNameLocked(d.Item)
	if d.Status == domain.DeliveryConfirmed {
		return &d, true, nil
	}
	if err := d.Validate(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	if _, err := s.applyUsageLocked(d.Item, d.Date, d.WriteBack()); err != nil {
		return nil, false, err
	}
	current, err := s.liveQuantityLocked(d.Item)
	if err != nil {
		return nil, false, err
	}
	s.setLiveQuantityLocked(d.Item, d.ConfirmedLiveQuantity(current))

	confirmedAt := at
	d.Status = domain.DeliveryConfirmed
	d.ConfirmedAt = &confirmedAt
	d.ConfirmedBy = by
	s.deliveries[id] = d
	return &d, false, nil
}

func (s *Store) CreateCheckout(_ context.Context, lines []domain.Order) (int64, error) {
	if len(lines) == 0 {
		return 0, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	requested := make(map[int64]int, len(lines))
	order := make([]int64, 0, len(lines))
	for _, line := range lines {
		if line.Quantity < 1 {
			return 0, store.ErrInvalidInput
		}
		if _, seen := requested[line.ProductID]; !seen {
			order = append(order, line.ProductID)
		}
		requested[line.ProductID] += line.Quantity
	}
	for _, productID := range order {
		p, ok := s.products[productID]
		if !ok || !p.Active {
			return 0, fmt.Errorf("product %d: %w", productID, store.ErrNotFound)
		}
		if p.Quantity < requested[productID] {
			return 0, &store.InsufficientStockError{
				Item:      domain.ProductRef(productID),
				Name:      p.Name,
				Available: p.Quantity,
				Requested: requested[productID],
			}
		}
	}

	// Sales are recorded as used on the product ledger row of the order's day.
	date := lines[0].BusinessDate
	sold := make([]domain.UsageRecord, 0, len(order))
	for _, productID := range order {
		item := domain.ProductRef(productID)
		rec, err := s.getOrInitUsageLocked(item, date)
		if err != nil {
			return 0, err
		}
		next, err := rec.Apply(domain.UsageDelta{Used: requested[productID]})
		if err != nil {
			return 0, &store.InsufficientStockError{
				Item:      item,
				Name:      s.products[productID].Name,
				Available: rec.Beginning + rec.Delivered - rec.Used,
				Requested: requested[productID],
			}
		}
		next.UpdatedAt = time.Now().UTC()
		sold = append(sold, next)
	}

	s.maxOrderID++
	orderID := s.maxOrderID
	for _, line := range lines {
		line.ID = s.next("order")
		line.OrderID = orderID
		line.ProductName = s.products[line.ProductID].Name
		s.orders = append(s.orders, line)
	}
	for productID, qty := range requested {
		p := s.products[productID]
		p.Quantity -= qty
		s.products[productID] = p
	}
	for _, rec := range sold {
		s.usage[usageKey{item: rec.Item, date: dateKey(date)}] = rec
	}
	return orderID, nil
}

func (s *Store) ListOrderLines(_ context.Context, orderID int64) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, 4)
	for _, o := range s.orders {
		if o.OrderID == orderID {
			result = append(result, o)
		}
	}
	if len(result) == 0 {
		return nil, store.ErrNotFound
	}
	return result, nil
}

func (s *Store) AggregateSales(_ context.Context, date time.Time) (domain.SalesTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := dateKey(date)
	var totals domain.SalesTotals
	orderIDs := make(map[int64]struct{})
	for _, o := range s.orders {
		if dateKey(o.BusinessDate) != day {
			continue
		}
		orderIDs[o.OrderID] = struct{}{}
		totals.Gross = totals.Gross.Add(o.Total)
		totals.AddToMethod(o.PaymentMethod, o.Total)
	}
	totals.Orders = len(orderIDs)
	return totals, nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.Title == "" || !expense.Amount.IsPositive() {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	expense.ID = s.next("expense")
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	s.expenses[expense.ID] = expense
	return &expense, nil
}

func (s *Store) GetExpense(_ context.Context, id int64) (*domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.expenses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &e, nil
}

func (s *Store) DeleteExpense(_ context.Context, id int64) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.expenses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	delete(s.expenses, id)
	return &e, nil
}

func (s *Store) ListExpenses(_ context.Context, from time.Time, to time.Time) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Expense, 0, 16)
	for _, e := range s.expenses {
		if e.Date.Before(from) || e.Date.After(to) {
			continue
		}
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Date.Equal(result[j].Date) {
			return result[i].ID < result[j].ID
		}
		return result[i].Date.Before(result[j].Date)
	})
	return result, nil
}

func (s *Store) SumExpenses(_ context.Context, date time.Time) (domain.Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := dateKey(date)
	total := decimal.Zero
	for _, e := range s.expenses {
		if dateKey(e.Date) == day {
			total = total.Add(e.Amount)
		}
	}
	return total, nil
}

func (s *Store) GetSummary(_ context.Context, date time.Time) (*domain.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.summaries[dateKey(date)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &summary, nil
}

func (s *Store) ListSummaries(_ context.Context, from time.Time, to time.Time) ([]domain.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.DailySummary, 0, 31)
	for _, summary := range s.summaries {
		if summary.Date.Before(from) || summary.Date.After(to) {
			continue
		}
		result = append(result, summary)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func (s *Store) UpsertSummary(_ context.Context, summary domain.DailySummary) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dateKey(summary.Date)
	current := s.summaries[key]
	clean := current.Version == summary.Version
	summary.Version = current.Version
	summary.Dirty = !clean
	if summary.UpdatedAt.IsZero() {
		summary.UpdatedAt = time.Now().UTC()
	}
	s.summaries[key] = summary
	return clean, nil
}

func (s *Store) AdjustSummaryExpenses(_ context.Context, date time.Time, delta domain.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dateKey(date)
	summary, ok := s.summaries[key]
	if !ok {
		s.summaries[key] = domain.DailySummary{Date: date, Dirty: true, Version: 1, UpdatedAt: time.Now().UTC()}
		return nil
	}
	summary.TotalExpenses = summary.TotalExpenses.Add(delta)
	summary.TotalNetSales = summary.TotalNetSales.Sub(delta)
	summary.TotalDeposited = summary.TotalDeposited.Sub(delta)
	summary.Dirty = true
	summary.Version++
	summary.UpdatedAt = time.Now().UTC()
	s.summaries[key] = summary
	return nil
}

func (s *Store) MarkSummaryDirty(_ context.Context, date time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dateKey(date)
	summary, ok := s.summaries[key]
	if !ok {
		summary = domain.DailySummary{Date: date}
	}
	summary.Dirty = true
	summary.Version++
	summary.UpdatedAt = time.Now().UTC()
	s.summaries[key] = summary
	return nil
}

func (s *Store) ListDirtySummaryDates(_ context.Context) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dates := make([]time.Time, 0, 8)
	for _, summary := range s.summaries {
		if summary.Dirty {
			dates = append(dates, summary.Date)
		}
	}
	slices.SortFunc(dates, func(a, b time.Time) int { return a.Compare(b) })
	return dates, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = s.next("audit")
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, max(limit, 0))
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrDuplicate
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
