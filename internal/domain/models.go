package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

type Actor struct {
	Username string
	Role     string
}

type Product struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Price     decimal.Decimal `json:"price"`
	ImagePath string          `json:"image_path,omitempty"`
	Quantity  int             `json:"quantity"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
}

// Material is a raw inventory material consumed in preparation, never sold directly.
type Material struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Unit      string          `json:"unit,omitempty"`
	Price     decimal.Decimal `json:"price"`
	ImagePath string          `json:"image_path,omitempty"`
	Quantity  int             `json:"quantity"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
}

type ProductCreateRequest struct {
	Name            string          `json:"name" validate:"required,max=120"`
	Category        string          `json:"category" validate:"required,max=60"`
	Price           decimal.Decimal `json:"price"`
	InitialQuantity int             `json:"initial_quantity" validate:"gte=0"`
}

type ProductUpdateRequest struct {
	Name     *string          `json:"name,omitempty" validate:"omitempty,max=120"`
	Category *string          `json:"category,omitempty" validate:"omitempty,max=60"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	Active   *bool            `json:"active,omitempty"`
}

type MaterialCreateRequest struct {
	Name            string          `json:"name" validate:"required,max=120"`
	Unit            string          `json:"unit" validate:"max=20"`
	Price           decimal.Decimal `json:"price"`
	InitialQuantity int             `json:"initial_quantity" validate:"gte=0"`
}

type MaterialUpdateRequest struct {
	Name   *string          `json:"name,omitempty" validate:"omitempty,max=120"`
	Unit   *string          `json:"unit,omitempty" validate:"omitempty,max=20"`
	Price  *decimal.Decimal `json:"price,omitempty"`
	Active *bool            `json:"active,omitempty"`
}

// UsageRecord is one ledger row: the quantity flow of one item over one business day.
type UsageRecord struct {
	ID        int64     `json:"id"`
	Item      ItemRef   `json:"item"`
	Date      time.Time `json:"date"`
	Beginning int       `json:"beginning"`
	Delivered int       `json:"delivered"`
	Used      int       `json:"used"`
	Ending    int       `json:"ending"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UsageDelta is applied to a ledger row. Ending is only set by delivery confirmation,
// which carries the counted ending quantity.
type UsageDelta struct {
	Used      int  `json:"used" validate:"gte=0"`
	Delivered int  `json:"delivered" validate:"gte=0"`
	Ending    *int `json:"ending,omitempty" validate:"omitempty,gte=0"`
}

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryConfirmed DeliveryStatus = "confirmed"
)

type DeliveryState string

const (
	StateSeeded    DeliveryState = "seeded"
	StateEdited    DeliveryState = "edited"
	StateConfirmed DeliveryState = "confirmed"
)

type Delivery struct {
	ID          int64          `json:"id"`
	Date        time.Time      `json:"date"`
	Item        ItemRef        `json:"item"`
	ItemName    string         `json:"item_name,omitempty"`
	Beginning   int            `json:"beginning"`
	Delivered   int            `json:"delivered"`
	Ending      int            `json:"ending"`
	Status      DeliveryStatus `json:"status"`
	Owner       string         `json:"owner,omitempty"`
	EditedAt    *time.Time     `json:"edited_at,omitempty"`
	ConfirmedAt *time.Time     `json:"confirmed_at,omitempty"`
	ConfirmedBy string         `json:"confirmed_by,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

type DeliveryEdit struct {
	ID        int64 `json:"id" validate:"required,gt=0"`
	Beginning int   `json:"beginning" validate:"gte=0"`
	Delivered int   `json:"delivered" validate:"gte=0"`
	Ending    int   `json:"ending" validate:"gte=0"`
}

type DeliveryUpdateRequest struct {
	Edits []DeliveryEdit `json:"edits" validate:"required,min=1,dive"`
}

type DeliveryOpenRequest struct {
	Item ItemRef `json:"item"`
	Date string  `json:"date,omitempty"`
}

type DeliveryRow struct {
	Delivery
	Used  int           `json:"used"`
	State DeliveryState `json:"state"`
}

type DeliveryData struct {
	Date      string        `json:"date"`
	Products  []DeliveryRow `json:"products"`
	Inventory []DeliveryRow `json:"inventory"`
}

type ConfirmResult struct {
	Success          bool     `json:"success"`
	AlreadyConfirmed bool     `json:"already_confirmed"`
	Delivery         Delivery `json:"delivery"`
}

type Order struct {
	ID            int64           `json:"id"`
	OrderID       int64           `json:"order_id"`
	ProductID     int64           `json:"product_id"`
	ProductName   string          `json:"product_name,omitempty"`
	Quantity      int             `json:"quantity"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
	Payment       decimal.Decimal `json:"payment"`
	Change        decimal.Decimal `json:"change"`
	Status        string          `json:"status"`
	PaymentMethod string          `json:"payment_method"`
	BusinessDate  time.Time       `json:"business_date"`
	CreatedBy     string          `json:"created_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

const OrderStatusPaid = "paid"

type CheckoutLine struct {
	ProductID     int64           `json:"product_id" validate:"required,gt=0"`
	Quantity      int             `json:"quantity" validate:"required,gt=0"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
	Payment       decimal.Decimal `json:"payment"`
	Change        decimal.Decimal `json:"change"`
	PaymentMethod string          `json:"payment_method" validate:"required"`
}

type CheckoutRequest struct {
	Lines []CheckoutLine `json:"lines" validate:"required,min=1,dive"`
}

type CheckoutResponse struct {
	OrderID       int64           `json:"order_id"`
	BusinessDate  string          `json:"business_date"`
	Lines         []Order         `json:"lines"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method"`
}

// SalesTotals is the per-day aggregate of order totals.
type SalesTotals struct {
	Orders    int             `json:"orders"`
	Gross     decimal.Decimal `json:"gross"`
	Cash      decimal.Decimal `json:"cash"`
	GCash     decimal.Decimal `json:"gcash"`
	GrabFood  decimal.Decimal `json:"grabfood"`
	FoodPanda decimal.Decimal `json:"foodpanda"`
}

type Expense struct {
	ID          int64           `json:"id"`
	UserID      string          `json:"user_id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
	CreatedAt   time.Time       `json:"created_at"`
}

type ExpenseCreateRequest struct {
	Title       string          `json:"title" validate:"required,max=120"`
	Description string          `json:"description" validate:"max=500"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date,omitempty"`
}

type DailySummary struct {
	Date            time.Time       `json:"date"`
	TotalGrossSales decimal.Decimal `json:"total_gross_sales"`
	TotalExpenses   decimal.Decimal `json:"total_expenses"`
	TotalNetSales   decimal.Decimal `json:"total_net_sales"`
	TotalCash       decimal.Decimal `json:"total_cash"`
	TotalGCash      decimal.Decimal `json:"total_gcash"`
	TotalGrabFood   decimal.Decimal `json:"total_grabfood"`
	TotalFoodPanda  decimal.Decimal `json:"total_foodpanda"`
	TotalDeposited  decimal.Decimal `json:"total_deposited"`
	Orders          int             `json:"orders"`
	Dirty           bool            `json:"-"`
	// Version counts contributing mutations; recompute clears Dirty only
	// when it is unchanged since the aggregates were read.
	Version   int64     `json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SummaryRange struct {
	From  string         `json:"from"`
	To    string         `json:"to"`
	Days  []DailySummary `json:"days"`
	Total DailySummary   `json:"total"`
}

type ReceiptResponse struct {
	OrderID      int64           `json:"order_id"`
	Lines        []Order         `json:"lines"`
	Total        decimal.Decimal `json:"total"`
	Payment      decimal.Decimal `json:"payment"`
	Change       decimal.Decimal `json:"change"`
	EscposBase64 string          `json:"escpos_base64"`
	PreviewText  string          `json:"preview_text"`
	FileName     string          `json:"file_name"`
}

type AuditLog struct {
	ID            int64     `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type StaffCreateRequest struct {
	Username string `json:"username" validate:"required,min=4,max=40"`
	Password string `json:"password" validate:"required,min=6"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
