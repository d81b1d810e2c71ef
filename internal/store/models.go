package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Order is the orders table row. Monetary columns are NUMERIC and scan into
// decimals via the shopspring codec registered on the pool.
type Order struct {
	ID             int64
	SessionID      uuid.UUID
	BillingID      pgtype.Int8
	TableID        int32
	Status         string
	DeliveryStatus string
	Subtotal       decimal.Decimal
	DiscountTotal  decimal.Decimal
	TaxTotal       decimal.Decimal
	Total          decimal.Decimal
	ProfitTotal    decimal.Decimal
	CreatedAt      time.Time
	ClosedAt       pgtype.Timestamptz
	IsDeleted      bool
}

// OrderItem is the order_items table row. Exactly one of MenuItemID and
// ComboID is set. Name through Picture are the frozen catalog snapshot
// copied at creation time; later menu edits never touch these columns.
type OrderItem struct {
	ID                int64
	OrderID           int64
	MenuItemID        pgtype.UUID
	ComboID           pgtype.UUID
	Quantity          int32
	DeliveredQuantity int32
	BasePrice         decimal.Decimal
	VendorPrice       decimal.Decimal
	PriceDelta        decimal.Decimal
	LineDiscount      decimal.Decimal
	LineTotal         decimal.Decimal
	Profit            decimal.Decimal
	Name              string
	Sku               string
	Category          string
	ItemGroup         string
	Version           int32
	Picture           string
	IsDeleted         bool
	CreatedAt         time.Time
}

// OrderLog is an append-only order_logs row. No update or delete statements
// exist for this table.
type OrderLog struct {
	ID        int64
	OrderID   int64
	Action    string
	OldValue  []byte
	NewValue  []byte
	ServerID  pgtype.UUID
	CreatedAt time.Time
}

// Server is a staff account used for login and audit attribution.
type Server struct {
	ID        uuid.UUID
	Name      string
	PinHash   string
	Role      string
	CreatedAt time.Time
}
