package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, session_id, billing_id, table_id, status, delivery_status,
	subtotal, discount_total, tax_total, total, profit_total,
	created_at, closed_at, is_deleted`

const orderItemColumns = `id, order_id, menu_item_id, combo_id, quantity, delivered_quantity,
	base_price, vendor_price, price_delta, line_discount, line_total, profit,
	name, sku, category, item_group, version, picture, is_deleted, created_at`

func scanOrder(row interface{ Scan(dest ...any) error }) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.SessionID, &o.BillingID, &o.TableID, &o.Status, &o.DeliveryStatus,
		&o.Subtotal, &o.DiscountTotal, &o.TaxTotal, &o.Total, &o.ProfitTotal,
		&o.CreatedAt, &o.ClosedAt, &o.IsDeleted,
	)
	return o, err
}

func scanOrderItem(row interface{ Scan(dest ...any) error }) (OrderItem, error) {
	var i OrderItem
	err := row.Scan(
		&i.ID, &i.OrderID, &i.MenuItemID, &i.ComboID, &i.Quantity, &i.DeliveredQuantity,
		&i.BasePrice, &i.VendorPrice, &i.PriceDelta, &i.LineDiscount, &i.LineTotal, &i.Profit,
		&i.Name, &i.Sku, &i.Category, &i.ItemGroup, &i.Version, &i.Picture, &i.IsDeleted, &i.CreatedAt,
	)
	return i, err
}

type CreateOrderParams struct {
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
}

const createOrder = `INSERT INTO orders (
	session_id, billing_id, table_id, status, delivery_status,
	subtotal, discount_total, tax_total, total, profit_total
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + orderColumns

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.SessionID, arg.BillingID, arg.TableID, arg.Status, arg.DeliveryStatus,
		arg.Subtotal, arg.DiscountTotal, arg.TaxTotal, arg.Total, arg.ProfitTotal,
	)
	return scanOrder(row)
}

type CreateOrderItemParams struct {
	OrderID      int64
	MenuItemID   pgtype.UUID
	ComboID      pgtype.UUID
	Quantity     int32
	BasePrice    decimal.Decimal
	VendorPrice  decimal.Decimal
	PriceDelta   decimal.Decimal
	LineDiscount decimal.Decimal
	LineTotal    decimal.Decimal
	Profit       decimal.Decimal
	Name         string
	Sku          string
	Category     string
	ItemGroup    string
	Version      int32
	Picture      string
}

const createOrderItem = `INSERT INTO order_items (
	order_id, menu_item_id, combo_id, quantity,
	base_price, vendor_price, price_delta, line_discount, line_total, profit,
	name, sku, category, item_group, version, picture
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
RETURNING ` + orderItemColumns

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID, arg.MenuItemID, arg.ComboID, arg.Quantity,
		arg.BasePrice, arg.VendorPrice, arg.PriceDelta, arg.LineDiscount, arg.LineTotal, arg.Profit,
		arg.Name, arg.Sku, arg.Category, arg.ItemGroup, arg.Version, arg.Picture,
	)
	return scanOrderItem(row)
}

const getOrder = `SELECT ` + orderColumns + ` FROM orders
WHERE id = $1 AND NOT is_deleted`

func (q *Queries) GetOrder(ctx context.Context, id int64) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

type ListOrdersBySessionParams struct {
	SessionID      uuid.UUID
	IncludeHistory bool
}

// includeHistory=false narrows the read to open orders; closed orders stay
// reachable with includeHistory=true for end-of-shift review.
const listOrdersBySession = `SELECT ` + orderColumns + ` FROM orders
WHERE session_id = $1 AND NOT is_deleted AND ($2 OR status = 'open')
ORDER BY created_at`

func (q *Queries) ListOrdersBySession(ctx context.Context, arg ListOrdersBySessionParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersBySession, arg.SessionID, arg.IncludeHistory)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

const listOrderItems = `SELECT ` + orderItemColumns + ` FROM order_items
WHERE order_id = $1 AND NOT is_deleted
ORDER BY id`

func (q *Queries) ListOrderItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItems, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		i, err := scanOrderItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type GetOrderItemParams struct {
	ID      int64
	OrderID int64
}

// Scoped by both item id and order id so one order's request can never read
// or mutate another order's line.
const getOrderItem = `SELECT ` + orderItemColumns + ` FROM order_items
WHERE id = $1 AND order_id = $2 AND NOT is_deleted`

func (q *Queries) GetOrderItem(ctx context.Context, arg GetOrderItemParams) (OrderItem, error) {
	return scanOrderItem(q.db.QueryRow(ctx, getOrderItem, arg.ID, arg.OrderID))
}

type UpdateOrderItemParams struct {
	ID           int64
	OrderID      int64
	Quantity     int32
	LineDiscount decimal.Decimal
	LineTotal    decimal.Decimal
	Profit       decimal.Decimal
}

const updateOrderItem = `UPDATE order_items
SET quantity = $3, line_discount = $4, line_total = $5, profit = $6
WHERE id = $1 AND order_id = $2 AND NOT is_deleted
RETURNING ` + orderItemColumns

func (q *Queries) UpdateOrderItem(ctx context.Context, arg UpdateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, updateOrderItem,
		arg.ID, arg.OrderID, arg.Quantity, arg.LineDiscount, arg.LineTotal, arg.Profit,
	)
	return scanOrderItem(row)
}

type SoftDeleteOrderItemParams struct {
	ID      int64
	OrderID int64
}

const softDeleteOrderItem = `UPDATE order_items
SET is_deleted = TRUE
WHERE id = $1 AND order_id = $2 AND NOT is_deleted`

func (q *Queries) SoftDeleteOrderItem(ctx context.Context, arg SoftDeleteOrderItemParams) (int64, error) {
	tag, err := q.db.Exec(ctx, softDeleteOrderItem, arg.ID, arg.OrderID)
	return tag.RowsAffected(), err
}

const softDeleteOrder = `UPDATE orders
SET is_deleted = TRUE
WHERE id = $1 AND NOT is_deleted`

func (q *Queries) SoftDeleteOrder(ctx context.Context, id int64) (int64, error) {
	tag, err := q.db.Exec(ctx, softDeleteOrder, id)
	return tag.RowsAffected(), err
}

const softDeleteOrderItemsByOrder = `UPDATE order_items
SET is_deleted = TRUE
WHERE order_id = $1 AND NOT is_deleted`

func (q *Queries) SoftDeleteOrderItemsByOrder(ctx context.Context, orderID int64) (int64, error) {
	tag, err := q.db.Exec(ctx, softDeleteOrderItemsByOrder, orderID)
	return tag.RowsAffected(), err
}

type MarkItemDeliveredParams struct {
	ID                int64
	OrderID           int64
	DeliveredQuantity int32
}

// Guarded in SQL: zero rows affected means the line is missing, deleted, or
// the requested delivered quantity exceeds the ordered quantity.
const markItemDelivered = `UPDATE order_items
SET delivered_quantity = $3
WHERE id = $1 AND order_id = $2 AND NOT is_deleted AND $3 <= quantity`

func (q *Queries) MarkItemDelivered(ctx context.Context, arg MarkItemDeliveredParams) (int64, error) {
	tag, err := q.db.Exec(ctx, markItemDelivered, arg.ID, arg.OrderID, arg.DeliveredQuantity)
	return tag.RowsAffected(), err
}

type OrderItemTotals struct {
	Subtotal decimal.Decimal
	Profit   decimal.Decimal
}

const sumActiveOrderItems = `SELECT
	COALESCE(SUM(line_total), 0), COALESCE(SUM(profit), 0)
FROM order_items
WHERE order_id = $1 AND NOT is_deleted`

func (q *Queries) SumActiveOrderItems(ctx context.Context, orderID int64) (OrderItemTotals, error) {
	var t OrderItemTotals
	err := q.db.QueryRow(ctx, sumActiveOrderItems, orderID).Scan(&t.Subtotal, &t.Profit)
	return t, err
}

type UpdateOrderTotalsParams struct {
	ID          int64
	Subtotal    decimal.Decimal
	ProfitTotal decimal.Decimal
	Total       decimal.Decimal
}

// Discount and tax are intentionally not touched here; they belong to an
// external promotions concern and only feed the total.
const updateOrderTotals = `UPDATE orders
SET subtotal = $2, profit_total = $3, total = $4
WHERE id = $1 AND NOT is_deleted
RETURNING ` + orderColumns

func (q *Queries) UpdateOrderTotals(ctx context.Context, arg UpdateOrderTotalsParams) (Order, error) {
	row := q.db.QueryRow(ctx, updateOrderTotals, arg.ID, arg.Subtotal, arg.ProfitTotal, arg.Total)
	return scanOrder(row)
}

type UpdateDeliveryStatusParams struct {
	ID                     int64
	DeliveryStatus         string
	ExpectedDeliveryStatus string
}

// The expected-status predicate turns a read-then-write race between two
// staff terminals into zero rows affected instead of a silent overwrite.
const updateDeliveryStatus = `UPDATE orders
SET delivery_status = $2
WHERE id = $1 AND delivery_status = $3 AND status = 'open' AND NOT is_deleted
RETURNING ` + orderColumns

func (q *Queries) UpdateDeliveryStatus(ctx context.Context, arg UpdateDeliveryStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx, updateDeliveryStatus, arg.ID, arg.DeliveryStatus, arg.ExpectedDeliveryStatus)
	return scanOrder(row)
}

const closeOrder = `UPDATE orders
SET status = 'closed', closed_at = now()
WHERE id = $1 AND status = 'open' AND NOT is_deleted
RETURNING ` + orderColumns

func (q *Queries) CloseOrder(ctx context.Context, id int64) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, closeOrder, id))
}
