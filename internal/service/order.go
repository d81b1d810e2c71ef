package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/tabletab-pos/api/internal/enum"
	"github.com/tabletab-pos/api/internal/inventory"
	"github.com/tabletab-pos/api/internal/menu"
	"github.com/tabletab-pos/api/internal/store"
)

// DB is the connection surface the service needs: plain queries for reads
// plus transactions for multi-row writes. Satisfied by *pgxpool.Pool.
type DB interface {
	store.DBTX
	store.TxBeginner
}

// OrderStore defines the DB methods the order service needs.
// Satisfied by *store.Queries (and its WithTx variant).
type OrderStore interface {
	CreateOrder(ctx context.Context, arg store.CreateOrderParams) (store.Order, error)
	CreateOrderItem(ctx context.Context, arg store.CreateOrderItemParams) (store.OrderItem, error)
	GetOrder(ctx context.Context, id int64) (store.Order, error)
	GetOrderItem(ctx context.Context, arg store.GetOrderItemParams) (store.OrderItem, error)
	ListOrderItems(ctx context.Context, orderID int64) ([]store.OrderItem, error)
	UpdateOrderItem(ctx context.Context, arg store.UpdateOrderItemParams) (store.OrderItem, error)
	SoftDeleteOrderItem(ctx context.Context, arg store.SoftDeleteOrderItemParams) (int64, error)
	SoftDeleteOrder(ctx context.Context, id int64) (int64, error)
	SoftDeleteOrderItemsByOrder(ctx context.Context, orderID int64) (int64, error)
	MarkItemDelivered(ctx context.Context, arg store.MarkItemDeliveredParams) (int64, error)
	SumActiveOrderItems(ctx context.Context, orderID int64) (store.OrderItemTotals, error)
	UpdateOrderTotals(ctx context.Context, arg store.UpdateOrderTotalsParams) (store.Order, error)
	UpdateDeliveryStatus(ctx context.Context, arg store.UpdateDeliveryStatusParams) (store.Order, error)
	CloseOrder(ctx context.Context, id int64) (store.Order, error)
	CreateOrderLog(ctx context.Context, arg store.CreateOrderLogParams) (store.OrderLog, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
// This allows the service to create store instances from transactions.
type NewOrderStore func(db store.DBTX) OrderStore

// PricingResolver reads live menu state for pricing order lines.
// Satisfied by *menu.Resolver.
type PricingResolver interface {
	ResolveMenuItem(ctx context.Context, id uuid.UUID) (menu.ItemSnapshot, error)
	ResolveCombo(ctx context.Context, id uuid.UUID) (menu.ComboSnapshot, error)
	ResolveComboItems(ctx context.Context, comboID uuid.UUID) ([]menu.ComboComponent, error)
	ModifierDelta(ctx context.Context, menuItemID uuid.UUID, optionIDs []uuid.UUID) (decimal.Decimal, error)
	ValidateComboAvailability(ctx context.Context, comboID uuid.UUID) (bool, error)
}

// CreateOrderRequest is the validated input for creating an order.
type CreateOrderRequest struct {
	SessionID     uuid.UUID
	TableID       int32
	BillingID     *int64
	ServerID      uuid.UUID
	DiscountTotal string
	TaxTotal      string
	Items         []OrderItemRequest
}

// OrderItemRequest is a single line in the order. Exactly one of MenuItemID
// and ComboID must be set; modifiers apply to menu items only.
type OrderItemRequest struct {
	MenuItemID   string
	ComboID      string
	Quantity     int32
	LineDiscount string
	ModifierIDs  []string
}

// OrderResult is an order together with its active lines.
type OrderResult struct {
	Order store.Order
	Items []store.OrderItem
}

// OrderService orchestrates the order lifecycle: pricing lines from live
// menu state, gating on inventory, persisting atomically, deducting stock,
// and compensating when the deduction fails after commit.
type OrderService struct {
	db       DB
	newStore NewOrderStore
	menu     PricingResolver
	stock    inventory.Client
}

// NewOrderService creates a new OrderService.
func NewOrderService(db DB, newStore NewOrderStore, resolver PricingResolver, stock inventory.Client) *OrderService {
	return &OrderService{db: db, newStore: newStore, menu: resolver, stock: stock}
}

// pricedLine holds one order line priced from a fresh menu snapshot,
// together with the inventory movements it implies.
type pricedLine struct {
	params  store.CreateOrderItemParams
	checks  []inventory.Line
	deducts []inventory.DeductLine
}

// CreateOrder prices the requested lines against live menu state, checks
// stock, persists the order atomically, then deducts inventory. A deduction
// failure after commit soft-deletes the order again and leaves an audit
// trail, so the caller sees the order either fully placed or not at all.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderResult, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	discountTotal, err := parseAmount(req.DiscountTotal)
	if err != nil {
		return nil, fmt.Errorf("discount_total: %w", ErrInvalidAmount)
	}
	taxTotal, err := parseAmount(req.TaxTotal)
	if err != nil {
		return nil, fmt.Errorf("tax_total: %w", ErrInvalidAmount)
	}

	lines, err := s.priceLines(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	subtotal := decimal.Zero
	profitTotal := decimal.Zero
	var checks []inventory.Line
	var deducts []inventory.DeductLine
	for _, l := range lines {
		subtotal = subtotal.Add(l.params.LineTotal)
		profitTotal = profitTotal.Add(l.params.Profit)
		checks = append(checks, l.checks...)
		deducts = append(deducts, l.deducts...)
	}

	total := subtotal.Sub(discountTotal).Add(taxTotal)
	if total.IsNegative() {
		return nil, ErrDiscountExceedsTotal
	}

	if err := s.checkStock(ctx, checks); err != nil {
		return nil, err
	}

	billingID := pgtype.Int8{}
	if req.BillingID != nil {
		billingID = pgtype.Int8{Int64: *req.BillingID, Valid: true}
	}

	var result OrderResult
	err = s.inTx(ctx, func(q OrderStore) error {
		order, err := q.CreateOrder(ctx, store.CreateOrderParams{
			SessionID:      req.SessionID,
			BillingID:      billingID,
			TableID:        req.TableID,
			Status:         enum.OrderStatusOpen,
			DeliveryStatus: enum.DeliveryStatusPending,
			Subtotal:       subtotal,
			DiscountTotal:  discountTotal,
			TaxTotal:       taxTotal,
			Total:          total,
			ProfitTotal:    profitTotal,
		})
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		items := make([]store.OrderItem, 0, len(lines))
		for i, l := range lines {
			l.params.OrderID = order.ID
			item, err := q.CreateOrderItem(ctx, l.params)
			if err != nil {
				return fmt.Errorf("create order item[%d]: %w", i, err)
			}
			items = append(items, item)
		}

		if err := s.logAction(ctx, q, order.ID, enum.ActionOrderCreated, req.ServerID, nil, orderPayload(order)); err != nil {
			return err
		}

		result = OrderResult{Order: order, Items: items}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.deductStock(ctx, result.Order.ID, req.ServerID, deducts); err != nil {
		s.compensateCreate(ctx, result.Order.ID, req.ServerID, err)
		return nil, err
	}

	return &result, nil
}

// AddItems prices and appends lines to an open order, recalculating totals
// in the same transaction. Deduction failure soft-deletes only the lines
// added by this call.
func (s *OrderService) AddItems(ctx context.Context, orderID int64, serverID uuid.UUID, items []OrderItemRequest) (*OrderResult, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}

	order, err := s.openOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	lines, err := s.priceLines(ctx, items)
	if err != nil {
		return nil, err
	}

	var checks []inventory.Line
	var deducts []inventory.DeductLine
	for _, l := range lines {
		checks = append(checks, l.checks...)
		deducts = append(deducts, l.deducts...)
	}

	if err := s.checkStock(ctx, checks); err != nil {
		return nil, err
	}

	var result OrderResult
	var addedIDs []int64
	err = s.inTx(ctx, func(q OrderStore) error {
		created := make([]store.OrderItem, 0, len(lines))
		for i, l := range lines {
			l.params.OrderID = orderID
			item, err := q.CreateOrderItem(ctx, l.params)
			if err != nil {
				return fmt.Errorf("create order item[%d]: %w", i, err)
			}
			created = append(created, item)
			addedIDs = append(addedIDs, item.ID)
		}

		updated, err := s.recalcTotals(ctx, q, order)
		if err != nil {
			return err
		}

		if err := s.logAction(ctx, q, orderID, enum.ActionItemsAdded, serverID, orderTotalsPayload(order), orderTotalsPayload(updated)); err != nil {
			return err
		}

		result = OrderResult{Order: updated, Items: created}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.deductStock(ctx, orderID, serverID, deducts); err != nil {
		s.compensateAddItems(ctx, orderID, serverID, addedIDs, err)
		return nil, err
	}

	return &result, nil
}

// UpdateItemRequest changes the quantity or discount of an existing line.
// Pricing fields stay frozen at the values captured when the line was added.
type UpdateItemRequest struct {
	OrderID      int64
	ItemID       int64
	ServerID     uuid.UUID
	Quantity     int32
	LineDiscount string
}

// UpdateItem recomputes the line from its frozen unit price and the new
// quantity. A quantity increase on a stock-tracked line checks and deducts
// the difference; decreases never restock.
func (s *OrderService) UpdateItem(ctx context.Context, req UpdateItemRequest) (*OrderResult, error) {
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	discount, err := parseAmount(req.LineDiscount)
	if err != nil {
		return nil, fmt.Errorf("line_discount: %w", ErrInvalidAmount)
	}

	order, err := s.openOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	qs := s.newStore(s.db)
	item, err := qs.GetOrderItem(ctx, store.GetOrderItemParams{ID: req.ItemID, OrderID: req.OrderID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("get order item: %w", err)
	}

	if req.Quantity < item.DeliveredQuantity {
		return nil, ErrDeliveredExceedsQuantity
	}

	unit := item.BasePrice.Add(item.PriceDelta)
	lineTotal := unit.Mul(decimal.NewFromInt32(req.Quantity)).Sub(discount)
	if lineTotal.IsNegative() {
		return nil, ErrDiscountExceedsLine
	}
	profit := lineTotal.Sub(item.VendorPrice.Mul(decimal.NewFromInt32(req.Quantity)))

	// Quantity growth needs stock for the extra units, but only on tracked
	// lines. Tracking lives on the catalog row, not the frozen snapshot, so
	// the line's source item is re-resolved before touching inventory.
	var deducts []inventory.DeductLine
	if delta := req.Quantity - item.Quantity; delta > 0 {
		extra, err := s.stockLinesForDelta(ctx, item, delta)
		if err != nil {
			return nil, err
		}
		var checks []inventory.Line
		for _, d := range extra {
			checks = append(checks, inventory.Line{ItemID: d.ItemID, SKU: d.SKU, Quantity: d.Quantity})
		}
		if err := s.checkStock(ctx, checks); err != nil {
			return nil, err
		}
		deducts = extra
	}

	var result OrderResult
	err = s.inTx(ctx, func(q OrderStore) error {
		updated, err := q.UpdateOrderItem(ctx, store.UpdateOrderItemParams{
			ID:           req.ItemID,
			OrderID:      req.OrderID,
			Quantity:     req.Quantity,
			LineDiscount: discount,
			LineTotal:    lineTotal,
			Profit:       profit,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrItemNotFound
			}
			return fmt.Errorf("update order item: %w", err)
		}

		newOrder, err := s.recalcTotals(ctx, q, order)
		if err != nil {
			return err
		}

		if err := s.logAction(ctx, q, req.OrderID, enum.ActionItemUpdated, req.ServerID, itemPayload(item), itemPayload(updated)); err != nil {
			return err
		}

		result = OrderResult{Order: newOrder, Items: []store.OrderItem{updated}}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.deductStock(ctx, req.OrderID, req.ServerID, deducts); err != nil {
		s.compensateUpdate(ctx, req.OrderID, req.ServerID, item, err)
		return nil, err
	}

	return &result, nil
}

// RemoveItem soft-deletes a line and recalculates totals. Stock already
// deducted for the line is not returned; restocking is an inventory-side
// decision made by staff.
func (s *OrderService) RemoveItem(ctx context.Context, orderID, itemID int64, serverID uuid.UUID) (*OrderResult, error) {
	order, err := s.openOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var result OrderResult
	err = s.inTx(ctx, func(q OrderStore) error {
		item, err := q.GetOrderItem(ctx, store.GetOrderItemParams{ID: itemID, OrderID: orderID})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrItemNotFound
			}
			return fmt.Errorf("get order item: %w", err)
		}

		n, err := q.SoftDeleteOrderItem(ctx, store.SoftDeleteOrderItemParams{ID: itemID, OrderID: orderID})
		if err != nil {
			return fmt.Errorf("delete order item: %w", err)
		}
		if n == 0 {
			return ErrItemNotFound
		}

		updated, err := s.recalcTotals(ctx, q, order)
		if err != nil {
			return err
		}

		if err := s.logAction(ctx, q, orderID, enum.ActionItemRemoved, serverID, itemPayload(item), nil); err != nil {
			return err
		}

		result = OrderResult{Order: updated}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// priceLines resolves every requested line against live menu state and
// freezes the snapshots into insert params.
func (s *OrderService) priceLines(ctx context.Context, items []OrderItemRequest) ([]pricedLine, error) {
	lines := make([]pricedLine, 0, len(items))
	for i, item := range items {
		l, err := s.priceLine(ctx, item)
		if err != nil {
			return nil, fmt.Errorf("item[%d]: %w", i, err)
		}
		lines = append(lines, l)
	}
	return lines, nil
}

func (s *OrderService) priceLine(ctx context.Context, req OrderItemRequest) (pricedLine, error) {
	if req.Quantity <= 0 {
		return pricedLine{}, ErrInvalidQuantity
	}
	if (req.MenuItemID == "") == (req.ComboID == "") {
		return pricedLine{}, ErrItemRef
	}

	discount, err := parseAmount(req.LineDiscount)
	if err != nil {
		return pricedLine{}, fmt.Errorf("line_discount: %w", ErrInvalidAmount)
	}

	if req.ComboID != "" {
		return s.priceComboLine(ctx, req, discount)
	}
	return s.priceMenuItemLine(ctx, req, discount)
}

func (s *OrderService) priceMenuItemLine(ctx context.Context, req OrderItemRequest, discount decimal.Decimal) (pricedLine, error) {
	id, err := uuid.Parse(req.MenuItemID)
	if err != nil {
		return pricedLine{}, ErrInvalidMenuItemID
	}

	snap, err := s.menu.ResolveMenuItem(ctx, id)
	if err != nil {
		return pricedLine{}, err
	}
	if !snap.IsAvailable {
		return pricedLine{}, &ItemUnavailableError{Name: snap.Name}
	}
	if !snap.IsDiscountable && discount.IsPositive() {
		return pricedLine{}, ErrNotDiscountable
	}

	delta := decimal.Zero
	if len(req.ModifierIDs) > 0 {
		optionIDs := make([]uuid.UUID, 0, len(req.ModifierIDs))
		for _, raw := range req.ModifierIDs {
			oid, err := uuid.Parse(raw)
			if err != nil {
				return pricedLine{}, ErrInvalidModifierID
			}
			optionIDs = append(optionIDs, oid)
		}
		// Options from other items' groups are dropped by the resolver
		// rather than rejected; the delta covers only valid options.
		delta, err = s.menu.ModifierDelta(ctx, id, optionIDs)
		if err != nil {
			return pricedLine{}, fmt.Errorf("modifier delta: %w", err)
		}
	}

	qty := decimal.NewFromInt32(req.Quantity)
	lineTotal := snap.Price.Add(delta).Mul(qty).Sub(discount)
	if lineTotal.IsNegative() {
		return pricedLine{}, ErrDiscountExceedsLine
	}
	profit := lineTotal.Sub(snap.VendorPrice.Mul(qty))

	l := pricedLine{params: store.CreateOrderItemParams{
		MenuItemID:   pgtype.UUID{Bytes: snap.ID, Valid: true},
		Quantity:     req.Quantity,
		BasePrice:    snap.Price,
		VendorPrice:  snap.VendorPrice,
		PriceDelta:   delta,
		LineDiscount: discount,
		LineTotal:    lineTotal,
		Profit:       profit,
		Name:         snap.Name,
		Sku:          snap.Sku,
		Category:     snap.Category,
		ItemGroup:    snap.ItemGroup,
		Version:      snap.Version,
		Picture:      snap.Picture,
	}}

	if snap.Tracked() {
		invID := uuid.UUID(snap.InventoryItemID.Bytes)
		cost := snap.VendorPrice
		l.checks = append(l.checks, inventory.Line{ItemID: invID, Quantity: req.Quantity})
		l.deducts = append(l.deducts, inventory.DeductLine{ItemID: invID, Quantity: req.Quantity, UnitCost: &cost})
	}
	return l, nil
}

func (s *OrderService) priceComboLine(ctx context.Context, req OrderItemRequest, discount decimal.Decimal) (pricedLine, error) {
	if len(req.ModifierIDs) > 0 {
		return pricedLine{}, ErrComboModifiers
	}

	id, err := uuid.Parse(req.ComboID)
	if err != nil {
		return pricedLine{}, ErrInvalidComboID
	}

	snap, err := s.menu.ResolveCombo(ctx, id)
	if err != nil {
		return pricedLine{}, err
	}
	ok, err := s.menu.ValidateComboAvailability(ctx, id)
	if err != nil {
		return pricedLine{}, fmt.Errorf("combo availability: %w", err)
	}
	if !ok {
		return pricedLine{}, &ComboUnavailableError{Name: snap.Name}
	}
	if !snap.IsDiscountable && discount.IsPositive() {
		return pricedLine{}, ErrNotDiscountable
	}

	qty := decimal.NewFromInt32(req.Quantity)
	lineTotal := snap.Price.Mul(qty).Sub(discount)
	if lineTotal.IsNegative() {
		return pricedLine{}, ErrDiscountExceedsLine
	}
	profit := lineTotal.Sub(snap.VendorPrice.Mul(qty))

	l := pricedLine{params: store.CreateOrderItemParams{
		ComboID:      pgtype.UUID{Bytes: snap.ID, Valid: true},
		Quantity:     req.Quantity,
		BasePrice:    snap.Price,
		VendorPrice:  snap.VendorPrice,
		PriceDelta:   decimal.Zero,
		LineDiscount: discount,
		LineTotal:    lineTotal,
		Profit:       profit,
		Name:         snap.Name,
		Sku:          snap.Sku,
		Category:     snap.Category,
		ItemGroup:    snap.ItemGroup,
		Version:      snap.Version,
		Picture:      snap.Picture,
	}}

	// A combo deducts its component items, each multiplied by the combo
	// quantity. Untracked components are skipped.
	components, err := s.menu.ResolveComboItems(ctx, id)
	if err != nil {
		return pricedLine{}, fmt.Errorf("combo components: %w", err)
	}
	for _, c := range components {
		if !c.InventoryItemID.Valid {
			continue
		}
		invID := uuid.UUID(c.InventoryItemID.Bytes)
		n := c.Quantity * req.Quantity
		l.checks = append(l.checks, inventory.Line{ItemID: invID, Quantity: n})
		l.deducts = append(l.deducts, inventory.DeductLine{ItemID: invID, Quantity: n})
	}
	return l, nil
}

// stockLinesForDelta builds the deduction for a quantity increase on an
// existing line. Combo lines explode into current component items; menu-item
// lines deduct only when the catalog row is still inventory-tracked.
func (s *OrderService) stockLinesForDelta(ctx context.Context, item store.OrderItem, delta int32) ([]inventory.DeductLine, error) {
	if item.ComboID.Valid {
		components, err := s.menu.ResolveComboItems(ctx, uuid.UUID(item.ComboID.Bytes))
		if err != nil {
			return nil, fmt.Errorf("combo components: %w", err)
		}
		var lines []inventory.DeductLine
		for _, c := range components {
			if !c.InventoryItemID.Valid {
				continue
			}
			lines = append(lines, inventory.DeductLine{
				ItemID:   uuid.UUID(c.InventoryItemID.Bytes),
				Quantity: c.Quantity * delta,
			})
		}
		return lines, nil
	}

	if !item.MenuItemID.Valid {
		return nil, nil
	}
	snap, err := s.menu.ResolveMenuItem(ctx, uuid.UUID(item.MenuItemID.Bytes))
	if errors.Is(err, menu.ErrMenuItemNotFound) {
		// Catalog row gone; tracking can no longer be established.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve menu item: %w", err)
	}
	if !snap.Tracked() {
		return nil, nil
	}

	cost := item.VendorPrice
	return []inventory.DeductLine{{
		ItemID:   uuid.UUID(snap.InventoryItemID.Bytes),
		Quantity: delta,
		UnitCost: &cost,
	}}, nil
}

// checkStock asks the inventory service whether every line can be served.
// A definitive "no" and a transport failure are distinct errors.
func (s *OrderService) checkStock(ctx context.Context, lines []inventory.Line) error {
	if len(lines) == 0 {
		return nil
	}
	result, err := s.stock.CheckAvailability(ctx, lines)
	if err != nil {
		return &RemoteError{Op: "check", Err: err}
	}
	if !result.OK {
		return &InsufficientStockError{Shortages: result.Insufficient}
	}
	return nil
}

func (s *OrderService) deductStock(ctx context.Context, orderID int64, serverID uuid.UUID, lines []inventory.DeductLine) error {
	if len(lines) == 0 {
		return nil
	}
	if err := s.stock.Deduct(ctx, orderID, serverID, lines); err != nil {
		return &RemoteError{Op: "deduct", Err: err}
	}
	return nil
}

// compensateCreate undoes a freshly committed order whose stock deduction
// failed. The order and its lines are soft-deleted and the compensation is
// audited; if the compensating transaction itself fails there is nothing
// left to do but log it for manual reconciliation.
func (s *OrderService) compensateCreate(ctx context.Context, orderID int64, serverID uuid.UUID, cause error) {
	err := s.inTx(ctx, func(q OrderStore) error {
		if _, err := q.SoftDeleteOrderItemsByOrder(ctx, orderID); err != nil {
			return fmt.Errorf("delete order items: %w", err)
		}
		if _, err := q.SoftDeleteOrder(ctx, orderID); err != nil {
			return fmt.Errorf("delete order: %w", err)
		}
		return s.logAction(ctx, q, orderID, enum.ActionStockCompensation, serverID, nil, compensationPayload("order_voided", cause))
	})
	if err != nil {
		log.Printf("ERROR: compensate order %d after failed deduction: %v", orderID, err)
	}
}

// compensateAddItems removes only the lines added by the failed call.
func (s *OrderService) compensateAddItems(ctx context.Context, orderID int64, serverID uuid.UUID, itemIDs []int64, cause error) {
	err := s.inTx(ctx, func(q OrderStore) error {
		for _, id := range itemIDs {
			if _, err := q.SoftDeleteOrderItem(ctx, store.SoftDeleteOrderItemParams{ID: id, OrderID: orderID}); err != nil {
				return fmt.Errorf("delete order item %d: %w", id, err)
			}
		}
		order, err := q.GetOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("get order: %w", err)
		}
		if _, err := s.recalcTotals(ctx, q, order); err != nil {
			return err
		}
		return s.logAction(ctx, q, orderID, enum.ActionStockCompensation, serverID, nil, compensationPayload("items_voided", cause))
	})
	if err != nil {
		log.Printf("ERROR: compensate order %d items after failed deduction: %v", orderID, err)
	}
}

// compensateUpdate restores a line to its pre-update state.
func (s *OrderService) compensateUpdate(ctx context.Context, orderID int64, serverID uuid.UUID, prev store.OrderItem, cause error) {
	err := s.inTx(ctx, func(q OrderStore) error {
		if _, err := q.UpdateOrderItem(ctx, store.UpdateOrderItemParams{
			ID:           prev.ID,
			OrderID:      orderID,
			Quantity:     prev.Quantity,
			LineDiscount: prev.LineDiscount,
			LineTotal:    prev.LineTotal,
			Profit:       prev.Profit,
		}); err != nil {
			return fmt.Errorf("restore order item %d: %w", prev.ID, err)
		}
		order, err := q.GetOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("get order: %w", err)
		}
		if _, err := s.recalcTotals(ctx, q, order); err != nil {
			return err
		}
		return s.logAction(ctx, q, orderID, enum.ActionStockCompensation, serverID, nil, compensationPayload("item_restored", cause))
	})
	if err != nil {
		log.Printf("ERROR: compensate order %d item %d after failed deduction: %v", orderID, prev.ID, err)
	}
}

// openOrder loads an order and rejects mutations on closed or missing ones.
func (s *OrderService) openOrder(ctx context.Context, orderID int64) (store.Order, error) {
	q := s.newStore(s.db)
	order, err := q.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Order{}, ErrOrderNotFound
		}
		return store.Order{}, fmt.Errorf("get order: %w", err)
	}
	if order.Status != enum.OrderStatusOpen {
		return store.Order{}, ErrOrderClosed
	}
	return order, nil
}

// recalcTotals derives order totals from the active lines, preserving the
// order's discount and tax. Runs as the last write of every item-mutating
// transaction so committed totals always match the lines.
func (s *OrderService) recalcTotals(ctx context.Context, q OrderStore, order store.Order) (store.Order, error) {
	sums, err := q.SumActiveOrderItems(ctx, order.ID)
	if err != nil {
		return store.Order{}, fmt.Errorf("sum order items: %w", err)
	}
	total := sums.Subtotal.Sub(order.DiscountTotal).Add(order.TaxTotal)
	updated, err := q.UpdateOrderTotals(ctx, store.UpdateOrderTotalsParams{
		ID:          order.ID,
		Subtotal:    sums.Subtotal,
		ProfitTotal: sums.Profit,
		Total:       total,
	})
	if err != nil {
		return store.Order{}, fmt.Errorf("update order totals: %w", err)
	}
	return updated, nil
}

// inTx runs fn against a store bound to a single transaction.
func (s *OrderService) inTx(ctx context.Context, fn func(q OrderStore) error) error {
	return store.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		return fn(s.newStore(tx))
	})
}

func (s *OrderService) logAction(ctx context.Context, q OrderStore, orderID int64, action string, serverID uuid.UUID, oldValue, newValue any) error {
	oldJSON, err := marshalPayload(oldValue)
	if err != nil {
		return err
	}
	newJSON, err := marshalPayload(newValue)
	if err != nil {
		return err
	}

	sid := pgtype.UUID{}
	if serverID != uuid.Nil {
		sid = pgtype.UUID{Bytes: serverID, Valid: true}
	}

	if _, err := q.CreateOrderLog(ctx, store.CreateOrderLogParams{
		OrderID:  orderID,
		Action:   action,
		OldValue: oldJSON,
		NewValue: newJSON,
		ServerID: sid,
	}); err != nil {
		return fmt.Errorf("create order log: %w", err)
	}
	return nil
}

func marshalPayload(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal log payload: %w", err)
	}
	return b, nil
}

func orderPayload(o store.Order) map[string]any {
	return map[string]any{
		"session_id":      o.SessionID,
		"table_id":        o.TableID,
		"status":          o.Status,
		"delivery_status": o.DeliveryStatus,
		"subtotal":        o.Subtotal.StringFixed(2),
		"discount_total":  o.DiscountTotal.StringFixed(2),
		"tax_total":       o.TaxTotal.StringFixed(2),
		"total":           o.Total.StringFixed(2),
	}
}

func orderTotalsPayload(o store.Order) map[string]any {
	return map[string]any{
		"subtotal":     o.Subtotal.StringFixed(2),
		"total":        o.Total.StringFixed(2),
		"profit_total": o.ProfitTotal.StringFixed(2),
	}
}

func itemPayload(i store.OrderItem) map[string]any {
	return map[string]any{
		"name":          i.Name,
		"quantity":      i.Quantity,
		"line_discount": i.LineDiscount.StringFixed(2),
		"line_total":    i.LineTotal.StringFixed(2),
	}
}

func compensationPayload(action string, cause error) map[string]any {
	return map[string]any{
		"action": action,
		"cause":  cause.Error(),
	}
}

// parseAmount parses an optional non-negative money amount; empty means zero.
func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if d.IsNegative() {
		return decimal.Decimal{}, errors.New("negative amount")
	}
	return d, nil
}
