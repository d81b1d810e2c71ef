package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/tabletab-pos/api/internal/enum"
	"github.com/tabletab-pos/api/internal/inventory"
	"github.com/tabletab-pos/api/internal/menu"
	"github.com/tabletab-pos/api/internal/store"
)

// --- Mock implementations ---

// mockTx implements pgx.Tx with only the methods we need.
// The unused methods panic so we catch accidental calls.
type mockTx struct {
	commitErr error
	commits   int
	rollbacks int
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error {
	m.commits++
	return m.commitErr
}
func (m *mockTx) Rollback(ctx context.Context) error {
	m.rollbacks++
	return nil
}
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *mockTx) Conn() *pgx.Conn { panic("not implemented") }

// mockDB implements DB. Query methods panic: reads and writes go through
// the mocked OrderStore, never raw SQL.
type mockDB struct {
	tx     *mockTx
	begins int
}

func (m *mockDB) Begin(ctx context.Context) (pgx.Tx, error) {
	m.begins++
	return m.tx, nil
}
func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}

// mockOrderStore implements OrderStore with configurable behavior.
type mockOrderStore struct {
	createOrderFn            func(ctx context.Context, arg store.CreateOrderParams) (store.Order, error)
	createOrderItemFn        func(ctx context.Context, arg store.CreateOrderItemParams) (store.OrderItem, error)
	getOrderFn               func(ctx context.Context, id int64) (store.Order, error)
	getOrderItemFn           func(ctx context.Context, arg store.GetOrderItemParams) (store.OrderItem, error)
	listOrderItemsFn         func(ctx context.Context, orderID int64) ([]store.OrderItem, error)
	updateOrderItemFn        func(ctx context.Context, arg store.UpdateOrderItemParams) (store.OrderItem, error)
	softDeleteOrderItemFn    func(ctx context.Context, arg store.SoftDeleteOrderItemParams) (int64, error)
	softDeleteOrderFn        func(ctx context.Context, id int64) (int64, error)
	softDeleteItemsByOrderFn func(ctx context.Context, orderID int64) (int64, error)
	markItemDeliveredFn      func(ctx context.Context, arg store.MarkItemDeliveredParams) (int64, error)
	sumActiveOrderItemsFn    func(ctx context.Context, orderID int64) (store.OrderItemTotals, error)
	updateOrderTotalsFn      func(ctx context.Context, arg store.UpdateOrderTotalsParams) (store.Order, error)
	updateDeliveryStatusFn   func(ctx context.Context, arg store.UpdateDeliveryStatusParams) (store.Order, error)
	closeOrderFn             func(ctx context.Context, id int64) (store.Order, error)

	// logged collects audit actions in call order.
	logged []string
}

func (m *mockOrderStore) CreateOrder(ctx context.Context, arg store.CreateOrderParams) (store.Order, error) {
	return m.createOrderFn(ctx, arg)
}
func (m *mockOrderStore) CreateOrderItem(ctx context.Context, arg store.CreateOrderItemParams) (store.OrderItem, error) {
	return m.createOrderItemFn(ctx, arg)
}
func (m *mockOrderStore) GetOrder(ctx context.Context, id int64) (store.Order, error) {
	return m.getOrderFn(ctx, id)
}
func (m *mockOrderStore) GetOrderItem(ctx context.Context, arg store.GetOrderItemParams) (store.OrderItem, error) {
	return m.getOrderItemFn(ctx, arg)
}
func (m *mockOrderStore) ListOrderItems(ctx context.Context, orderID int64) ([]store.OrderItem, error) {
	return m.listOrderItemsFn(ctx, orderID)
}
func (m *mockOrderStore) UpdateOrderItem(ctx context.Context, arg store.UpdateOrderItemParams) (store.OrderItem, error) {
	return m.updateOrderItemFn(ctx, arg)
}
func (m *mockOrderStore) SoftDeleteOrderItem(ctx context.Context, arg store.SoftDeleteOrderItemParams) (int64, error) {
	return m.softDeleteOrderItemFn(ctx, arg)
}
func (m *mockOrderStore) SoftDeleteOrder(ctx context.Context, id int64) (int64, error) {
	return m.softDeleteOrderFn(ctx, id)
}
func (m *mockOrderStore) SoftDeleteOrderItemsByOrder(ctx context.Context, orderID int64) (int64, error) {
	return m.softDeleteItemsByOrderFn(ctx, orderID)
}
func (m *mockOrderStore) MarkItemDelivered(ctx context.Context, arg store.MarkItemDeliveredParams) (int64, error) {
	return m.markItemDeliveredFn(ctx, arg)
}
func (m *mockOrderStore) SumActiveOrderItems(ctx context.Context, orderID int64) (store.OrderItemTotals, error) {
	return m.sumActiveOrderItemsFn(ctx, orderID)
}
func (m *mockOrderStore) UpdateOrderTotals(ctx context.Context, arg store.UpdateOrderTotalsParams) (store.Order, error) {
	return m.updateOrderTotalsFn(ctx, arg)
}
func (m *mockOrderStore) UpdateDeliveryStatus(ctx context.Context, arg store.UpdateDeliveryStatusParams) (store.Order, error) {
	return m.updateDeliveryStatusFn(ctx, arg)
}
func (m *mockOrderStore) CloseOrder(ctx context.Context, id int64) (store.Order, error) {
	return m.closeOrderFn(ctx, id)
}
func (m *mockOrderStore) CreateOrderLog(ctx context.Context, arg store.CreateOrderLogParams) (store.OrderLog, error) {
	m.logged = append(m.logged, arg.Action)
	return store.OrderLog{ID: int64(len(m.logged)), OrderID: arg.OrderID, Action: arg.Action}, nil
}

// mockResolver implements PricingResolver.
type mockResolver struct {
	resolveMenuItemFn   func(ctx context.Context, id uuid.UUID) (menu.ItemSnapshot, error)
	resolveComboFn      func(ctx context.Context, id uuid.UUID) (menu.ComboSnapshot, error)
	resolveComboItemsFn func(ctx context.Context, comboID uuid.UUID) ([]menu.ComboComponent, error)
	modifierDeltaFn     func(ctx context.Context, menuItemID uuid.UUID, optionIDs []uuid.UUID) (decimal.Decimal, error)
	comboAvailableFn    func(ctx context.Context, comboID uuid.UUID) (bool, error)
}

func (m *mockResolver) ResolveMenuItem(ctx context.Context, id uuid.UUID) (menu.ItemSnapshot, error) {
	return m.resolveMenuItemFn(ctx, id)
}
func (m *mockResolver) ResolveCombo(ctx context.Context, id uuid.UUID) (menu.ComboSnapshot, error) {
	return m.resolveComboFn(ctx, id)
}
func (m *mockResolver) ResolveComboItems(ctx context.Context, comboID uuid.UUID) ([]menu.ComboComponent, error) {
	return m.resolveComboItemsFn(ctx, comboID)
}
func (m *mockResolver) ModifierDelta(ctx context.Context, menuItemID uuid.UUID, optionIDs []uuid.UUID) (decimal.Decimal, error) {
	return m.modifierDeltaFn(ctx, menuItemID, optionIDs)
}
func (m *mockResolver) ValidateComboAvailability(ctx context.Context, comboID uuid.UUID) (bool, error) {
	return m.comboAvailableFn(ctx, comboID)
}

// mockInventory implements inventory.Client.
type mockInventory struct {
	checkFn  func(ctx context.Context, lines []inventory.Line) (inventory.CheckResult, error)
	deductFn func(ctx context.Context, orderID int64, serverID uuid.UUID, lines []inventory.DeductLine) error

	checks  [][]inventory.Line
	deducts [][]inventory.DeductLine
}

func (m *mockInventory) CheckAvailability(ctx context.Context, lines []inventory.Line) (inventory.CheckResult, error) {
	m.checks = append(m.checks, lines)
	if m.checkFn != nil {
		return m.checkFn(ctx, lines)
	}
	return inventory.CheckResult{OK: true}, nil
}

func (m *mockInventory) Deduct(ctx context.Context, orderID int64, serverID uuid.UUID, lines []inventory.DeductLine) error {
	m.deducts = append(m.deducts, lines)
	if m.deductFn != nil {
		return m.deductFn(ctx, orderID, serverID, lines)
	}
	return nil
}

// --- Test helpers ---

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func newTestService(st *mockOrderStore, res *mockResolver, inv *mockInventory) (*OrderService, *mockDB) {
	db := &mockDB{tx: &mockTx{}}
	newStore := func(d store.DBTX) OrderStore { return st }
	return NewOrderService(db, newStore, res, inv), db
}

// defaultStore returns a mockOrderStore that echoes writes back. Individual
// tests override the functions they care about.
func defaultStore() *mockOrderStore {
	nextItemID := int64(100)
	return &mockOrderStore{
		createOrderFn: func(ctx context.Context, arg store.CreateOrderParams) (store.Order, error) {
			return store.Order{
				ID:             1,
				SessionID:      arg.SessionID,
				TableID:        arg.TableID,
				Status:         arg.Status,
				DeliveryStatus: arg.DeliveryStatus,
				Subtotal:       arg.Subtotal,
				DiscountTotal:  arg.DiscountTotal,
				TaxTotal:       arg.TaxTotal,
				Total:          arg.Total,
				ProfitTotal:    arg.ProfitTotal,
			}, nil
		},
		createOrderItemFn: func(ctx context.Context, arg store.CreateOrderItemParams) (store.OrderItem, error) {
			nextItemID++
			return store.OrderItem{
				ID:           nextItemID,
				OrderID:      arg.OrderID,
				MenuItemID:   arg.MenuItemID,
				ComboID:      arg.ComboID,
				Quantity:     arg.Quantity,
				BasePrice:    arg.BasePrice,
				VendorPrice:  arg.VendorPrice,
				PriceDelta:   arg.PriceDelta,
				LineDiscount: arg.LineDiscount,
				LineTotal:    arg.LineTotal,
				Profit:       arg.Profit,
				Name:         arg.Name,
				Sku:          arg.Sku,
				Version:      arg.Version,
			}, nil
		},
		getOrderFn: func(ctx context.Context, id int64) (store.Order, error) {
			return store.Order{ID: id, Status: enum.OrderStatusOpen, DeliveryStatus: enum.DeliveryStatusPending}, nil
		},
		sumActiveOrderItemsFn: func(ctx context.Context, orderID int64) (store.OrderItemTotals, error) {
			return store.OrderItemTotals{Subtotal: decimal.Zero, Profit: decimal.Zero}, nil
		},
		updateOrderTotalsFn: func(ctx context.Context, arg store.UpdateOrderTotalsParams) (store.Order, error) {
			return store.Order{
				ID:          arg.ID,
				Status:      enum.OrderStatusOpen,
				Subtotal:    arg.Subtotal,
				ProfitTotal: arg.ProfitTotal,
				Total:       arg.Total,
			}, nil
		},
		listOrderItemsFn: func(ctx context.Context, orderID int64) ([]store.OrderItem, error) {
			return nil, nil
		},
	}
}

// burger: $5.00 menu item with a $1.00 modifier option, tracked in inventory.
func burgerResolver(itemID, comboID, invID uuid.UUID) *mockResolver {
	return &mockResolver{
		resolveMenuItemFn: func(ctx context.Context, id uuid.UUID) (menu.ItemSnapshot, error) {
			if id != itemID {
				return menu.ItemSnapshot{}, menu.ErrMenuItemNotFound
			}
			return menu.ItemSnapshot{
				ID:              itemID,
				Name:            "Burger",
				Sku:             "BRG-01",
				Version:         3,
				Price:           dec("5.00"),
				VendorPrice:     dec("2.00"),
				IsAvailable:     true,
				IsDiscountable:  true,
				InventoryItemID: pgUUID(invID),
			}, nil
		},
		resolveComboFn: func(ctx context.Context, id uuid.UUID) (menu.ComboSnapshot, error) {
			if id != comboID {
				return menu.ComboSnapshot{}, menu.ErrComboNotFound
			}
			return menu.ComboSnapshot{
				ID:             comboID,
				Name:           "Lunch Set",
				Sku:            "SET-01",
				Price:          dec("10.00"),
				VendorPrice:    dec("4.00"),
				IsAvailable:    true,
				IsDiscountable: true,
			}, nil
		},
		resolveComboItemsFn: func(ctx context.Context, id uuid.UUID) ([]menu.ComboComponent, error) {
			return nil, nil
		},
		modifierDeltaFn: func(ctx context.Context, menuItemID uuid.UUID, optionIDs []uuid.UUID) (decimal.Decimal, error) {
			return dec("1.00"), nil
		},
		comboAvailableFn: func(ctx context.Context, id uuid.UUID) (bool, error) {
			return true, nil
		},
	}
}

// =====================
// Validation tests
// =====================

func TestCreateOrder_EmptyItems(t *testing.T) {
	svc, _ := newTestService(defaultStore(), &mockResolver{}, &mockInventory{})

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{SessionID: uuid.New()})
	if !errors.Is(err, ErrEmptyItems) {
		t.Fatalf("expected ErrEmptyItems, got: %v", err)
	}
}

func TestCreateOrder_ZeroQuantity(t *testing.T) {
	svc, _ := newTestService(defaultStore(), &mockResolver{}, &mockInventory{})

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		SessionID: uuid.New(),
		Items:     []OrderItemRequest{{MenuItemID: uuid.New().String(), Quantity: 0}},
	})
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got: %v", err)
	}
}

func TestCreateOrder_BothRefs(t *testing.T) {
	svc, _ := newTestService(defaultStore(), &mockResolver{}, &mockInventory{})

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		SessionID: uuid.New(),
		Items: []OrderItemRequest{
			{MenuItemID: uuid.New().String(), ComboID: uuid.New().String(), Quantity: 1},
		},
	})
	if !errors.Is(err, ErrItemRef) {
		t.Fatalf("expected ErrItemRef, got: %v", err)
	}
}

func TestCreateOrder_NeitherRef(t *testing.T) {
	svc, _ := newTestService(defaultStore(), &mockResolver{}, &mockInventory{})

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		SessionID: uuid.New(),
		Items:     []OrderItemRequest{{Quantity: 1}},
	})
	if !errors.Is(err, ErrItemRef) {
		t.Fatalf("expected ErrItemRef, got: %v", err)
	}
}

func TestCreateOrder_ModifiersOnCombo(t *testing.T) {
	itemID, comboID, invID := uuid.New(), uuid.New(), uuid.New()
	svc, _ := newTestService(defaultStore(), burgerResolver(itemID, comboID, invID), &mockInventory{})

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		SessionID: uuid.New(),
		Items: []OrderItemRequest{
			{ComboID: comboID.String(), Quantity: 1, ModifierIDs: []string{uuid.New().String()}},
		},
	})
	if !errors.Is(err, ErrComboModifiers) {
		t.Fatalf("expected ErrComboModifiers, got: %v", err)
	}
}

// =====================
// Pricing tests
// =====================

// Two burgers at $5.00 with a $1.00 modifier each, plus one $10.00 combo,
// with a $2.00 order discount and $1.50 tax: subtotal $22.00, total $21.50.
func TestCreateOrder_Totals(t *testing.T) {
	itemID, comboID, invID := uuid.New(), uuid.New(), uuid.New()
	st := defaultStore()

	var captured store.CreateOrderParams
	inner := st.createOrderFn
	st.createOrderFn = func(ctx context.Context, arg store.CreateOrderParams) (store.Order, error) {
		captured = arg
		return inner(ctx, arg)
	}

	svc, _ := newTestService(st, burgerResolver(itemID, comboID, invID), &mockInventory{})

	result, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		SessionID:     uuid.New(),
		ServerID:      uuid.New(),
		DiscountTotal: "2.00",
		TaxTotal:      "1.50",
		Items: []OrderItemRequest{
			{MenuItemID: itemID.String(), Quantity: 2, ModifierIDs: []string{uuid.New().String()}},
			{ComboID: comboID.String(), Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	if !captured.Subtotal.Equal(dec("22.00")) {
		t.Errorf("subtotal: got %s, want 22.00", captured.Subtotal)
	}
	if !captured.Total.Equal(dec("21.50")) {
		t.Errorf("total: got %s, want 21.50", captured.Total)
	}
	want := captured.Subtotal.Sub(captured.DiscountTotal).Add(captured.TaxTotal)
	if !captured.Total.Equal(want) {
		t.Errorf("total != subtotal - discount + tax: %s vs %s", captured.Total, want)
	}

	if len(result.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(result.Items))
	}
	// line_total = (base + delta) * qty - line_discount
	burger := result.Items[0]
	wantLine := burger.BasePrice.Add(burger.PriceDelta).
		Mul(decimal.NewFromInt32(burger.Quantity)).
		Sub(burger.LineDiscount)
	if !burger.LineTotal.Equal(wantLine) {
		t.Errorf("line total: got %s, want %s", burger.LineTotal, wantLine)
	}
	if !burger.LineTotal.Equal(dec("12.00")) {
		t.Errorf("burger line: got %s, want 12.00", burger.LineTotal)
	}
	if !result.Items[1].LineTotal.Equal(dec("10.00")) {
		t.Errorf("combo line: got %s, want 10.00", result.Items[1].LineTotal)
	}
}

func TestCreateOrder_FreezesSnapshot(t *testing.T) {
	itemID, comboID, invID := uuid.New(), uuid.New(), uuid.New()
	st := defaultStore()

	var captured store.CreateOrderItemParams
	inner := st.createOrderItemFn
	st.createOrderItemFn = func(ctx context.Context, arg store.CreateOrderItemParams) (store.OrderItem, error) {
		captured = arg
		return inner(ctx, arg)
	}

	svc, _ := newTestService(st, burgerResolver(itemID, comboID, invID), &mockInventory{})

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		SessionID: uuid.New(),
		Items:     []OrderItemRequest{{MenuItemID: itemID.String(), Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	if captured.Name != "Burger" || captured.Sku != "BRG-01" || captured.Version != 3 {
		t.Errorf("snapshot not frozen into line: %+v", captured)
	}
	if !captured.BasePrice.Equal(dec("5.00")) {
		t.Errorf("base price: got %s, want 5.00", captured.BasePrice)
	}
}

func TestCreateOrder_DiscountExceedsLine(t *testing.T) {
	itemID, comboID, invID := uuid.New(), uuid.New(), uuid.New()
	svc, _ := newTestService(defaultStore(), burgerResolver(itemID, comboID, invID), &mockInventory{})

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		SessionID: uuid.New(),
		Items: []OrderItemRequest{
			{MenuItemID: itemID.String(), Quantity: 1, LineDiscount: "100.00"},
		},
	})
	if !errors.Is(err, ErrDiscountExceedsLine) {
		t.Fatalf("expected ErrDiscountExceedsLine, got: %v", err)
	}
}

func TestCreateOrder_DiscountExceedsTotal(t *testing.T) {
	itemID, comboID, invID := uuid.New(), uuid.New(), uuid.New()
	svc, _ := newTestService(defaultStore(), burgerResolver(itemID, comboID, invID), &mockInventory{})

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		SessionID:     uuid.New(),
		DiscountTotal: "100.00",
		Items:         []OrderItemRequest{{MenuItemID: itemID.String(), Quantity: 1}},
	})
	if !errors.Is(err, ErrDiscountExceedsTotal) {
		t.Fatalf("expected ErrDiscountExceedsTotal, got: %v", err)
	}
}

// =====================
// Availability tests
// =====================

func TestCreateOrder_ItemUnavailable(t *testing.T) {
	itemID, comboID, invID := uuid.New(), uuid.New(), uuid.New()
	res := burgerResolver(itemID, comboID, invID)
	res.resolveMenuItemFn = func(ctx context.Context, id uuid.UUID) (menu.ItemSnapshot, error) {
		return menu.ItemSnapshot{Name: "Burger", IsAvailable: false}, nil
	}
	svc, db := newTestService(defaultStore(), res, &mockInventory{})

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		SessionID: uuid.New(),
		Items:     []OrderItemRequest{{MenuItemID: itemID.String(), Quantity: 1}},
	})
	var unavailable *ItemUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ItemUnavailableError, got: %v", err)
	}
	if db.begins != 0 {
		t.Error("no transaction should start for an unavailable item")
	}
}

func TestCreateOrder_ComboUnavailable(t *testing.T) {
	itemID, comboID, invID := uuid.New(), uuid.New(), uuid.New()
	res := burgerResolver(itemID, comboID, invID)
	res.comboAvailableFn = func(ctx context.Context, id uuid.UUID) (bool, error) {
		return false, nil
	}
	svc, _ := newTestService(defaultStore(), res, &mockInventory{})

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		SessionID: uuid.New(),
		Items:     []OrderItemRequest{{ComboID: comboID.String(), Quantity: 1}},
	})
	var unavailable *ComboUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ComboUnavailableError, got: %v", err)
	}
}

// =====================
// Inventory gating tests
// =====================

func TestCreateOrder_InsufficientStock(t *testing.T) {
	itemID, comboID, invID := uuid.New(), uuid.New(), uuid.New()
	inv := &mockInventory{
		checkFn: func(ctx context.Context, lines []inventory.Line) (inventory.CheckResult, error) {
			return inventory.CheckResult{
				OK:           false,
				Insufficient: []inventory.Shortage{{ItemID: invID, Have: dec("1"), Need: dec("2")}},
			}, nil
		},
	}
	svc, db := newTestService(defaultStore(), burgerResolver(itemID, comboID, invID), inv)

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		SessionID: uuid.New(),
		Items:     []OrderItemRequest{{MenuItemID: itemID.String(), Quantity: 2}},
	})
	var short *InsufficientStockError
	if !errors.As(err, &short) {
		t.Fatalf("expected InsufficientStockError, got: %v", err)
	}
	if len(short.Shortages) != 1 {
		t.Errorf("shortages: %+v", short.Shortages)
	}
	if db.begins != 0 {
		t.Error("order must not be persisted when stock check fails")
	}
	if len(inv.deducts) != 0 {
		t.Error("no deduction may happen when the check fails")
	}
}

func TestCreateOrder_CheckTransportFailure(t *testing.T) {
	itemID, comboID, invID := uuid.New(), uuid.New(), uuid.New()
	inv := &mockInventory{
		checkFn: func(ctx context.Context, lines []inventory.Line) (inventory.CheckResult, error) {
			return inventory.CheckResult{}, errors.New("connection refused")
		},
	}
	svc, db := newTestService(defaultStore(), burgerResolver(itemID, comboID, invID), inv)

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		SessionID: uuid.New(),
		Items:     []OrderItemRequest{{MenuItemID: itemID.String(), Quantity: 1}},
	})
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got: %v", err)
	}
	if db.begins != 0 {
		t.Error("order must not be persisted when the check cannot be made")
	}
}

func TestCreateOrder_DeductFailureCompensates(t *testing.T) {
	itemID, comboID, invID := uuid.New(), uuid.New(), uuid.New()
	st := defaultStore()

	var deletedOrder, deletedItems bool
	st.softDeleteOrderFn = func(ctx context.Context, id int64) (int64, error) {
		deletedOrder = true
		return 1, nil
	}
	st.softDeleteItemsByOrderFn = func(ctx context.Context, orderID int64) (int64, error) {
		deletedItems = true
		return 1, nil
	}

	inv := &mockInventory{
		deductFn: func(ctx context.Context, orderID int64, serverID uuid.UUID, lines []inventory.DeductLine) error {
			return errors.New("ledger locked")
		},
	}
	svc, _ := newTestService(st, burgerResolver(itemID, comboID, invID), inv)

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		SessionID: uuid.New(),
		ServerID:  uuid.New(),
		Items:     []OrderItemRequest{{MenuItemID: itemID.String(), Quantity: 1}},
	})
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got: %v", err)
	}
	if !deletedOrder || !deletedItems {
		t.Error("failed deduction must void the committed order")
	}

	wantLog := []string{enum.ActionOrderCreated, enum.ActionStockCompensation}
	if len(st.logged) != 2 || st.logged[0] != wantLog[0] || st.logged[1] != wantLog[1] {
		t.Errorf("audit trail: got %v, want %v", st.logged, wantLog)
	}
}

func TestCreateOrder_UntrackedSkipsInventory(t *testing.T) {
	itemID, comboID := uuid.New(), uuid.New()
	res := burgerResolver(itemID, comboID, uuid.New())
	res.resolveMenuItemFn = func(ctx context.Context, id uuid.UUID) (menu.ItemSnapshot, error) {
		return menu.ItemSnapshot{
			ID: itemID, Name: "Side Salad", Sku: "SAL-01",
			Price: dec("3.00"), IsAvailable: true, IsDiscountable: true,
		}, nil
	}
	inv := &mockInventory{}
	svc, _ := newTestService(defaultStore(), res, inv)

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		SessionID: uuid.New(),
		Items:     []OrderItemRequest{{MenuItemID: itemID.String(), Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if len(inv.checks) != 0 || len(inv.deducts) != 0 {
		t.Error("untracked items must not touch inventory")
	}
}

func TestCreateOrder_ComboExplodesComponents(t *testing.T) {
	itemID, comboID := uuid.New(), uuid.New()
	compA, compB := uuid.New(), uuid.New()
	res := burgerResolver(itemID, comboID, uuid.New())
	res.resolveComboItemsFn = func(ctx context.Context, id uuid.UUID) ([]menu.ComboComponent, error) {
		return []menu.ComboComponent{
			{MenuItemID: uuid.New(), Quantity: 1, InventoryItemID: pgUUID(compA)},
			{MenuItemID: uuid.New(), Quantity: 2, InventoryItemID: pgUUID(compB)},
		}, nil
	}
	inv := &mockInventory{}
	svc, _ := newTestService(defaultStore(), res, inv)

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		SessionID: uuid.New(),
		Items:     []OrderItemRequest{{ComboID: comboID.String(), Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	if len(inv.deducts) != 1 || len(inv.deducts[0]) != 2 {
		t.Fatalf("deduct lines: %+v", inv.deducts)
	}
	// component quantity times combo quantity
	if inv.deducts[0][0].Quantity != 3 || inv.deducts[0][1].Quantity != 6 {
		t.Errorf("exploded quantities: got %d and %d, want 3 and 6",
			inv.deducts[0][0].Quantity, inv.deducts[0][1].Quantity)
	}
}

// =====================
// AddItems / UpdateItem / RemoveItem
// =====================

func TestAddItems_ClosedOrder(t *testing.T) {
	st := defaultStore()
	st.getOrderFn = func(ctx context.Context, id int64) (store.Order, error) {
		return store.Order{ID: id, Status: enum.OrderStatusClosed}, nil
	}
	itemID, comboID, invID := uuid.New(), uuid.New(), uuid.New()
	svc, _ := newTestService(st, burgerResolver(itemID, comboID, invID), &mockInventory{})

	_, err := svc.AddItems(context.Background(), 1, uuid.Nil, []OrderItemRequest{
		{MenuItemID: itemID.String(), Quantity: 1},
	})
	if !errors.Is(err, ErrOrderClosed) {
		t.Fatalf("expected ErrOrderClosed, got: %v", err)
	}
}

func TestAddItems_RecalculatesTotals(t *testing.T) {
	itemID, comboID, invID := uuid.New(), uuid.New(), uuid.New()
	st := defaultStore()
	st.getOrderFn = func(ctx context.Context, id int64) (store.Order, error) {
		return store.Order{
			ID: id, Status: enum.OrderStatusOpen,
			DiscountTotal: dec("2.00"), TaxTotal: dec("1.50"),
		}, nil
	}
	st.sumActiveOrderItemsFn = func(ctx context.Context, orderID int64) (store.OrderItemTotals, error) {
		return store.OrderItemTotals{Subtotal: dec("22.00"), Profit: dec("14.00")}, nil
	}

	var captured store.UpdateOrderTotalsParams
	inner := st.updateOrderTotalsFn
	st.updateOrderTotalsFn = func(ctx context.Context, arg store.UpdateOrderTotalsParams) (store.Order, error) {
		captured = arg
		return inner(ctx, arg)
	}

	svc, _ := newTestService(st, burgerResolver(itemID, comboID, invID), &mockInventory{})

	result, err := svc.AddItems(context.Background(), 1, uuid.New(), []OrderItemRequest{
		{MenuItemID: itemID.String(), Quantity: 1},
	})
	if err != nil {
		t.Fatalf("AddItems failed: %v", err)
	}

	if !captured.Subtotal.Equal(dec("22.00")) {
		t.Errorf("subtotal: got %s, want 22.00", captured.Subtotal)
	}
	if !captured.Total.Equal(dec("21.50")) {
		t.Errorf("total: got %s, want 21.50", captured.Total)
	}
	if !result.Order.Total.Equal(dec("21.50")) {
		t.Errorf("returned total: got %s, want 21.50", result.Order.Total)
	}
}

func TestUpdateItem_FrozenPricing(t *testing.T) {
	itemID := uuid.New()
	invID := uuid.New()

	st := defaultStore()
	st.getOrderItemFn = func(ctx context.Context, arg store.GetOrderItemParams) (store.OrderItem, error) {
		return store.OrderItem{
			ID: arg.ID, OrderID: arg.OrderID,
			MenuItemID: pgUUID(itemID),
			Quantity:   2, DeliveredQuantity: 0,
			BasePrice: dec("5.00"), PriceDelta: dec("1.00"), VendorPrice: dec("2.00"),
			Sku: "BRG-01",
		}, nil
	}

	var captured store.UpdateOrderItemParams
	st.updateOrderItemFn = func(ctx context.Context, arg store.UpdateOrderItemParams) (store.OrderItem, error) {
		captured = arg
		return store.OrderItem{ID: arg.ID, OrderID: arg.OrderID, Quantity: arg.Quantity, LineTotal: arg.LineTotal}, nil
	}

	inv := &mockInventory{}
	svc, _ := newTestService(st, burgerResolver(itemID, uuid.New(), invID), inv)

	_, err := svc.UpdateItem(context.Background(), UpdateItemRequest{
		OrderID: 1, ItemID: 101, ServerID: uuid.New(),
		Quantity: 3, LineDiscount: "2.00",
	})
	if err != nil {
		t.Fatalf("UpdateItem failed: %v", err)
	}

	// (5.00 + 1.00) * 3 - 2.00
	if !captured.LineTotal.Equal(dec("16.00")) {
		t.Errorf("line total: got %s, want 16.00", captured.LineTotal)
	}

	// Quantity grew by one tracked unit: deducted by the catalog row's
	// current inventory id.
	if len(inv.deducts) != 1 || len(inv.deducts[0]) != 1 {
		t.Fatalf("deduct calls: %+v", inv.deducts)
	}
	if inv.deducts[0][0].ItemID != invID || inv.deducts[0][0].Quantity != 1 {
		t.Errorf("delta deduction: %+v", inv.deducts[0][0])
	}
}

func TestUpdateItem_UntrackedSkipsInventory(t *testing.T) {
	itemID := uuid.New()

	st := defaultStore()
	st.getOrderItemFn = func(ctx context.Context, arg store.GetOrderItemParams) (store.OrderItem, error) {
		return store.OrderItem{
			ID: arg.ID, OrderID: arg.OrderID,
			MenuItemID: pgUUID(itemID),
			Quantity:   1,
			BasePrice:  dec("1.80"), VendorPrice: dec("0.30"),
			Sku: "COF-01",
		}, nil
	}
	st.updateOrderItemFn = func(ctx context.Context, arg store.UpdateOrderItemParams) (store.OrderItem, error) {
		return store.OrderItem{ID: arg.ID, OrderID: arg.OrderID, Quantity: arg.Quantity}, nil
	}

	// Untracked catalog row: carries a SKU but no inventory item.
	res := &mockResolver{
		resolveMenuItemFn: func(ctx context.Context, id uuid.UUID) (menu.ItemSnapshot, error) {
			return menu.ItemSnapshot{
				ID: itemID, Name: "Coffee", Sku: "COF-01",
				Price: dec("1.80"), VendorPrice: dec("0.30"),
				IsAvailable: true, IsDiscountable: true,
			}, nil
		},
	}

	inv := &mockInventory{}
	svc, _ := newTestService(st, res, inv)

	_, err := svc.UpdateItem(context.Background(), UpdateItemRequest{
		OrderID: 1, ItemID: 101, Quantity: 2,
	})
	if err != nil {
		t.Fatalf("UpdateItem failed: %v", err)
	}
	if len(inv.checks) != 0 || len(inv.deducts) != 0 {
		t.Errorf("untracked item touched inventory: checks=%+v deducts=%+v", inv.checks, inv.deducts)
	}
}

func TestUpdateItem_QuantityDecreaseNeverRestocks(t *testing.T) {
	st := defaultStore()
	st.getOrderItemFn = func(ctx context.Context, arg store.GetOrderItemParams) (store.OrderItem, error) {
		return store.OrderItem{
			ID: arg.ID, OrderID: arg.OrderID, Quantity: 3,
			BasePrice: dec("5.00"), Sku: "BRG-01",
		}, nil
	}
	st.updateOrderItemFn = func(ctx context.Context, arg store.UpdateOrderItemParams) (store.OrderItem, error) {
		return store.OrderItem{ID: arg.ID, Quantity: arg.Quantity}, nil
	}

	inv := &mockInventory{}
	svc, _ := newTestService(st, &mockResolver{}, inv)

	_, err := svc.UpdateItem(context.Background(), UpdateItemRequest{
		OrderID: 1, ItemID: 101, Quantity: 1,
	})
	if err != nil {
		t.Fatalf("UpdateItem failed: %v", err)
	}
	if len(inv.checks) != 0 || len(inv.deducts) != 0 {
		t.Error("decreasing quantity must not touch inventory")
	}
}

func TestUpdateItem_BelowDelivered(t *testing.T) {
	st := defaultStore()
	st.getOrderItemFn = func(ctx context.Context, arg store.GetOrderItemParams) (store.OrderItem, error) {
		return store.OrderItem{ID: arg.ID, OrderID: arg.OrderID, Quantity: 5, DeliveredQuantity: 3}, nil
	}
	svc, _ := newTestService(st, &mockResolver{}, &mockInventory{})

	_, err := svc.UpdateItem(context.Background(), UpdateItemRequest{
		OrderID: 1, ItemID: 101, Quantity: 2,
	})
	if !errors.Is(err, ErrDeliveredExceedsQuantity) {
		t.Fatalf("expected ErrDeliveredExceedsQuantity, got: %v", err)
	}
}

func TestRemoveItem_RecalculatesAndLogs(t *testing.T) {
	st := defaultStore()
	st.getOrderItemFn = func(ctx context.Context, arg store.GetOrderItemParams) (store.OrderItem, error) {
		return store.OrderItem{ID: arg.ID, OrderID: arg.OrderID, Name: "Burger", Quantity: 1}, nil
	}
	var deleted bool
	st.softDeleteOrderItemFn = func(ctx context.Context, arg store.SoftDeleteOrderItemParams) (int64, error) {
		deleted = true
		return 1, nil
	}
	svc, _ := newTestService(st, &mockResolver{}, &mockInventory{})

	_, err := svc.RemoveItem(context.Background(), 1, 101, uuid.New())
	if err != nil {
		t.Fatalf("RemoveItem failed: %v", err)
	}
	if !deleted {
		t.Error("item was not soft-deleted")
	}
	if len(st.logged) != 1 || st.logged[0] != enum.ActionItemRemoved {
		t.Errorf("audit trail: %v", st.logged)
	}
}

func TestRemoveItem_NotFound(t *testing.T) {
	st := defaultStore()
	st.getOrderItemFn = func(ctx context.Context, arg store.GetOrderItemParams) (store.OrderItem, error) {
		return store.OrderItem{}, pgx.ErrNoRows
	}
	svc, _ := newTestService(st, &mockResolver{}, &mockInventory{})

	_, err := svc.RemoveItem(context.Background(), 1, 999, uuid.Nil)
	if !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got: %v", err)
	}
}
