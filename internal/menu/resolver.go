package menu

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/tabletab-pos/api/internal/store"
)

// Errors returned by the resolver.
var (
	ErrMenuItemNotFound = errors.New("menu item not found")
	ErrComboNotFound    = errors.New("combo not found")
)

// ItemSnapshot is the frozen set of priceable attributes for one menu item,
// read fresh at the moment of an order mutation and copied verbatim into the
// order line. Never cached: menu prices and availability can change between
// a customer browsing and the item actually being added.
type ItemSnapshot struct {
	ID              uuid.UUID
	Name            string
	Sku             string
	Category        string
	ItemGroup       string
	Version         int32
	Picture         string
	Price           decimal.Decimal
	VendorPrice     decimal.Decimal
	IsAvailable     bool
	IsDiscountable  bool
	InventoryItemID pgtype.UUID
}

// Tracked reports whether the item is backed by the inventory service.
func (s ItemSnapshot) Tracked() bool {
	return s.InventoryItemID.Valid
}

// ComboSnapshot prices a combo as a single line. VendorPrice is the sum of
// the component items' vendor prices weighted by component quantity; the
// combo price itself is never decomposed per component.
type ComboSnapshot struct {
	ID             uuid.UUID
	Name           string
	Sku            string
	Category       string
	ItemGroup      string
	Version        int32
	Picture        string
	Price          decimal.Decimal
	VendorPrice    decimal.Decimal
	IsAvailable    bool
	IsDiscountable bool
}

// ComboComponent describes one constituent of a combo, used only to explode
// the combo for inventory deduction.
type ComboComponent struct {
	MenuItemID      uuid.UUID
	Quantity        int32
	Sku             string
	InventoryItemID pgtype.UUID
}

// Resolver reads menu state for pricing. It holds the pool directly rather
// than a transaction: snapshots are taken before the order transaction
// starts and frozen into the line rows.
type Resolver struct {
	db store.DBTX
}

func NewResolver(db store.DBTX) *Resolver {
	return &Resolver{db: db}
}

const resolveMenuItem = `SELECT id, name, sku, category, item_group, version, picture,
	price, vendor_price, is_available, is_discountable, inventory_item_id
FROM menu_items
WHERE id = $1 AND NOT is_deleted`

func (r *Resolver) ResolveMenuItem(ctx context.Context, id uuid.UUID) (ItemSnapshot, error) {
	var s ItemSnapshot
	err := r.db.QueryRow(ctx, resolveMenuItem, id).Scan(
		&s.ID, &s.Name, &s.Sku, &s.Category, &s.ItemGroup, &s.Version, &s.Picture,
		&s.Price, &s.VendorPrice, &s.IsAvailable, &s.IsDiscountable, &s.InventoryItemID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ItemSnapshot{}, ErrMenuItemNotFound
	}
	if err != nil {
		return ItemSnapshot{}, fmt.Errorf("resolve menu item: %w", err)
	}
	return s, nil
}

const resolveCombo = `SELECT c.id, c.name, c.sku, c.category, c.item_group, c.version, c.picture,
	c.price, c.is_available, c.is_discountable,
	COALESCE((
		SELECT SUM(mi.vendor_price * ci.quantity)
		FROM combo_items ci
		JOIN menu_items mi ON mi.id = ci.menu_item_id
		WHERE ci.combo_id = c.id AND NOT mi.is_deleted
	), 0)
FROM combos c
WHERE c.id = $1 AND NOT c.is_deleted`

func (r *Resolver) ResolveCombo(ctx context.Context, id uuid.UUID) (ComboSnapshot, error) {
	var s ComboSnapshot
	err := r.db.QueryRow(ctx, resolveCombo, id).Scan(
		&s.ID, &s.Name, &s.Sku, &s.Category, &s.ItemGroup, &s.Version, &s.Picture,
		&s.Price, &s.IsAvailable, &s.IsDiscountable, &s.VendorPrice,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ComboSnapshot{}, ErrComboNotFound
	}
	if err != nil {
		return ComboSnapshot{}, fmt.Errorf("resolve combo: %w", err)
	}
	return s, nil
}

const resolveComboItems = `SELECT ci.menu_item_id, ci.quantity, mi.sku, mi.inventory_item_id
FROM combo_items ci
JOIN menu_items mi ON mi.id = ci.menu_item_id
WHERE ci.combo_id = $1 AND NOT mi.is_deleted
ORDER BY ci.sort_order`

func (r *Resolver) ResolveComboItems(ctx context.Context, comboID uuid.UUID) ([]ComboComponent, error) {
	rows, err := r.db.Query(ctx, resolveComboItems, comboID)
	if err != nil {
		return nil, fmt.Errorf("resolve combo items: %w", err)
	}
	defer rows.Close()

	var components []ComboComponent
	for rows.Next() {
		var c ComboComponent
		if err := rows.Scan(&c.MenuItemID, &c.Quantity, &c.Sku, &c.InventoryItemID); err != nil {
			return nil, err
		}
		components = append(components, c)
	}
	return components, rows.Err()
}

// ModifierDelta sums the price deltas of the selected modifier options. The
// join restricts the sum to options whose group is attached to this menu
// item; selections referencing other items' options fall out of the sum
// silently instead of failing the mutation.
const modifierDelta = `SELECT COALESCE(SUM(o.price_delta), 0)
FROM modifier_options o
JOIN modifier_groups g ON g.id = o.group_id
WHERE g.menu_item_id = $1 AND o.id = ANY($2)`

func (r *Resolver) ModifierDelta(ctx context.Context, menuItemID uuid.UUID, optionIDs []uuid.UUID) (decimal.Decimal, error) {
	if len(optionIDs) == 0 {
		return decimal.Zero, nil
	}
	var delta decimal.Decimal
	if err := r.db.QueryRow(ctx, modifierDelta, menuItemID, optionIDs).Scan(&delta); err != nil {
		return decimal.Zero, fmt.Errorf("modifier delta: %w", err)
	}
	return delta, nil
}

// ValidateComboAvailability returns true only when the combo is available
// and every constituent menu item is currently available. One unavailable
// component blocks the whole combo.
const validateComboAvailability = `SELECT c.is_available AND NOT EXISTS (
	SELECT 1
	FROM combo_items ci
	JOIN menu_items mi ON mi.id = ci.menu_item_id
	WHERE ci.combo_id = c.id AND (NOT mi.is_available OR mi.is_deleted)
)
FROM combos c
WHERE c.id = $1 AND NOT c.is_deleted`

func (r *Resolver) ValidateComboAvailability(ctx context.Context, comboID uuid.UUID) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, validateComboAvailability, comboID).Scan(&ok)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrComboNotFound
	}
	if err != nil {
		return false, fmt.Errorf("validate combo availability: %w", err)
	}
	return ok, nil
}
