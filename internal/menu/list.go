package menu

import (
	"context"
	"fmt"
)

const listItems = `SELECT id, name, sku, category, item_group, version, picture,
	price, vendor_price, is_available, is_discountable, inventory_item_id
FROM menu_items
WHERE NOT is_deleted
ORDER BY category, name`

// ListItems returns the browsable catalog for the desktop client.
func (r *Resolver) ListItems(ctx context.Context) ([]ItemSnapshot, error) {
	rows, err := r.db.Query(ctx, listItems)
	if err != nil {
		return nil, fmt.Errorf("list menu items: %w", err)
	}
	defer rows.Close()

	var items []ItemSnapshot
	for rows.Next() {
		var s ItemSnapshot
		if err := rows.Scan(
			&s.ID, &s.Name, &s.Sku, &s.Category, &s.ItemGroup, &s.Version, &s.Picture,
			&s.Price, &s.VendorPrice, &s.IsAvailable, &s.IsDiscountable, &s.InventoryItemID,
		); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

const listCombos = `SELECT c.id, c.name, c.sku, c.category, c.item_group, c.version, c.picture,
	c.price, c.is_available, c.is_discountable,
	COALESCE((
		SELECT SUM(mi.vendor_price * ci.quantity)
		FROM combo_items ci
		JOIN menu_items mi ON mi.id = ci.menu_item_id
		WHERE ci.combo_id = c.id AND NOT mi.is_deleted
	), 0)
FROM combos c
WHERE NOT c.is_deleted
ORDER BY c.name`

func (r *Resolver) ListCombos(ctx context.Context) ([]ComboSnapshot, error) {
	rows, err := r.db.Query(ctx, listCombos)
	if err != nil {
		return nil, fmt.Errorf("list combos: %w", err)
	}
	defer rows.Close()

	var combos []ComboSnapshot
	for rows.Next() {
		var s ComboSnapshot
		if err := rows.Scan(
			&s.ID, &s.Name, &s.Sku, &s.Category, &s.ItemGroup, &s.Version, &s.Picture,
			&s.Price, &s.IsAvailable, &s.IsDiscountable, &s.VendorPrice,
		); err != nil {
			return nil, err
		}
		combos = append(combos, s)
	}
	return combos, rows.Err()
}
