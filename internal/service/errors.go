package service

import (
	"errors"
	"fmt"

	"github.com/tabletab-pos/api/internal/inventory"
)

// Errors returned by the order service.
var (
	ErrEmptyItems               = errors.New("items are required")
	ErrInvalidQuantity          = errors.New("quantity must be > 0")
	ErrItemRef                  = errors.New("exactly one of menu_item_id or combo_id is required")
	ErrComboModifiers           = errors.New("modifiers are not supported on combo lines")
	ErrInvalidMenuItemID        = errors.New("invalid menu_item_id")
	ErrInvalidComboID           = errors.New("invalid combo_id")
	ErrInvalidModifierID        = errors.New("invalid modifier_id")
	ErrInvalidAmount            = errors.New("invalid amount")
	ErrNotDiscountable          = errors.New("item is not discountable")
	ErrDiscountExceedsLine      = errors.New("line discount exceeds line total")
	ErrDiscountExceedsTotal     = errors.New("discount exceeds order total")
	ErrOrderNotFound            = errors.New("order not found")
	ErrItemNotFound             = errors.New("order item not found")
	ErrOrderClosed              = errors.New("order is closed")
	ErrEmptyDeliveries          = errors.New("deliveries are required")
	ErrDeliveredExceedsQuantity = errors.New("delivered quantity exceeds ordered quantity")
	ErrStatusConflict           = errors.New("order changed concurrently, retry")
)

// TransitionError reports a delivery-status or order-status change that the
// transition table does not allow.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %q to %q", e.From, e.To)
}

// ItemUnavailableError reports a menu item that is switched off for ordering.
type ItemUnavailableError struct {
	Name string
}

func (e *ItemUnavailableError) Error() string {
	return fmt.Sprintf("menu item %q is not available", e.Name)
}

// ComboUnavailableError reports a combo that is off, either directly or
// because one of its component items is off.
type ComboUnavailableError struct {
	Name string
}

func (e *ComboUnavailableError) Error() string {
	return fmt.Sprintf("combo %q is not available", e.Name)
}

// InsufficientStockError carries the per-item shortages reported by the
// inventory service when an availability check fails.
type InsufficientStockError struct {
	Shortages []inventory.Shortage
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %d item(s)", len(e.Shortages))
}

// RemoteError marks a failure talking to the inventory service, as opposed
// to a definitive negative answer from it. Handlers map it to 502.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("inventory %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }
