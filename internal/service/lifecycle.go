package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tabletab-pos/api/internal/enum"
	"github.com/tabletab-pos/api/internal/store"
)

// deliveryTransitions is the forward-only kitchen progression. Each status
// advances to exactly one successor; nothing moves backwards.
var deliveryTransitions = map[string]string{
	enum.DeliveryStatusPending:    enum.DeliveryStatusInProgress,
	enum.DeliveryStatusInProgress: enum.DeliveryStatusReady,
	enum.DeliveryStatusReady:      enum.DeliveryStatusDelivered,
}

// DeliveryRequest sets the cumulative delivered quantity for one line.
type DeliveryRequest struct {
	ItemID            int64
	DeliveredQuantity int32
}

// MarkItemsDelivered records delivered quantities for a batch of lines in
// one transaction. Any line exceeding its ordered quantity rejects the
// whole batch; partial delivery of a line is fine.
func (s *OrderService) MarkItemsDelivered(ctx context.Context, orderID int64, serverID uuid.UUID, deliveries []DeliveryRequest) (*OrderResult, error) {
	if len(deliveries) == 0 {
		return nil, ErrEmptyDeliveries
	}

	order, err := s.openOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var result OrderResult
	err = s.inTx(ctx, func(q OrderStore) error {
		payload := make([]map[string]any, 0, len(deliveries))
		for i, d := range deliveries {
			if d.DeliveredQuantity < 0 {
				return fmt.Errorf("deliveries[%d]: %w", i, ErrInvalidQuantity)
			}

			item, err := q.GetOrderItem(ctx, store.GetOrderItemParams{ID: d.ItemID, OrderID: orderID})
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return fmt.Errorf("deliveries[%d]: %w", i, ErrItemNotFound)
				}
				return fmt.Errorf("deliveries[%d]: get order item: %w", i, err)
			}
			if d.DeliveredQuantity > item.Quantity {
				return fmt.Errorf("deliveries[%d]: %w", i, ErrDeliveredExceedsQuantity)
			}

			n, err := q.MarkItemDelivered(ctx, store.MarkItemDeliveredParams{
				ID:                d.ItemID,
				OrderID:           orderID,
				DeliveredQuantity: d.DeliveredQuantity,
			})
			if err != nil {
				return fmt.Errorf("deliveries[%d]: mark delivered: %w", i, err)
			}
			if n == 0 {
				// The line changed between our read and the guarded write.
				return fmt.Errorf("deliveries[%d]: %w", i, ErrStatusConflict)
			}

			payload = append(payload, map[string]any{
				"item_id":   d.ItemID,
				"delivered": d.DeliveredQuantity,
			})
		}

		if err := s.logAction(ctx, q, orderID, enum.ActionItemsDelivered, serverID, nil, payload); err != nil {
			return err
		}

		items, err := q.ListOrderItems(ctx, orderID)
		if err != nil {
			return fmt.Errorf("list order items: %w", err)
		}
		result = OrderResult{Order: order, Items: items}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateDeliveryStatus advances an open order one step along the kitchen
// progression. A concurrent advance by another terminal surfaces as
// ErrStatusConflict rather than a silent overwrite.
func (s *OrderService) UpdateDeliveryStatus(ctx context.Context, orderID int64, serverID uuid.UUID, to string) (*OrderResult, error) {
	order, err := s.openOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if deliveryTransitions[order.DeliveryStatus] != to {
		return nil, &TransitionError{From: order.DeliveryStatus, To: to}
	}

	var result OrderResult
	err = s.inTx(ctx, func(q OrderStore) error {
		updated, err := q.UpdateDeliveryStatus(ctx, store.UpdateDeliveryStatusParams{
			ID:                     orderID,
			DeliveryStatus:         to,
			ExpectedDeliveryStatus: order.DeliveryStatus,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrStatusConflict
			}
			return fmt.Errorf("update delivery status: %w", err)
		}

		if err := s.logAction(ctx, q, orderID, enum.ActionDeliveryStatusChanged, serverID,
			map[string]any{"delivery_status": order.DeliveryStatus},
			map[string]any{"delivery_status": updated.DeliveryStatus},
		); err != nil {
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

// UpdateStatus changes the order status. The only legal move is open to
// closed, which delegates to CloseOrder so closing has one code path.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID int64, serverID uuid.UUID, to string) (*OrderResult, error) {
	if to != enum.OrderStatusClosed {
		order, err := s.openOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		return nil, &TransitionError{From: order.Status, To: to}
	}
	return s.CloseOrder(ctx, orderID, serverID)
}

// CloseOrder transitions an open order to closed and stamps closed_at.
// Closed is terminal: every later mutation is rejected.
func (s *OrderService) CloseOrder(ctx context.Context, orderID int64, serverID uuid.UUID) (*OrderResult, error) {
	var result OrderResult
	err := s.inTx(ctx, func(q OrderStore) error {
		closed, err := q.CloseOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// Distinguish an already closed order from a missing one.
				if _, getErr := q.GetOrder(ctx, orderID); getErr != nil {
					if errors.Is(getErr, pgx.ErrNoRows) {
						return ErrOrderNotFound
					}
					return fmt.Errorf("get order: %w", getErr)
				}
				return ErrOrderClosed
			}
			return fmt.Errorf("close order: %w", err)
		}

		if err := s.logAction(ctx, q, orderID, enum.ActionOrderClosed, serverID,
			map[string]any{"status": enum.OrderStatusOpen},
			map[string]any{"status": closed.Status, "total": closed.Total.StringFixed(2)},
		); err != nil {
			return err
		}

		result = OrderResult{Order: closed}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteOrder soft-deletes an order and its lines. Rows stay in place for
// audit history; stock already deducted is not returned.
func (s *OrderService) DeleteOrder(ctx context.Context, orderID int64, serverID uuid.UUID) error {
	return s.inTx(ctx, func(q OrderStore) error {
		order, err := q.GetOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("get order: %w", err)
		}

		if _, err := q.SoftDeleteOrderItemsByOrder(ctx, orderID); err != nil {
			return fmt.Errorf("delete order items: %w", err)
		}
		n, err := q.SoftDeleteOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("delete order: %w", err)
		}
		if n == 0 {
			return ErrOrderNotFound
		}

		return s.logAction(ctx, q, orderID, enum.ActionOrderDeleted, serverID, orderPayload(order), nil)
	})
}

// RecalculateTotals rebuilds an order's totals from its active lines.
// Idempotent: running it twice writes the same numbers. The order's
// discount and tax are preserved, only derived fields change.
func (s *OrderService) RecalculateTotals(ctx context.Context, orderID int64, serverID uuid.UUID) (*OrderResult, error) {
	var result OrderResult
	err := s.inTx(ctx, func(q OrderStore) error {
		order, err := q.GetOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("get order: %w", err)
		}

		updated, err := s.recalcTotals(ctx, q, order)
		if err != nil {
			return err
		}

		if err := s.logAction(ctx, q, orderID, enum.ActionTotalsRecalculated, serverID,
			orderTotalsPayload(order), orderTotalsPayload(updated),
		); err != nil {
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
