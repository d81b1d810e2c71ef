package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	OrderStatusOpen   = "open"
	OrderStatusClosed = "closed"
)

const (
	DeliveryStatusPending    = "pending"
	DeliveryStatusInProgress = "in_progress"
	DeliveryStatusReady      = "ready"
	DeliveryStatusDelivered  = "delivered"
)

// ── Group B: Audit log actions (no DB constraint) ──

const (
	ActionOrderCreated          = "order_created"
	ActionItemsAdded            = "items_added"
	ActionItemUpdated           = "item_updated"
	ActionItemRemoved           = "item_removed"
	ActionItemsDelivered        = "items_delivered"
	ActionDeliveryStatusChanged = "delivery_status_changed"
	ActionOrderClosed           = "order_closed"
	ActionOrderDeleted          = "order_deleted"
	ActionTotalsRecalculated    = "totals_recalculated"
	ActionStockCompensation     = "stock_compensation"
)

// ── Group C: Cross-service tags ──

const (
	// AdjustmentSourceCustomerOrder tags inventory deductions issued for
	// customer orders so the inventory service can reconcile them back to
	// the originating order via source_ref.
	AdjustmentSourceCustomerOrder = "customer_order"
)

const (
	ServerRoleManager = "MANAGER"
	ServerRoleWaiter  = "WAITER"
	ServerRoleKitchen = "KITCHEN"
)
