package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tabletab-pos/api/internal/menu"
	"github.com/tabletab-pos/api/internal/middleware"
	"github.com/tabletab-pos/api/internal/service"
	"github.com/tabletab-pos/api/internal/store"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.OrderResult, error)
	AddItems(ctx context.Context, orderID int64, serverID uuid.UUID, items []service.OrderItemRequest) (*service.OrderResult, error)
	UpdateItem(ctx context.Context, req service.UpdateItemRequest) (*service.OrderResult, error)
	RemoveItem(ctx context.Context, orderID, itemID int64, serverID uuid.UUID) (*service.OrderResult, error)
	MarkItemsDelivered(ctx context.Context, orderID int64, serverID uuid.UUID, deliveries []service.DeliveryRequest) (*service.OrderResult, error)
	UpdateDeliveryStatus(ctx context.Context, orderID int64, serverID uuid.UUID, to string) (*service.OrderResult, error)
	UpdateStatus(ctx context.Context, orderID int64, serverID uuid.UUID, to string) (*service.OrderResult, error)
	CloseOrder(ctx context.Context, orderID int64, serverID uuid.UUID) (*service.OrderResult, error)
	DeleteOrder(ctx context.Context, orderID int64, serverID uuid.UUID) error
	RecalculateTotals(ctx context.Context, orderID int64, serverID uuid.UUID) (*service.OrderResult, error)
}

// OrderStore defines the database methods needed by order read handlers.
// Satisfied by *store.Queries; narrow interface for testability.
type OrderStore interface {
	GetOrder(ctx context.Context, id int64) (store.Order, error)
	ListOrdersBySession(ctx context.Context, arg store.ListOrdersBySessionParams) ([]store.Order, error)
	ListOrderItems(ctx context.Context, orderID int64) ([]store.OrderItem, error)
	ListOrderLogs(ctx context.Context, arg store.ListOrderLogsParams) ([]store.OrderLog, error)
}

// Broadcaster pushes order events to clients watching a table session.
// Satisfied by *ws.Hub.
type Broadcaster interface {
	BroadcastToSession(sessionID uuid.UUID, event any)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc   OrderServicer
	store OrderStore
	hub   Broadcaster
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, store OrderStore, hub Broadcaster) *OrderHandler {
	return &OrderHandler{svc: svc, store: store, hub: hub}
}

// RegisterRoutes registers order endpoints on the given Chi router.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/items", h.AddItems)
	r.Patch("/{id}/items/{itemID}", h.UpdateItem)
	r.Delete("/{id}/items/{itemID}", h.RemoveItem)
	r.Post("/{id}/deliveries", h.Deliveries)
	r.Patch("/{id}/delivery_status", h.UpdateDeliveryStatus)
	r.Patch("/{id}/status", h.UpdateStatus)
	r.Post("/{id}/close", h.Close)
	r.Post("/{id}/recalculate", h.Recalculate)
	r.Get("/{id}/logs", h.Logs)
}

// --- Request / Response types ---

type createOrderRequest struct {
	SessionID     string                   `json:"session_id"`
	TableID       int32                    `json:"table_id"`
	BillingID     *int64                   `json:"billing_id"`
	DiscountTotal string                   `json:"discount_total"`
	TaxTotal      string                   `json:"tax_total"`
	Items         []createOrderItemRequest `json:"items"`
}

type createOrderItemRequest struct {
	MenuItemID   string   `json:"menu_item_id"`
	ComboID      string   `json:"combo_id"`
	Quantity     int32    `json:"quantity"`
	LineDiscount string   `json:"line_discount"`
	ModifierIDs  []string `json:"modifier_ids"`
}

type updateItemRequest struct {
	Quantity     int32  `json:"quantity"`
	LineDiscount string `json:"line_discount"`
}

type deliveriesRequest struct {
	Deliveries []deliveryRequest `json:"deliveries"`
}

type deliveryRequest struct {
	ItemID            int64 `json:"item_id"`
	DeliveredQuantity int32 `json:"delivered_quantity"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type updateDeliveryStatusRequest struct {
	DeliveryStatus string `json:"delivery_status"`
}

type orderResponse struct {
	ID             int64               `json:"id"`
	SessionID      uuid.UUID           `json:"session_id"`
	BillingID      *int64              `json:"billing_id"`
	TableID        int32               `json:"table_id"`
	Status         string              `json:"status"`
	DeliveryStatus string              `json:"delivery_status"`
	Subtotal       string              `json:"subtotal"`
	DiscountTotal  string              `json:"discount_total"`
	TaxTotal       string              `json:"tax_total"`
	Total          string              `json:"total"`
	ProfitTotal    string              `json:"profit_total"`
	CreatedAt      time.Time           `json:"created_at"`
	ClosedAt       *time.Time          `json:"closed_at"`
	Items          []orderItemResponse `json:"items"`
}

type orderItemResponse struct {
	ID                int64   `json:"id"`
	MenuItemID        *string `json:"menu_item_id"`
	ComboID           *string `json:"combo_id"`
	Name              string  `json:"name"`
	Sku               string  `json:"sku"`
	Category          string  `json:"category"`
	ItemGroup         string  `json:"item_group"`
	Version           int32   `json:"version"`
	Picture           string  `json:"picture"`
	Quantity          int32   `json:"quantity"`
	DeliveredQuantity int32   `json:"delivered_quantity"`
	BasePrice         string  `json:"base_price"`
	PriceDelta        string  `json:"price_delta"`
	LineDiscount      string  `json:"line_discount"`
	LineTotal         string  `json:"line_total"`
}

type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
}

type orderLogResponse struct {
	ID        int64           `json:"id"`
	Action    string          `json:"action"`
	OldValue  json.RawMessage `json:"old_value"`
	NewValue  json.RawMessage `json:"new_value"`
	ServerID  *string         `json:"server_id"`
	CreatedAt time.Time       `json:"created_at"`
}

type orderLogListResponse struct {
	Logs   []orderLogResponse `json:"logs"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// --- Handlers ---

// Create handles POST /orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session_id"})
		return
	}

	result, err := h.svc.CreateOrder(r.Context(), service.CreateOrderRequest{
		SessionID:     sessionID,
		TableID:       req.TableID,
		BillingID:     req.BillingID,
		ServerID:      claims.ServerID,
		DiscountTotal: req.DiscountTotal,
		TaxTotal:      req.TaxTotal,
		Items:         toServiceItems(req.Items),
	})
	if err != nil {
		respondServiceError(w, "create order", err)
		return
	}

	resp := toOrderResponse(result.Order, result.Items)
	h.broadcast(result.Order.SessionID, "order_created", resp)
	writeJSON(w, http.StatusCreated, resp)
}

// List handles GET /orders?session_id=...&include_history=true.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(r.URL.Query().Get("session_id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session_id is required"})
		return
	}
	includeHistory := r.URL.Query().Get("include_history") == "true"

	orders, err := h.store.ListOrdersBySession(r.Context(), store.ListOrdersBySessionParams{
		SessionID:      sessionID,
		IncludeHistory: includeHistory,
	})
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		items, err := h.store.ListOrderItems(r.Context(), o.ID)
		if err != nil {
			log.Printf("ERROR: list order items: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		resp[i] = toOrderResponse(o, items)
	}

	writeJSON(w, http.StatusOK, orderListResponse{Orders: resp})
}

// Get handles GET /orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	items, err := h.store.ListOrderItems(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list order items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order, items))
}

// Delete handles DELETE /orders/{id}.
func (h *OrderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		log.Printf("ERROR: get order for delete: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if err := h.svc.DeleteOrder(r.Context(), orderID, claims.ServerID); err != nil {
		respondServiceError(w, "delete order", err)
		return
	}

	h.broadcast(order.SessionID, "order_deleted", map[string]int64{"id": orderID})
	w.WriteHeader(http.StatusNoContent)
}

// AddItems handles POST /orders/{id}/items.
func (h *OrderHandler) AddItems(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req struct {
		Items []createOrderItemRequest `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.svc.AddItems(r.Context(), orderID, claims.ServerID, toServiceItems(req.Items))
	if err != nil {
		respondServiceError(w, "add order items", err)
		return
	}

	resp := toOrderResponse(result.Order, result.Items)
	h.broadcast(result.Order.SessionID, "order_updated", resp)
	writeJSON(w, http.StatusCreated, resp)
}

// UpdateItem handles PATCH /orders/{id}/items/{itemID}.
func (h *OrderHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid item ID"})
		return
	}

	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.svc.UpdateItem(r.Context(), service.UpdateItemRequest{
		OrderID:      orderID,
		ItemID:       itemID,
		ServerID:     claims.ServerID,
		Quantity:     req.Quantity,
		LineDiscount: req.LineDiscount,
	})
	if err != nil {
		respondServiceError(w, "update order item", err)
		return
	}

	resp := toOrderResponse(result.Order, result.Items)
	h.broadcast(result.Order.SessionID, "order_updated", resp)
	writeJSON(w, http.StatusOK, resp)
}

// RemoveItem handles DELETE /orders/{id}/items/{itemID}.
func (h *OrderHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid item ID"})
		return
	}

	result, err := h.svc.RemoveItem(r.Context(), orderID, itemID, claims.ServerID)
	if err != nil {
		respondServiceError(w, "remove order item", err)
		return
	}

	resp := toOrderResponse(result.Order, result.Items)
	h.broadcast(result.Order.SessionID, "order_updated", resp)
	writeJSON(w, http.StatusOK, resp)
}

// Deliveries handles POST /orders/{id}/deliveries.
func (h *OrderHandler) Deliveries(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req deliveriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	deliveries := make([]service.DeliveryRequest, len(req.Deliveries))
	for i, d := range req.Deliveries {
		deliveries[i] = service.DeliveryRequest{ItemID: d.ItemID, DeliveredQuantity: d.DeliveredQuantity}
	}

	result, err := h.svc.MarkItemsDelivered(r.Context(), orderID, claims.ServerID, deliveries)
	if err != nil {
		respondServiceError(w, "mark items delivered", err)
		return
	}

	resp := toOrderResponse(result.Order, result.Items)
	h.broadcast(result.Order.SessionID, "order_updated", resp)
	writeJSON(w, http.StatusOK, resp)
}

// UpdateDeliveryStatus handles PATCH /orders/{id}/delivery_status.
func (h *OrderHandler) UpdateDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req updateDeliveryStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.DeliveryStatus == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "delivery_status is required"})
		return
	}

	result, err := h.svc.UpdateDeliveryStatus(r.Context(), orderID, claims.ServerID, req.DeliveryStatus)
	if err != nil {
		respondServiceError(w, "update delivery status", err)
		return
	}

	resp := toOrderResponse(result.Order, result.Items)
	h.broadcast(result.Order.SessionID, "order_updated", resp)
	writeJSON(w, http.StatusOK, resp)
}

// UpdateStatus handles PATCH /orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}

	result, err := h.svc.UpdateStatus(r.Context(), orderID, claims.ServerID, req.Status)
	if err != nil {
		respondServiceError(w, "update order status", err)
		return
	}

	resp := toOrderResponse(result.Order, result.Items)
	h.broadcast(result.Order.SessionID, "order_closed", resp)
	writeJSON(w, http.StatusOK, resp)
}

// Close handles POST /orders/{id}/close.
func (h *OrderHandler) Close(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	result, err := h.svc.CloseOrder(r.Context(), orderID, claims.ServerID)
	if err != nil {
		respondServiceError(w, "close order", err)
		return
	}

	resp := toOrderResponse(result.Order, result.Items)
	h.broadcast(result.Order.SessionID, "order_closed", resp)
	writeJSON(w, http.StatusOK, resp)
}

// Recalculate handles POST /orders/{id}/recalculate.
func (h *OrderHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	result, err := h.svc.RecalculateTotals(r.Context(), orderID, claims.ServerID)
	if err != nil {
		respondServiceError(w, "recalculate totals", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(result.Order, result.Items))
}

// Logs handles GET /orders/{id}/logs.
func (h *OrderHandler) Logs(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}
	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	if _, err := h.store.GetOrder(r.Context(), orderID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order for logs: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	logs, err := h.store.ListOrderLogs(r.Context(), store.ListOrderLogsParams{
		OrderID: orderID,
		Limit:   int32(limit),
		Offset:  int32(offset),
	})
	if err != nil {
		log.Printf("ERROR: list order logs: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderLogResponse, len(logs))
	for i, l := range logs {
		resp[i] = toOrderLogResponse(l)
	}

	writeJSON(w, http.StatusOK, orderLogListResponse{Logs: resp, Limit: limit, Offset: offset})
}

// --- Helpers ---

func (h *OrderHandler) broadcast(sessionID uuid.UUID, eventType string, payload any) {
	if h.hub == nil {
		return
	}
	h.hub.BroadcastToSession(sessionID, map[string]any{
		"type":    eventType,
		"payload": payload,
	})
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return 0, false
	}
	return id, true
}

func toServiceItems(items []createOrderItemRequest) []service.OrderItemRequest {
	out := make([]service.OrderItemRequest, len(items))
	for i, item := range items {
		out[i] = service.OrderItemRequest{
			MenuItemID:   item.MenuItemID,
			ComboID:      item.ComboID,
			Quantity:     item.Quantity,
			LineDiscount: item.LineDiscount,
			ModifierIDs:  item.ModifierIDs,
		}
	}
	return out
}

func toOrderResponse(o store.Order, items []store.OrderItem) orderResponse {
	resp := orderResponse{
		ID:             o.ID,
		SessionID:      o.SessionID,
		TableID:        o.TableID,
		Status:         o.Status,
		DeliveryStatus: o.DeliveryStatus,
		Subtotal:       o.Subtotal.StringFixed(2),
		DiscountTotal:  o.DiscountTotal.StringFixed(2),
		TaxTotal:       o.TaxTotal.StringFixed(2),
		Total:          o.Total.StringFixed(2),
		ProfitTotal:    o.ProfitTotal.StringFixed(2),
		CreatedAt:      o.CreatedAt,
		Items:          []orderItemResponse{},
	}
	if o.BillingID.Valid {
		v := o.BillingID.Int64
		resp.BillingID = &v
	}
	if o.ClosedAt.Valid {
		t := o.ClosedAt.Time
		resp.ClosedAt = &t
	}
	for _, item := range items {
		resp.Items = append(resp.Items, toOrderItemResponse(item))
	}
	return resp
}

func toOrderItemResponse(i store.OrderItem) orderItemResponse {
	resp := orderItemResponse{
		ID:                i.ID,
		Name:              i.Name,
		Sku:               i.Sku,
		Category:          i.Category,
		ItemGroup:         i.ItemGroup,
		Version:           i.Version,
		Picture:           i.Picture,
		Quantity:          i.Quantity,
		DeliveredQuantity: i.DeliveredQuantity,
		BasePrice:         i.BasePrice.StringFixed(2),
		PriceDelta:        i.PriceDelta.StringFixed(2),
		LineDiscount:      i.LineDiscount.StringFixed(2),
		LineTotal:         i.LineTotal.StringFixed(2),
	}
	if i.MenuItemID.Valid {
		s := uuid.UUID(i.MenuItemID.Bytes).String()
		resp.MenuItemID = &s
	}
	if i.ComboID.Valid {
		s := uuid.UUID(i.ComboID.Bytes).String()
		resp.ComboID = &s
	}
	return resp
}

func toOrderLogResponse(l store.OrderLog) orderLogResponse {
	resp := orderLogResponse{
		ID:        l.ID,
		Action:    l.Action,
		OldValue:  l.OldValue,
		NewValue:  l.NewValue,
		CreatedAt: l.CreatedAt,
	}
	if l.ServerID.Valid {
		s := uuid.UUID(l.ServerID.Bytes).String()
		resp.ServerID = &s
	}
	return resp
}

// respondServiceError maps order service errors onto HTTP statuses:
// validation problems are 400, missing rows 404, state conflicts 409,
// inventory verdicts 409 with detail, inventory outages 502.
func respondServiceError(w http.ResponseWriter, op string, err error) {
	var transition *service.TransitionError
	var itemOff *service.ItemUnavailableError
	var comboOff *service.ComboUnavailableError
	var short *service.InsufficientStockError
	var remote *service.RemoteError

	switch {
	case isValidationError(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrItemNotFound),
		errors.Is(err, menu.ErrMenuItemNotFound),
		errors.Is(err, menu.ErrComboNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrOrderClosed),
		errors.Is(err, service.ErrStatusConflict),
		errors.Is(err, service.ErrDeliveredExceedsQuantity):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.As(err, &transition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": transition.Error()})
	case errors.As(err, &itemOff):
		writeJSON(w, http.StatusConflict, map[string]string{"error": itemOff.Error()})
	case errors.As(err, &comboOff):
		writeJSON(w, http.StatusConflict, map[string]string{"error": comboOff.Error()})
	case errors.As(err, &short):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":        short.Error(),
			"insufficient": short.Shortages,
		})
	case errors.As(err, &remote):
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "inventory service unavailable"})
	default:
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func isValidationError(err error) bool {
	return errors.Is(err, service.ErrEmptyItems) ||
		errors.Is(err, service.ErrInvalidQuantity) ||
		errors.Is(err, service.ErrItemRef) ||
		errors.Is(err, service.ErrComboModifiers) ||
		errors.Is(err, service.ErrInvalidMenuItemID) ||
		errors.Is(err, service.ErrInvalidComboID) ||
		errors.Is(err, service.ErrInvalidModifierID) ||
		errors.Is(err, service.ErrInvalidAmount) ||
		errors.Is(err, service.ErrNotDiscountable) ||
		errors.Is(err, service.ErrDiscountExceedsLine) ||
		errors.Is(err, service.ErrDiscountExceedsTotal) ||
		errors.Is(err, service.ErrEmptyDeliveries)
}
