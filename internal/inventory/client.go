package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tabletab-pos/api/internal/enum"
)

// Line addresses a stock position either by internal inventory item id or by
// SKU. Quantity is the amount required or to be deducted.
type Line struct {
	ItemID   uuid.UUID
	SKU      string
	Quantity int32
}

// bySKU reports whether the line is SKU-addressed.
func (l Line) bySKU() bool {
	return l.ItemID == uuid.Nil
}

// Shortage describes one insufficient stock position from a check.
type Shortage struct {
	ItemID uuid.UUID       `json:"id,omitempty"`
	SKU    string          `json:"sku,omitempty"`
	Have   decimal.Decimal `json:"have"`
	Need   decimal.Decimal `json:"need"`
}

// CheckResult is the availability verdict for a set of lines.
type CheckResult struct {
	OK           bool       `json:"ok"`
	Insufficient []Shortage `json:"insufficient,omitempty"`
}

// DeductLine is one stock deduction. UnitCost, when known, rides along for
// the inventory service's cost accounting.
type DeductLine struct {
	ItemID   uuid.UUID
	SKU      string
	Quantity int32
	UnitCost *decimal.Decimal
}

// Client is the capability the order core needs from the inventory service:
// check that stock covers a set of lines, and deduct stock for a committed
// order. Implemented over HTTP in production and by fakes in tests.
type Client interface {
	CheckAvailability(ctx context.Context, lines []Line) (CheckResult, error)
	Deduct(ctx context.Context, orderID int64, serverID uuid.UUID, lines []DeductLine) error
}

// StatusError is any non-2xx response from the inventory service. There is
// no retry at this level; the orchestrator decides what a failure means.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inventory service returned %d: %s", e.StatusCode, e.Body)
}

// DeductError reports a failed deduction sequence. Deductions are issued
// per item, not batched: Applied lines were already deducted on the remote
// side before the failure and need reconciliation.
type DeductError struct {
	Applied int
	Failed  DeductLine
	Err     error
}

func (e *DeductError) Error() string {
	return fmt.Sprintf("deduct failed after %d applied adjustment(s): %v", e.Applied, e.Err)
}

func (e *DeductError) Unwrap() error {
	return e.Err
}

// HTTPClient talks to the inventory service. Stateless and safe for
// concurrent use; one instance is shared across requests.
type HTTPClient struct {
	baseURL string
	hc      *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: 10 * time.Second},
	}
}

type checkRequestItem struct {
	ID       *uuid.UUID `json:"id,omitempty"`
	SKU      string     `json:"sku,omitempty"`
	Quantity int32      `json:"quantity"`
}

type checkRequest struct {
	Items []checkRequestItem `json:"items"`
}

// CheckAvailability posts id-addressed lines to availability/check and
// SKU-addressed lines to availability/check-by-sku, merging the verdicts.
// Both must pass for the combined result to be OK.
func (c *HTTPClient) CheckAvailability(ctx context.Context, lines []Line) (CheckResult, error) {
	var byID, bySKU []checkRequestItem
	for _, l := range lines {
		if l.bySKU() {
			bySKU = append(bySKU, checkRequestItem{SKU: l.SKU, Quantity: l.Quantity})
			continue
		}
		id := l.ItemID
		byID = append(byID, checkRequestItem{ID: &id, Quantity: l.Quantity})
	}

	result := CheckResult{OK: true}
	if len(byID) > 0 {
		part, err := c.check(ctx, "/availability/check", byID)
		if err != nil {
			return CheckResult{}, err
		}
		result.OK = result.OK && part.OK
		result.Insufficient = append(result.Insufficient, part.Insufficient...)
	}
	if len(bySKU) > 0 {
		part, err := c.check(ctx, "/availability/check-by-sku", bySKU)
		if err != nil {
			return CheckResult{}, err
		}
		result.OK = result.OK && part.OK
		result.Insufficient = append(result.Insufficient, part.Insufficient...)
	}
	return result, nil
}

func (c *HTTPClient) check(ctx context.Context, path string, items []checkRequestItem) (CheckResult, error) {
	var result CheckResult
	if err := c.post(ctx, path, checkRequest{Items: items}, &result); err != nil {
		return CheckResult{}, err
	}
	return result, nil
}

type adjustRequest struct {
	SKU       string           `json:"sku,omitempty"`
	Delta     decimal.Decimal  `json:"delta"`
	UnitCost  *decimal.Decimal `json:"unitCost,omitempty"`
	Source    string           `json:"source"`
	SourceRef string           `json:"sourceRef"`
	Notes     string           `json:"notes,omitempty"`
	UserID    *uuid.UUID       `json:"userId,omitempty"`
}

// Deduct issues one negative adjustment per line, tagged with the customer
// order source and the order id as reference so the inventory side can
// reconcile the movement. A failure on line N leaves lines 1..N-1 already
// deducted; the returned DeductError carries that count.
func (c *HTTPClient) Deduct(ctx context.Context, orderID int64, serverID uuid.UUID, lines []DeductLine) error {
	sourceRef := strconv.FormatInt(orderID, 10)
	for i, line := range lines {
		req := adjustRequest{
			Delta:     decimal.NewFromInt32(line.Quantity).Neg(),
			UnitCost:  line.UnitCost,
			Source:    enum.AdjustmentSourceCustomerOrder,
			SourceRef: sourceRef,
		}
		if serverID != uuid.Nil {
			id := serverID
			req.UserID = &id
		}

		path := "/items/" + line.ItemID.String() + "/adjust"
		if line.ItemID == uuid.Nil {
			path = "/items/adjust-by-sku"
			req.SKU = line.SKU
		}

		if err := c.post(ctx, path, req, nil); err != nil {
			return &DeductError{Applied: i, Failed: line, Err: err}
		}
	}
	return nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("inventory request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
