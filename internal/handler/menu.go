package handler

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tabletab-pos/api/internal/menu"
)

// MenuLister defines the catalog reads needed by menu handlers.
// Satisfied by *menu.Resolver.
type MenuLister interface {
	ListItems(ctx context.Context) ([]menu.ItemSnapshot, error)
	ListCombos(ctx context.Context) ([]menu.ComboSnapshot, error)
}

// MenuHandler serves the browsable catalog to ordering terminals.
type MenuHandler struct {
	lister MenuLister
}

// NewMenuHandler creates a new MenuHandler.
func NewMenuHandler(lister MenuLister) *MenuHandler {
	return &MenuHandler{lister: lister}
}

// RegisterRoutes registers menu endpoints on the given Chi router.
func (h *MenuHandler) RegisterRoutes(r chi.Router) {
	r.Get("/items", h.ListItems)
	r.Get("/combos", h.ListCombos)
}

type menuItemResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Sku            string    `json:"sku"`
	Category       string    `json:"category"`
	ItemGroup      string    `json:"item_group"`
	Picture        string    `json:"picture"`
	Price          string    `json:"price"`
	IsAvailable    bool      `json:"is_available"`
	IsDiscountable bool      `json:"is_discountable"`
}

type comboResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Sku            string    `json:"sku"`
	Category       string    `json:"category"`
	ItemGroup      string    `json:"item_group"`
	Picture        string    `json:"picture"`
	Price          string    `json:"price"`
	IsAvailable    bool      `json:"is_available"`
	IsDiscountable bool      `json:"is_discountable"`
}

// ListItems handles GET /menu/items.
func (h *MenuHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.lister.ListItems(r.Context())
	if err != nil {
		log.Printf("ERROR: list menu items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]menuItemResponse, len(items))
	for i, item := range items {
		resp[i] = menuItemResponse{
			ID:             item.ID,
			Name:           item.Name,
			Sku:            item.Sku,
			Category:       item.Category,
			ItemGroup:      item.ItemGroup,
			Picture:        item.Picture,
			Price:          item.Price.StringFixed(2),
			IsAvailable:    item.IsAvailable,
			IsDiscountable: item.IsDiscountable,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": resp})
}

// ListCombos handles GET /menu/combos.
func (h *MenuHandler) ListCombos(w http.ResponseWriter, r *http.Request) {
	combos, err := h.lister.ListCombos(r.Context())
	if err != nil {
		log.Printf("ERROR: list combos: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]comboResponse, len(combos))
	for i, c := range combos {
		resp[i] = comboResponse{
			ID:             c.ID,
			Name:           c.Name,
			Sku:            c.Sku,
			Category:       c.Category,
			ItemGroup:      c.ItemGroup,
			Picture:        c.Picture,
			Price:          c.Price.StringFixed(2),
			IsAvailable:    c.IsAvailable,
			IsDiscountable: c.IsDiscountable,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"combos": resp})
}
