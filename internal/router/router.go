package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tabletab-pos/api/internal/config"
	"github.com/tabletab-pos/api/internal/handler"
	"github.com/tabletab-pos/api/internal/inventory"
	"github.com/tabletab-pos/api/internal/menu"
	mw "github.com/tabletab-pos/api/internal/middleware"
	"github.com/tabletab-pos/api/internal/service"
	"github.com/tabletab-pos/api/internal/store"
	"github.com/tabletab-pos/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
func New(cfg *config.Config, pool *pgxpool.Pool, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	queries := store.New(pool)
	resolver := menu.NewResolver(pool)
	stock := inventory.NewHTTPClient(cfg.InventoryURL)

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/sessions/{sid}/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		menuHandler := handler.NewMenuHandler(resolver)
		r.Route("/menu", menuHandler.RegisterRoutes)

		newOrderStore := func(db store.DBTX) service.OrderStore {
			return store.New(db)
		}
		orderService := service.NewOrderService(pool, newOrderStore, resolver, stock)
		orderHandler := handler.NewOrderHandler(orderService, queries, hub)
		r.Route("/orders", orderHandler.RegisterRoutes)
	})

	return r
}
