/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/items/*       Item management + stock ledger reports
  /api/purchases/*   Purchase documents and their lines
  /api/sales/*       Sale documents and their lines

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/warp/stock-engine/store/sqlite"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Item routes
		r.Route("/items", func(r chi.Router) {
			r.Get("/", h.ListItems)
			r.Post("/", h.CreateItem)
			r.Get("/{code}", h.GetItem)
			r.Put("/{code}", h.UpdateItem)
			r.Delete("/{code}", h.DeleteItem)
			r.Get("/{code}/report", h.GetReport)
		})

		// Purchase document routes
		r.Route("/purchases", func(r chi.Router) {
			r.Get("/", h.ListHeaders(sqlite.HeaderPurchase))
			r.Post("/", h.CreateHeader(sqlite.HeaderPurchase))
			r.Get("/{code}", h.GetHeader(sqlite.HeaderPurchase))
			r.Delete("/{code}", h.DeleteHeader(sqlite.HeaderPurchase))
			r.Get("/{code}/details", h.ListPurchaseLines)
			r.Post("/{code}/details", h.CreatePurchaseLine)
		})

		// Sale document routes
		r.Route("/sales", func(r chi.Router) {
			r.Get("/", h.ListHeaders(sqlite.HeaderSale))
			r.Post("/", h.CreateHeader(sqlite.HeaderSale))
			r.Get("/{code}", h.GetHeader(sqlite.HeaderSale))
			r.Delete("/{code}", h.DeleteHeader(sqlite.HeaderSale))
			r.Get("/{code}/details", h.ListSaleLines)
			r.Post("/{code}/details", h.CreateSaleLine)
		})
	})

	return r
}
