// Package gateway assembles the storefront's public HTTP surface.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/joao-fontenele/storefront/internal/auth"
	"github.com/joao-fontenele/storefront/internal/cart"
	"github.com/joao-fontenele/storefront/internal/checkout"
	"github.com/joao-fontenele/storefront/internal/orders"
	"github.com/joao-fontenele/storefront/internal/telemetry"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Dependencies struct {
	Checkout *checkout.Handler
	Orders   *orders.Handler
	Cart     *cart.Handler
	Sessions auth.Resolver
	Store    Pinger
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
}

func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(telemetry.RouteAttributes)

	r.Get("/healthz", healthHandler(deps.Store, deps.Logger))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(deps.Sessions, deps.Logger))

		r.Post("/checkout", deps.Checkout.HandleCheckout)

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", deps.Orders.HandleList)
			r.Get("/stats", deps.Orders.HandleStats)
			r.Get("/{orderID}", deps.Orders.HandleGet)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", deps.Cart.HandleGet)
			r.Put("/items/{productID}", deps.Cart.HandleSetItem)
			r.Delete("/items/{productID}", deps.Cart.HandleRemoveItem)
		})
	})

	return r
}

func healthHandler(store Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status, body := http.StatusOK, map[string]string{"status": "ok"}
		if err := store.Ping(ctx); err != nil {
			logger.Warn("health check failed", "error", err)
			status, body = http.StatusServiceUnavailable, map[string]string{"status": "unavailable"}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(body); err != nil {
			logger.Error("failed to encode response", "error", err)
		}
	}
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Info("request handled",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
