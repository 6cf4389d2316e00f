package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// AttachRoutes wires the tracking HTTP/WebSocket routes onto r.
func AttachRoutes(r chi.Router, h *Handler) {
	r.Use(h.metricsMiddleware)
	r.Use(middleware.RequestID)
	r.Use(JSONLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Get("/metrics", h.Metrics)

	r.Get("/buses/near", h.NearBuses)
	r.Get("/buses/{busId}", h.GetBus)
	r.Get("/buses", h.ListBuses)
	r.Get("/routes/{routeId}", h.GetRoute)

	r.Get("/ws/driver", h.DriverSocket)
	r.Get("/ws/passenger", h.PassengerSocket)
}
