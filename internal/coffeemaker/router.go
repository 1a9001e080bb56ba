// internal/coffeemaker/router.go
package coffeemaker

import (
	"net/http"
	"time"

	"coffeemaker/internal/platform/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

// NewRouter mounts the handler under /api/v1. A nil limiter leaves purchases unthrottled.
func NewRouter(h *Handler, log *logger.Logger, limiter *rate.Limiter) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.With(rateLimit(limiter)).Post("/makecoffee/{name}", h.MakeCoffee)

		r.Get("/recipes", h.ListRecipes)
		r.Post("/recipes", h.AddRecipe)
		r.Get("/recipes/{name}", h.GetRecipe)
		r.Put("/recipes/{name}", h.UpdateRecipe)
		r.Delete("/recipes/{name}", h.DeleteRecipe)

		r.Get("/inventory", h.GetInventory)
		r.Put("/inventory", h.ReplenishInventory)

		r.Get("/events", h.ListEvents)
	})
	return r
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logger.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("request",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		})
	}
}

func rateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeError(w, http.StatusTooManyRequests, "rate_limited", "too many purchase requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
