package httpserver

import (
	"net/http"

	"learningodyssey/internal/middleware"

	"log/slog"

	"github.com/go-chi/chi/v5"
)

type RouterDeps struct {
	Logger        *slog.Logger
	SessionHandler http.Handler
}

// NewRouter assembles the chi router with the shared middleware stack and
// the two routes this service exposes: a liveness check and the single
// WebSocket upgrade endpoint each adventure connects through.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recover(deps.Logger))
	r.Use(middleware.Logging(deps.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/ws", deps.SessionHandler.ServeHTTP)

	return r
}
