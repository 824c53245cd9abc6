package session

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"learningodyssey/internal/choice"
	"learningodyssey/internal/content"
	"learningodyssey/internal/store"
	"learningodyssey/internal/streamhandler"
)

// upgrader mirrors the tarsy hub's permissive CheckOrigin: this engine is
// consumed by a dedicated frontend, not browsers enforcing same-origin
// policy against a public API, so origin checking is left to whatever
// reverse proxy sits in front of this service.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const pongWait = 60 * time.Second

// Handler upgrades incoming HTTP requests to WebSocket connections and spins
// up one Coordinator per connection. Unlike the tarsy single shared hub,
// there is no fan-out here: each connection gets its own Coordinator,
// its own read loop, and its own writer goroutine.
type Handler struct {
	stream      *streamhandler.Handler
	choice      *choice.Processor
	store       store.Store
	catalog     content.StoryCatalog
	lessons     content.LessonBank
	environment string
	logger      *slog.Logger
}

func NewHandler(stream *streamhandler.Handler, choiceProc *choice.Processor, st store.Store, catalog content.StoryCatalog, lessons content.LessonBank, environment string, logger *slog.Logger) *Handler {
	return &Handler{
		stream:      stream,
		choice:      choiceProc,
		store:       st,
		catalog:     catalog,
		lessons:     lessons,
		environment: environment,
		logger:      logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("session: websocket upgrade failed", slog.String("error", err.Error()))
		}
		return
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	coordinator := New(conn, h.stream, h.choice, h.store, h.catalog, h.lessons, h.environment, h.logger)

	if err := coordinator.Run(r.Context()); err != nil && h.logger != nil {
		h.logger.Info("session: adventure connection ended", slog.String("error", err.Error()))
	}
}
