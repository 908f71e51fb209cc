package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Dosada05/swiss-engine/live"
)

type WebSocketHandler struct {
	hub    *live.Hub
	logger *slog.Logger
}

func NewWebSocketHandler(hub *live.Hub, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, logger: logger}
}

// Subscribe joins the live feed of one tournament. The room name is the
// tournament ID; anyone may watch, no token required.
func (h *WebSocketHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		http.Error(w, "invalid tournament id", http.StatusBadRequest)
		return
	}

	if err := h.hub.ServeWS(w, r, strconv.Itoa(id)); err != nil {
		// The upgrader already wrote the handshake error to the client.
		h.logger.Debug("websocket upgrade failed",
			slog.Int("tournament_id", id), slog.Any("error", err))
	}
}
