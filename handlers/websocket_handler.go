package handlers

import (
	"log/slog"
	"net/http"

	"github.com/Dosada05/wager-match/models"
	"github.com/Dosada05/wager-match/realtime"
	"github.com/Dosada05/wager-match/services"
	"github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	hub          *realtime.Hub
	matchService services.MatchService
	upgrader     websocket.Upgrader
	logger       *slog.Logger
}

// NewWebSocketHandler accepts connections whose Origin is in allowedOrigins.
// An empty list or "*" allows every origin.
func NewWebSocketHandler(hub *realtime.Hub, ms services.MatchService, allowedOrigins []string, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &WebSocketHandler{
		hub:          hub,
		matchService: ms,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || allowed["*"] || origin == "" || allowed[origin]
			},
		},
	}
}

// ServeWs godoc
// @Summary Подписка на изменения матча
// @Tags matches
// @Description WebSocket: сервер присылает MATCH_UPDATED с полной записью матча после каждого изменения.
// @Param code path string true "Код матча"
// @Security BearerAuth
// @Router /ws/matches/{code} [get]
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	participantID, ok := currentParticipant(w, r)
	if !ok {
		return
	}
	code := matchCodeFromURL(r)

	match, err := h.matchService.GetMatch(r.Context(), code)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if _, ok := match.RoleOf(participantID); !ok && match.Phase != models.PhaseWaiting {
		mapServiceErrorToHTTP(w, r, services.ErrNotParticipant)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам отправляет HTTP-ошибку клиенту.
		h.logger.Warn("failed to upgrade websocket", slog.String("code", code), slog.Any("error", err))
		return
	}

	// Свежий снимок после upgrade; он уходит клиенту раньше любых рассылок комнаты.
	if fresh, err := h.matchService.GetMatch(r.Context(), code); err == nil {
		match = fresh
	}
	client := realtime.NewClient(h.hub, conn, code)
	joined, err := h.hub.JoinWithSnapshot(client, realtime.Message{Type: realtime.MessageMatchUpdated, Payload: match, RoomID: code})
	if err != nil {
		h.logger.Warn("failed to queue initial match state", slog.String("code", code), slog.Any("error", err))
	}
	if !joined {
		_ = conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
