package handler

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/dialpool/internal/auth"
)

// LiveSession upgrades an authenticated request to a live event stream.
type LiveSession interface {
	ServeWS(w http.ResponseWriter, r *http.Request, userID string)
}

// LiveHandler serves GET /api/live.
type LiveHandler struct {
	session LiveSession
	logger  *slog.Logger
}

// NewLiveHandler creates a new LiveHandler.
func NewLiveHandler(session LiveSession, logger *slog.Logger) *LiveHandler {
	return &LiveHandler{session: session, logger: logger}
}

// RegisterRoutes registers the live route. requireUser must accept query tokens
// because browsers cannot set headers on WebSocket requests.
func (h *LiveHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("GET /api/live", requireUser(h))
}

// ServeHTTP upgrades the connection for the authenticated user.
func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r)
	if userID == "" {
		UnauthorizedResponse(w, r, h.logger)
		return
	}
	h.session.ServeWS(w, r, userID)
}
