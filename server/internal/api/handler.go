package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/datastream/datastream/server/internal/ws"
)

// maxBroadcastBody caps the size of a broadcast request body.
const maxBroadcastBody = 1 << 20

// Hub is the subset of *ws.Hub the API serves.
type Hub interface {
	Count() int
	Sessions() []ws.SessionInfo
	Disconnect(id string) bool
	Broadcast(ctx context.Context, v any) (ws.Result, error)
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	hub Hub
	now func() time.Time
	mux *http.ServeMux
}

// New creates a Handler wired to hub and registers all routes.
func New(hub Hub) http.Handler {
	h := &Handler{hub: hub, now: time.Now, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/sessions", h.listSessions)
	h.mux.HandleFunc("/api/v1/sessions/", h.deleteSession) // subtree, extracts {id}
	h.mux.HandleFunc("/api/v1/broadcast", h.broadcast)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health - liveness and session count.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		Sessions:    h.hub.Count(),
		GeneratedAt: h.now().UTC().Format(time.RFC3339),
	})
}

// listSessions returns GET /api/v1/sessions - registered sessions, oldest first.
func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sessions := h.hub.Sessions()
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].ConnectedAt.Equal(sessions[j].ConnectedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].ConnectedAt.Before(sessions[j].ConnectedAt)
	})
	jsonResp(w, http.StatusOK, SessionsResponse{Count: len(sessions), Sessions: sessions})
}

// deleteSession handles DELETE /api/v1/sessions/{id} - closes one session.
func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/sessions/")
	if id == "" {
		h.listSessions(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !h.hub.Disconnect(id) {
		jsonErr(w, http.StatusNotFound, "session not found")
		return
	}
	slog.Info("api: session disconnected", "session", id)
	w.WriteHeader(http.StatusNoContent)
}

// broadcast handles POST /api/v1/broadcast - sends the JSON body verbatim to
// every open session.
func (h *Handler) broadcast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBroadcastBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonErr(w, http.StatusRequestEntityTooLarge, "body too large")
			return
		}
		jsonErr(w, http.StatusBadRequest, "read body failed")
		return
	}
	if len(body) == 0 || !json.Valid(body) {
		jsonErr(w, http.StatusBadRequest, "body must be a JSON value")
		return
	}

	res, err := h.hub.Broadcast(r.Context(), json.RawMessage(body))
	if err != nil {
		slog.Error("api: broadcast failed", "err", err)
		jsonErr(w, http.StatusInternalServerError, "broadcast failed")
		return
	}
	jsonResp(w, http.StatusOK, BroadcastResponse{Delivered: res.Delivered, Failed: res.Failed})
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
