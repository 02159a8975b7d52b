package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/planning-poker-backend/internal/hub"
	"github.com/DoyleJ11/planning-poker-backend/internal/room"
	api "github.com/DoyleJ11/planning-poker-backend/pkg/types"
)

const queryTimeout = 2 * time.Second

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GetRoom answers whether a room exists, so clients can check an invite link
// before opening a socket.
func GetRoom(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "roomId")

		reply := make(chan *api.RoomInfo, 1)
		if !h.Send(hub.GetRoom{RoomID: id, Reply: reply}) {
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}

		select {
		case info := <-reply:
			if info == nil {
				writeJSON(w, http.StatusNotFound, api.RoomError{Message: "Room not found."})
				return
			}
			writeJSON(w, http.StatusOK, info)
		case <-time.After(queryTimeout):
			log.Warn("room lookup timed out", zap.String("room_id", id))
			http.Error(w, "timeout", http.StatusGatewayTimeout)
		case <-r.Context().Done():
		}
	}
}

func CardSets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, room.CardSets)
}

// Healthz reports ok with live counts once the hub loop answers. A stopped or
// wedged loop makes the check fail.
func Healthz(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan hub.Stats, 1)
		if !h.Send(hub.GetStats{Reply: reply}) {
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}

		select {
		case st := <-reply:
			writeJSON(w, http.StatusOK, api.Health{Status: "ok", Rooms: st.Rooms, Clients: st.Clients})
		case <-time.After(queryTimeout):
			log.Warn("health check timed out")
			http.Error(w, "hub not responding", http.StatusServiceUnavailable)
		case <-r.Context().Done():
		}
	}
}
