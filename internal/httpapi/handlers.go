package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/DoyleJ11/crossword-backend/internal/coordinator"
)

type statsResponse struct {
	Sessions int `json:"sessions"`
	Rooms    int `json:"rooms"`
}

func Stats(c *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan coordinator.View, 1)
		if err := c.Send(r.Context(), coordinator.GetState{Reply: reply}); err != nil {
			http.Error(w, "coordinator unavailable", http.StatusServiceUnavailable)
			return
		}

		var view coordinator.View
		select {
		case view = <-reply:
		case <-c.Done():
			http.Error(w, "coordinator unavailable", http.StatusServiceUnavailable)
			return
		case <-time.After(5 * time.Second):
			http.Error(w, "coordinator busy", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(statsResponse{Sessions: len(view.Sessions), Rooms: view.Rooms})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
