package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// healthStreamInterval is how often the health stream pushes a fresh
// snapshot to each subscriber.
const healthStreamInterval = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // bearer auth already ran; origin adds nothing here
	},
}

// handleHealthStream upgrades to a WebSocket and pushes the organization's
// health snapshots until the client disconnects.
func (s *Server) handleHealthStream(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("org_id")
	if orgID == "" {
		badRequest(w, "org_id is required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.logger.Debug("health stream opened", "org_id", orgID)

	// Reader goroutine: we never expect client messages, but reading is
	// what surfaces close frames and connection loss.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(healthStreamInterval)
	defer ticker.Stop()

	for {
		snaps, err := s.svc.Health.OrganizationHealth(r.Context(), orgID)
		if err != nil {
			s.logger.Warn("health stream snapshot failed", "org_id", orgID, "error", err)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "snapshot failed"),
				time.Now().Add(time.Second))
			return
		}

		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(map[string]any{
			"org_id": orgID,
			"at":     time.Now().UTC(),
			"sites":  snaps,
		}); err != nil {
			s.logger.Debug("health stream closed", "org_id", orgID, "error", err)
			return
		}

		select {
		case <-ticker.C:
		case <-done:
			s.logger.Debug("health stream closed by client", "org_id", orgID)
			return
		case <-r.Context().Done():
			return
		}
	}
}
