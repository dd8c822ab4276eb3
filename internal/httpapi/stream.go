package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"nhooyr.io/websocket"
)

var heartbeatFrame = []byte(`{"type":"heartbeat"}`)

// handleStream upgrades the request to a websocket and forwards the
// user's notifications as they are published. Heartbeats keep
// intermediaries from idling the connection out; clients discard them.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, claims tokenClaims) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = claims.UserID
	}
	if userID != claims.UserID {
		writeError(w, http.StatusForbidden, "forbidden", "stream user does not match token", getCorrelationID(r))
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	feed, cancel := s.store.Subscribe(userID)
	defer cancel()

	// CloseRead pumps control frames and cancels the context once the
	// peer goes away.
	ctx := conn.CloseRead(r.Context())

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "client closed")
			return
		case n, ok := <-feed:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			payload, err := json.Marshal(n)
			if err != nil {
				continue
			}
			if err := s.writeStreamFrame(ctx, conn, payload); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.writeStreamFrame(ctx, conn, heartbeatFrame); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeStreamFrame(ctx context.Context, conn *websocket.Conn, payload []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, s.cfg.StreamWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, payload)
}
