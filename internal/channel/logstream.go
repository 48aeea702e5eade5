package channel

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPingPeriod = 30 * time.Second
	streamBuffer     = 256
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Callers are already authenticated by bearer token.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleLogStream upgrades to a WebSocket and pushes each new activity
// entry as a JSON text frame. ?backlog=N first replays the N newest entries.
func (h *HTTP) handleLogStream(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Activity == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "activity log disabled"})
		return
	}
	backlog := 0
	if v := r.URL.Query().Get("backlog"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "backlog must be a non-negative integer"})
			return
		}
		backlog = n
	}

	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("log stream upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	// Subscribe before replaying so nothing falls between the two.
	entries, cancel := h.cfg.Activity.Subscribe(streamBuffer)
	defer cancel()

	if backlog > 0 {
		for _, e := range h.cfg.Activity.Recent(backlog) {
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		}
	}

	// The client sends nothing; reading only notices when it goes away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case e, ok := <-entries:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		}
	}
}
