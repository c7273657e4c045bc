package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The gateway runs on the clinician's machine; the front-end is the
		// only expected origin. Tighten when the deployment story changes.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// snapshotInterval paces the live snapshot push. Fast enough for a smooth
// level meter, slow enough to stay negligible next to the audio path.
const snapshotInterval = 250 * time.Millisecond

const writeTimeout = 5 * time.Second

// handleLiveSession upgrades to a websocket and pushes session snapshots
// until the client goes away. The socket is read-only from the client's
// side; control stays on the JSON endpoints.
func (h *Handler) handleLiveSession(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	h.logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("Live session socket connected")

	// Drain client frames so close handshakes and pings are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	// First snapshot immediately so the UI renders without waiting a tick.
	if err := h.writeSnapshot(conn); err != nil {
		return
	}

	for {
		select {
		case <-done:
			h.logger.Debug().Msg("Live session socket closed by client")
			return
		case <-ticker.C:
			if err := h.writeSnapshot(conn); err != nil {
				return
			}
		}
	}
}

func (h *Handler) writeSnapshot(conn *websocket.Conn) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(h.sessions.Snapshot()); err != nil {
		h.logger.Debug().Err(err).Msg("Live session socket write failed")
		return err
	}
	return nil
}
