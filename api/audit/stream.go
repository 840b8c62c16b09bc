package audit

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"AcadFinAudit/internal/logger"
)

// progressEvent is pushed to websocket subscribers as each selected
// row finishes external validation.
type progressEvent struct {
	SessionID string `json:"session_id"`
	Row       int    `json:"row"`
	Done      int    `json:"done"`
	Total     int    `json:"total"`
	Violation bool   `json:"violation"`
	Finished  bool   `json:"finished"`
}

// streamHub fans validation progress out to connected websocket
// clients. Slow or broken clients are dropped rather than blocking the
// validation loop.
type streamHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func newStreamHub() *streamHub {
	return &streamHub{clients: make(map[*websocket.Conn]bool)}
}

func (h *streamHub) subscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Audit("[Audit] websocket upgrade failed: " + err.Error())
		return
	}
	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	// Reader loop only to detect disconnects; clients never send data.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *streamHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

func (h *streamHub) broadcast(ev progressEvent) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		if err := c.WriteJSON(ev); err != nil {
			h.drop(c)
		}
	}
}

func (h *streamHub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		c.Close()
	}
	h.clients = make(map[*websocket.Conn]bool)
	h.mu.Unlock()
}
