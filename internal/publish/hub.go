package publish

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// #region messages

// MessageType tags a pushed frame so UI clients can route it.
type MessageType string

const (
	TypeChat      MessageType = "chat"
	TypeDiagnosis MessageType = "diagnosis"
	TypeQuestions MessageType = "questions"
	TypeAnalytics MessageType = "analytics"
	TypeStatus    MessageType = "status"
	TypeEducation MessageType = "education"
	TypeChecklist MessageType = "checklist"
	TypeReport    MessageType = "report"
)

// Message is one frame pushed to every connected UI client.
type Message struct {
	Type MessageType `json:"type"`
	Data any         `json:"data"`
}

// #endregion

// #region hub

const writeWait = 5 * time.Second

// Hub fans analysis results out to connected WebSocket clients. Publishing
// never blocks the caller: a slow or dead client is dropped, not waited on.
type Hub struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the request and keeps the connection registered until
// the client goes away. Inbound frames are drained and discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[PUBLISH] upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	n := len(h.conns)
	h.mu.Unlock()
	log.Printf("[PUBLISH] client connected (%d total)", n)

	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	conn.Close()
}

// Broadcast marshals msg once and writes it to every client. Write errors
// drop the offending client and are otherwise ignored.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[PUBLISH] marshal %s: %v", msg.Type, err)
		return
	}

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("[PUBLISH] write %s: %v, dropping client", msg.Type, err)
			h.drop(c)
		}
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()

	for _, c := range conns {
		c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.Close()
	}
}

// #endregion
