package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"k8s.io/klog/v2"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Events handles GET /v1/lab/events. Every session change and countdown
// tick is pushed to the client as a LabSession JSON message.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	m := h.sessions.Get(user)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		klog.ErrorS(err, "Failed to upgrade connection", "user", user)
		return
	}
	defer conn.Close()

	updates, unsubscribe := m.Subscribe()
	defer unsubscribe()

	klog.V(2).InfoS("Client subscribed to lab events", "user", user)

	// The client never sends anything meaningful; reading surfaces the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					klog.V(2).InfoS("WebSocket read error", "user", user, "err", err)
				}
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			klog.V(2).InfoS("Client disconnected from lab events", "user", user)
			return
		case lab, ok := <-updates:
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(lab); err != nil {
				klog.V(2).InfoS("Failed to write event", "user", user, "err", err)
				return
			}
		}
	}
}
