package notify

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 4096                // Maximum message size allowed from peer.
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (Dev mode)
	},
}

// TokenValidator is what the push channel needs from the user service.
// This keeps packages loosely coupled.
type TokenValidator interface {
	ValidateToken(tokenString string) (int, string, error)
}

// WSHandler upgrades connections and runs the authenticate-first handshake:
// the first frame from the client must be {event:"authenticate"} carrying a
// valid token, anything else closes the channel.
type WSHandler struct {
	registry  *Registry
	validator TokenValidator
	authWait  time.Duration
}

func NewWSHandler(registry *Registry, validator TokenValidator, authWait time.Duration) *WSHandler {
	if authWait <= 0 {
		authWait = 10 * time.Second
	}
	return &WSHandler{registry: registry, validator: validator, authWait: authWait}
}

// inboundFrame keeps the payload raw until the event name tells us its shape.
type inboundFrame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func (h *WSHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	userID, ok := h.authenticate(conn)
	if !ok {
		// 1008 tells the client this is an auth failure, not a
		// transport blip: do not retry with backoff.
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed")
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.TextMessage, mustFrame(EventAuthError, nil))
		conn.WriteMessage(websocket.CloseMessage, msg)
		conn.Close()
		return
	}

	session := NewSession(userID)
	h.registry.Register(session)

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, mustFrame(EventAuthenticated, nil)); err != nil {
		h.registry.Unregister(session)
		conn.Close()
		return
	}

	go h.writePump(session, conn)
	go h.readPump(session, conn)
}

func (h *WSHandler) authenticate(conn *websocket.Conn) (int, bool) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(h.authWait))

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return 0, false
	}
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Event != EventAuthenticate {
		return 0, false
	}
	var auth AuthPayload
	if err := json.Unmarshal(frame.Payload, &auth); err != nil || auth.Token == "" {
		return 0, false
	}
	userID, _, err := h.validator.ValidateToken(auth.Token)
	if err != nil || userID == 0 {
		return 0, false
	}
	return userID, true
}

// readPump drains the connection to drive pong handling and notice closes.
// The push protocol is one-directional after authenticate; anything else the
// client sends is ignored.
func (h *WSHandler) readPump(s *Session, conn *websocket.Conn) {
	defer func() {
		h.registry.Unregister(s)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("session %s read error: %v", s.Handle, err)
			}
			return
		}
	}
}

// writePump pumps queued frames to the websocket connection.
func (h *WSHandler) writePump(s *Session, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The registry closed the session.
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
