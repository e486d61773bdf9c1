package ws

import (
	"net/http"
	"time"

	"kitchen-display/internal/util"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendTimeout  = 5 * time.Second
	idleTimeout  = 45 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 64
)

// Client is one connected display. Displays only listen.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	room string
	send chan []byte
}

// drain discards whatever the display sends and leaves the hub once the
// connection drops or stays silent past idleTimeout.
func (c *Client) drain() {
	defer func() {
		c.hub.leave(c)
		_ = c.conn.Close()
	}()

	extend := func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	}
	c.conn.SetReadLimit(256)
	_ = extend("")
	c.conn.SetPongHandler(extend)

	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("Display connection lost", zap.String("room", c.room), zap.Error(err))
			}
			return
		}
	}
}

// pump writes every hub event as its own text frame and pings between
// events. It returns when the hub closes send or a write fails.
func (c *Client) pump() {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(sendTimeout))
				return
			}
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(kind int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(sendTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(kind, data)
}

// NewUpgrader builds an upgrader accepting the given origins. An empty list
// or "*" accepts any origin.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowAll || origin == "" || allowed[origin]
		},
	}
}

// ServeWS upgrades the request and joins the client to the room named by the
// "room" query parameter (stations by default)
func ServeWS(hub *Hub, upgrader *websocket.Upgrader, w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	switch room {
	case "":
		room = RoomStations
	case RoomStations, RoomKitchens:
	default:
		http.Error(w, "unknown room", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		util.GetLogger().Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:  hub,
		conn: conn,
		room: room,
		send: make(chan []byte, sendBuffer),
	}
	if !client.hub.join(client) {
		conn.Close()
		return
	}

	go client.pump()
	go client.drain()
}
