package ws

import (
	"context"
	"encoding/json"

	"kitchen-display/internal/countdown"
	"kitchen-display/internal/snapshot"
	"kitchen-display/internal/util"

	"go.uber.org/zap"
)

// Rooms a display client can join
const (
	RoomStations = "stations"
	RoomKitchens = "kitchens"
)

// Event types pushed to display clients
const (
	EventBoardChanged    = "board-changed"
	EventKitchensChanged = "kitchens-changed"
	EventCountdown       = "countdown"
)

// Event represents a WebSocket message to be broadcast
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type roomEvent struct {
	Room  string
	Event Event
}

// Hub maintains the set of active clients and broadcasts messages to them.
// rooms is owned by the Run goroutine.
type Hub struct {
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *roomEvent
	done       chan struct{}

	logger *zap.Logger
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *roomEvent, 256),
		done:       make(chan struct{}),
		logger:     util.GetLogger(),
	}
}

// Run starts the hub's main loop and returns when ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			if h.rooms[client.room] == nil {
				h.rooms[client.room] = make(map[*Client]bool)
			}
			h.rooms[client.room][client] = true
			util.WebsocketClients.Inc()

		case client := <-h.unregister:
			h.remove(client)

		case event := <-h.broadcast:
			message, err := json.Marshal(event.Event)
			if err != nil {
				h.logger.Error("Failed to encode websocket event", zap.Error(err))
				continue
			}

			for client := range h.rooms[event.Room] {
				select {
				case client.send <- message:
				default:
					// slow client, drop it
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	clients, ok := h.rooms[client.room]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, client.room)
	}
	util.WebsocketClients.Dec()
}

func (h *Hub) closeAll() {
	for _, clients := range h.rooms {
		for client := range clients {
			h.remove(client)
		}
	}
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// BroadcastToRoom queues an event for every client in room. Events are
// dropped when the hub is backed up.
func (h *Hub) BroadcastToRoom(room, eventType string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to encode websocket payload", zap.String("type", eventType), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- &roomEvent{Room: room, Event: Event{Type: eventType, Payload: raw}}:
	default:
		h.logger.Warn("Websocket broadcast queue full, dropping event", zap.String("type", eventType))
	}
}

// PublishCountdown forwards a countdown tick to station displays
func (h *Hub) PublishCountdown(t countdown.Tick) {
	h.BroadcastToRoom(RoomStations, EventCountdown, t)
}

// NotifyKitchensChanged tells kitchen displays to reload their configuration
func (h *Hub) NotifyKitchensChanged() {
	h.BroadcastToRoom(RoomKitchens, EventKitchensChanged, struct{}{})
}

// RelaySnapshots announces every snapshot version to all displays until ctx
// is cancelled
func (h *Hub) RelaySnapshots(ctx context.Context, snaps *snapshot.Store) {
	changes, unsubscribe := snaps.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case version, ok := <-changes:
			if !ok {
				return
			}
			payload := map[string]uint64{"version": version}
			h.BroadcastToRoom(RoomStations, EventBoardChanged, payload)
			h.BroadcastToRoom(RoomKitchens, EventBoardChanged, payload)
		}
	}
}
