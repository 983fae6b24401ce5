// Package realtime keeps live socket membership in per-user and per-plan
// channels and fans events out to them.
package realtime

import (
	"log/slog"
	"sync"

	"github.com/campusmatch/engine/internal/metrics"
)

// Server-to-client event names.
const (
	EventChatNewMessage         = "chat:new-message"
	EventChatTyping             = "chat:typing"
	EventChatSeen               = "chat:seen"
	EventNotificationNew        = "notification:new"
	EventNotificationNewMessage = "notification:new-message"
	EventNotificationNewMatch   = "notification:new-match"
	EventNotificationNewLike    = "notification:new-like"
	EventPlanNewMessage         = "plan:new-message"
	EventAck                    = "ack"
)

// Broadcaster is what request handlers need from the Hub. Delivery is
// at-most-once: a push to a user with no live sockets is a no-op.
type Broadcaster interface {
	PushToUser(userID uint64, event string, payload any)
	PushToRoom(planID uint64, event string, payload any)
	// EvictFromRoom removes every socket of userID from a plan room.
	EvictFromRoom(userID, planID uint64)
}

// Hub is the in-memory channel table. Reads (pushes) vastly outnumber
// membership changes, so one RWMutex guards both maps.
type Hub struct {
	mu    sync.RWMutex
	users map[uint64]map[string]*Client
	rooms map[uint64]map[string]*Client
	log   *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		users: make(map[uint64]map[string]*Client),
		rooms: make(map[uint64]map[string]*Client),
		log:   log,
	}
}

var _ Broadcaster = (*Hub)(nil)

// Register joins the client to its user channel.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	set, ok := h.users[c.UserID]
	if !ok {
		set = make(map[string]*Client)
		h.users[c.UserID] = set
	}
	set[c.ID] = c
	h.mu.Unlock()

	metrics.Connections.Inc()
	h.log.Debug("socket registered", "user_id", c.UserID, "client_id", c.ID)
}

// Unregister drops the client from every channel and closes its queue.
// Calling it twice is harmless.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	set, ok := h.users[c.UserID]
	_, present := set[c.ID]
	if ok && present {
		delete(set, c.ID)
		if len(set) == 0 {
			delete(h.users, c.UserID)
		}
		for planID := range c.rooms {
			h.removeFromRoomLocked(c, planID)
		}
	}
	h.mu.Unlock()

	if present {
		metrics.Connections.Dec()
		h.log.Debug("socket unregistered", "user_id", c.UserID, "client_id", c.ID)
	}
	c.close()
}

// CloseAll unregisters every live client. Transports see their queues close
// and hang up, which is how sockets end on server shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.users))
	for _, set := range h.users {
		for _, c := range set {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.Unregister(c)
	}
	if len(clients) > 0 {
		h.log.Info("closed live sockets", "count", len(clients))
	}
}

// JoinRoom adds the client to a plan room. Authorization is the caller's job.
func (h *Hub) JoinRoom(c *Client, planID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.rooms[planID]
	if !ok {
		set = make(map[string]*Client)
		h.rooms[planID] = set
	}
	set[c.ID] = c
	c.rooms[planID] = struct{}{}
}

// LeaveRoom is idempotent.
func (h *Hub) LeaveRoom(c *Client, planID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromRoomLocked(c, planID)
}

func (h *Hub) EvictFromRoom(userID, planID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.users[userID] {
		h.removeFromRoomLocked(c, planID)
	}
}

func (h *Hub) removeFromRoomLocked(c *Client, planID uint64) {
	delete(c.rooms, planID)
	set, ok := h.rooms[planID]
	if !ok {
		return
	}
	delete(set, c.ID)
	if len(set) == 0 {
		delete(h.rooms, planID)
	}
}

func (h *Hub) PushToUser(userID uint64, event string, payload any) {
	frame, err := Encode(event, payload, "")
	if err != nil {
		h.log.Error("encode push failed", "event", event, "err", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.fanout("user", h.users[userID], frame)
}

func (h *Hub) PushToRoom(planID uint64, event string, payload any) {
	frame, err := Encode(event, payload, "")
	if err != nil {
		h.log.Error("encode push failed", "event", event, "err", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.fanout("room", h.rooms[planID], frame)
}

// fanout never blocks: a slow socket loses the frame, the store still has it.
func (h *Hub) fanout(scope string, set map[string]*Client, frame []byte) {
	for _, c := range set {
		if c.Enqueue(frame) {
			metrics.Pushes.WithLabelValues(scope).Inc()
			continue
		}
		metrics.Dropped.WithLabelValues(scope).Inc()
		h.log.Warn("dropping frame for slow socket", "scope", scope, "user_id", c.UserID, "client_id", c.ID)
	}
}

// Online reports whether userID has at least one live socket.
func (h *Hub) Online(userID uint64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// RoomSize is the number of sockets joined to a plan room.
func (h *Hub) RoomSize(planID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[planID])
}

// InRoom reports whether this client joined the plan room.
func (h *Hub) InRoom(c *Client, planID uint64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[planID]
	return ok
}
