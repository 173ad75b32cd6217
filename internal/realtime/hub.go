package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/PaulBabatuyi/skillswap/internal/data"
	"github.com/PaulBabatuyi/skillswap/internal/logging"
	"github.com/PaulBabatuyi/skillswap/internal/messaging"
	"github.com/PaulBabatuyi/skillswap/internal/normalize"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const presenceTimeout = 2 * time.Second

// Sender is the minimal interface the hub needs from a connection: queue a
// frame for the client. It must not block.
type Sender interface {
	Send(Envelope) error
}

type connection struct {
	sender Sender
	userID string // empty until user_online
	rooms  map[string]bool
}

// Hub tracks live connections, which user each represents, and which rooms
// they have joined. A user maps to at most one connection: a later
// user_online replaces the earlier mapping.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*connection
	users map[string]string          // user id -> conn id
	rooms map[string]map[string]bool // room -> conn ids

	presence Presence
	logger   *slog.Logger
}

// NewHub creates a hub. presence may be nil.
func NewHub(presence Presence, logger *slog.Logger) *Hub {
	return &Hub{
		conns:    make(map[string]*connection),
		users:    make(map[string]string),
		rooms:    make(map[string]map[string]bool),
		presence: presence,
		logger:   logging.OrDiscard(logger),
	}
}

// RoomFor is the room shared by two users, the same whichever joins first.
func RoomFor(a, b bson.ObjectID) string {
	return normalize.PairKey(a.Hex(), b.Hex())
}

// Register adds a connection and returns its id, which should be used later
// to unregister it when it closes.
func (h *Hub) Register(s Sender) string {
	id := uuid.NewString()
	h.mu.Lock()
	h.conns[id] = &connection{sender: s, rooms: make(map[string]bool)}
	h.mu.Unlock()
	return id
}

// SetOnline maps userID to connID. Any earlier connection for the user stops
// receiving user and room traffic but stays open.
func (h *Hub) SetOnline(connID, userID string) {
	h.mu.Lock()
	c, ok := h.conns[connID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if prev, ok := h.users[userID]; ok && prev != connID {
		if old, ok := h.conns[prev]; ok {
			h.leaveAllLocked(prev, old)
			old.userID = ""
		}
	}
	c.userID = userID
	h.users[userID] = connID
	h.mu.Unlock()

	h.withPresence("set online", func(ctx context.Context, p Presence) error {
		return p.SetOnline(ctx, userID, connID)
	})
	h.logger.Debug("user online", "user_id", userID, "conn_id", connID)
}

// Refresh extends the presence entry of connID's user.
func (h *Hub) Refresh(connID string) {
	h.mu.RLock()
	var userID string
	if c, ok := h.conns[connID]; ok {
		userID = c.userID
	}
	h.mu.RUnlock()
	if userID == "" {
		return
	}
	h.withPresence("refresh", func(ctx context.Context, p Presence) error {
		return p.Refresh(ctx, userID, connID)
	})
}

// Unregister removes a connection, its room memberships and, if it still
// represents its user, the user's presence.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	c, ok := h.conns[connID]
	if !ok {
		h.mu.Unlock()
		return
	}
	h.leaveAllLocked(connID, c)
	delete(h.conns, connID)
	userID := c.userID
	owned := userID != "" && h.users[userID] == connID
	if owned {
		delete(h.users, userID)
	}
	h.mu.Unlock()

	if owned {
		h.withPresence("set offline", func(ctx context.Context, p Presence) error {
			return p.SetOffline(ctx, userID, connID)
		})
		h.logger.Debug("user offline", "user_id", userID, "conn_id", connID)
	}
}

// Join adds connID to room.
func (h *Hub) Join(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[connID]
	if !ok {
		return
	}
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[string]bool)
	}
	h.rooms[room][connID] = true
	c.rooms[room] = true
}

// Leave removes connID from room.
func (h *Hub) Leave(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.conns[connID]; ok {
		h.leaveLocked(connID, c, room)
	}
}

func (h *Hub) leaveAllLocked(connID string, c *connection) {
	for room := range c.rooms {
		h.leaveLocked(connID, c, room)
	}
}

func (h *Hub) leaveLocked(connID string, c *connection, room string) {
	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// SendToUser sends ev to the connection currently representing userID. If
// the user is not connected, returns an error. A connection that fails to
// accept the frame is unregistered.
func (h *Hub) SendToUser(userID string, ev Envelope) error {
	h.mu.RLock()
	connID, ok := h.users[userID]
	var c *connection
	if ok {
		c = h.conns[connID]
	}
	h.mu.RUnlock()

	if c == nil {
		return fmt.Errorf("user %s not connected", userID)
	}
	if err := c.sender.Send(ev); err != nil {
		h.Unregister(connID)
		return err
	}
	return nil
}

// Broadcast sends ev to every member of room except the connection except.
// Delivery is best effort: members that fail are unregistered and the first
// error is returned.
func (h *Hub) Broadcast(room string, ev Envelope, except string) error {
	h.mu.RLock()
	targets := make(map[string]Sender, len(h.rooms[room]))
	for id := range h.rooms[room] {
		if id != except {
			targets[id] = h.conns[id].sender
		}
	}
	h.mu.RUnlock()

	var firstErr error
	var failed []string
	for id, s := range targets {
		if err := s.Send(ev); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			failed = append(failed, id)
		}
	}
	for _, id := range failed {
		h.Unregister(id)
	}
	return firstErr
}

// Connected reports whether userID has a connection on this hub.
func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.users[userID]
	return ok
}

// IsOnline reports whether userID is connected here or, per the presence
// store, on another instance.
func (h *Hub) IsOnline(ctx context.Context, userID string) bool {
	if h.Connected(userID) {
		return true
	}
	if h.presence == nil {
		return false
	}
	connID, err := h.presence.Connection(ctx, userID)
	if err != nil {
		h.logger.Warn("presence lookup failed", "user_id", userID, "error", err)
		return false
	}
	return connID != ""
}

// InRoom reports whether the connection representing userID has joined room.
func (h *Hub) InRoom(userID, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	connID, ok := h.users[userID]
	if !ok {
		return false
	}
	return h.rooms[room][connID]
}

// PushToUser sends a server event to userID if connected.
func (h *Hub) PushToUser(userID bson.ObjectID, event string, payload any) bool {
	ev, err := NewEnvelope(event, "", payload)
	if err != nil {
		h.logger.Error("encode push", "event", event, "error", err)
		return false
	}
	return h.SendToUser(userID.Hex(), ev) == nil
}

// DeliverMessage broadcasts a saved message to its pair's room and nudges a
// receiver who is connected elsewhere in the app.
func (h *Hub) DeliverMessage(msg *data.Message) messaging.Report {
	room := RoomFor(msg.SenderID, msg.ReceiverID)
	receiver := msg.ReceiverID.Hex()

	ev, err := NewEnvelope(EventReceiveMessage, "", msg)
	if err != nil {
		h.logger.Error("encode message", "message_id", msg.ID.Hex(), "error", err)
		return messaging.Report{}
	}
	if err := h.Broadcast(room, ev, ""); err != nil {
		h.logger.Warn("room broadcast incomplete", "room", room, "error", err)
	}

	rep := messaging.Report{
		ReceiverOnline: h.Connected(receiver),
		ReceiverInRoom: h.InRoom(receiver, room),
	}
	if rep.ReceiverOnline && !rep.ReceiverInRoom {
		note := MessageNotification{SenderID: msg.SenderID, Preview: preview(msg.Body), Message: msg}
		if !h.PushToUser(msg.ReceiverID, EventMessageNotification, note) {
			rep.ReceiverOnline = false
		}
	}
	return rep
}

func (h *Hub) withPresence(op string, fn func(context.Context, Presence) error) {
	if h.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := fn(ctx, h.presence); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Warn("presence "+op+" failed", "error", err)
	}
}

const previewRunes = 80

func preview(body string) string {
	r := []rune(body)
	if len(r) <= previewRunes {
		return body
	}
	return string(r[:previewRunes]) + "…"
}
