package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/PaulBabatuyi/skillswap/internal/apperr"
	"github.com/PaulBabatuyi/skillswap/internal/data"
	"github.com/PaulBabatuyi/skillswap/internal/logging"
	"github.com/PaulBabatuyi/skillswap/internal/middleware"

	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/time/rate"
)

// EventMessageSent acknowledges a send_message that carried an id, with the
// saved message as data.
const EventMessageSent = "message_sent"

// DefaultSendPerMinute limits send_message per connection.
const DefaultSendPerMinute = 120

const sendTimeout = 10 * time.Second

// MessageSender persists a chat message behind the blocking gate and fans it
// out. *messaging.Service satisfies it.
type MessageSender interface {
	Send(ctx context.Context, senderID, receiverID bson.ObjectID, body string) (*data.Message, error)
}

// Handler upgrades authenticated requests to websocket connections and runs
// the chat protocol on them. It must be mounted behind middleware.RequireAuth.
type Handler struct {
	hub           *Hub
	messages      MessageSender
	logger        *slog.Logger
	upgrader      websocket.Upgrader
	sendPerMinute int
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithSendRate sets the per-connection send_message rate.
func WithSendRate(perMinute int) HandlerOption {
	return func(h *Handler) { h.sendPerMinute = perMinute }
}

// WithCheckOrigin replaces the handshake origin check.
func WithCheckOrigin(fn func(*http.Request) bool) HandlerOption {
	return func(h *Handler) { h.upgrader.CheckOrigin = fn }
}

// NewHandler returns a Handler.
func NewHandler(hub *Hub, messages MessageSender, logger *slog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		hub:      hub,
		messages: messages,
		logger:   logging.OrDiscard(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// origins are enforced by the CORS layer
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sendPerMinute: DefaultSendPerMinute,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		h.logger.Warn("websocket upgrade failed", "user_id", userID.Hex(), "error", err)
		return
	}

	c := newClient(ws, userID, h.newLimiter())
	c.id = h.hub.Register(c)
	h.logger.Info("websocket connected", "user_id", userID.Hex(), "conn_id", c.id)

	go c.writePump()
	h.readPump(r.Context(), c)
}

func (h *Handler) newLimiter() *rate.Limiter {
	n := h.sendPerMinute
	if n <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := n / 6
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), burst)
}

func (h *Handler) readPump(ctx context.Context, c *client) {
	defer func() {
		h.hub.Unregister(c.id)
		c.close()
		h.logger.Info("websocket disconnected", "user_id", c.userID.Hex(), "conn_id", c.id)
	}()

	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		h.hub.Refresh(c.id)
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", "conn_id", c.id, "error", err)
			}
			return
		}
		var ev Envelope
		if err := json.Unmarshal(raw, &ev); err != nil {
			h.reply(c, EventError, "", MessageError{Message: "malformed frame"})
			continue
		}
		h.dispatch(ctx, c, ev)
	}
}

func (h *Handler) dispatch(ctx context.Context, c *client, ev Envelope) {
	switch ev.Event {
	case EventUserOnline:
		var p UserOnline
		if !h.decode(c, ev, &p) {
			return
		}
		if !h.self(c, ev, p.UserID) {
			return
		}
		h.hub.SetOnline(c.id, c.userID.Hex())

	case EventJoinChat, EventLeaveChat:
		var p ChatRef
		if !h.decode(c, ev, &p) || !h.self(c, ev, p.UserID) {
			return
		}
		if p.OtherUserID.IsZero() {
			h.reply(c, EventError, ev.ID, MessageError{Message: "otherUserId is required"})
			return
		}
		room := RoomFor(c.userID, p.OtherUserID)
		if ev.Event == EventJoinChat {
			h.hub.Join(c.id, room)
		} else {
			h.hub.Leave(c.id, room)
		}

	case EventSendMessage:
		h.sendMessage(ctx, c, ev)

	case EventTyping:
		var p Typing
		if !h.decode(c, ev, &p) || !h.self(c, ev, p.UserID) {
			return
		}
		out, err := NewEnvelope(EventUserTyping, "", UserTyping{UserID: c.userID, IsTyping: p.IsTyping})
		if err != nil {
			return
		}
		_ = h.hub.Broadcast(RoomFor(c.userID, p.OtherUserID), out, c.id)

	case EventCheckUserInChat:
		var p CheckUserInChat
		if !h.decode(c, ev, &p) {
			return
		}
		inChat := h.hub.InRoom(p.OtherUserID.Hex(), RoomFor(c.userID, p.OtherUserID))
		h.reply(c, EventCheckUserInChat, ev.ID, UserInChat{InChat: inChat})

	default:
		h.reply(c, EventError, ev.ID, MessageError{Message: "unknown event " + ev.Event})
	}
}

func (h *Handler) sendMessage(ctx context.Context, c *client, ev Envelope) {
	var p SendMessage
	if err := ev.Decode(&p); err != nil {
		h.reply(c, EventMessageError, ev.ID, MessageError{Message: "malformed send_message"})
		return
	}
	if !p.SenderID.IsZero() && p.SenderID != c.userID {
		h.reply(c, EventMessageError, ev.ID, MessageError{Message: "senderId does not match the authenticated user"})
		return
	}
	if !c.limiter.Allow() {
		h.reply(c, EventMessageError, ev.ID, MessageError{Message: "You are sending messages too quickly."})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	msg, err := h.messages.Send(ctx, c.userID, p.ReceiverID, p.Message)
	if err != nil {
		me := MessageError{Message: "Failed to send message.", Blocked: errors.Is(err, apperr.ErrBlocked)}
		if apperr.KindOf(err) != apperr.KindInternal {
			me.Message = apperr.MessageOf(err)
		} else {
			h.logger.Error("send_message failed", "conn_id", c.id, "error", err)
		}
		h.reply(c, EventMessageError, ev.ID, me)
		return
	}
	if ev.ID != "" {
		h.reply(c, EventMessageSent, ev.ID, msg)
	}
}

func (h *Handler) decode(c *client, ev Envelope, v any) bool {
	if err := ev.Decode(v); err != nil {
		h.reply(c, EventError, ev.ID, MessageError{Message: "malformed " + ev.Event})
		return false
	}
	return true
}

// self checks that a payload's user id, when given, is the connection's user.
func (h *Handler) self(c *client, ev Envelope, id bson.ObjectID) bool {
	if id.IsZero() || id == c.userID {
		return true
	}
	h.reply(c, EventError, ev.ID, MessageError{Message: "userId does not match the authenticated user"})
	return false
}

func (h *Handler) reply(c *client, event, id string, payload any) {
	out, err := NewEnvelope(event, id, payload)
	if err != nil {
		h.logger.Error("encode reply", "event", event, "error", err)
		return
	}
	if err := c.Send(out); err != nil {
		h.logger.Debug("reply dropped", "conn_id", c.id, "event", event, "error", err)
	}
}
