// Package realtime is the websocket chat layer: presence, per-pair rooms,
// message delivery, typing relay and a client-side connection manager.
//
// Every frame in either direction is an Envelope. Requests that expect an
// answer (check_user_in_chat) carry an id which the reply echoes.
package realtime

import (
	"encoding/json"

	"github.com/PaulBabatuyi/skillswap/internal/data"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Client to server events.
const (
	EventUserOnline      = "user_online"
	EventJoinChat        = "join_chat"
	EventLeaveChat       = "leave_chat"
	EventSendMessage     = "send_message"
	EventTyping          = "typing"
	EventCheckUserInChat = "check_user_in_chat"
)

// Server to client events.
const (
	EventReceiveMessage      = "receive_message"
	EventMessageNotification = "message_notification"
	EventUserTyping          = "user_typing"
	EventMessageError        = "message_error"
	EventError               = "error"
	// EventNewNotification matches notify.EventNewNotification.
	EventNewNotification = "new_notification"
)

// Envelope is one websocket frame.
type Envelope struct {
	Event string          `json:"event"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into an Envelope.
func NewEnvelope(event, id string, payload any) (Envelope, error) {
	ev := Envelope{Event: event, ID: id}
	if payload == nil {
		return ev, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	ev.Data = b
	return ev, nil
}

// Decode unmarshals the envelope's data into v.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(e.Data, v)
}

// UserOnline announces the connection's user.
type UserOnline struct {
	UserID bson.ObjectID `json:"userId"`
}

// ChatRef names a one-to-one thread; used by join_chat and leave_chat.
type ChatRef struct {
	UserID      bson.ObjectID `json:"userId"`
	OtherUserID bson.ObjectID `json:"otherUserId"`
}

// SendMessage asks the server to persist and deliver a message.
type SendMessage struct {
	SenderID   bson.ObjectID `json:"senderId"`
	ReceiverID bson.ObjectID `json:"receiverId"`
	Message    string        `json:"message"`
}

// Typing is relayed to the other party in the room.
type Typing struct {
	UserID      bson.ObjectID `json:"userId"`
	OtherUserID bson.ObjectID `json:"otherUserId"`
	IsTyping    bool          `json:"isTyping"`
}

// UserTyping is what the other party receives for a Typing event.
type UserTyping struct {
	UserID   bson.ObjectID `json:"userId"`
	IsTyping bool          `json:"isTyping"`
}

// CheckUserInChat asks whether OtherUserID is viewing the shared thread.
type CheckUserInChat struct {
	OtherUserID bson.ObjectID `json:"otherUserId"`
}

// UserInChat answers CheckUserInChat.
type UserInChat struct {
	InChat bool `json:"inChat"`
}

// MessageError reports a failed send_message. Blocked is set when the
// blocking gate refused it.
type MessageError struct {
	Message string `json:"message"`
	Blocked bool   `json:"blocked"`
}

// MessageNotification is pushed to a receiver who is online but not in the
// thread's room.
type MessageNotification struct {
	SenderID bson.ObjectID `json:"senderId"`
	Preview  string        `json:"preview"`
	Message  *data.Message `json:"message"`
}
