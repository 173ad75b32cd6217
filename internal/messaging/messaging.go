// Package messaging owns chat messages and the blocking gate. The realtime
// channel and the synchronous HTTP fallback both send through Service.Send,
// so a blocked pair can never persist a message on either path.
package messaging

import (
	"context"
	"errors"
	"html"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PaulBabatuyi/skillswap/internal/apperr"
	"github.com/PaulBabatuyi/skillswap/internal/data"
	"github.com/PaulBabatuyi/skillswap/internal/logging"
	"github.com/PaulBabatuyi/skillswap/internal/notify"

	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	// MaxBodyRunes caps a chat message.
	MaxBodyRunes = 5000
	// DefaultHistoryLimit caps History when no limit is given.
	DefaultHistoryLimit = 200
	// MaxHistoryLimit is the largest page History will return.
	MaxHistoryLimit = 1000
)

// Store is the persistence the messaging service needs.
type Store interface {
	GetUserByID(ctx context.Context, id bson.ObjectID) (*data.User, error)
	AddBlockedUser(ctx context.Context, userID, other bson.ObjectID) error
	RemoveBlockedUser(ctx context.Context, userID, other bson.ObjectID) error
	SaveMessage(ctx context.Context, senderID, receiverID bson.ObjectID, body string, system bool, sentAt time.Time) (*data.Message, error)
	GetMessageHistory(ctx context.Context, user1, user2 bson.ObjectID, limit int64) ([]*data.Message, error)
	MarkRead(ctx context.Context, receiverID, senderID bson.ObjectID) (int64, error)
}

// Report says how a saved message reached its receiver.
type Report struct {
	ReceiverOnline bool // receiver had a live connection
	ReceiverInRoom bool // receiver was viewing the thread
}

// Delivery fans a persisted message out to connected clients.
type Delivery interface {
	DeliverMessage(msg *data.Message) Report
}

// Notifier records a user-facing notification.
type Notifier interface {
	Notify(ctx context.Context, userID bson.ObjectID, typ data.NotificationType, title, message string, refs notify.Refs) (*data.Notification, error)
}

// BlockStatus describes the blocking relation between a user and another.
type BlockStatus struct {
	IBlockedThem  bool `json:"iBlockedThem"`
	TheyBlockedMe bool `json:"theyBlockedMe"`
	CanMessage    bool `json:"canMessage"`
}

// Service sends and reads messages and toggles blocks.
type Service struct {
	store    Store
	delivery Delivery
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithDelivery sets the realtime fan-out used after a message is saved.
func WithDelivery(d Delivery) Option { return func(s *Service) { s.delivery = d } }

// WithNotifier records a new_message notification for receivers that were
// offline when a message arrived.
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// New returns a Service.
func New(store Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{store: store, logger: logging.OrDiscard(logger), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetDelivery sets the fan-out after construction, for wiring where the
// realtime hub is built after the service.
func (s *Service) SetDelivery(d Delivery) { s.delivery = d }

// Status loads both users and reports the blocking relation from userID's side.
func (s *Service) Status(ctx context.Context, userID, otherID bson.ObjectID) (BlockStatus, error) {
	me, other, err := s.loadPair(ctx, userID, otherID)
	if err != nil {
		return BlockStatus{}, err
	}
	st := BlockStatus{
		IBlockedThem:  me.HasBlocked(otherID),
		TheyBlockedMe: other.HasBlocked(userID),
	}
	st.CanMessage = !st.IBlockedThem && !st.TheyBlockedMe
	return st, nil
}

// CanMessage reports whether neither user has blocked the other.
func (s *Service) CanMessage(ctx context.Context, a, b bson.ObjectID) (bool, error) {
	st, err := s.Status(ctx, a, b)
	if err != nil {
		return false, err
	}
	return st.CanMessage, nil
}

// Send validates, runs the blocking gate, persists the message and hands it
// to the realtime fan-out. A blocked send returns a Blocked error and writes
// nothing.
func (s *Service) Send(ctx context.Context, senderID, receiverID bson.ObjectID, body string) (*data.Message, error) {
	body = strings.TrimSpace(body)
	switch {
	case body == "":
		return nil, apperr.Validation("message is required")
	case utf8.RuneCountInString(body) > MaxBodyRunes:
		return nil, apperr.Validation("message is too long (max %d characters)", MaxBodyRunes)
	case senderID == receiverID:
		return nil, apperr.Validation("you cannot message yourself")
	}

	sender, receiver, err := s.loadPair(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	if receiver.HasBlocked(senderID) {
		return nil, apperr.Blocked("You cannot send messages to this user.")
	}
	if sender.HasBlocked(receiverID) {
		return nil, apperr.Blocked("You have blocked this user. Unblock them to send messages.")
	}

	// Escape HTML so stored content is safe to render in any client
	msg, err := s.store.SaveMessage(ctx, senderID, receiverID, html.EscapeString(body), false, s.now())
	if err != nil {
		return nil, err
	}

	var rep Report
	if s.delivery != nil {
		rep = s.delivery.DeliverMessage(msg)
	}
	if !rep.ReceiverOnline && s.notifier != nil {
		if _, err := s.notifier.Notify(ctx, receiverID, data.NotifyNewMessage,
			"New Message", "New message from "+sender.Name, notify.Refs{User: data.IDPtr(senderID)}); err != nil {
			s.logger.Warn("new message notification failed", "receiver_id", receiverID.Hex(), "error", err)
		}
	}
	return msg, nil
}

// SendSystem persists a server-generated lifecycle message and fans it out.
// The blocking gate does not apply.
func (s *Service) SendSystem(ctx context.Context, senderID, receiverID bson.ObjectID, body string) (*data.Message, error) {
	msg, err := s.store.SaveMessage(ctx, senderID, receiverID, body, true, s.now())
	if err != nil {
		return nil, err
	}
	if s.delivery != nil {
		s.delivery.DeliverMessage(msg)
	}
	return msg, nil
}

// History returns up to limit of the most recent messages between two users,
// oldest first.
func (s *Service) History(ctx context.Context, userID, otherID bson.ObjectID, limit int64) ([]*data.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	msgs, err := s.store.GetMessageHistory(ctx, userID, otherID, limit)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []*data.Message{}
	}
	return msgs, nil
}

// MarkRead flags otherID's messages to userID as read.
func (s *Service) MarkRead(ctx context.Context, userID, otherID bson.ObjectID) (int64, error) {
	return s.store.MarkRead(ctx, userID, otherID)
}

// Block adds otherID to userID's blocked set. Blocking twice is a no-op.
func (s *Service) Block(ctx context.Context, userID, otherID bson.ObjectID) error {
	if userID == otherID {
		return apperr.Validation("you cannot block yourself")
	}
	if _, err := s.user(ctx, otherID); err != nil {
		return err
	}
	err := s.store.AddBlockedUser(ctx, userID, otherID)
	if errors.Is(err, data.ErrNotFound) {
		return apperr.NotFound("user not found")
	}
	return err
}

// Unblock removes otherID from userID's blocked set.
func (s *Service) Unblock(ctx context.Context, userID, otherID bson.ObjectID) error {
	err := s.store.RemoveBlockedUser(ctx, userID, otherID)
	if errors.Is(err, data.ErrNotFound) {
		return apperr.NotFound("user not found")
	}
	return err
}

func (s *Service) loadPair(ctx context.Context, a, b bson.ObjectID) (*data.User, *data.User, error) {
	ua, err := s.user(ctx, a)
	if err != nil {
		return nil, nil, err
	}
	ub, err := s.user(ctx, b)
	if err != nil {
		return nil, nil, err
	}
	return ua, ub, nil
}

func (s *Service) user(ctx context.Context, id bson.ObjectID) (*data.User, error) {
	u, err := s.store.GetUserByID(ctx, id)
	if errors.Is(err, data.ErrNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	return u, err
}
