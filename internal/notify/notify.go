// Package notify persists user-facing notifications and pushes them over the
// realtime channel to connected users.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/PaulBabatuyi/skillswap/internal/apperr"
	"github.com/PaulBabatuyi/skillswap/internal/data"
	"github.com/PaulBabatuyi/skillswap/internal/logging"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// EventNewNotification is the realtime event carrying a fresh notification.
const EventNewNotification = "new_notification"

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 50

// Store is the persistence the notifier needs.
type Store interface {
	CreateNotification(ctx context.Context, n *data.Notification) (*data.Notification, error)
	ListNotifications(ctx context.Context, userID bson.ObjectID, limit int64) ([]*data.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID bson.ObjectID) (int64, error)
	MarkNotificationRead(ctx context.Context, userID, id bson.ObjectID) error
	MarkAllNotificationsRead(ctx context.Context, userID bson.ObjectID) (int64, error)
}

// Pusher delivers an event to a connected user. It reports whether the user
// had a live connection.
type Pusher interface {
	PushToUser(userID bson.ObjectID, event string, payload any) bool
}

// Refs are the optional references attached to a notification.
type Refs struct {
	User  *bson.ObjectID
	Match *bson.ObjectID
	Skill *bson.ObjectID
}

// Service creates, lists and marks notifications.
type Service struct {
	store  Store
	pusher Pusher
	logger *slog.Logger
}

// New returns a Service. pusher may be nil, in which case notifications are
// only stored.
func New(store Store, pusher Pusher, logger *slog.Logger) *Service {
	return &Service{store: store, pusher: pusher, logger: logging.OrDiscard(logger)}
}

// Notify stores a notification for userID and pushes it if they are online.
func (s *Service) Notify(ctx context.Context, userID bson.ObjectID, typ data.NotificationType, title, message string, refs Refs) (*data.Notification, error) {
	n, err := s.store.CreateNotification(ctx, &data.Notification{
		UserID:         userID,
		Type:           typ,
		Title:          title,
		Message:        message,
		RelatedUserID:  refs.User,
		RelatedMatchID: refs.Match,
		RelatedSkillID: refs.Skill,
	})
	if err != nil {
		return nil, err
	}

	if s.pusher != nil {
		delivered := s.pusher.PushToUser(userID, EventNewNotification, n)
		s.logger.Debug("notification created", "user_id", userID.Hex(), "type", typ, "pushed", delivered)
	}
	return n, nil
}

// List returns the user's latest notifications, newest first.
func (s *Service) List(ctx context.Context, userID bson.ObjectID, limit int64) ([]*data.Notification, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	out, err := s.store.ListNotifications(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*data.Notification{}
	}
	return out, nil
}

// UnreadCount returns how many notifications the user has not read.
func (s *Service) UnreadCount(ctx context.Context, userID bson.ObjectID) (int64, error) {
	return s.store.CountUnreadNotifications(ctx, userID)
}

// MarkRead marks one of the user's notifications read.
func (s *Service) MarkRead(ctx context.Context, userID, id bson.ObjectID) error {
	err := s.store.MarkNotificationRead(ctx, userID, id)
	if errors.Is(err, data.ErrNotFound) {
		return apperr.NotFound("notification not found")
	}
	return err
}

// MarkAllRead marks every notification of the user read.
func (s *Service) MarkAllRead(ctx context.Context, userID bson.ObjectID) (int64, error) {
	return s.store.MarkAllNotificationsRead(ctx, userID)
}
