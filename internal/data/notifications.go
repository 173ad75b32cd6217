package data

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// NotificationsStore provides notification database operations.
type NotificationsStore struct {
	coll *mongo.Collection
}

// NewNotificationsStore returns a NotificationsStore using given collection.
func NewNotificationsStore(coll *mongo.Collection) *NotificationsStore {
	return &NotificationsStore{coll: coll}
}

// CreateNotification inserts n as unread and returns it with its id set.
func (s *NotificationsStore) CreateNotification(ctx context.Context, n *Notification) (*Notification, error) {
	n.IsRead = false
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	result, err := s.coll.InsertOne(ctx, n)
	if err != nil {
		return nil, err
	}
	n.ID = result.InsertedID.(bson.ObjectID)
	return n, nil
}

// ListNotifications returns the user's most recent notifications, newest first.
func (s *NotificationsStore) ListNotifications(ctx context.Context, userID bson.ObjectID, limit int64) ([]*Notification, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := s.coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*Notification
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CountUnreadNotifications returns how many of the user's notifications are unread.
func (s *NotificationsStore) CountUnreadNotifications(ctx context.Context, userID bson.ObjectID) (int64, error) {
	return s.coll.CountDocuments(ctx, bson.M{"user_id": userID, "is_read": false})
}

// MarkNotificationRead marks one notification read. The owner is part of the
// filter, so another user's notification reports ErrNotFound.
func (s *NotificationsStore) MarkNotificationRead(ctx context.Context, userID, id bson.ObjectID) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "user_id": userID},
		bson.M{"$set": bson.M{"is_read": true}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllNotificationsRead marks every unread notification of the user read.
func (s *NotificationsStore) MarkAllNotificationsRead(ctx context.Context, userID bson.ObjectID) (int64, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{"user_id": userID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
