package data

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MessagesStore provides message database operations.
type MessagesStore struct {
	// coll is reference to "messages" collection in MongoDB
	// Set via NewMessagesStore() and used in all methods below
	coll *mongo.Collection
}

// NewMessagesStore returns a MessagesStore using given collection.
func NewMessagesStore(coll *mongo.Collection) *MessagesStore {
	return &MessagesStore{coll: coll} // Store reference to MongoDB collection
}

// SaveMessage inserts a message document and returns the saved record.
func (m *MessagesStore) SaveMessage(ctx context.Context, senderID, receiverID bson.ObjectID, body string, system bool, sentAt time.Time) (*Message, error) {
	msg := &Message{
		SenderID:        senderID,
		ReceiverID:      receiverID,
		Body:            body,
		Timestamp:       sentAt,
		IsSystemMessage: system, // server-generated lifecycle banner
		IsRead:          false,  // flipped only by the receiver
	}

	result, err := m.coll.InsertOne(ctx, msg)
	if err != nil {
		return nil, err // Database error (connection, validation, etc)
	}

	// Extract MongoDB's auto-generated _id; clients de-duplicate on it
	msg.ID = result.InsertedID.(bson.ObjectID)
	return msg, nil
}

// GetMessageHistory returns recent messages between two users (ordered oldest→newest).
func (m *MessagesStore) GetMessageHistory(ctx context.Context, user1, user2 bson.ObjectID, limit int64) ([]*Message, error) {
	// Sort newest first so the limit keeps the most recent N messages
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit)

	// Messages in either direction between the two users
	filter := bson.M{
		"$or": bson.A{
			bson.M{"sender_id": user1, "receiver_id": user2},
			bson.M{"sender_id": user2, "receiver_id": user1},
		},
	}

	cursor, err := m.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var messages []*Message
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, err
	}

	// Reverse because MongoDB returned newest first, clients want chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// recentChatRow is the shape of one $group output document.
type recentChatRow struct {
	Partner         bson.ObjectID `bson:"_id"`
	LastMessage     string        `bson:"last_message"`
	LastMessageAt   time.Time     `bson:"last_message_at"`
	IsSystemMessage bool          `bson:"is_system_message"`
	UnreadCount     int           `bson:"unread_count"`
}

// GetRecentChats aggregates, per conversation partner, the latest message and
// the number of unread messages addressed to userID. Partners are ordered by
// most recent activity.
func (m *MessagesStore) GetRecentChats(ctx context.Context, userID bson.ObjectID, limit int64) ([]*ChatSummary, error) {
	pipeline := mongo.Pipeline{
		// Stage 1: $match - messages where the user is sender or recipient
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "$or", Value: bson.A{
				bson.D{{Key: "sender_id", Value: userID}},
				bson.D{{Key: "receiver_id", Value: userID}},
			}},
		}}},

		// Stage 2: $sort - newest first so $first below picks the latest message
		bson.D{{Key: "$sort", Value: bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}}},

		// Stage 3: $group - one document per conversation partner
		bson.D{{Key: "$group", Value: bson.D{
			// partner is the receiver when the user sent it, otherwise the sender
			{Key: "_id", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$eq", Value: bson.A{"$sender_id", userID}}},
				"$receiver_id",
				"$sender_id",
			}}}},
			{Key: "last_message", Value: bson.D{{Key: "$first", Value: "$message"}}},
			{Key: "last_message_at", Value: bson.D{{Key: "$first", Value: "$timestamp"}}},
			{Key: "is_system_message", Value: bson.D{{Key: "$first", Value: "$is_system_message"}}},
			// count messages addressed to the user that are still unread
			{Key: "unread_count", Value: bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$and", Value: bson.A{
					bson.D{{Key: "$eq", Value: bson.A{"$receiver_id", userID}}},
					bson.D{{Key: "$ne", Value: bson.A{"$is_read", true}}},
				}}},
				1,
				0,
			}}}}}},
		}}},

		// Stage 4: $sort - most recent conversation first
		bson.D{{Key: "$sort", Value: bson.D{{Key: "last_message_at", Value: -1}}}},

		// Stage 5: $limit - only return N most recent partners
		bson.D{{Key: "$limit", Value: limit}},
	}

	cursor, err := m.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []recentChatRow
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	partners := make([]*ChatSummary, 0, len(rows))
	for _, r := range rows {
		partners = append(partners, &ChatSummary{
			PartnerID:       r.Partner,
			LastMessage:     r.LastMessage,
			LastMessageAt:   r.LastMessageAt,
			IsSystemMessage: r.IsSystemMessage,
			UnreadCount:     r.UnreadCount,
		})
	}
	return partners, nil
}

// MarkRead flags every unread message from senderID to receiverID as read
// and returns how many were changed.
func (m *MessagesStore) MarkRead(ctx context.Context, receiverID, senderID bson.ObjectID) (int64, error) {
	res, err := m.coll.UpdateMany(ctx,
		bson.M{"sender_id": senderID, "receiver_id": receiverID, "is_read": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{"is_read": true}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
