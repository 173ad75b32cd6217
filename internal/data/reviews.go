package data

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ReviewsStore provides review database operations.
type ReviewsStore struct {
	coll *mongo.Collection
}

// NewReviewsStore returns a ReviewsStore using given collection.
func NewReviewsStore(coll *mongo.Collection) *ReviewsStore {
	return &ReviewsStore{coll: coll}
}

// CreateReview inserts a review. A second review by the same reviewer for the
// same match violates the (reviewer_id, match_id) unique index and returns
// ErrDuplicate.
func (s *ReviewsStore) CreateReview(ctx context.Context, r *Review) (*Review, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	result, err := s.coll.InsertOne(ctx, r)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	r.ID = result.InsertedID.(bson.ObjectID)
	return r, nil
}

// ListReviewsForUser returns reviews received by userID, newest first.
func (s *ReviewsStore) ListReviewsForUser(ctx context.Context, userID bson.ObjectID) ([]*Review, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.coll.Find(ctx, bson.M{"target_user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*Review
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RatingStats returns the sum and count of ratings userID has received.
func (s *ReviewsStore) RatingStats(ctx context.Context, userID bson.ObjectID) (sum, count int, err error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"target_user_id": userID}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "sum", Value: bson.D{{Key: "$sum", Value: "$rating"}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, 0, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Sum   int `bson:"sum"`
		Count int `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, 0, err
	}
	if len(rows) == 0 {
		return 0, 0, nil
	}
	return rows[0].Sum, rows[0].Count, nil
}

// ReviewedMatchIDs returns the ids of every match reviewerID has reviewed.
func (s *ReviewsStore) ReviewedMatchIDs(ctx context.Context, reviewerID bson.ObjectID) (map[bson.ObjectID]bool, error) {
	opts := options.Find().SetProjection(bson.M{"match_id": 1})
	cursor, err := s.coll.Find(ctx, bson.M{"reviewer_id": reviewerID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		MatchID bson.ObjectID `bson:"match_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	out := make(map[bson.ObjectID]bool, len(rows))
	for _, r := range rows {
		out[r.MatchID] = true
	}
	return out, nil
}
