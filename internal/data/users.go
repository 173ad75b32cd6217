// Package data provides DB models and stores.
package data

import (
	"context" // Used for cancellation and timeouts
	"errors"  // Error handling
	"time"    // Timestamps

	"github.com/PaulBabatuyi/skillswap/internal/normalize"

	"go.mongodb.org/mongo-driver/v2/bson"          // MongoDB document queries
	"go.mongodb.org/mongo-driver/v2/mongo"         // MongoDB driver
	"go.mongodb.org/mongo-driver/v2/mongo/options" // Find/update options
)

// UsersStore performs user DB operations.
type UsersStore struct {
	// coll is reference to "users" collection in MongoDB
	coll *mongo.Collection
}

// NewUsersStore returns a UsersStore using the provided collection.
func NewUsersStore(coll *mongo.Collection) *UsersStore {
	return &UsersStore{coll: coll}
}

// CreateUser inserts a new user document with hashed password.
func (u *UsersStore) CreateUser(ctx context.Context, email, name, hashedPassword string) (*User, error) {
	now := time.Now()
	user := &User{
		Email:        normalize.Email(email), // unique index is on the normalized form
		Name:         name,
		Password:     hashedPassword, // Already hashed by auth.HashPassword()
		BlockedUsers: []bson.ObjectID{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	result, err := u.coll.InsertOne(ctx, user)
	if err != nil {
		// Duplicate email (unique index on "email")
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}

	// MongoDB auto-generates the _id field; it is used in JWT tokens via auth.GenerateToken()
	user.ID = result.InsertedID.(bson.ObjectID)
	return user, nil
}

// GetUserByEmail finds a user by email.
func (u *UsersStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := u.coll.FindOne(ctx, bson.M{"email": normalize.Email(email)}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByID finds a user by ObjectID.
func (u *UsersStore) GetUserByID(ctx context.Context, id bson.ObjectID) (*User, error) {
	var user User
	err := u.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		// No document found (user was deleted)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetUsersByIDs loads several users at once, keyed by id. Ids that do not
// resolve are simply absent from the map.
func (u *UsersStore) GetUsersByIDs(ctx context.Context, ids []bson.ObjectID) (map[bson.ObjectID]*User, error) {
	out := make(map[bson.ObjectID]*User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	// Only identity fields are needed by callers (names for display)
	opts := options.Find().SetProjection(bson.M{"password": 0, "blocked_users": 0})
	cursor, err := u.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var users []*User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	for _, user := range users {
		out[user.ID] = user
	}
	return out, nil
}

// UserExists checks if a user exists by email.
func (u *UsersStore) UserExists(ctx context.Context, email string) (bool, error) {
	// CountDocuments is cheaper than FindOne when only existence matters
	count, err := u.coll.CountDocuments(ctx, bson.M{"email": normalize.Email(email)})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AddBlockedUser adds other to userID's blocked set. $addToSet keeps the
// update atomic and idempotent; there is no read-modify-write of the user.
func (u *UsersStore) AddBlockedUser(ctx context.Context, userID, other bson.ObjectID) error {
	res, err := u.coll.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{
			"$addToSet": bson.M{"blocked_users": other},
			"$set":      bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveBlockedUser removes other from userID's blocked set.
func (u *UsersStore) RemoveBlockedUser(ctx context.Context, userID, other bson.ObjectID) error {
	res, err := u.coll.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{
			"$pull": bson.M{"blocked_users": other},
			"$set":  bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRating stores the rating aggregate computed from sum and count, as
// returned by ReviewsStore.RatingStats, and returns the updated user.
// Reviews are never removed, so count only grows: the update is skipped when
// the stored count is already higher, and a writer holding older stats cannot
// overwrite newer ones.
func (u *UsersStore) SetRating(ctx context.Context, userID bson.ObjectID, sum, count int) (*User, error) {
	filter := bson.M{
		"_id": userID,
		"$or": bson.A{
			bson.M{"rating_count": bson.M{"$lte": count}},
			bson.M{"rating_count": bson.M{"$exists": false}},
		},
	}
	update := bson.M{"$set": bson.M{
		"rating_sum":     sum,
		"rating_count":   count,
		"average_rating": RoundRating(sum, count),
		"updated_at":     time.Now(),
	}}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var user User
	err := u.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// missing user, or a newer aggregate is already stored
		return u.GetUserByID(ctx, userID)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
