package data

import (
	"context"
	"errors"
	"time"

	"github.com/PaulBabatuyi/skillswap/internal/normalize"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MatchesStore provides match database operations. State transitions are
// conditional updates on the current status, so two concurrent writers can
// never both move a match out of the same state.
type MatchesStore struct {
	// coll is reference to "matches" collection in MongoDB
	coll *mongo.Collection
}

// NewMatchesStore returns a MatchesStore using given collection.
func NewMatchesStore(coll *mongo.Collection) *MatchesStore {
	return &MatchesStore{coll: coll}
}

// CreateMatch inserts a match. The partial unique index on
// (pair_key, skill_key) where status is pending turns a concurrent second
// pending match for the same pair and skill into ErrDuplicate.
func (s *MatchesStore) CreateMatch(ctx context.Context, m *Match) (*Match, error) {
	m.SkillKey = normalize.SkillKey(m.SkillName)
	m.PairKey = normalize.PairKey(m.RequesterID.Hex(), m.OffererID.Hex())
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	result, err := s.coll.InsertOne(ctx, m)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	m.ID = result.InsertedID.(bson.ObjectID)
	return m, nil
}

// GetMatchByID finds a match by id.
func (s *MatchesStore) GetMatchByID(ctx context.Context, id bson.ObjectID) (*Match, error) {
	var m Match
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// FindPendingMatch returns the pending match for the user pair over either
// the given skill id or the given skill name key. The name branch catches a
// skill that was deleted and re-posted under a new id.
func (s *MatchesStore) FindPendingMatch(ctx context.Context, pairKey, skillKey string, skillID bson.ObjectID) (*Match, error) {
	filter := bson.M{
		"pair_key": pairKey,
		"status":   MatchPending,
		"$or": bson.A{
			bson.M{"skill_id": skillID},
			bson.M{"skill_key": skillKey},
		},
	}

	var m Match
	if err := s.coll.FindOne(ctx, filter).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// ListMatchesForUser returns every match the user participates in, newest first.
func (s *MatchesStore) ListMatchesForUser(ctx context.Context, userID bson.ObjectID) ([]*Match, error) {
	return s.find(ctx, participantFilter(userID))
}

// ListMatchesByStatus returns the user's matches in any of the given states, newest first.
func (s *MatchesStore) ListMatchesByStatus(ctx context.Context, userID bson.ObjectID, statuses ...MatchStatus) ([]*Match, error) {
	filter := participantFilter(userID)
	filter["status"] = bson.M{"$in": statuses}
	return s.find(ctx, filter)
}

// ListRatableMatches returns accepted or completed matches in which userID
// holds the given role and has not rated yet.
func (s *MatchesStore) ListRatableMatches(ctx context.Context, userID bson.ObjectID, role Role) ([]*Match, error) {
	filter := bson.M{
		"status": bson.M{"$in": bson.A{MatchAccepted, MatchCompleted}},
	}
	if role == RoleOfferer {
		filter["offerer_id"] = userID
		filter["rated_by_offerer"] = bson.M{"$ne": true}
	} else {
		filter["requester_id"] = userID
		filter["rated_by_requester"] = bson.M{"$ne": true}
		// records written before the per-side flags only carry has_been_rated
		filter["has_been_rated"] = bson.M{"$ne": true}
	}
	return s.find(ctx, filter)
}

// TransitionMatchStatus moves a match from one status to another and returns
// the updated document. ErrNotFound means no match with that id was in the
// from state; the caller re-reads to tell a missing match from a lost race.
func (s *MatchesStore) TransitionMatchStatus(ctx context.Context, id bson.ObjectID, from, to MatchStatus) (*Match, error) {
	return s.findOneAndUpdate(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to, "updated_at": time.Now()}},
	)
}

// CompleteMatch marks an accepted match completed, recording who completed
// it and when. Like TransitionMatchStatus it is conditional on the current
// status being accepted.
func (s *MatchesStore) CompleteMatch(ctx context.Context, id, by bson.ObjectID, at time.Time) (*Match, error) {
	return s.findOneAndUpdate(ctx,
		bson.M{"_id": id, "status": MatchAccepted},
		bson.M{"$set": bson.M{
			"status":       MatchCompleted,
			"completed_by": by,
			"completed_at": at,
			"updated_at":   at,
		}},
	)
}

// MarkMatchRated sets the rating flag for one side of the match.
func (s *MatchesStore) MarkMatchRated(ctx context.Context, id bson.ObjectID, role Role) error {
	set := bson.M{"updated_at": time.Now()}
	if role == RoleOfferer {
		set["rated_by_offerer"] = true
	} else {
		set["rated_by_requester"] = true
		set["has_been_rated"] = true
	}

	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMatchesBySkill removes every match that references skillID and
// returns how many were removed.
func (s *MatchesStore) DeleteMatchesBySkill(ctx context.Context, skillID bson.ObjectID) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{"skill_id": skillID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *MatchesStore) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*Match, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var m Match
	if err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *MatchesStore) find(ctx context.Context, filter bson.M) ([]*Match, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var matches []*Match
	if err := cursor.All(ctx, &matches); err != nil {
		return nil, err
	}
	return matches, nil
}

func participantFilter(userID bson.ObjectID) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"requester_id": userID},
		bson.M{"offerer_id": userID},
	}}
}
