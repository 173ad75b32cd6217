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

// SkillsStore provides skill posting database operations.
type SkillsStore struct {
	// coll is reference to "skills" collection in MongoDB
	coll *mongo.Collection
}

// NewSkillsStore returns a SkillsStore using given collection.
func NewSkillsStore(coll *mongo.Collection) *SkillsStore {
	return &SkillsStore{coll: coll}
}

// CreateSkill inserts a posting. The case-insensitive match key is derived
// here so every writer stores it the same way.
func (s *SkillsStore) CreateSkill(ctx context.Context, skill *Skill) (*Skill, error) {
	skill.NameKey = normalize.SkillKey(skill.Name)
	if skill.CreatedAt.IsZero() {
		skill.CreatedAt = time.Now()
	}

	result, err := s.coll.InsertOne(ctx, skill)
	if err != nil {
		return nil, err
	}
	skill.ID = result.InsertedID.(bson.ObjectID)
	return skill, nil
}

// GetSkillByID finds a posting by id.
func (s *SkillsStore) GetSkillByID(ctx context.Context, id bson.ObjectID) (*Skill, error) {
	var skill Skill
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&skill); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &skill, nil
}

// ListSkills returns every posting, newest first.
func (s *SkillsStore) ListSkills(ctx context.Context) ([]*Skill, error) {
	return s.find(ctx, bson.M{})
}

// ListSkillsByUser returns the postings owned by userID, newest first.
func (s *SkillsStore) ListSkillsByUser(ctx context.Context, userID bson.ObjectID) ([]*Skill, error) {
	return s.find(ctx, bson.M{"user_id": userID})
}

// FindByNameAndType returns postings of type t whose name equals name
// case-insensitively, excluding those owned by excludeUserID.
func (s *SkillsStore) FindByNameAndType(ctx context.Context, name string, t SkillType, excludeUserID bson.ObjectID) ([]*Skill, error) {
	// Exact match on the stored key; no regex, so names with metacharacters
	// ("C++", "C#") match literally.
	return s.find(ctx, bson.M{
		"skill_key": normalize.SkillKey(name),
		"type":      t,
		"user_id":   bson.M{"$ne": excludeUserID},
	})
}

// UpdateSkill replaces the editable fields of a posting.
func (s *SkillsStore) UpdateSkill(ctx context.Context, skill *Skill) error {
	skill.NameKey = normalize.SkillKey(skill.Name)
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": skill.ID},
		bson.M{"$set": bson.M{
			"type":         skill.Type,
			"skill_name":   skill.Name,
			"skill_key":    skill.NameKey,
			"description":  skill.Description,
			"availability": skill.Availability,
			"location":     skill.Location,
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetVerificationStatus records a moderation decision on a posting.
func (s *SkillsStore) SetVerificationStatus(ctx context.Context, id bson.ObjectID, status VerificationStatus, verifier bson.ObjectID) (*Skill, error) {
	now := time.Now()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var skill Skill
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"verification_status": status,
			"verified_at":         now,
			"verified_by":         verifier,
		}},
		opts,
	).Decode(&skill)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &skill, nil
}

// DeleteSkill removes a posting. Match cleanup is the caller's job
// (MatchesStore.DeleteMatchesBySkill).
func (s *SkillsStore) DeleteSkill(ctx context.Context, id bson.ObjectID) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SkillsStore) find(ctx context.Context, filter bson.M) ([]*Skill, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var skills []*Skill
	if err := cursor.All(ctx, &skills); err != nil {
		return nil, err
	}
	return skills, nil
}
