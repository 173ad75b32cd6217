package matching

import (
	"context"

	"github.com/PaulBabatuyi/skillswap/internal/data"
	"github.com/PaulBabatuyi/skillswap/internal/normalize"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Owner is the public identity of a candidate skill's owner.
type Owner struct {
	ID       bson.ObjectID `json:"id"`
	Name     string        `json:"name"`
	Location string        `json:"location"`
}

// Candidate is another user's posting that pairs with one of the viewer's own.
type Candidate struct {
	*data.Skill
	ViewerAction

	Owner           Owner          `json:"owner"`
	UserSkillID     bson.ObjectID  `json:"userSkillId"`
	UserSkillType   data.SkillType `json:"userSkillType"`
	UserSkillName   string         `json:"userSkillName"`
	IsUserOfferer   bool           `json:"isUserOfferer"`
	IsUserRequester bool           `json:"isUserRequester"`
	MatchID         *bson.ObjectID `json:"matchId"`
}

// FindCandidates lists postings by other users with the same skill name and
// the opposite type of any of userID's postings, each annotated with the
// viewer's next action. It performs no writes.
func (e *Engine) FindCandidates(ctx context.Context, userID bson.ObjectID) ([]*Candidate, error) {
	if _, err := e.user(ctx, userID, "User not found."); err != nil {
		return nil, err
	}
	own, err := e.store.ListSkillsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	type pairing struct {
		own, other *data.Skill
	}
	var found []pairing
	seen := make(map[bson.ObjectID]bool)
	for _, mine := range own {
		others, err := e.store.FindByNameAndType(ctx, mine.Name, mine.Type.Opposite(), userID)
		if err != nil {
			return nil, err
		}
		for _, other := range others {
			if seen[other.ID] {
				continue
			}
			seen[other.ID] = true
			found = append(found, pairing{own: mine, other: other})
		}
	}

	candidates := []*Candidate{}
	if len(found) == 0 {
		return candidates, nil
	}

	ownerIDs := make([]bson.ObjectID, 0, len(found))
	for _, p := range found {
		ownerIDs = append(ownerIDs, p.other.UserID)
	}
	owners, err := e.store.GetUsersByIDs(ctx, ownerIDs)
	if err != nil {
		return nil, err
	}
	matches, err := e.store.ListMatchesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	for _, p := range found {
		owner, ok := owners[p.other.UserID]
		if !ok {
			// orphaned posting
			continue
		}
		existing := existingMatch(matches, userID, owner.ID, p.own, p.other)
		c := &Candidate{
			Skill:           p.other,
			ViewerAction:    DeriveAction(userID, p.own.Type, p.other.Type, existing),
			Owner:           Owner{ID: owner.ID, Name: owner.Name, Location: owner.Location},
			UserSkillID:     p.own.ID,
			UserSkillType:   p.own.Type,
			UserSkillName:   p.own.Name,
			IsUserOfferer:   p.own.Type == data.SkillOffer,
			IsUserRequester: p.own.Type == data.SkillRequest,
		}
		if existing != nil {
			c.MatchID = data.IDPtr(existing.ID)
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// existingMatch picks the newest of the viewer's matches with counterpart
// over either skill id or the same skill name. matches is newest first.
func existingMatch(matches []*data.Match, viewer, counterpart bson.ObjectID, own, other *data.Skill) *data.Match {
	key := normalize.SkillKey(other.Name)
	for _, m := range matches {
		if !m.IsParticipant(viewer) || m.Counterpart(viewer) != counterpart {
			continue
		}
		if m.SkillID == other.ID || m.SkillID == own.ID || normalize.SkillKey(m.SkillName) == key {
			return m
		}
	}
	return nil
}
