package matching

import (
	"context"
	"errors"

	"github.com/PaulBabatuyi/skillswap/internal/data"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Party is a match participant as shown in match history.
type Party struct {
	ID    bson.ObjectID `json:"id"`
	Name  string        `json:"name"`
	Email string        `json:"email"`
}

// MatchView is a match with its participants and skill resolved. Skill is nil
// once the posting has been deleted; SkillName still carries the name.
type MatchView struct {
	*data.Match
	Requester *Party      `json:"requester"`
	Offerer   *Party      `json:"offerer"`
	Skill     *data.Skill `json:"skill"`
}

// History returns every match userID takes part in, newest first.
func (e *Engine) History(ctx context.Context, userID bson.ObjectID) ([]*MatchView, error) {
	matches, err := e.store.ListMatchesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]*MatchView, 0, len(matches))
	if len(matches) == 0 {
		return views, nil
	}

	ids := make([]bson.ObjectID, 0, 2*len(matches))
	for _, m := range matches {
		ids = append(ids, m.RequesterID, m.OffererID)
	}
	users, err := e.store.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	skills := make(map[bson.ObjectID]*data.Skill)
	for _, m := range matches {
		if _, ok := skills[m.SkillID]; ok {
			continue
		}
		s, err := e.store.GetSkillByID(ctx, m.SkillID)
		if err != nil && !errors.Is(err, data.ErrNotFound) {
			return nil, err
		}
		skills[m.SkillID] = s
	}

	for _, m := range matches {
		views = append(views, &MatchView{
			Match:     m,
			Requester: party(users[m.RequesterID]),
			Offerer:   party(users[m.OffererID]),
			Skill:     skills[m.SkillID],
		})
	}
	return views, nil
}

func party(u *data.User) *Party {
	if u == nil {
		return nil
	}
	return &Party{ID: u.ID, Name: u.Name, Email: u.Email}
}
