// Package matching is the match engine: candidate discovery, the per-viewer
// action table, and the pending → accepted/declined → completed lifecycle.
//
// Every status change is a conditional update on the current status, so of
// two concurrent responders only one succeeds and the other sees Conflict.
// Notifications and system messages are written after the transition has
// committed; if they fail the failure is logged and the transition stands.
package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/PaulBabatuyi/skillswap/internal/apperr"
	"github.com/PaulBabatuyi/skillswap/internal/data"
	"github.com/PaulBabatuyi/skillswap/internal/logging"
	"github.com/PaulBabatuyi/skillswap/internal/normalize"
	"github.com/PaulBabatuyi/skillswap/internal/notify"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Store is the persistence the engine needs.
type Store interface {
	GetUserByID(ctx context.Context, id bson.ObjectID) (*data.User, error)
	GetUsersByIDs(ctx context.Context, ids []bson.ObjectID) (map[bson.ObjectID]*data.User, error)

	GetSkillByID(ctx context.Context, id bson.ObjectID) (*data.Skill, error)
	ListSkillsByUser(ctx context.Context, userID bson.ObjectID) ([]*data.Skill, error)
	FindByNameAndType(ctx context.Context, name string, t data.SkillType, excludeUserID bson.ObjectID) ([]*data.Skill, error)

	CreateMatch(ctx context.Context, m *data.Match) (*data.Match, error)
	GetMatchByID(ctx context.Context, id bson.ObjectID) (*data.Match, error)
	FindPendingMatch(ctx context.Context, pairKey, skillKey string, skillID bson.ObjectID) (*data.Match, error)
	ListMatchesForUser(ctx context.Context, userID bson.ObjectID) ([]*data.Match, error)
	TransitionMatchStatus(ctx context.Context, id bson.ObjectID, from, to data.MatchStatus) (*data.Match, error)
	CompleteMatch(ctx context.Context, id, by bson.ObjectID, at time.Time) (*data.Match, error)
}

// Notifier records and pushes a notification.
type Notifier interface {
	Notify(ctx context.Context, userID bson.ObjectID, typ data.NotificationType, title, message string, refs notify.Refs) (*data.Notification, error)
}

// SystemMessenger posts a server-generated chat message.
type SystemMessenger interface {
	SendSystem(ctx context.Context, senderID, receiverID bson.ObjectID, body string) (*data.Message, error)
}

// Engine runs match operations.
type Engine struct {
	store    Store
	notifier Notifier
	messages SystemMessenger
	logger   *slog.Logger
	now      func() time.Time
}

// New returns an Engine.
func New(store Store, notifier Notifier, messages SystemMessenger, logger *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		notifier: notifier,
		messages: messages,
		logger:   logging.OrDiscard(logger),
		now:      time.Now,
	}
}

// Apply dispatches an action.
func (e *Engine) Apply(ctx context.Context, a Action) (*ActionResult, error) {
	switch a := a.(type) {
	case Initiate:
		return e.Initiate(ctx, a.UserID, a.SkillID)
	case Accept:
		return e.respond(ctx, a.UserID, a.MatchID, true)
	case Decline:
		return e.respond(ctx, a.UserID, a.MatchID, false)
	default:
		return nil, apperr.Validation("Invalid action. Use initiate, accept, or decline.")
	}
}

// Initiate creates a pending match between userID and the owner of skillID,
// with userID as initiator. Roles follow the skill's type: on an offer the
// caller is the requester, on a request the caller is the offerer.
func (e *Engine) Initiate(ctx context.Context, userID, skillID bson.ObjectID) (*ActionResult, error) {
	user, err := e.user(ctx, userID, "User not found.")
	if err != nil {
		return nil, err
	}
	if user.IsBanned {
		return nil, apperr.Forbidden("Your account has been suspended.")
	}

	skill, err := e.store.GetSkillByID(ctx, skillID)
	if err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return nil, apperr.NotFound("Skill not found.")
		}
		return nil, err
	}
	if skill.UserID == userID {
		return nil, apperr.Validation("You cannot match with your own skill.")
	}
	// orphaned posting: its owner was removed
	if _, err := e.user(ctx, skill.UserID, "The owner of this skill no longer exists."); err != nil {
		return nil, err
	}

	m := &data.Match{
		SkillID:     skill.ID,
		SkillName:   skill.Name,
		InitiatorID: data.IDPtr(userID),
		Status:      data.MatchPending,
	}
	if skill.Type == data.SkillOffer {
		m.RequesterID, m.OffererID = userID, skill.UserID
	} else {
		m.RequesterID, m.OffererID = skill.UserID, userID
	}

	// Checked by skill id or by pair+name so a re-posted skill still collides.
	// The partial unique index closes the race between this read and the insert.
	pairKey := normalize.PairKey(m.RequesterID.Hex(), m.OffererID.Hex())
	if _, err := e.store.FindPendingMatch(ctx, pairKey, normalize.SkillKey(skill.Name), skill.ID); err == nil {
		return nil, errPendingExists
	} else if !errors.Is(err, data.ErrNotFound) {
		return nil, err
	}

	m, err = e.store.CreateMatch(ctx, m)
	if err != nil {
		if errors.Is(err, data.ErrDuplicate) {
			return nil, errPendingExists
		}
		return nil, err
	}
	e.logger.Info("match initiated", "match_id", m.ID.Hex(), "initiator_id", userID.Hex(), "skill", m.SkillName)

	// the skill owner is always the non-initiating party
	title, body := "New Match Request!", fmt.Sprintf("%s wants to learn %s from you!", user.Name, m.SkillName)
	result := "Match request sent! Waiting for approval from the skill provider."
	if m.OffererID == userID {
		title, body = "New Offer to Help!", fmt.Sprintf("%s offered to teach you %s!", user.Name, m.SkillName)
		result = "Offer sent! Waiting for the learner to respond."
	}
	e.notify(ctx, skill.UserID, data.NotifyMatchRequest, title, body, userID, m)

	return &ActionResult{Message: result, Match: m}, nil
}

var errPendingExists = apperr.Conflict("A match request is already pending for this skill.")

// respond accepts or declines a pending match on behalf of userID. The
// outcome is announced to the party who was waiting on it, the counterpart of
// userID, which is the requester unless the offerer initiated. The
// acceptance banner always runs from offerer to requester.
func (e *Engine) respond(ctx context.Context, userID, matchID bson.ObjectID, accept bool) (*ActionResult, error) {
	m, err := e.match(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.Status != data.MatchPending {
		return nil, errAlreadyProcessed
	}
	if err := mayRespond(m, userID); err != nil {
		return nil, err
	}
	actor, err := e.user(ctx, userID, "User not found.")
	if err != nil {
		return nil, err
	}

	to := data.MatchDeclined
	if accept {
		to = data.MatchAccepted
	}
	updated, err := e.store.TransitionMatchStatus(ctx, m.ID, data.MatchPending, to)
	if err != nil {
		if errors.Is(err, data.ErrNotFound) {
			// lost the race, or the match vanished in between
			if _, rerr := e.match(ctx, matchID); rerr != nil {
				return nil, rerr
			}
			return nil, errAlreadyProcessed
		}
		return nil, err
	}
	e.logger.Info("match responded", "match_id", updated.ID.Hex(), "user_id", userID.Hex(), "status", updated.Status)

	// the party waiting on this response
	waiting := updated.Counterpart(userID)

	if !accept {
		e.notify(ctx, waiting, data.NotifyMatchDeclined, "Match Declined",
			fmt.Sprintf("%s declined your request for %s.", actor.Name, updated.SkillName), userID, updated)
		return &ActionResult{Message: "Match request declined.", Match: updated}, nil
	}

	banner := fmt.Sprintf("🎉 Great! Your match for \"%s\" has been accepted! Start chatting to coordinate your skill exchange!", updated.SkillName)
	e.system(ctx, updated.OffererID, updated.RequesterID, banner, updated)
	e.notify(ctx, waiting, data.NotifyMatchAccepted, "Match Accepted! 🎉",
		fmt.Sprintf("%s accepted your request for %s! You can now chat.", actor.Name, updated.SkillName), userID, updated)

	return &ActionResult{Message: "Match accepted! You can now chat.", Match: updated}, nil
}

var errAlreadyProcessed = apperr.Conflict("This match has already been processed.")

// mayRespond applies the responder rule: a participant who is not the
// initiator. Matches created before initiators were recorded keep the older
// rule that only the offerer responds.
func mayRespond(m *data.Match, userID bson.ObjectID) error {
	if !m.IsParticipant(userID) {
		return apperr.Forbidden("Only the skill provider can accept or decline match requests.")
	}
	if m.InitiatorID == nil {
		if userID != m.OffererID {
			return apperr.Forbidden("Only the skill provider can accept or decline match requests.")
		}
		return nil
	}
	if userID == *m.InitiatorID {
		return apperr.Forbidden("You initiated this match. Wait for the other party to respond.")
	}
	return nil
}

// Complete marks an accepted match completed. Completing an already
// completed match succeeds without repeating any side effect.
func (e *Engine) Complete(ctx context.Context, userID, matchID bson.ObjectID) (*ActionResult, error) {
	m, err := e.match(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !m.IsParticipant(userID) {
		return nil, apperr.Forbidden("You are not part of this match.")
	}
	switch m.Status {
	case data.MatchCompleted:
		return &ActionResult{Message: "Session already marked as complete.", Match: m}, nil
	case data.MatchAccepted:
	default:
		return nil, apperr.Conflict("Only accepted matches can be marked complete.")
	}

	actor, err := e.user(ctx, userID, "User not found.")
	if err != nil {
		return nil, err
	}

	updated, err := e.store.CompleteMatch(ctx, m.ID, userID, e.now())
	if err != nil {
		if !errors.Is(err, data.ErrNotFound) {
			return nil, err
		}
		cur, rerr := e.match(ctx, matchID)
		if rerr != nil {
			return nil, rerr
		}
		if cur.Status == data.MatchCompleted {
			// the other participant completed it first
			return &ActionResult{Message: "Session already marked as complete.", Match: cur}, nil
		}
		return nil, apperr.Conflict("Only accepted matches can be marked complete.")
	}
	e.logger.Info("match completed", "match_id", updated.ID.Hex(), "completed_by", userID.Hex())

	other := updated.Counterpart(userID)
	e.notify(ctx, other, data.NotifySessionComplete, "Session Complete",
		fmt.Sprintf("%s marked your %s session as complete. Leave a review!", actor.Name, updated.SkillName), userID, updated)
	banner := fmt.Sprintf("✅ %s marked the \"%s\" session as complete. Don't forget to leave a review!", actor.Name, updated.SkillName)
	e.system(ctx, userID, other, banner, updated)

	return &ActionResult{Message: "Session marked as complete.", Match: updated}, nil
}

func (e *Engine) notify(ctx context.Context, to bson.ObjectID, typ data.NotificationType, title, body string, from bson.ObjectID, m *data.Match) {
	if e.notifier == nil {
		return
	}
	refs := notify.Refs{User: data.IDPtr(from), Match: data.IDPtr(m.ID), Skill: data.IDPtr(m.SkillID)}
	if _, err := e.notifier.Notify(ctx, to, typ, title, body, refs); err != nil {
		e.logger.Error("match notification failed", "match_id", m.ID.Hex(), "type", typ, "error", err)
	}
}

func (e *Engine) system(ctx context.Context, from, to bson.ObjectID, body string, m *data.Match) {
	if e.messages == nil {
		return
	}
	if _, err := e.messages.SendSystem(ctx, from, to, body); err != nil {
		e.logger.Error("match system message failed", "match_id", m.ID.Hex(), "error", err)
	}
}

func (e *Engine) match(ctx context.Context, id bson.ObjectID) (*data.Match, error) {
	m, err := e.store.GetMatchByID(ctx, id)
	if errors.Is(err, data.ErrNotFound) {
		return nil, apperr.NotFound("Match not found.")
	}
	return m, err
}

func (e *Engine) user(ctx context.Context, id bson.ObjectID, notFound string) (*data.User, error) {
	u, err := e.store.GetUserByID(ctx, id)
	if errors.Is(err, data.ErrNotFound) {
		return nil, apperr.NotFound("%s", notFound)
	}
	return u, err
}
