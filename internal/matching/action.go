package matching

import (
	"github.com/PaulBabatuyi/skillswap/internal/data"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ActionRequired is what the viewer can do next about a candidate.
type ActionRequired string

const (
	ActionRequestMatch ActionRequired = "request_match"
	ActionOfferToHelp  ActionRequired = "offer_to_help"
	ActionApprove      ActionRequired = "approve"
	ActionWaiting      ActionRequired = "waiting"
	ActionChat         ActionRequired = "chat"
	ActionNone         ActionRequired = "none"
)

// StatusNone is the matchStatus of a candidate with no match yet.
const StatusNone = "none"

// ViewerAction is the per-viewer state of a candidate.
type ViewerAction struct {
	MatchStatus    string         `json:"matchStatus"`
	ActionRequired ActionRequired `json:"actionRequired"`
	CanTakeAction  bool           `json:"canTakeAction"`
	WaitingFor     string         `json:"waitingFor,omitempty"`
}

// DeriveAction computes what viewerID may do given the type of the viewer's
// own posting, the type of the candidate posting and the most recent match
// between the two for this skill (nil when there is none).
func DeriveAction(viewerID bson.ObjectID, ownType, candidateType data.SkillType, existing *data.Match) ViewerAction {
	if existing == nil {
		switch {
		case ownType == data.SkillRequest && candidateType == data.SkillOffer:
			return ViewerAction{MatchStatus: StatusNone, ActionRequired: ActionRequestMatch, CanTakeAction: true}
		case ownType == data.SkillOffer && candidateType == data.SkillRequest:
			return ViewerAction{MatchStatus: StatusNone, ActionRequired: ActionOfferToHelp, CanTakeAction: true}
		default:
			return ViewerAction{MatchStatus: StatusNone, ActionRequired: ActionNone}
		}
	}

	v := ViewerAction{MatchStatus: string(existing.Status), ActionRequired: ActionNone}
	switch existing.Status {
	case data.MatchPending:
		if existing.InitiatorID == nil {
			// Legacy record without an initiator: the offerer approves
			if viewerID == existing.OffererID {
				v.ActionRequired, v.CanTakeAction = ActionApprove, true
			} else {
				v.ActionRequired, v.WaitingFor = ActionWaiting, string(data.RoleOfferer)
			}
			return v
		}
		if viewerID != *existing.InitiatorID {
			v.ActionRequired, v.CanTakeAction = ActionApprove, true
		} else {
			v.ActionRequired = ActionWaiting
			v.WaitingFor = string(existing.RoleOf(existing.Counterpart(viewerID)))
		}
	case data.MatchAccepted:
		v.ActionRequired, v.CanTakeAction = ActionChat, true
	}
	// declined and completed: nothing to do
	return v
}

// Action is one of Initiate, Accept or Decline.
type Action interface {
	isAction()
}

// Initiate proposes a match on another user's skill posting.
type Initiate struct {
	UserID  bson.ObjectID
	SkillID bson.ObjectID
}

// Accept approves a pending match.
type Accept struct {
	UserID  bson.ObjectID
	MatchID bson.ObjectID
}

// Decline rejects a pending match.
type Decline struct {
	UserID  bson.ObjectID
	MatchID bson.ObjectID
}

func (Initiate) isAction() {}
func (Accept) isAction()   {}
func (Decline) isAction()  {}

// ActionResult is returned by every match action.
type ActionResult struct {
	Message string      `json:"message"`
	Match   *data.Match `json:"match"`
}
