package data

import (
	"errors"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

var (
	// ErrNotFound is returned when a lookup or conditional update matches no document.
	ErrNotFound = errors.New("document not found")
	// ErrDuplicate is returned when a write violates a unique index.
	ErrDuplicate = errors.New("duplicate document")
)

// SkillType says whether a posting offers or requests a skill.
type SkillType string

const (
	SkillOffer   SkillType = "offer"
	SkillRequest SkillType = "request"
)

// Valid reports whether t is one of the known posting types.
func (t SkillType) Valid() bool { return t == SkillOffer || t == SkillRequest }

// Opposite returns the posting type a skill of type t matches against.
func (t SkillType) Opposite() SkillType {
	if t == SkillOffer {
		return SkillRequest
	}
	return SkillOffer
}

// VerificationStatus tracks proof review for a skill posting.
type VerificationStatus string

const (
	VerificationUnverified VerificationStatus = "unverified"
	VerificationPending    VerificationStatus = "pending"
	VerificationVerified   VerificationStatus = "verified"
	VerificationRejected   VerificationStatus = "rejected"
)

// MatchStatus is the negotiation state of a Match.
type MatchStatus string

const (
	MatchPending   MatchStatus = "pending"
	MatchAccepted  MatchStatus = "accepted"
	MatchDeclined  MatchStatus = "declined"
	MatchCompleted MatchStatus = "completed"
)

// Role is a participant's side of a match.
type Role string

const (
	RoleRequester Role = "requester"
	RoleOfferer   Role = "offerer"
)

// NotificationType enumerates user-facing notification kinds.
type NotificationType string

const (
	NotifyMatchRequest    NotificationType = "match_request"
	NotifyMatchAccepted   NotificationType = "match_accepted"
	NotifyMatchDeclined   NotificationType = "match_declined"
	NotifyNewMessage      NotificationType = "new_message"
	NotifySessionComplete NotificationType = "session_complete"
	NotifyReviewReceived  NotificationType = "review_received"
	NotifySkillVerified   NotificationType = "skill_verified"
	NotifySkillRejected   NotificationType = "skill_rejected"
)

// User maps to the users collection. The core only reads identity and the
// blocked set, and writes the rating aggregate.
type User struct {
	ID            bson.ObjectID   `bson:"_id,omitempty" json:"id"`
	Email         string          `bson:"email" json:"email"`
	Password      string          `bson:"password" json:"-"`
	Name          string          `bson:"name" json:"name"`
	Bio           string          `bson:"bio" json:"bio"`
	Location      string          `bson:"location" json:"location"`
	Availability  string          `bson:"availability" json:"availability"`
	AverageRating float64         `bson:"average_rating" json:"averageRating"`
	RatingCount   int             `bson:"rating_count" json:"ratingCount"`
	RatingSum     int             `bson:"rating_sum" json:"-"`
	IsAdmin       bool            `bson:"is_admin" json:"isAdmin"`
	IsVerified    bool            `bson:"is_verified" json:"isVerified"`
	IsBanned      bool            `bson:"is_banned" json:"isBanned"`
	BlockedUsers  []bson.ObjectID `bson:"blocked_users" json:"-"`
	CreatedAt     time.Time       `bson:"created_at" json:"createdAt"`
	UpdatedAt     time.Time       `bson:"updated_at" json:"updatedAt"`
}

// HasBlocked reports whether u has other in their blocked set.
func (u *User) HasBlocked(other bson.ObjectID) bool {
	for _, id := range u.BlockedUsers {
		if id == other {
			return true
		}
	}
	return false
}

// Skill maps to the skills collection (an offer or request posting).
type Skill struct {
	ID                 bson.ObjectID      `bson:"_id,omitempty" json:"id"`
	UserID             bson.ObjectID      `bson:"user_id" json:"userId"`
	Type               SkillType          `bson:"type" json:"type"`
	Name               string             `bson:"skill_name" json:"skillName"`
	NameKey            string             `bson:"skill_key" json:"-"`
	Description        string             `bson:"description" json:"description"`
	Availability       string             `bson:"availability" json:"availability"`
	Location           string             `bson:"location" json:"location"`
	ProofURL           string             `bson:"proof_url" json:"proofUrl"`
	VerificationStatus VerificationStatus `bson:"verification_status" json:"verificationStatus"`
	VerifiedAt         *time.Time         `bson:"verified_at,omitempty" json:"verifiedAt,omitempty"`
	VerifiedBy         *bson.ObjectID     `bson:"verified_by,omitempty" json:"verifiedBy,omitempty"`
	Category           string             `bson:"category" json:"category"`
	ExperienceLevel    string             `bson:"experience_level" json:"experienceLevel"`
	CreatedAt          time.Time          `bson:"created_at" json:"createdAt"`
}

// Match maps to the matches collection.
//
// InitiatorID is nil on records created before initiators were tracked;
// those matches follow the offerer-approves rule.
type Match struct {
	ID               bson.ObjectID  `bson:"_id,omitempty" json:"id"`
	RequesterID      bson.ObjectID  `bson:"requester_id" json:"requesterId"`
	OffererID        bson.ObjectID  `bson:"offerer_id" json:"offererId"`
	SkillID          bson.ObjectID  `bson:"skill_id" json:"skillId"`
	SkillName        string         `bson:"skill_name" json:"skillName"`
	SkillKey         string         `bson:"skill_key" json:"-"`
	PairKey          string         `bson:"pair_key" json:"-"`
	InitiatorID      *bson.ObjectID `bson:"initiator_id,omitempty" json:"initiatorId,omitempty"`
	Status           MatchStatus    `bson:"status" json:"status"`
	CompletedBy      *bson.ObjectID `bson:"completed_by,omitempty" json:"completedBy,omitempty"`
	CompletedAt      *time.Time     `bson:"completed_at,omitempty" json:"completedAt,omitempty"`
	RatedByRequester bool           `bson:"rated_by_requester" json:"ratedByRequester"`
	RatedByOfferer   bool           `bson:"rated_by_offerer" json:"ratedByOfferer"`
	HasBeenRated     bool           `bson:"has_been_rated" json:"hasBeenRated"`
	CreatedAt        time.Time      `bson:"created_at" json:"createdAt"`
	UpdatedAt        time.Time      `bson:"updated_at" json:"updatedAt"`
}

// IsParticipant reports whether id is the requester or the offerer.
func (m *Match) IsParticipant(id bson.ObjectID) bool {
	return id == m.RequesterID || id == m.OffererID
}

// Counterpart returns the other participant. id must be a participant.
func (m *Match) Counterpart(id bson.ObjectID) bson.ObjectID {
	if id == m.RequesterID {
		return m.OffererID
	}
	return m.RequesterID
}

// RoleOf returns id's side of the match.
func (m *Match) RoleOf(id bson.ObjectID) Role {
	if id == m.OffererID {
		return RoleOfferer
	}
	return RoleRequester
}

// RatedBy reports whether the given side has already rated. The legacy
// HasBeenRated flag only ever recorded the requester's rating.
func (m *Match) RatedBy(role Role) bool {
	if role == RoleOfferer {
		return m.RatedByOfferer
	}
	return m.RatedByRequester || m.HasBeenRated
}

// Message maps to the messages collection.
type Message struct {
	ID              bson.ObjectID `bson:"_id,omitempty" json:"id"`
	SenderID        bson.ObjectID `bson:"sender_id" json:"senderId"`
	ReceiverID      bson.ObjectID `bson:"receiver_id" json:"receiverId"`
	Body            string        `bson:"message" json:"message"`
	Timestamp       time.Time     `bson:"timestamp" json:"timestamp"`
	IsSystemMessage bool          `bson:"is_system_message" json:"isSystemMessage"`
	IsRead          bool          `bson:"is_read" json:"isRead"`
}

// ChatSummary is one counterpart's latest message for a user, as produced
// by MessagesStore.GetRecentChats.
type ChatSummary struct {
	PartnerID       bson.ObjectID
	LastMessage     string
	LastMessageAt   time.Time
	IsSystemMessage bool
	UnreadCount     int
}

// Notification maps to the notifications collection.
type Notification struct {
	ID             bson.ObjectID    `bson:"_id,omitempty" json:"id"`
	UserID         bson.ObjectID    `bson:"user_id" json:"userId"`
	Type           NotificationType `bson:"type" json:"type"`
	Title          string           `bson:"title" json:"title"`
	Message        string           `bson:"message" json:"message"`
	RelatedUserID  *bson.ObjectID   `bson:"related_user_id,omitempty" json:"relatedUserId,omitempty"`
	RelatedMatchID *bson.ObjectID   `bson:"related_match_id,omitempty" json:"relatedMatchId,omitempty"`
	RelatedSkillID *bson.ObjectID   `bson:"related_skill_id,omitempty" json:"relatedSkillId,omitempty"`
	IsRead         bool             `bson:"is_read" json:"isRead"`
	CreatedAt      time.Time        `bson:"created_at" json:"createdAt"`
}

// Review maps to the reviews collection; unique on (reviewer_id, match_id).
type Review struct {
	ID           bson.ObjectID `bson:"_id,omitempty" json:"id"`
	ReviewerID   bson.ObjectID `bson:"reviewer_id" json:"reviewerId"`
	TargetUserID bson.ObjectID `bson:"target_user_id" json:"targetUserId"`
	MatchID      bson.ObjectID `bson:"match_id" json:"matchId"`
	Rating       int           `bson:"rating" json:"rating"`
	Comment      string        `bson:"comment" json:"comment"`
	CreatedAt    time.Time     `bson:"created_at" json:"createdAt"`
}

// RoundRating is the mean of count ratings summing to sum, rounded half-up
// to one decimal. Zero ratings average 0.
func RoundRating(sum, count int) float64 {
	if count == 0 {
		return 0
	}
	return math.Floor(float64(sum)/float64(count)*10+0.5) / 10
}

// IDPtr returns a pointer to a copy of id, for optional reference fields.
func IDPtr(id bson.ObjectID) *bson.ObjectID { return &id }
