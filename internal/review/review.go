// Package review gates and records ratings between match participants.
//
// By default only the requester rates the offerer, once per match. With
// bidirectional reviews enabled the offerer may also rate the requester once.
// The (reviewer, match) unique index is the final guard against a double
// submit racing past the rated flags.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/PaulBabatuyi/skillswap/internal/apperr"
	"github.com/PaulBabatuyi/skillswap/internal/data"
	"github.com/PaulBabatuyi/skillswap/internal/logging"
	"github.com/PaulBabatuyi/skillswap/internal/notify"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// MaxCommentRunes caps a review comment.
const MaxCommentRunes = 1000

// Store is the persistence the review gate needs.
type Store interface {
	GetUserByID(ctx context.Context, id bson.ObjectID) (*data.User, error)
	GetUsersByIDs(ctx context.Context, ids []bson.ObjectID) (map[bson.ObjectID]*data.User, error)
	SetRating(ctx context.Context, userID bson.ObjectID, sum, count int) (*data.User, error)

	GetMatchByID(ctx context.Context, id bson.ObjectID) (*data.Match, error)
	ListRatableMatches(ctx context.Context, userID bson.ObjectID, role data.Role) ([]*data.Match, error)
	MarkMatchRated(ctx context.Context, id bson.ObjectID, role data.Role) error

	CreateReview(ctx context.Context, r *data.Review) (*data.Review, error)
	ListReviewsForUser(ctx context.Context, userID bson.ObjectID) ([]*data.Review, error)
	RatingStats(ctx context.Context, userID bson.ObjectID) (sum, count int, err error)
	ReviewedMatchIDs(ctx context.Context, reviewerID bson.ObjectID) (map[bson.ObjectID]bool, error)
}

// Notifier records a user-facing notification.
type Notifier interface {
	Notify(ctx context.Context, userID bson.ObjectID, typ data.NotificationType, title, message string, refs notify.Refs) (*data.Notification, error)
}

// Submission is the outcome of a successful review.
type Submission struct {
	Review        *data.Review `json:"review"`
	AverageRating float64      `json:"averageRating"`
	RatingCount   int          `json:"ratingCount"`
}

// View is a review with its author's name.
type View struct {
	*data.Review
	ReviewerName string `json:"reviewerName"`
}

// Summary is a user's received reviews and rating aggregate.
type Summary struct {
	Reviews       []*View `json:"reviews"`
	AverageRating float64 `json:"averageRating"`
	RatingCount   int     `json:"ratingCount"`
}

// Service submits and lists reviews.
type Service struct {
	store         Store
	notifier      Notifier
	logger        *slog.Logger
	bidirectional bool
}

// Option configures a Service.
type Option func(*Service)

// WithBidirectional lets the offerer rate the requester as well.
func WithBidirectional(on bool) Option { return func(s *Service) { s.bidirectional = on } }

// New returns a Service.
func New(store Store, notifier Notifier, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{store: store, notifier: notifier, logger: logging.OrDiscard(logger)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit records reviewerID's rating of targetID for matchID and recomputes
// the target's rating aggregate from the stored reviews. The review is the
// record of truth: once it is saved, a failure to set the match's rated flag
// is only logged, and a retry that hits the duplicate finishes the aggregate
// and the flag before reporting Conflict.
func (s *Service) Submit(ctx context.Context, reviewerID, targetID, matchID bson.ObjectID, rating int, comment string) (*Submission, error) {
	comment = strings.TrimSpace(comment)
	switch {
	case rating < 1 || rating > 5:
		return nil, apperr.Validation("Rating must be between 1 and 5.")
	case matchID.IsZero():
		return nil, apperr.Validation("matchId is required")
	case reviewerID == targetID:
		return nil, apperr.Validation("You cannot review yourself.")
	case utf8.RuneCountInString(comment) > MaxCommentRunes:
		return nil, apperr.Validation("Comment is too long (max %d characters).", MaxCommentRunes)
	}

	m, err := s.store.GetMatchByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return nil, apperr.NotFound("Match not found.")
		}
		return nil, err
	}
	if !m.IsParticipant(reviewerID) {
		return nil, apperr.Forbidden("You are not part of this match.")
	}
	if m.Status != data.MatchAccepted && m.Status != data.MatchCompleted {
		return nil, apperr.Conflict("You can only review accepted or completed matches.")
	}

	role := m.RoleOf(reviewerID)
	if role == data.RoleOfferer && !s.bidirectional {
		return nil, apperr.Forbidden("Only the learner can review this match.")
	}
	if m.Counterpart(reviewerID) != targetID {
		return nil, apperr.Forbidden("You can only review the other participant of this match.")
	}
	if m.RatedBy(role) {
		return nil, errAlreadyRated
	}

	reviewer, err := s.user(ctx, reviewerID)
	if err != nil {
		return nil, err
	}
	if _, err := s.user(ctx, targetID); err != nil {
		return nil, err
	}

	r, err := s.store.CreateReview(ctx, &data.Review{
		ReviewerID:   reviewerID,
		TargetUserID: targetID,
		MatchID:      matchID,
		Rating:       rating,
		Comment:      comment,
	})
	if err != nil {
		if errors.Is(err, data.ErrDuplicate) {
			s.settle(ctx, matchID, role, targetID)
			return nil, errAlreadyRated
		}
		return nil, err
	}
	target, err := s.refreshRating(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if err := s.store.MarkMatchRated(ctx, matchID, role); err != nil {
		s.logger.Error("marking match rated failed", "match_id", matchID.Hex(), "role", role, "error", err)
	}
	s.logger.Info("review submitted", "match_id", matchID.Hex(), "reviewer_id", reviewerID.Hex(), "rating", rating)

	if s.notifier != nil {
		_, err := s.notifier.Notify(ctx, targetID, data.NotifyReviewReceived, "New Review",
			fmt.Sprintf("%s left you a %d-star review!", reviewer.Name, rating),
			notify.Refs{User: data.IDPtr(reviewerID), Match: data.IDPtr(matchID), Skill: data.IDPtr(m.SkillID)})
		if err != nil {
			s.logger.Error("review notification failed", "match_id", matchID.Hex(), "error", err)
		}
	}

	return &Submission{Review: r, AverageRating: target.AverageRating, RatingCount: target.RatingCount}, nil
}

var errAlreadyRated = apperr.Conflict("You have already reviewed this match.")

// refreshRating recomputes targetID's aggregate from the reviews collection.
func (s *Service) refreshRating(ctx context.Context, targetID bson.ObjectID) (*data.User, error) {
	sum, count, err := s.store.RatingStats(ctx, targetID)
	if err != nil {
		return nil, err
	}
	return s.store.SetRating(ctx, targetID, sum, count)
}

// settle finishes the writes of a submit whose review already exists.
func (s *Service) settle(ctx context.Context, matchID bson.ObjectID, role data.Role, targetID bson.ObjectID) {
	if _, err := s.refreshRating(ctx, targetID); err != nil {
		s.logger.Error("rating refresh failed", "user_id", targetID.Hex(), "error", err)
	}
	if err := s.store.MarkMatchRated(ctx, matchID, role); err != nil {
		s.logger.Error("marking match rated failed", "match_id", matchID.Hex(), "role", role, "error", err)
	}
}

// RatableMatches lists userID's accepted or completed matches still awaiting
// their review, newest first. Matches userID already has a review for are
// left out even when the rated flag was never set.
func (s *Service) RatableMatches(ctx context.Context, userID bson.ObjectID) ([]*data.Match, error) {
	out, err := s.store.ListRatableMatches(ctx, userID, data.RoleRequester)
	if err != nil {
		return nil, err
	}
	if s.bidirectional {
		asOfferer, err := s.store.ListRatableMatches(ctx, userID, data.RoleOfferer)
		if err != nil {
			return nil, err
		}
		out = append(out, asOfferer...)
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	}
	reviewed, err := s.store.ReviewedMatchIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	kept := make([]*data.Match, 0, len(out))
	for _, m := range out {
		if !reviewed[m.ID] {
			kept = append(kept, m)
		}
	}
	return kept, nil
}

// ListForUser returns the reviews userID received and their aggregate.
func (s *Service) ListForUser(ctx context.Context, userID bson.ObjectID) (*Summary, error) {
	if _, err := s.user(ctx, userID); err != nil {
		return nil, err
	}
	reviews, err := s.store.ListReviewsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, r := range reviews {
		total += r.Rating
	}
	sum := &Summary{
		Reviews:       make([]*View, 0, len(reviews)),
		AverageRating: data.RoundRating(total, len(reviews)),
		RatingCount:   len(reviews),
	}
	if len(reviews) == 0 {
		return sum, nil
	}
	ids := make([]bson.ObjectID, 0, len(reviews))
	for _, r := range reviews {
		ids = append(ids, r.ReviewerID)
	}
	authors, err := s.store.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, r := range reviews {
		v := &View{Review: r, ReviewerName: "Unknown User"}
		if a, ok := authors[r.ReviewerID]; ok {
			v.ReviewerName = a.Name
		}
		sum.Reviews = append(sum.Reviews, v)
	}
	return sum, nil
}

func (s *Service) user(ctx context.Context, id bson.ObjectID) (*data.User, error) {
	u, err := s.store.GetUserByID(ctx, id)
	if errors.Is(err, data.ErrNotFound) {
		return nil, apperr.NotFound("User not found.")
	}
	return u, err
}
