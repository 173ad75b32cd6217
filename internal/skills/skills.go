// Package skills is the skill catalog: offer and request postings, owner
// edits, cascading deletes and admin verification of proofs.
package skills

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PaulBabatuyi/skillswap/internal/apperr"
	"github.com/PaulBabatuyi/skillswap/internal/data"
	"github.com/PaulBabatuyi/skillswap/internal/logging"
	"github.com/PaulBabatuyi/skillswap/internal/notify"

	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	DefaultCategory        = "other"
	DefaultExperienceLevel = "intermediate"

	maxNameRunes = 100
)

// Store is the persistence the catalog needs.
type Store interface {
	GetUserByID(ctx context.Context, id bson.ObjectID) (*data.User, error)

	CreateSkill(ctx context.Context, skill *data.Skill) (*data.Skill, error)
	GetSkillByID(ctx context.Context, id bson.ObjectID) (*data.Skill, error)
	ListSkills(ctx context.Context) ([]*data.Skill, error)
	ListSkillsByUser(ctx context.Context, userID bson.ObjectID) ([]*data.Skill, error)
	UpdateSkill(ctx context.Context, skill *data.Skill) error
	SetVerificationStatus(ctx context.Context, id bson.ObjectID, status data.VerificationStatus, verifier bson.ObjectID) (*data.Skill, error)
	DeleteSkill(ctx context.Context, id bson.ObjectID) error

	DeleteMatchesBySkill(ctx context.Context, skillID bson.ObjectID) (int64, error)
}

// Notifier records a user-facing notification.
type Notifier interface {
	Notify(ctx context.Context, userID bson.ObjectID, typ data.NotificationType, title, message string, refs notify.Refs) (*data.Notification, error)
}

// Input is the client-editable part of a posting.
type Input struct {
	Type            data.SkillType `json:"type"`
	Name            string         `json:"skillName"`
	Description     string         `json:"description"`
	Availability    string         `json:"availability"`
	Location        string         `json:"location"`
	ProofURL        string         `json:"proofUrl"`
	Category        string         `json:"category"`
	ExperienceLevel string         `json:"experienceLevel"`
}

func (in *Input) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	switch {
	case !in.Type.Valid():
		return apperr.Validation("type must be offer or request")
	case in.Name == "":
		return apperr.Validation("skillName is required")
	case len([]rune(in.Name)) > maxNameRunes:
		return apperr.Validation("skillName is too long (max %d characters)", maxNameRunes)
	}
	return nil
}

// Service manages skill postings.
type Service struct {
	store    Store
	notifier Notifier
	logger   *slog.Logger
}

// New returns a Service.
func New(store Store, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{store: store, notifier: notifier, logger: logging.OrDiscard(logger)}
}

// List returns every posting, newest first.
func (s *Service) List(ctx context.Context) ([]*data.Skill, error) {
	return nonNil(s.store.ListSkills(ctx))
}

// ListByUser returns userID's postings, newest first.
func (s *Service) ListByUser(ctx context.Context, userID bson.ObjectID) ([]*data.Skill, error) {
	return nonNil(s.store.ListSkillsByUser(ctx, userID))
}

// Create adds a posting owned by userID. A proof URL puts it up for review.
func (s *Service) Create(ctx context.Context, userID bson.ObjectID, in Input) (*data.Skill, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	owner, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	if owner.IsBanned {
		return nil, apperr.Forbidden("Your account has been suspended.")
	}

	skill := &data.Skill{
		UserID:             userID,
		Type:               in.Type,
		Name:               in.Name,
		Description:        strings.TrimSpace(in.Description),
		Availability:       in.Availability,
		Location:           in.Location,
		ProofURL:           strings.TrimSpace(in.ProofURL),
		Category:           in.Category,
		ExperienceLevel:    in.ExperienceLevel,
		VerificationStatus: data.VerificationUnverified,
	}
	if skill.ProofURL != "" {
		skill.VerificationStatus = data.VerificationPending
	}
	if skill.Category == "" {
		skill.Category = DefaultCategory
	}
	if skill.ExperienceLevel == "" {
		skill.ExperienceLevel = DefaultExperienceLevel
	}

	skill, err = s.store.CreateSkill(ctx, skill)
	if err != nil {
		return nil, err
	}
	s.logger.Info("skill created", "skill_id", skill.ID.Hex(), "user_id", userID.Hex(), "type", skill.Type)
	return skill, nil
}

// Update edits a posting. Only its owner may do so.
func (s *Service) Update(ctx context.Context, userID, skillID bson.ObjectID, in Input) (*data.Skill, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	skill, err := s.skill(ctx, skillID)
	if err != nil {
		return nil, err
	}
	if skill.UserID != userID {
		return nil, apperr.Forbidden("You can only edit your own skills.")
	}

	skill.Type = in.Type
	skill.Name = in.Name
	skill.Description = strings.TrimSpace(in.Description)
	skill.Availability = in.Availability
	skill.Location = in.Location
	if err := s.store.UpdateSkill(ctx, skill); err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return nil, apperr.NotFound("Skill not found.")
		}
		return nil, err
	}
	return skill, nil
}

// Delete removes a posting and every match made on it. The owner or an
// admin may delete.
func (s *Service) Delete(ctx context.Context, userID, skillID bson.ObjectID) error {
	skill, err := s.skill(ctx, skillID)
	if err != nil {
		return err
	}
	if skill.UserID != userID {
		actor, err := s.user(ctx, userID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin {
			return apperr.Forbidden("You can only delete your own skills.")
		}
	}

	if err := s.store.DeleteSkill(ctx, skillID); err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return apperr.NotFound("Skill not found.")
		}
		return err
	}
	n, err := s.store.DeleteMatchesBySkill(ctx, skillID)
	if err != nil {
		return fmt.Errorf("delete matches for skill %s: %w", skillID.Hex(), err)
	}
	s.logger.Info("skill deleted", "skill_id", skillID.Hex(), "by", userID.Hex(), "matches_removed", n)
	return nil
}

// Verify records an admin's decision on a posting's proof and tells the owner.
func (s *Service) Verify(ctx context.Context, adminID, skillID bson.ObjectID, status data.VerificationStatus) (*data.Skill, error) {
	if status != data.VerificationVerified && status != data.VerificationRejected {
		return nil, apperr.Validation("status must be verified or rejected")
	}
	admin, err := s.user(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if !admin.IsAdmin {
		return nil, apperr.Forbidden("Admin access required.")
	}

	skill, err := s.store.SetVerificationStatus(ctx, skillID, status, adminID)
	if err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return nil, apperr.NotFound("Skill not found.")
		}
		return nil, err
	}

	typ, title, body := data.NotifySkillVerified, "Skill Verified ✓", fmt.Sprintf("Your %s skill has been verified!", skill.Name)
	if status == data.VerificationRejected {
		typ, title, body = data.NotifySkillRejected, "Skill Verification Rejected", fmt.Sprintf("Your proof for %s was not accepted.", skill.Name)
	}
	if s.notifier != nil {
		if _, err := s.notifier.Notify(ctx, skill.UserID, typ, title, body, notify.Refs{Skill: data.IDPtr(skill.ID)}); err != nil {
			s.logger.Error("verification notification failed", "skill_id", skill.ID.Hex(), "error", err)
		}
	}
	return skill, nil
}

func (s *Service) skill(ctx context.Context, id bson.ObjectID) (*data.Skill, error) {
	sk, err := s.store.GetSkillByID(ctx, id)
	if errors.Is(err, data.ErrNotFound) {
		return nil, apperr.NotFound("Skill not found.")
	}
	return sk, err
}

func (s *Service) user(ctx context.Context, id bson.ObjectID) (*data.User, error) {
	u, err := s.store.GetUserByID(ctx, id)
	if errors.Is(err, data.ErrNotFound) {
		return nil, apperr.NotFound("User not found.")
	}
	return u, err
}

func nonNil(skills []*data.Skill, err error) ([]*data.Skill, error) {
	if err != nil {
		return nil, err
	}
	if skills == nil {
		skills = []*data.Skill{}
	}
	return skills, nil
}
