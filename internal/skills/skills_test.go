package skills

import (
	"context"
	"errors"
	"testing"

	"github.com/PaulBabatuyi/skillswap/internal/apperr"
	"github.com/PaulBabatuyi/skillswap/internal/data"
	"github.com/PaulBabatuyi/skillswap/internal/data/datatest"
	"github.com/PaulBabatuyi/skillswap/internal/notify"

	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestCreateDefaults(t *testing.T) {
	store := datatest.New()
	ctx := context.Background()
	u, _ := store.CreateUser(ctx, "u@example.com", "U", "x")
	svc := New(store, nil, nil)

	plain, err := svc.Create(ctx, u.ID, Input{Type: data.SkillOffer, Name: "  Guitar "})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if plain.Name != "Guitar" || plain.Category != DefaultCategory || plain.ExperienceLevel != DefaultExperienceLevel ||
		plain.VerificationStatus != data.VerificationUnverified {
		t.Fatalf("unexpected defaults: %+v", plain)
	}

	proved, _ := svc.Create(ctx, u.ID, Input{Type: data.SkillRequest, Name: "Chess", ProofURL: "https://example.com/cert.pdf", Category: "games"})
	if proved.VerificationStatus != data.VerificationPending || proved.Category != "games" {
		t.Fatalf("proof should put the skill up for review: %+v", proved)
	}

	for _, in := range []Input{{Type: "trade", Name: "x"}, {Type: data.SkillOffer, Name: "  "}} {
		if _, err := svc.Create(ctx, u.ID, in); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("expected Validation for %+v, got %v", in, err)
		}
	}

	list, _ := svc.ListByUser(ctx, u.ID)
	if len(list) != 2 {
		t.Fatalf("expected 2 skills, got %d", len(list))
	}
	if none, _ := svc.ListByUser(ctx, bson.NewObjectID()); none == nil {
		t.Fatalf("expected non-nil empty list")
	}
}

func TestUpdateOwnerOnly(t *testing.T) {
	store := datatest.New()
	ctx := context.Background()
	owner, _ := store.CreateUser(ctx, "o@example.com", "O", "x")
	other, _ := store.CreateUser(ctx, "x@example.com", "X", "x")
	svc := New(store, nil, nil)
	sk, _ := svc.Create(ctx, owner.ID, Input{Type: data.SkillOffer, Name: "Guitar"})

	if _, err := svc.Update(ctx, other.ID, sk.ID, Input{Type: data.SkillOffer, Name: "Bass"}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
	if _, err := svc.Update(ctx, owner.ID, sk.ID, Input{Type: data.SkillOffer, Name: "Bass Guitar"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	found, _ := store.FindByNameAndType(ctx, "bass guitar", data.SkillOffer, other.ID)
	if len(found) != 1 {
		t.Fatalf("renamed skill should match by its new key, got %d", len(found))
	}
}

func TestDeleteCascadesMatches(t *testing.T) {
	store := datatest.New()
	ctx := context.Background()
	owner, _ := store.CreateUser(ctx, "o@example.com", "O", "x")
	learner, _ := store.CreateUser(ctx, "l@example.com", "L", "x")
	admin := store.PutUser(&data.User{Email: "admin@example.com", Name: "Admin", IsAdmin: true})
	svc := New(store, nil, nil)

	sk, _ := svc.Create(ctx, owner.ID, Input{Type: data.SkillOffer, Name: "Guitar"})
	store.PutMatch(&data.Match{RequesterID: learner.ID, OffererID: owner.ID, SkillID: sk.ID, SkillName: sk.Name, Status: data.MatchAccepted})

	if err := svc.Delete(ctx, learner.ID, sk.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected Forbidden for non-owner, got %v", err)
	}
	if err := svc.Delete(ctx, admin.ID, sk.ID); err != nil {
		t.Fatalf("admin Delete: %v", err)
	}
	if ms, _ := store.ListMatchesForUser(ctx, learner.ID); len(ms) != 0 {
		t.Fatalf("matches on a deleted skill should be removed, got %d", len(ms))
	}
	if err := svc.Delete(ctx, owner.ID, sk.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected NotFound deleting twice, got %v", err)
	}
}

func TestVerifyNotifiesOwner(t *testing.T) {
	store := datatest.New()
	ctx := context.Background()
	owner, _ := store.CreateUser(ctx, "o@example.com", "O", "x")
	admin := store.PutUser(&data.User{Email: "admin@example.com", Name: "Admin", IsAdmin: true})
	svc := New(store, notify.New(store, nil, nil), nil)
	sk, _ := svc.Create(ctx, owner.ID, Input{Type: data.SkillOffer, Name: "Guitar", ProofURL: "https://example.com/p"})

	if _, err := svc.Verify(ctx, owner.ID, sk.ID, data.VerificationVerified); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected Forbidden for non-admin, got %v", err)
	}
	if _, err := svc.Verify(ctx, admin.ID, sk.ID, data.VerificationPending); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected Validation for bad status, got %v", err)
	}

	got, err := svc.Verify(ctx, admin.ID, sk.ID, data.VerificationRejected)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.VerificationStatus != data.VerificationRejected || got.VerifiedBy == nil || *got.VerifiedBy != admin.ID {
		t.Fatalf("unexpected skill: %+v", got)
	}
	notes := store.Notifications(owner.ID)
	if len(notes) != 1 || notes[0].Type != data.NotifySkillRejected || notes[0].RelatedSkillID == nil {
		t.Fatalf("expected skill_rejected notification, got %+v", notes)
	}
}
