package data

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/PaulBabatuyi/skillswap/internal/db"

	"go.mongodb.org/mongo-driver/v2/bson"
)

func setupDB(t *testing.T) *db.Client {
	t.Helper()
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set; skipping integration test")
	}

	ctx := context.Background()
	c, err := db.New(ctx, uri, "skillswap_data_test")
	if err != nil {
		t.Fatalf("db.New failed: %v", err)
	}

	// ensure clean collections in case previous runs left data
	_ = c.UsersCollection().Drop(ctx)
	_ = c.SkillsCollection().Drop(ctx)
	_ = c.MatchesCollection().Drop(ctx)
	_ = c.MessagesCollection().Drop(ctx)
	_ = c.NotificationsCollection().Drop(ctx)
	_ = c.ReviewsCollection().Drop(ctx)

	if err := c.CreateIndexes(ctx); err != nil {
		t.Fatalf("CreateIndexes failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func TestUsersCreateAndGet(t *testing.T) {
	c := setupDB(t)
	users := NewUsersStore(c.UsersCollection())

	ctx := context.Background()
	email := time.Now().UTC().Format("20060102-150405") + "-integration@example.com"

	// create (mixed case is stored normalized)
	user, err := users.CreateUser(ctx, "  "+email, "Ada", "hashed-password")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if user.Email != email {
		t.Fatalf("expected email %s got %s", email, user.Email)
	}

	// duplicate
	if _, err := users.CreateUser(ctx, email, "Ada", "x"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	ok, err := users.UserExists(ctx, email)
	if err != nil || !ok {
		t.Fatalf("UserExists failed: ok=%v err=%v", ok, err)
	}

	u2, err := users.GetUserByEmail(ctx, email)
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if u2.Name != "Ada" {
		t.Fatalf("GetUserByEmail returned wrong user: %+v", u2)
	}

	got, err := users.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	if got.Email != email {
		t.Fatalf("GetUserByID returned wrong email: %s", got.Email)
	}

	byID, err := users.GetUsersByIDs(ctx, []bson.ObjectID{user.ID})
	if err != nil {
		t.Fatalf("GetUsersByIDs failed: %v", err)
	}
	if byID[user.ID] == nil || byID[user.ID].Password != "" {
		t.Fatalf("GetUsersByIDs should return the user without password: %+v", byID[user.ID])
	}
}

func TestUsersBlockedSet(t *testing.T) {
	c := setupDB(t)
	users := NewUsersStore(c.UsersCollection())
	ctx := context.Background()

	a, _ := users.CreateUser(ctx, "a@example.com", "A", "x")
	b, _ := users.CreateUser(ctx, "b@example.com", "B", "x")

	// adding twice keeps a single entry
	for i := 0; i < 2; i++ {
		if err := users.AddBlockedUser(ctx, a.ID, b.ID); err != nil {
			t.Fatalf("AddBlockedUser failed: %v", err)
		}
	}
	got, _ := users.GetUserByID(ctx, a.ID)
	if len(got.BlockedUsers) != 1 || !got.HasBlocked(b.ID) {
		t.Fatalf("expected exactly b blocked, got %v", got.BlockedUsers)
	}

	if err := users.RemoveBlockedUser(ctx, a.ID, b.ID); err != nil {
		t.Fatalf("RemoveBlockedUser failed: %v", err)
	}
	got, _ = users.GetUserByID(ctx, a.ID)
	if got.HasBlocked(b.ID) {
		t.Fatalf("expected b unblocked")
	}
}

func TestUsersSetRatingFromReviews(t *testing.T) {
	c := setupDB(t)
	users := NewUsersStore(c.UsersCollection())
	reviews := NewReviewsStore(c.ReviewsCollection())
	ctx := context.Background()

	u, _ := users.CreateUser(ctx, "rated@example.com", "R", "x")
	reviewer := bson.NewObjectID()

	// 5, 4, 4 -> 13/3 = 4.333 -> 4.3
	for _, r := range []int{5, 4, 4} {
		if _, err := reviews.CreateReview(ctx, &Review{ReviewerID: reviewer, TargetUserID: u.ID, MatchID: bson.NewObjectID(), Rating: r}); err != nil {
			t.Fatalf("CreateReview failed: %v", err)
		}
	}
	sum, count, err := reviews.RatingStats(ctx, u.ID)
	if err != nil {
		t.Fatalf("RatingStats failed: %v", err)
	}
	got, err := users.SetRating(ctx, u.ID, sum, count)
	if err != nil {
		t.Fatalf("SetRating failed: %v", err)
	}
	if got.RatingCount != 3 || got.AverageRating != 4.3 {
		t.Fatalf("expected count 3 avg 4.3, got %d %v", got.RatingCount, got.AverageRating)
	}

	// stale stats from a slower writer are ignored
	got, err = users.SetRating(ctx, u.ID, 5, 1)
	if err != nil || got.RatingCount != 3 || got.AverageRating != 4.3 {
		t.Fatalf("stale write applied: %+v (%v)", got, err)
	}

	reviewed, err := reviews.ReviewedMatchIDs(ctx, reviewer)
	if err != nil || len(reviewed) != 3 {
		t.Fatalf("expected 3 reviewed matches, got %d (%v)", len(reviewed), err)
	}

	// no reviews yet
	v, _ := users.CreateUser(ctx, "half@example.com", "H", "x")
	if sum, count, _ := reviews.RatingStats(ctx, v.ID); sum != 0 || count != 0 {
		t.Fatalf("expected no ratings, got %d over %d", sum, count)
	}
	if _, err := users.SetRating(ctx, bson.NewObjectID(), 5, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRoundRating(t *testing.T) {
	tests := []struct {
		sum, count int
		want       float64
	}{
		{0, 0, 0},
		{9, 2, 4.5},
		{13, 3, 4.3},
		{14, 3, 4.7},
	}
	for _, tt := range tests {
		if got := RoundRating(tt.sum, tt.count); got != tt.want {
			t.Errorf("RoundRating(%d, %d) = %v, want %v", tt.sum, tt.count, got, tt.want)
		}
	}
}
