package review

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/PaulBabatuyi/skillswap/internal/apperr"
	"github.com/PaulBabatuyi/skillswap/internal/data"
	"github.com/PaulBabatuyi/skillswap/internal/data/datatest"
	"github.com/PaulBabatuyi/skillswap/internal/notify"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type world struct {
	store              *datatest.Store
	requester, offerer *data.User
}

func newWorld(t *testing.T) *world {
	t.Helper()
	store := datatest.New()
	ctx := context.Background()
	req, _ := store.CreateUser(ctx, "req@example.com", "Rae", "x")
	off, _ := store.CreateUser(ctx, "off@example.com", "Oz", "x")
	return &world{store: store, requester: req, offerer: off}
}

func (w *world) match(status data.MatchStatus) *data.Match {
	return w.store.PutMatch(&data.Match{
		RequesterID: w.requester.ID,
		OffererID:   w.offerer.ID,
		SkillID:     bson.NewObjectID(),
		SkillName:   "Guitar",
		Status:      status,
	})
}

func TestSubmitAndAverage(t *testing.T) {
	w := newWorld(t)
	svc := New(w.store, notify.New(w.store, nil, nil), nil)
	ctx := context.Background()

	m1 := w.match(data.MatchCompleted)
	m2 := w.match(data.MatchAccepted)

	ratable, _ := svc.RatableMatches(ctx, w.requester.ID)
	if len(ratable) != 2 {
		t.Fatalf("expected 2 ratable matches, got %d", len(ratable))
	}
	if off, _ := svc.RatableMatches(ctx, w.offerer.ID); len(off) != 0 {
		t.Fatalf("offerer has nothing to rate by default, got %d", len(off))
	}

	if _, err := svc.Submit(ctx, w.requester.ID, w.offerer.ID, m1.ID, 5, " great "); err != nil {
		t.Fatalf("first review: %v", err)
	}
	got, err := svc.Submit(ctx, w.requester.ID, w.offerer.ID, m2.ID, 3, "")
	if err != nil {
		t.Fatalf("second review: %v", err)
	}
	if got.AverageRating != 4.0 || got.RatingCount != 2 {
		t.Fatalf("expected 4.0 over 2, got %.1f over %d", got.AverageRating, got.RatingCount)
	}

	if _, err := svc.Submit(ctx, w.requester.ID, w.offerer.ID, m1.ID, 4, ""); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("duplicate review: expected Conflict, got %v", err)
	}
	if left, _ := svc.RatableMatches(ctx, w.requester.ID); len(left) != 0 {
		t.Fatalf("rated matches must leave the ratable list, got %d", len(left))
	}

	notes := w.store.Notifications(w.offerer.ID)
	if len(notes) != 2 || notes[0].Type != data.NotifyReviewReceived {
		t.Fatalf("expected review_received notifications, got %+v", notes)
	}

	sum, err := svc.ListForUser(ctx, w.offerer.ID)
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(sum.Reviews) != 2 || sum.AverageRating != 4.0 || sum.Reviews[0].ReviewerName != "Rae" {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if sum.Reviews[1].Comment != "great" {
		t.Fatalf("comment should be trimmed, got %q", sum.Reviews[1].Comment)
	}
}

func TestSubmitRejects(t *testing.T) {
	w := newWorld(t)
	svc := New(w.store, nil, nil)
	ctx := context.Background()
	pending := w.match(data.MatchPending)
	accepted := w.match(data.MatchAccepted)
	stranger, _ := w.store.CreateUser(ctx, "s@example.com", "Sam", "x")

	tests := []struct {
		name             string
		reviewer, target bson.ObjectID
		match            bson.ObjectID
		rating           int
		want             error
	}{
		{"rating low", w.requester.ID, w.offerer.ID, accepted.ID, 0, apperr.ErrValidation},
		{"rating high", w.requester.ID, w.offerer.ID, accepted.ID, 6, apperr.ErrValidation},
		{"no match id", w.requester.ID, w.offerer.ID, bson.ObjectID{}, 5, apperr.ErrValidation},
		{"self", w.requester.ID, w.requester.ID, accepted.ID, 5, apperr.ErrValidation},
		{"unknown match", w.requester.ID, w.offerer.ID, bson.NewObjectID(), 5, apperr.ErrNotFound},
		{"pending", w.requester.ID, w.offerer.ID, pending.ID, 5, apperr.ErrConflict},
		{"not a participant", stranger.ID, w.offerer.ID, accepted.ID, 5, apperr.ErrForbidden},
		{"offerer by default", w.offerer.ID, w.requester.ID, accepted.ID, 5, apperr.ErrForbidden},
		{"wrong target", w.requester.ID, stranger.ID, accepted.ID, 5, apperr.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(ctx, tt.reviewer, tt.target, tt.match, tt.rating, "")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestBidirectionalReviews(t *testing.T) {
	w := newWorld(t)
	svc := New(w.store, nil, nil, WithBidirectional(true))
	ctx := context.Background()
	m := w.match(data.MatchCompleted)

	if _, err := svc.Submit(ctx, w.requester.ID, w.offerer.ID, m.ID, 5, ""); err != nil {
		t.Fatalf("requester review: %v", err)
	}
	if r, _ := svc.RatableMatches(ctx, w.offerer.ID); len(r) != 1 {
		t.Fatalf("offerer should still have the match to rate, got %d", len(r))
	}
	if _, err := svc.Submit(ctx, w.offerer.ID, w.requester.ID, m.ID, 4, ""); err != nil {
		t.Fatalf("offerer review: %v", err)
	}
	if _, err := svc.Submit(ctx, w.offerer.ID, w.requester.ID, m.ID, 4, ""); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("second offerer review: expected Conflict, got %v", err)
	}
	stored, _ := w.store.GetMatchByID(ctx, m.ID)
	if !stored.RatedByRequester || !stored.RatedByOfferer {
		t.Fatalf("both rated flags should be set: %+v", stored)
	}
}

func TestConcurrentSubmitOneReview(t *testing.T) {
	w := newWorld(t)
	svc := New(w.store, nil, nil)
	m := w.match(data.MatchCompleted)

	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Submit(context.Background(), w.requester.ID, w.offerer.ID, m.ID, 5, "")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else if !errors.Is(err, apperr.ErrConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one accepted review, got %d", ok)
	}
	u, _ := w.store.GetUserByID(context.Background(), w.offerer.ID)
	if u.RatingCount != 1 {
		t.Fatalf("rating applied %d times", u.RatingCount)
	}
}

// failingStore fails selected writes until the error is cleared.
type failingStore struct {
	*datatest.Store
	mu        sync.Mutex
	markRated error
	stats     error
}

func (f *failingStore) fail(markRated, stats error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markRated, f.stats = markRated, stats
}

func (f *failingStore) MarkMatchRated(ctx context.Context, id bson.ObjectID, role data.Role) error {
	f.mu.Lock()
	err := f.markRated
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.MarkMatchRated(ctx, id, role)
}

func (f *failingStore) RatingStats(ctx context.Context, userID bson.ObjectID) (int, int, error) {
	f.mu.Lock()
	err := f.stats
	f.mu.Unlock()
	if err != nil {
		return 0, 0, err
	}
	return f.Store.RatingStats(ctx, userID)
}

func TestSubmitSurvivesRatedFlagFailure(t *testing.T) {
	w := newWorld(t)
	store := &failingStore{Store: w.store}
	svc := New(store, nil, nil)
	ctx := context.Background()
	m := w.match(data.MatchCompleted)

	store.fail(errors.New("db unreachable"), nil)
	got, err := svc.Submit(ctx, w.requester.ID, w.offerer.ID, m.ID, 5, "")
	if err != nil {
		t.Fatalf("review should be accepted once saved, got %v", err)
	}
	if got.RatingCount != 1 || got.AverageRating != 5 {
		t.Fatalf("expected 5.0 over 1, got %.1f over %d", got.AverageRating, got.RatingCount)
	}
	if left, _ := svc.RatableMatches(ctx, w.requester.ID); len(left) != 0 {
		t.Fatalf("a reviewed match must not stay ratable, got %d", len(left))
	}

	store.fail(nil, nil)
	if _, err := svc.Submit(ctx, w.requester.ID, w.offerer.ID, m.ID, 5, ""); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("retry: expected Conflict, got %v", err)
	}
	stored, _ := w.store.GetMatchByID(ctx, m.ID)
	if !stored.RatedByRequester || !stored.HasBeenRated {
		t.Fatalf("retry should set the rated flag: %+v", stored)
	}
	u, _ := w.store.GetUserByID(ctx, w.offerer.ID)
	if u.RatingCount != 1 || u.AverageRating != 5 {
		t.Fatalf("rating counted wrong: %.1f over %d", u.AverageRating, u.RatingCount)
	}
}

func TestRetryRepairsLostAggregate(t *testing.T) {
	w := newWorld(t)
	store := &failingStore{Store: w.store}
	svc := New(store, nil, nil)
	ctx := context.Background()
	m := w.match(data.MatchCompleted)

	store.fail(nil, errors.New("db unreachable"))
	if _, err := svc.Submit(ctx, w.requester.ID, w.offerer.ID, m.ID, 4, ""); err == nil {
		t.Fatalf("expected the aggregate failure to surface")
	}
	if u, _ := w.store.GetUserByID(ctx, w.offerer.ID); u.RatingCount != 0 {
		t.Fatalf("aggregate should not be updated yet, got %d", u.RatingCount)
	}

	store.fail(nil, nil)
	if _, err := svc.Submit(ctx, w.requester.ID, w.offerer.ID, m.ID, 4, ""); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("retry: expected Conflict, got %v", err)
	}
	u, _ := w.store.GetUserByID(ctx, w.offerer.ID)
	if u.RatingCount != 1 || u.AverageRating != 4 {
		t.Fatalf("retry should repair the aggregate, got %.1f over %d", u.AverageRating, u.RatingCount)
	}
	sum, err := svc.ListForUser(ctx, w.offerer.ID)
	if err != nil || sum.RatingCount != 1 || sum.AverageRating != 4 {
		t.Fatalf("unexpected summary: %+v (%v)", sum, err)
	}
}
