// Package datatest provides an in-memory implementation of the data stores
// for unit tests that should not need a running MongoDB. It enforces the same
// unique indexes and conditional updates as the Mongo-backed stores.
package datatest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/PaulBabatuyi/skillswap/internal/data"
	"github.com/PaulBabatuyi/skillswap/internal/normalize"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Store is a concurrency-safe in-memory replacement for every data store.
// All returned records are copies; mutating them does not change the store.
type Store struct {
	mu  sync.Mutex
	seq int64 // insertion counter, breaks timestamp ties like ObjectID order

	users         map[bson.ObjectID]*data.User
	skills        map[bson.ObjectID]*data.Skill
	matches       map[bson.ObjectID]*data.Match
	messages      []*data.Message
	notifications []*data.Notification
	reviews       []*data.Review
	order         map[bson.ObjectID]int64

	failNotifications error
	failMessages      error
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:   make(map[bson.ObjectID]*data.User),
		skills:  make(map[bson.ObjectID]*data.Skill),
		matches: make(map[bson.ObjectID]*data.Match),
		order:   make(map[bson.ObjectID]int64),
	}
}

// FailNotifications makes CreateNotification return err until called with nil.
func (s *Store) FailNotifications(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNotifications = err
}

// FailMessages makes SaveMessage return err until called with nil.
func (s *Store) FailMessages(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failMessages = err
}

func (s *Store) newID() bson.ObjectID {
	id := bson.NewObjectID()
	s.seq++
	s.order[id] = s.seq
	return id
}

// newer orders by time descending, then by insertion descending.
func (s *Store) newer(at1, at2 time.Time, id1, id2 bson.ObjectID) bool {
	if !at1.Equal(at2) {
		return at1.After(at2)
	}
	return s.order[id1] > s.order[id2]
}

// ===== users =====

// PutUser stores u as-is, assigning an id when it has none. Tests use it to
// seed flags (IsBanned, IsAdmin) that the public API never sets.
func (s *Store) PutUser(u *data.User) *data.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID.IsZero() {
		u.ID = s.newID()
	}
	u.Email = normalize.Email(u.Email)
	c := cloneUser(u)
	s.users[c.ID] = c
	return cloneUser(c)
}

func (s *Store) CreateUser(_ context.Context, email, name, hashedPassword string) (*data.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = normalize.Email(email)
	for _, u := range s.users {
		if u.Email == email {
			return nil, data.ErrDuplicate
		}
	}
	now := time.Now()
	u := &data.User{
		ID:           s.newID(),
		Email:        email,
		Name:         name,
		Password:     hashedPassword,
		BlockedUsers: []bson.ObjectID{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[u.ID] = u
	return cloneUser(u), nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*data.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = normalize.Email(email)
	for _, u := range s.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, data.ErrNotFound
}

func (s *Store) GetUserByID(_ context.Context, id bson.ObjectID) (*data.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, data.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *Store) GetUsersByIDs(_ context.Context, ids []bson.ObjectID) (map[bson.ObjectID]*data.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[bson.ObjectID]*data.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			c := cloneUser(u)
			c.Password = ""
			c.BlockedUsers = nil
			out[id] = c
		}
	}
	return out, nil
}

func (s *Store) UserExists(ctx context.Context, email string) (bool, error) {
	_, err := s.GetUserByEmail(ctx, email)
	if err == data.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

// DeleteUser removes a user, leaving references to it dangling.
func (s *Store) DeleteUser(id bson.ObjectID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

func (s *Store) AddBlockedUser(_ context.Context, userID, other bson.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return data.ErrNotFound
	}
	if !u.HasBlocked(other) {
		u.BlockedUsers = append(u.BlockedUsers, other)
	}
	u.UpdatedAt = time.Now()
	return nil
}

func (s *Store) RemoveBlockedUser(_ context.Context, userID, other bson.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return data.ErrNotFound
	}
	kept := u.BlockedUsers[:0]
	for _, id := range u.BlockedUsers {
		if id != other {
			kept = append(kept, id)
		}
	}
	u.BlockedUsers = kept
	u.UpdatedAt = time.Now()
	return nil
}

func (s *Store) SetRating(_ context.Context, userID bson.ObjectID, sum, count int) (*data.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, data.ErrNotFound
	}
	// same guard as the Mongo filter: never move the count backwards
	if u.RatingCount <= count {
		u.RatingSum = sum
		u.RatingCount = count
		u.AverageRating = data.RoundRating(sum, count)
		u.UpdatedAt = time.Now()
	}
	return cloneUser(u), nil
}

// ===== skills =====

func (s *Store) CreateSkill(_ context.Context, skill *data.Skill) (*data.Skill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	skill.ID = s.newID()
	skill.NameKey = normalize.SkillKey(skill.Name)
	if skill.CreatedAt.IsZero() {
		skill.CreatedAt = time.Now()
	}
	c := *skill
	s.skills[c.ID] = &c
	return skill, nil
}

func (s *Store) GetSkillByID(_ context.Context, id bson.ObjectID) (*data.Skill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sk, ok := s.skills[id]
	if !ok {
		return nil, data.ErrNotFound
	}
	c := *sk
	return &c, nil
}

func (s *Store) ListSkills(_ context.Context) ([]*data.Skill, error) {
	return s.filterSkills(func(*data.Skill) bool { return true }), nil
}

func (s *Store) ListSkillsByUser(_ context.Context, userID bson.ObjectID) ([]*data.Skill, error) {
	return s.filterSkills(func(sk *data.Skill) bool { return sk.UserID == userID }), nil
}

func (s *Store) FindByNameAndType(_ context.Context, name string, t data.SkillType, excludeUserID bson.ObjectID) ([]*data.Skill, error) {
	key := normalize.SkillKey(name)
	return s.filterSkills(func(sk *data.Skill) bool {
		return sk.NameKey == key && sk.Type == t && sk.UserID != excludeUserID
	}), nil
}

func (s *Store) UpdateSkill(_ context.Context, skill *data.Skill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sk, ok := s.skills[skill.ID]
	if !ok {
		return data.ErrNotFound
	}
	sk.Type = skill.Type
	sk.Name = skill.Name
	sk.NameKey = normalize.SkillKey(skill.Name)
	sk.Description = skill.Description
	sk.Availability = skill.Availability
	sk.Location = skill.Location
	skill.NameKey = sk.NameKey
	return nil
}

func (s *Store) SetVerificationStatus(_ context.Context, id bson.ObjectID, status data.VerificationStatus, verifier bson.ObjectID) (*data.Skill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sk, ok := s.skills[id]
	if !ok {
		return nil, data.ErrNotFound
	}
	now := time.Now()
	sk.VerificationStatus = status
	sk.VerifiedAt = &now
	sk.VerifiedBy = data.IDPtr(verifier)
	c := *sk
	return &c, nil
}

func (s *Store) DeleteSkill(_ context.Context, id bson.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.skills[id]; !ok {
		return data.ErrNotFound
	}
	delete(s.skills, id)
	return nil
}

func (s *Store) filterSkills(keep func(*data.Skill) bool) []*data.Skill {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*data.Skill
	for _, sk := range s.skills {
		if keep(sk) {
			c := *sk
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return s.newer(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out
}

// ===== matches =====

func (s *Store) CreateMatch(_ context.Context, m *data.Match) (*data.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.SkillKey = normalize.SkillKey(m.SkillName)
	m.PairKey = normalize.PairKey(m.RequesterID.Hex(), m.OffererID.Hex())

	// partial unique index: (pair_key, skill_key) where status is pending
	if m.Status == data.MatchPending {
		for _, other := range s.matches {
			if other.Status == data.MatchPending && other.PairKey == m.PairKey && other.SkillKey == m.SkillKey {
				return nil, data.ErrDuplicate
			}
		}
	}

	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	m.ID = s.newID()
	s.matches[m.ID] = cloneMatch(m)
	return m, nil
}

// PutMatch stores m without the pending uniqueness check. Tests use it to
// seed legacy records.
func (s *Store) PutMatch(m *data.Match) *data.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID.IsZero() {
		m.ID = s.newID()
	}
	m.SkillKey = normalize.SkillKey(m.SkillName)
	m.PairKey = normalize.PairKey(m.RequesterID.Hex(), m.OffererID.Hex())
	s.matches[m.ID] = cloneMatch(m)
	return cloneMatch(m)
}

func (s *Store) GetMatchByID(_ context.Context, id bson.ObjectID) (*data.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, data.ErrNotFound
	}
	return cloneMatch(m), nil
}

func (s *Store) FindPendingMatch(_ context.Context, pairKey, skillKey string, skillID bson.ObjectID) (*data.Match, error) {
	found := s.filterMatches(func(m *data.Match) bool {
		return m.PairKey == pairKey && m.Status == data.MatchPending &&
			(m.SkillID == skillID || m.SkillKey == skillKey)
	})
	if len(found) == 0 {
		return nil, data.ErrNotFound
	}
	return found[0], nil
}

func (s *Store) ListMatchesForUser(_ context.Context, userID bson.ObjectID) ([]*data.Match, error) {
	return s.filterMatches(func(m *data.Match) bool { return m.IsParticipant(userID) }), nil
}

func (s *Store) ListMatchesByStatus(_ context.Context, userID bson.ObjectID, statuses ...data.MatchStatus) ([]*data.Match, error) {
	return s.filterMatches(func(m *data.Match) bool {
		if !m.IsParticipant(userID) {
			return false
		}
		for _, st := range statuses {
			if m.Status == st {
				return true
			}
		}
		return false
	}), nil
}

func (s *Store) ListRatableMatches(_ context.Context, userID bson.ObjectID, role data.Role) ([]*data.Match, error) {
	return s.filterMatches(func(m *data.Match) bool {
		if m.Status != data.MatchAccepted && m.Status != data.MatchCompleted {
			return false
		}
		if role == data.RoleOfferer {
			return m.OffererID == userID && !m.RatedByOfferer
		}
		return m.RequesterID == userID && !m.RatedByRequester && !m.HasBeenRated
	}), nil
}

func (s *Store) TransitionMatchStatus(_ context.Context, id bson.ObjectID, from, to data.MatchStatus) (*data.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok || m.Status != from {
		return nil, data.ErrNotFound
	}
	m.Status = to
	m.UpdatedAt = time.Now()
	return cloneMatch(m), nil
}

func (s *Store) CompleteMatch(_ context.Context, id, by bson.ObjectID, at time.Time) (*data.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok || m.Status != data.MatchAccepted {
		return nil, data.ErrNotFound
	}
	m.Status = data.MatchCompleted
	m.CompletedBy = data.IDPtr(by)
	m.CompletedAt = &at
	m.UpdatedAt = at
	return cloneMatch(m), nil
}

func (s *Store) MarkMatchRated(_ context.Context, id bson.ObjectID, role data.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return data.ErrNotFound
	}
	if role == data.RoleOfferer {
		m.RatedByOfferer = true
	} else {
		m.RatedByRequester = true
		m.HasBeenRated = true
	}
	m.UpdatedAt = time.Now()
	return nil
}

func (s *Store) DeleteMatchesBySkill(_ context.Context, skillID bson.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, m := range s.matches {
		if m.SkillID == skillID {
			delete(s.matches, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) filterMatches(keep func(*data.Match) bool) []*data.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*data.Match
	for _, m := range s.matches {
		if keep(m) {
			out = append(out, cloneMatch(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return s.newer(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out
}

// ===== messages =====

func (s *Store) SaveMessage(_ context.Context, senderID, receiverID bson.ObjectID, body string, system bool, sentAt time.Time) (*data.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failMessages != nil {
		return nil, s.failMessages
	}
	msg := &data.Message{
		ID:              s.newID(),
		SenderID:        senderID,
		ReceiverID:      receiverID,
		Body:            body,
		Timestamp:       sentAt,
		IsSystemMessage: system,
	}
	c := *msg
	s.messages = append(s.messages, &c)
	return msg, nil
}

func (s *Store) GetMessageHistory(_ context.Context, user1, user2 bson.ObjectID, limit int64) ([]*data.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*data.Message
	for _, m := range s.messages {
		if (m.SenderID == user1 && m.ReceiverID == user2) || (m.SenderID == user2 && m.ReceiverID == user1) {
			c := *m
			out = append(out, &c)
		}
	}
	// oldest first; keep the newest limit entries
	sort.SliceStable(out, func(i, j int) bool {
		return s.newer(out[j].Timestamp, out[i].Timestamp, out[j].ID, out[i].ID)
	})
	if limit > 0 && int64(len(out)) > limit {
		out = out[int64(len(out))-limit:]
	}
	return out, nil
}

func (s *Store) GetRecentChats(_ context.Context, userID bson.ObjectID, limit int64) ([]*data.ChatSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var mine []*data.Message
	for _, m := range s.messages {
		if m.SenderID == userID || m.ReceiverID == userID {
			mine = append(mine, m)
		}
	}
	sort.SliceStable(mine, func(i, j int) bool {
		return s.newer(mine[i].Timestamp, mine[j].Timestamp, mine[i].ID, mine[j].ID)
	})

	byPartner := make(map[bson.ObjectID]*data.ChatSummary)
	var out []*data.ChatSummary
	for _, m := range mine {
		partner := m.SenderID
		if m.SenderID == userID {
			partner = m.ReceiverID
		}
		sum, ok := byPartner[partner]
		if !ok {
			// newest message for this partner comes first
			sum = &data.ChatSummary{
				PartnerID:       partner,
				LastMessage:     m.Body,
				LastMessageAt:   m.Timestamp,
				IsSystemMessage: m.IsSystemMessage,
			}
			byPartner[partner] = sum
			out = append(out, sum)
		}
		if m.ReceiverID == userID && !m.IsRead {
			sum.UnreadCount++
		}
	}
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkRead(_ context.Context, receiverID, senderID bson.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.messages {
		if m.SenderID == senderID && m.ReceiverID == receiverID && !m.IsRead {
			m.IsRead = true
			n++
		}
	}
	return n, nil
}

// Messages returns a copy of every stored message in insertion order.
func (s *Store) Messages() []data.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]data.Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, *m)
	}
	return out
}

// ===== notifications =====

func (s *Store) CreateNotification(_ context.Context, n *data.Notification) (*data.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNotifications != nil {
		return nil, s.failNotifications
	}
	n.ID = s.newID()
	n.IsRead = false
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	c := *n
	s.notifications = append(s.notifications, &c)
	return n, nil
}

func (s *Store) ListNotifications(_ context.Context, userID bson.ObjectID, limit int64) ([]*data.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*data.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			c := *n
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return s.newer(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountUnreadNotifications(_ context.Context, userID bson.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, note := range s.notifications {
		if note.UserID == userID && !note.IsRead {
			n++
		}
	}
	return n, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, userID, id bson.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, note := range s.notifications {
		if note.ID == id && note.UserID == userID {
			note.IsRead = true
			return nil
		}
	}
	return data.ErrNotFound
}

func (s *Store) MarkAllNotificationsRead(_ context.Context, userID bson.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, note := range s.notifications {
		if note.UserID == userID && !note.IsRead {
			note.IsRead = true
			n++
		}
	}
	return n, nil
}

// Notifications returns a copy of every notification addressed to userID,
// in insertion order.
func (s *Store) Notifications(userID bson.ObjectID) []data.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []data.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			out = append(out, *n)
		}
	}
	return out
}

// ===== reviews =====

func (s *Store) CreateReview(_ context.Context, r *data.Review) (*data.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// unique index: (reviewer_id, match_id)
	for _, other := range s.reviews {
		if other.ReviewerID == r.ReviewerID && other.MatchID == r.MatchID {
			return nil, data.ErrDuplicate
		}
	}
	r.ID = s.newID()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	c := *r
	s.reviews = append(s.reviews, &c)
	return r, nil
}

func (s *Store) ListReviewsForUser(_ context.Context, userID bson.ObjectID) ([]*data.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*data.Review
	for _, r := range s.reviews {
		if r.TargetUserID == userID {
			c := *r
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return s.newer(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out, nil
}

func (s *Store) RatingStats(_ context.Context, userID bson.ObjectID) (sum, count int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reviews {
		if r.TargetUserID == userID {
			sum += r.Rating
			count++
		}
	}
	return sum, count, nil
}

func (s *Store) ReviewedMatchIDs(_ context.Context, reviewerID bson.ObjectID) (map[bson.ObjectID]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[bson.ObjectID]bool)
	for _, r := range s.reviews {
		if r.ReviewerID == reviewerID {
			out[r.MatchID] = true
		}
	}
	return out, nil
}

func cloneUser(u *data.User) *data.User {
	c := *u
	c.BlockedUsers = append([]bson.ObjectID(nil), u.BlockedUsers...)
	return &c
}

func cloneMatch(m *data.Match) *data.Match {
	c := *m
	return &c
}
