// Package conversation builds a user's inbox: one entry per counterpart,
// from exchanged messages plus accepted matches that have no messages yet.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/PaulBabatuyi/skillswap/internal/apperr"
	"github.com/PaulBabatuyi/skillswap/internal/data"
	"github.com/PaulBabatuyi/skillswap/internal/logging"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// MaxThreads caps the message-backed part of the list.
const MaxThreads = 500

// Store is the persistence the conversation list needs.
type Store interface {
	GetUserByID(ctx context.Context, id bson.ObjectID) (*data.User, error)
	GetUsersByIDs(ctx context.Context, ids []bson.ObjectID) (map[bson.ObjectID]*data.User, error)
	GetRecentChats(ctx context.Context, userID bson.ObjectID, limit int64) ([]*data.ChatSummary, error)
	ListMatchesByStatus(ctx context.Context, userID bson.ObjectID, statuses ...data.MatchStatus) ([]*data.Match, error)
}

// Entry is one thread in the conversation list.
type Entry struct {
	OtherUserID     bson.ObjectID `json:"otherUserId"`
	OtherUserName   string        `json:"otherUserName"`
	LastMessage     string        `json:"lastMessage"`
	LastTimestamp   time.Time     `json:"lastTimestamp"`
	IsSystemMessage bool          `json:"isSystemMessage"`
	HasMessages     bool          `json:"hasMessages"`
	UnreadCount     int           `json:"unreadCount"`
	SkillName       string        `json:"skillName,omitempty"`
}

// Service lists conversations.
type Service struct {
	store  Store
	logger *slog.Logger
}

// New returns a Service.
func New(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logging.OrDiscard(logger)}
}

// List merges userID's message threads with accepted matches that have no
// messages yet, most recent first.
func (s *Service) List(ctx context.Context, userID bson.ObjectID) ([]*Entry, error) {
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return nil, apperr.NotFound("User not found.")
		}
		return nil, err
	}

	chats, err := s.store.GetRecentChats(ctx, userID, MaxThreads)
	if err != nil {
		return nil, err
	}
	accepted, err := s.store.ListMatchesByStatus(ctx, userID, data.MatchAccepted)
	if err != nil {
		return nil, err
	}

	entries := make([]*Entry, 0, len(chats)+len(accepted))
	byPartner := make(map[bson.ObjectID]*Entry, len(chats))
	for _, c := range chats {
		e := &Entry{
			OtherUserID:     c.PartnerID,
			LastMessage:     c.LastMessage,
			LastTimestamp:   c.LastMessageAt,
			IsSystemMessage: c.IsSystemMessage,
			HasMessages:     true,
			UnreadCount:     c.UnreadCount,
		}
		byPartner[c.PartnerID] = e
		entries = append(entries, e)
	}

	// accepted is newest first, so the newest match names the placeholder
	for _, m := range accepted {
		other := m.Counterpart(userID)
		if e, ok := byPartner[other]; ok {
			if e.SkillName == "" {
				e.SkillName = m.SkillName
			}
			continue
		}
		e := &Entry{
			OtherUserID:     other,
			LastMessage:     fmt.Sprintf("Matched for %s - Start chatting!", m.SkillName),
			LastTimestamp:   m.UpdatedAt,
			IsSystemMessage: true,
			SkillName:       m.SkillName,
		}
		byPartner[other] = e
		entries = append(entries, e)
	}

	if len(entries) == 0 {
		return entries, nil
	}

	ids := make([]bson.ObjectID, 0, len(byPartner))
	for id := range byPartner {
		ids = append(ids, id)
	}
	users, err := s.store.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if u, ok := users[e.OtherUserID]; ok {
			e.OtherUserName = u.Name
		} else {
			e.OtherUserName = "Unknown User"
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].LastTimestamp.After(entries[j].LastTimestamp)
	})
	return entries, nil
}
