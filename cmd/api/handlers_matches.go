package main

import (
	"net/http"
	"strings"

	"github.com/PaulBabatuyi/skillswap/internal/apperr"
	"github.com/PaulBabatuyi/skillswap/internal/matching"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type matchActionRequest struct {
	UserID  string `json:"userId"`
	Action  string `json:"action"`
	SkillID string `json:"skillId"`
	MatchID string `json:"matchId"`
}

type completeMatchRequest struct {
	UserID  string `json:"userId"`
	MatchID string `json:"matchId"`
}

// bodyUser resolves an optional body userId against the token's user.
func bodyUser(r *http.Request, raw string) (bson.ObjectID, error) {
	if raw == "" {
		return me(r), nil
	}
	id, err := parseID("userId", raw)
	if err != nil {
		return id, err
	}
	return id, requireSelf(r, id)
}

// toAction turns the wire request into an engine action.
func (in matchActionRequest) toAction(userID bson.ObjectID) (matching.Action, error) {
	switch strings.ToLower(strings.TrimSpace(in.Action)) {
	case "initiate":
		skillID, err := parseID("skillId", in.SkillID)
		if err != nil {
			return nil, err
		}
		return matching.Initiate{UserID: userID, SkillID: skillID}, nil
	case "accept", "decline":
		matchID, err := parseID("matchId", in.MatchID)
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(strings.TrimSpace(in.Action), "accept") {
			return matching.Accept{UserID: userID, MatchID: matchID}, nil
		}
		return matching.Decline{UserID: userID, MatchID: matchID}, nil
	default:
		return nil, apperr.Validation("Invalid action. Use initiate, accept, or decline.")
	}
}

// handleCandidates lists complementary postings with the viewer's next action.
func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	userID, err := selfFromPath(r, "userId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.matches.FindCandidates(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMatchAction(w http.ResponseWriter, r *http.Request) {
	var in matchActionRequest
	if err := readJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	userID, err := bodyUser(r, in.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	action, err := in.toAction(userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.matches.Apply(r.Context(), action)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if _, ok := action.(matching.Initiate); ok {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

func (s *Server) handleCompleteMatch(w http.ResponseWriter, r *http.Request) {
	var in completeMatchRequest
	if err := readJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	userID, err := bodyUser(r, in.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	matchID, err := parseID("matchId", in.MatchID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.matches.Complete(r.Context(), userID, matchID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleMatchHistory returns every match of the user, newest first.
func (s *Server) handleMatchHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := selfFromPath(r, "userId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.matches.History(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleConversations merges message threads with accepted matches that
// have no messages yet.
func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	userID, err := selfFromPath(r, "userId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.conversations.List(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
