package main

import (
	"net/http"
)

type submitReviewRequest struct {
	MatchID string `json:"matchId"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// handleSubmitReview records the caller's rating of targetUserId for a match.
func (s *Server) handleSubmitReview(w http.ResponseWriter, r *http.Request) {
	targetID, err := pathID(r, "targetUserId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in submitReviewRequest
	if err := readJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	// a missing matchId is reported by the review gate
	matchID, err := optionalID("matchId", in.MatchID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out, err := s.reviews.Submit(r.Context(), me(r), targetID, matchID, in.Rating, in.Comment)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleRatableMatches(w http.ResponseWriter, r *http.Request) {
	userID, err := selfFromPath(r, "userId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.reviews.RatableMatches(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleListReviews is readable by any signed-in user.
func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.reviews.ListForUser(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
