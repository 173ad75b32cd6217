package main

import (
	"net/http"

	"github.com/PaulBabatuyi/skillswap/internal/apperr"
	"github.com/PaulBabatuyi/skillswap/internal/realtime"

	"go.mongodb.org/mongo-driver/v2/bson"
)

var errReceiverRequired = apperr.Validation("receiverId is required.")

// pairFromPath parses {userId}/{otherUserId}; userId must be the caller.
func pairFromPath(r *http.Request) (bson.ObjectID, bson.ObjectID, error) {
	userID, err := selfFromPath(r, "userId")
	if err != nil {
		return userID, bson.ObjectID{}, err
	}
	otherID, err := pathID(r, "otherUserId")
	return userID, otherID, err
}

// handleMessageHistory returns the thread between two users, oldest first.
// ?limit= caps the number of messages.
func (s *Server) handleMessageHistory(w http.ResponseWriter, r *http.Request) {
	userID, otherID, err := pairFromPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.messages.History(r.Context(), userID, otherID, queryLimit(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSendMessage is the synchronous send path used when the socket is
// unavailable. It goes through the same blocking gate and fan-out.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var in realtime.SendMessage
	if err := readJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	senderID := me(r)
	if !in.SenderID.IsZero() {
		if err := requireSelf(r, in.SenderID); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if in.ReceiverID.IsZero() {
		s.writeError(w, r, errReceiverRequired)
		return
	}

	msg, err := s.messages.Send(r.Context(), senderID, in.ReceiverID, in.Message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{"message": "Message sent.", "data": msg})
}

func (s *Server) handleBlockStatus(w http.ResponseWriter, r *http.Request) {
	userID, otherID, err := pairFromPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.messages.Status(r.Context(), userID, otherID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	userID, otherID, err := pairFromPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.messages.Block(r.Context(), userID, otherID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"message": "User blocked successfully.", "blocked": true})
}

func (s *Server) handleUnblock(w http.ResponseWriter, r *http.Request) {
	userID, otherID, err := pairFromPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.messages.Unblock(r.Context(), userID, otherID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"message": "User unblocked successfully.", "blocked": false})
}

// handleMarkMessagesRead marks otherUserId's messages to userId as read.
func (s *Server) handleMarkMessagesRead(w http.ResponseWriter, r *http.Request) {
	userID, otherID, err := pairFromPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := s.messages.MarkRead(r.Context(), userID, otherID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "markedCount": n})
}
