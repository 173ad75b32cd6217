package main

import (
	"net/http"
)

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, err := selfFromPath(r, "userId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.notifications.List(r.Context(), userID, queryLimit(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, err := selfFromPath(r, "userId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := s.notifications.UnreadCount(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"count": n})
}

// handleMarkNotificationRead only touches notifications owned by the caller.
func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "notificationId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.notifications.MarkRead(r.Context(), me(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true})
}

func (s *Server) handleMarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	userID, err := selfFromPath(r, "userId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := s.notifications.MarkAllRead(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "markedCount": n})
}
