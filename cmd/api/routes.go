package main

import (
	"net/http"
	"slices"

	"github.com/PaulBabatuyi/skillswap/internal/middleware"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// routes builds the full handler: access log, CORS, then the router.
func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	requireAuth := mux.MiddlewareFunc(middleware.RequireAuth(s.auth))

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// register and login are limited per email, falling back to client IP
	authRoutes := r.PathPrefix("/auth").Subrouter()
	authRoutes.Use(mux.MiddlewareFunc(middleware.RateLimitByEmail(s.limiter)))
	authRoutes.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	authRoutes.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)

	// the catalog is readable without a token
	r.HandleFunc("/skills", s.handleListSkills).Methods(http.MethodGet)
	r.HandleFunc("/skills/user/{userId}", s.handleListUserSkills).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(requireAuth)

	api.Handle("/ws", s.ws)

	api.HandleFunc("/skills", s.handleCreateSkill).Methods(http.MethodPost)
	api.HandleFunc("/skills/{skillId}", s.handleUpdateSkill).Methods(http.MethodPut)
	api.HandleFunc("/skills/{skillId}", s.handleDeleteSkill).Methods(http.MethodDelete)
	api.HandleFunc("/admin/skills/{skillId}/verification", s.handleVerifySkill).Methods(http.MethodPost)

	api.HandleFunc("/matches/action", s.handleMatchAction).Methods(http.MethodPost)
	api.HandleFunc("/matches/complete", s.handleCompleteMatch).Methods(http.MethodPost)
	api.HandleFunc("/matches/{userId}", s.handleCandidates).Methods(http.MethodGet)
	api.HandleFunc("/matches/{userId}/all", s.handleMatchHistory).Methods(http.MethodGet)

	api.HandleFunc("/conversations/{userId}", s.handleConversations).Methods(http.MethodGet)

	api.HandleFunc("/messages/send", s.handleSendMessage).Methods(http.MethodPost)
	api.HandleFunc("/messages/block-status/{userId}/{otherUserId}", s.handleBlockStatus).Methods(http.MethodGet)
	api.HandleFunc("/messages/block/{userId}/{otherUserId}", s.handleBlock).Methods(http.MethodPost)
	api.HandleFunc("/messages/unblock/{userId}/{otherUserId}", s.handleUnblock).Methods(http.MethodPost)
	api.HandleFunc("/messages/mark-read/{userId}/{otherUserId}", s.handleMarkMessagesRead).Methods(http.MethodPost)
	api.HandleFunc("/messages/{userId}/{otherUserId}", s.handleMessageHistory).Methods(http.MethodGet)
	api.HandleFunc("/messages/{userId}/{otherUserId}/all", s.handleMessageHistory).Methods(http.MethodGet)

	// ratable-matches must be registered before the {userId} catch-all
	api.HandleFunc("/reviews/ratable-matches/{userId}", s.handleRatableMatches).Methods(http.MethodGet)
	api.HandleFunc("/reviews/{userId}", s.handleListReviews).Methods(http.MethodGet)
	api.HandleFunc("/reviews/{targetUserId}", s.handleSubmitReview).Methods(http.MethodPost)

	api.HandleFunc("/notifications/mark-read/{notificationId}", s.handleMarkNotificationRead).Methods(http.MethodPost)
	api.HandleFunc("/notifications/mark-all-read/{userId}", s.handleMarkAllNotificationsRead).Methods(http.MethodPost)
	api.HandleFunc("/notifications/{userId}", s.handleListNotifications).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{userId}/unread-count", s.handleUnreadCount).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{"message": "route not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{"message": "method not allowed"})
	})

	c := cors.New(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
	})
	return middleware.AccessLog(s.logger)(c.Handler(r))
}

// checkOrigin applies the CORS origin list to websocket handshakes, which
// browsers do not preflight.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.allowedOrigins) == 0 || slices.Contains(s.allowedOrigins, "*") {
		return true
	}
	return slices.Contains(s.allowedOrigins, origin)
}
