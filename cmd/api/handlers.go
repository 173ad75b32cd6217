package main

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PaulBabatuyi/skillswap/internal/apperr"
	"github.com/PaulBabatuyi/skillswap/internal/auth"
	"github.com/PaulBabatuyi/skillswap/internal/data"
	"github.com/PaulBabatuyi/skillswap/internal/normalize"
)

const (
	minPasswordLen = 8
	maxNameRunes   = 100
	healthTimeout  = 2 * time.Second
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// tokenResponse is returned by register and login.
type tokenResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (in *registerRequest) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalize.Email(in.Email)
	switch {
	case in.Name == "":
		return apperr.Validation("Name is required.")
	case utf8.RuneCountInString(in.Name) > maxNameRunes:
		return apperr.Validation("Name must be at most %d characters.", maxNameRunes)
	case in.Email == "":
		return apperr.Validation("Email is required.")
	case len(in.Password) < minPasswordLen:
		return apperr.Validation("Password must be at least %d characters.", minPasswordLen)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return apperr.Validation("Email is not valid.")
	}
	return nil
}

// handleRegister hashes the password, stores the user and returns a token.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := readJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := in.validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	hashed, err := auth.HashPassword(in.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	user, err := s.store.CreateUser(r.Context(), in.Email, in.Name, hashed)
	if errors.Is(err, data.ErrDuplicate) {
		s.writeError(w, r, apperr.Conflict("An account with this email already exists."))
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("user registered", "user_id", user.ID.Hex())
	s.writeToken(w, r, http.StatusCreated, user)
}

// handleLogin checks credentials and returns a token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := readJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), in.Email)
	if errors.Is(err, data.ErrNotFound) {
		s.writeError(w, r, apperr.Unauthorized("Invalid email or password."))
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := auth.CheckPassword(user.Password, in.Password); err != nil {
		s.writeError(w, r, apperr.Unauthorized("Invalid email or password."))
		return
	}
	if user.IsBanned {
		s.writeError(w, r, apperr.Forbidden("Your account has been suspended."))
		return
	}
	s.writeToken(w, r, http.StatusOK, user)
}

func (s *Server) writeToken(w http.ResponseWriter, r *http.Request, status int, user *data.User) {
	token, expiresAt, err := s.auth.GenerateToken(user.ID, user.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, status, tokenResponse{Token: token, UserID: user.ID.Hex(), ExpiresAt: expiresAt})
}

// handleHealth reports whether MongoDB answers a ping.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, envelope{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, envelope{"status": "ok"})
}
