package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/PaulBabatuyi/skillswap/internal/apperr"
	"github.com/PaulBabatuyi/skillswap/internal/middleware"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const maxBodyBytes = 1 << 20

// envelope is the generic JSON object written by handlers.
type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// readJSON decodes a bounded request body into dst.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperr.Validation("Request body is required.")
		case errors.As(err, &tooLarge):
			return apperr.Validation("Request body is too large.")
		default:
			return apperr.Validation("Malformed JSON body.")
		}
	}
	return nil
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindForbidden, apperr.KindBlocked:
		return http.StatusForbidden
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err. Domain errors carry their message to the client;
// anything else is logged and answered with a generic 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	reqID := middleware.RequestIDFromContext(r.Context())
	if kind == apperr.KindInternal {
		s.logger.Error("request failed", "request_id", reqID, "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{"message": "internal server error"})
		return
	}

	s.logger.Debug("request rejected", "request_id", reqID, "kind", kind.String(), "error", err)
	body := envelope{"message": apperr.MessageOf(err)}
	if kind == apperr.KindBlocked {
		body["blocked"] = true
	}
	writeJSON(w, statusFor(kind), body)
}

// parseID parses a hex ObjectID named field. An empty value is an error.
func parseID(field, raw string) (bson.ObjectID, error) {
	if raw == "" {
		return bson.ObjectID{}, apperr.Validation("%s is required.", field)
	}
	id, err := bson.ObjectIDFromHex(raw)
	if err != nil {
		return bson.ObjectID{}, apperr.Validation("Invalid %s.", field)
	}
	return id, nil
}

// optionalID parses raw, treating an empty value as the zero id.
func optionalID(field, raw string) (bson.ObjectID, error) {
	if raw == "" {
		return bson.ObjectID{}, nil
	}
	return parseID(field, raw)
}

// pathID parses the route variable name.
func pathID(r *http.Request, name string) (bson.ObjectID, error) {
	return parseID(name, mux.Vars(r)[name])
}

// selfFromPath parses the route variable name and requires it to be the
// authenticated user.
func selfFromPath(r *http.Request, name string) (bson.ObjectID, error) {
	id, err := pathID(r, name)
	if err != nil {
		return id, err
	}
	return id, requireSelf(r, id)
}

// requireSelf rejects requests that act on behalf of another user.
func requireSelf(r *http.Request, id bson.ObjectID) error {
	if id != me(r) {
		return apperr.Forbidden("You can only act on your own account.")
	}
	return nil
}

// queryLimit reads ?limit=, returning 0 when it is absent or not a positive
// integer.
func queryLimit(r *http.Request) int64 {
	n, err := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
