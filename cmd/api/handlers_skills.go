package main

import (
	"net/http"

	"github.com/PaulBabatuyi/skillswap/internal/data"
	"github.com/PaulBabatuyi/skillswap/internal/skills"
)

type verifySkillRequest struct {
	Status data.VerificationStatus `json:"status"`
}

func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	out, err := s.skills.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListUserSkills(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.skills.ListByUser(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateSkill(w http.ResponseWriter, r *http.Request) {
	var in skills.Input
	if err := readJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	skill, err := s.skills.Create(r.Context(), me(r), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, skill)
}

// handleUpdateSkill replaces the editable fields of the caller's posting.
func (s *Server) handleUpdateSkill(w http.ResponseWriter, r *http.Request) {
	skillID, err := pathID(r, "skillId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in skills.Input
	if err := readJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	skill, err := s.skills.Update(r.Context(), me(r), skillID, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, skill)
}

// handleDeleteSkill removes a posting and every match that references it.
func (s *Server) handleDeleteSkill(w http.ResponseWriter, r *http.Request) {
	skillID, err := pathID(r, "skillId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.skills.Delete(r.Context(), me(r), skillID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"message": "Skill deleted successfully."})
}

func (s *Server) handleVerifySkill(w http.ResponseWriter, r *http.Request) {
	skillID, err := pathID(r, "skillId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in verifySkillRequest
	if err := readJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	skill, err := s.skills.Verify(r.Context(), me(r), skillID, in.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, skill)
}
