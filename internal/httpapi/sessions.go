package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tutorlink/tutorlink/internal/identity"
	"github.com/tutorlink/tutorlink/internal/session"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if p.Role != identity.RoleTutor {
		respondError(w, http.StatusForbidden, "forbidden", "only tutors can create sessions")
		return
	}
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.Subject = strings.TrimSpace(req.Subject)
	req.Level = strings.TrimSpace(req.Level)

	sess, err := s.deps.Sessions.Create(r.Context(), p.ID, req)
	if err != nil {
		s.log.Error().Err(err).Int64("tutor", p.ID).Msg("create session failed")
		respondError(w, http.StatusInternalServerError, "create_failed", "could not create session")
		return
	}
	s.deps.Metrics.ObserveSessionEvent("created")
	respondJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleJoinSession(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if p.Role != identity.RoleLearner {
		respondError(w, http.StatusForbidden, "forbidden", "only learners can join sessions")
		return
	}
	var req session.JoinRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "join_code is required")
		return
	}
	if strings.TrimSpace(req.JoinCode) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "join_code is required")
		return
	}

	sess, err := s.deps.Sessions.Join(r.Context(), p.ID, req.JoinCode)
	switch {
	case errors.Is(err, session.ErrInvalidJoinCode):
		respondError(w, http.StatusNotFound, "invalid_join_code", "invalid or already used join code")
		return
	case err != nil:
		s.log.Error().Err(err).Int64("learner", p.ID).Msg("join session failed")
		respondError(w, http.StatusInternalServerError, "join_failed", "could not join session")
		return
	}
	s.deps.Metrics.ObserveSessionEvent("joined")
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var (
		list []session.Session
		err  error
	)
	switch p.Role {
	case identity.RoleTutor:
		list, err = s.deps.Sessions.ListForTutor(r.Context(), p.ID)
	case identity.RoleLearner:
		list, err = s.deps.Sessions.ListForLearner(r.Context(), p.ID)
		for i := range list {
			list[i].JoinCode = ""
		}
	default:
		respondError(w, http.StatusForbidden, "forbidden", "unknown role")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("list sessions failed")
		respondError(w, http.StatusInternalServerError, "list_failed", "could not list sessions")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": list})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	sess, err := s.deps.Sessions.Delete(r.Context(), id, p.Role, p.ID)
	switch {
	case errors.Is(err, session.ErrForbidden):
		respondError(w, http.StatusForbidden, "forbidden", "access denied to this session")
		return
	case err != nil:
		s.log.Error().Err(err).Str("session", id).Msg("delete session failed")
		respondError(w, http.StatusInternalServerError, "delete_failed", "could not delete session")
		return
	}
	s.deps.Reconciler.Forget(sess.RoomName)
	s.deps.Metrics.ObserveSessionEvent("deleted")
	respondJSON(w, http.StatusOK, map[string]any{"course_id": sess.ID, "status": "deleted"})
}
