package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/tutorlink/tutorlink/internal/policy"
	"github.com/tutorlink/tutorlink/internal/session"
)

type mediaTokenRequest struct {
	RoomName string `json:"room_name"`
}

type mediaTokenResponse struct {
	Token   string `json:"token"`
	URL     string `json:"url"`
	CanDraw bool   `json:"can_draw"`
}

func (s *Server) handleMediaToken(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req mediaTokenRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.RoomName) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "room_name is required")
		return
	}

	sess, err := s.deps.Sessions.GetByRoom(r.Context(), req.RoomName)
	switch {
	case errors.Is(err, session.ErrNotFound):
		respondError(w, http.StatusForbidden, "forbidden", "access denied to this room")
		return
	case err != nil:
		s.log.Error().Err(err).Str("room", req.RoomName).Msg("room lookup failed")
		respondError(w, http.StatusInternalServerError, "token_failed", "failed to generate token")
		return
	}
	d := policy.AuthorizeParticipant(sess, p.Role, p.ID)
	if !d.Allowed {
		s.log.Info().Str("room", req.RoomName).Str("identity", p.Identity()).Str("reason", d.Reason).Msg("media token denied")
		respondError(w, http.StatusForbidden, "forbidden", "access denied to this room")
		return
	}

	token, err := s.deps.Tokens.ParticipantToken(p.Identity(), p.Email, sess.RoomName)
	if err != nil {
		s.log.Error().Err(err).Msg("sign media token failed")
		respondError(w, http.StatusInternalServerError, "token_failed", "failed to generate token")
		return
	}
	s.deps.Metrics.ObserveSessionEvent("media_token")
	respondJSON(w, http.StatusOK, mediaTokenResponse{Token: token, URL: s.cfg.MediaURL, CanDraw: d.CanDraw})
}

// handleWebhook acknowledges every authentic delivery, including dropped
// ones, so the provider does not retry them.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "unreadable body")
		return
	}
	if s.deps.Webhooks != nil {
		if err := s.deps.Webhooks.Verify(body, r.Header.Get("Authorization")); err != nil {
			s.log.Warn().Err(err).Msg("webhook signature rejected")
			s.deps.Metrics.ObserveWebhook("unknown", "bad_signature")
			respondError(w, http.StatusUnauthorized, "invalid_signature", "webhook signature rejected")
			return
		}
	}
	outcome := s.deps.Ingestor.Handle(r.Context(), body)
	s.log.Debug().Str("outcome", string(outcome)).Msg("webhook processed")
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
