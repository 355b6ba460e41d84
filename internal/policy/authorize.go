package policy

import (
	"github.com/tutorlink/tutorlink/internal/identity"
	"github.com/tutorlink/tutorlink/internal/session"
)

// Decision is the outcome of an access check on a session room.
type Decision struct {
	Allowed bool
	// CanDraw is true for the tutor only.
	CanDraw bool
	Reason  string
}

// AuthorizeParticipant decides whether an account may enter the session's room.
func AuthorizeParticipant(s session.Session, role identity.Role, id int64) Decision {
	switch role {
	case identity.RoleTutor:
		if s.TutorID != id {
			return Decision{Reason: "not the tutor of this session"}
		}
		return Decision{Allowed: true, CanDraw: true}
	case identity.RoleLearner:
		if !s.Bound() {
			return Decision{Reason: "session has no learner yet"}
		}
		if *s.LearnerID != id {
			return Decision{Reason: "not the learner of this session"}
		}
		return Decision{Allowed: true}
	default:
		return Decision{Reason: "unknown role"}
	}
}

// AuthorizePresence decides whether a room participant identity may change
// the learner presence of the session. Only the bound learner can.
func AuthorizePresence(s session.Session, participantIdentity string) Decision {
	role, id, err := identity.Parse(participantIdentity)
	if err != nil {
		return Decision{Reason: "malformed identity"}
	}
	if role != identity.RoleLearner {
		return Decision{Reason: "not a learner identity"}
	}
	return AuthorizeParticipant(s, role, id)
}
