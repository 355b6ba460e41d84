package session

import (
	"context"
	"errors"
	"time"

	"github.com/tutorlink/tutorlink/internal/identity"
)

var (
	ErrNotFound        = errors.New("session not found")
	ErrInvalidJoinCode = errors.New("invalid join code")
	ErrForbidden       = errors.New("access denied")
)

// Session is one tutor/learner pairing with its own media room.
type Session struct {
	ID           string    `json:"course_id"`
	TutorID      int64     `json:"prof_id"`
	LearnerID    *int64    `json:"student_id"`
	JoinCode     string    `json:"join_code,omitempty"`
	RoomName     string    `json:"room_name"`
	Subject      string    `json:"subject"`
	Level        string    `json:"level"`
	ScheduleDay  string    `json:"schedule_day"`
	ScheduleTime string    `json:"schedule_time"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateRequest defines payload for creating a new session.
type CreateRequest struct {
	Subject      string `json:"subject"`
	Level        string `json:"level"`
	ScheduleDay  string `json:"schedule_day"`
	ScheduleTime string `json:"schedule_time"`
}

// JoinRequest binds the calling learner through a one-time code.
type JoinRequest struct {
	JoinCode string `json:"join_code"`
}

// Bound reports whether any learner has joined.
func (s Session) Bound() bool { return s.LearnerID != nil }

// HasLearner reports whether id is the bound learner.
func (s Session) HasLearner(id int64) bool {
	return s.LearnerID != nil && *s.LearnerID == id
}

// IsParty reports whether the account takes part in this session.
func (s Session) IsParty(role identity.Role, id int64) bool {
	switch role {
	case identity.RoleTutor:
		return s.TutorID == id
	case identity.RoleLearner:
		return s.HasLearner(id)
	default:
		return false
	}
}

// Store persists sessions and join codes.
type Store interface {
	Create(ctx context.Context, tutorID int64, req CreateRequest) (Session, error)
	// Join binds learnerID to the session owning code. A code is usable once.
	Join(ctx context.Context, learnerID int64, code string) (Session, error)
	Get(ctx context.Context, id string) (Session, error)
	GetByRoom(ctx context.Context, roomName string) (Session, error)
	ListForTutor(ctx context.Context, tutorID int64) ([]Session, error)
	ListForLearner(ctx context.Context, learnerID int64) ([]Session, error)
	// Delete removes a session if the caller is one of its parties.
	Delete(ctx context.Context, id string, role identity.Role, callerID int64) (Session, error)
	Close() error
}
