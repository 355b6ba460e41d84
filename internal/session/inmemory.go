package session

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tutorlink/tutorlink/internal/identity"
)

// InMemoryStore keeps sessions in process for local/dev use.
type InMemoryStore struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	byRoom     map[string]string
	byCode     map[string]string
	codeLength int
}

func NewInMemoryStore(codeLength int) *InMemoryStore {
	if codeLength <= 0 {
		codeLength = 8
	}
	return &InMemoryStore{
		sessions:   make(map[string]*Session),
		byRoom:     make(map[string]string),
		byCode:     make(map[string]string),
		codeLength: codeLength,
	}
}

func (m *InMemoryStore) Create(_ context.Context, tutorID int64, req CreateRequest) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &Session{
		ID:           uuid.NewString(),
		TutorID:      tutorID,
		Subject:      req.Subject,
		Level:        req.Level,
		ScheduleDay:  req.ScheduleDay,
		ScheduleTime: req.ScheduleTime,
		CreatedAt:    time.Now().UTC(),
	}
	for {
		s.JoinCode = generateCode(m.codeLength)
		if _, taken := m.byCode[s.JoinCode]; !taken {
			break
		}
	}
	for {
		s.RoomName = newRoomName()
		if _, taken := m.byRoom[s.RoomName]; !taken {
			break
		}
	}

	m.sessions[s.ID] = s
	m.byRoom[s.RoomName] = s.ID
	m.byCode[s.JoinCode] = s.ID
	return clone(s), nil
}

func (m *InMemoryStore) Join(_ context.Context, learnerID int64, code string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return Session{}, ErrInvalidJoinCode
	}
	s, ok := m.sessions[id]
	if !ok || s.Bound() {
		return Session{}, ErrInvalidJoinCode
	}
	s.LearnerID = &learnerID
	return clone(s), nil
}

func (m *InMemoryStore) Get(_ context.Context, id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return clone(s), nil
}

func (m *InMemoryStore) GetByRoom(_ context.Context, roomName string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byRoom[roomName]
	if !ok {
		return Session{}, ErrNotFound
	}
	return clone(m.sessions[id]), nil
}

func (m *InMemoryStore) ListForTutor(_ context.Context, tutorID int64) ([]Session, error) {
	return m.list(func(s *Session) bool { return s.TutorID == tutorID }), nil
}

func (m *InMemoryStore) ListForLearner(_ context.Context, learnerID int64) ([]Session, error) {
	return m.list(func(s *Session) bool { return s.HasLearner(learnerID) }), nil
}

func (m *InMemoryStore) Delete(_ context.Context, id string, role identity.Role, callerID int64) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || !s.IsParty(role, callerID) {
		return Session{}, ErrForbidden
	}
	delete(m.sessions, id)
	delete(m.byRoom, s.RoomName)
	delete(m.byCode, s.JoinCode)
	return clone(s), nil
}

func (m *InMemoryStore) Close() error { return nil }

// Newest first, like the dashboard lists them.
func (m *InMemoryStore) list(keep func(*Session) bool) []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Session, 0)
	for _, s := range m.sessions {
		if keep(s) {
			out = append(out, clone(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func clone(s *Session) Session {
	c := *s
	if s.LearnerID != nil {
		id := *s.LearnerID
		c.LearnerID = &id
	}
	return c
}
