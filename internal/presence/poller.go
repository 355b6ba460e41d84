package presence

import (
	"context"
	"errors"
	"time"

	"github.com/tutorlink/tutorlink/internal/identity"
	"github.com/tutorlink/tutorlink/internal/logging"
	"github.com/tutorlink/tutorlink/internal/observability"
	"github.com/tutorlink/tutorlink/internal/protocol"
	"github.com/tutorlink/tutorlink/internal/roomsvc"
	"github.com/tutorlink/tutorlink/internal/session"
)

// Occupancy is the polled state of one session room.
type Occupancy struct {
	CourseID         string `json:"course_id"`
	RoomName         string `json:"room_name"`
	StudentID        *int64 `json:"student_id"`
	IsOnline         bool   `json:"is_online"`
	ParticipantCount int    `json:"participant_count"`
	// Stale marks a room whose query failed; IsOnline carries no information.
	Stale bool `json:"stale,omitempty"`
}

type RoomLister interface {
	ListParticipants(ctx context.Context, room string) ([]roomsvc.Participant, error)
}

type TutorSessions interface {
	ListForTutor(ctx context.Context, tutorID int64) ([]session.Session, error)
}

// Poller queries room occupancy. RoomStatus serves the tutor's status
// endpoint; Run keeps the server-side view fresh for connected tutors and
// pushes any correction a missed webhook caused.
type Poller struct {
	rooms      RoomLister
	sessions   TutorSessions
	reconciler *Reconciler
	registry   *Registry
	interval   time.Duration
	metrics    *observability.Metrics
	log        *logging.Logger
}

func NewPoller(rooms RoomLister, sessions TutorSessions, reconciler *Reconciler, registry *Registry, interval time.Duration, metrics *observability.Metrics, log *logging.Logger) *Poller {
	if log == nil {
		log = logging.Nop()
	}
	return &Poller{
		rooms:      rooms,
		sessions:   sessions,
		reconciler: reconciler,
		registry:   registry,
		interval:   interval,
		metrics:    metrics,
		log:        log.Component("poller"),
	}
}

// RoomStatus queries every room of the given sessions. A room the provider
// does not know is reported offline and empty. Once the provider rejects a
// query outright, the remaining rooms are reported stale without asking.
func (p *Poller) RoomStatus(ctx context.Context, sessions []session.Session) []Occupancy {
	out := make([]Occupancy, 0, len(sessions))
	rejected := false
	for _, s := range sessions {
		occ := Occupancy{CourseID: s.ID, RoomName: s.RoomName, StudentID: s.LearnerID}
		if rejected {
			occ.Stale = true
			out = append(out, occ)
			continue
		}
		participants, err := p.rooms.ListParticipants(ctx, s.RoomName)
		var statusErr *roomsvc.StatusError
		switch {
		case errors.Is(err, roomsvc.ErrRoomNotFound):
		case errors.As(err, &statusErr) && !statusErr.Retryable:
			p.metrics.ObservePollError()
			p.log.Error().Err(err).Str("room", s.RoomName).Msg("room service rejected query")
			occ.Stale = true
			rejected = true
		case err != nil:
			p.metrics.ObservePollError()
			p.log.Debug().Err(err).Str("room", s.RoomName).Msg("room query failed")
			occ.Stale = true
		default:
			occ.ParticipantCount = len(participants)
			occ.IsOnline = learnerPresent(s, participants)
		}
		out = append(out, occ)
	}
	return out
}

func learnerPresent(s session.Session, participants []roomsvc.Participant) bool {
	if s.LearnerID == nil {
		return false
	}
	want := identity.Format(identity.RoleLearner, *s.LearnerID)
	for _, pt := range participants {
		if pt.Identity == want {
			return true
		}
	}
	return false
}

// PollOnce reconciles the rooms of every connected tutor.
func (p *Poller) PollOnce(ctx context.Context) {
	for _, tutorID := range p.registry.Tutors() {
		sessions, err := p.sessions.ListForTutor(ctx, tutorID)
		if err != nil {
			p.log.Warn().Err(err).Int64("tutor", tutorID).Msg("list sessions failed")
			continue
		}
		for _, occ := range p.RoomStatus(ctx, sessions) {
			if ctx.Err() != nil {
				return
			}
			if occ.Stale {
				continue
			}
			rec, outcome := p.reconciler.ApplyPoll(occ.RoomName, occ.IsOnline)
			switch outcome {
			case OutcomeDiscarded:
				p.metrics.ObservePollDiscarded()
			case OutcomeApplied:
				if occ.StudentID != nil {
					p.push(tutorID, protocol.NewStudentOnline(occ.RoomName, *occ.StudentID, rec.State == StateOnline))
				}
			}
		}
	}
}

func (p *Poller) push(tutorID int64, msg protocol.StudentOnline) {
	conn, ok := p.registry.Lookup(tutorID)
	if !ok {
		return
	}
	if err := conn.Push(msg); err != nil {
		p.metrics.ObservePush(string(msg.Type), "failed")
		return
	}
	p.metrics.ObservePush(string(msg.Type), "sent")
}

// Run polls on a fixed interval until ctx is done. A failed tick is simply
// retried on the next one.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}
