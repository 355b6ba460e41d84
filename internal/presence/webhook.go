package presence

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/tutorlink/tutorlink/internal/identity"
	"github.com/tutorlink/tutorlink/internal/logging"
	"github.com/tutorlink/tutorlink/internal/observability"
	"github.com/tutorlink/tutorlink/internal/policy"
	"github.com/tutorlink/tutorlink/internal/protocol"
	"github.com/tutorlink/tutorlink/internal/session"
)

const (
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
)

var ErrMalformedWebhook = errors.New("malformed webhook")

// WebhookEvent is the part of a provider webhook presence cares about.
type WebhookEvent struct {
	Event    string
	Room     string
	Identity string
}

func ParseWebhook(body []byte) (WebhookEvent, error) {
	if !gjson.ValidBytes(body) {
		return WebhookEvent{}, fmt.Errorf("%w: invalid json", ErrMalformedWebhook)
	}
	fields := gjson.GetManyBytes(body, "event", "room.name", "participant.identity")
	ev := WebhookEvent{
		Event:    fields[0].String(),
		Room:     fields[1].String(),
		Identity: fields[2].String(),
	}
	if ev.Event == "" {
		return WebhookEvent{}, fmt.Errorf("%w: missing event", ErrMalformedWebhook)
	}
	return ev, nil
}

// IngestOutcome is the result label of one webhook.
type IngestOutcome string

const (
	IngestApplied      IngestOutcome = "applied"
	IngestIgnored      IngestOutcome = "ignored"
	IngestMalformed    IngestOutcome = "malformed"
	IngestUnknownRoom  IngestOutcome = "unknown_room"
	IngestUnbound      IngestOutcome = "unbound"
	IngestUnauthorized IngestOutcome = "unauthorized"
	IngestFailed       IngestOutcome = "failed"
)

// SessionLookup resolves a room to its session.
type SessionLookup interface {
	GetByRoom(ctx context.Context, roomName string) (session.Session, error)
}

// Ingestor turns provider webhooks into presence transitions and forwards
// them to the tutor's push connection.
type Ingestor struct {
	sessions   SessionLookup
	reconciler *Reconciler
	registry   *Registry
	metrics    *observability.Metrics
	log        *logging.Logger
}

func NewIngestor(sessions SessionLookup, reconciler *Reconciler, registry *Registry, metrics *observability.Metrics, log *logging.Logger) *Ingestor {
	if log == nil {
		log = logging.Nop()
	}
	return &Ingestor{
		sessions:   sessions,
		reconciler: reconciler,
		registry:   registry,
		metrics:    metrics,
		log:        log.Component("webhook"),
	}
}

// Handle never fails the caller: every payload is acknowledged and the
// outcome only feeds logs and metrics.
func (i *Ingestor) Handle(ctx context.Context, body []byte) IngestOutcome {
	ev, err := ParseWebhook(body)
	if err != nil {
		i.log.Warn().Err(err).Msg("dropped webhook")
		return i.done("unknown", IngestMalformed)
	}
	if ev.Event != EventParticipantJoined && ev.Event != EventParticipantLeft {
		return i.done(ev.Event, IngestIgnored)
	}
	if ev.Room == "" || ev.Identity == "" {
		i.log.Warn().Str("event", ev.Event).Msg("webhook without room or participant")
		return i.done(ev.Event, IngestMalformed)
	}

	role, _, err := identity.Parse(ev.Identity)
	if err != nil {
		i.log.Warn().Err(err).Str("identity", ev.Identity).Msg("dropped webhook")
		return i.done(ev.Event, IngestMalformed)
	}
	if role != identity.RoleLearner {
		return i.done(ev.Event, IngestIgnored)
	}

	sess, err := i.sessions.GetByRoom(ctx, ev.Room)
	if errors.Is(err, session.ErrNotFound) {
		i.log.Info().Str("room", ev.Room).Msg("webhook for unknown room")
		return i.done(ev.Event, IngestUnknownRoom)
	}
	if err != nil {
		i.log.Error().Err(err).Str("room", ev.Room).Msg("session lookup failed")
		return i.done(ev.Event, IngestFailed)
	}
	if !sess.Bound() {
		return i.done(ev.Event, IngestUnbound)
	}
	if d := policy.AuthorizePresence(sess, ev.Identity); !d.Allowed {
		i.log.Warn().
			Str("room", ev.Room).
			Str("identity", ev.Identity).
			Str("reason", d.Reason).
			Msg("rejected presence from foreign participant")
		return i.done(ev.Event, IngestUnauthorized)
	}

	online := ev.Event == EventParticipantJoined
	i.reconciler.ApplyWebhook(sess.RoomName, online)
	i.forward(sess, online)
	return i.done(ev.Event, IngestApplied)
}

func (i *Ingestor) forward(sess session.Session, online bool) {
	p, ok := i.registry.Lookup(sess.TutorID)
	if !ok {
		i.metrics.ObservePush(string(protocol.TypeStudentOnline), "no_connection")
		return
	}
	msg := protocol.NewStudentOnline(sess.RoomName, *sess.LearnerID, online)
	if err := p.Push(msg); err != nil {
		i.log.Debug().Err(err).Int64("tutor", sess.TutorID).Msg("push failed")
		i.metrics.ObservePush(string(protocol.TypeStudentOnline), "failed")
		return
	}
	i.metrics.ObservePush(string(protocol.TypeStudentOnline), "sent")
}

func (i *Ingestor) done(event string, outcome IngestOutcome) IngestOutcome {
	i.metrics.ObserveWebhook(event, string(outcome))
	return outcome
}
