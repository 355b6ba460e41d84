package presence

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tutorlink/tutorlink/internal/session"
)

type ingestFixture struct {
	store      *session.InMemoryStore
	sess       session.Session
	reconciler *Reconciler
	registry   *Registry
	pusher     *fakePusher
	ingestor   *Ingestor
}

func newIngestFixture(t *testing.T, learner int64) *ingestFixture {
	t.Helper()
	ctx := context.Background()
	store := session.NewInMemoryStore(8)
	sess, err := store.Create(ctx, 7, session.CreateRequest{Subject: "Physics"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if learner != 0 {
		if sess, err = store.Join(ctx, learner, sess.JoinCode); err != nil {
			t.Fatalf("Join() error = %v", err)
		}
	}
	f := &ingestFixture{
		store:      store,
		sess:       sess,
		reconciler: NewReconciler(10 * time.Second),
		registry:   NewRegistry(),
		pusher:     &fakePusher{id: "tutor-conn"},
	}
	f.registry.Register(7, f.pusher)
	f.ingestor = NewIngestor(store, f.reconciler, f.registry, nil, nil)
	return f
}

func webhookBody(event, room, participant string) []byte {
	return []byte(fmt.Sprintf(`{"event":%q,"room":{"name":%q,"sid":"RM_x"},"participant":{"identity":%q,"sid":"PA_x"}}`, event, room, participant))
}

func TestLearnerJoinFlipsOnlineAndPushes(t *testing.T) {
	f := newIngestFixture(t, 42)

	out := f.ingestor.Handle(context.Background(), webhookBody(EventParticipantJoined, f.sess.RoomName, "STUDENT-42"))
	if out != IngestApplied {
		t.Fatalf("Handle() = %s, want applied", out)
	}
	if got := f.reconciler.Get(f.sess.RoomName); got.State != StateOnline || got.Source != SourceWebhook {
		t.Fatalf("record = %+v", got)
	}
	pushed := f.pusher.studentOnline()
	if len(pushed) != 1 || pushed[0].StudentID != 42 || pushed[0].Status != "online" || pushed[0].RoomName != f.sess.RoomName {
		t.Fatalf("pushed = %+v", pushed)
	}

	f.ingestor.Handle(context.Background(), webhookBody(EventParticipantLeft, f.sess.RoomName, "STUDENT-42"))
	if got := f.reconciler.Get(f.sess.RoomName).State; got != StateOffline {
		t.Fatalf("state after leave = %s, want offline", got)
	}
}

func TestForeignLearnerIsRejected(t *testing.T) {
	f := newIngestFixture(t, 42)
	f.reconciler.ApplyPoll(f.sess.RoomName, false)

	out := f.ingestor.Handle(context.Background(), webhookBody(EventParticipantJoined, f.sess.RoomName, "STUDENT-43"))
	if out != IngestUnauthorized {
		t.Fatalf("Handle() = %s, want unauthorized", out)
	}
	if got := f.reconciler.Get(f.sess.RoomName); got.State != StateOffline || got.Source != SourcePoll {
		t.Fatalf("record changed: %+v", got)
	}
	if len(f.pusher.studentOnline()) != 0 {
		t.Fatalf("foreign presence was pushed")
	}
}

func TestUnattributableWebhooksAreDropped(t *testing.T) {
	f := newIngestFixture(t, 0)
	cases := []struct {
		name string
		body []byte
		want IngestOutcome
	}{
		{"not json", []byte(`{"event":`), IngestMalformed},
		{"no room", []byte(`{"event":"participant_joined","participant":{"identity":"STUDENT-42"}}`), IngestMalformed},
		{"bad identity", webhookBody(EventParticipantJoined, f.sess.RoomName, "STUDENT-x"), IngestMalformed},
		{"unknown room", webhookBody(EventParticipantJoined, "room-nope", "STUDENT-42"), IngestUnknownRoom},
		{"no learner bound", webhookBody(EventParticipantJoined, f.sess.RoomName, "STUDENT-42"), IngestUnbound},
		{"tutor joined", webhookBody(EventParticipantJoined, f.sess.RoomName, "PROF-7"), IngestIgnored},
		{"other event", []byte(`{"event":"room_started","room":{"name":"x"}}`), IngestIgnored},
	}
	for _, tc := range cases {
		if got := f.ingestor.Handle(context.Background(), tc.body); got != tc.want {
			t.Fatalf("%s: Handle() = %s, want %s", tc.name, got, tc.want)
		}
	}
	if got := f.reconciler.Get(f.sess.RoomName).State; got != StateUnknown {
		t.Fatalf("state = %s, want unknown", got)
	}
}

func TestPushFailureStillApplies(t *testing.T) {
	f := newIngestFixture(t, 42)
	f.pusher.err = errors.New("closed")

	out := f.ingestor.Handle(context.Background(), webhookBody(EventParticipantJoined, f.sess.RoomName, "STUDENT-42"))
	if out != IngestApplied || f.reconciler.Get(f.sess.RoomName).State != StateOnline {
		t.Fatalf("Handle() = %s, state %s", out, f.reconciler.Get(f.sess.RoomName).State)
	}
}

func TestParseWebhook(t *testing.T) {
	ev, err := ParseWebhook(webhookBody(EventParticipantLeft, "room-1", "STUDENT-5"))
	if err != nil {
		t.Fatalf("ParseWebhook() error = %v", err)
	}
	if ev.Event != EventParticipantLeft || ev.Room != "room-1" || ev.Identity != "STUDENT-5" {
		t.Fatalf("ParseWebhook() = %+v", ev)
	}
	if _, err := ParseWebhook([]byte(`{}`)); !errors.Is(err, ErrMalformedWebhook) {
		t.Fatalf("ParseWebhook({}) error = %v, want ErrMalformedWebhook", err)
	}
}
