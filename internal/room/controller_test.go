package room

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tutorlink/tutorlink/internal/annotation"
	"github.com/tutorlink/tutorlink/internal/canvas"
	"github.com/tutorlink/tutorlink/internal/identity"
	"github.com/tutorlink/tutorlink/internal/tracks"
)

type fakeTokens struct {
	creds Credentials
	err   error
	block chan struct{}
}

func (f *fakeTokens) Token(ctx context.Context, _ string) (Credentials, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}
	return f.creds, f.err
}

type fakeConn struct {
	events chan Event
	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func newFakeConn() *fakeConn { return &fakeConn{events: make(chan Event)} }

func (c *fakeConn) Events() <-chan Event { return c.events }

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) sentEvents(t *testing.T) []annotation.Event {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]annotation.Event, 0, len(c.sent))
	for _, raw := range c.sent {
		ev, err := annotation.Decode(raw)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		out = append(out, ev)
	}
	return out
}

type fakeConnector struct {
	conn *fakeConn
	err  error
}

func (f *fakeConnector) Connect(context.Context, Credentials) (MediaConnection, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.conn, nil
}

type surfaces struct {
	mu   sync.Mutex
	byID map[string]*annotation.RecordingSurface
	w, h float64
}

func newSurfaces(w, h float64) *surfaces {
	return &surfaces{byID: make(map[string]*annotation.RecordingSurface), w: w, h: h}
}

func (s *surfaces) factory(id string) annotation.Surface {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		s.byID[id] = annotation.NewRecordingSurface(s.w, s.h)
	}
	return s.byID[id]
}

func (s *surfaces) get(id string) *annotation.RecordingSurface {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id]
}

type harness struct {
	ctrl     *Controller
	conn     *fakeConn
	surfaces *surfaces
	cancel   context.CancelFunc
	done     chan error
}

func startRoom(t *testing.T, role identity.Role, width, height float64) *harness {
	t.Helper()
	h := &harness{conn: newFakeConn(), surfaces: newSurfaces(width, height), done: make(chan error, 1)}
	h.ctrl = NewController(Options{
		RoomName:  "room-1",
		Role:      role,
		Tokens:    &fakeTokens{creds: Credentials{Token: "t", URL: "ws://media", CanDraw: role == identity.RoleTutor}},
		Connector: &fakeConnector{conn: h.conn},
		Surfaces:  h.surfaces.factory,
	})
	connected := make(chan struct{}, 1)
	h.ctrl.OnChange(func(s ViewState) {
		if s.Status == StatusConnected {
			select {
			case connected <- struct{}{}:
			default:
			}
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.ctrl.Run(ctx) }()
	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatalf("controller did not connect")
	}
	t.Cleanup(cancel)
	return h
}

// deliver hands ev to the event loop. The channel is unbuffered, so the
// following no-op delivery returns only once ev has been handled.
func (h *harness) deliver(ev Event) {
	h.conn.events <- ev
	h.conn.events <- Event{Kind: EventKind("sync")}
}

func published(t tracks.Track) Event { return Event{Kind: EventTrackPublished, Track: t} }

var (
	faceCam  = tracks.Track{Participant: "STUDENT-42", Role: tracks.RoleLearner, Kind: tracks.KindCamera, Sequence: 0, StreamID: "deviceA-stream"}
	paperCam = tracks.Track{Participant: "STUDENT-42", Role: tracks.RoleLearner, Kind: tracks.KindCamera, Sequence: 1, StreamID: "deviceB-stream"}
	screen   = tracks.Track{Participant: "PROF-7", Role: tracks.RoleTutor, Kind: tracks.KindScreen, StreamID: "screen-stream"}
)

func TestControllerResolvesDualCamera(t *testing.T) {
	h := startRoom(t, identity.RoleTutor, 1280, 720)
	h.deliver(published(paperCam))
	h.deliver(published(faceCam))

	view := h.ctrl.State().View
	if view.Face.StreamID != "deviceA-stream" || view.Paper.StreamID != "deviceB-stream" {
		t.Fatalf("face/paper = %s/%s", view.Face.StreamID, view.Paper.StreamID)
	}
	if got := h.ctrl.Annotations().Target(); got != "deviceB-stream" {
		t.Fatalf("annotation target = %q, want paper", got)
	}
}

func TestControllerScreenShareRetargets(t *testing.T) {
	h := startRoom(t, identity.RoleTutor, 1280, 720)
	h.deliver(published(faceCam))
	h.deliver(published(paperCam))

	ch := h.ctrl.Annotations()
	ch.BeginStroke(canvas.Point{X: 0.1, Y: 0.1})
	ch.ContinueStroke(canvas.Point{X: 0.5, Y: 0.5}, "#EF4444", 3)

	h.deliver(published(screen))
	if ch.Target() != "screen-stream" || ch.Drawing() {
		t.Fatalf("target = %q drawing = %v, want screen and stroke finalized", ch.Target(), ch.Drawing())
	}
	ch.ClearSurface()

	sent := h.conn.sentEvents(t)
	if len(sent) != 2 {
		t.Fatalf("sent %d events, want draw and clear", len(sent))
	}
	if sent[0].Type != annotation.TypeDraw || sent[0].TrackSid != "deviceB-stream" {
		t.Fatalf("first event = %+v", sent[0])
	}
	if sent[1].Type != annotation.TypeClear || sent[1].TrackSid != "screen-stream" {
		t.Fatalf("clear event = %+v", sent[1])
	}
	paper := h.surfaces.get("deviceB-stream")
	if paper.Clears() != 0 || len(paper.Segments()) != 1 {
		t.Fatalf("paper surface touched by screen clear: clears=%d segments=%d", paper.Clears(), len(paper.Segments()))
	}

	h.deliver(Event{Kind: EventTrackUnpublished, Track: screen})
	if ch.Target() != "deviceB-stream" {
		t.Fatalf("target after screen share = %q, want paper", ch.Target())
	}
}

func TestLearnerRendersTutorStrokeScaled(t *testing.T) {
	h := startRoom(t, identity.RoleLearner, 640, 360)
	h.deliver(published(faceCam))
	h.deliver(published(paperCam))

	payload, err := annotation.Encode(annotation.Draw("deviceB-stream", canvas.Point{X: 0.1, Y: 0.1}, canvas.Point{X: 0.5, Y: 0.5}, "#EF4444", 3))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	h.deliver(Event{Kind: EventData, Data: payload})
	h.deliver(Event{Kind: EventData, Data: []byte(`{"type":"draw"`)})

	segs := h.surfaces.get("deviceB-stream").Segments()
	if len(segs) != 1 {
		t.Fatalf("segments = %d, want 1", len(segs))
	}
	if segs[0].X0 != 64 || segs[0].Y0 != 36 || segs[0].X1 != 320 || segs[0].Y1 != 180 {
		t.Fatalf("segment = %+v, want (64,36)->(320,180)", segs[0])
	}

	h.ctrl.Annotations().ClearSurface()
	if len(h.conn.sentEvents(t)) != 0 {
		t.Fatalf("learner sent annotation events")
	}
}

func TestControllerDisconnectIsTransient(t *testing.T) {
	h := startRoom(t, identity.RoleLearner, 640, 360)
	h.conn.events <- Event{Kind: EventDisconnected, Err: errors.New("ice failed for 10.0.0.1")}

	select {
	case err := <-h.done:
		if err == nil {
			t.Fatalf("Run() error = nil, want disconnect")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run() did not return")
	}
	state := h.ctrl.State()
	if state.Status != StatusFailed || state.Error != ErrorTransient || state.Message != "connection error" {
		t.Fatalf("state = %+v", state)
	}
}

func TestControllerTokenFailureIsFatal(t *testing.T) {
	ctrl := NewController(Options{
		RoomName:  "room-1",
		Role:      identity.RoleTutor,
		Tokens:    &fakeTokens{err: errors.New("status 403 forbidden")},
		Connector: &fakeConnector{conn: newFakeConn()},
	})
	if err := ctrl.Run(context.Background()); err == nil {
		t.Fatalf("Run() error = nil, want token failure")
	}
	state := ctrl.State()
	if state.Error != ErrorFatal || !strings.HasPrefix(state.Message, "connection error: ") {
		t.Fatalf("state = %+v, want fatal with tutor detail", state)
	}
}

func TestControllerCancelDiscardsToken(t *testing.T) {
	tokens := &fakeTokens{err: errors.New("late failure"), block: make(chan struct{})}
	ctrl := NewController(Options{RoomName: "room-1", Role: identity.RoleLearner, Tokens: tokens, Connector: &fakeConnector{}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if state := ctrl.State(); state.Status == StatusFailed {
		t.Fatalf("state = %+v, want failure discarded", state)
	}
}

func TestHTTPTokenSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/media/token" || r.Header.Get("Authorization") != "Bearer user-jwt" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["room_name"] != "room-1" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"access denied","code":"forbidden"}`))
			return
		}
		_, _ = w.Write([]byte(`{"token":"media-jwt","url":"wss://media.example.com","can_draw":true}`))
	}))
	defer srv.Close()

	src := HTTPTokenSource{BaseURL: srv.URL, AuthToken: "user-jwt", Client: srv.Client()}
	creds, err := src.Token(context.Background(), "room-1")
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if creds.Token != "media-jwt" || creds.URL != "wss://media.example.com" || !creds.CanDraw {
		t.Fatalf("Token() = %+v", creds)
	}
	if _, err := src.Token(context.Background(), "room-2"); err == nil {
		t.Fatalf("Token() for foreign room error = nil")
	}
}
