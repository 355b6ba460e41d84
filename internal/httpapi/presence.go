package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tutorlink/tutorlink/internal/auth"
	"github.com/tutorlink/tutorlink/internal/identity"
	"github.com/tutorlink/tutorlink/internal/presence"
	"github.com/tutorlink/tutorlink/internal/protocol"
)

const (
	pushPingInterval = 30 * time.Second
	pushReadTimeout  = 75 * time.Second
	pushWriteTimeout = 10 * time.Second
)

var (
	errPushClosed  = errors.New("push connection closed")
	errPushBacklog = errors.New("push queue full")
)

func (s *Server) requireTutor(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := principal(w, r)
	if !ok {
		return p, false
	}
	if p.Role != identity.RoleTutor {
		respondError(w, http.StatusForbidden, "forbidden", "only tutors can check room status")
		return p, false
	}
	return p, true
}

func (s *Server) handleRoomStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireTutor(w, r)
	if !ok {
		return
	}
	list, err := s.deps.Sessions.ListForTutor(r.Context(), p.ID)
	if err != nil {
		s.log.Error().Err(err).Msg("room status: list sessions failed")
		respondError(w, http.StatusInternalServerError, "status_failed", "failed to check room status")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"rooms": s.deps.Poller.RoomStatus(r.Context(), list)})
}

// handlePresence returns the server's reconciled view of the tutor's rooms.
func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireTutor(w, r)
	if !ok {
		return
	}
	list, err := s.deps.Sessions.ListForTutor(r.Context(), p.ID)
	if err != nil {
		s.log.Error().Err(err).Msg("presence: list sessions failed")
		respondError(w, http.StatusInternalServerError, "presence_failed", "failed to read presence")
		return
	}
	out := make([]presence.Record, 0, len(list))
	for _, sess := range list {
		out = append(out, s.deps.Reconciler.Get(sess.RoomName))
	}
	respondJSON(w, http.StatusOK, map[string]any{"presence": out})
}

func (s *Server) handlePresenceWS(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireTutor(w, r)
	if !ok {
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	pusher := newWSPusher()
	if prev := s.deps.Registry.Register(p.ID, pusher); prev != nil {
		if old, ok := prev.(*wsPusher); ok {
			old.close()
		}
	}
	s.deps.Metrics.SetPushConnections(s.deps.Registry.Count())
	s.deps.Metrics.ObserveSessionEvent("push_connected")
	log := s.log.Extend(s.log.With().Int64("tutor", p.ID).Str("connection", pusher.ID()))
	log.Debug().Msg("push channel open")

	_ = pusher.Push(protocol.Hello{Type: protocol.TypeHello, TutorID: p.ID, ConnectionID: pusher.ID()})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ping := time.NewTicker(pushPingInterval)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-pusher.closed:
				// Replaced by a newer connection of the same tutor.
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "replaced"),
					time.Now().Add(pushWriteTimeout))
				_ = conn.Close()
				return
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pushWriteTimeout)); err != nil {
					cancel()
					return
				}
			case msg := <-pusher.send:
				_ = conn.SetWriteDeadline(time.Now().Add(pushWriteTimeout))
				if err := conn.WriteJSON(msg); err != nil {
					s.deps.Metrics.ObservePush(messageTypeOf(msg), "write_error")
					cancel()
					return
				}
			}
		}
	}()

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pushReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pushReadTimeout))
		return nil
	})
	// Tutors only listen; reads keep the deadline and close detection going.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	cancel()
	<-writerDone
	s.deps.Registry.Unregister(p.ID, pusher)
	pusher.close()
	s.deps.Metrics.SetPushConnections(s.deps.Registry.Count())
	s.deps.Metrics.ObserveSessionEvent("push_disconnected")
	log.Debug().Msg("push channel closed")
}

// wsPusher queues messages for the connection's writer goroutine so that
// websocket writes stay single-threaded.
type wsPusher struct {
	id     string
	send   chan any
	closed chan struct{}
	once   sync.Once
}

func newWSPusher() *wsPusher {
	return &wsPusher{id: uuid.NewString(), send: make(chan any, 32), closed: make(chan struct{})}
}

func (p *wsPusher) ID() string { return p.id }

func (p *wsPusher) Push(msg any) error {
	select {
	case <-p.closed:
		return errPushClosed
	default:
	}
	select {
	case p.send <- msg:
		return nil
	default:
		return errPushBacklog
	}
}

func (p *wsPusher) close() { p.once.Do(func() { close(p.closed) }) }

func messageTypeOf(v any) string {
	switch m := v.(type) {
	case protocol.Hello:
		return string(m.Type)
	case protocol.StudentOnline:
		return string(m.Type)
	case protocol.ErrorEvent:
		return string(m.Type)
	default:
		return "unknown"
	}
}
