// Package room is the per-participant composition root of a live session:
// it fetches media credentials, joins the room, keeps the track layout
// current and points the annotation channel at the main surface.
package room

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tutorlink/tutorlink/internal/annotation"
	"github.com/tutorlink/tutorlink/internal/identity"
	"github.com/tutorlink/tutorlink/internal/logging"
	"github.com/tutorlink/tutorlink/internal/policy"
	"github.com/tutorlink/tutorlink/internal/tracks"
)

type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusFailed     Status = "failed"
)

// ErrorKind tells the UI whether a failure can be retried.
type ErrorKind string

const (
	ErrorNone ErrorKind = ""
	// ErrorTransient offers a reconnect.
	ErrorTransient ErrorKind = "transient"
	// ErrorFatal blocks the room and leads back to the dashboard.
	ErrorFatal ErrorKind = "fatal"
)

const connectionErrorMessage = "connection error"

var errNotConnected = errors.New("media connection not established")

// ViewState is what the room UI renders.
type ViewState struct {
	Status  Status           `json:"status"`
	Error   ErrorKind        `json:"error,omitempty"`
	Message string           `json:"message,omitempty"`
	View    tracks.ViewModel `json:"view"`
}

// SurfaceFactory returns the drawing surface laid over a stream.
type SurfaceFactory func(streamID string) annotation.Surface

type Options struct {
	RoomName  string
	Role      identity.Role
	Tokens    TokenSource
	Connector MediaConnector
	Surfaces  SurfaceFactory
	Log       *logging.Logger
}

type Controller struct {
	opts   Options
	viewer tracks.Role
	log    *logging.Logger

	link        *linkTransport
	annotations *annotation.Channel

	mu        sync.Mutex
	published map[string]tracks.Track
	state     ViewState
	listeners []func(ViewState)
}

func NewController(opts Options) *Controller {
	log := opts.Log
	if log == nil {
		log = logging.Nop()
	}
	log = log.Extend(log.With().Str("room", opts.RoomName))

	viewer := tracks.RoleLearner
	if opts.Role == identity.RoleTutor {
		viewer = tracks.RoleTutor
	}
	link := &linkTransport{}
	c := &Controller{
		opts:        opts,
		viewer:      viewer,
		log:         log.Component("room"),
		link:        link,
		annotations: annotation.NewChannel(link, false, log),
		published:   make(map[string]tracks.Track),
	}
	c.state = ViewState{Status: StatusIdle, View: tracks.Resolve(nil, viewer)}
	return c
}

// Annotations is the channel bound to the current main surface.
func (c *Controller) Annotations() *annotation.Channel { return c.annotations }

func (c *Controller) State() ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnChange registers fn to receive every new ViewState.
func (c *Controller) OnChange(fn func(ViewState)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Run joins the room and processes media events until ctx is done or the
// connection drops. Work finished after ctx is cancelled is discarded.
func (c *Controller) Run(ctx context.Context) error {
	c.update(func(s *ViewState) {
		s.Status = StatusConnecting
		s.Error = ErrorNone
		s.Message = ""
	})

	creds, err := c.opts.Tokens.Token(ctx, c.opts.RoomName)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		c.fail(ErrorFatal, err)
		return fmt.Errorf("acquire media token: %w", err)
	}
	c.annotations.SetCanDraw(creds.CanDraw)

	conn, err := c.opts.Connector.Connect(ctx, creds)
	if ctx.Err() != nil {
		if conn != nil {
			_ = conn.Close()
		}
		return ctx.Err()
	}
	if err != nil {
		c.fail(ErrorTransient, err)
		return fmt.Errorf("connect media: %w", err)
	}
	defer conn.Close()
	c.link.set(conn)
	defer c.link.set(nil)

	c.update(func(s *ViewState) { s.Status = StatusConnected })
	c.log.Info().Msg("joined room")

	events := conn.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				ev = Event{Kind: EventDisconnected}
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := c.handle(ev); err != nil {
				return err
			}
		}
	}
}

func (c *Controller) handle(ev Event) error {
	switch ev.Kind {
	case EventTrackPublished:
		c.mu.Lock()
		c.published[ev.Track.StreamID] = ev.Track
		c.mu.Unlock()
		c.relayout()
	case EventTrackUnpublished:
		c.mu.Lock()
		delete(c.published, ev.Track.StreamID)
		c.mu.Unlock()
		c.relayout()
	case EventData:
		c.annotations.OnRemoteEvent(ev.Data)
	case EventDisconnected:
		err := ev.Err
		if err == nil {
			err = errors.New("media connection closed")
		}
		c.fail(ErrorTransient, err)
		return fmt.Errorf("media disconnected: %w", err)
	}
	return nil
}

// relayout recomputes the layout and follows the main slot with the
// annotation channel.
func (c *Controller) relayout() {
	c.mu.Lock()
	list := make([]tracks.Track, 0, len(c.published))
	for _, t := range c.published {
		list = append(list, t)
	}
	c.mu.Unlock()

	vm := tracks.Resolve(list, c.viewer)
	if main := vm.MainSurface(); main != c.annotations.Target() {
		var surface annotation.Surface
		if main != "" && c.opts.Surfaces != nil {
			surface = c.opts.Surfaces(main)
		}
		c.annotations.Retarget(main, surface)
		c.log.Debug().Str("surface", main).Msg("annotation target changed")
	}
	c.update(func(s *ViewState) { s.View = vm })
}

func (c *Controller) fail(kind ErrorKind, err error) {
	c.log.Warn().Err(err).Str("kind", string(kind)).Msg("room failure")
	c.update(func(s *ViewState) {
		s.Status = StatusFailed
		s.Error = kind
		s.Message = policy.UserMessage(c.opts.Role, connectionErrorMessage, err)
	})
}

func (c *Controller) update(fn func(*ViewState)) {
	c.mu.Lock()
	fn(&c.state)
	state := c.state
	listeners := append([]func(ViewState){}, c.listeners...)
	c.mu.Unlock()
	for _, l := range listeners {
		l(state)
	}
}

// linkTransport forwards annotation payloads to whichever connection is live.
type linkTransport struct {
	mu   sync.RWMutex
	conn MediaConnection
}

func (l *linkTransport) set(conn MediaConnection) {
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
}

func (l *linkTransport) Send(payload []byte) error {
	l.mu.RLock()
	conn := l.conn
	l.mu.RUnlock()
	if conn == nil {
		return errNotConnected
	}
	return conn.Send(payload)
}
