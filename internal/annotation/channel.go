// Package annotation implements the peer to peer drawing protocol: local
// gestures become draw/clear events on a best-effort data channel and
// inbound events are replayed on the surface currently shown.
package annotation

import (
	"sync"

	"github.com/tutorlink/tutorlink/internal/canvas"
	"github.com/tutorlink/tutorlink/internal/logging"
)

// Transport is the outbound half of the peer data channel. Sends are fire
// and forget; a returned error only means this one event was dropped.
type Transport interface {
	Send(payload []byte) error
}

// Surface renders segments given in relative coordinates.
type Surface interface {
	DrawLine(from, to canvas.Point, color string, width float64)
	Clear()
}

// Channel holds one participant's drawing state for the active surface.
type Channel struct {
	mu        sync.Mutex
	transport Transport
	surface   Surface
	target    string
	canDraw   bool
	drawing   bool
	last      canvas.Point
	log       *logging.Logger
}

// NewChannel creates a channel. Only participants with canDraw may start
// strokes or clear surfaces.
func NewChannel(transport Transport, canDraw bool, log *logging.Logger) *Channel {
	if log == nil {
		log = logging.Nop()
	}
	return &Channel{
		transport: transport,
		canDraw:   canDraw,
		log:       log.Component("annotation"),
	}
}

// Retarget switches to another surface. An in-progress stroke is finalized
// and nothing drawn on the previous surface is carried over.
func (c *Channel) Retarget(trackSid string, surface Surface) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drawing = false
	c.target = trackSid
	c.surface = surface
}

// SetCanDraw grants or revokes drawing. Revoking ends any stroke in progress.
func (c *Channel) SetCanDraw(canDraw bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.canDraw = canDraw
	if !canDraw {
		c.drawing = false
	}
}

// Target returns the identifier of the active surface, empty when none.
func (c *Channel) Target() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

// Drawing reports whether a stroke is in progress.
func (c *Channel) Drawing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drawing
}

func (c *Channel) BeginStroke(p canvas.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.canDraw || c.target == "" {
		return
	}
	c.drawing = true
	c.last = p
}

// ContinueStroke extends the current stroke to p. The segment is drawn
// locally right away and sent to the peer.
func (c *Channel) ContinueStroke(p canvas.Point, color string, width float64) {
	c.mu.Lock()
	if !c.drawing {
		c.mu.Unlock()
		return
	}
	ev := Draw(c.target, c.last, p, color, width)
	c.last = p
	if c.surface != nil {
		c.surface.DrawLine(ev.From, ev.To, color, width)
	}
	c.mu.Unlock()

	c.send(ev)
}

func (c *Channel) EndStroke() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drawing = false
}

// ClearSurface erases the active surface here and on the peer.
func (c *Channel) ClearSurface() {
	c.mu.Lock()
	if !c.canDraw || c.target == "" {
		c.mu.Unlock()
		return
	}
	ev := Clear(c.target)
	if c.surface != nil {
		c.surface.Clear()
	}
	c.mu.Unlock()

	c.send(ev)
}

// OnRemoteEvent applies a payload received from the peer. Bad payloads and
// events for other surfaces are dropped.
func (c *Channel) OnRemoteEvent(raw []byte) {
	ev, err := Decode(raw)
	if err != nil {
		c.log.Warn().Err(err).Int("bytes", len(raw)).Msg("dropping annotation payload")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ev.TrackSid != c.target || c.surface == nil {
		return
	}
	switch ev.Type {
	case TypeDraw:
		c.surface.DrawLine(ev.From, ev.To, ev.Color, ev.LineWidth)
	case TypeClear:
		c.surface.Clear()
	}
}

func (c *Channel) send(ev Event) {
	if c.transport == nil {
		return
	}
	payload, err := Encode(ev)
	if err != nil {
		c.log.Error().Err(err).Msg("encode annotation")
		return
	}
	if err := c.transport.Send(payload); err != nil {
		c.log.Debug().Err(err).Str("type", string(ev.Type)).Msg("annotation send dropped")
	}
}
