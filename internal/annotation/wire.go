package annotation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tutorlink/tutorlink/internal/canvas"
)

// EventType is the wire discriminant.
type EventType string

const (
	TypeDraw  EventType = "draw"
	TypeClear EventType = "clear"
)

var (
	ErrUnknownEvent = errors.New("unknown annotation event")
	ErrMalformed    = errors.New("malformed annotation event")
)

// Event is one annotation message. Clear events only carry Type and TrackSid.
type Event struct {
	Type      EventType
	TrackSid  string
	From      canvas.Point
	To        canvas.Point
	Color     string
	LineWidth float64
}

// Draw builds a draw event for a segment on the given surface.
func Draw(trackSid string, from, to canvas.Point, color string, width float64) Event {
	return Event{Type: TypeDraw, TrackSid: trackSid, From: from, To: to, Color: color, LineWidth: width}
}

// Clear builds a clear event for the given surface.
func Clear(trackSid string) Event {
	return Event{Type: TypeClear, TrackSid: trackSid}
}

type drawWire struct {
	Type      EventType `json:"type"`
	TrackSid  string    `json:"trackSid"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	PrevX     float64   `json:"prevX"`
	PrevY     float64   `json:"prevY"`
	Color     string    `json:"color"`
	LineWidth float64   `json:"lineWidth"`
}

type clearWire struct {
	Type     EventType `json:"type"`
	TrackSid string    `json:"trackSid"`
}

// Pointer fields let Decode tell a missing coordinate from a zero one.
type inboundWire struct {
	Type      EventType `json:"type"`
	TrackSid  string    `json:"trackSid"`
	X         *float64  `json:"x"`
	Y         *float64  `json:"y"`
	PrevX     *float64  `json:"prevX"`
	PrevY     *float64  `json:"prevY"`
	Color     string    `json:"color"`
	LineWidth *float64  `json:"lineWidth"`
}

// Encode renders e as compact JSON.
func Encode(e Event) ([]byte, error) {
	switch e.Type {
	case TypeDraw:
		return json.Marshal(drawWire{
			Type:      TypeDraw,
			TrackSid:  e.TrackSid,
			X:         e.To.X,
			Y:         e.To.Y,
			PrevX:     e.From.X,
			PrevY:     e.From.Y,
			Color:     e.Color,
			LineWidth: e.LineWidth,
		})
	case TypeClear:
		return json.Marshal(clearWire{Type: TypeClear, TrackSid: e.TrackSid})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, e.Type)
	}
}

// Decode parses a payload received from the data channel.
func Decode(raw []byte) (Event, error) {
	var in inboundWire
	if err := json.Unmarshal(raw, &in); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(in.TrackSid) == "" {
		return Event{}, fmt.Errorf("%w: missing trackSid", ErrMalformed)
	}

	switch in.Type {
	case TypeClear:
		return Clear(in.TrackSid), nil
	case TypeDraw:
		if in.X == nil || in.Y == nil || in.PrevX == nil || in.PrevY == nil {
			return Event{}, fmt.Errorf("%w: draw without coordinates", ErrMalformed)
		}
		width := 1.0
		if in.LineWidth != nil {
			width = *in.LineWidth
		}
		if width <= 0 {
			return Event{}, fmt.Errorf("%w: lineWidth %v", ErrMalformed, width)
		}
		return Draw(
			in.TrackSid,
			canvas.Point{X: *in.PrevX, Y: *in.PrevY},
			canvas.Point{X: *in.X, Y: *in.Y},
			in.Color,
			width,
		), nil
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, in.Type)
	}
}
