package annotation

import (
	"sync"

	"github.com/tutorlink/tutorlink/internal/canvas"
)

// Segment is a drawn line in absolute pixels of the surface that recorded it.
type Segment struct {
	X0, Y0, X1, Y1 float64
	Color          string
	Width          float64
}

// RecordingSurface keeps the segments drawn on it instead of rasterizing
// them. Clients that render with their own toolkit read the segments back.
type RecordingSurface struct {
	mu       sync.Mutex
	width    float64
	height   float64
	segments []Segment
	clears   int
}

func NewRecordingSurface(width, height float64) *RecordingSurface {
	return &RecordingSurface{width: width, height: height}
}

func (s *RecordingSurface) DrawLine(from, to canvas.Point, color string, width float64) {
	x0, y0 := canvas.ToAbsolute(from, s.width, s.height)
	x1, y1 := canvas.ToAbsolute(to, s.width, s.height)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = append(s.segments, Segment{X0: x0, Y0: y0, X1: x1, Y1: y1, Color: color, Width: width})
}

func (s *RecordingSurface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = nil
	s.clears++
}

// Segments returns a copy of what is currently drawn.
func (s *RecordingSurface) Segments() []Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Segment, len(s.segments))
	copy(out, s.segments)
	return out
}

// Clears counts how many times the surface was erased.
func (s *RecordingSurface) Clears() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clears
}
