// Package canvas maps pointer input onto a resolution independent drawing
// space. Every coordinate that leaves a client is a fraction of the rendered
// surface, so strokes line up no matter how large the video is shown or what
// resolution the publisher's camera runs at.
package canvas

// Nominal size of the logical drawing canvas.
const (
	LogicalWidth  = 1920
	LogicalHeight = 1080
)

// Point is a position in relative space. Values normally fall in [0,1] but
// drags past the element edge produce values outside that range; they are
// kept as is and clipped by the renderer.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Bounds is the on-screen rectangle of the drawing surface, in the same
// coordinate system as the pointer event.
type Bounds struct {
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

// Touch is one active touch contact.
type Touch struct {
	ClientX float64
	ClientY float64
}

// PointerEvent carries either a mouse/pen position or a list of touches.
// When touches are present the first one wins.
type PointerEvent struct {
	ClientX float64
	ClientY float64
	Touches []Touch
}

func (e PointerEvent) position() (float64, float64) {
	if len(e.Touches) > 0 {
		return e.Touches[0].ClientX, e.Touches[0].ClientY
	}
	return e.ClientX, e.ClientY
}

// ToRelative converts a pointer event to relative coordinates. A surface with
// no area yields the origin.
func ToRelative(e PointerEvent, b Bounds) Point {
	if b.Width == 0 || b.Height == 0 {
		return Point{}
	}
	x, y := e.position()
	return Point{
		X: (x - b.Left) / b.Width,
		Y: (y - b.Top) / b.Height,
	}
}

// ToAbsolute scales a relative point to a surface of the given pixel size.
func ToAbsolute(p Point, width, height float64) (float64, float64) {
	return p.X * width, p.Y * height
}

// Logical scales p onto the nominal logical canvas.
func (p Point) Logical() (float64, float64) {
	return ToAbsolute(p, LogicalWidth, LogicalHeight)
}

// InBounds reports whether p lies on the surface.
func (p Point) InBounds() bool {
	return p.X >= 0 && p.X <= 1 && p.Y >= 0 && p.Y <= 1
}
