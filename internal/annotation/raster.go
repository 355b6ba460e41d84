package annotation

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/image/vector"

	"github.com/tutorlink/tutorlink/internal/canvas"
)

// EraseColor is the stroke colour used by the eraser tool. It removes
// annotation pixels instead of painting over them.
const EraseColor = "erase"

var defaultStroke = color.RGBA{R: 0xEF, G: 0x44, B: 0x44, A: 0xFF}

var namedColors = map[string]color.RGBA{
	"black": {A: 0xFF},
	"white": {R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF},
	"red":   defaultStroke,
	"blue":  {R: 0x3B, G: 0x82, B: 0xF6, A: 0xFF},
	"green": {R: 0x10, G: 0xB9, B: 0x81, A: 0xFF},
}

// RasterSurface is a transparent RGBA overlay sized to the actual pixel size
// of the rendered video. Stroke widths are given in logical canvas pixels
// and scaled with the overlay.
type RasterSurface struct {
	mu  sync.Mutex
	img *image.RGBA
	z   *vector.Rasterizer
}

func NewRasterSurface(width, height int) *RasterSurface {
	return &RasterSurface{
		img: image.NewRGBA(image.Rect(0, 0, width, height)),
		z:   vector.NewRasterizer(width, height),
	}
}

// Image returns a snapshot of the overlay.
func (s *RasterSurface) Image() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := image.NewRGBA(s.img.Rect)
	copy(out.Pix, s.img.Pix)
	return out
}

func (s *RasterSurface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.img.Pix)
}

func (s *RasterSurface) DrawLine(from, to canvas.Point, stroke string, width float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, h := float64(s.img.Rect.Dx()), float64(s.img.Rect.Dy())
	x0, y0 := canvas.ToAbsolute(from, w, h)
	x1, y1 := canvas.ToAbsolute(to, w, h)
	half := math.Max(width*w/canvas.LogicalWidth, 1) / 2

	var src image.Image
	op := draw.Over
	if stroke == EraseColor {
		src = image.Transparent
		op = draw.Src
	} else {
		src = image.NewUniform(parseColor(stroke))
	}

	dx, dy := x1-x0, y1-y0
	if l := math.Hypot(dx, dy); l > 0 {
		nx, ny := -dy/l*half, dx/l*half
		s.fill(op, src, [][2]float64{
			{x0 + nx, y0 + ny},
			{x1 + nx, y1 + ny},
			{x1 - nx, y1 - ny},
			{x0 - nx, y0 - ny},
		})
	}
	// Round caps keep consecutive segments of one stroke joined.
	s.fill(op, src, disc(x0, y0, half))
	s.fill(op, src, disc(x1, y1, half))
}

func (s *RasterSurface) fill(op draw.Op, src image.Image, poly [][2]float64) {
	w, h := s.img.Rect.Dx(), s.img.Rect.Dy()
	poly = clipPolygon(poly, float64(w), float64(h))
	if len(poly) < 3 {
		return
	}
	s.z.Reset(w, h)
	s.z.DrawOp = op
	for i, p := range poly {
		x, y := float32(p[0]), float32(p[1])
		if i == 0 {
			s.z.MoveTo(x, y)
			continue
		}
		s.z.LineTo(x, y)
	}
	s.z.ClosePath()
	s.z.Draw(s.img, s.img.Rect, src, image.Point{})
}

func disc(cx, cy, r float64) [][2]float64 {
	const n = 16
	out := make([][2]float64, n)
	for i := range out {
		a := 2 * math.Pi * float64(i) / n
		out[i] = [2]float64{cx + r*math.Cos(a), cy + r*math.Sin(a)}
	}
	return out
}

// clipPolygon cuts a convex polygon down to the [0,w]x[0,h] rectangle, one
// edge at a time. Vertices outside are cut off, never moved inward.
func clipPolygon(poly [][2]float64, w, h float64) [][2]float64 {
	edges := []struct {
		inside func(p [2]float64) bool
		cross  func(a, b [2]float64) [2]float64
	}{
		{func(p [2]float64) bool { return p[0] >= 0 }, func(a, b [2]float64) [2]float64 { return atX(a, b, 0) }},
		{func(p [2]float64) bool { return p[0] <= w }, func(a, b [2]float64) [2]float64 { return atX(a, b, w) }},
		{func(p [2]float64) bool { return p[1] >= 0 }, func(a, b [2]float64) [2]float64 { return atY(a, b, 0) }},
		{func(p [2]float64) bool { return p[1] <= h }, func(a, b [2]float64) [2]float64 { return atY(a, b, h) }},
	}
	for _, e := range edges {
		if len(poly) == 0 {
			return nil
		}
		in := poly
		poly = make([][2]float64, 0, len(in)+2)
		prev := in[len(in)-1]
		for _, cur := range in {
			switch {
			case e.inside(cur) && e.inside(prev):
				poly = append(poly, cur)
			case e.inside(cur):
				poly = append(poly, e.cross(prev, cur), cur)
			case e.inside(prev):
				poly = append(poly, e.cross(prev, cur))
			}
			prev = cur
		}
	}
	return poly
}

func atX(a, b [2]float64, x float64) [2]float64 {
	t := (x - a[0]) / (b[0] - a[0])
	return [2]float64{x, a[1] + t*(b[1]-a[1])}
}

func atY(a, b [2]float64, y float64) [2]float64 {
	t := (y - a[1]) / (b[1] - a[1])
	return [2]float64{a[0] + t*(b[0]-a[0]), y}
}

// parseColor accepts #rgb, #rrggbb, #rrggbbaa and a few names. Anything else
// falls back to the default pen colour.
func parseColor(s string) color.RGBA {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[s]; ok {
		return c
	}
	hex, ok := strings.CutPrefix(s, "#")
	if !ok {
		return defaultStroke
	}
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return defaultStroke
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return defaultStroke
	}
	// color.RGBA is alpha-premultiplied.
	a := uint32(v & 0xFF)
	return color.RGBA{
		R: uint8(uint32(v>>24&0xFF) * a / 0xFF),
		G: uint8(uint32(v>>16&0xFF) * a / 0xFF),
		B: uint8(uint32(v>>8&0xFF) * a / 0xFF),
		A: uint8(a),
	}
}
