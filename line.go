package lumen

import (
	"fmt"
	"math"
)

// Line is the per-frame snapshot of a line renderer.
type Line struct {
	Points    []Vec2
	Width     float64
	Color     Color
	Closed    bool
	Transform [6]float64
}

// LineRenderData is implemented by components drawn by LineRenderable.
type LineRenderData interface {
	RenderData
	LineData() Line
}

// LineRendererComponent draws a polyline in the entity's local space. Each
// segment is drawn as its own quad of the given width.
type LineRendererComponent struct {
	ComponentBase

	Points []Vec2
	Width  float64
	Color  Color
	// Closed adds a segment from the last point back to the first.
	Closed bool

	layer int
}

// NewLineRenderer creates a white line of width 1 through points.
func NewLineRenderer(points ...Vec2) *LineRendererComponent {
	return &LineRendererComponent{Points: points, Width: 1, Color: ColorWhite}
}

// Attach registers the line with the RenderSystem.
func (l *LineRendererComponent) Attach(w *World) error {
	if rs, ok := GetSystem[*RenderSystem](w); ok {
		rs.RegisterLine(l)
	}
	return nil
}

// Detach unregisters the line.
func (l *LineRendererComponent) Detach(w *World) {
	if rs, ok := GetSystem[*RenderSystem](w); ok {
		rs.Unregister(l)
	}
}

// Clone returns a detached copy with its own point slice.
func (l *LineRendererComponent) Clone() Component {
	c := *l
	c.ComponentBase = l.cloneBase()
	c.Points = append([]Vec2(nil), l.Points...)
	return &c
}

// Layer returns the render layer index.
func (l *LineRendererComponent) Layer() int { return l.layer }

// SetLayer moves the line to another render layer.
func (l *LineRendererComponent) SetLayer(layer int) {
	if l.layer == layer {
		return
	}
	old := l.layer
	l.layer = layer
	relayerRenderData(l, old)
}

func (l *LineRendererComponent) renderLayer() int { return l.layer }

// SetQuadBezier replaces the points with segments+1 samples of the quadratic
// Bézier from a through control c to b.
func (l *LineRendererComponent) SetQuadBezier(a, c, b Vec2, segments int) {
	if segments <= 0 {
		segments = 20
	}
	l.Points = l.Points[:0]
	for i := 0; i <= segments; i++ {
		t := float64(i) / float64(segments)
		u := 1 - t
		l.Points = append(l.Points, Vec2{
			X: u*u*a.X + 2*u*t*c.X + t*t*b.X,
			Y: u*u*a.Y + 2*u*t*c.Y + t*t*b.Y,
		})
	}
}

// LineData implements LineRenderData. Points are shared, not copied.
func (l *LineRendererComponent) LineData() Line {
	return Line{
		Points:    l.Points,
		Width:     l.Width,
		Color:     l.Color,
		Closed:    l.Closed,
		Transform: EntityWorldMatrix(l.Entity()),
	}
}

// Segments returns the number of segments drawn.
func (l *LineRendererComponent) Segments() int {
	n := len(l.Points)
	if n < 2 {
		return 0
	}
	if l.Closed && n > 2 {
		return n
	}
	return n - 1
}

// LineRenderable expands each segment to a quad and batches them untextured.
type LineRenderable struct {
	ctx    RenderContext
	active bool
	view   [6]float64
	batch  quadBatch
	quad   [4]Vertex
}

// NewLineRenderable creates the line strategy.
func NewLineRenderable() *LineRenderable { return &LineRenderable{} }

// Begin captures the context for one pass.
func (r *LineRenderable) Begin(ctx RenderContext) error {
	if r.active {
		return fmt.Errorf("lumen: LineRenderable.Begin without End")
	}
	r.active = true
	r.ctx = ctx
	r.view = ctx.viewMatrix()
	r.batch.begin(ctx.API, ctx.Stats)
	return nil
}

// Draw appends one quad per segment.
func (r *LineRenderable) Draw(d RenderData) error {
	ld, ok := d.(LineRenderData)
	if !ok {
		return fmt.Errorf("lumen: %T is not line render data", d)
	}
	line := ld.LineData()
	n := len(line.Points)
	if n < 2 || line.Width <= 0 {
		return nil
	}
	m := multiplyAffine(r.view, line.Transform)
	segs := n - 1
	if line.Closed && n > 2 {
		segs = n
	}
	for i := 0; i < segs; i++ {
		a := line.Points[i]
		b := line.Points[(i+1)%n]
		ax, ay := transformPoint(m, a.X, a.Y)
		bx, by := transformPoint(m, b.X, b.Y)
		segmentQuad(&r.quad, Vec2{X: ax, Y: ay}, Vec2{X: bx, Y: by}, line.Width*lineScale(m), line.Color)
		if err := r.batch.push(Handle{}, BlendNormal, &r.quad); err != nil {
			return err
		}
	}
	return nil
}

// End flushes the batch.
func (r *LineRenderable) End() error {
	err := r.batch.end()
	r.ctx = RenderContext{}
	r.active = false
	return err
}

// Release destroys the cached geometry. Must run on the render thread.
func (r *LineRenderable) Release() { r.batch.release() }

// lineScale approximates the uniform scale of m, for line widths.
func lineScale(m [6]float64) float64 {
	det := math.Abs(m[0]*m[3] - m[1]*m[2])
	return math.Sqrt(det)
}

// segmentQuad fills v with a quad of the given width centered on a-b.
// Vertices are TL, TR, BL, BR in push order.
func segmentQuad(v *[4]Vertex, a, b Vec2, width float64, c Color) {
	nx, ny := perpendicular(a, b)
	hw := width / 2
	nx *= hw
	ny *= hw
	cr, cg, cb, ca := c.premultiplied()
	pts := [4]Vec2{
		{X: a.X + nx, Y: a.Y + ny},
		{X: b.X + nx, Y: b.Y + ny},
		{X: a.X - nx, Y: a.Y - ny},
		{X: b.X - nx, Y: b.Y - ny},
	}
	for i, p := range pts {
		v[i] = Vertex{
			DstX: float32(p.X), DstY: float32(p.Y),
			ColorR: cr, ColorG: cg, ColorB: cb, ColorA: ca,
		}
	}
}

// perpendicular returns the unit left-perpendicular of the segment from a to b.
func perpendicular(a, b Vec2) (float64, float64) {
	dx := b.X - a.X
	dy := b.Y - a.Y
	ln := math.Sqrt(dx*dx + dy*dy)
	if ln < 1e-10 {
		return 0, -1
	}
	return -dy / ln, dx / ln
}

func (l *LineRendererComponent) tintColor() *Color { return &l.Color }
