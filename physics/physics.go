// Package physics backs lumen colliders with a chipmunk2d space. Colliders
// become static shapes positioned from their entity's world transform, which
// makes the space usable for picking and overlap queries.
package physics

import (
	"math"

	"github.com/jakecoffman/cp"
	"go.uber.org/zap"

	"github.com/phanxgames/lumen"
)

// Config tunes the space.
type Config struct {
	Iterations int
	Gravity    lumen.Vec2
}

// DefaultConfig returns the settings Install uses for a zero Config.
func DefaultConfig() Config {
	return Config{Iterations: 10}
}

// Install returns an installer that registers a System built from cfg.
func Install(cfg Config) lumen.SystemInstaller {
	return func(w *lumen.World) error {
		_, err := lumen.RegisterSystem(w, NewSystem(cfg))
		return err
	}
}

type entry struct {
	collider lumen.Collider
	shape    *cp.Shape
	matrix   [6]float64
	dirty    bool

	shapeSub   lumen.Subscription
	enabledSub lumen.Subscription
}

// System implements lumen.ColliderSystem.
type System struct {
	space  *cp.Space
	logger *zap.Logger

	entries map[lumen.Collider]*entry
	order   []*entry
	shapes  map[*cp.Shape]*entry
}

// NewSystem creates an unregistered System.
func NewSystem(cfg Config) *System {
	if cfg.Iterations <= 0 {
		cfg.Iterations = DefaultConfig().Iterations
	}
	space := cp.NewSpace()
	space.Iterations = uint(cfg.Iterations)
	space.SetGravity(cp.Vector{X: cfg.Gravity.X, Y: cfg.Gravity.Y})
	return &System{
		space:   space,
		logger:  zap.NewNop(),
		entries: make(map[lumen.Collider]*entry),
		shapes:  make(map[*cp.Shape]*entry),
	}
}

// Init implements lumen.System.
func (s *System) Init(w *lumen.World) error {
	s.logger = w.Logger().Named("physics")
	return nil
}

// Shutdown removes every shape.
func (s *System) Shutdown(*lumen.World) {
	for _, e := range s.order {
		s.forget(e)
	}
	s.order = nil
	clear(s.entries)
}

// Space returns the underlying chipmunk space.
func (s *System) Space() *cp.Space { return s.space }

// Len returns the number of registered colliders.
func (s *System) Len() int { return len(s.order) }

// ShapeCount returns the number of shapes currently in the space.
func (s *System) ShapeCount() int { return len(s.shapes) }

// RegisterCollider implements lumen.ColliderSystem. Panics on a double
// registration.
func (s *System) RegisterCollider(c lumen.Collider) {
	if _, dup := s.entries[c]; dup {
		panic("physics: collider registered twice")
	}
	e := &entry{collider: c, dirty: true}
	e.shapeSub = c.OnShapeChanged().Subscribe(func(lumen.Collider) { e.dirty = true })
	e.enabledSub = c.OnEnabledChanged().Subscribe(func(lumen.Component) { s.refresh(e) })
	s.entries[c] = e
	s.order = append(s.order, e)
	s.refresh(e)
}

// UnregisterCollider implements lumen.ColliderSystem.
func (s *System) UnregisterCollider(c lumen.Collider) {
	e, ok := s.entries[c]
	if !ok {
		return
	}
	s.forget(e)
	delete(s.entries, c)
	for i, o := range s.order {
		if o == e {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Update rebuilds shapes whose collider or transform changed, then steps the
// space.
func (s *System) Update(dt float64) error {
	s.sync()
	if dt > 0 {
		s.space.Step(dt)
	}
	return nil
}

// QueryPoint returns the entity owning the nearest shape containing the
// world point (x, y).
func (s *System) QueryPoint(x, y float64) (*lumen.Entity, bool) {
	s.sync()
	info := s.space.PointQueryNearest(cp.Vector{X: x, Y: y}, 0, cp.SHAPE_FILTER_ALL)
	if info == nil || info.Shape == nil {
		return nil, false
	}
	e, ok := s.shapes[info.Shape]
	if !ok {
		return nil, false
	}
	return e.collider.Entity(), true
}

// QueryRect returns the colliders whose shape bounding boxes overlap r, in
// no particular order.
func (s *System) QueryRect(r lumen.Rect) []lumen.Collider {
	s.sync()
	bb := cp.BB{L: r.X, B: r.Y, R: r.X + r.Width, T: r.Y + r.Height}
	var out []lumen.Collider
	s.space.BBQuery(bb, cp.SHAPE_FILTER_ALL, func(shape *cp.Shape, _ interface{}) {
		if e, ok := s.shapes[shape]; ok {
			out = append(out, e.collider)
		}
	}, nil)
	return out
}

func (s *System) sync() {
	for _, e := range s.order {
		if !e.collider.Active() {
			continue
		}
		if e.dirty || lumen.EntityWorldMatrix(e.collider.Entity()) != e.matrix {
			s.refresh(e)
		}
	}
}

// refresh rebuilds e's shape, or removes it while the collider is inactive.
func (s *System) refresh(e *entry) {
	s.drop(e)
	if !e.collider.Active() {
		return
	}
	e.matrix = lumen.EntityWorldMatrix(e.collider.Entity())
	e.dirty = false
	shape := s.build(e.collider, e.matrix)
	if shape == nil {
		return
	}
	s.space.AddShape(shape)
	e.shape = shape
	s.shapes[shape] = e
}

func (s *System) forget(e *entry) {
	e.shapeSub.Unsubscribe()
	e.enabledSub.Unsubscribe()
	s.drop(e)
}

func (s *System) drop(e *entry) {
	if e.shape == nil {
		return
	}
	s.space.RemoveShape(e.shape)
	delete(s.shapes, e.shape)
	e.shape = nil
}

// build creates a static shape in world space. Degenerate colliders get no
// shape.
func (s *System) build(c lumen.Collider, m [6]float64) *cp.Shape {
	body := s.space.StaticBody
	o := c.ColliderOffset()
	switch c := c.(type) {
	case *lumen.CircleCollider:
		r := c.Radius() * math.Sqrt(math.Abs(m[0]*m[3]-m[1]*m[2]))
		if r <= 0 {
			return nil
		}
		center := apply(m, o.X, o.Y)
		return cp.NewCircle(body, r, center)
	case *lumen.BoxCollider:
		w, h := c.Size()
		if w <= 0 || h <= 0 {
			return nil
		}
		verts := []cp.Vector{
			apply(m, o.X-w/2, o.Y-h/2),
			apply(m, o.X+w/2, o.Y-h/2),
			apply(m, o.X+w/2, o.Y+h/2),
			apply(m, o.X-w/2, o.Y+h/2),
		}
		return cp.NewPolyShape(body, len(verts), verts, cp.NewTransformIdentity(), 0)
	case *lumen.PolygonCollider:
		pts := c.Points()
		if len(pts) < 3 {
			s.logger.Debug("polygon collider skipped", zap.Int("points", len(pts)))
			return nil
		}
		verts := make([]cp.Vector, len(pts))
		for i, p := range pts {
			verts[i] = apply(m, o.X+p.X, o.Y+p.Y)
		}
		return cp.NewPolyShape(body, len(verts), verts, cp.NewTransformIdentity(), 0)
	default:
		b := c.LocalBounds()
		if b.Width <= 0 || b.Height <= 0 {
			return nil
		}
		verts := []cp.Vector{
			apply(m, o.X+b.X, o.Y+b.Y),
			apply(m, o.X+b.X+b.Width, o.Y+b.Y),
			apply(m, o.X+b.X+b.Width, o.Y+b.Y+b.Height),
			apply(m, o.X+b.X, o.Y+b.Y+b.Height),
		}
		return cp.NewPolyShape(body, len(verts), verts, cp.NewTransformIdentity(), 0)
	}
}

func apply(m [6]float64, x, y float64) cp.Vector {
	return cp.Vector{X: m[0]*x + m[2]*y + m[4], Y: m[1]*x + m[3]*y + m[5]}
}
