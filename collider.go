package lumen

import "math"

// Collider is implemented by collision shape components. Colliders only
// publish geometry; a ColliderSystem (see the physics package) turns them
// into shapes.
type Collider interface {
	Component
	// ColliderOffset returns the shape origin in the entity's local space.
	ColliderOffset() Vec2
	// LocalBounds returns the shape's bounding box in collider space.
	LocalBounds() Rect
	// OnShapeChanged fires after the geometry or offset changes.
	OnShapeChanged() *Signal[Collider]
}

// ColliderSystem is the System colliders attach to. It is looked up by
// interface so any physics backend can serve it.
type ColliderSystem interface {
	System
	RegisterCollider(c Collider)
	UnregisterCollider(c Collider)
}

// ColliderBase holds the state shared by every collider.
type ColliderBase struct {
	ComponentBase

	offset       Vec2
	shapeChanged Signal[Collider]
}

// AllowMultiple lets an entity carry several colliders of the same shape.
func (c *ColliderBase) AllowMultiple() bool { return true }

// ColliderOffset implements Collider.
func (c *ColliderBase) ColliderOffset() Vec2 { return c.offset }

// SetOffset moves the shape origin.
func (c *ColliderBase) SetOffset(x, y float64) {
	if c.offset == (Vec2{X: x, Y: y}) {
		return
	}
	c.offset = Vec2{X: x, Y: y}
	c.changed()
}

// OnShapeChanged implements Collider.
func (c *ColliderBase) OnShapeChanged() *Signal[Collider] { return &c.shapeChanged }

func (c *ColliderBase) changed() {
	if self, ok := c.self.(Collider); ok {
		c.shapeChanged.Emit(self)
	}
}

func (c *ColliderBase) cloneCollider() ColliderBase {
	return ColliderBase{ComponentBase: c.cloneBase(), offset: c.offset}
}

func attachCollider(w *World, c Collider) {
	if s, ok := GetSystem[ColliderSystem](w); ok {
		s.RegisterCollider(c)
	}
}

func detachCollider(w *World, c Collider) {
	if s, ok := GetSystem[ColliderSystem](w); ok {
		s.UnregisterCollider(c)
	}
}

// ColliderWorldOrigin returns the world position of c's shape origin.
func ColliderWorldOrigin(c Collider) Vec2 {
	o := c.ColliderOffset()
	x, y := transformPoint(EntityWorldMatrix(c.Entity()), o.X, o.Y)
	return Vec2{X: x, Y: y}
}

// BoxCollider is an axis-aligned box centered on its origin.
type BoxCollider struct {
	ColliderBase
	width, height float64
}

// NewBoxCollider creates a w×h box.
func NewBoxCollider(w, h float64) *BoxCollider {
	return &BoxCollider{width: w, height: h}
}

// Size returns the box size.
func (b *BoxCollider) Size() (w, h float64) { return b.width, b.height }

// SetSize resizes the box.
func (b *BoxCollider) SetSize(w, h float64) {
	if b.width == w && b.height == h {
		return
	}
	b.width, b.height = w, h
	b.changed()
}

// LocalBounds implements Collider.
func (b *BoxCollider) LocalBounds() Rect {
	return Rect{X: -b.width / 2, Y: -b.height / 2, Width: b.width, Height: b.height}
}

func (b *BoxCollider) Attach(w *World) error { attachCollider(w, b); return nil }
func (b *BoxCollider) Detach(w *World)       { detachCollider(w, b) }

// Clone returns a detached copy.
func (b *BoxCollider) Clone() Component {
	return &BoxCollider{ColliderBase: b.cloneCollider(), width: b.width, height: b.height}
}

// CircleCollider is a circle around its origin.
type CircleCollider struct {
	ColliderBase
	radius float64
}

// NewCircleCollider creates a circle of radius r.
func NewCircleCollider(r float64) *CircleCollider {
	return &CircleCollider{radius: r}
}

// Radius returns the circle radius.
func (c *CircleCollider) Radius() float64 { return c.radius }

// SetRadius changes the radius.
func (c *CircleCollider) SetRadius(r float64) {
	if c.radius == r {
		return
	}
	c.radius = r
	c.changed()
}

// LocalBounds implements Collider.
func (c *CircleCollider) LocalBounds() Rect {
	return Rect{X: -c.radius, Y: -c.radius, Width: 2 * c.radius, Height: 2 * c.radius}
}

func (c *CircleCollider) Attach(w *World) error { attachCollider(w, c); return nil }
func (c *CircleCollider) Detach(w *World)       { detachCollider(w, c) }

// Clone returns a detached copy.
func (c *CircleCollider) Clone() Component {
	return &CircleCollider{ColliderBase: c.cloneCollider(), radius: c.radius}
}

// PolygonCollider is a convex polygon in collider space.
type PolygonCollider struct {
	ColliderBase
	points []Vec2
}

// NewPolygonCollider creates a polygon from points, wound either way.
func NewPolygonCollider(points ...Vec2) *PolygonCollider {
	return &PolygonCollider{points: append([]Vec2(nil), points...)}
}

// Points returns the polygon vertices. The returned slice MUST NOT be
// mutated by the caller.
func (p *PolygonCollider) Points() []Vec2 { return p.points }

// SetPoints replaces the polygon vertices.
func (p *PolygonCollider) SetPoints(points ...Vec2) {
	p.points = append(p.points[:0], points...)
	p.changed()
}

// LocalBounds implements Collider.
func (p *PolygonCollider) LocalBounds() Rect {
	if len(p.points) == 0 {
		return Rect{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, pt := range p.points {
		minX = min(minX, pt.X)
		minY = min(minY, pt.Y)
		maxX = max(maxX, pt.X)
		maxY = max(maxY, pt.Y)
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

func (p *PolygonCollider) Attach(w *World) error { attachCollider(w, p); return nil }
func (p *PolygonCollider) Detach(w *World)       { detachCollider(w, p) }

// Clone returns a detached copy.
func (p *PolygonCollider) Clone() Component {
	return &PolygonCollider{ColliderBase: p.cloneCollider(), points: append([]Vec2(nil), p.points...)}
}
