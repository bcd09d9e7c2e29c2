package lumen

import "math"

// identityTransform is the identity affine matrix.
var identityTransform = [6]float64{1, 0, 0, 1, 0, 0}

// TransformComponent positions an entity relative to its parent.
//
// Composition order:
//
//	Translate(-PivotX, -PivotY) -> Scale -> Rotate -> Translate(X, Y)
//
// Writing the exported fields directly requires a MarkDirty call; the setters
// do it for you.
type TransformComponent struct {
	ComponentBase

	X, Y           float64
	ScaleX, ScaleY float64
	Rotation       float64
	PivotX, PivotY float64

	world   [6]float64
	dirty   bool
	changed Signal[*TransformComponent]
}

// NewTransform returns a transform at the origin with unit scale.
func NewTransform() *TransformComponent {
	return &TransformComponent{ScaleX: 1, ScaleY: 1, dirty: true}
}

// Attach registers the transform with the TransformSystem, if any.
func (t *TransformComponent) Attach(w *World) error {
	if s, ok := GetSystem[*TransformSystem](w); ok {
		s.Register(t)
	}
	return nil
}

// Detach unregisters the transform.
func (t *TransformComponent) Detach(w *World) {
	if s, ok := GetSystem[*TransformSystem](w); ok {
		s.Unregister(t)
	}
}

// Clone returns a detached copy with the same local values.
func (t *TransformComponent) Clone() Component {
	return &TransformComponent{
		ComponentBase: t.cloneBase(),
		X:             t.X,
		Y:             t.Y,
		ScaleX:        t.ScaleX,
		ScaleY:        t.ScaleY,
		Rotation:      t.Rotation,
		PivotX:        t.PivotX,
		PivotY:        t.PivotY,
		dirty:         true,
	}
}

// OnChanged fires when the world matrix is recomputed after a change.
func (t *TransformComponent) OnChanged() *Signal[*TransformComponent] { return &t.changed }

// SetPosition sets the local X and Y and marks the subtree dirty.
func (t *TransformComponent) SetPosition(x, y float64) {
	t.X = x
	t.Y = y
	t.MarkDirty()
}

// SetScale sets ScaleX and ScaleY and marks the subtree dirty.
func (t *TransformComponent) SetScale(sx, sy float64) {
	t.ScaleX = sx
	t.ScaleY = sy
	t.MarkDirty()
}

// SetRotation sets the rotation (in radians) and marks the subtree dirty.
func (t *TransformComponent) SetRotation(r float64) {
	t.Rotation = r
	t.MarkDirty()
}

// SetPivot sets PivotX and PivotY and marks the subtree dirty.
func (t *TransformComponent) SetPivot(px, py float64) {
	t.PivotX = px
	t.PivotY = py
	t.MarkDirty()
}

// MarkDirty forces recomputation of this transform and every descendant
// transform. Useful after bulk-setting fields directly.
func (t *TransformComponent) MarkDirty() {
	t.dirty = true
	if e := t.Entity(); e != nil {
		markSubtreeDirty(e)
	}
}

// Dirty reports whether the world matrix is stale.
func (t *TransformComponent) Dirty() bool { return t.dirty }

// WorldMatrix returns the world affine matrix, recomputing it if stale.
func (t *TransformComponent) WorldMatrix() [6]float64 {
	if t.dirty {
		t.world = multiplyAffine(parentWorldMatrix(t.Entity()), computeLocalTransform(t))
		t.dirty = false
		t.changed.Emit(t)
	}
	return t.world
}

// WorldPosition returns the world-space position of the local origin.
func (t *TransformComponent) WorldPosition() Vec2 {
	m := t.WorldMatrix()
	return Vec2{X: m[4], Y: m[5]}
}

// WorldToLocal converts a world-space point to this transform's local space.
func (t *TransformComponent) WorldToLocal(wx, wy float64) (lx, ly float64) {
	return transformPoint(invertAffine(t.WorldMatrix()), wx, wy)
}

// LocalToWorld converts a local-space point to world space.
func (t *TransformComponent) LocalToWorld(lx, ly float64) (wx, wy float64) {
	return transformPoint(t.WorldMatrix(), lx, ly)
}

// EntityWorldMatrix returns the world matrix of e's transform, or identity
// when e is nil or has no transform.
func EntityWorldMatrix(e *Entity) [6]float64 {
	if e == nil {
		return identityTransform
	}
	if t := e.Transform(); t != nil {
		return t.WorldMatrix()
	}
	return parentWorldMatrix(e)
}

// parentWorldMatrix returns the world matrix of the nearest ancestor with a
// transform.
func parentWorldMatrix(e *Entity) [6]float64 {
	if e == nil {
		return identityTransform
	}
	return EntityWorldMatrix(e.parent)
}

// markSubtreeDirty sets the dirty flag on every transform at or below e.
func markSubtreeDirty(e *Entity) {
	if t := e.Transform(); t != nil {
		t.dirty = true
	}
	for _, child := range e.children {
		markSubtreeDirty(child)
	}
}

// computeLocalTransform computes the local affine matrix from the transform
// properties. Returns [a, b, c, d, tx, ty].
func computeLocalTransform(t *TransformComponent) [6]float64 {
	sx := t.ScaleX
	sy := t.ScaleY

	sin, cos := math.Sincos(t.Rotation)

	// After Scale * Translate(-pivot):
	//   a=sx, b=0, c=0, d=sy, tx=-px*sx, ty=-py*sy
	preTx := -t.PivotX * sx
	preTy := -t.PivotY * sy

	return [6]float64{
		cos * sx,
		sin * sx,
		-sin * sy,
		cos * sy,
		cos*preTx - sin*preTy + t.X,
		sin*preTx + cos*preTy + t.Y,
	}
}

// multiplyAffine multiplies two 2D affine matrices: result = parent * child.
//
//	Matrix layout: [a, b, c, d, tx, ty]
//	| a  c  tx |
//	| b  d  ty |
//	| 0  0   1 |
func multiplyAffine(p, c [6]float64) [6]float64 {
	return [6]float64{
		p[0]*c[0] + p[2]*c[1],
		p[1]*c[0] + p[3]*c[1],
		p[0]*c[2] + p[2]*c[3],
		p[1]*c[2] + p[3]*c[3],
		p[0]*c[4] + p[2]*c[5] + p[4],
		p[1]*c[4] + p[3]*c[5] + p[5],
	}
}

// invertAffine computes the inverse of a 2D affine matrix.
// Returns the identity matrix if the matrix is singular.
func invertAffine(m [6]float64) [6]float64 {
	det := m[0]*m[3] - m[2]*m[1]
	if det > -1e-12 && det < 1e-12 {
		return identityTransform
	}
	invDet := 1.0 / det
	a := m[3] * invDet
	b := -m[1] * invDet
	c := -m[2] * invDet
	d := m[0] * invDet
	return [6]float64{
		a, b, c, d,
		-(a*m[4] + c*m[5]),
		-(b*m[4] + d*m[5]),
	}
}

// transformPoint applies an affine matrix to a point.
func transformPoint(m [6]float64, x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// TransformSystem keeps world matrices current. It listens to the scene's
// hierarchy changes and recomputes dirty transforms top-down each frame.
type TransformSystem struct {
	world      *World
	transforms intsetList[*TransformComponent]
	hierarchy  Subscription
}

// NewTransformSystem creates an empty TransformSystem.
func NewTransformSystem() *TransformSystem {
	return &TransformSystem{transforms: newIntsetList[*TransformComponent](64)}
}

// Init subscribes to the scene's hierarchy changes.
func (s *TransformSystem) Init(w *World) error {
	s.world = w
	if sc := w.Scene(); sc != nil {
		s.hierarchy = sc.HierarchyChanged().Subscribe(func(e *Entity) {
			markSubtreeDirty(e)
		})
	}
	return nil
}

// Shutdown releases the subscription and the transform index.
func (s *TransformSystem) Shutdown(*World) {
	s.hierarchy.Unsubscribe()
	s.transforms.clear()
	s.world = nil
}

// Register adds t to the index. Panics on double registration.
func (s *TransformSystem) Register(t *TransformComponent) {
	if !s.transforms.add(t) {
		panic("lumen: transform registered twice")
	}
	t.dirty = true
}

// Unregister removes t from the index.
func (s *TransformSystem) Unregister(t *TransformComponent) {
	s.transforms.remove(t)
}

// Len returns the number of registered transforms.
func (s *TransformSystem) Len() int { return s.transforms.len() }

// Update recomputes every dirty world matrix, parents before children.
func (s *TransformSystem) Update(float64) error {
	if s.world == nil || s.world.Scene() == nil {
		return nil
	}
	for _, e := range s.world.Scene().entities {
		if e.parent == nil {
			updateWorldTransform(e, identityTransform, false)
		}
	}
	return nil
}

// updateWorldTransform recomputes the world matrices of e's subtree.
// parentRecomputed forces recomputation of descendants even if they are not
// marked dirty.
func updateWorldTransform(e *Entity, parent [6]float64, parentRecomputed bool) {
	world := parent
	recompute := parentRecomputed
	if t := e.Transform(); t != nil {
		recompute = t.dirty || parentRecomputed
		if recompute {
			t.world = multiplyAffine(parent, computeLocalTransform(t))
			t.dirty = false
			t.changed.Emit(t)
		}
		world = t.world
	}
	for _, child := range e.children {
		updateWorldTransform(child, world, recompute)
	}
}
