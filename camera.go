package lumen

import (
	"math"

	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// scrollAnim holds active scroll-to tweens for camera X and Y.
type scrollAnim struct {
	tweenX *gween.Tween
	tweenY *gween.Tween
	doneX  bool
	doneY  bool
}

// CameraComponent views the scene from its entity's world position. Moving
// the entity moves the camera.
type CameraComponent struct {
	ComponentBase

	// Zoom is the scale factor (1.0 = no zoom, >1 = zoom in, <1 = zoom out).
	Zoom float64
	// Rotation is the camera rotation in radians (clockwise).
	Rotation float64
	// Viewport is the framebuffer rectangle this camera renders into. An
	// empty viewport covers the whole target.
	Viewport Rect
	// Layer is the render layer this camera draws. Layer 0 always uses the
	// primary camera. Prefer SetLayer once the camera is attached.
	Layer int

	// BoundsEnabled clamps the camera position so the visible area stays
	// within Bounds.
	BoundsEnabled bool
	// Bounds is the world-space rectangle the camera is clamped to when
	// BoundsEnabled is true.
	Bounds Rect

	primary bool
	scroll  *scrollAnim
}

// NewCamera creates a camera with unit zoom drawing into viewport.
func NewCamera(viewport Rect) *CameraComponent {
	return &CameraComponent{Zoom: 1, Viewport: viewport}
}

// Attach registers the camera with the RenderSystem.
func (c *CameraComponent) Attach(w *World) error {
	if rs, ok := GetSystem[*RenderSystem](w); ok {
		rs.RegisterCamera(c)
	}
	return nil
}

// Detach unregisters the camera.
func (c *CameraComponent) Detach(w *World) {
	if rs, ok := GetSystem[*RenderSystem](w); ok {
		rs.UnregisterCamera(c)
	}
}

// Clone returns a detached copy. The copy never claims primary.
func (c *CameraComponent) Clone() Component {
	return &CameraComponent{
		ComponentBase: c.cloneBase(),
		Zoom:          c.Zoom,
		Rotation:      c.Rotation,
		Viewport:      c.Viewport,
		Layer:         c.Layer,
		BoundsEnabled: c.BoundsEnabled,
		Bounds:        c.Bounds,
	}
}

// Primary reports whether this camera holds the primary flag.
func (c *CameraComponent) Primary() bool { return c.primary }

// SetPrimary makes this camera the primary one. Before the camera is
// attached the flag is recorded and applied on attach.
func (c *CameraComponent) SetPrimary(primary bool) {
	rs, ok := GetSystem[*RenderSystem](c.World())
	if !ok {
		c.primary = primary
		return
	}
	if primary {
		rs.SetPrimary(c)
	} else {
		rs.ClearPrimary(c)
	}
}

// SetLayer moves the camera to another render layer and reassigns layer
// cameras right away when attached.
func (c *CameraComponent) SetLayer(l int) {
	if c.Layer == l {
		return
	}
	c.Layer = l
	if rs, ok := GetSystem[*RenderSystem](c.World()); ok && c.IsAttached() {
		rs.SyncLayerCameras()
	}
}

// Position returns the camera's world-space center.
func (c *CameraComponent) Position() Vec2 {
	m := EntityWorldMatrix(c.Entity())
	return Vec2{X: m[4], Y: m[5]}
}

// SetPosition moves the camera's entity so the camera centers on (x, y).
func (c *CameraComponent) SetPosition(x, y float64) {
	e := c.Entity()
	if e == nil {
		return
	}
	t := e.Transform()
	if t == nil {
		return
	}
	lx, ly := transformPoint(invertAffine(parentWorldMatrix(e)), x, y)
	t.SetPosition(lx, ly)
}

// ScrollTo animates the camera to the given world position over duration
// seconds. A nil easeFn is linear.
func (c *CameraComponent) ScrollTo(x, y float64, duration float32, easeFn ease.TweenFunc) {
	if easeFn == nil {
		easeFn = ease.Linear
	}
	p := c.Position()
	c.scroll = &scrollAnim{
		tweenX: gween.New(float32(p.X), float32(x), duration, easeFn),
		tweenY: gween.New(float32(p.Y), float32(y), duration, easeFn),
	}
}

// Scrolling reports whether a ScrollTo animation is running.
func (c *CameraComponent) Scrolling() bool { return c.scroll != nil }

// SetBounds enables camera bounds clamping.
func (c *CameraComponent) SetBounds(bounds Rect) {
	c.BoundsEnabled = true
	c.Bounds = bounds
}

// ClearBounds disables camera bounds clamping.
func (c *CameraComponent) ClearBounds() {
	c.BoundsEnabled = false
}

// update advances the scroll animation and clamps to bounds.
func (c *CameraComponent) update(dt float64) {
	if !c.Active() {
		return
	}
	if c.scroll != nil {
		p := c.Position()
		x, y := p.X, p.Y
		if !c.scroll.doneX {
			val, done := c.scroll.tweenX.Update(float32(dt))
			x = float64(val)
			c.scroll.doneX = done
		}
		if !c.scroll.doneY {
			val, done := c.scroll.tweenY.Update(float32(dt))
			y = float64(val)
			c.scroll.doneY = done
		}
		if c.scroll.doneX && c.scroll.doneY {
			c.scroll = nil
		}
		c.SetPosition(x, y)
	}
	if c.BoundsEnabled {
		p := c.Position()
		x, y := c.clamp(p.X, p.Y, c.Viewport)
		if x != p.X || y != p.Y {
			c.SetPosition(x, y)
		}
	}
}

// clamp restricts (x, y) so the area visible through viewport stays within
// Bounds.
func (c *CameraComponent) clamp(x, y float64, viewport Rect) (float64, float64) {
	zoom := c.zoom()
	halfW := viewport.Width / (2 * zoom)
	halfH := viewport.Height / (2 * zoom)

	minX := c.Bounds.X + halfW
	maxX := c.Bounds.X + c.Bounds.Width - halfW
	minY := c.Bounds.Y + halfH
	maxY := c.Bounds.Y + c.Bounds.Height - halfH

	// Bounds smaller than the visible area center the camera.
	if minX > maxX {
		x = c.Bounds.X + c.Bounds.Width/2
	} else {
		x = math.Max(minX, math.Min(x, maxX))
	}
	if minY > maxY {
		y = c.Bounds.Y + c.Bounds.Height/2
	} else {
		y = math.Max(minY, math.Min(y, maxY))
	}
	return x, y
}

func (c *CameraComponent) zoom() float64 {
	if c.Zoom <= 0 {
		return 1
	}
	return c.Zoom
}

// viewportIn resolves the camera viewport against the render target.
func (c *CameraComponent) viewportIn(target Rect) Rect {
	if c.Viewport.Empty() {
		return target
	}
	return c.Viewport
}

// ViewMatrixFor returns the world-to-framebuffer matrix when drawing into
// target.
//
//	view = Translate(cx, cy) * Scale(zoom) * Rotate(-rotation) * Translate(-X, -Y)
//
// where (cx, cy) is the viewport center.
func (c *CameraComponent) ViewMatrixFor(target Rect) [6]float64 {
	vp := c.viewportIn(target)
	p := c.Position()
	cx := vp.X + vp.Width/2
	cy := vp.Y + vp.Height/2

	sin, cos := math.Sincos(-c.Rotation)
	z := c.zoom()

	a := z * cos
	b := -z * sin
	cc := z * sin
	d := z * cos
	tx := cx + z*(-cos*p.X+sin*p.Y)
	ty := cy + z*(-sin*p.X-cos*p.Y)
	return [6]float64{a, cc, b, d, tx, ty}
}

// ViewMatrix returns the view matrix for the camera's own viewport.
func (c *CameraComponent) ViewMatrix() [6]float64 {
	return c.ViewMatrixFor(c.Viewport)
}

// WorldToScreen converts world coordinates to framebuffer coordinates.
func (c *CameraComponent) WorldToScreen(wx, wy float64) (sx, sy float64) {
	return transformPoint(c.ViewMatrix(), wx, wy)
}

// ScreenToWorld converts framebuffer coordinates to world coordinates.
func (c *CameraComponent) ScreenToWorld(sx, sy float64) (wx, wy float64) {
	return transformPoint(invertAffine(c.ViewMatrix()), sx, sy)
}

// VisibleBounds returns the axis-aligned bounding rect of the camera's visible
// area in world space.
func (c *CameraComponent) VisibleBounds() Rect {
	inv := invertAffine(c.ViewMatrix())

	vx := c.Viewport.X
	vy := c.Viewport.Y
	vr := vx + c.Viewport.Width
	vb := vy + c.Viewport.Height

	x0, y0 := transformPoint(inv, vx, vy)
	x1, y1 := transformPoint(inv, vr, vy)
	x2, y2 := transformPoint(inv, vr, vb)
	x3, y3 := transformPoint(inv, vx, vb)

	minX := math.Min(math.Min(x0, x1), math.Min(x2, x3))
	minY := math.Min(math.Min(y0, y1), math.Min(y2, y3))
	maxX := math.Max(math.Max(x0, x1), math.Max(x2, x3))
	maxY := math.Max(math.Max(y0, y1), math.Max(y2, y3))

	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// worldAABB computes the axis-aligned bounding box for the local rectangle
// (x, y, w, h) transformed by m.
func worldAABB(m [6]float64, x, y, w, h float64) Rect {
	x0, y0 := transformPoint(m, x, y)
	x1, y1 := transformPoint(m, x+w, y)
	x2, y2 := transformPoint(m, x+w, y+h)
	x3, y3 := transformPoint(m, x, y+h)

	minX := math.Min(math.Min(x0, x1), math.Min(x2, x3))
	minY := math.Min(math.Min(y0, y1), math.Min(y2, y3))
	maxX := math.Max(math.Max(x0, x1), math.Max(x2, x3))
	maxY := math.Max(math.Max(y0, y1), math.Max(y2, y3))

	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}
