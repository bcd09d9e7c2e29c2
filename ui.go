package lumen

import "fmt"

// UIRenderData is implemented by components drawn in screen space by
// UIRenderable. The camera does not apply.
type UIRenderData interface {
	RenderData
	Sorted
	UIData() Sprite
}

// UIImageComponent draws an image in screen space. Its entity transform is
// read as framebuffer pixels.
type UIImageComponent struct {
	ComponentBase

	Texture AssetHandle[*Texture]
	Color   Color
	Size    Vec2
	Pivot   Vec2

	blend BlendMode
	layer int
	order int
}

// NewUIImage creates a white, normal-blended UI image.
func NewUIImage(tex AssetHandle[*Texture]) *UIImageComponent {
	return &UIImageComponent{Texture: tex, Color: ColorWhite}
}

// Attach registers the image with the RenderSystem.
func (u *UIImageComponent) Attach(w *World) error {
	if rs, ok := GetSystem[*RenderSystem](w); ok {
		rs.RegisterUI(u)
	}
	return nil
}

// Detach unregisters the image.
func (u *UIImageComponent) Detach(w *World) {
	if rs, ok := GetSystem[*RenderSystem](w); ok {
		rs.Unregister(u)
	}
}

// Clone returns a detached copy.
func (u *UIImageComponent) Clone() Component {
	c := *u
	c.ComponentBase = u.cloneBase()
	return &c
}

// BlendMode returns the blend mode.
func (u *UIImageComponent) BlendMode() BlendMode { return u.blend }

// SetBlendMode changes the blend mode and re-sorts the image.
func (u *UIImageComponent) SetBlendMode(b BlendMode) {
	if u.blend == b {
		return
	}
	u.blend = b
	resortRenderData(u)
}

// Order returns the secondary sort key.
func (u *UIImageComponent) Order() int { return u.order }

// SetOrder changes the secondary sort key and re-sorts the image.
func (u *UIImageComponent) SetOrder(o int) {
	if u.order == o {
		return
	}
	u.order = o
	resortRenderData(u)
}

// Layer returns the render layer index.
func (u *UIImageComponent) Layer() int { return u.layer }

// SetLayer moves the image to another render layer.
func (u *UIImageComponent) SetLayer(l int) {
	if u.layer == l {
		return
	}
	old := u.layer
	u.layer = l
	relayerRenderData(u, old)
}

func (u *UIImageComponent) renderLayer() int { return u.layer }

// SortKey implements Sorted.
func (u *UIImageComponent) SortKey() SortKey {
	return SortKey{Blend: u.blend, Order: u.order}
}

// UIData implements UIRenderData.
func (u *UIImageComponent) UIData() Sprite {
	sp := Sprite{
		Size:      u.Size,
		Pivot:     u.Pivot,
		Color:     u.Color,
		Blend:     u.blend,
		Order:     u.order,
		Transform: EntityWorldMatrix(u.Entity()),
	}
	if u.Texture.IsZero() {
		return sp
	}
	tex, ok := u.Texture.Get()
	if !ok {
		sp.Size = Vec2{}
		return sp
	}
	sp.Texture = tex
	sp.Region = tex.Region
	if sp.Size == (Vec2{}) {
		sp.Size = Vec2{X: tex.Region.OriginalW, Y: tex.Region.OriginalH}
	}
	return sp
}

// UIRenderable draws UI images without the camera transform.
type UIRenderable struct {
	ctx    RenderContext
	active bool
	view   [6]float64
	batch  quadBatch
	quad   [4]Vertex
}

// NewUIRenderable creates the UI strategy.
func NewUIRenderable() *UIRenderable { return &UIRenderable{} }

// Begin captures the context. The view is the viewport offset only.
func (r *UIRenderable) Begin(ctx RenderContext) error {
	if r.active {
		return fmt.Errorf("lumen: UIRenderable.Begin without End")
	}
	r.active = true
	r.ctx = ctx
	r.view = [6]float64{1, 0, 0, 1, ctx.Viewport.X, ctx.Viewport.Y}
	r.batch.begin(ctx.API, ctx.Stats)
	return nil
}

// Draw appends one image to the batch.
func (r *UIRenderable) Draw(d RenderData) error {
	ud, ok := d.(UIRenderData)
	if !ok {
		return fmt.Errorf("lumen: %T is not UI render data", d)
	}
	return drawSprite(&r.ctx, &r.batch, &r.quad, r.view, ud.UIData())
}

// End flushes the batch.
func (r *UIRenderable) End() error {
	err := r.batch.end()
	r.ctx = RenderContext{}
	r.active = false
	return err
}

// Release destroys the cached geometry. Must run on the render thread.
func (r *UIRenderable) Release() { r.batch.release() }

func (u *UIImageComponent) tintColor() *Color { return &u.Color }
