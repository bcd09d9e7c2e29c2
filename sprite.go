package lumen

import "fmt"

// SortKey orders render data within a sorted category: blend rank first,
// then Order.
type SortKey struct {
	Blend BlendMode
	Order int
}

// Sorted is implemented by render data in sorted categories.
type Sorted interface {
	SortKey() SortKey
}

// Sprite is the per-frame snapshot of a sprite.
type Sprite struct {
	Texture   *Texture // nil draws a solid color quad
	Region    TextureRegion
	Size      Vec2
	Pivot     Vec2
	Color     Color
	Blend     BlendMode
	Order     int
	Transform [6]float64
}

// SpriteRenderData is implemented by components drawn by SpriteRenderable.
type SpriteRenderData interface {
	RenderData
	Sorted
	SpriteData() Sprite
}

// SpriteRendererComponent draws a textured (or solid color) quad in world
// space.
type SpriteRendererComponent struct {
	ComponentBase

	// Texture links the texture asset. A zero handle draws a solid color quad
	// of Size; an unresolved handle draws nothing.
	Texture AssetHandle[*Texture]
	// Color tints the sprite. Not premultiplied.
	Color Color
	// Size overrides the drawn size. Zero uses the texture's original size.
	Size Vec2
	// Pivot is the local origin, in pixels from the top-left corner.
	Pivot Vec2

	blend BlendMode
	layer int
	order int
}

// NewSpriteRenderer creates a white, normal-blended sprite.
func NewSpriteRenderer(tex AssetHandle[*Texture]) *SpriteRendererComponent {
	return &SpriteRendererComponent{Texture: tex, Color: ColorWhite}
}

// Attach registers the sprite with the RenderSystem.
func (s *SpriteRendererComponent) Attach(w *World) error {
	if rs, ok := GetSystem[*RenderSystem](w); ok {
		rs.RegisterSprite(s)
	}
	return nil
}

// Detach unregisters the sprite.
func (s *SpriteRendererComponent) Detach(w *World) {
	if rs, ok := GetSystem[*RenderSystem](w); ok {
		rs.Unregister(s)
	}
}

// Clone returns a detached copy.
func (s *SpriteRendererComponent) Clone() Component {
	c := *s
	c.ComponentBase = s.cloneBase()
	return &c
}

// BlendMode returns the blend mode.
func (s *SpriteRendererComponent) BlendMode() BlendMode { return s.blend }

// SetBlendMode changes the blend mode and re-sorts the sprite.
func (s *SpriteRendererComponent) SetBlendMode(b BlendMode) {
	if s.blend == b {
		return
	}
	s.blend = b
	resortRenderData(s)
}

// Order returns the secondary sort key.
func (s *SpriteRendererComponent) Order() int { return s.order }

// SetOrder changes the secondary sort key and re-sorts the sprite.
func (s *SpriteRendererComponent) SetOrder(o int) {
	if s.order == o {
		return
	}
	s.order = o
	resortRenderData(s)
}

// Layer returns the render layer index.
func (s *SpriteRendererComponent) Layer() int { return s.layer }

// SetLayer moves the sprite to another render layer.
func (s *SpriteRendererComponent) SetLayer(l int) {
	if s.layer == l {
		return
	}
	old := s.layer
	s.layer = l
	relayerRenderData(s, old)
}

func (s *SpriteRendererComponent) renderLayer() int { return s.layer }

// SortKey implements Sorted.
func (s *SpriteRendererComponent) SortKey() SortKey {
	return SortKey{Blend: s.blend, Order: s.order}
}

// SpriteData implements SpriteRenderData.
func (s *SpriteRendererComponent) SpriteData() Sprite {
	sp := Sprite{
		Size:      s.Size,
		Pivot:     s.Pivot,
		Color:     s.Color,
		Blend:     s.blend,
		Order:     s.order,
		Transform: EntityWorldMatrix(s.Entity()),
	}
	if s.Texture.IsZero() {
		return sp
	}
	tex, ok := s.Texture.Get()
	if !ok {
		// Unresolved link: draw nothing.
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

// SpriteRenderable batches sprites sharing a texture page and blend mode.
type SpriteRenderable struct {
	ctx    RenderContext
	active bool
	view   [6]float64
	batch  quadBatch
	quad   [4]Vertex
}

// NewSpriteRenderable creates the sprite strategy.
func NewSpriteRenderable() *SpriteRenderable { return &SpriteRenderable{} }

// Begin captures the context for one pass.
func (r *SpriteRenderable) Begin(ctx RenderContext) error {
	if r.active {
		return fmt.Errorf("lumen: SpriteRenderable.Begin without End")
	}
	r.active = true
	r.ctx = ctx
	r.view = ctx.viewMatrix()
	r.batch.begin(ctx.API, ctx.Stats)
	return nil
}

// Draw appends one sprite to the batch.
func (r *SpriteRenderable) Draw(d RenderData) error {
	sd, ok := d.(SpriteRenderData)
	if !ok {
		return fmt.Errorf("lumen: %T is not sprite render data", d)
	}
	return drawSprite(&r.ctx, &r.batch, &r.quad, r.view, sd.SpriteData())
}

// End flushes the batch and drops the context.
func (r *SpriteRenderable) End() error {
	err := r.batch.end()
	r.ctx = RenderContext{}
	r.active = false
	return err
}

// Release destroys the cached geometry. Must run on the render thread.
func (r *SpriteRenderable) Release() { r.batch.release() }

// drawSprite transforms one sprite into a quad and pushes it.
func drawSprite(ctx *RenderContext, batch *quadBatch, quad *[4]Vertex, view [6]float64, sp Sprite) error {
	if sp.Size.X == 0 || sp.Size.Y == 0 {
		return nil
	}
	var tex Handle
	region := sp.Region
	x, y := -sp.Pivot.X, -sp.Pivot.Y
	w, h := sp.Size.X, sp.Size.Y
	if sp.Texture != nil {
		var err error
		tex, err = sp.Texture.GPU(ctx.API)
		if err != nil {
			return err
		}
		// Scale the trimmed rect into the requested size.
		if region.OriginalW > 0 && region.OriginalH > 0 {
			sx := w / region.OriginalW
			sy := h / region.OriginalH
			x += region.OffsetX * sx
			y += region.OffsetY * sy
			w = region.Width * sx
			h = region.Height * sy
		}
	}
	m := multiplyAffine(view, sp.Transform)
	buildQuad(quad, m, x, y, w, h, region, sp.Color)
	return batch.push(tex, sp.Blend, quad)
}

func (s *SpriteRendererComponent) tintColor() *Color { return &s.Color }
