package lumen

import (
	"fmt"
	"image"
	"math"
)

// Light is the per-frame snapshot of a light.
type Light struct {
	Color     Color
	Intensity float64
	Radius    float64
	Transform [6]float64
}

// Spot is the cone of a spot light. Direction is in radians in the entity's
// local space; ConeAngle is the full opening angle.
type Spot struct {
	Direction float64
	ConeAngle float64
}

// LightRenderData is implemented by every light drawn by LightRenderable.
type LightRenderData interface {
	RenderData
	LightData() Light
}

// SpotLightRenderData is implemented by lights with a cone.
type SpotLightRenderData interface {
	LightRenderData
	SpotData() Spot
}

// LightBase holds the state shared by every light variant.
type LightBase struct {
	ComponentBase

	// Color tints the lit area. White or zero means no tint.
	Color Color
	// Intensity in [0, 1] controls how much darkness is removed.
	Intensity float64
	// Radius is the reach of the light in world pixels.
	Radius float64

	layer int
}

// Layer returns the render layer index.
func (l *LightBase) Layer() int { return l.layer }

func (l *LightBase) renderLayer() int { return l.layer }

func (l *LightBase) lightData() Light {
	return Light{
		Color:     l.Color,
		Intensity: l.Intensity,
		Radius:    l.Radius,
		Transform: EntityWorldMatrix(l.Entity()),
	}
}

func attachLight(w *World, l LightRenderData) {
	if rs, ok := GetSystem[*RenderSystem](w); ok {
		rs.RegisterLight(l)
	}
}

func detachLight(w *World, l Component) {
	if rs, ok := GetSystem[*RenderSystem](w); ok {
		rs.Unregister(l)
	}
}

// PointLightComponent lights a feathered circle around its entity.
type PointLightComponent struct {
	LightBase
}

// NewPointLight creates a full-intensity white point light.
func NewPointLight(radius float64) *PointLightComponent {
	return &PointLightComponent{LightBase{Color: ColorWhite, Intensity: 1, Radius: radius}}
}

// Attach registers the light with the RenderSystem.
func (l *PointLightComponent) Attach(w *World) error {
	attachLight(w, l)
	return nil
}

// Detach unregisters the light.
func (l *PointLightComponent) Detach(w *World) { detachLight(w, l) }

// Clone returns a detached copy.
func (l *PointLightComponent) Clone() Component {
	c := *l
	c.ComponentBase = l.cloneBase()
	return &c
}

// SetLayer moves the light to another render layer.
func (l *PointLightComponent) SetLayer(layer int) {
	if l.layer == layer {
		return
	}
	old := l.layer
	l.layer = layer
	relayerRenderData(l, old)
}

// LightData implements LightRenderData.
func (l *PointLightComponent) LightData() Light { return l.lightData() }

// SpotLightComponent lights a feathered cone.
type SpotLightComponent struct {
	LightBase
	Spot
}

// NewSpotLight creates a full-intensity white spot light pointing along +X.
func NewSpotLight(radius, coneAngle float64) *SpotLightComponent {
	return &SpotLightComponent{
		LightBase: LightBase{Color: ColorWhite, Intensity: 1, Radius: radius},
		Spot:      Spot{ConeAngle: coneAngle},
	}
}

// Attach registers the light with the RenderSystem.
func (l *SpotLightComponent) Attach(w *World) error {
	attachLight(w, l)
	return nil
}

// Detach unregisters the light.
func (l *SpotLightComponent) Detach(w *World) { detachLight(w, l) }

// Clone returns a detached copy.
func (l *SpotLightComponent) Clone() Component {
	c := *l
	c.ComponentBase = l.cloneBase()
	return &c
}

// SetLayer moves the light to another render layer.
func (l *SpotLightComponent) SetLayer(layer int) {
	if l.layer == layer {
		return
	}
	old := l.layer
	l.layer = layer
	relayerRenderData(l, old)
}

// LightData implements LightRenderData.
func (l *SpotLightComponent) LightData() Light { return l.lightData() }

// SpotData implements SpotLightRenderData.
func (l *SpotLightComponent) SpotData() Spot { return l.Spot }

// --- Light shapes ---

// lightTextureSize is the edge of the generated light shapes. Shapes are
// scaled to each light's radius.
const lightTextureSize = 128

var (
	circleTexture *Texture
	coneTextures  = map[int]*Texture{}
)

func lightCircle() *Texture {
	if circleTexture == nil {
		circleTexture = NewTexture("$light.circle", generateLightShape(lightTextureSize, 2*math.Pi))
	}
	return circleTexture
}

// lightCone returns the cone texture for angle, quantized to whole degrees.
func lightCone(angle float64) *Texture {
	deg := int(math.Round(angle * 180 / math.Pi))
	deg = max(1, min(deg, 360))
	if t, ok := coneTextures[deg]; ok {
		return t
	}
	t := NewTexture(fmt.Sprintf("$light.cone%d", deg), generateLightShape(lightTextureSize, float64(deg)*math.Pi/180))
	coneTextures[deg] = t
	return t
}

// generateLightShape creates a feathered white disc, or a cone of the given
// opening angle pointing along +X. Smoothstep radial falloff, premultiplied.
func generateLightShape(size int, angle float64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	radius := float64(size) / 2
	half := angle / 2
	full := angle >= 2*math.Pi
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx := float64(x) + 0.5 - radius
			dy := float64(y) + 0.5 - radius
			dist := math.Sqrt(dx*dx+dy*dy) / radius

			var alpha float64
			if dist < 1 {
				// smoothstep: 1 at center, 0 at edge
				t := 1 - dist
				alpha = t * t * (3 - 2*t)
			}
			if !full && alpha > 0 {
				off := math.Abs(math.Atan2(dy, dx))
				switch {
				case off > half:
					alpha = 0
				case half > 0:
					// Soften the last fifth of the cone edge.
					edge := (half - off) / (half * 0.2)
					if edge < 1 {
						alpha *= edge
					}
				}
			}
			a := uint8(alpha * 255)
			off := img.PixOffset(x, y)
			img.Pix[off+0] = a
			img.Pix[off+1] = a
			img.Pix[off+2] = a
			img.Pix[off+3] = a
		}
	}
	return img
}

// LightRenderable draws light shapes into a light target: an erase pass that
// punches the darkness, then an additive tint for colored lights.
type LightRenderable struct {
	ctx    RenderContext
	active bool
	view   [6]float64
	erase  quadBatch
	tint   quadBatch
	quad   [4]Vertex
}

// NewLightRenderable creates the light strategy.
func NewLightRenderable() *LightRenderable { return &LightRenderable{} }

// Begin captures the context for one pass.
func (r *LightRenderable) Begin(ctx RenderContext) error {
	if r.active {
		return fmt.Errorf("lumen: LightRenderable.Begin without End")
	}
	r.active = true
	r.ctx = ctx
	r.view = ctx.viewMatrix()
	r.erase.begin(ctx.API, ctx.Stats)
	r.tint.begin(ctx.API, nil)
	return nil
}

// Draw queues the erase quad and, for tinted lights, the tint quad.
func (r *LightRenderable) Draw(d RenderData) error {
	ld, ok := d.(LightRenderData)
	if !ok {
		return fmt.Errorf("lumen: %T is not light render data", d)
	}
	l := ld.LightData()
	if l.Radius <= 0 || l.Intensity <= 0 {
		return nil
	}
	shape := lightCircle()
	m := l.Transform
	if sd, ok := ld.(SpotLightRenderData); ok {
		s := sd.SpotData()
		shape = lightCone(s.ConeAngle)
		sin, cos := math.Sincos(s.Direction)
		m = multiplyAffine(m, [6]float64{cos, sin, -sin, cos, 0, 0})
	}
	tex, err := shape.GPU(r.ctx.API)
	if err != nil {
		return err
	}
	m = multiplyAffine(r.view, m)
	size := l.Radius * 2
	intensity := clamp01(l.Intensity)

	buildQuad(&r.quad, m, -l.Radius, -l.Radius, size, size, shape.Region, Color{1, 1, 1, intensity})
	if err := r.erase.push(tex, BlendErase, &r.quad); err != nil {
		return err
	}
	if c := l.Color; c != (Color{}) && c != ColorWhite {
		buildQuad(&r.quad, m, -l.Radius, -l.Radius, size, size, shape.Region, Color{c.R, c.G, c.B, intensity * 0.3})
		return r.tint.push(tex, BlendAdd, &r.quad)
	}
	return nil
}

// End flushes the erase batch, then the tint batch.
func (r *LightRenderable) End() error {
	err := r.erase.end()
	if tintErr := r.tint.end(); err == nil {
		err = tintErr
	}
	r.ctx = RenderContext{}
	r.active = false
	return err
}

// Release destroys the cached geometry. Must run on the render thread.
func (r *LightRenderable) Release() {
	r.erase.release()
	r.tint.release()
}

// LightPass darkens each layer that holds lights with an ambient color and
// lets the lights shine through. Lights are drawn into an internal target
// which is multiplied over the framebuffer.
type LightPass struct {
	// Ambient is the darkness color; its alpha sets how dark unlit areas get.
	Ambient Color

	target        Handle
	width, height int
	quad          Handle
}

// NewLightPass creates a light pass with black ambient darkness of the given
// alpha.
func NewLightPass(ambientAlpha float64) *LightPass {
	return &LightPass{Ambient: Color{0, 0, 0, ambientAlpha}}
}

func (p *LightPass) Name() string                 { return "light" }
func (p *LightPass) Categories() []RenderCategory { return []RenderCategory{CategoryLight} }

// Size returns the size of the internal light target.
func (p *LightPass) Size() (width, height int) { return p.width, p.height }

// Resize creates or resizes the light target.
func (p *LightPass) Resize(api RendererAPI, width, height int) error {
	p.width, p.height = width, height
	if p.target.IsZero() {
		fb, err := api.CreateFramebuffer(width, height)
		if err != nil {
			return err
		}
		p.target = fb
	} else if err := api.ResizeFramebuffer(p.target, width, height); err != nil {
		return err
	}
	// The composite quad covers the old size.
	if !p.quad.IsZero() {
		_ = api.DestroyVertexArray(p.quad)
		p.quad = Handle{}
	}
	return nil
}

// Execute fills the light target, draws the layer's lights into it and
// multiplies it over the framebuffer.
func (p *LightPass) Execute(pc *PassContext) error {
	if p.target.IsZero() {
		if err := p.Resize(pc.API, pc.Width, pc.Height); err != nil {
			return err
		}
	}
	api := pc.API
	if err := api.BindFramebuffer(p.target); err != nil {
		return err
	}
	if err := api.Clear(p.Ambient); err != nil {
		return err
	}
	b, ok := pc.Layer.Binding(CategoryLight)
	if ok {
		ctx := pc.RenderContext()
		ctx.Framebuffer = p.target
		api.SetViewport(ctx.Viewport)
		if err := drawBinding(b, ctx); err != nil {
			return err
		}
	}
	return p.composite(pc)
}

// composite draws the light target over the framebuffer with multiply
// blending.
func (p *LightPass) composite(pc *PassContext) error {
	api := pc.API
	if err := api.BindFramebuffer(pc.Framebuffer); err != nil {
		return err
	}
	if p.quad.IsZero() {
		w, h := float32(p.width), float32(p.height)
		verts := []Vertex{
			{DstX: 0, DstY: 0, SrcX: 0, SrcY: 0, ColorR: 1, ColorG: 1, ColorB: 1, ColorA: 1},
			{DstX: w, DstY: 0, SrcX: w, SrcY: 0, ColorR: 1, ColorG: 1, ColorB: 1, ColorA: 1},
			{DstX: 0, DstY: h, SrcX: 0, SrcY: h, ColorR: 1, ColorG: 1, ColorB: 1, ColorA: 1},
			{DstX: w, DstY: h, SrcX: w, SrcY: h, ColorR: 1, ColorG: 1, ColorB: 1, ColorA: 1},
		}
		vb, err := api.CreateVertexBuffer(verts)
		if err != nil {
			return err
		}
		ib, err := api.CreateIndexBuffer([]uint32{0, 1, 2, 1, 3, 2})
		if err != nil {
			return err
		}
		if p.quad, err = api.CreateVertexArray(vb, ib); err != nil {
			return err
		}
	}
	if err := api.BindVertexArray(p.quad); err != nil {
		return err
	}
	if err := api.BindFramebufferTexture(p.target); err != nil {
		return err
	}
	api.SetBlendFunc(BlendMultiply)
	if err := api.DrawIndexed(0, 6); err != nil {
		return err
	}
	if pc.Stats != nil {
		pc.Stats.DrawCalls++
	}
	return nil
}

// Release destroys the light target and composite quad.
func (p *LightPass) Release(api RendererAPI) {
	if !p.quad.IsZero() {
		_ = api.DestroyVertexArray(p.quad)
		p.quad = Handle{}
	}
	if !p.target.IsZero() {
		_ = api.DestroyFramebuffer(p.target)
		p.target = Handle{}
	}
}
