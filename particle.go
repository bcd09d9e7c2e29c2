package lumen

import (
	"math"
	"math/rand/v2"
)

// look is the interpolated appearance of a particle.
type look struct {
	scale, alpha float32
	r, g, b      float32
}

func (l look) lerp(to look, t float32) look {
	return look{
		scale: l.scale + (to.scale-l.scale)*t,
		alpha: l.alpha + (to.alpha-l.alpha)*t,
		r:     l.r + (to.r-l.r)*t,
		g:     l.g + (to.g-l.g)*t,
		b:     l.b + (to.b-l.b)*t,
	}
}

type particle struct {
	x, y   float64
	vx, vy float64
	// life counts down from span, in seconds.
	life, span float64

	birth, death, now look
}

// EmitterConfig controls how particles are spawned and behave. Ranges are
// sampled once per particle at spawn.
type EmitterConfig struct {
	// MaxParticles caps the pool; spawns beyond it are dropped.
	MaxParticles int
	// EmitRate is particles per second while emitting.
	EmitRate float64
	// Lifetime in seconds.
	Lifetime Range
	// Speed in pixels per second.
	Speed Range
	// Angle of the initial velocity, in radians.
	Angle Range
	// StartScale and EndScale bound the scale over a particle's life.
	StartScale, EndScale Range
	// StartAlpha and EndAlpha bound the opacity over a particle's life.
	StartAlpha, EndAlpha Range
	// Gravity in pixels per second squared.
	Gravity Vec2
	// StartColor fades to EndColor over a particle's life. Alpha is ignored.
	StartColor, EndColor Color
	// Size is a particle's quad size at scale 1. Zero uses the texture size,
	// or 4×4 for untextured particles.
	Size Vec2
	// WorldSpace leaves spawned particles where they were emitted instead of
	// moving them with the entity.
	WorldSpace bool
}

// DefaultEmitterConfig returns a small white fountain.
func DefaultEmitterConfig() EmitterConfig {
	return EmitterConfig{
		MaxParticles: 128,
		EmitRate:     30,
		Lifetime:     Range{Min: 0.5, Max: 1},
		Speed:        Range{Min: 40, Max: 80},
		Angle:        Range{Min: -math.Pi * 0.75, Max: -math.Pi * 0.25},
		StartScale:   Range{Min: 1, Max: 1},
		EndScale:     Range{Min: 0.25, Max: 0.25},
		StartAlpha:   Range{Min: 1, Max: 1},
		EndAlpha:     Range{Min: 0, Max: 0},
		StartColor:   ColorWhite,
		EndColor:     ColorWhite,
	}
}

// ParticleEmitterComponent simulates a pool of particles on the CPU and draws
// them as one mesh. It registers with the AnimationSystem for simulation and
// with the RenderSystem as mesh render data.
type ParticleEmitterComponent struct {
	ComponentBase

	Config EmitterConfig
	// Texture links the particle texture. A zero handle draws solid quads.
	Texture AssetHandle[*Texture]

	particles []particle
	alive     int
	emitAccum float64
	emitting  bool
	rng       *rand.Rand
	// World-space tracking: the emitter's world position at the last Advance.
	worldX, worldY float64

	verts []Vertex
	inds  []uint32

	blend BlendMode
	layer int
	order int
}

// NewParticleEmitter creates an emitting particle emitter with a
// preallocated pool.
func NewParticleEmitter(cfg EmitterConfig) *ParticleEmitterComponent {
	return &ParticleEmitterComponent{Config: cfg, emitting: true}
}

// Attach registers the emitter with the AnimationSystem and RenderSystem.
func (e *ParticleEmitterComponent) Attach(w *World) error {
	e.ensurePool()
	attachAnimated(w, e)
	if rs, ok := GetSystem[*RenderSystem](w); ok {
		rs.RegisterMesh(e)
	}
	return nil
}

// Detach unregisters the emitter. Alive particles are kept.
func (e *ParticleEmitterComponent) Detach(w *World) {
	detachAnimated(w, e)
	if rs, ok := GetSystem[*RenderSystem](w); ok {
		rs.Unregister(e)
	}
}

// Clone returns a detached copy with the same configuration and no alive
// particles.
func (e *ParticleEmitterComponent) Clone() Component {
	return &ParticleEmitterComponent{
		ComponentBase: e.cloneBase(),
		Config:        e.Config,
		Texture:       e.Texture,
		emitting:      e.emitting,
		blend:         e.blend,
		layer:         e.layer,
		order:         e.order,
	}
}

func (e *ParticleEmitterComponent) ensurePool() {
	max := e.Config.MaxParticles
	if max <= 0 {
		max = 128
	}
	if len(e.particles) != max {
		e.particles = make([]particle, max)
		e.alive = min(e.alive, max)
	}
}

// Seed makes the emitter's random choices reproducible.
func (e *ParticleEmitterComponent) Seed(seed uint64) {
	e.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Start begins emitting particles.
func (e *ParticleEmitterComponent) Start() { e.emitting = true }

// Stop stops emitting new particles. Existing particles continue to live out.
func (e *ParticleEmitterComponent) Stop() { e.emitting = false }

// Reset stops emitting and kills all alive particles.
func (e *ParticleEmitterComponent) Reset() {
	e.emitting = false
	e.alive = 0
	e.emitAccum = 0
	e.verts = e.verts[:0]
	e.inds = e.inds[:0]
}

// Emitting reports whether the emitter is currently emitting new particles.
func (e *ParticleEmitterComponent) Emitting() bool { return e.emitting }

// AliveCount returns the number of alive particles.
func (e *ParticleEmitterComponent) AliveCount() int { return e.alive }

// Burst spawns up to n particles at once, regardless of EmitRate.
func (e *ParticleEmitterComponent) Burst(n int) {
	e.ensurePool()
	e.trackWorld()
	for i := 0; i < n && e.alive < len(e.particles); i++ {
		e.spawn()
	}
	e.rebuild()
}

// Advance implements Animated: it steps the simulation by dt seconds and
// rebuilds the mesh.
func (e *ParticleEmitterComponent) Advance(dt float64) {
	e.ensurePool()
	e.trackWorld()

	gx := e.Config.Gravity.X * dt
	gy := e.Config.Gravity.Y * dt

	for i := e.alive - 1; i >= 0; i-- {
		p := &e.particles[i]
		if p.life -= dt; p.life <= 0 {
			e.alive--
			*p = e.particles[e.alive]
			continue
		}
		p.vx += gx
		p.vy += gy
		p.x += p.vx * dt
		p.y += p.vy * dt
		p.now = p.birth.lerp(p.death, float32(1-p.life/p.span))
	}

	if e.emitting && e.Config.EmitRate > 0 {
		e.emitAccum += e.Config.EmitRate * dt
		for e.emitAccum >= 1.0 {
			e.emitAccum -= 1.0
			if e.alive < len(e.particles) {
				e.spawn()
			}
		}
	}
	e.rebuild()
}

func (e *ParticleEmitterComponent) trackWorld() {
	if !e.Config.WorldSpace {
		return
	}
	m := EntityWorldMatrix(e.Entity())
	e.worldX, e.worldY = m[4], m[5]
}

func (e *ParticleEmitterComponent) random(r Range) float64 {
	if r.Min == r.Max {
		return r.Min
	}
	if e.rng != nil {
		return r.Min + e.rng.Float64()*(r.Max-r.Min)
	}
	return r.Random()
}

// spawn initializes the particle at slot e.alive and increments alive.
func (e *ParticleEmitterComponent) spawn() {
	cfg := &e.Config
	p := &e.particles[e.alive]

	angle := e.random(cfg.Angle)
	speed := e.random(cfg.Speed)
	p.vx = math.Cos(angle) * speed
	p.vy = math.Sin(angle) * speed

	if cfg.WorldSpace {
		p.x, p.y = e.worldX, e.worldY
	} else {
		p.x, p.y = 0, 0
	}

	p.life = e.random(cfg.Lifetime)
	if p.life <= 0 {
		p.life = 1
	}
	p.span = p.life

	p.birth = look{
		scale: float32(e.random(cfg.StartScale)),
		alpha: float32(e.random(cfg.StartAlpha)),
		r:     float32(cfg.StartColor.R),
		g:     float32(cfg.StartColor.G),
		b:     float32(cfg.StartColor.B),
	}
	p.death = look{
		scale: float32(e.random(cfg.EndScale)),
		alpha: float32(e.random(cfg.EndAlpha)),
		r:     float32(cfg.EndColor.R),
		g:     float32(cfg.EndColor.G),
		b:     float32(cfg.EndColor.B),
	}
	p.now = p.birth

	e.alive++
}

// quadSize returns the particle size at scale 1 and the texel size of the
// texture, if any.
func (e *ParticleEmitterComponent) quadSize() (w, h, tw, th float64) {
	if tex, ok := e.Texture.Get(); ok && tex != nil {
		tw, th = tex.Size()
	}
	w, h = e.Config.Size.X, e.Config.Size.Y
	if w <= 0 || h <= 0 {
		w, h = tw, th
	}
	if w <= 0 || h <= 0 {
		w, h = 4, 4
	}
	return w, h, tw, th
}

// rebuild writes one quad per alive particle.
func (e *ParticleEmitterComponent) rebuild() {
	w, h, tw, th := e.quadSize()
	e.verts = e.verts[:0]
	e.inds = e.inds[:0]
	for i := 0; i < e.alive; i++ {
		p := &e.particles[i]
		hw := w / 2 * float64(p.now.scale)
		hh := h / 2 * float64(p.now.scale)
		x0, y0 := float32(p.x-hw), float32(p.y-hh)
		x1, y1 := float32(p.x+hw), float32(p.y+hh)
		base := uint32(len(e.verts))
		v := Vertex{ColorR: p.now.r, ColorG: p.now.g, ColorB: p.now.b, ColorA: p.now.alpha}
		e.verts = append(e.verts,
			withCorner(v, x0, y0, 0, 0),
			withCorner(v, x1, y0, float32(tw), 0),
			withCorner(v, x0, y1, 0, float32(th)),
			withCorner(v, x1, y1, float32(tw), float32(th)),
		)
		e.inds = append(e.inds, base, base+1, base+2, base+1, base+3, base+2)
	}
}

func withCorner(v Vertex, x, y, sx, sy float32) Vertex {
	v.DstX, v.DstY = x, y
	v.SrcX, v.SrcY = sx, sy
	return v
}

// BlendMode returns the blend mode.
func (e *ParticleEmitterComponent) BlendMode() BlendMode { return e.blend }

// SetBlendMode changes the blend mode and re-sorts the emitter.
func (e *ParticleEmitterComponent) SetBlendMode(b BlendMode) {
	if e.blend == b {
		return
	}
	e.blend = b
	resortRenderData(e)
}

// Order returns the secondary sort key.
func (e *ParticleEmitterComponent) Order() int { return e.order }

// SetOrder changes the secondary sort key and re-sorts the emitter.
func (e *ParticleEmitterComponent) SetOrder(o int) {
	if e.order == o {
		return
	}
	e.order = o
	resortRenderData(e)
}

// Layer returns the render layer index.
func (e *ParticleEmitterComponent) Layer() int { return e.layer }

// SetLayer moves the emitter to another render layer.
func (e *ParticleEmitterComponent) SetLayer(l int) {
	if e.layer == l {
		return
	}
	old := e.layer
	e.layer = l
	relayerRenderData(e, old)
}

func (e *ParticleEmitterComponent) renderLayer() int { return e.layer }

// SortKey implements Sorted.
func (e *ParticleEmitterComponent) SortKey() SortKey {
	return SortKey{Blend: e.blend, Order: e.order}
}

// MeshData implements MeshRenderData. World-space emitters draw with the
// identity transform.
func (e *ParticleEmitterComponent) MeshData() Mesh {
	md := Mesh{
		Vertices:  e.verts,
		Indices:   e.inds,
		Color:     ColorWhite,
		Blend:     e.blend,
		Transform: identityTransform,
	}
	if !e.Config.WorldSpace {
		md.Transform = EntityWorldMatrix(e.Entity())
	}
	if e.Texture.IsZero() {
		return md
	}
	tex, ok := e.Texture.Get()
	if !ok {
		md.Indices = nil
		return md
	}
	md.Texture = tex
	return md
}
