package lumen

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Pass is one stage of the render pipeline. A pass that declares categories
// runs once per layer holding data in at least one of them; a pass with no
// categories runs once per frame.
type Pass interface {
	Name() string
	Categories() []RenderCategory
	Execute(pc *PassContext) error
}

// Resizer is implemented by passes that own size-dependent targets.
type Resizer interface {
	Resize(api RendererAPI, width, height int) error
}

// Releaser is implemented by passes that own GPU resources.
type Releaser interface {
	Release(api RendererAPI)
}

// PassContext is what a Pass receives for one execution. It is valid only for
// the duration of Execute.
type PassContext struct {
	API         RendererAPI
	Framebuffer Handle
	Width       int
	Height      int
	// Layer is nil for frame-level passes.
	Layer  *SceneLayerRenderData
	Camera *CameraComponent
	Stats  *FrameStats
}

// Viewport returns the pixel rectangle the layer's camera draws into.
func (pc *PassContext) Viewport() Rect {
	full := Rect{Width: float64(pc.Width), Height: float64(pc.Height)}
	if pc.Camera == nil {
		return full
	}
	return pc.Camera.viewportIn(full)
}

// RenderContext returns the context handed to Renderables by this pass.
func (pc *PassContext) RenderContext() RenderContext {
	return RenderContext{
		API:         pc.API,
		Camera:      pc.Camera,
		Framebuffer: pc.Framebuffer,
		Viewport:    pc.Viewport(),
		Stats:       pc.Stats,
	}
}

// DrawBinding runs the layer's Renderable for category c over its list.
// End is always called once Begin succeeded.
func (pc *PassContext) DrawBinding(c RenderCategory) error {
	if pc.Layer == nil {
		return nil
	}
	b, ok := pc.Layer.Binding(c)
	if !ok || b.List.Len() == 0 {
		return nil
	}
	return drawBinding(b, pc.RenderContext())
}

func drawBinding(b RenderBinding, ctx RenderContext) error {
	if err := b.Renderable.Begin(ctx); err != nil {
		return err
	}
	err := b.List.Each(b.Renderable.Draw)
	if endErr := b.Renderable.End(); err == nil {
		err = endErr
	}
	return err
}

// WindowResizeEvent reports a new window or layer size in pixels.
type WindowResizeEvent struct {
	Width, Height int
}

// Pipeline runs an ordered list of passes over one framebuffer. All methods
// must be called on the render thread.
type Pipeline struct {
	api    RendererAPI
	logger *zap.Logger

	fb     Handle
	width  int
	height int

	passes []Pass

	rendering     bool
	pendingResize *WindowResizeEvent

	stats   FrameStats
	timings frameTimings
}

// NewPipeline creates a pipeline drawing into a width×height framebuffer. The
// framebuffer is created on the first Render.
func NewPipeline(api RendererAPI, width, height int, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{api: api, logger: logger.Named("pipeline"), width: width, height: height}
}

// API returns the backend.
func (p *Pipeline) API() RendererAPI { return p.api }

// Framebuffer returns the framebuffer handle. Zero before the first Render.
func (p *Pipeline) Framebuffer() Handle { return p.fb }

// Size returns the framebuffer's logical size.
func (p *Pipeline) Size() (width, height int) { return p.width, p.height }

// Stats returns the counters of the last frame.
func (p *Pipeline) Stats() FrameStats { return p.stats }

// RegisterPass appends pass. Passes run in registration order.
func (p *Pipeline) RegisterPass(pass Pass) {
	if p.rendering {
		panic("lumen: RegisterPass during Render")
	}
	p.passes = append(p.passes, pass)
	if r, ok := pass.(Resizer); ok && !p.fb.IsZero() {
		if err := r.Resize(p.api, p.width, p.height); err != nil {
			p.logger.Error("pass resize failed", zap.String("pass", pass.Name()), zap.Error(err))
		}
	}
}

// Passes returns the passes in order. The returned slice MUST NOT be mutated
// by the caller.
func (p *Pipeline) Passes() []Pass { return p.passes }

// HandleEvent reacts to host events. Only WindowResizeEvent is handled.
func (p *Pipeline) HandleEvent(ev any) error {
	switch e := ev.(type) {
	case WindowResizeEvent:
		return p.Resize(e.Width, e.Height)
	case *WindowResizeEvent:
		return p.Resize(e.Width, e.Height)
	}
	return nil
}

// Resize changes the framebuffer size and resizes every Resizer pass. During
// Render the resize is deferred until the frame completes.
func (p *Pipeline) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("lumen: invalid pipeline size %dx%d", width, height)
	}
	if p.rendering {
		p.pendingResize = &WindowResizeEvent{Width: width, Height: height}
		return nil
	}
	if width == p.width && height == p.height {
		return nil
	}
	p.width, p.height = width, height
	if p.fb.IsZero() {
		return nil
	}
	return p.applySize()
}

func (p *Pipeline) applySize() error {
	if err := p.api.ResizeFramebuffer(p.fb, p.width, p.height); err != nil {
		return fmt.Errorf("lumen: resize framebuffer: %w", err)
	}
	for _, pass := range p.passes {
		if r, ok := pass.(Resizer); ok {
			if err := r.Resize(p.api, p.width, p.height); err != nil {
				return fmt.Errorf("lumen: resize pass %s: %w", pass.Name(), err)
			}
		}
	}
	p.logger.Debug("pipeline resized", zap.Int("width", p.width), zap.Int("height", p.height))
	return nil
}

// ensureFramebuffer creates the framebuffer on first use.
func (p *Pipeline) ensureFramebuffer() error {
	if !p.fb.IsZero() {
		return nil
	}
	fb, err := p.api.CreateFramebuffer(p.width, p.height)
	if err != nil {
		return fmt.Errorf("lumen: create framebuffer: %w", err)
	}
	p.fb = fb
	for _, pass := range p.passes {
		if r, ok := pass.(Resizer); ok {
			if err := r.Resize(p.api, p.width, p.height); err != nil {
				return fmt.Errorf("lumen: resize pass %s: %w", pass.Name(), err)
			}
		}
	}
	return nil
}

// Render runs every pass over the snapshot. The first pass error aborts the
// frame and is returned wrapped with the pass name; the bind state is restored
// either way.
func (p *Pipeline) Render(snap RenderSnapshot) (err error) {
	if p.rendering {
		panic("lumen: Pipeline.Render re-entered")
	}
	if err := p.ensureFramebuffer(); err != nil {
		return err
	}
	p.rendering = true
	p.stats.Reset()
	p.timings.reset()
	defer func() {
		p.rendering = false
		if ev := p.pendingResize; ev != nil {
			p.pendingResize = nil
			if rerr := p.Resize(ev.Width, ev.Height); rerr != nil && err == nil {
				err = rerr
			}
		}
	}()

	for _, pass := range p.passes {
		start := time.Now()
		if err := p.runPass(pass, snap); err != nil {
			p.logger.Debug("pass failed", zap.String("pass", pass.Name()), zap.Error(err))
			return fmt.Errorf("lumen: pass %s: %w", pass.Name(), err)
		}
		if debugMode {
			p.timings.add(pass.Name(), time.Since(start))
		}
	}
	logFrame(p.logger, p.stats, &p.timings)
	return nil
}

// runPass executes pass once, or once per matching layer.
func (p *Pipeline) runPass(pass Pass, snap RenderSnapshot) error {
	cats := pass.Categories()
	if len(cats) == 0 {
		return p.execute(pass, nil)
	}
	for _, layer := range snap.Layers {
		if !layerHasData(layer, cats) {
			continue
		}
		if err := p.execute(pass, layer); err != nil {
			return err
		}
	}
	return nil
}

func layerHasData(l *SceneLayerRenderData, cats []RenderCategory) bool {
	for _, c := range cats {
		if list := l.List(c); list != nil && list.Len() > 0 {
			return true
		}
	}
	return false
}

// execute binds the framebuffer, runs the pass and restores the known state.
func (p *Pipeline) execute(pass Pass, layer *SceneLayerRenderData) error {
	defer p.restoreState()
	if err := p.api.BindFramebuffer(p.fb); err != nil {
		return err
	}
	pc := PassContext{
		API:         p.api,
		Framebuffer: p.fb,
		Width:       p.width,
		Height:      p.height,
		Layer:       layer,
		Stats:       &p.stats,
	}
	if layer != nil {
		pc.Camera = layer.Camera
	}
	p.api.SetViewport(pc.Viewport())
	p.stats.Passes++
	return pass.Execute(&pc)
}

// restoreState returns the backend to the state every pass starts from:
// nothing bound, full viewport, normal blending.
func (p *Pipeline) restoreState() {
	p.api.Unbind()
	p.api.UnbindFramebuffer()
	p.api.SetViewport(Rect{Width: float64(p.width), Height: float64(p.height)})
	p.api.SetBlendFunc(BlendNormal)
	p.api.SetDepthFunc(DepthAlways)
}

// Release destroys the framebuffer and every pass's resources.
func (p *Pipeline) Release() {
	for _, pass := range p.passes {
		if r, ok := pass.(Releaser); ok {
			r.Release(p.api)
		}
	}
	if !p.fb.IsZero() {
		_ = p.api.DestroyFramebuffer(p.fb)
		p.fb = Handle{}
	}
}
