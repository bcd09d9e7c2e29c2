package lumen

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Layer is an application hook driven by the Engine every tick, before the
// current scene updates. Editors and debug tools are layers.
type Layer interface {
	Attach(e *Engine) error
	Update(dt float64) error
	Detach()
}

// Engine is the process-scoped context: it owns the services every scene
// shares and is passed explicitly wherever they are needed.
type Engine struct {
	Config       *Config
	Logger       *zap.Logger
	Assets       *AssetRegistry
	RenderThread *RenderThread
	Scenes       *SceneManager
	API          *EbitenRendererAPI
	Pipeline     *Pipeline

	layers      []Layer
	watcher     *AssetWatcher
	screenshots []string
	closed      bool
}

// NewEngine builds the services described by cfg. A nil cfg uses
// DefaultConfig.
func NewEngine(cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("lumen: config: %w", err)
	}
	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("lumen: logger: %w", err)
	}
	SetDebugMode(cfg.Debug, logger)

	clear, _ := ParseHexColor(cfg.Render.ClearColor)
	rt := NewRenderThread(logger)
	assets := NewAssetRegistry(logger, cfg.Assets.Roots...)
	assets.SetRenderThread(rt)
	api := NewEbitenRendererAPI(logger)
	pipeline := NewPipeline(api, cfg.Window.Width, cfg.Window.Height, logger)
	for _, pass := range DefaultPasses(clear, cfg.Render.Ambient) {
		pipeline.RegisterPass(pass)
	}

	e := &Engine{
		Config:       cfg,
		Logger:       logger,
		Assets:       assets,
		RenderThread: rt,
		Scenes:       NewSceneManager(assets, rt, logger),
		API:          api,
		Pipeline:     pipeline,
	}
	if cfg.Assets.HotReload {
		w, err := NewAssetWatcher(assets, rt, logger)
		if err != nil {
			logger.Warn("asset hot reload disabled", zap.Error(err))
		} else {
			e.watcher = w
		}
	}
	logger.Info("engine created",
		zap.Int("width", cfg.Window.Width),
		zap.Int("height", cfg.Window.Height),
		zap.Bool("debug", cfg.Debug))
	return e, nil
}

// NewScene creates a scene wired to the engine's services and adds it to the
// SceneManager.
func (e *Engine) NewScene(name string) *Scene {
	s := NewScene(name, e.Scenes.Options())
	e.Scenes.Add(s)
	return s
}

// PushLayer attaches l and runs it every tick from then on.
func (e *Engine) PushLayer(l Layer) error {
	if err := l.Attach(e); err != nil {
		return fmt.Errorf("lumen: attach layer %T: %w", l, err)
	}
	e.layers = append(e.layers, l)
	return nil
}

// Layers returns the attached layers in push order. The returned slice MUST
// NOT be mutated by the caller.
func (e *Engine) Layers() []Layer { return e.layers }

// Update runs the layers, then the current scene.
func (e *Engine) Update(dt float64) error {
	for _, l := range e.layers {
		if err := l.Update(dt); err != nil {
			return fmt.Errorf("lumen: layer %T: %w", l, err)
		}
	}
	return e.Scenes.Update(dt)
}

// Render drains the render thread and draws the current scene. Must run on
// the render thread.
func (e *Engine) Render() error {
	e.RenderThread.Drain()
	return e.Scenes.Render(e.Pipeline)
}

// Close detaches the layers, unloads every scene and releases GPU
// resources.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	var errs []error
	for i := len(e.layers) - 1; i >= 0; i-- {
		e.layers[i].Detach()
	}
	e.layers = nil
	if e.watcher != nil {
		errs = append(errs, e.watcher.Close())
	}
	e.Scenes.Shutdown()
	e.RenderThread.Drain()
	e.Pipeline.Release()
	_ = e.Logger.Sync()
	return errors.Join(errs...)
}
