package lumen

import (
	"errors"
	"fmt"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"go.uber.org/zap"
)

// ErrNoEntryScene is returned by Run when there is no scene to start.
var ErrNoEntryScene = errors.New("lumen: no entry scene")

// Run opens the window and drives the engine until the window closes. If no
// scene is current, the entry scene from the config is loaded and started
// first.
//
// Update runs the simulation and Draw drains the render thread and renders;
// Ebitengine never runs them concurrently, so the render data is never read
// while it is being written.
func Run(e *Engine) error {
	if e.Scenes.Current() == nil {
		if err := startEntryScene(e); err != nil {
			return err
		}
	}

	cfg := e.Config.Window
	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetWindowSize(cfg.Width, cfg.Height)
	if cfg.Resizable {
		ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	}
	if cfg.TPS > 0 {
		ebiten.SetTPS(cfg.TPS)
	}

	g := &game{engine: e, width: cfg.Width, height: cfg.Height}
	if err := ebiten.RunGame(g); err != nil && !errors.Is(err, ebiten.Termination) {
		return err
	}
	return nil
}

func startEntryScene(e *Engine) error {
	entry := e.Config.Scenes.Entry
	if entry == "" {
		e.Logger.Error("no entry scene configured")
		return ErrNoEntryScene
	}
	s, err := e.Scenes.LoadFile(entry)
	if err != nil {
		e.Logger.Error("entry scene failed to load", zap.String("scene", entry), zap.Error(err))
		return fmt.Errorf("%w: %s: %v", ErrNoEntryScene, entry, err)
	}
	if err := e.Scenes.SetCurrent(s.Name); err != nil {
		e.Logger.Error("entry scene failed to start", zap.String("scene", entry), zap.Error(err))
		return fmt.Errorf("%w: %s: %v", ErrNoEntryScene, entry, err)
	}
	return nil
}

// game adapts the Engine to ebiten.Game.
type game struct {
	engine        *Engine
	width, height int
	err           error
}

func (g *game) Update() error {
	if g.err != nil {
		return g.err
	}
	return g.engine.Update(1 / float64(ebiten.TPS()))
}

func (g *game) Draw(screen *ebiten.Image) {
	e := g.engine
	if err := e.Render(); err != nil {
		e.Logger.Error("render failed", zap.Error(err))
		g.err = err
		return
	}
	if fb := e.Pipeline.Framebuffer(); !fb.IsZero() {
		if err := e.API.Present(fb, screen); err != nil {
			g.err = err
			return
		}
	}
	e.flushScreenshots(screen)
	if debugMode {
		ebitenutil.DebugPrintAt(screen, fmt.Sprintf("FPS: %.1f  TPS: %.1f  draws: %d",
			ebiten.ActualFPS(), ebiten.ActualTPS(), e.Pipeline.Stats().DrawCalls), 4, 4)
	}
}

func (g *game) Layout(outsideWidth, outsideHeight int) (int, int) {
	if !g.engine.Config.Window.Resizable || outsideWidth <= 0 || outsideHeight <= 0 {
		return g.width, g.height
	}
	if outsideWidth != g.width || outsideHeight != g.height {
		g.width, g.height = outsideWidth, outsideHeight
		if err := g.engine.Pipeline.HandleEvent(WindowResizeEvent{Width: outsideWidth, Height: outsideHeight}); err != nil {
			g.engine.Logger.Error("resize failed", zap.Error(err))
		}
	}
	return g.width, g.height
}
