// Package editor provides the authoring actions a scene editor needs: scene
// import and export, and entity copy/paste through the system clipboard.
//
// Actions never panic. A failure is logged with full detail and reported to
// the user through Dialog with a generic message.
package editor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"go.uber.org/zap"

	"github.com/phanxgames/lumen"
)

var (
	// ErrActionPanicked wraps a panic recovered from an editor action.
	ErrActionPanicked = errors.New("editor: action panicked")
	// ErrNoSelection is returned by actions that need a selected entity.
	ErrNoSelection = errors.New("editor: nothing selected")
	// ErrNoScene is returned when there is no scene to paste into.
	ErrNoScene = errors.New("editor: no current scene")
)

// Dialog reports errors to the user.
type Dialog interface {
	ShowError(title, message string)
}

// Editor runs authoring actions against an Engine. It is also a lumen.Layer:
// pushed onto the engine, it handles the copy and paste shortcuts.
type Editor struct {
	Engine    *lumen.Engine
	Dialog    Dialog
	Clipboard Clipboard

	logger   *zap.Logger
	selected *lumen.Entity
}

// New creates an editor using the system clipboard.
func New(engine *lumen.Engine, dialog Dialog) *Editor {
	ed := &Editor{Engine: engine, Dialog: dialog, Clipboard: SystemClipboard()}
	ed.setLogger()
	return ed
}

func (ed *Editor) setLogger() {
	logger := zap.NewNop()
	if ed.Engine != nil && ed.Engine.Logger != nil {
		logger = ed.Engine.Logger
	}
	ed.logger = logger.Named("editor")
}

// Select makes e the target of CopyEntity shortcuts. Nil clears it.
func (ed *Editor) Select(e *lumen.Entity) { ed.selected = e }

// Selected returns the selected entity, or nil.
func (ed *Editor) Selected() *lumen.Entity {
	if ed.selected != nil && ed.selected.IsDisposed() {
		ed.selected = nil
	}
	return ed.selected
}

// ImportScene reads a scene file and adds the scene, unloaded, to the
// engine's SceneManager.
func (ed *Editor) ImportScene(path string) (*lumen.Scene, error) {
	var scene *lumen.Scene
	err := ed.do("import scene", func() error {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		s, err := lumen.DecodeScene(data, ed.Engine.Scenes.Options())
		if err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		if _, dup := ed.Engine.Scenes.Get(s.Name); dup {
			s.Destroy()
			return fmt.Errorf("scene %q already exists", s.Name)
		}
		ed.Engine.Scenes.Add(s)
		scene = s
		ed.logger.Info("scene imported", zap.String("scene", s.Name), zap.String("path", path))
		return nil
	})
	return scene, err
}

// ExportScene writes the scene called name to path, creating parent
// directories as needed.
func (ed *Editor) ExportScene(name, path string) error {
	return ed.do("export scene", func() error {
		s, ok := ed.Engine.Scenes.Get(name)
		if !ok {
			return fmt.Errorf("%w: %s", lumen.ErrSceneNotFound, name)
		}
		data, err := lumen.EncodeScene(s)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
		ed.logger.Info("scene exported", zap.String("scene", name), zap.String("path", path))
		return nil
	})
}

// CopyEntity puts e and its subtree on the clipboard.
func (ed *Editor) CopyEntity(e *lumen.Entity) error {
	return ed.do("copy entity", func() error {
		if e == nil || e.IsDisposed() {
			return ErrNoSelection
		}
		data, err := lumen.EncodeEntities(e)
		if err != nil {
			return err
		}
		return ed.Clipboard.WriteText(data)
	})
}

// PasteEntity decodes the clipboard into scene with fresh ids and returns
// the pasted roots.
func (ed *Editor) PasteEntity(scene *lumen.Scene) ([]*lumen.Entity, error) {
	var roots []*lumen.Entity
	err := ed.do("paste entity", func() error {
		if scene == nil {
			return ErrNoScene
		}
		data, err := ed.Clipboard.ReadText()
		if err != nil {
			return err
		}
		roots, err = lumen.DecodeEntities(scene, data, true)
		return err
	})
	return roots, err
}

// do runs action, turning panics into errors. Failures are logged and shown
// to the user.
func (ed *Editor) do(action string, fn func() error) (err error) {
	if ed.logger == nil {
		ed.setLogger()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrActionPanicked, r)
			ed.logger.Error("editor action panicked",
				zap.String("action", action),
				zap.Any("panic", r),
				zap.Stack("stack"))
			ed.showError(action)
		}
	}()
	if err = fn(); err != nil {
		ed.logger.Error("editor action failed", zap.String("action", action), zap.Error(err))
		ed.showError(action)
	}
	return err
}

// LogDialog reports errors through a logger, for hosts without native
// dialogs.
type LogDialog struct {
	Logger *zap.Logger
}

func (d LogDialog) ShowError(title, message string) {
	if d.Logger != nil {
		d.Logger.Warn(message, zap.String("title", title))
	}
}

func (ed *Editor) showError(action string) {
	if ed.Dialog == nil {
		return
	}
	ed.Dialog.ShowError("Error", fmt.Sprintf("Could not %s. See the log for details.", action))
}

// Attach implements lumen.Layer.
func (ed *Editor) Attach(e *lumen.Engine) error {
	ed.Engine = e
	ed.setLogger()
	if ed.Clipboard == nil {
		ed.Clipboard = SystemClipboard()
	}
	return nil
}

// Picker finds the entity under a world point. physics.System is one.
type Picker interface {
	QueryPoint(x, y float64) (*lumen.Entity, bool)
}

// PickAt selects the entity under the screen point (sx, sy) of scene's
// primary camera. Returns nil when nothing is there or the scene has no
// Picker.
func (ed *Editor) PickAt(scene *lumen.Scene, sx, sy float64) *lumen.Entity {
	if scene == nil || scene.World() == nil {
		return nil
	}
	picker, ok := lumen.GetSystem[Picker](scene.World())
	if !ok {
		return nil
	}
	wx, wy := sx, sy
	if rs, ok := lumen.GetSystem[*lumen.RenderSystem](scene.World()); ok {
		if cam := rs.PrimaryCamera(); cam != nil {
			wx, wy = cam.ScreenToWorld(sx, sy)
		}
	}
	e, _ := picker.QueryPoint(wx, wy)
	ed.selected = e
	return e
}

// Update implements lumen.Layer: a left click selects, Ctrl+C copies the
// selection and Ctrl+V pastes into the current scene.
func (ed *Editor) Update(float64) error {
	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		x, y := ebiten.CursorPosition()
		ed.PickAt(ed.Engine.Scenes.Current(), float64(x), float64(y))
	}
	if !ebiten.IsKeyPressed(ebiten.KeyControl) && !ebiten.IsKeyPressed(ebiten.KeyMeta) {
		return nil
	}
	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeyC):
		if sel := ed.Selected(); sel != nil {
			_ = ed.CopyEntity(sel)
		}
	case inpututil.IsKeyJustPressed(ebiten.KeyV):
		if roots, err := ed.PasteEntity(ed.Engine.Scenes.Current()); err == nil && len(roots) > 0 {
			ed.selected = roots[0]
		}
	}
	return nil
}

// Detach implements lumen.Layer.
func (ed *Editor) Detach() { ed.selected = nil }
