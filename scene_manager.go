package lumen

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrSceneNotFound is returned for names the SceneManager does not know.
var ErrSceneNotFound = errors.New("lumen: scene not found")

// SceneManager holds the process's scenes. Any number of scenes may be
// loaded; at most one, the current scene, is started.
type SceneManager struct {
	// Installers register the Systems of scenes created through Options.
	// Nil uses DefaultSystems.
	Installers []SystemInstaller

	logger  *zap.Logger
	assets  *AssetRegistry
	render  *RenderThread
	scenes  map[string]*Scene
	order   []string
	current *Scene

	currentChanged Signal[*Scene]
}

// NewSceneManager creates an empty manager. Scenes loaded from files use
// assets and render.
func NewSceneManager(assets *AssetRegistry, render *RenderThread, logger *zap.Logger) *SceneManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SceneManager{
		logger: logger,
		assets: assets,
		render: render,
		scenes: make(map[string]*Scene),
	}
}

// Options returns SceneOptions wired to the manager's collaborators.
func (m *SceneManager) Options() SceneOptions {
	return SceneOptions{Assets: m.assets, RenderThread: m.render, Logger: m.logger, Installers: m.Installers}
}

// Add registers scene under its name. Panics if the name is taken.
func (m *SceneManager) Add(scene *Scene) {
	if _, dup := m.scenes[scene.Name]; dup {
		panic(fmt.Sprintf("lumen: scene %q already added", scene.Name))
	}
	m.scenes[scene.Name] = scene
	m.order = append(m.order, scene.Name)
}

// Get returns the scene named name.
func (m *SceneManager) Get(name string) (*Scene, bool) {
	s, ok := m.scenes[name]
	return s, ok
}

// Names returns the scene names in add order.
func (m *SceneManager) Names() []string { return m.order }

// Load loads the named scene if it is unloaded.
func (m *SceneManager) Load(name string) error {
	s, ok := m.scenes[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSceneNotFound, name)
	}
	if s.State() != SceneUnloaded {
		return nil
	}
	return s.Load()
}

// Unload stops and unloads the named scene. Unloading the current scene
// leaves no current scene.
func (m *SceneManager) Unload(name string) error {
	s, ok := m.scenes[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSceneNotFound, name)
	}
	if s == m.current {
		m.setCurrent(nil)
	}
	if s.State() == SceneStarted {
		s.Stop()
	}
	if s.State() == SceneLoaded {
		s.Unload()
	}
	return nil
}

// Remove unloads, destroys and forgets the named scene.
func (m *SceneManager) Remove(name string) error {
	if err := m.Unload(name); err != nil {
		return err
	}
	s := m.scenes[name]
	s.Destroy()
	delete(m.scenes, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// SetCurrent makes the named scene current: it is loaded if needed and
// started, and the previous current scene is stopped (it stays loaded).
func (m *SceneManager) SetCurrent(name string) error {
	s, ok := m.scenes[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSceneNotFound, name)
	}
	if s == m.current {
		return nil
	}
	if s.State() == SceneUnloaded {
		if err := s.Load(); err != nil {
			return err
		}
	}
	if prev := m.current; prev != nil && prev.State() == SceneStarted {
		prev.Stop()
	}
	if err := s.Start(); err != nil {
		m.setCurrent(nil)
		return err
	}
	m.setCurrent(s)
	m.logger.Info("scene started", zap.String("scene", name))
	return nil
}

func (m *SceneManager) setCurrent(s *Scene) {
	if m.current == s {
		return
	}
	m.current = s
	m.currentChanged.Emit(s)
}

// Current returns the current scene, or nil.
func (m *SceneManager) Current() *Scene { return m.current }

// OnCurrentChanged fires after the current scene changes.
func (m *SceneManager) OnCurrentChanged() *Signal[*Scene] { return &m.currentChanged }

// Update advances the current scene.
func (m *SceneManager) Update(dt float64) error {
	if m.current == nil {
		return nil
	}
	return m.current.Update(dt)
}

// Render draws the current scene through p.
func (m *SceneManager) Render(p *Pipeline) error {
	if m.current == nil {
		return nil
	}
	return m.current.Render(p)
}

// LoadFile decodes a scene document through the asset registry and adds the
// scene. The scene is not loaded.
func (m *SceneManager) LoadFile(path string) (*Scene, error) {
	if m.assets == nil {
		return nil, errors.New("lumen: LoadFile needs an asset registry")
	}
	ref, err := m.assets.Load(path)
	if err != nil {
		return nil, err
	}
	doc, ok := GetNamed[*SceneDocument](m.assets, ref.Name)
	if !ok {
		return nil, fmt.Errorf("lumen: %s is not a scene document", path)
	}
	s, err := doc.Instantiate(m.Options())
	if err != nil {
		return nil, err
	}
	if _, dup := m.scenes[s.Name]; dup {
		return nil, fmt.Errorf("lumen: scene %q already added", s.Name)
	}
	m.Add(s)
	return s, nil
}

// Shutdown stops and unloads every scene.
func (m *SceneManager) Shutdown() {
	m.setCurrent(nil)
	for i := len(m.order) - 1; i >= 0; i-- {
		_ = m.Unload(m.order[i])
	}
}
