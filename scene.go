package lumen

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SceneState is a scene's lifecycle state.
type SceneState uint8

const (
	SceneUnloaded SceneState = iota
	SceneLoaded
	SceneStarted
	SceneDestroyed
)

var sceneStateNames = [...]string{
	SceneUnloaded:  "unloaded",
	SceneLoaded:    "loaded",
	SceneStarted:   "started",
	SceneDestroyed: "destroyed",
}

func (s SceneState) String() string {
	if int(s) < len(sceneStateNames) {
		return sceneStateNames[s]
	}
	return "unknown"
}

// LifecycleError is the panic value of an out-of-order scene lifecycle call.
type LifecycleError struct {
	Scene string
	Op    string
	State SceneState
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("lumen: scene %q: %s not allowed in state %s", e.Scene, e.Op, e.State)
}

// SceneOptions configures a Scene.
type SceneOptions struct {
	// Assets resolves asset links of deserialized components.
	Assets *AssetRegistry
	// RenderThread receives GPU releases at Unload. Nil releases inline.
	RenderThread *RenderThread
	Logger       *zap.Logger
	// Installers register the scene's Systems at Load. Nil uses
	// DefaultSystems.
	Installers []SystemInstaller
}

// DefaultSystems returns the installers for the TransformSystem, the
// TweenSystem, the AnimationSystem and the RenderSystem, in that order.
func DefaultSystems() []SystemInstaller {
	return []SystemInstaller{
		func(w *World) error {
			_, err := RegisterSystem(w, NewTransformSystem())
			return err
		},
		func(w *World) error {
			_, err := RegisterSystem(w, NewTweenSystem())
			return err
		},
		func(w *World) error {
			_, err := RegisterSystem(w, NewAnimationSystem())
			return err
		},
		func(w *World) error {
			var data *SceneRenderData
			if s := w.Scene(); s != nil {
				data = s.renderData
			}
			_, err := RegisterSystem(w, NewRenderSystem(data))
			return err
		},
	}
}

// Scene owns a set of entities and, while loaded, the World their components
// attach to.
type Scene struct {
	Name string

	state      SceneState
	logger     *zap.Logger
	assets     *AssetRegistry
	render     *RenderThread
	installers []SystemInstaller

	entities   []*Entity
	world      *World
	renderData *SceneRenderData

	hierarchyChanged Signal[*Entity]
}

// NewScene creates an unloaded, empty scene.
func NewScene(name string, opts SceneOptions) *Scene {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	installers := opts.Installers
	if installers == nil {
		installers = DefaultSystems()
	}
	return &Scene{
		Name:       name,
		logger:     logger.Named("scene").With(zap.String("scene", name)),
		assets:     opts.Assets,
		render:     opts.RenderThread,
		installers: installers,
	}
}

// State returns the lifecycle state.
func (s *Scene) State() SceneState { return s.state }

// Assets returns the registry used to resolve asset links, or nil.
func (s *Scene) Assets() *AssetRegistry { return s.assets }

// Logger returns the scene's logger.
func (s *Scene) Logger() *zap.Logger { return s.logger }

// World returns the World, or nil when the scene is not loaded.
func (s *Scene) World() *World { return s.world }

// RenderData returns the render lists, or nil when the scene is not loaded.
func (s *Scene) RenderData() *SceneRenderData { return s.renderData }

// HierarchyChanged fires after any entity in the scene is re-parented or
// reordered among its siblings.
func (s *Scene) HierarchyChanged() *Signal[*Entity] { return &s.hierarchyChanged }

func (s *Scene) require(op string, states ...SceneState) {
	for _, st := range states {
		if s.state == st {
			return
		}
	}
	panic(&LifecycleError{Scene: s.Name, Op: op, State: s.state})
}

// --- Lifecycle ---

// Load creates the World, installs the Systems and attaches every entity's
// components, parents before children. On error the scene is unwound back to
// Unloaded.
func (s *Scene) Load() error {
	s.require("Load", SceneUnloaded)
	s.renderData = NewSceneRenderData()
	s.world = newWorld(s, s.logger)
	if err := s.world.Init(s.installers...); err != nil {
		s.unwind()
		return err
	}
	for _, e := range s.attachOrder() {
		if err := e.attachAll(s.world); err != nil {
			s.unwind()
			return fmt.Errorf("lumen: load scene %q: entity %q: %w", s.Name, e.Name, err)
		}
	}
	s.state = SceneLoaded
	s.logger.Debug("scene loaded", zap.Int("entities", len(s.entities)), zap.Int("systems", len(s.world.systems)))
	return nil
}

// unwind detaches whatever attached and shuts the World down.
func (s *Scene) unwind() {
	order := s.attachOrder()
	for i := len(order) - 1; i >= 0; i-- {
		order[i].detachAll()
	}
	s.world.Shutdown()
	s.releaseRenderData()
	s.world = nil
	s.state = SceneUnloaded
}

// attachOrder lists the entities depth-first, roots in scene order.
func (s *Scene) attachOrder() []*Entity {
	out := make([]*Entity, 0, len(s.entities))
	var walk func(e *Entity)
	walk = func(e *Entity) {
		out = append(out, e)
		for _, c := range e.children {
			walk(c)
		}
	}
	for _, e := range s.entities {
		if e.parent == nil {
			walk(e)
		}
	}
	return out
}

// Start notifies the StartSystems.
func (s *Scene) Start() error {
	s.require("Start", SceneLoaded)
	if err := s.world.start(); err != nil {
		return err
	}
	s.state = SceneStarted
	return nil
}

// Update advances every UpdateSystem by dt seconds.
func (s *Scene) Update(dt float64) error {
	s.require("Update", SceneStarted)
	return s.world.Update(dt)
}

// Render draws the scene's render data through p. Must run on the render
// thread.
func (s *Scene) Render(p *Pipeline) error {
	s.require("Render", SceneStarted)
	return p.Render(s.renderData.Snapshot())
}

// Stop notifies the StopSystems.
func (s *Scene) Stop() {
	s.require("Stop", SceneStarted)
	s.world.stop()
	s.state = SceneLoaded
}

// Unload detaches every entity in reverse attach order, shuts the World down
// and drops the render data. The entities stay in the scene.
func (s *Scene) Unload() {
	s.require("Unload", SceneLoaded)
	s.unwind()
	s.logger.Debug("scene unloaded")
}

// releaseRenderData hands the Renderables' GPU resources to the render
// thread and empties the lists.
func (s *Scene) releaseRenderData() {
	data := s.renderData
	s.renderData = nil
	if data == nil {
		return
	}
	var rel []interface{ Release() }
	for _, l := range data.Layers() {
		for _, b := range l.Bindings {
			if r, ok := b.Renderable.(interface{ Release() }); ok {
				rel = append(rel, r)
			}
		}
	}
	data.clear()
	if len(rel) == 0 {
		return
	}
	release := func() {
		for _, r := range rel {
			r.Release()
		}
	}
	if s.render != nil {
		s.render.Execute(release)
	} else {
		release()
	}
}

// Destroy disposes every entity. The scene cannot be used afterwards.
func (s *Scene) Destroy() {
	s.require("Destroy", SceneUnloaded)
	for i := len(s.entities) - 1; i >= 0; i-- {
		s.entities[i].dispose()
	}
	s.entities = nil
	s.hierarchyChanged.Clear()
	s.state = SceneDestroyed
}

// --- Entities ---

// CreateEntity creates an entity with a TransformComponent and adds it to
// the scene.
func (s *Scene) CreateEntity(name string) *Entity {
	e := s.CreateEmptyEntity(name)
	if err := e.AddComponent(NewTransform()); err != nil {
		s.logger.Error("add transform failed", zap.String("entity", name), zap.Error(err))
	}
	return e
}

// CreateEmptyEntity creates an entity without components and adds it to the
// scene.
func (s *Scene) CreateEmptyEntity(name string) *Entity {
	if s.state == SceneDestroyed {
		panic(&LifecycleError{Scene: s.Name, Op: "CreateEntity", State: s.state})
	}
	e := newEntity(s, name)
	e.inScene = true
	s.entities = append(s.entities, e)
	return e
}

// NewEntity creates an entity for this scene without adding it. Use
// AddEntity once its components and children are in place.
func (s *Scene) NewEntity(name string) *Entity { return newEntity(s, name) }

// AddEntity adds e and its subtree to the scene. When the scene is loaded the
// components attach immediately, parents first. Panics if e was created for
// another scene or if e or any descendant is already in this one.
func (s *Scene) AddEntity(e *Entity) error {
	if s.state == SceneDestroyed {
		panic(&LifecycleError{Scene: s.Name, Op: "AddEntity", State: s.state})
	}
	if e.scene != s {
		panic("lumen: entity belongs to another scene")
	}
	if e.parent != nil && !e.parent.inScene {
		panic(fmt.Sprintf("lumen: parent of entity %q is not in the scene", e.Name))
	}
	var check func(n *Entity)
	check = func(n *Entity) {
		if n.inScene {
			panic(fmt.Sprintf("lumen: entity %q is already in the scene", n.Name))
		}
		for _, c := range n.children {
			check(c)
		}
	}
	check(e)
	var added []*Entity
	var walk func(n *Entity)
	walk = func(n *Entity) {
		n.inScene = true
		s.entities = append(s.entities, n)
		added = append(added, n)
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(e)
	if e.parent != nil {
		s.hierarchyChanged.Emit(e)
	}
	if w := s.world; w != nil && w.Live() {
		for _, n := range added {
			if err := n.attachAll(w); err != nil {
				return fmt.Errorf("lumen: add entity %q: %w", n.Name, err)
			}
		}
	}
	return nil
}

// DestroyEntity destroys e and its subtree: children first, components in
// reverse add order.
func (s *Scene) DestroyEntity(e *Entity) {
	if e.scene != s || !e.inScene {
		return
	}
	for i := len(e.children) - 1; i >= 0; i-- {
		s.DestroyEntity(e.children[i])
	}
	e.detachAll()
	if p := e.parent; p != nil {
		p.removeChildByPtr(e)
	}
	s.removeEntity(e)
	e.dispose()
}

func (s *Scene) removeEntity(e *Entity) {
	for i, x := range s.entities {
		if x == e {
			copy(s.entities[i:], s.entities[i+1:])
			s.entities[len(s.entities)-1] = nil
			s.entities = s.entities[:len(s.entities)-1]
			return
		}
	}
}

// Entities returns every entity in add order. The returned slice MUST NOT be
// mutated by the caller.
func (s *Scene) Entities() []*Entity { return s.entities }

// RootEntities returns the entities without a parent, in add order.
func (s *Scene) RootEntities() []*Entity {
	var out []*Entity
	for _, e := range s.entities {
		if e.parent == nil {
			out = append(out, e)
		}
	}
	return out
}

// FindEntity returns the entity with the given id.
func (s *Scene) FindEntity(id uuid.UUID) (*Entity, bool) {
	for _, e := range s.entities {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}

// FindEntityByName returns the first entity named name.
func (s *Scene) FindEntityByName(name string) (*Entity, bool) {
	for _, e := range s.entities {
		if e.Name == name {
			return e, true
		}
	}
	return nil, false
}
