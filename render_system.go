package lumen

import (
	"fmt"

	"github.com/kamstrup/intmap"
	"go.uber.org/zap"
)

// renderComponent is a component that contributes render data to a layer.
type renderComponent interface {
	Component
	renderLayer() int
}

type renderEntry struct {
	comp     renderComponent
	category RenderCategory
	layer    int
	listed   bool
	sub      Subscription
}

// RenderSystem keeps each layer's render data lists in sync with component
// activity and tracks the scene's cameras.
type RenderSystem struct {
	world  *World
	logger *zap.Logger
	data   *SceneRenderData

	entries *intmap.Map[uint64, *renderEntry]

	cameras        []*CameraComponent
	primary        *CameraComponent
	assigning      bool
	primaryChanged Signal[*CameraComponent]
}

// NewRenderSystem creates a RenderSystem writing into data. A nil data gets a
// fresh SceneRenderData.
func NewRenderSystem(data *SceneRenderData) *RenderSystem {
	if data == nil {
		data = NewSceneRenderData()
	}
	return &RenderSystem{
		data:    data,
		entries: intmap.New[uint64, *renderEntry](128),
	}
}

// Init binds the system to the World.
func (s *RenderSystem) Init(w *World) error {
	s.world = w
	s.logger = w.Logger().Named("render")
	return nil
}

// Shutdown drops every registration. Components are detached before the
// World shuts down, so anything left here is logged.
func (s *RenderSystem) Shutdown(*World) {
	if n := s.entries.Len(); n > 0 {
		s.logger.Warn("render system shut down with registered components", zap.Int("count", n))
	}
	s.entries.ForEach(func(_ uint64, e *renderEntry) bool {
		e.sub.Unsubscribe()
		return true
	})
	s.entries.Clear()
	s.cameras = nil
	s.primary = nil
	s.primaryChanged.Clear()
	s.world = nil
}

// RenderData returns the lists this system maintains.
func (s *RenderSystem) RenderData() *SceneRenderData { return s.data }

// Update advances camera animation and assigns layer cameras.
func (s *RenderSystem) Update(dt float64) error {
	for _, c := range s.cameras {
		c.update(dt)
	}
	s.SyncLayerCameras()
	return nil
}

// SyncLayerCameras assigns each layer its camera: the first active camera
// registered for that layer, else the primary while it is active.
func (s *RenderSystem) SyncLayerCameras() {
	for _, c := range s.cameras {
		s.data.Layer(c.Layer)
	}
	for _, l := range s.data.Layers() {
		l.Camera = s.cameraForLayer(l.Index)
	}
}

func (s *RenderSystem) cameraForLayer(layer int) *CameraComponent {
	if layer != 0 {
		for _, c := range s.cameras {
			if c.Layer == layer && c.Active() {
				return c
			}
		}
	}
	return s.PrimaryCamera()
}

// --- Render data registration ---

// RegisterSprite registers a sprite renderer.
func (s *RenderSystem) RegisterSprite(c *SpriteRendererComponent) { s.register(c, CategorySprite) }

// RegisterUI registers a screen-space image.
func (s *RenderSystem) RegisterUI(c *UIImageComponent) { s.register(c, CategoryUI) }

// RegisterMesh registers a mesh renderer, particle emitter or tile map.
func (s *RenderSystem) RegisterMesh(c MeshRenderData) {
	rc, ok := c.(renderComponent)
	if !ok {
		panic(fmt.Sprintf("lumen: %T is not a mesh component", c))
	}
	s.register(rc, CategoryMesh)
}

// RegisterText registers a text renderer.
func (s *RenderSystem) RegisterText(c *TextRendererComponent) { s.register(c, CategoryText) }

// RegisterLine registers a line renderer.
func (s *RenderSystem) RegisterLine(c *LineRendererComponent) { s.register(c, CategoryLine) }

// RegisterLight registers a point or spot light.
func (s *RenderSystem) RegisterLight(c LightRenderData) {
	rc, ok := c.(renderComponent)
	if !ok {
		panic(fmt.Sprintf("lumen: %T is not a light component", c))
	}
	s.register(rc, CategoryLight)
}

// register subscribes to the component's activity and lists it if active.
// Panics on double registration.
func (s *RenderSystem) register(c renderComponent, cat RenderCategory) {
	key := c.Serial()
	if _, dup := s.entries.Get(key); dup {
		panic(fmt.Sprintf("lumen: %T registered twice with RenderSystem", c))
	}
	e := &renderEntry{comp: c, category: cat, layer: c.renderLayer()}
	e.sub = c.OnEnabledChanged().Subscribe(func(Component) { s.refresh(e) })
	s.entries.Put(key, e)
	s.refresh(e)
}

// Unregister removes a component registered under any category. Unknown
// components are ignored.
func (s *RenderSystem) Unregister(c Component) {
	key := c.Serial()
	e, ok := s.entries.Get(key)
	if !ok {
		return
	}
	if e.listed {
		s.list(e).Remove(e.comp)
		e.listed = false
	}
	e.sub.Unsubscribe()
	s.entries.Del(key)
}

// Registered reports whether c is registered.
func (s *RenderSystem) Registered(c Component) bool {
	_, ok := s.entries.Get(c.Serial())
	return ok
}

// Count returns the number of registered render components.
func (s *RenderSystem) Count() int { return s.entries.Len() }

func (s *RenderSystem) list(e *renderEntry) *RenderDataList {
	return s.data.Layer(e.layer).List(e.category)
}

// refresh brings the entry's list membership in line with its activity.
func (s *RenderSystem) refresh(e *renderEntry) {
	active := e.comp.Active()
	switch {
	case active && !e.listed:
		s.list(e).Insert(e.comp)
		e.listed = true
	case !active && e.listed:
		s.list(e).Remove(e.comp)
		e.listed = false
	}
}

// resort repositions c after a sort key change.
func (s *RenderSystem) resort(c Component) {
	if e, ok := s.entries.Get(c.Serial()); ok && e.listed {
		s.list(e).Reposition(e.comp)
	}
}

// relayer moves c to the layer it now reports.
func (s *RenderSystem) relayer(c Component) {
	e, ok := s.entries.Get(c.Serial())
	if !ok {
		return
	}
	if e.listed {
		s.list(e).Remove(e.comp)
		e.listed = false
	}
	e.layer = e.comp.renderLayer()
	s.refresh(e)
}

func resortRenderData(c Component) {
	if w := c.base().world; w != nil {
		if rs, ok := GetSystem[*RenderSystem](w); ok {
			rs.resort(c)
		}
	}
}

func relayerRenderData(c Component, _ int) {
	if w := c.base().world; w != nil {
		if rs, ok := GetSystem[*RenderSystem](w); ok {
			rs.relayer(c)
		}
	}
}

// --- Cameras ---

// RegisterCamera adds a camera. A camera flagged primary becomes the primary.
func (s *RenderSystem) RegisterCamera(c *CameraComponent) {
	for _, existing := range s.cameras {
		if existing == c {
			panic("lumen: camera registered twice with RenderSystem")
		}
	}
	s.cameras = append(s.cameras, c)
	s.data.Layer(c.Layer)
	if c.primary {
		s.SetPrimary(c)
	}
}

// UnregisterCamera removes a camera. Removing the primary clears it and
// notifies with nil.
func (s *RenderSystem) UnregisterCamera(c *CameraComponent) {
	for i, existing := range s.cameras {
		if existing == c {
			copy(s.cameras[i:], s.cameras[i+1:])
			s.cameras[len(s.cameras)-1] = nil
			s.cameras = s.cameras[:len(s.cameras)-1]
			break
		}
	}
	if s.primary == c {
		primary := c.primary
		s.ClearPrimary(c)
		// Keep the flag so the camera claims primary again when re-attached.
		c.primary = primary
	}
	for _, l := range s.data.Layers() {
		if l.Camera == c {
			l.Camera = nil
		}
	}
}

// Cameras returns the registered cameras in registration order. The returned
// slice MUST NOT be mutated by the caller.
func (s *RenderSystem) Cameras() []*CameraComponent { return s.cameras }

// PrimaryCamera returns the primary camera, or nil when there is none or it
// is not active in the hierarchy. The flag survives deactivation.
func (s *RenderSystem) PrimaryCamera() *CameraComponent {
	if s.primary == nil || !s.primary.Active() {
		return nil
	}
	return s.primary
}

// OnPrimaryCameraChanged fires once per actual change of the primary camera,
// with the new primary (nil when cleared).
func (s *RenderSystem) OnPrimaryCameraChanged() *Signal[*CameraComponent] {
	return &s.primaryChanged
}

// SetPrimary makes c the primary camera. The previous holder's flag is
// cleared directly, without notifying it. Setting the current primary again
// emits nothing. Panics when called from a PrimaryCameraChanged observer.
func (s *RenderSystem) SetPrimary(c *CameraComponent) {
	if s.assigning {
		panic("lumen: SetPrimary re-entered during a primary camera change")
	}
	if c == nil {
		if s.primary != nil {
			s.ClearPrimary(s.primary)
		}
		return
	}
	if c == s.primary {
		c.primary = true
		return
	}
	s.assigning = true
	defer func() { s.assigning = false }()

	if old := s.primary; old != nil {
		old.primary = false
	}
	c.primary = true
	s.primary = c
	s.logger.Debug("primary camera changed", zap.String("entity", entityName(c.Entity())))
	s.primaryChanged.Emit(c)
}

// ClearPrimary clears the primary if c holds it and notifies with nil.
func (s *RenderSystem) ClearPrimary(c *CameraComponent) {
	if s.assigning {
		panic("lumen: ClearPrimary re-entered during a primary camera change")
	}
	if s.primary != c || c == nil {
		return
	}
	s.assigning = true
	defer func() { s.assigning = false }()

	c.primary = false
	s.primary = nil
	s.primaryChanged.Emit(nil)
}

func entityName(e *Entity) string {
	if e == nil {
		return ""
	}
	return e.Name
}
