package lumen

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"
)

// System maintains derived indices over the components of the types it was
// built for. Systems never own entities or components.
type System interface {
	// Init runs once when the System is registered with a live World.
	Init(w *World) error
	// Shutdown runs once when the World shuts down, in reverse registration
	// order.
	Shutdown(w *World)
}

// UpdateSystem is a System that advances every frame.
type UpdateSystem interface {
	System
	Update(dt float64) error
}

// StartSystem is notified when the owning scene starts.
type StartSystem interface {
	Start(w *World) error
}

// StopSystem is notified when the owning scene stops.
type StopSystem interface {
	Stop(w *World)
}

// SystemInstaller registers one or more Systems with a World.
type SystemInstaller func(w *World) error

type worldState uint8

const (
	worldUninit worldState = iota
	worldLive
	worldShutdown
)

func (s worldState) String() string {
	switch s {
	case worldUninit:
		return "uninit"
	case worldLive:
		return "live"
	default:
		return "shutdown"
	}
}

// World owns the System registry for one scene.
type World struct {
	scene  *Scene
	logger *zap.Logger
	state  worldState

	systems  []System
	byType   map[reflect.Type]System
	updaters []UpdateSystem
}

func newWorld(scene *Scene, logger *zap.Logger) *World {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &World{
		scene:  scene,
		logger: logger.Named("world"),
		byType: make(map[reflect.Type]System),
	}
}

// Scene returns the scene that owns the World.
func (w *World) Scene() *Scene { return w.scene }

// Logger returns the World's logger.
func (w *World) Logger() *zap.Logger { return w.logger }

// Live reports whether the World is between Init and Shutdown.
func (w *World) Live() bool { return w.state == worldLive }

// Init makes the World live and runs the installers in order.
func (w *World) Init(installers ...SystemInstaller) error {
	if w.state != worldUninit {
		panic("lumen: World.Init called in state " + w.state.String())
	}
	w.state = worldLive
	for _, install := range installers {
		if err := install(w); err != nil {
			return fmt.Errorf("lumen: install systems: %w", err)
		}
	}
	return nil
}

// RegisterSystem registers s and runs its Init. Panics if the World is not
// live or a System of the same type is already registered.
func RegisterSystem[T System](w *World, s T) (T, error) {
	if w.state != worldLive {
		panic("lumen: RegisterSystem on a World in state " + w.state.String())
	}
	t := reflect.TypeOf(s)
	if _, dup := w.byType[t]; dup {
		panic(fmt.Sprintf("lumen: system %v already registered", t))
	}
	w.byType[t] = s
	w.systems = append(w.systems, s)
	if err := s.Init(w); err != nil {
		delete(w.byType, t)
		w.systems = w.systems[:len(w.systems)-1]
		var zero T
		return zero, fmt.Errorf("lumen: init system %v: %w", t, err)
	}
	if u, ok := System(s).(UpdateSystem); ok {
		w.updaters = append(w.updaters, u)
	}
	w.logger.Debug("system registered", zap.Stringer("type", t))
	return s, nil
}

// GetSystem returns the System of type T. An exact type match is tried first;
// for an interface T the first registered System implementing it is returned.
func GetSystem[T any](w *World) (T, bool) {
	var zero T
	if w == nil {
		return zero, false
	}
	t := reflect.TypeFor[T]()
	if s, ok := w.byType[t]; ok {
		if v, ok := s.(T); ok {
			return v, true
		}
	}
	if t.Kind() == reflect.Interface {
		for _, s := range w.systems {
			if v, ok := s.(T); ok {
				return v, true
			}
		}
	}
	return zero, false
}

// MustSystem is GetSystem for Systems the caller cannot work without.
func MustSystem[T any](w *World) T {
	s, ok := GetSystem[T](w)
	if !ok {
		panic(fmt.Sprintf("lumen: system not found: %v", reflect.TypeFor[T]()))
	}
	return s
}

// Systems returns the registration-ordered list. The returned slice MUST NOT
// be mutated by the caller.
func (w *World) Systems() []System {
	return w.systems
}

// Update runs every UpdateSystem in registration order. The first error
// aborts the remaining systems.
func (w *World) Update(dt float64) error {
	if w.state != worldLive {
		panic("lumen: World.Update in state " + w.state.String())
	}
	for _, u := range w.updaters {
		if err := u.Update(dt); err != nil {
			return fmt.Errorf("lumen: system %T: %w", u, err)
		}
	}
	return nil
}

// start notifies StartSystems in registration order.
func (w *World) start() error {
	for _, s := range w.systems {
		if st, ok := s.(StartSystem); ok {
			if err := st.Start(w); err != nil {
				return fmt.Errorf("lumen: start system %T: %w", s, err)
			}
		}
	}
	return nil
}

// stop notifies StopSystems in reverse registration order.
func (w *World) stop() {
	for i := len(w.systems) - 1; i >= 0; i-- {
		if st, ok := w.systems[i].(StopSystem); ok {
			st.Stop(w)
		}
	}
}

// Shutdown calls Shutdown on every System in reverse registration order and
// clears the registry. No System exists afterwards.
func (w *World) Shutdown() {
	if w.state != worldLive {
		panic("lumen: World.Shutdown in state " + w.state.String())
	}
	for i := len(w.systems) - 1; i >= 0; i-- {
		w.systems[i].Shutdown(w)
	}
	clear(w.systems)
	w.systems = nil
	w.updaters = nil
	clear(w.byType)
	w.state = worldShutdown
}
