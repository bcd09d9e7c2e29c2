package lumen

// Animated is implemented by components that advance with time on their own:
// particle emitters and animated tile maps.
type Animated interface {
	Component
	Advance(dt float64)
}

// AnimationSystem advances every active Animated component each frame.
type AnimationSystem struct {
	items intsetList[Animated]
}

// NewAnimationSystem creates an empty AnimationSystem.
func NewAnimationSystem() *AnimationSystem {
	return &AnimationSystem{items: newIntsetList[Animated](32)}
}

func (s *AnimationSystem) Init(*World) error { return nil }
func (s *AnimationSystem) Shutdown(*World)   { s.items.clear() }

// Register adds a. Panics if a is already registered.
func (s *AnimationSystem) Register(a Animated) {
	if !s.items.add(a) {
		panic("lumen: component registered twice with AnimationSystem")
	}
}

// Unregister removes a.
func (s *AnimationSystem) Unregister(a Animated) { s.items.remove(a) }

// Len returns the number of registered components.
func (s *AnimationSystem) Len() int { return s.items.len() }

// Update advances every active component by dt seconds.
func (s *AnimationSystem) Update(dt float64) error {
	for i := 0; i < len(s.items.items); i++ {
		if a := s.items.items[i]; a.Active() {
			a.Advance(dt)
		}
	}
	return nil
}

func attachAnimated(w *World, a Animated) {
	if s, ok := GetSystem[*AnimationSystem](w); ok {
		s.Register(a)
	}
}

func detachAnimated(w *World, a Animated) {
	if s, ok := GetSystem[*AnimationSystem](w); ok {
		s.Unregister(a)
	}
}
