package lumen

import (
	"fmt"
	"sort"

	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// TweenProperty selects what a TweenComponent animates.
type TweenProperty uint8

const (
	TweenPosition TweenProperty = iota // transform X, Y
	TweenScale                         // transform ScaleX, ScaleY
	TweenRotation                      // transform Rotation
	TweenAlpha                         // renderer color alpha
	TweenColor                         // renderer color R, G, B, A
)

var tweenPropertyNames = [...]string{
	TweenPosition: "position",
	TweenScale:    "scale",
	TweenRotation: "rotation",
	TweenAlpha:    "alpha",
	TweenColor:    "color",
}

func (p TweenProperty) String() string {
	if int(p) < len(tweenPropertyNames) {
		return tweenPropertyNames[p]
	}
	return "unknown"
}

// fields returns how many values the property animates.
func (p TweenProperty) fields() int {
	switch p {
	case TweenPosition, TweenScale:
		return 2
	case TweenColor:
		return 4
	default:
		return 1
	}
}

// ParseTweenProperty returns the property with the given name.
func ParseTweenProperty(s string) (TweenProperty, bool) {
	for i, n := range tweenPropertyNames {
		if n == s {
			return TweenProperty(i), true
		}
	}
	return TweenPosition, false
}

var easeFuncs = map[string]ease.TweenFunc{
	"linear":       ease.Linear,
	"in-quad":      ease.InQuad,
	"out-quad":     ease.OutQuad,
	"in-out-quad":  ease.InOutQuad,
	"in-cubic":     ease.InCubic,
	"out-cubic":    ease.OutCubic,
	"in-out-cubic": ease.InOutCubic,
	"in-sine":      ease.InSine,
	"out-sine":     ease.OutSine,
	"in-out-sine":  ease.InOutSine,
	"out-bounce":   ease.OutBounce,
	"out-elastic":  ease.OutElastic,
}

// EaseByName returns the easing function registered under name. The empty
// name is linear.
func EaseByName(name string) (ease.TweenFunc, bool) {
	if name == "" {
		return ease.Linear, true
	}
	fn, ok := easeFuncs[name]
	return fn, ok
}

// EaseNames returns the known easing names, sorted.
func EaseNames() []string {
	names := make([]string, 0, len(easeFuncs))
	for n := range easeFuncs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// tinted is implemented by renderers whose color a tween can drive.
type tinted interface {
	Component
	tintColor() *Color
}

// TweenComponent animates a property of its entity's transform or renderer
// color from the value at Play to To.
type TweenComponent struct {
	ComponentBase

	Property TweenProperty
	// To holds the target values: X, Y for position and scale, [0] for
	// rotation and alpha, R, G, B, A for color.
	To       [4]float64
	Duration float32
	// Ease names the easing function; see EaseNames.
	Ease string
	// Loop restarts the tween from its start values when it finishes.
	Loop bool
	// AutoPlay starts the tween on its first update.
	AutoPlay bool

	tweens  [4]*gween.Tween
	count   int
	playing bool
	started bool
	done    bool

	finished Signal[*TweenComponent]
}

// NewTween creates a tween of prop toward to over duration seconds.
func NewTween(prop TweenProperty, duration float32, easeName string, to ...float64) *TweenComponent {
	t := &TweenComponent{Property: prop, Duration: duration, Ease: easeName}
	copy(t.To[:], to)
	return t
}

// Attach registers the tween with the TweenSystem.
func (t *TweenComponent) Attach(w *World) error {
	if _, ok := EaseByName(t.Ease); !ok {
		return fmt.Errorf("unknown ease %q", t.Ease)
	}
	if s, ok := GetSystem[*TweenSystem](w); ok {
		s.Register(t)
	}
	return nil
}

// Detach unregisters the tween.
func (t *TweenComponent) Detach(w *World) {
	if s, ok := GetSystem[*TweenSystem](w); ok {
		s.Unregister(t)
	}
}

// Clone returns a detached copy that has not started.
func (t *TweenComponent) Clone() Component {
	return &TweenComponent{
		ComponentBase: t.cloneBase(),
		Property:      t.Property,
		To:            t.To,
		Duration:      t.Duration,
		Ease:          t.Ease,
		Loop:          t.Loop,
		AutoPlay:      t.AutoPlay,
	}
}

// OnFinished fires each time the tween reaches its end.
func (t *TweenComponent) OnFinished() *Signal[*TweenComponent] { return &t.finished }

// Playing reports whether the tween is advancing.
func (t *TweenComponent) Playing() bool { return t.playing }

// Done reports whether the tween finished and did not loop.
func (t *TweenComponent) Done() bool { return t.done }

// Play starts the tween from the property's current values. Returns false if
// the entity has nothing to animate.
func (t *TweenComponent) Play() bool {
	from, ok := t.read()
	if !ok {
		return false
	}
	fn, ok := EaseByName(t.Ease)
	if !ok {
		fn = ease.Linear
	}
	t.count = t.Property.fields()
	for i := 0; i < t.count; i++ {
		t.tweens[i] = gween.New(float32(from[i]), float32(t.To[i]), t.Duration, fn)
	}
	t.playing = true
	t.started = true
	t.done = false
	return true
}

// Stop halts the tween where it is.
func (t *TweenComponent) Stop() { t.playing = false }

// update advances the tween by dt seconds and writes the values.
func (t *TweenComponent) update(dt float64) {
	if !t.started && t.AutoPlay {
		t.Play()
	}
	if !t.playing {
		return
	}
	var vals [4]float64
	allDone := true
	for i := 0; i < t.count; i++ {
		v, finished := t.tweens[i].Update(float32(dt))
		vals[i] = float64(v)
		if !finished {
			allDone = false
		}
	}
	if allDone {
		// Land exactly on the target.
		copy(vals[:t.count], t.To[:t.count])
	}
	t.write(vals)
	if !allDone {
		return
	}
	if t.Loop {
		for i := 0; i < t.count; i++ {
			t.tweens[i].Reset()
		}
	} else {
		t.playing = false
		t.done = true
	}
	t.finished.Emit(t)
}

func (t *TweenComponent) read() ([4]float64, bool) {
	var v [4]float64
	e := t.Entity()
	if e == nil {
		return v, false
	}
	switch t.Property {
	case TweenPosition, TweenScale, TweenRotation:
		tr := e.Transform()
		if tr == nil {
			return v, false
		}
		switch t.Property {
		case TweenPosition:
			v[0], v[1] = tr.X, tr.Y
		case TweenScale:
			v[0], v[1] = tr.ScaleX, tr.ScaleY
		default:
			v[0] = tr.Rotation
		}
	default:
		c := t.tintTarget()
		if c == nil {
			return v, false
		}
		if t.Property == TweenAlpha {
			v[0] = c.A
		} else {
			v = [4]float64{c.R, c.G, c.B, c.A}
		}
	}
	return v, true
}

func (t *TweenComponent) write(v [4]float64) {
	e := t.Entity()
	if e == nil {
		return
	}
	switch t.Property {
	case TweenPosition:
		if tr := e.Transform(); tr != nil {
			tr.SetPosition(v[0], v[1])
		}
	case TweenScale:
		if tr := e.Transform(); tr != nil {
			tr.SetScale(v[0], v[1])
		}
	case TweenRotation:
		if tr := e.Transform(); tr != nil {
			tr.SetRotation(v[0])
		}
	case TweenAlpha:
		if c := t.tintTarget(); c != nil {
			c.A = v[0]
		}
	case TweenColor:
		if c := t.tintTarget(); c != nil {
			*c = Color{v[0], v[1], v[2], v[3]}
		}
	}
}

// tintTarget returns the color of the first renderer on the entity.
func (t *TweenComponent) tintTarget() *Color {
	for _, c := range t.Entity().Components() {
		if tc, ok := c.(tinted); ok {
			return tc.tintColor()
		}
	}
	return nil
}

// TweenSystem advances active tweens each frame. Finished tweens stay
// registered until removed or played again.
type TweenSystem struct {
	tweens intsetList[*TweenComponent]
}

// NewTweenSystem creates an empty TweenSystem.
func NewTweenSystem() *TweenSystem {
	return &TweenSystem{tweens: newIntsetList[*TweenComponent](32)}
}

func (s *TweenSystem) Init(*World) error { return nil }
func (s *TweenSystem) Shutdown(*World)   { s.tweens.clear() }

// Register adds t. Panics if t is already registered.
func (s *TweenSystem) Register(t *TweenComponent) {
	if !s.tweens.add(t) {
		panic("lumen: tween registered twice with TweenSystem")
	}
}

// Unregister removes t.
func (s *TweenSystem) Unregister(t *TweenComponent) { s.tweens.remove(t) }

// Len returns the number of registered tweens.
func (s *TweenSystem) Len() int { return s.tweens.len() }

// Update advances every active tween.
func (s *TweenSystem) Update(dt float64) error {
	// OnFinished observers may unregister tweens; index against the live slice.
	for i := 0; i < len(s.tweens.items); i++ {
		if t := s.tweens.items[i]; t.Active() {
			t.update(dt)
		}
	}
	return nil
}
