package lumen

import "fmt"

// componentSerialCounter is a plain counter (no atomic, the core runs on the
// simulation thread only).
var componentSerialCounter uint64

func nextComponentSerial() uint64 {
	componentSerialCounter++
	return componentSerialCounter
}

// Component is an attachable unit of data or behavior owned by one Entity.
// Implementations embed ComponentBase and override Attach/Detach to route
// themselves to the System they belong to.
type Component interface {
	// Entity returns the owning entity, or nil when the component is not
	// part of an entity.
	Entity() *Entity
	// Enabled reports the component's own flag.
	Enabled() bool
	// SetEnabled writes the component's own flag. EnabledChanged fires when
	// this changes Active.
	SetEnabled(enabled bool)
	// Active reports Enabled && Entity().ActiveInHierarchy().
	Active() bool
	// Serial is a process-unique number used as a membership key.
	Serial() uint64
	// Attach is called when the component enters a live World.
	Attach(w *World) error
	// Detach is called when the component leaves a live World.
	Detach(w *World)
	// Clone returns a detached deep copy.
	Clone() Component
	// OnEnabledChanged fires with the component when Active flips.
	OnEnabledChanged() *Signal[Component]

	base() *ComponentBase
}

// MultiInstance is implemented by components that may appear more than once
// on the same entity.
type MultiInstance interface {
	AllowMultiple() bool
}

// ComponentBase holds the state shared by every component. The zero value is
// an enabled, unowned component.
type ComponentBase struct {
	entity   *Entity
	self     Component
	serial   uint64
	disabled bool

	world    *World
	attached bool
	busy     bool

	enabledChanged Signal[Component]
}

func (b *ComponentBase) base() *ComponentBase { return b }

// Entity returns the owning entity.
func (b *ComponentBase) Entity() *Entity { return b.entity }

// Enabled reports the component's own flag.
func (b *ComponentBase) Enabled() bool { return !b.disabled }

// Active reports whether the component is enabled and its entity is active
// in the hierarchy.
func (b *ComponentBase) Active() bool {
	return !b.disabled && b.entity != nil && b.entity.ActiveInHierarchy()
}

// SetEnabled writes the own flag and fires EnabledChanged if Active flipped.
func (b *ComponentBase) SetEnabled(enabled bool) {
	if b.disabled == !enabled {
		return
	}
	if b.entity != nil && debugMode {
		debugCheckDisposed(b.entity, "SetEnabled")
	}
	before := b.Active()
	b.disabled = !enabled
	if b.Active() != before {
		b.emitEnabledChanged()
	}
}

// Serial returns the component's process-unique serial, assigned on first use.
func (b *ComponentBase) Serial() uint64 {
	if b.serial == 0 {
		b.serial = nextComponentSerial()
	}
	return b.serial
}

// World returns the World the component is attached to, or nil.
func (b *ComponentBase) World() *World { return b.world }

// IsAttached reports whether Attach has run without a matching Detach.
func (b *ComponentBase) IsAttached() bool { return b.attached }

// OnEnabledChanged returns the signal fired when Active flips.
func (b *ComponentBase) OnEnabledChanged() *Signal[Component] { return &b.enabledChanged }

// Attach is a no-op for plain data components.
func (b *ComponentBase) Attach(*World) error { return nil }

// Detach is a no-op for plain data components.
func (b *ComponentBase) Detach(*World) {}

// cloneBase returns the user-visible state for a copy: the enabled flag only.
// Ownership, serial, attachment and observers are never copied.
func (b *ComponentBase) cloneBase() ComponentBase {
	return ComponentBase{disabled: b.disabled}
}

func (b *ComponentBase) emitEnabledChanged() {
	if b.self == nil {
		return
	}
	b.enabledChanged.Emit(b.self)
}

// attachComponent runs c.Attach with the pairing and re-entrancy checks.
func attachComponent(c Component, w *World) error {
	b := c.base()
	if b.busy {
		panic(fmt.Sprintf("lumen: re-entrant Attach/Detach on %T", c))
	}
	if b.attached {
		panic(fmt.Sprintf("lumen: %T is already attached", c))
	}
	b.busy = true
	err := c.Attach(w)
	b.busy = false
	if err != nil {
		return fmt.Errorf("lumen: attach %T: %w", c, err)
	}
	b.attached = true
	b.world = w
	return nil
}

// detachComponent runs c.Detach with the pairing and re-entrancy checks.
func detachComponent(c Component) {
	b := c.base()
	if b.busy {
		panic(fmt.Sprintf("lumen: re-entrant Attach/Detach on %T", c))
	}
	if !b.attached {
		panic(fmt.Sprintf("lumen: Detach without Attach on %T", c))
	}
	b.busy = true
	c.Detach(b.world)
	b.busy = false
	b.attached = false
	b.world = nil
}
