package lumen

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"
)

// Entity is an identity, a component container and a hierarchy node. Parent
// and children are a relation, not ownership: the Scene owns every entity.
type Entity struct {
	ID   uuid.UUID
	Name string

	scene   *Scene
	inScene bool

	parent   *Entity
	children []*Entity

	components []Component

	disabled bool
	disposed bool

	componentAdded   Signal[Component]
	componentRemoved Signal[Component]
	hierarchyChanged Signal[*Entity]
}

func newEntity(scene *Scene, name string) *Entity {
	return &Entity{ID: uuid.New(), Name: name, scene: scene}
}

// Scene returns the scene the entity was created for.
func (e *Entity) Scene() *Scene { return e.scene }

// OnComponentAdded fires after a component is added (and attached, if live).
func (e *Entity) OnComponentAdded() *Signal[Component] { return &e.componentAdded }

// OnComponentRemoved fires after a component is detached and before its
// entity reference is cleared.
func (e *Entity) OnComponentRemoved() *Signal[Component] { return &e.componentRemoved }

// OnHierarchyChanged fires after the entity's parent changes.
func (e *Entity) OnHierarchyChanged() *Signal[*Entity] { return &e.hierarchyChanged }

// IsDisposed returns true if the entity has been destroyed.
func (e *Entity) IsDisposed() bool { return e.disposed }

// liveWorld returns the World components should attach to, or nil when the
// entity is not part of a loaded scene.
func (e *Entity) liveWorld() *World {
	if !e.inScene || e.scene == nil {
		return nil
	}
	w := e.scene.world
	if w == nil || w.state != worldLive {
		return nil
	}
	return w
}

// --- Components ---

// AddComponent adds c to the entity. Panics if c already belongs to an entity
// or if a component of the same concrete type exists and the type does not
// allow multiple instances. When the entity is in a live World the component
// is attached immediately; an Attach error rolls the add back.
func (e *Entity) AddComponent(c Component) error {
	if c == nil {
		panic("lumen: cannot add nil component")
	}
	if debugMode {
		debugCheckDisposed(e, "AddComponent")
	}
	b := c.base()
	if b.entity != nil {
		panic(fmt.Sprintf("lumen: %T already belongs to entity %q", c, b.entity.Name))
	}
	if !allowsMultiple(c) {
		t := reflect.TypeOf(c)
		for _, existing := range e.components {
			if reflect.TypeOf(existing) == t {
				panic(fmt.Sprintf("lumen: entity %q already has a %v", e.Name, t))
			}
		}
	}
	b.entity = e
	b.self = c
	e.components = append(e.components, c)

	if w := e.liveWorld(); w != nil {
		if err := attachComponent(c, w); err != nil {
			e.components = e.components[:len(e.components)-1]
			b.entity = nil
			b.self = nil
			return err
		}
	}
	e.componentAdded.Emit(c)
	return nil
}

func allowsMultiple(c Component) bool {
	m, ok := c.(MultiInstance)
	return ok && m.AllowMultiple()
}

// RemoveComponentInstance removes c from the entity. Returns false if c does
// not belong to this entity.
func (e *Entity) RemoveComponentInstance(c Component) bool {
	if debugMode {
		debugCheckDisposed(e, "RemoveComponent")
	}
	idx := -1
	for i, existing := range e.components {
		if existing == c {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	e.removeComponentAt(idx)
	return true
}

func (e *Entity) removeComponentAt(idx int) {
	c := e.components[idx]
	if c.base().attached {
		detachComponent(c)
	}
	copy(e.components[idx:], e.components[idx+1:])
	e.components[len(e.components)-1] = nil
	e.components = e.components[:len(e.components)-1]
	e.componentRemoved.Emit(c)
	b := c.base()
	b.entity = nil
	b.self = nil
}

// Components returns the components in the order they were added. The
// returned slice MUST NOT be mutated by the caller.
func (e *Entity) Components() []Component {
	return e.components
}

// GetComponent returns the first component of type T on e.
func GetComponent[T Component](e *Entity) (T, bool) {
	for _, c := range e.components {
		if t, ok := c.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}

// ComponentsOf returns every component of type T on e, in add order.
func ComponentsOf[T Component](e *Entity) []T {
	var out []T
	for _, c := range e.components {
		if t, ok := c.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

// RemoveComponent removes the first component of type T from e.
func RemoveComponent[T Component](e *Entity) bool {
	for i, c := range e.components {
		if _, ok := c.(T); ok {
			e.removeComponentAt(i)
			return true
		}
	}
	return false
}

// Transform returns the entity's TransformComponent, or nil.
func (e *Entity) Transform() *TransformComponent {
	t, _ := GetComponent[*TransformComponent](e)
	return t
}

// --- Enable state ---

// Enabled reports the entity's own flag.
func (e *Entity) Enabled() bool { return !e.disabled }

// ActiveInHierarchy reports whether the entity and every ancestor are enabled.
func (e *Entity) ActiveInHierarchy() bool {
	for p := e; p != nil; p = p.parent {
		if p.disabled {
			return false
		}
	}
	return true
}

// SetEnabled writes the own flag. Every component in the subtree whose Active
// state flips fires EnabledChanged.
func (e *Entity) SetEnabled(enabled bool) {
	if e.disabled == !enabled {
		return
	}
	if debugMode {
		debugCheckDisposed(e, "SetEnabled")
	}
	parentActive := e.parent == nil || e.parent.ActiveInHierarchy()
	e.disabled = !enabled
	if parentActive {
		e.propagateActive()
	}
}

// propagateActive notifies components whose effective activity flipped
// because this entity's effective activity flipped. Descendants with their
// own flag cleared are unaffected.
func (e *Entity) propagateActive() {
	for _, c := range e.components {
		if c.Enabled() {
			c.base().emitEnabledChanged()
		}
	}
	for _, child := range e.children {
		if child.Enabled() {
			child.propagateActive()
		}
	}
}

// --- Hierarchy ---

// Parent returns the parent entity, or nil for a root.
func (e *Entity) Parent() *Entity { return e.parent }

// Children returns the child list. The returned slice MUST NOT be mutated by
// the caller.
func (e *Entity) Children() []*Entity { return e.children }

// SetParent re-parents e under p, or makes it a root when p is nil. Both child
// lists are updated before any observer runs. Panics if p belongs to another
// scene, if e is in the scene and p is not, or if the change would create a
// cycle.
func (e *Entity) SetParent(p *Entity) {
	if debugMode {
		debugCheckDisposed(e, "SetParent (child)")
		if p != nil {
			debugCheckDisposed(p, "SetParent (parent)")
		}
	}
	if p == e.parent {
		return
	}
	if p != nil {
		if p.scene != e.scene {
			panic("lumen: cannot parent across scenes")
		}
		if e.inScene && !p.inScene {
			panic(fmt.Sprintf("lumen: cannot parent entity %q under detached entity %q", e.Name, p.Name))
		}
		if isAncestor(e, p) {
			panic("lumen: setting parent would create a cycle")
		}
	}
	before := e.ActiveInHierarchy()
	if e.parent != nil {
		e.parent.removeChildByPtr(e)
	}
	e.parent = p
	if p != nil {
		p.children = append(p.children, e)
	}
	if debugMode {
		debugCheckTreeDepth(e)
		if p != nil {
			debugCheckChildCount(p)
		}
	}

	e.hierarchyChanged.Emit(e)
	if e.scene != nil && e.inScene {
		e.scene.hierarchyChanged.Emit(e)
	}
	if e.ActiveInHierarchy() != before && e.Enabled() {
		e.propagateActive()
	}
}

// SetChildIndex moves child to a new index among its siblings.
func (e *Entity) SetChildIndex(child *Entity, index int) {
	if child.parent != e {
		panic("lumen: child's parent is not this entity")
	}
	nc := len(e.children)
	if index < 0 || index >= nc {
		panic("lumen: child index out of range")
	}
	oldIndex := -1
	for i, c := range e.children {
		if c == child {
			oldIndex = i
			break
		}
	}
	if oldIndex == index {
		return
	}
	if oldIndex < index {
		copy(e.children[oldIndex:], e.children[oldIndex+1:index+1])
	} else {
		copy(e.children[index+1:], e.children[index:oldIndex])
	}
	e.children[index] = child
	if e.scene != nil && e.inScene {
		e.scene.hierarchyChanged.Emit(child)
	}
}

// isAncestor reports whether candidate is an ancestor of (or equal to) node.
func isAncestor(candidate, node *Entity) bool {
	for p := node; p != nil; p = p.parent {
		if p == candidate {
			return true
		}
	}
	return false
}

// removeChildByPtr removes child from e.children without clearing
// child.parent. Uses copy+nil to avoid retaining a dangling pointer in the
// backing array.
func (e *Entity) removeChildByPtr(child *Entity) {
	for i, c := range e.children {
		if c == child {
			copy(e.children[i:], e.children[i+1:])
			e.children[len(e.children)-1] = nil
			e.children = e.children[:len(e.children)-1]
			return
		}
	}
}

// --- Cloning ---

// Clone deep-copies the entity, its components and its children into a new
// subtree with fresh ids. The clone is detached: it is not in any World and
// not in the scene's entity list until Scene.AddEntity is called.
func (e *Entity) Clone() *Entity {
	c := newEntity(e.scene, e.Name)
	c.disabled = e.disabled
	for _, comp := range e.components {
		cc := comp.Clone()
		b := cc.base()
		b.entity = c
		b.self = cc
		c.components = append(c.components, cc)
	}
	for _, child := range e.children {
		cc := child.Clone()
		cc.parent = c
		c.children = append(c.children, cc)
	}
	return c
}

// --- Lifecycle helpers used by Scene ---

// attachAll attaches every component in add order.
func (e *Entity) attachAll(w *World) error {
	for _, c := range e.components {
		if c.base().attached {
			continue
		}
		if err := attachComponent(c, w); err != nil {
			return err
		}
	}
	return nil
}

// detachAll detaches every attached component in reverse add order.
func (e *Entity) detachAll() {
	for i := len(e.components) - 1; i >= 0; i-- {
		if c := e.components[i]; c.base().attached {
			detachComponent(c)
		}
	}
}

// dispose releases the components and marks the entity destroyed. The caller
// has already unlinked it from the hierarchy and the scene.
func (e *Entity) dispose() {
	for i := len(e.components) - 1; i >= 0; i-- {
		c := e.components[i]
		e.componentRemoved.Emit(c)
		b := c.base()
		b.entity = nil
		b.self = nil
		e.components[i] = nil
	}
	e.components = nil
	e.children = nil
	e.parent = nil
	e.inScene = false
	e.disposed = true
	e.componentAdded.Clear()
	e.componentRemoved.Clear()
	e.hierarchyChanged.Clear()
}
