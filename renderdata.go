package lumen

import (
	"fmt"

	"github.com/kamstrup/intmap"
)

// RenderData is a per-component data snapshot consumed by a Renderable.
// Concrete categories extend it with a typed accessor (SpriteRenderData,
// MeshRenderData, ...).
type RenderData interface {
	Serial() uint64
}

// RenderDataCompare orders two render data entries. It returns a negative
// number when a sorts before b, zero for ties and a positive number otherwise.
type RenderDataCompare func(a, b RenderData) int

// RenderDataList is an ordered collection of render data. With a compare
// function the list stays sorted and ties keep insertion order. Removal never
// reorders the remaining entries.
type RenderDataList struct {
	items   []RenderData
	members *intmap.Map[uint64, struct{}]
	compare RenderDataCompare
}

// NewRenderDataList creates an empty list. compare may be nil for an
// insertion-ordered list.
func NewRenderDataList(compare RenderDataCompare) *RenderDataList {
	return &RenderDataList{
		members: intmap.New[uint64, struct{}](64),
		compare: compare,
	}
}

// Insert adds d at the upper bound of its sort key. Panics if d is already in
// the list.
func (l *RenderDataList) Insert(d RenderData) {
	key := d.Serial()
	if _, ok := l.members.Get(key); ok {
		panic(fmt.Sprintf("lumen: render data %T (serial %d) inserted twice", d, key))
	}
	l.members.Put(key, struct{}{})

	idx := len(l.items)
	if l.compare != nil {
		idx = l.upperBound(d)
	}
	l.items = append(l.items, nil)
	copy(l.items[idx+1:], l.items[idx:])
	l.items[idx] = d
}

// upperBound returns the first index whose entry sorts strictly after d.
func (l *RenderDataList) upperBound(d RenderData) int {
	lo, hi := 0, len(l.items)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if l.compare(l.items[mid], d) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Remove deletes d and shifts the following entries down. Returns false if
// d is not in the list.
func (l *RenderDataList) Remove(d RenderData) bool {
	key := d.Serial()
	if _, ok := l.members.Get(key); !ok {
		return false
	}
	l.members.Del(key)
	for i, it := range l.items {
		if it.Serial() == key {
			copy(l.items[i:], l.items[i+1:])
			l.items[len(l.items)-1] = nil
			l.items = l.items[:len(l.items)-1]
			return true
		}
	}
	return true
}

// Reposition moves d to the slot its current sort key calls for. Used after a
// sort-relevant field changes.
func (l *RenderDataList) Reposition(d RenderData) {
	if l.Remove(d) {
		l.Insert(d)
	}
}

// Contains reports whether d is in the list.
func (l *RenderDataList) Contains(d RenderData) bool {
	_, ok := l.members.Get(d.Serial())
	return ok
}

// Len returns the number of entries.
func (l *RenderDataList) Len() int { return len(l.items) }

// At returns the entry at index i.
func (l *RenderDataList) At(i int) RenderData { return l.items[i] }

// Each calls fn for every entry in order until fn returns an error.
func (l *RenderDataList) Each(fn func(RenderData) error) error {
	for _, d := range l.items {
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}

// Clear removes every entry.
func (l *RenderDataList) Clear() {
	clear(l.items)
	l.items = l.items[:0]
	l.members.Clear()
}

// --- Category ordering ---

// compareSortKey sorts by blend rank, then by Order.
func compareSortKey(a, b RenderData) int {
	ka := a.(Sorted).SortKey()
	kb := b.(Sorted).SortKey()
	if d := blendRank(ka.Blend) - blendRank(kb.Blend); d != 0 {
		return d
	}
	return ka.Order - kb.Order
}

// categoryCompare returns the sort function for a category, or nil for
// unsorted categories.
func categoryCompare(c RenderCategory) RenderDataCompare {
	switch c {
	case CategorySprite, CategoryUI, CategoryMesh:
		return compareSortKey
	default:
		return nil
	}
}

// --- Layers ---

// RenderBinding pairs a Renderable with the list it draws.
type RenderBinding struct {
	Category   RenderCategory
	Renderable Renderable
	List       *RenderDataList
}

// SceneLayerRenderData holds one layer's camera and its bindings. Bindings
// are ordered by category.
type SceneLayerRenderData struct {
	Index    int
	Name     string
	Camera   *CameraComponent
	Bindings []RenderBinding
}

// Binding returns the binding for category c.
func (l *SceneLayerRenderData) Binding(c RenderCategory) (RenderBinding, bool) {
	for _, b := range l.Bindings {
		if b.Category == c {
			return b, true
		}
	}
	return RenderBinding{}, false
}

// List returns the render data list for category c, or nil.
func (l *SceneLayerRenderData) List(c RenderCategory) *RenderDataList {
	b, ok := l.Binding(c)
	if !ok {
		return nil
	}
	return b.List
}

// SceneRenderData is the per-scene set of render layers.
type SceneRenderData struct {
	layers []*SceneLayerRenderData
}

// NewSceneRenderData creates render data with no layers.
func NewSceneRenderData() *SceneRenderData {
	return &SceneRenderData{}
}

// Layer returns layer i, creating it (and every lower layer) with the default
// bindings if needed.
func (d *SceneRenderData) Layer(i int) *SceneLayerRenderData {
	if i < 0 {
		panic("lumen: negative render layer")
	}
	for len(d.layers) <= i {
		d.layers = append(d.layers, newLayerRenderData(len(d.layers)))
	}
	return d.layers[i]
}

// Layers returns the layers in index order. The returned slice MUST NOT be
// mutated by the caller.
func (d *SceneRenderData) Layers() []*SceneLayerRenderData {
	return d.layers
}

// Snapshot returns the read-only per-frame view handed to the pipeline. The
// pipeline reads it only while the simulation is paused.
func (d *SceneRenderData) Snapshot() RenderSnapshot {
	return RenderSnapshot{Layers: d.layers}
}

// clear empties every list and drops camera references.
func (d *SceneRenderData) clear() {
	for _, l := range d.layers {
		l.Camera = nil
		for _, b := range l.Bindings {
			b.List.Clear()
		}
	}
	d.layers = nil
}

func newLayerRenderData(index int) *SceneLayerRenderData {
	l := &SceneLayerRenderData{
		Index:    index,
		Name:     fmt.Sprintf("layer%d", index),
		Bindings: make([]RenderBinding, 0, categoryCount),
	}
	l.Bindings = append(l.Bindings,
		RenderBinding{CategorySprite, NewSpriteRenderable(), NewRenderDataList(categoryCompare(CategorySprite))},
		RenderBinding{CategoryMesh, NewMeshRenderable(), NewRenderDataList(categoryCompare(CategoryMesh))},
		RenderBinding{CategoryText, NewTextRenderable(), NewRenderDataList(nil)},
		RenderBinding{CategoryLine, NewLineRenderable(), NewRenderDataList(nil)},
		RenderBinding{CategoryUI, NewUIRenderable(), NewRenderDataList(categoryCompare(CategoryUI))},
		RenderBinding{CategoryLight, NewLightRenderable(), NewRenderDataList(nil)},
	)
	return l
}

// RenderSnapshot is the per-frame read-only view of a scene's render data.
type RenderSnapshot struct {
	Layers []*SceneLayerRenderData
}

// --- Renderables ---

// RenderContext is what a Renderable receives at Begin. It is valid until the
// matching End.
type RenderContext struct {
	API         RendererAPI
	Camera      *CameraComponent
	Framebuffer Handle
	// Viewport is the pixel rectangle being drawn into.
	Viewport Rect
	Stats    *FrameStats
}

// viewMatrix returns the camera's view matrix for the context's viewport, or
// identity when there is no camera.
func (c *RenderContext) viewMatrix() [6]float64 {
	if c.Camera == nil {
		return identityTransform
	}
	return c.Camera.ViewMatrixFor(c.Viewport)
}

// Renderable is a stateless per-category draw-submission strategy. It must not
// retain references from one Begin/End pair to the next.
type Renderable interface {
	Begin(ctx RenderContext) error
	Draw(d RenderData) error
	End() error
}

// FrameStats counts the work submitted in one frame.
type FrameStats struct {
	DrawCalls int
	Batches   int
	Items     int
	Passes    int
}

// Reset zeroes every counter.
func (s *FrameStats) Reset() { *s = FrameStats{} }

// --- System-side component sets ---

// intsetList is an unordered set of components with O(1) add and remove,
// keyed by Serial. Systems use it for their filtered collections.
type intsetList[T Component] struct {
	items []T
	index *intmap.Map[uint64, int]
}

func newIntsetList[T Component](capacity int) intsetList[T] {
	return intsetList[T]{index: intmap.New[uint64, int](capacity)}
}

func (s *intsetList[T]) add(c T) bool {
	key := c.Serial()
	if _, ok := s.index.Get(key); ok {
		return false
	}
	s.index.Put(key, len(s.items))
	s.items = append(s.items, c)
	return true
}

func (s *intsetList[T]) remove(c T) bool {
	key := c.Serial()
	i, ok := s.index.Get(key)
	if !ok {
		return false
	}
	s.index.Del(key)
	last := len(s.items) - 1
	if i != last {
		moved := s.items[last]
		s.items[i] = moved
		s.index.Put(moved.Serial(), i)
	}
	var zero T
	s.items[last] = zero
	s.items = s.items[:last]
	return true
}

func (s *intsetList[T]) contains(c T) bool {
	_, ok := s.index.Get(c.Serial())
	return ok
}

func (s *intsetList[T]) len() int { return len(s.items) }

func (s *intsetList[T]) clear() {
	clear(s.items)
	s.items = s.items[:0]
	s.index.Clear()
}
