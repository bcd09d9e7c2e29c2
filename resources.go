package lumen

import (
	"errors"
	"fmt"
)

// ErrStaleHandle is returned when a handle refers to a freed (or never
// allocated) slot.
var ErrStaleHandle = errors.New("lumen: stale resource handle")

// Handle is a generation-checked index into a ResourceTable. The zero Handle
// never refers to a live resource.
type Handle struct {
	index uint32
	gen   uint32
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool { return h.gen == 0 }

func (h Handle) String() string {
	if h.IsZero() {
		return "handle(nil)"
	}
	return fmt.Sprintf("handle(%d@%d)", h.index, h.gen)
}

type resourceSlot[T any] struct {
	value T
	gen   uint32
	live  bool
}

// ResourceTable is an arena of resources addressed by generation-checked
// handles. Freeing a slot bumps its generation so old handles go stale. It is
// owned by the render thread.
type ResourceTable[T any] struct {
	slots []resourceSlot[T]
	free  []uint32
	live  int
}

// Alloc stores v and returns its handle.
func (t *ResourceTable[T]) Alloc(v T) Handle {
	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		idx = uint32(len(t.slots))
		t.slots = append(t.slots, resourceSlot[T]{})
	}
	s := &t.slots[idx]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.value = v
	s.live = true
	t.live++
	return Handle{index: idx, gen: s.gen}
}

func (t *ResourceTable[T]) slot(h Handle) (*resourceSlot[T], error) {
	if h.IsZero() || int(h.index) >= len(t.slots) {
		return nil, ErrStaleHandle
	}
	s := &t.slots[h.index]
	if !s.live || s.gen != h.gen {
		return nil, ErrStaleHandle
	}
	return s, nil
}

// Get returns the value for h, or ErrStaleHandle.
func (t *ResourceTable[T]) Get(h Handle) (T, error) {
	s, err := t.slot(h)
	if err != nil {
		var zero T
		return zero, err
	}
	return s.value, nil
}

// Set replaces the value for h in place. Existing handles stay valid.
func (t *ResourceTable[T]) Set(h Handle, v T) error {
	s, err := t.slot(h)
	if err != nil {
		return err
	}
	s.value = v
	return nil
}

// Free releases h and returns the value it held. Using h afterwards returns
// ErrStaleHandle.
func (t *ResourceTable[T]) Free(h Handle) (T, error) {
	s, err := t.slot(h)
	if err != nil {
		var zero T
		return zero, err
	}
	v := s.value
	var zero T
	s.value = zero
	s.live = false
	t.free = append(t.free, h.index)
	t.live--
	return v, nil
}

// Valid reports whether h refers to a live slot.
func (t *ResourceTable[T]) Valid(h Handle) bool {
	_, err := t.slot(h)
	return err == nil
}

// Len returns the number of live resources.
func (t *ResourceTable[T]) Len() int { return t.live }

// Each calls fn for every live resource.
func (t *ResourceTable[T]) Each(fn func(h Handle, v T)) {
	for i := range t.slots {
		s := &t.slots[i]
		if s.live {
			fn(Handle{index: uint32(i), gen: s.gen}, s.value)
		}
	}
}
