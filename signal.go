package lumen

// Signal is an ordered observer list. Observers run synchronously in
// subscription order. Unsubscribing during emission is safe: the removed
// observer is skipped if it has not run yet.
type Signal[T any] struct {
	handlers []signalHandler[T]
	nextID   uint32
	emitting int
	removed  bool
}

type signalHandler[T any] struct {
	id uint32
	fn func(T)
}

// Subscription removes an observer from the Signal it was created by.
type Subscription struct {
	id     uint32
	remove func(id uint32)
}

// Unsubscribe removes the observer. Calling it more than once, or on the zero
// Subscription, is a no-op.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.remove == nil {
		return
	}
	s.remove(s.id)
	s.remove = nil
}

// Active reports whether the subscription is still registered.
func (s *Subscription) Active() bool {
	return s != nil && s.remove != nil
}

// Subscribe registers fn and returns a handle for removing it.
func (sg *Signal[T]) Subscribe(fn func(T)) Subscription {
	sg.nextID++
	id := sg.nextID
	sg.handlers = append(sg.handlers, signalHandler[T]{id: id, fn: fn})
	return Subscription{id: id, remove: sg.remove}
}

// Emit delivers v to every observer in subscription order.
func (sg *Signal[T]) Emit(v T) {
	sg.emitting++
	n := len(sg.handlers)
	for i := 0; i < n && i < len(sg.handlers); i++ {
		h := sg.handlers[i]
		if h.fn != nil {
			h.fn(v)
		}
	}
	sg.emitting--
	if sg.emitting == 0 && sg.removed {
		sg.compact()
	}
}

// Len returns the number of registered observers.
func (sg *Signal[T]) Len() int {
	n := 0
	for _, h := range sg.handlers {
		if h.fn != nil {
			n++
		}
	}
	return n
}

// Clear removes every observer.
func (sg *Signal[T]) Clear() {
	if sg.emitting > 0 {
		for i := range sg.handlers {
			sg.handlers[i].fn = nil
		}
		sg.removed = true
		return
	}
	clear(sg.handlers)
	sg.handlers = sg.handlers[:0]
}

func (sg *Signal[T]) remove(id uint32) {
	for i := range sg.handlers {
		if sg.handlers[i].id != id {
			continue
		}
		if sg.emitting > 0 {
			// Slots are compacted once the outermost Emit returns.
			sg.handlers[i].fn = nil
			sg.removed = true
			return
		}
		copy(sg.handlers[i:], sg.handlers[i+1:])
		sg.handlers[len(sg.handlers)-1] = signalHandler[T]{}
		sg.handlers = sg.handlers[:len(sg.handlers)-1]
		return
	}
}

func (sg *Signal[T]) compact() {
	j := 0
	for _, h := range sg.handlers {
		if h.fn != nil {
			sg.handlers[j] = h
			j++
		}
	}
	clear(sg.handlers[j:])
	sg.handlers = sg.handlers[:j]
	sg.removed = false
}
