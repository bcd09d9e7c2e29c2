package lumen

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

type renderAction struct {
	fn   func()
	done chan struct{}
}

// RenderThread is the queue of actions that touch GPU resources. Any
// goroutine may queue; only the goroutine that calls Drain runs them. The
// host calls Drain once per frame before rendering.
type RenderThread struct {
	logger *zap.Logger

	mu       sync.Mutex
	queue    []renderAction
	spare    []renderAction
	draining atomic.Bool
}

// NewRenderThread creates an empty queue.
func NewRenderThread(logger *zap.Logger) *RenderThread {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RenderThread{logger: logger.Named("renderthread")}
}

// Execute queues fn and returns a channel closed after fn has run. Actions
// run in the order they were queued; an action queued while Drain is running
// runs on the next Drain.
func (rt *RenderThread) Execute(fn func()) <-chan struct{} {
	done := make(chan struct{})
	rt.mu.Lock()
	rt.queue = append(rt.queue, renderAction{fn: fn, done: done})
	rt.mu.Unlock()
	return done
}

// ExecuteAndWait queues fn and blocks until it has run or ctx is done. It
// must not be called from the render thread itself: Drain would never reach
// the action.
func (rt *RenderThread) ExecuteAndWait(ctx context.Context, fn func()) error {
	done := rt.Execute(fn)
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain runs every queued action on the calling goroutine. A panicking
// action is logged and the remaining actions still run.
func (rt *RenderThread) Drain() int {
	rt.mu.Lock()
	batch := rt.queue
	rt.queue = rt.spare[:0]
	rt.mu.Unlock()

	rt.draining.Store(true)
	for i := range batch {
		rt.run(batch[i])
		batch[i] = renderAction{}
	}
	rt.draining.Store(false)

	rt.mu.Lock()
	rt.spare = batch[:0]
	rt.mu.Unlock()
	return len(batch)
}

func (rt *RenderThread) run(a renderAction) {
	defer close(a.done)
	defer func() {
		if r := recover(); r != nil {
			rt.logger.Error("render thread action panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	a.fn()
}

// Pending returns the number of queued actions.
func (rt *RenderThread) Pending() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.queue)
}

// IsRenderThread reports whether a Drain is in progress. Code that touches
// GPU resources outside Draw can assert on it.
func (rt *RenderThread) IsRenderThread() bool {
	return rt.draining.Load()
}
