package lumen

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// debugMode turns on disposed-entity checks, tree-depth warnings and
// per-frame stats logging. Set through SetDebugMode or Config.Debug.
var debugMode bool

// debugLogger receives the debug-mode warnings.
var debugLogger = zap.NewNop()

// SetDebugMode enables or disables debug mode. When enabled, mutating a
// destroyed entity panics, deep hierarchies are logged as warnings and
// pipelines log per-frame timing stats at Debug level.
func SetDebugMode(enabled bool, logger *zap.Logger) {
	debugMode = enabled
	if logger != nil {
		debugLogger = logger.Named("debug")
	}
}

// DebugMode reports whether debug mode is on.
func DebugMode() bool { return debugMode }

// debugCheckDisposed panics with a descriptive message when a destroyed
// entity is mutated. Callers check debugMode first.
func debugCheckDisposed(e *Entity, op string) {
	if e.disposed {
		panic(fmt.Sprintf("lumen debug: %s on destroyed entity %q (ID was %s)", op, e.Name, e.ID))
	}
}

// debugMaxTreeDepth is the hierarchy depth that triggers a warning.
const debugMaxTreeDepth = 32

func debugCheckTreeDepth(e *Entity) {
	depth := 0
	for p := e; p != nil; p = p.parent {
		depth++
	}
	if depth > debugMaxTreeDepth {
		debugLogger.Warn("hierarchy too deep",
			zap.String("entity", e.Name), zap.Int("depth", depth), zap.Int("threshold", debugMaxTreeDepth))
	}
}

// debugMaxChildCount is the child count that triggers a warning.
const debugMaxChildCount = 1000

func debugCheckChildCount(e *Entity) {
	if len(e.children) > debugMaxChildCount {
		debugLogger.Warn("too many children",
			zap.String("entity", e.Name), zap.Int("children", len(e.children)), zap.Int("threshold", debugMaxChildCount))
	}
}

// frameTimings holds one frame's per-pass durations. Only populated in debug
// mode.
type frameTimings struct {
	passes []passTiming
	total  time.Duration
}

type passTiming struct {
	name string
	dur  time.Duration
}

func (t *frameTimings) reset() {
	t.passes = t.passes[:0]
	t.total = 0
}

func (t *frameTimings) add(name string, d time.Duration) {
	t.passes = append(t.passes, passTiming{name: name, dur: d})
	t.total += d
}

// logFrame writes the frame's stats and timings at Debug level.
func logFrame(logger *zap.Logger, stats FrameStats, timings *frameTimings) {
	if !debugMode {
		return
	}
	fields := make([]zap.Field, 0, len(timings.passes)+5)
	fields = append(fields,
		zap.Int("passes", stats.Passes),
		zap.Int("items", stats.Items),
		zap.Int("batches", stats.Batches),
		zap.Int("drawCalls", stats.DrawCalls),
		zap.Duration("total", timings.total),
	)
	for _, p := range timings.passes {
		fields = append(fields, zap.Duration("pass."+p.name, p.dur))
	}
	logger.Debug("frame", fields...)
}
