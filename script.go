package lumen

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// scriptStep represents a single action in a script.
type scriptStep struct {
	Action string  `json:"action"`
	Label  string  `json:"label,omitempty"`
	Scene  string  `json:"scene,omitempty"`
	Entity string  `json:"entity,omitempty"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Frames int     `json:"frames,omitempty"`
}

// script is the top-level JSON structure of a script.
type script struct {
	Steps []scriptStep `json:"steps"`
}

var (
	// ErrScriptEntity is returned when a script step names an entity the
	// current scene does not have.
	ErrScriptEntity = errors.New("lumen: script entity not found")
	// ErrNoCurrentScene is returned by entity steps when no scene is current.
	ErrNoCurrentScene = errors.New("lumen: no current scene")
)

// ScriptRunner is a Layer that plays a JSON script, one step per tick, for
// automated visual testing. Steps:
//
//	{"action": "screenshot", "label": "title"}
//	{"action": "wait", "frames": 30}
//	{"action": "scene", "scene": "level1"}
//	{"action": "enable", "entity": "door"}
//	{"action": "disable", "entity": "door"}
//	{"action": "move", "entity": "player", "x": 10, "y": 20}
type ScriptRunner struct {
	steps     []scriptStep
	cursor    int
	waitCount int
	done      bool

	engine *Engine
	logger *zap.Logger
}

// LoadScript parses a JSON script and returns a ScriptRunner ready to be
// pushed with Engine.PushLayer.
func LoadScript(data []byte) (*ScriptRunner, error) {
	var s script
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if len(s.Steps) == 0 {
		return nil, fmt.Errorf("parse script: no steps")
	}
	for i, st := range s.Steps {
		switch st.Action {
		case "screenshot", "wait", "scene", "enable", "disable", "move":
		default:
			return nil, fmt.Errorf("parse script: step %d: unknown action %q", i, st.Action)
		}
	}
	return &ScriptRunner{steps: s.Steps}, nil
}

// Done reports whether all steps have been executed.
func (r *ScriptRunner) Done() bool {
	return r.done
}

// Attach implements Layer.
func (r *ScriptRunner) Attach(e *Engine) error {
	r.engine = e
	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r.logger = logger.Named("script")
	return nil
}

// Detach implements Layer.
func (r *ScriptRunner) Detach() {}

// Update implements Layer, executing at most one step per tick.
func (r *ScriptRunner) Update(float64) error {
	if r.done {
		return nil
	}
	if r.waitCount > 0 {
		r.waitCount--
		return nil
	}
	if r.cursor >= len(r.steps) {
		r.done = true
		return nil
	}

	st := r.steps[r.cursor]
	r.cursor++
	if err := r.run(st); err != nil {
		r.done = true
		return fmt.Errorf("script step %d (%s): %w", r.cursor-1, st.Action, err)
	}
	r.logger.Debug("script step", zap.Int("step", r.cursor-1), zap.String("action", st.Action))

	if r.cursor >= len(r.steps) && r.waitCount == 0 {
		r.done = true
	}
	return nil
}

func (r *ScriptRunner) run(st scriptStep) error {
	switch st.Action {
	case "screenshot":
		r.engine.Screenshot(st.Label)
	case "wait":
		if st.Frames > 0 {
			r.waitCount = st.Frames - 1 // this frame counts as one
		}
	case "scene":
		return r.engine.Scenes.SetCurrent(st.Scene)
	case "enable", "disable":
		e, err := r.entity(st.Entity)
		if err != nil {
			return err
		}
		e.SetEnabled(st.Action == "enable")
	case "move":
		e, err := r.entity(st.Entity)
		if err != nil {
			return err
		}
		e.Transform().SetPosition(st.X, st.Y)
	}
	return nil
}

func (r *ScriptRunner) entity(name string) (*Entity, error) {
	s := r.engine.Scenes.Current()
	if s == nil {
		return nil, ErrNoCurrentScene
	}
	e, ok := s.FindEntityByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScriptEntity, name)
	}
	return e, nil
}
