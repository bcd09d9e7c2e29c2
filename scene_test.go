package lumen

import (
	"errors"
	"strings"
	"testing"
)

func TestSceneLifecycle(t *testing.T) {
	s := newTestScene("level")
	if s.State() != SceneUnloaded || s.World() != nil {
		t.Fatal("new scene should be unloaded without a world")
	}
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	if s.State() != SceneLoaded || s.World() == nil || s.RenderData() == nil {
		t.Fatal("loaded scene should own a world and render data")
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if err := s.Update(1.0 / 60); err != nil {
		t.Fatal(err)
	}
	s.Stop()
	s.Unload()
	if s.State() != SceneUnloaded || s.World() != nil || s.RenderData() != nil {
		t.Error("unloaded scene kept its world or render data")
	}
	s.Destroy()
	if s.State() != SceneDestroyed {
		t.Errorf("State = %v, want destroyed", s.State())
	}
}

func TestSceneOutOfOrderCallsPanic(t *testing.T) {
	s := newTestScene("level")
	p := NewPipeline(newRecordingAPI(), 8, 8, nil)

	v := expectPanic(t, func() { s.Render(p) })
	le, ok := v.(*LifecycleError)
	if !ok {
		t.Fatalf("panic value = %T, want *LifecycleError", v)
	}
	if le.Op != "Render" || le.State != SceneUnloaded || le.Scene != "level" {
		t.Errorf("LifecycleError = %+v", le)
	}
	if !strings.Contains(le.Error(), "Render not allowed in state unloaded") {
		t.Errorf("Error() = %q", le.Error())
	}

	expectPanic(t, func() { s.Start() })
	expectPanic(t, func() { s.Update(0) })
	expectPanic(t, func() { s.Stop() })
	expectPanic(t, func() { s.Unload() })

	s.Load()
	expectPanic(t, func() { s.Load() })
	expectPanic(t, func() { s.Render(p) })
	expectPanic(t, func() { s.Destroy() })

	s.Unload()
	s.Destroy()
	expectPanic(t, func() { s.CreateEntity("late") })
	expectPanic(t, func() { s.Load() })
}

func TestSceneAttachParentsFirstDetachLIFO(t *testing.T) {
	var log []string
	s := newTestScene("level")
	a := s.CreateEmptyEntity("a")
	b := s.CreateEmptyEntity("b")
	b.SetParent(a)
	c := s.CreateEmptyEntity("c")
	b.AddComponent(&probeComponent{name: "b", log: &log})
	a.AddComponent(&probeComponent{name: "a1", log: &log})
	a.AddComponent(&multiProbe{probeComponent{name: "a2", log: &log}})
	c.AddComponent(&probeComponent{name: "c", log: &log})

	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	s.Unload()
	want := "attach a1,attach a2,attach b,attach c,detach c,detach b,detach a2,detach a1"
	if got := strings.Join(log, ","); got != want {
		t.Errorf("log = %s\nwant  %s", got, want)
	}
}

func TestSceneLoadErrorUnwinds(t *testing.T) {
	var log []string
	s := newTestScene("level")
	a := s.CreateEmptyEntity("a")
	a.AddComponent(&probeComponent{name: "ok", log: &log})
	b := s.CreateEmptyEntity("b")
	boom := errors.New("boom")
	b.AddComponent(&probeComponent{name: "bad", log: &log, attachErr: boom})

	err := s.Load()
	if !errors.Is(err, boom) {
		t.Fatalf("Load err = %v, want boom", err)
	}
	if s.State() != SceneUnloaded || s.World() != nil {
		t.Error("failed Load left the scene loaded")
	}
	want := "attach ok,attach bad,detach ok"
	if got := strings.Join(log, ","); got != want {
		t.Errorf("log = %s, want %s", got, want)
	}

	// The scene can be loaded again once fixed.
	RemoveComponent[*probeComponent](b)
	if err := s.Load(); err != nil {
		t.Fatalf("second Load: %v", err)
	}
}

func TestSceneInstallerErrorUnwinds(t *testing.T) {
	boom := errors.New("no systems")
	s := NewScene("level", SceneOptions{Installers: []SystemInstaller{
		func(w *World) error { return boom },
	}})
	if err := s.Load(); !errors.Is(err, boom) {
		t.Fatalf("Load err = %v", err)
	}
	if s.State() != SceneUnloaded {
		t.Errorf("State = %v", s.State())
	}
}

func TestSceneDefaultSystems(t *testing.T) {
	s := loadedScene(t, "level")
	if _, ok := GetSystem[*TransformSystem](s.World()); !ok {
		t.Error("TransformSystem missing")
	}
	if _, ok := GetSystem[*TweenSystem](s.World()); !ok {
		t.Error("TweenSystem missing")
	}
	if _, ok := GetSystem[*AnimationSystem](s.World()); !ok {
		t.Error("AnimationSystem missing")
	}
	rs := renderSystem(t, s)
	if rs.RenderData() != s.RenderData() {
		t.Error("RenderSystem writes to a different SceneRenderData")
	}
}

func TestSceneDestroyEntityChildrenFirst(t *testing.T) {
	var log []string
	s := loadedScene(t, "level")
	root := s.CreateEmptyEntity("root")
	root.AddComponent(&probeComponent{name: "root", log: &log})
	kid := s.CreateEmptyEntity("kid")
	kid.SetParent(root)
	kid.AddComponent(&probeComponent{name: "kid", log: &log})
	log = nil

	s.DestroyEntity(root)
	want := "detach kid,detach root"
	if got := strings.Join(log, ","); got != want {
		t.Errorf("log = %s, want %s", got, want)
	}
	if !root.IsDisposed() || !kid.IsDisposed() {
		t.Error("entities not disposed")
	}
	if len(s.Entities()) != 0 {
		t.Errorf("Entities = %d, want 0", len(s.Entities()))
	}
	s.DestroyEntity(root)
}

func TestSceneLookups(t *testing.T) {
	s := newTestScene("level")
	a := s.CreateEntity("a")
	s.CreateEntity("b")
	if got, ok := s.FindEntity(a.ID); !ok || got != a {
		t.Error("FindEntity failed")
	}
	if got, ok := s.FindEntityByName("b"); !ok || got.Name != "b" {
		t.Error("FindEntityByName failed")
	}
	if _, ok := s.FindEntityByName("zz"); ok {
		t.Error("FindEntityByName found a missing name")
	}
	if a.Transform() == nil {
		t.Error("CreateEntity should add a transform")
	}
	if s.CreateEmptyEntity("e").Transform() != nil {
		t.Error("CreateEmptyEntity should not add a transform")
	}
}

func TestSceneAddEntityRules(t *testing.T) {
	s := newTestScene("level")
	e := s.NewEntity("e")
	if len(s.Entities()) != 0 {
		t.Fatal("NewEntity added itself")
	}
	if err := s.AddEntity(e); err != nil {
		t.Fatal(err)
	}
	expectPanic(t, func() { s.AddEntity(e) })
	other := newTestScene("other")
	expectPanic(t, func() { other.AddEntity(s.NewEntity("x")) })
}

func TestSceneRenderThroughPipeline(t *testing.T) {
	s := startedScene(t, "level")
	e := s.CreateEntity("box")
	sp := NewSpriteRenderer(AssetHandle[*Texture]{})
	sp.Size = Vec2{X: 10, Y: 10}
	e.AddComponent(sp)

	api := newRecordingAPI()
	p := NewPipeline(api, 64, 64, nil)
	for _, pass := range DefaultPasses(ColorBlack, 0.5) {
		p.RegisterPass(pass)
	}
	if err := s.Update(0); err != nil {
		t.Fatal(err)
	}
	if err := s.Render(p); err != nil {
		t.Fatal(err)
	}
	if len(api.draws) != 1 {
		t.Errorf("draws = %d, want 1", len(api.draws))
	}
	if len(api.clears) != 1 || api.clears[0] != ColorBlack {
		t.Errorf("clears = %v", api.clears)
	}
}
