package lumen

import "testing"

func addSprite(t *testing.T, s *Scene, name string, blend BlendMode, order int) *SpriteRendererComponent {
	t.Helper()
	e := s.CreateEntity(name)
	sp := NewSpriteRenderer(AssetHandle[*Texture]{})
	sp.Size = Vec2{X: 1, Y: 1}
	sp.blend = blend
	sp.order = order
	if err := e.AddComponent(sp); err != nil {
		t.Fatal(err)
	}
	return sp
}

func listNames(l *RenderDataList) string {
	out := ""
	for i := 0; i < l.Len(); i++ {
		if out != "" {
			out += ","
		}
		out += l.At(i).(Component).Entity().Name
	}
	return out
}

func TestRenderSystemStableSort(t *testing.T) {
	s := loadedScene(t, "s")
	addSprite(t, s, "a", BlendNormal, 0)
	addSprite(t, s, "b", BlendNormal, 0)
	addSprite(t, s, "add", BlendAdd, -5)
	addSprite(t, s, "c", BlendNormal, 0)
	addSprite(t, s, "first", BlendNormal, -1)
	addSprite(t, s, "opaque", BlendNone, 10)

	list := s.RenderData().Layer(0).List(CategorySprite)
	want := "opaque,first,a,b,c,add"
	if got := listNames(list); got != want {
		t.Errorf("order = %s, want %s", got, want)
	}
}

func TestRenderSystemActivityTogglesMembership(t *testing.T) {
	s := loadedScene(t, "s")
	a := addSprite(t, s, "a", BlendNormal, 0)
	addSprite(t, s, "b", BlendNormal, 0)
	list := s.RenderData().Layer(0).List(CategorySprite)

	a.Entity().SetEnabled(false)
	if list.Contains(a) || list.Len() != 1 {
		t.Error("inactive sprite still listed")
	}
	a.Entity().SetEnabled(true)
	// Re-inserted at the upper bound of its key: after b.
	if got := listNames(list); got != "b,a" {
		t.Errorf("order = %s, want b,a", got)
	}

	a.SetEnabled(false)
	if list.Contains(a) {
		t.Error("disabled component still listed")
	}
	rs := renderSystem(t, s)
	if !rs.Registered(a) {
		t.Error("disabled component should stay registered")
	}
}

func TestRenderSystemResortAndRelayer(t *testing.T) {
	s := loadedScene(t, "s")
	a := addSprite(t, s, "a", BlendNormal, 0)
	addSprite(t, s, "b", BlendNormal, 1)
	l0 := s.RenderData().Layer(0).List(CategorySprite)

	a.SetOrder(2)
	if got := listNames(l0); got != "b,a" {
		t.Errorf("after SetOrder = %s, want b,a", got)
	}
	a.SetBlendMode(BlendNone)
	if got := listNames(l0); got != "a,b" {
		t.Errorf("after SetBlendMode = %s, want a,b", got)
	}

	a.SetLayer(2)
	if l0.Contains(a) {
		t.Error("sprite still on layer 0")
	}
	if len(s.RenderData().Layers()) != 3 {
		t.Errorf("layers = %d, want 3", len(s.RenderData().Layers()))
	}
	if !s.RenderData().Layer(2).List(CategorySprite).Contains(a) {
		t.Error("sprite not on layer 2")
	}
}

func TestRenderSystemUnregisterOnRemove(t *testing.T) {
	s := loadedScene(t, "s")
	a := addSprite(t, s, "a", BlendNormal, 0)
	rs := renderSystem(t, s)
	if rs.Count() != 1 {
		t.Fatalf("Count = %d, want 1", rs.Count())
	}
	RemoveComponent[*SpriteRendererComponent](a.Entity())
	if rs.Count() != 0 || rs.Registered(a) {
		t.Error("removed sprite still registered")
	}
	if s.RenderData().Layer(0).List(CategorySprite).Len() != 0 {
		t.Error("removed sprite still listed")
	}
	// Toggling a removed component must not touch the list.
	a.SetEnabled(false)
	a.SetEnabled(true)
}

func TestRenderSystemDoubleRegisterPanics(t *testing.T) {
	s := loadedScene(t, "s")
	a := addSprite(t, s, "a", BlendNormal, 0)
	expectPanic(t, func() { renderSystem(t, s).RegisterSprite(a) })
}

func TestRenderSystemRejectsForeignMesh(t *testing.T) {
	s := loadedScene(t, "s")
	expectPanic(t, func() { renderSystem(t, s).RegisterMesh(foreignMesh{}) })
}

type foreignMesh struct{}

func (foreignMesh) Serial() uint64   { return 1 }
func (foreignMesh) SortKey() SortKey { return SortKey{} }
func (foreignMesh) MeshData() Mesh   { return Mesh{} }

func TestRenderDataListInsertTwicePanics(t *testing.T) {
	l := NewRenderDataList(nil)
	d := &probeComponent{}
	l.Insert(d)
	expectPanic(t, func() { l.Insert(d) })
	if !l.Remove(d) || l.Remove(d) {
		t.Error("Remove should succeed once")
	}
}

func TestRenderDataListUnsortedKeepsInsertionOrder(t *testing.T) {
	l := NewRenderDataList(nil)
	a, b, c := &probeComponent{}, &probeComponent{}, &probeComponent{}
	l.Insert(a)
	l.Insert(b)
	l.Insert(c)
	l.Remove(b)
	if l.Len() != 2 || l.At(0) != a || l.At(1) != c {
		t.Error("removal reordered the list")
	}
	l.Clear()
	if l.Len() != 0 || l.Contains(a) {
		t.Error("Clear left entries")
	}
}

func TestLayerBindingsOrder(t *testing.T) {
	d := NewSceneRenderData()
	l := d.Layer(1)
	if len(d.Layers()) != 2 || l.Index != 1 {
		t.Fatalf("Layer(1) created %d layers", len(d.Layers()))
	}
	want := []RenderCategory{CategorySprite, CategoryMesh, CategoryText, CategoryLine, CategoryUI, CategoryLight}
	for i, b := range l.Bindings {
		if b.Category != want[i] {
			t.Errorf("binding %d = %v, want %v", i, b.Category, want[i])
		}
	}
	expectPanic(t, func() { d.Layer(-1) })
}

// --- Cameras ---

func addCamera(t *testing.T, s *Scene, name string) *CameraComponent {
	t.Helper()
	c := NewCamera(Rect{Width: 100, Height: 100})
	if err := s.CreateEntity(name).AddComponent(c); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestPrimaryCameraSingleHolder(t *testing.T) {
	s := loadedScene(t, "s")
	rs := renderSystem(t, s)
	c1 := addCamera(t, s, "c1")
	c2 := addCamera(t, s, "c2")

	var got []*CameraComponent
	rs.OnPrimaryCameraChanged().Subscribe(func(c *CameraComponent) { got = append(got, c) })

	c1.SetPrimary(true)
	c2.SetPrimary(true)
	if c1.Primary() || !c2.Primary() || rs.PrimaryCamera() != c2 {
		t.Error("primary flag not moved to c2")
	}
	if len(got) != 2 || got[0] != c1 || got[1] != c2 {
		t.Errorf("notifications = %v", got)
	}

	c2.SetPrimary(true)
	if len(got) != 2 {
		t.Error("setting the current primary again notified")
	}

	c2.SetPrimary(false)
	if rs.PrimaryCamera() != nil || len(got) != 3 || got[2] != nil {
		t.Error("ClearPrimary did not notify nil")
	}
	c1.SetPrimary(false)
	if len(got) != 3 {
		t.Error("clearing a non-primary camera notified")
	}
}

func TestPrimaryCameraReentryPanics(t *testing.T) {
	s := loadedScene(t, "s")
	rs := renderSystem(t, s)
	c1 := addCamera(t, s, "c1")
	c2 := addCamera(t, s, "c2")
	rs.OnPrimaryCameraChanged().Subscribe(func(c *CameraComponent) {
		if c == c2 {
			rs.SetPrimary(c1)
		}
	})
	expectPanic(t, func() { rs.SetPrimary(c2) })
}

func TestPrimaryCameraFlagBeforeAttach(t *testing.T) {
	s := newTestScene("s")
	c := NewCamera(Rect{})
	c.SetPrimary(true)
	s.CreateEntity("cam").AddComponent(c)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	if renderSystem(t, s).PrimaryCamera() != c {
		t.Error("flagged camera did not claim primary on attach")
	}
}

func TestUnregisterPrimaryCamera(t *testing.T) {
	s := loadedScene(t, "s")
	rs := renderSystem(t, s)
	c := addCamera(t, s, "cam")
	c.SetPrimary(true)
	var got []*CameraComponent
	rs.OnPrimaryCameraChanged().Subscribe(func(c *CameraComponent) { got = append(got, c) })

	e := c.Entity()
	RemoveComponent[*CameraComponent](e)
	if rs.PrimaryCamera() != nil {
		t.Error("primary survived unregister")
	}
	if len(got) != 1 || got[0] != nil {
		t.Errorf("notifications = %v, want [nil]", got)
	}
	if !c.Primary() {
		t.Error("unregistered camera lost its primary flag")
	}

	e.AddComponent(c)
	if rs.PrimaryCamera() != c {
		t.Error("camera did not reclaim primary on re-attach")
	}
}

func TestSyncLayerCameras(t *testing.T) {
	s := startedScene(t, "s")
	rs := renderSystem(t, s)
	main := addCamera(t, s, "main")
	main.SetPrimary(true)
	hud := NewCamera(Rect{})
	hud.Layer = 1
	s.CreateEntity("hud").AddComponent(hud)

	if err := s.Update(0); err != nil {
		t.Fatal(err)
	}
	layers := rs.RenderData().Layers()
	if len(layers) < 2 {
		t.Fatalf("layers = %d, want 2", len(layers))
	}
	if layers[0].Camera != main || layers[1].Camera != hud {
		t.Error("layer cameras not assigned")
	}

	hud.SetEnabled(false)
	rs.SyncLayerCameras()
	if layers[1].Camera != main {
		t.Error("layer without an active camera should fall back to the primary")
	}
}

func TestInactivePrimaryCameraNotUsed(t *testing.T) {
	s := startedScene(t, "s")
	rs := renderSystem(t, s)
	cam := addCamera(t, s, "cam")
	cam.SetPrimary(true)
	if err := s.Update(0); err != nil {
		t.Fatal(err)
	}
	layer := rs.RenderData().Layer(0)
	if layer.Camera != cam {
		t.Fatal("layer 0 not using the primary")
	}

	cam.SetEnabled(false)
	if err := s.Update(0); err != nil {
		t.Fatal(err)
	}
	if rs.PrimaryCamera() != nil || layer.Camera != nil {
		t.Error("disabled primary camera still in use")
	}
	if !cam.Primary() {
		t.Error("disabling the camera cleared its primary flag")
	}

	cam.SetEnabled(true)
	cam.Entity().SetEnabled(false)
	if err := s.Update(0); err != nil {
		t.Fatal(err)
	}
	if rs.PrimaryCamera() != nil || layer.Camera != nil {
		t.Error("primary camera on a disabled entity still in use")
	}

	cam.Entity().SetEnabled(true)
	if err := s.Update(0); err != nil {
		t.Fatal(err)
	}
	if rs.PrimaryCamera() != cam || layer.Camera != cam {
		t.Error("re-enabled primary camera not restored")
	}
}

func TestCameraSetLayer(t *testing.T) {
	s := startedScene(t, "s")
	rs := renderSystem(t, s)
	main := addCamera(t, s, "main")
	main.SetPrimary(true)
	mini := addCamera(t, s, "minimap")

	mini.SetLayer(3)
	l3 := rs.RenderData().Layer(3)
	if l3.Camera != mini {
		t.Errorf("layer 3 camera = %v, want minimap", l3.Camera)
	}

	// Writing the field directly is picked up on the next Update.
	mini.Layer = 5
	if err := s.Update(0); err != nil {
		t.Fatal(err)
	}
	if l5 := rs.RenderData().Layer(5); l5.Camera != mini {
		t.Error("layer 5 not assigned after a direct field write")
	}
	if l3.Camera != main {
		t.Error("layer 3 should fall back to the primary")
	}
}
