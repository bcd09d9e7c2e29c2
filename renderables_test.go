package lumen

import "testing"

func renderOnce(t *testing.T, s *Scene) *recordingAPI {
	t.Helper()
	api := newRecordingAPI()
	if err := s.Update(0); err != nil {
		t.Fatal(err)
	}
	if err := s.Render(defaultPipeline(api)); err != nil {
		t.Fatal(err)
	}
	return api
}

func TestMeshPolygonDraw(t *testing.T) {
	s := startedScene(t, "s")
	m := NewPolygonMesh([]Vec2{{0, 0}, {4, 0}, {4, 4}, {0, 4}}, AssetHandle[*Texture]{})
	e := s.CreateEntity("quad")
	e.Transform().SetPosition(10, 0)
	if err := e.AddComponent(m); err != nil {
		t.Fatal(err)
	}
	if len(m.Vertices) != 4 || len(m.Indices) != 6 {
		t.Fatalf("fan = %d verts, %d indices", len(m.Vertices), len(m.Indices))
	}
	if b := m.Bounds(); b != (Rect{Width: 4, Height: 4}) {
		t.Errorf("Bounds = %+v", b)
	}

	api := renderOnce(t, s)
	if len(api.draws) != 1 || api.draws[0].count != 6 {
		t.Fatalf("draws = %+v", api.draws)
	}
	v := api.draws[0].vertices
	if v[0].DstX != 10 || v[2].DstX != 14 || v[2].DstY != 4 {
		t.Errorf("vertices = %+v", v[:3])
	}
}

func TestMeshUnresolvedTextureDrawsNothing(t *testing.T) {
	s := startedScene(t, "s")
	reg := NewAssetRegistry(nil)
	m := NewPolygonMesh([]Vec2{{0, 0}, {4, 0}, {0, 4}}, HandleOf[*Texture](reg, "missing.png"))
	s.CreateEntity("tri").AddComponent(m)

	api := renderOnce(t, s)
	if len(api.draws) != 0 {
		t.Errorf("draws = %d, want 0", len(api.draws))
	}
}

func TestLineSegments(t *testing.T) {
	l := NewLineRenderer(Vec2{}, Vec2{X: 10}, Vec2{X: 10, Y: 10})
	if l.Segments() != 2 {
		t.Errorf("open Segments = %d, want 2", l.Segments())
	}
	l.Closed = true
	if l.Segments() != 3 {
		t.Errorf("closed Segments = %d, want 3", l.Segments())
	}
	if NewLineRenderer(Vec2{}).Segments() != 0 {
		t.Error("single point has segments")
	}
}

func TestLineDraw(t *testing.T) {
	s := startedScene(t, "s")
	l := NewLineRenderer(Vec2{}, Vec2{X: 10}, Vec2{X: 10, Y: 10})
	l.Width = 2
	s.CreateEntity("line").AddComponent(l)

	api := newRecordingAPI()
	p := defaultPipeline(api)
	if err := s.Render(p); err != nil {
		t.Fatal(err)
	}
	if len(api.draws) != 1 || api.draws[0].count != 12 {
		t.Fatalf("draws = %+v", api.draws)
	}
	v := api.draws[0].vertices
	// First segment runs along +X, so its quad spans y -1..1.
	if v[0].DstX != 0 || v[0].DstY != 1 || v[3].DstX != 10 || v[3].DstY != -1 {
		t.Errorf("segment quad = %+v", v[:4])
	}

	l.Closed = true
	api.reset()
	if err := s.Render(p); err != nil {
		t.Fatal(err)
	}
	if len(api.draws) != 1 || api.draws[0].count != 18 {
		t.Errorf("closed draws = %+v, want one draw of 18", api.draws)
	}
}

func TestLineZeroWidthSkipped(t *testing.T) {
	s := startedScene(t, "s")
	l := NewLineRenderer(Vec2{}, Vec2{X: 10})
	l.Width = 0
	s.CreateEntity("line").AddComponent(l)
	if api := renderOnce(t, s); len(api.draws) != 0 {
		t.Errorf("draws = %d, want 0", len(api.draws))
	}
}

func TestUIImageIgnoresCamera(t *testing.T) {
	s := startedScene(t, "s")
	cam := NewCamera(Rect{})
	camEnt := s.CreateEntity("cam")
	camEnt.AddComponent(cam)
	cam.SetPrimary(true)
	camEnt.Transform().SetPosition(100, 100)

	ui := NewUIImage(AssetHandle[*Texture]{})
	ui.Size = Vec2{X: 4, Y: 4}
	e := s.CreateEntity("hud")
	e.Transform().SetPosition(5, 5)
	e.AddComponent(ui)

	api := renderOnce(t, s)
	if len(api.draws) != 1 {
		t.Fatalf("draws = %d", len(api.draws))
	}
	if v := api.draws[0].vertices[0]; v.DstX != 5 || v.DstY != 5 {
		t.Errorf("TL = %v,%v, want 5,5", v.DstX, v.DstY)
	}
}

func TestTextMeasureAndEmptyContent(t *testing.T) {
	txt := NewTextRenderer("hello")
	w, h := txt.Measure()
	if w <= 0 || h <= 0 {
		t.Errorf("Measure = %v,%v", w, h)
	}
	longer := NewTextRenderer("hello world")
	if lw, _ := longer.Measure(); lw <= w {
		t.Errorf("longer text measured %v <= %v", lw, w)
	}

	s := newTestScene("s")
	empty := NewTextRenderer("")
	s.CreateEntity("label").AddComponent(empty)
	if td := empty.TextData(); td.Texture != nil {
		t.Error("empty text rasterized")
	}
}

func TestTextCloneDropsCache(t *testing.T) {
	txt := NewTextRenderer("x")
	txt.Align = TextAlignCenter
	c := txt.Clone().(*TextRendererComponent)
	if c.Content != "x" || c.Align != TextAlignCenter || c.cache != nil {
		t.Errorf("clone = %+v", c)
	}
}
