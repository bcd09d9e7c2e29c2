package lumen

import (
	"errors"
	"strings"
	"testing"
)

// funcPass is a Pass driven by a closure.
type funcPass struct {
	name string
	cats []RenderCategory
	fn   func(pc *PassContext) error
}

func (p *funcPass) Name() string                 { return p.name }
func (p *funcPass) Categories() []RenderCategory { return p.cats }
func (p *funcPass) Execute(pc *PassContext) error {
	if p.fn == nil {
		return nil
	}
	return p.fn(pc)
}

// sizedPass records the sizes it is resized to.
type sizedPass struct {
	funcPass
	w, h int
}

func (p *sizedPass) Resize(_ RendererAPI, w, h int) error {
	p.w, p.h = w, h
	return nil
}

func TestPipelinePassOrder(t *testing.T) {
	api := newRecordingAPI()
	p := NewPipeline(api, 32, 32, nil)
	var log []string
	rec := func(name string) func(*PassContext) error {
		return func(pc *PassContext) error {
			if pc.Layer == nil {
				log = append(log, name)
			} else {
				log = append(log, name+"@"+pc.Layer.Name)
			}
			return nil
		}
	}
	p.RegisterPass(&funcPass{name: "first", fn: rec("first")})
	p.RegisterPass(&funcPass{name: "sprites", cats: []RenderCategory{CategorySprite}, fn: rec("sprites")})
	p.RegisterPass(&funcPass{name: "last", fn: rec("last")})

	s := loadedScene(t, "s")
	addSprite(t, s, "a", BlendNormal, 0).SetLayer(2)
	s.RenderData().Layer(3)

	if err := p.Render(s.RenderData().Snapshot()); err != nil {
		t.Fatal(err)
	}
	want := "first,sprites@layer2,last"
	if got := strings.Join(log, ","); got != want {
		t.Errorf("log = %s, want %s", got, want)
	}
	if p.Stats().Passes != 3 {
		t.Errorf("Passes = %d, want 3", p.Stats().Passes)
	}
}

func TestPipelineCreatesFramebufferOnce(t *testing.T) {
	api := newRecordingAPI()
	p := NewPipeline(api, 16, 8, nil)
	if !p.Framebuffer().IsZero() {
		t.Fatal("framebuffer created before Render")
	}
	for i := 0; i < 3; i++ {
		if err := p.Render(RenderSnapshot{}); err != nil {
			t.Fatal(err)
		}
	}
	if n := api.count("CreateFramebuffer"); n != 1 {
		t.Errorf("CreateFramebuffer calls = %d, want 1", n)
	}
	w, h, err := api.FramebufferSize(p.Framebuffer())
	if err != nil || w != 16 || h != 8 {
		t.Errorf("FramebufferSize = %d, %d, %v", w, h, err)
	}
}

func TestPipelinePassErrorAbortsAndRestores(t *testing.T) {
	api := newRecordingAPI()
	p := NewPipeline(api, 20, 10, nil)
	boom := errors.New("boom")
	ranLast := false
	p.RegisterPass(&funcPass{name: "ok"})
	p.RegisterPass(&funcPass{name: "bad", fn: func(pc *PassContext) error {
		pc.API.SetBlendFunc(BlendAdd)
		pc.API.SetViewport(Rect{Width: 1, Height: 1})
		return boom
	}})
	p.RegisterPass(&funcPass{name: "never", fn: func(*PassContext) error {
		ranLast = true
		return nil
	}})

	err := p.Render(RenderSnapshot{})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if !strings.Contains(err.Error(), "pass bad") {
		t.Errorf("err = %q, want the pass name", err)
	}
	if ranLast {
		t.Error("pass after the failing pass ran")
	}
	if !api.boundFB.IsZero() || !api.boundVA.IsZero() || !api.boundTex.IsZero() {
		t.Error("bindings not restored")
	}
	if api.blend != BlendNormal || api.depth != DepthAlways {
		t.Errorf("blend = %v, depth = %v", api.blend, api.depth)
	}
	if api.viewport != (Rect{Width: 20, Height: 10}) {
		t.Errorf("viewport = %+v", api.viewport)
	}

	// The next frame renders normally.
	p.passes = p.passes[:1]
	if err := p.Render(RenderSnapshot{}); err != nil {
		t.Errorf("next frame: %v", err)
	}
}

func TestPipelineBindFailureIsPassError(t *testing.T) {
	api := newRecordingAPI()
	p := NewPipeline(api, 4, 4, nil)
	p.RegisterPass(&funcPass{name: "clear"})
	api.fail["BindFramebuffer"] = ErrStaleHandle
	if err := p.Render(RenderSnapshot{}); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("err = %v, want ErrStaleHandle", err)
	}
}

func TestPipelineResizeDeferredDuringRender(t *testing.T) {
	api := newRecordingAPI()
	p := NewPipeline(api, 100, 50, nil)
	sized := &sizedPass{}
	var during [2]int
	sized.funcPass = funcPass{name: "sized", fn: func(pc *PassContext) error {
		if err := p.HandleEvent(WindowResizeEvent{Width: 200, Height: 80}); err != nil {
			return err
		}
		during[0], during[1] = p.Size()
		return nil
	}}
	p.RegisterPass(sized)

	if err := p.Render(RenderSnapshot{}); err != nil {
		t.Fatal(err)
	}
	if during != [2]int{100, 50} {
		t.Errorf("size during Render = %v, want [100 50]", during)
	}
	if w, h := p.Size(); w != 200 || h != 80 {
		t.Errorf("size after Render = %dx%d, want 200x80", w, h)
	}
	if sized.w != 200 || sized.h != 80 {
		t.Errorf("pass size = %dx%d, want 200x80", sized.w, sized.h)
	}
	if fw, fh, _ := api.FramebufferSize(p.Framebuffer()); fw != 200 || fh != 80 {
		t.Errorf("framebuffer = %dx%d", fw, fh)
	}
}

func TestPipelineResizeInvalid(t *testing.T) {
	p := NewPipeline(newRecordingAPI(), 10, 10, nil)
	if err := p.Resize(0, 10); err == nil {
		t.Error("Resize(0, 10) should fail")
	}
	if err := p.HandleEvent("ignored"); err != nil {
		t.Errorf("HandleEvent(string) = %v", err)
	}
}

func TestPipelineRegisterPassAfterFirstFrameResizes(t *testing.T) {
	p := NewPipeline(newRecordingAPI(), 30, 40, nil)
	if err := p.Render(RenderSnapshot{}); err != nil {
		t.Fatal(err)
	}
	sized := &sizedPass{funcPass: funcPass{name: "late"}}
	p.RegisterPass(sized)
	if sized.w != 30 || sized.h != 40 {
		t.Errorf("late pass size = %dx%d, want 30x40", sized.w, sized.h)
	}
}

func TestPipelineRelease(t *testing.T) {
	api := newRecordingAPI()
	p := NewPipeline(api, 10, 10, nil)
	light := NewLightPass(0.5)
	p.RegisterPass(light)
	if err := p.Render(RenderSnapshot{}); err != nil {
		t.Fatal(err)
	}
	if api.framebuffers.Len() != 2 {
		t.Fatalf("framebuffers = %d, want 2", api.framebuffers.Len())
	}
	p.Release()
	if api.framebuffers.Len() != 0 {
		t.Errorf("framebuffers after Release = %d, want 0", api.framebuffers.Len())
	}
	if !p.Framebuffer().IsZero() {
		t.Error("framebuffer handle kept after Release")
	}
}

// --- Batching through the default passes ---

func defaultPipeline(api RendererAPI) *Pipeline {
	p := NewPipeline(api, 64, 64, nil)
	for _, pass := range DefaultPasses(ColorBlack, 0.8) {
		p.RegisterPass(pass)
	}
	return p
}

func texturedSprite(t *testing.T, s *Scene, name string, tex *Texture) *SpriteRendererComponent {
	t.Helper()
	sp := NewSpriteRenderer(AssetValue(tex.Name, tex))
	if err := s.CreateEntity(name).AddComponent(sp); err != nil {
		t.Fatal(err)
	}
	return sp
}

func TestSpriteBatching(t *testing.T) {
	s := startedScene(t, "s")
	texA := NewTexture("a", solidImage(4, 4))
	texB := NewTexture("b", solidImage(4, 4))
	texturedSprite(t, s, "1", texA)
	texturedSprite(t, s, "2", texA)
	texturedSprite(t, s, "3", texB)

	api := newRecordingAPI()
	p := defaultPipeline(api)
	if err := s.Render(p); err != nil {
		t.Fatal(err)
	}
	st := p.Stats()
	if st.Items != 3 || st.Batches != 2 || st.DrawCalls != 2 {
		t.Errorf("stats = %+v, want 3 items, 2 batches, 2 draw calls", st)
	}
	if len(api.draws) != 2 || api.draws[0].count != 12 || api.draws[1].count != 6 {
		t.Errorf("draws = %d", len(api.draws))
	}
	if n := api.count("CreateTexture"); n != 2 {
		t.Errorf("CreateTexture = %d, want 2", n)
	}

	// The second frame reuses the vertex array and the textures.
	api.reset()
	if err := s.Render(p); err != nil {
		t.Fatal(err)
	}
	if api.count("CreateVertexArray") != 0 || api.count("CreateTexture") != 0 {
		t.Error("second frame re-created GPU resources")
	}
	if api.count("UpdateVertexBuffer") == 0 {
		t.Error("second frame did not update the vertex buffer")
	}
}

func TestSpriteQuadGeometry(t *testing.T) {
	s := startedScene(t, "s")
	tex := NewTexture("t", solidImage(8, 4))
	sp := texturedSprite(t, s, "hero", tex)
	sp.Color = Color{1, 1, 1, 0.5}
	sp.Entity().Transform().SetPosition(10, 20)

	api := newRecordingAPI()
	if err := s.Render(defaultPipeline(api)); err != nil {
		t.Fatal(err)
	}
	if len(api.draws) != 1 {
		t.Fatalf("draws = %d, want 1", len(api.draws))
	}
	v := api.draws[0].vertices
	if len(v) != 4 {
		t.Fatalf("vertices = %d, want 4", len(v))
	}
	// TL and BR corners.
	if v[0].DstX != 10 || v[0].DstY != 20 || v[3].DstX != 18 || v[3].DstY != 24 {
		t.Errorf("corners = (%v,%v) (%v,%v)", v[0].DstX, v[0].DstY, v[3].DstX, v[3].DstY)
	}
	if v[3].SrcX != 8 || v[3].SrcY != 4 {
		t.Errorf("BR uv = %v,%v", v[3].SrcX, v[3].SrcY)
	}
	// Premultiplied.
	if v[0].ColorR != 0.5 || v[0].ColorA != 0.5 {
		t.Errorf("color = %v,%v", v[0].ColorR, v[0].ColorA)
	}
}

func TestCameraViewAppliedToSprites(t *testing.T) {
	s := startedScene(t, "s")
	cam := NewCamera(Rect{})
	camEnt := s.CreateEntity("cam")
	camEnt.AddComponent(cam)
	cam.SetPrimary(true)
	camEnt.Transform().SetPosition(100, 100)
	sp := addSprite(t, s, "dot", BlendNormal, 0)
	sp.Entity().Transform().SetPosition(100, 100)

	api := newRecordingAPI()
	p := defaultPipeline(api)
	if err := s.Update(0); err != nil {
		t.Fatal(err)
	}
	if err := s.Render(p); err != nil {
		t.Fatal(err)
	}
	if len(api.draws) != 1 {
		t.Fatalf("draws = %d", len(api.draws))
	}
	// The camera centers its position in the 64×64 framebuffer.
	v := api.draws[0].vertices[0]
	if v.DstX != 32 || v.DstY != 32 {
		t.Errorf("TL = %v,%v, want 32,32", v.DstX, v.DstY)
	}
}

func TestLightPassComposites(t *testing.T) {
	s := startedScene(t, "s")
	addSprite(t, s, "floor", BlendNormal, 0)
	lamp := s.CreateEntity("lamp")
	lamp.AddComponent(NewPointLight(10))

	api := newRecordingAPI()
	p := defaultPipeline(api)
	if err := s.Render(p); err != nil {
		t.Fatal(err)
	}
	var light *LightPass
	for _, pass := range p.Passes() {
		if lp, ok := pass.(*LightPass); ok {
			light = lp
		}
	}
	if light == nil {
		t.Fatal("no LightPass in DefaultPasses")
	}
	if len(api.clears) != 2 || api.clears[1] != light.Ambient {
		t.Errorf("clears = %v, want the clear color then the ambient", api.clears)
	}
	last := api.draws[len(api.draws)-1]
	if last.blend != BlendMultiply || last.fbTex != light.target || last.fb != p.Framebuffer() {
		t.Errorf("composite draw = %+v", last)
	}
	var erased bool
	for _, d := range api.draws {
		if d.blend == BlendErase && d.fb == light.target {
			erased = true
		}
	}
	if !erased {
		t.Error("light was not drawn into the light target")
	}
}

func TestLightPassSkipsLayersWithoutLights(t *testing.T) {
	s := startedScene(t, "s")
	addSprite(t, s, "floor", BlendNormal, 0)
	api := newRecordingAPI()
	if err := s.Render(defaultPipeline(api)); err != nil {
		t.Fatal(err)
	}
	if api.count("BindFramebufferTexture") != 0 {
		t.Error("light composite ran without lights")
	}
}

// --- Scenarios ---

func TestPrimaryCameraAndSpriteAggregation(t *testing.T) {
	s := newTestScene("scenario")
	a := s.CreateEntity("A")
	cam := NewCamera(Rect{})
	cam.SetPrimary(true)
	a.AddComponent(cam)
	c := s.CreateEntity("C")
	b := s.CreateEntity("B")
	b.SetParent(c)
	sprite := NewSpriteRenderer(AssetHandle[*Texture]{})
	b.AddComponent(sprite)

	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if err := s.Update(1.0 / 60); err != nil {
		t.Fatal(err)
	}
	rs := renderSystem(t, s)
	if rs.PrimaryCamera() != cam {
		t.Errorf("PrimaryCamera = %v, want A's camera", rs.PrimaryCamera())
	}
	list := s.RenderData().Layer(0).List(CategorySprite)
	n := 0
	for i := 0; i < list.Len(); i++ {
		if list.At(i) == RenderData(sprite) {
			n++
		}
	}
	if n != 1 {
		t.Errorf("sprite listed %d times, want 1", n)
	}

	sprite.SetEnabled(false)
	if err := s.Update(1.0 / 60); err != nil {
		t.Fatal(err)
	}
	if list.Contains(sprite) {
		t.Error("disabled sprite still aggregated")
	}
}

func TestWindowResizeReachesPasses(t *testing.T) {
	api := newRecordingAPI()
	p := defaultPipeline(api)
	sized := &sizedPass{funcPass: funcPass{name: "probe"}}
	p.RegisterPass(sized)
	if err := p.Render(RenderSnapshot{}); err != nil {
		t.Fatal(err)
	}

	if err := p.HandleEvent(&WindowResizeEvent{Width: 320, Height: 180}); err != nil {
		t.Fatal(err)
	}
	if sized.w != 320 || sized.h != 180 {
		t.Errorf("probe pass = %dx%d, want 320x180", sized.w, sized.h)
	}
	for _, pass := range p.Passes() {
		if lp, ok := pass.(*LightPass); ok {
			if w, h := lp.Size(); w != 320 || h != 180 {
				t.Errorf("light pass = %dx%d, want 320x180", w, h)
			}
			if fw, fh, _ := api.FramebufferSize(lp.target); fw != 320 || fh != 180 {
				t.Errorf("light target = %dx%d", fw, fh)
			}
		}
	}
	if w, h, _ := api.FramebufferSize(p.Framebuffer()); w != 320 || h != 180 {
		t.Errorf("framebuffer = %dx%d", w, h)
	}
}
