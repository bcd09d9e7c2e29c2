package lumen

import (
	"fmt"
	"image"
	"math"
	"testing"
)

const epsilon = 1e-9

func approxEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func assertNear(t *testing.T, name string, got, want float64) {
	t.Helper()
	if !approxEqual(got, want, epsilon) {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}

func assertMatrix(t *testing.T, name string, got, want [6]float64) {
	t.Helper()
	for i := range got {
		if !approxEqual(got[i], want[i], epsilon) {
			t.Errorf("%s[%d] = %v, want %v (full: %v vs %v)", name, i, got[i], want[i], got, want)
		}
	}
}

// --- Recording backend ---

type fakeFramebuffer struct{ w, h int }

type fakeVertexArray struct{ vb, ib Handle }

// drawRecord is one DrawIndexed or DrawArray call with the state it ran in.
type drawRecord struct {
	fb       Handle
	tex      Handle
	fbTex    Handle
	blend    BlendMode
	viewport Rect
	vertices []Vertex
	count    int
}

// recordingAPI is a RendererAPI that keeps every resource in ResourceTables
// and records the calls made against it.
type recordingAPI struct {
	framebuffers ResourceTable[fakeFramebuffer]
	textures     ResourceTable[image.Image]
	vbs          ResourceTable[[]Vertex]
	ibs          ResourceTable[[]uint32]
	vas          ResourceTable[fakeVertexArray]

	boundFB    Handle
	boundTex   Handle
	boundFBTex Handle
	boundVA    Handle
	viewport   Rect
	blend      BlendMode
	depth      DepthFunc

	calls  []string
	draws  []drawRecord
	clears []Color
	fail   map[string]error
}

func newRecordingAPI() *recordingAPI {
	return &recordingAPI{fail: map[string]error{}}
}

func (a *recordingAPI) record(call string) error {
	a.calls = append(a.calls, call)
	return a.fail[call]
}

func (a *recordingAPI) count(call string) int {
	n := 0
	for _, c := range a.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (a *recordingAPI) reset() {
	a.calls = nil
	a.draws = nil
	a.clears = nil
}

func (a *recordingAPI) CreateFramebuffer(w, h int) (Handle, error) {
	if err := a.record("CreateFramebuffer"); err != nil {
		return Handle{}, err
	}
	return a.framebuffers.Alloc(fakeFramebuffer{w, h}), nil
}

func (a *recordingAPI) ResizeFramebuffer(fb Handle, w, h int) error {
	if err := a.record("ResizeFramebuffer"); err != nil {
		return err
	}
	return a.framebuffers.Set(fb, fakeFramebuffer{w, h})
}

func (a *recordingAPI) FramebufferSize(fb Handle) (int, int, error) {
	f, err := a.framebuffers.Get(fb)
	return f.w, f.h, err
}

func (a *recordingAPI) DestroyFramebuffer(fb Handle) error {
	a.record("DestroyFramebuffer")
	_, err := a.framebuffers.Free(fb)
	return err
}

func (a *recordingAPI) CreateTexture(img image.Image) (Handle, error) {
	if err := a.record("CreateTexture"); err != nil {
		return Handle{}, err
	}
	return a.textures.Alloc(img), nil
}

func (a *recordingAPI) TextureSize(tex Handle) (int, int, error) {
	img, err := a.textures.Get(tex)
	if err != nil {
		return 0, 0, err
	}
	b := img.Bounds()
	return b.Dx(), b.Dy(), nil
}

func (a *recordingAPI) DestroyTexture(tex Handle) error {
	a.record("DestroyTexture")
	_, err := a.textures.Free(tex)
	return err
}

func (a *recordingAPI) CreateVertexBuffer(v []Vertex) (Handle, error) {
	if err := a.record("CreateVertexBuffer"); err != nil {
		return Handle{}, err
	}
	return a.vbs.Alloc(append([]Vertex(nil), v...)), nil
}

func (a *recordingAPI) UpdateVertexBuffer(vb Handle, v []Vertex) error {
	if err := a.record("UpdateVertexBuffer"); err != nil {
		return err
	}
	return a.vbs.Set(vb, append([]Vertex(nil), v...))
}

func (a *recordingAPI) CreateIndexBuffer(i []uint32) (Handle, error) {
	if err := a.record("CreateIndexBuffer"); err != nil {
		return Handle{}, err
	}
	return a.ibs.Alloc(append([]uint32(nil), i...)), nil
}

func (a *recordingAPI) UpdateIndexBuffer(ib Handle, i []uint32) error {
	if err := a.record("UpdateIndexBuffer"); err != nil {
		return err
	}
	return a.ibs.Set(ib, append([]uint32(nil), i...))
}

func (a *recordingAPI) CreateVertexArray(vb, ib Handle) (Handle, error) {
	if err := a.record("CreateVertexArray"); err != nil {
		return Handle{}, err
	}
	if !a.vbs.Valid(vb) || !a.ibs.Valid(ib) {
		return Handle{}, ErrStaleHandle
	}
	return a.vas.Alloc(fakeVertexArray{vb, ib}), nil
}

func (a *recordingAPI) DestroyVertexArray(va Handle) error {
	a.record("DestroyVertexArray")
	v, err := a.vas.Free(va)
	if err != nil {
		return err
	}
	_, _ = a.vbs.Free(v.vb)
	_, _ = a.ibs.Free(v.ib)
	return nil
}

func (a *recordingAPI) BindFramebuffer(fb Handle) error {
	if err := a.record("BindFramebuffer"); err != nil {
		return err
	}
	if !a.framebuffers.Valid(fb) {
		return ErrStaleHandle
	}
	a.boundFB = fb
	return nil
}

func (a *recordingAPI) UnbindFramebuffer() {
	a.record("UnbindFramebuffer")
	a.boundFB = Handle{}
}

func (a *recordingAPI) BindTexture(tex Handle) error {
	if err := a.record("BindTexture"); err != nil {
		return err
	}
	if !tex.IsZero() && !a.textures.Valid(tex) {
		return ErrStaleHandle
	}
	a.boundTex = tex
	a.boundFBTex = Handle{}
	return nil
}

func (a *recordingAPI) BindFramebufferTexture(fb Handle) error {
	if err := a.record("BindFramebufferTexture"); err != nil {
		return err
	}
	if !a.framebuffers.Valid(fb) {
		return ErrStaleHandle
	}
	a.boundFBTex = fb
	a.boundTex = Handle{}
	return nil
}

func (a *recordingAPI) BindVertexArray(va Handle) error {
	if err := a.record("BindVertexArray"); err != nil {
		return err
	}
	if !a.vas.Valid(va) {
		return ErrStaleHandle
	}
	a.boundVA = va
	return nil
}

func (a *recordingAPI) Unbind() {
	a.record("Unbind")
	a.boundTex = Handle{}
	a.boundFBTex = Handle{}
	a.boundVA = Handle{}
}

func (a *recordingAPI) SetViewport(r Rect) {
	a.record("SetViewport")
	a.viewport = r
}

func (a *recordingAPI) SetBlendFunc(b BlendMode) {
	a.record("SetBlendFunc")
	a.blend = b
}

func (a *recordingAPI) SetDepthFunc(f DepthFunc) {
	a.record("SetDepthFunc")
	a.depth = f
}

func (a *recordingAPI) Clear(c Color) error {
	if err := a.record("Clear"); err != nil {
		return err
	}
	a.clears = append(a.clears, c)
	return nil
}

func (a *recordingAPI) DrawArray(first, count int) error {
	return a.draw("DrawArray", first, count)
}

func (a *recordingAPI) DrawIndexed(first, count int) error {
	return a.draw("DrawIndexed", first, count)
}

func (a *recordingAPI) draw(call string, first, count int) error {
	if err := a.record(call); err != nil {
		return err
	}
	va, err := a.vas.Get(a.boundVA)
	if err != nil {
		return fmt.Errorf("%s without vertex array: %w", call, err)
	}
	verts, _ := a.vbs.Get(va.vb)
	a.draws = append(a.draws, drawRecord{
		fb:       a.boundFB,
		tex:      a.boundTex,
		fbTex:    a.boundFBTex,
		blend:    a.blend,
		viewport: a.viewport,
		vertices: verts,
		count:    count,
	})
	return nil
}

var _ RendererAPI = (*recordingAPI)(nil)

// --- Scene helpers ---

func newTestScene(name string) *Scene {
	return NewScene(name, SceneOptions{})
}

func loadedScene(t *testing.T, name string) *Scene {
	t.Helper()
	s := newTestScene(name)
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func startedScene(t *testing.T, name string) *Scene {
	t.Helper()
	s := loadedScene(t, name)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return s
}

func renderSystem(t *testing.T, s *Scene) *RenderSystem {
	t.Helper()
	rs, ok := GetSystem[*RenderSystem](s.World())
	if !ok {
		t.Fatal("RenderSystem not registered")
	}
	return rs
}

func solidImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img
}

// expectPanic runs fn and returns the recovered value, failing if fn does
// not panic.
func expectPanic(t *testing.T, fn func()) (v any) {
	t.Helper()
	defer func() {
		v = recover()
		if v == nil {
			t.Error("expected panic")
		}
	}()
	fn()
	return nil
}
