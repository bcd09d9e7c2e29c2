package lumen

import (
	"fmt"
	"image"
	"math"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"go.uber.org/zap"
)

// whitePixel is the texture used when no texture is bound.
var whitePixel *ebiten.Image

func init() {
	whitePixel = ebiten.NewImage(1, 1)
	whitePixel.Fill(ColorWhite.RGBA())
}

// ebitenBlend returns the ebiten.Blend value corresponding to b.
func ebitenBlend(b BlendMode) ebiten.Blend {
	switch b {
	case BlendNormal:
		return ebiten.BlendSourceOver
	case BlendAdd:
		return ebiten.BlendLighter
	case BlendMultiply:
		return ebiten.Blend{
			BlendFactorSourceRGB:        ebiten.BlendFactorDestinationColor,
			BlendFactorSourceAlpha:      ebiten.BlendFactorDestinationAlpha,
			BlendFactorDestinationRGB:   ebiten.BlendFactorOneMinusSourceAlpha,
			BlendFactorDestinationAlpha: ebiten.BlendFactorOneMinusSourceAlpha,
			BlendOperationRGB:           ebiten.BlendOperationAdd,
			BlendOperationAlpha:         ebiten.BlendOperationAdd,
		}
	case BlendScreen:
		return ebiten.Blend{
			BlendFactorSourceRGB:        ebiten.BlendFactorOne,
			BlendFactorSourceAlpha:      ebiten.BlendFactorOne,
			BlendFactorDestinationRGB:   ebiten.BlendFactorOneMinusSourceColor,
			BlendFactorDestinationAlpha: ebiten.BlendFactorOneMinusSourceAlpha,
			BlendOperationRGB:           ebiten.BlendOperationAdd,
			BlendOperationAlpha:         ebiten.BlendOperationAdd,
		}
	case BlendErase:
		return ebiten.BlendDestinationOut
	case BlendMask:
		return ebiten.Blend{
			BlendFactorSourceRGB:        ebiten.BlendFactorZero,
			BlendFactorSourceAlpha:      ebiten.BlendFactorZero,
			BlendFactorDestinationRGB:   ebiten.BlendFactorSourceAlpha,
			BlendFactorDestinationAlpha: ebiten.BlendFactorSourceAlpha,
			BlendOperationRGB:           ebiten.BlendOperationAdd,
			BlendOperationAlpha:         ebiten.BlendOperationAdd,
		}
	case BlendBelow:
		return ebiten.BlendDestinationOver
	case BlendNone:
		return ebiten.BlendCopy
	default:
		return ebiten.BlendSourceOver
	}
}

// --- Framebuffer pool ---

// framebufferPool manages reusable offscreen ebiten.Images keyed by
// power-of-two dimensions. After warmup, acquire/release are zero-alloc.
type framebufferPool struct {
	buckets map[uint64][]*ebiten.Image
}

// poolKey packs power-of-two width and height into a single uint64.
func poolKey(w, h int) uint64 {
	return uint64(w)<<32 | uint64(h)
}

// acquire returns a cleared offscreen image with at least (w, h) pixels.
func (p *framebufferPool) acquire(w, h int) *ebiten.Image {
	pw := nextPowerOfTwo(w)
	ph := nextPowerOfTwo(h)
	if stack := p.buckets[poolKey(pw, ph)]; len(stack) > 0 {
		img := stack[len(stack)-1]
		p.buckets[poolKey(pw, ph)] = stack[:len(stack)-1]
		img.Clear()
		return img
	}
	return ebiten.NewImageWithOptions(
		image.Rect(0, 0, pw, ph),
		&ebiten.NewImageOptions{Unmanaged: true},
	)
}

// release returns an image to the pool. It is cleared on the next acquire.
func (p *framebufferPool) release(img *ebiten.Image) {
	if img == nil {
		return
	}
	b := img.Bounds()
	if p.buckets == nil {
		p.buckets = make(map[uint64][]*ebiten.Image)
	}
	key := poolKey(b.Dx(), b.Dy())
	p.buckets[key] = append(p.buckets[key], img)
}

// nextPowerOfTwo returns the smallest power of two >= n (minimum 1).
func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << int(math.Ceil(math.Log2(float64(n))))
}

// --- Backend resources ---

type ebitenFramebuffer struct {
	img  *ebiten.Image
	w, h int
}

// view returns the logical (w, h) region of the pooled image.
func (f *ebitenFramebuffer) view() *ebiten.Image {
	return f.img.SubImage(image.Rect(0, 0, f.w, f.h)).(*ebiten.Image)
}

type ebitenVertexBuffer struct{ data []Vertex }

type ebitenIndexBuffer struct{ data []uint32 }

type ebitenVertexArray struct{ vb, ib Handle }

// EbitenRendererAPI implements RendererAPI on top of Ebitengine. Framebuffers
// are pooled *ebiten.Image values and draws go through DrawTriangles32.
// Depth state is recorded but not enforced: 2D ordering comes from sorting.
type EbitenRendererAPI struct {
	logger *zap.Logger

	framebuffers ResourceTable[*ebitenFramebuffer]
	textures     ResourceTable[*ebiten.Image]
	vertexBufs   ResourceTable[*ebitenVertexBuffer]
	indexBufs    ResourceTable[*ebitenIndexBuffer]
	vertexArrays ResourceTable[ebitenVertexArray]
	pool         framebufferPool

	target      *ebitenFramebuffer
	texture     *ebiten.Image
	vertexArray ebitenVertexArray
	hasVA       bool
	viewport    Rect
	blend       BlendMode
	depth       DepthFunc

	// Preallocated conversion buffers, reused every draw.
	verts []ebiten.Vertex
	inds  []uint32
	triOp ebiten.DrawTrianglesOptions

	debugBounds []Rect
}

// NewEbitenRendererAPI creates the Ebitengine backend.
func NewEbitenRendererAPI(logger *zap.Logger) *EbitenRendererAPI {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EbitenRendererAPI{logger: logger.Named("ebiten")}
}

// CreateFramebuffer allocates a framebuffer of at least (width, height).
func (a *EbitenRendererAPI) CreateFramebuffer(width, height int) (Handle, error) {
	if width <= 0 || height <= 0 {
		return Handle{}, fmt.Errorf("lumen: invalid framebuffer size %dx%d", width, height)
	}
	fb := &ebitenFramebuffer{img: a.pool.acquire(width, height), w: width, h: height}
	return a.framebuffers.Alloc(fb), nil
}

// ResizeFramebuffer changes the logical size, swapping the backing image
// when it no longer fits.
func (a *EbitenRendererAPI) ResizeFramebuffer(h Handle, width, height int) error {
	fb, err := a.framebuffers.Get(h)
	if err != nil {
		return err
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("lumen: invalid framebuffer size %dx%d", width, height)
	}
	b := fb.img.Bounds()
	if width > b.Dx() || height > b.Dy() {
		a.pool.release(fb.img)
		fb.img = a.pool.acquire(width, height)
	}
	fb.w, fb.h = width, height
	return nil
}

// FramebufferSize returns the logical size of a framebuffer.
func (a *EbitenRendererAPI) FramebufferSize(h Handle) (int, int, error) {
	fb, err := a.framebuffers.Get(h)
	if err != nil {
		return 0, 0, err
	}
	return fb.w, fb.h, nil
}

// DestroyFramebuffer returns the backing image to the pool.
func (a *EbitenRendererAPI) DestroyFramebuffer(h Handle) error {
	fb, err := a.framebuffers.Free(h)
	if err != nil {
		return err
	}
	if a.target == fb {
		a.target = nil
	}
	a.pool.release(fb.img)
	return nil
}

// CreateTexture uploads img. An *ebiten.Image is used as is.
func (a *EbitenRendererAPI) CreateTexture(img image.Image) (Handle, error) {
	if img == nil {
		return Handle{}, fmt.Errorf("lumen: nil texture image")
	}
	eimg, ok := img.(*ebiten.Image)
	if !ok {
		eimg = ebiten.NewImageFromImage(img)
	}
	return a.textures.Alloc(eimg), nil
}

// TextureSize returns the pixel size of a texture.
func (a *EbitenRendererAPI) TextureSize(h Handle) (int, int, error) {
	img, err := a.textures.Get(h)
	if err != nil {
		return 0, 0, err
	}
	b := img.Bounds()
	return b.Dx(), b.Dy(), nil
}

// DestroyTexture frees a texture.
func (a *EbitenRendererAPI) DestroyTexture(h Handle) error {
	img, err := a.textures.Free(h)
	if err != nil {
		return err
	}
	if a.texture == img {
		a.texture = nil
	}
	img.Deallocate()
	return nil
}

// CreateVertexBuffer copies vertices into a new buffer.
func (a *EbitenRendererAPI) CreateVertexBuffer(vertices []Vertex) (Handle, error) {
	vb := &ebitenVertexBuffer{data: append([]Vertex(nil), vertices...)}
	return a.vertexBufs.Alloc(vb), nil
}

// UpdateVertexBuffer replaces the buffer contents, reusing its capacity.
func (a *EbitenRendererAPI) UpdateVertexBuffer(h Handle, vertices []Vertex) error {
	vb, err := a.vertexBufs.Get(h)
	if err != nil {
		return err
	}
	vb.data = append(vb.data[:0], vertices...)
	return nil
}

// CreateIndexBuffer copies indices into a new buffer.
func (a *EbitenRendererAPI) CreateIndexBuffer(indices []uint32) (Handle, error) {
	ib := &ebitenIndexBuffer{data: append([]uint32(nil), indices...)}
	return a.indexBufs.Alloc(ib), nil
}

// UpdateIndexBuffer replaces the buffer contents, reusing its capacity.
func (a *EbitenRendererAPI) UpdateIndexBuffer(h Handle, indices []uint32) error {
	ib, err := a.indexBufs.Get(h)
	if err != nil {
		return err
	}
	ib.data = append(ib.data[:0], indices...)
	return nil
}

// CreateVertexArray ties a vertex buffer to an optional index buffer.
func (a *EbitenRendererAPI) CreateVertexArray(vb, ib Handle) (Handle, error) {
	if !a.vertexBufs.Valid(vb) {
		return Handle{}, ErrStaleHandle
	}
	if !ib.IsZero() && !a.indexBufs.Valid(ib) {
		return Handle{}, ErrStaleHandle
	}
	return a.vertexArrays.Alloc(ebitenVertexArray{vb: vb, ib: ib}), nil
}

// DestroyVertexArray frees the array and the buffers it owns.
func (a *EbitenRendererAPI) DestroyVertexArray(h Handle) error {
	va, err := a.vertexArrays.Free(h)
	if err != nil {
		return err
	}
	if a.hasVA && a.vertexArray == va {
		a.hasVA = false
	}
	_, _ = a.vertexBufs.Free(va.vb)
	if !va.ib.IsZero() {
		_, _ = a.indexBufs.Free(va.ib)
	}
	return nil
}

// BindFramebuffer makes fb the draw target and resets the viewport to it.
func (a *EbitenRendererAPI) BindFramebuffer(h Handle) error {
	fb, err := a.framebuffers.Get(h)
	if err != nil {
		return err
	}
	a.target = fb
	a.viewport = Rect{Width: float64(fb.w), Height: float64(fb.h)}
	return nil
}

// UnbindFramebuffer clears the draw target.
func (a *EbitenRendererAPI) UnbindFramebuffer() {
	a.target = nil
}

// BindTexture binds a texture, or the white pixel for the zero handle.
func (a *EbitenRendererAPI) BindTexture(h Handle) error {
	if h.IsZero() {
		a.texture = nil
		return nil
	}
	img, err := a.textures.Get(h)
	if err != nil {
		return err
	}
	a.texture = img
	return nil
}

// BindFramebufferTexture binds a framebuffer's contents as the texture.
func (a *EbitenRendererAPI) BindFramebufferTexture(h Handle) error {
	fb, err := a.framebuffers.Get(h)
	if err != nil {
		return err
	}
	if fb == a.target {
		return fmt.Errorf("lumen: framebuffer %v is both target and texture", h)
	}
	a.texture = fb.view()
	return nil
}

// BindVertexArray binds the geometry for the next draw.
func (a *EbitenRendererAPI) BindVertexArray(h Handle) error {
	va, err := a.vertexArrays.Get(h)
	if err != nil {
		return err
	}
	a.vertexArray = va
	a.hasVA = true
	return nil
}

// Unbind releases the bound texture and vertex array.
func (a *EbitenRendererAPI) Unbind() {
	a.texture = nil
	a.hasVA = false
}

// SetViewport restricts draws and clears to r, in framebuffer pixels.
func (a *EbitenRendererAPI) SetViewport(r Rect) { a.viewport = r }

// SetBlendFunc sets the blend mode for subsequent draws.
func (a *EbitenRendererAPI) SetBlendFunc(b BlendMode) { a.blend = b }

// SetDepthFunc records the depth function.
func (a *EbitenRendererAPI) SetDepthFunc(f DepthFunc) { a.depth = f }

// DepthFunc returns the recorded depth function.
func (a *EbitenRendererAPI) DepthFunc() DepthFunc { return a.depth }

// Clear fills the viewport of the bound framebuffer.
func (a *EbitenRendererAPI) Clear(c Color) error {
	dst, err := a.dst()
	if err != nil {
		return err
	}
	if c.A == 0 {
		dst.Clear()
		return nil
	}
	dst.Fill(c.RGBA())
	return nil
}

// dst returns the bound framebuffer restricted to the viewport.
func (a *EbitenRendererAPI) dst() (*ebiten.Image, error) {
	if a.target == nil {
		return nil, fmt.Errorf("lumen: no framebuffer bound")
	}
	view := a.target.view()
	if a.viewport.Empty() {
		return view, nil
	}
	r := image.Rect(
		int(a.viewport.X), int(a.viewport.Y),
		int(math.Ceil(a.viewport.X+a.viewport.Width)), int(math.Ceil(a.viewport.Y+a.viewport.Height)),
	)
	return view.SubImage(r).(*ebiten.Image), nil
}

// DrawArray draws count vertices starting at first as a triangle list.
func (a *EbitenRendererAPI) DrawArray(first, count int) error {
	vb, err := a.boundVertices()
	if err != nil {
		return err
	}
	if first < 0 || first+count > len(vb.data) {
		return fmt.Errorf("lumen: draw range [%d,%d) out of %d vertices", first, first+count, len(vb.data))
	}
	a.inds = a.inds[:0]
	for i := 0; i < count; i++ {
		a.inds = append(a.inds, uint32(i))
	}
	return a.submit(vb.data[first:first+count], a.inds)
}

// DrawIndexed draws count indices starting at first from the bound index
// buffer.
func (a *EbitenRendererAPI) DrawIndexed(first, count int) error {
	vb, err := a.boundVertices()
	if err != nil {
		return err
	}
	ib, err := a.indexBufs.Get(a.vertexArray.ib)
	if err != nil {
		return fmt.Errorf("lumen: vertex array has no index buffer: %w", err)
	}
	if first < 0 || first+count > len(ib.data) {
		return fmt.Errorf("lumen: draw range [%d,%d) out of %d indices", first, first+count, len(ib.data))
	}
	return a.submit(vb.data, ib.data[first:first+count])
}

func (a *EbitenRendererAPI) boundVertices() (*ebitenVertexBuffer, error) {
	if !a.hasVA {
		return nil, fmt.Errorf("lumen: no vertex array bound")
	}
	return a.vertexBufs.Get(a.vertexArray.vb)
}

// submit converts the vertices and issues one DrawTriangles32 call.
func (a *EbitenRendererAPI) submit(verts []Vertex, inds []uint32) error {
	dst, err := a.dst()
	if err != nil {
		return err
	}
	if len(inds) == 0 {
		return nil
	}
	src := a.texture
	untextured := src == nil
	if untextured {
		src = whitePixel
	}
	a.verts = a.verts[:0]
	for _, v := range verts {
		ev := ebiten.Vertex{
			DstX:   v.DstX,
			DstY:   v.DstY,
			SrcX:   v.SrcX,
			SrcY:   v.SrcY,
			ColorR: v.ColorR,
			ColorG: v.ColorG,
			ColorB: v.ColorB,
			ColorA: v.ColorA,
		}
		if untextured {
			ev.SrcX, ev.SrcY = 0.5, 0.5
		}
		a.verts = append(a.verts, ev)
	}
	a.triOp.Blend = ebitenBlend(a.blend)
	a.triOp.ColorScaleMode = ebiten.ColorScaleModePremultipliedAlpha
	dst.DrawTriangles32(a.verts, inds, src, &a.triOp)
	return nil
}

// DebugBounds queues world-space rectangles (already projected to screen) to
// be outlined on the next Present.
func (a *EbitenRendererAPI) DebugBounds(r Rect) {
	a.debugBounds = append(a.debugBounds, r)
}

// Present draws the framebuffer onto screen, scaled to fit, then outlines any
// queued debug bounds.
func (a *EbitenRendererAPI) Present(fbHandle Handle, screen *ebiten.Image) error {
	fb, err := a.framebuffers.Get(fbHandle)
	if err != nil {
		return err
	}
	var op ebiten.DrawImageOptions
	sb := screen.Bounds()
	if fb.w != sb.Dx() || fb.h != sb.Dy() {
		op.GeoM.Scale(float64(sb.Dx())/float64(fb.w), float64(sb.Dy())/float64(fb.h))
		op.Filter = ebiten.FilterLinear
	}
	screen.DrawImage(fb.view(), &op)
	for _, r := range a.debugBounds {
		vector.StrokeRect(screen, float32(r.X), float32(r.Y), float32(r.Width), float32(r.Height), 1,
			ColorWhite.RGBA(), false)
	}
	a.debugBounds = a.debugBounds[:0]
	return nil
}

// Stats returns the number of live backend resources, for debug logging.
func (a *EbitenRendererAPI) Stats() (framebuffers, textures, vertexArrays int) {
	return a.framebuffers.Len(), a.textures.Len(), a.vertexArrays.Len()
}
