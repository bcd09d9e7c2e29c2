package lumen

import (
	"image"
	"image/color"
)

// TextureRegion describes a sub-rectangle of a texture page, in texels.
type TextureRegion struct {
	X, Y          float64 // top-left corner of the stored rect
	Width, Height float64 // stored rect size (may differ from Original if trimmed)
	OriginalW     float64 // untrimmed width as authored
	OriginalH     float64 // untrimmed height as authored
	OffsetX       float64 // horizontal trim offset
	OffsetY       float64 // vertical trim offset
	Rotated       bool    // stored 90 degrees clockwise
}

// fullRegion returns the region covering a whole w×h image.
func fullRegion(w, h int) TextureRegion {
	fw, fh := float64(w), float64(h)
	return TextureRegion{Width: fw, Height: fh, OriginalW: fw, OriginalH: fh}
}

// Texture is a texture asset: either a page holding an image, or a region of
// another texture's page (an atlas frame). The GPU copy is created lazily on
// the render thread and re-created after Replace.
type Texture struct {
	Name   string
	Region TextureRegion

	img  image.Image
	page *Texture

	gpu      Handle
	gpuAPI   RendererAPI
	version  uint64
	uploaded uint64
}

// NewTexture wraps img as a page texture.
func NewTexture(name string, img image.Image) *Texture {
	b := img.Bounds()
	return &Texture{Name: name, img: img, Region: fullRegion(b.Dx(), b.Dy()), version: 1}
}

// NewRegionTexture returns a texture viewing region of page.
func NewRegionTexture(name string, page *Texture, region TextureRegion) *Texture {
	return &Texture{Name: name, page: page.Page(), Region: region}
}

// Page returns the texture holding the pixels: t itself or its atlas page.
func (t *Texture) Page() *Texture {
	if t.page != nil {
		return t.page
	}
	return t
}

// Image returns the page image.
func (t *Texture) Image() image.Image { return t.Page().img }

// Size returns the untrimmed size of the texture or region.
func (t *Texture) Size() (w, h float64) {
	return t.Region.OriginalW, t.Region.OriginalH
}

// Replace swaps the page image in place. Handles and regions referencing the
// texture stay valid; the GPU copy is refreshed on next use.
func (t *Texture) Replace(img image.Image) {
	p := t.Page()
	p.img = img
	b := img.Bounds()
	if t.page == nil {
		t.Region = fullRegion(b.Dx(), b.Dy())
	}
	p.version++
}

// GPU returns the backend handle of the page, uploading it if needed. Must be
// called on the render thread.
func (t *Texture) GPU(api RendererAPI) (Handle, error) {
	p := t.Page()
	if p.gpuAPI == api && !p.gpu.IsZero() && p.uploaded == p.version {
		return p.gpu, nil
	}
	if p.img == nil {
		return Handle{}, nil
	}
	if p.gpuAPI == api && !p.gpu.IsZero() {
		_ = api.DestroyTexture(p.gpu)
	}
	h, err := api.CreateTexture(p.img)
	if err != nil {
		return Handle{}, err
	}
	p.gpu = h
	p.gpuAPI = api
	p.uploaded = p.version
	return h, nil
}

// ReleaseGPU destroys the GPU copy. Must be called on the render thread.
func (t *Texture) ReleaseGPU() {
	p := t.Page()
	if p.gpuAPI != nil && !p.gpu.IsZero() {
		_ = p.gpuAPI.DestroyTexture(p.gpu)
	}
	p.gpu = Handle{}
	p.gpuAPI = nil
}

// placeholderTexture is the magenta texture drawn for missing atlas frames.
var placeholderTexture *Texture

func magentaTexture() *Texture {
	if placeholderTexture == nil {
		img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
		img.Set(0, 0, color.NRGBA{R: 255, G: 0, B: 255, A: 255})
		placeholderTexture = NewTexture("$magenta", img)
	}
	return placeholderTexture
}
