package lumen

import (
	"bytes"
	"fmt"
	"math"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"golang.org/x/image/font/basicfont"
)

// Font is a font asset. A Font loaded from TTF/OTF data can be drawn at any
// size; the default font is a fixed 7×13 bitmap face.
type Font struct {
	Name   string
	source *text.GoTextFaceSource
	fixed  text.Face
}

var defaultFont *Font

// DefaultFont returns the built-in basicfont 7×13 face.
func DefaultFont() *Font {
	if defaultFont == nil {
		defaultFont = &Font{Name: "$default", fixed: text.NewGoXFace(basicfont.Face7x13)}
	}
	return defaultFont
}

// LoadFont parses TrueType or OpenType data.
func LoadFont(name string, data []byte) (*Font, error) {
	source, err := text.NewGoTextFaceSource(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("lumen: failed to parse font data: %w", err)
	}
	return &Font{Name: name, source: source}, nil
}

// Face returns a face of the given pixel size. Fixed faces ignore size.
func (f *Font) Face(size float64) text.Face {
	if f.source == nil {
		return f.fixed
	}
	if size <= 0 {
		size = 16
	}
	return &text.GoTextFace{Source: f.source, Size: size}
}

// LineHeight returns the distance between baselines at size.
func (f *Font) LineHeight(size float64) float64 {
	m := f.Face(size).Metrics()
	return m.HAscent + m.HDescent + m.HLineGap
}

// Measure returns the size of s drawn at size.
func (f *Font) Measure(s string, size float64) (width, height float64) {
	return text.Measure(s, f.Face(size), f.LineHeight(size))
}

func loadFontAsset(_ *AssetRegistry, name string, data []byte) (any, error) {
	return LoadFont(name, data)
}

// replaceWith swaps in a reloaded font source.
func (f *Font) replaceWith(v any) error {
	nf, ok := v.(*Font)
	if !ok {
		return fmt.Errorf("cannot replace font with %T", v)
	}
	f.source = nf.source
	f.fixed = nf.fixed
	return nil
}

// Text is the per-frame snapshot of a text renderer. The texture holds the
// rasterized string in white; Color tints it.
type Text struct {
	Texture   *Texture
	Offset    Vec2
	Color     Color
	Transform [6]float64
}

// TextRenderData is implemented by components drawn by TextRenderable.
type TextRenderData interface {
	RenderData
	TextData() Text
}

// TextRendererComponent draws a string at its entity's transform. The text is
// rasterized once and re-rasterized only when content, font, size or
// alignment change.
type TextRendererComponent struct {
	ComponentBase

	Content string
	// Font links the font asset. A zero handle uses DefaultFont.
	Font  AssetHandle[*Font]
	Size  float64
	Color Color
	Align TextAlign

	layer int

	cache    *Texture
	cacheKey textKey
}

type textKey struct {
	content string
	font    *Font
	size    float64
	align   TextAlign
}

// NewTextRenderer creates white, left-aligned text in the default font.
func NewTextRenderer(content string) *TextRendererComponent {
	return &TextRendererComponent{Content: content, Size: 13, Color: ColorWhite}
}

// Attach registers the text with the RenderSystem.
func (t *TextRendererComponent) Attach(w *World) error {
	if rs, ok := GetSystem[*RenderSystem](w); ok {
		rs.RegisterText(t)
	}
	return nil
}

// Detach unregisters the text.
func (t *TextRendererComponent) Detach(w *World) {
	if rs, ok := GetSystem[*RenderSystem](w); ok {
		rs.Unregister(t)
	}
}

// Clone returns a detached copy. The raster cache is not shared.
func (t *TextRendererComponent) Clone() Component {
	c := *t
	c.ComponentBase = t.cloneBase()
	c.cache = nil
	c.cacheKey = textKey{}
	return &c
}

// Layer returns the render layer index.
func (t *TextRendererComponent) Layer() int { return t.layer }

// SetLayer moves the text to another render layer.
func (t *TextRendererComponent) SetLayer(l int) {
	if t.layer == l {
		return
	}
	old := t.layer
	t.layer = l
	relayerRenderData(t, old)
}

func (t *TextRendererComponent) renderLayer() int { return t.layer }

func (t *TextRendererComponent) font() *Font {
	if t.Font.IsZero() {
		return DefaultFont()
	}
	if f, ok := t.Font.Get(); ok && f != nil {
		return f
	}
	return DefaultFont()
}

// Measure returns the size of the laid-out text.
func (t *TextRendererComponent) Measure() (width, height float64) {
	return t.font().Measure(t.Content, t.Size)
}

// TextData implements TextRenderData. Rasterizes on first use after a change,
// so it must run on the render thread.
func (t *TextRendererComponent) TextData() Text {
	td := Text{Color: t.Color, Transform: EntityWorldMatrix(t.Entity())}
	if t.Content == "" {
		return td
	}
	f := t.font()
	key := textKey{content: t.Content, font: f, size: t.Size, align: t.Align}
	if t.cache == nil || key != t.cacheKey {
		t.rasterize(f, key)
	}
	td.Texture = t.cache
	w := t.cache.Region.OriginalW
	switch t.Align {
	case TextAlignCenter:
		td.Offset.X = -w / 2
	case TextAlignRight:
		td.Offset.X = -w
	}
	return td
}

// rasterize draws the content in white into the cache texture.
func (t *TextRendererComponent) rasterize(f *Font, key textKey) {
	face := f.Face(t.Size)
	lh := f.LineHeight(t.Size)
	mw, mh := text.Measure(t.Content, face, lh)
	w := int(math.Ceil(mw)) + 1
	h := int(math.Ceil(mh)) + 1

	img := ebiten.NewImage(w, h)
	op := &text.DrawOptions{}
	op.LineSpacing = lh
	switch t.Align {
	case TextAlignCenter:
		op.PrimaryAlign = text.AlignCenter
		op.GeoM.Translate(float64(w)/2, 0)
	case TextAlignRight:
		op.PrimaryAlign = text.AlignEnd
		op.GeoM.Translate(float64(w), 0)
	}
	text.Draw(img, t.Content, face, op)

	if t.cache == nil {
		t.cache = NewTexture("$text", img)
	} else {
		// The GPU copy is re-created from the new image on next use.
		t.cache.Replace(img)
	}
	t.cacheKey = key
}

// TextRenderable draws rasterized text as tinted quads.
type TextRenderable struct {
	ctx    RenderContext
	active bool
	view   [6]float64
	batch  quadBatch
	quad   [4]Vertex
}

// NewTextRenderable creates the text strategy.
func NewTextRenderable() *TextRenderable { return &TextRenderable{} }

// Begin captures the context for one pass.
func (r *TextRenderable) Begin(ctx RenderContext) error {
	if r.active {
		return fmt.Errorf("lumen: TextRenderable.Begin without End")
	}
	r.active = true
	r.ctx = ctx
	r.view = ctx.viewMatrix()
	r.batch.begin(ctx.API, ctx.Stats)
	return nil
}

// Draw appends one text quad.
func (r *TextRenderable) Draw(d RenderData) error {
	td, ok := d.(TextRenderData)
	if !ok {
		return fmt.Errorf("lumen: %T is not text render data", d)
	}
	tx := td.TextData()
	if tx.Texture == nil {
		return nil
	}
	return drawSprite(&r.ctx, &r.batch, &r.quad, r.view, Sprite{
		Texture:   tx.Texture,
		Region:    tx.Texture.Region,
		Size:      Vec2{X: tx.Texture.Region.OriginalW, Y: tx.Texture.Region.OriginalH},
		Pivot:     Vec2{X: -tx.Offset.X, Y: -tx.Offset.Y},
		Color:     tx.Color,
		Transform: tx.Transform,
	})
}

// End flushes the batch.
func (r *TextRenderable) End() error {
	err := r.batch.end()
	r.ctx = RenderContext{}
	r.active = false
	return err
}

// Release destroys the cached geometry. Must run on the render thread.
func (r *TextRenderable) Release() { r.batch.release() }

func (t *TextRendererComponent) tintColor() *Color { return &t.Color }
