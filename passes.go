package lumen

// ClearPass fills the whole framebuffer with a color once per frame.
type ClearPass struct {
	Color Color
}

// NewClearPass creates a clear pass.
func NewClearPass(c Color) *ClearPass { return &ClearPass{Color: c} }

func (p *ClearPass) Name() string                 { return "clear" }
func (p *ClearPass) Categories() []RenderCategory { return nil }

// Execute clears the framebuffer.
func (p *ClearPass) Execute(pc *PassContext) error {
	pc.API.SetViewport(Rect{Width: float64(pc.Width), Height: float64(pc.Height)})
	return pc.API.Clear(p.Color)
}

// RenderDataPass draws the given categories of every layer, in the order the
// categories are listed, with the layer's camera.
type RenderDataPass struct {
	name       string
	categories []RenderCategory
}

// NewRenderDataPass creates a pass drawing categories.
func NewRenderDataPass(name string, categories ...RenderCategory) *RenderDataPass {
	return &RenderDataPass{name: name, categories: categories}
}

func (p *RenderDataPass) Name() string                 { return p.name }
func (p *RenderDataPass) Categories() []RenderCategory { return p.categories }

// Execute draws each category's list through its Renderable.
func (p *RenderDataPass) Execute(pc *PassContext) error {
	for _, c := range p.categories {
		if err := pc.DrawBinding(c); err != nil {
			return err
		}
	}
	return nil
}

// DefaultPasses returns the standard pipeline: clear, world geometry, text,
// lighting, then screen-space UI. ambient is the darkness of unlit areas on
// layers holding lights.
func DefaultPasses(clear Color, ambient float64) []Pass {
	return []Pass{
		NewClearPass(clear),
		NewRenderDataPass("world", CategoryMesh, CategorySprite, CategoryLine),
		NewRenderDataPass("text", CategoryText),
		NewLightPass(ambient),
		NewRenderDataPass("ui", CategoryUI),
	}
}
