package lumen

import "fmt"

// Mesh is the per-frame snapshot of a mesh renderer.
type Mesh struct {
	Texture   *Texture // nil draws untextured
	Vertices  []Vertex
	Indices   []uint32
	Color     Color
	Blend     BlendMode
	Transform [6]float64
}

// MeshRenderData is implemented by components drawn by MeshRenderable.
type MeshRenderData interface {
	RenderData
	Sorted
	MeshData() Mesh
}

// MeshRendererComponent draws an indexed triangle list in the entity's local
// space. Vertex positions are local pixels, SrcX/SrcY are texels of Texture
// and vertex colors are straight (not premultiplied) multipliers of Color.
type MeshRendererComponent struct {
	ComponentBase

	Vertices []Vertex
	Indices  []uint32
	Texture  AssetHandle[*Texture]
	Color    Color

	blend BlendMode
	layer int
	order int
}

// NewMeshRenderer creates a mesh from vertices and indices.
func NewMeshRenderer(vertices []Vertex, indices []uint32, tex AssetHandle[*Texture]) *MeshRendererComponent {
	return &MeshRendererComponent{Vertices: vertices, Indices: indices, Texture: tex, Color: ColorWhite}
}

// NewPolygonMesh creates a fan-triangulated convex polygon. Textured polygons
// map the texture over the points' bounding box.
func NewPolygonMesh(points []Vec2, tex AssetHandle[*Texture]) *MeshRendererComponent {
	m := NewMeshRenderer(nil, nil, tex)
	m.SetPolygon(points)
	return m
}

// SetPolygon replaces the geometry with a fan triangulation of points.
func (m *MeshRendererComponent) SetPolygon(points []Vec2) {
	var tw, th float64
	if t, ok := m.Texture.Get(); ok && t != nil {
		tw, th = t.Size()
	}
	m.Vertices, m.Indices = buildPolygonFan(m.Vertices[:0], m.Indices[:0], points, tw, th)
}

// Attach registers the mesh with the RenderSystem.
func (m *MeshRendererComponent) Attach(w *World) error {
	if rs, ok := GetSystem[*RenderSystem](w); ok {
		rs.RegisterMesh(m)
	}
	return nil
}

// Detach unregisters the mesh.
func (m *MeshRendererComponent) Detach(w *World) {
	if rs, ok := GetSystem[*RenderSystem](w); ok {
		rs.Unregister(m)
	}
}

// Clone returns a detached copy with its own geometry slices.
func (m *MeshRendererComponent) Clone() Component {
	c := *m
	c.ComponentBase = m.cloneBase()
	c.Vertices = append([]Vertex(nil), m.Vertices...)
	c.Indices = append([]uint32(nil), m.Indices...)
	return &c
}

// BlendMode returns the blend mode.
func (m *MeshRendererComponent) BlendMode() BlendMode { return m.blend }

// SetBlendMode changes the blend mode and re-sorts the mesh.
func (m *MeshRendererComponent) SetBlendMode(b BlendMode) {
	if m.blend == b {
		return
	}
	m.blend = b
	resortRenderData(m)
}

// Order returns the secondary sort key.
func (m *MeshRendererComponent) Order() int { return m.order }

// SetOrder changes the secondary sort key and re-sorts the mesh.
func (m *MeshRendererComponent) SetOrder(o int) {
	if m.order == o {
		return
	}
	m.order = o
	resortRenderData(m)
}

// Layer returns the render layer index.
func (m *MeshRendererComponent) Layer() int { return m.layer }

// SetLayer moves the mesh to another render layer.
func (m *MeshRendererComponent) SetLayer(l int) {
	if m.layer == l {
		return
	}
	old := m.layer
	m.layer = l
	relayerRenderData(m, old)
}

func (m *MeshRendererComponent) renderLayer() int { return m.layer }

// SortKey implements Sorted.
func (m *MeshRendererComponent) SortKey() SortKey {
	return SortKey{Blend: m.blend, Order: m.order}
}

// MeshData implements MeshRenderData. The slices are shared, not copied.
func (m *MeshRendererComponent) MeshData() Mesh {
	md := Mesh{
		Vertices:  m.Vertices,
		Indices:   m.Indices,
		Color:     m.Color,
		Blend:     m.blend,
		Transform: EntityWorldMatrix(m.Entity()),
	}
	if m.Texture.IsZero() {
		return md
	}
	tex, ok := m.Texture.Get()
	if !ok {
		md.Indices = nil
		return md
	}
	md.Texture = tex
	return md
}

// Bounds returns the local-space bounding box of the vertices.
func (m *MeshRendererComponent) Bounds() Rect {
	return computeMeshAABB(m.Vertices)
}

// MeshRenderable batches meshes sharing a texture and blend mode.
type MeshRenderable struct {
	ctx    RenderContext
	active bool
	view   [6]float64
	batch  quadBatch
	buf    []Vertex
}

// NewMeshRenderable creates the mesh strategy.
func NewMeshRenderable() *MeshRenderable { return &MeshRenderable{} }

// Begin captures the context for one pass.
func (r *MeshRenderable) Begin(ctx RenderContext) error {
	if r.active {
		return fmt.Errorf("lumen: MeshRenderable.Begin without End")
	}
	r.active = true
	r.ctx = ctx
	r.view = ctx.viewMatrix()
	r.batch.begin(ctx.API, ctx.Stats)
	return nil
}

// Draw transforms one mesh and appends it to the batch.
func (r *MeshRenderable) Draw(d RenderData) error {
	md, ok := d.(MeshRenderData)
	if !ok {
		return fmt.Errorf("lumen: %T is not mesh render data", d)
	}
	mesh := md.MeshData()
	if len(mesh.Indices) == 0 || len(mesh.Vertices) == 0 {
		return nil
	}
	var tex Handle
	if mesh.Texture != nil {
		var err error
		if tex, err = mesh.Texture.GPU(r.ctx.API); err != nil {
			return err
		}
	}
	if cap(r.buf) < len(mesh.Vertices) {
		r.buf = make([]Vertex, len(mesh.Vertices))
	}
	r.buf = r.buf[:len(mesh.Vertices)]
	transformVertices(mesh.Vertices, r.buf, multiplyAffine(r.view, mesh.Transform), mesh.Color)
	if mesh.Texture != nil {
		// Region-relative texels become page texels.
		ox, oy := float32(mesh.Texture.Region.X), float32(mesh.Texture.Region.Y)
		for i := range r.buf {
			r.buf[i].SrcX += ox
			r.buf[i].SrcY += oy
		}
	}
	return r.batch.pushGeometry(tex, mesh.Blend, r.buf, mesh.Indices)
}

// End flushes the batch.
func (r *MeshRenderable) End() error {
	err := r.batch.end()
	r.ctx = RenderContext{}
	r.active = false
	return err
}

// Release destroys the cached geometry. Must run on the render thread.
func (r *MeshRenderable) Release() { r.batch.release() }

// transformVertices applies an affine transform and color tint to src
// vertices, writing premultiplied results into dst.
//
// newX = a*x + c*y + tx, newY = b*x + d*y + ty
func transformVertices(src, dst []Vertex, m [6]float64, tint Color) {
	a, b, c, d, tx, ty := m[0], m[1], m[2], m[3], m[4], m[5]
	cr := float32(tint.R)
	cg := float32(tint.G)
	cb := float32(tint.B)
	ca := float32(tint.A)

	for i := range src {
		s := &src[i]
		ox := float64(s.DstX)
		oy := float64(s.DstY)
		alpha := s.ColorA * ca
		dst[i] = Vertex{
			DstX:   float32(a*ox + c*oy + tx),
			DstY:   float32(b*ox + d*oy + ty),
			SrcX:   s.SrcX,
			SrcY:   s.SrcY,
			ColorR: s.ColorR * cr * alpha,
			ColorG: s.ColorG * cg * alpha,
			ColorB: s.ColorB * cb * alpha,
			ColorA: alpha,
		}
	}
}

// computeMeshAABB scans the vertex positions and returns the local-space
// bounding box.
func computeMeshAABB(verts []Vertex) Rect {
	if len(verts) == 0 {
		return Rect{}
	}
	minX := float64(verts[0].DstX)
	minY := float64(verts[0].DstY)
	maxX := minX
	maxY := minY
	for i := 1; i < len(verts); i++ {
		x := float64(verts[i].DstX)
		y := float64(verts[i].DstY)
		minX = min(minX, x)
		maxX = max(maxX, x)
		minY = min(minY, y)
		maxY = max(maxY, y)
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// buildPolygonFan fills verts and inds with a fan triangulation of points:
// N vertices, 3*(N-2) indices. A texture size of zero leaves UVs at zero.
func buildPolygonFan(verts []Vertex, inds []uint32, points []Vec2, texW, texH float64) ([]Vertex, []uint32) {
	n := len(points)
	if n < 3 {
		return verts, inds
	}
	bb := Rect{X: points[0].X, Y: points[0].Y}
	maxX, maxY := bb.X, bb.Y
	for _, p := range points[1:] {
		bb.X = min(bb.X, p.X)
		bb.Y = min(bb.Y, p.Y)
		maxX = max(maxX, p.X)
		maxY = max(maxY, p.Y)
	}
	bb.Width = maxX - bb.X
	bb.Height = maxY - bb.Y

	for _, p := range points {
		v := Vertex{DstX: float32(p.X), DstY: float32(p.Y), ColorR: 1, ColorG: 1, ColorB: 1, ColorA: 1}
		if texW > 0 && bb.Width > 0 {
			v.SrcX = float32((p.X - bb.X) / bb.Width * texW)
		}
		if texH > 0 && bb.Height > 0 {
			v.SrcY = float32((p.Y - bb.Y) / bb.Height * texH)
		}
		verts = append(verts, v)
	}
	// Vertex 0 is the hub.
	for i := 0; i < n-2; i++ {
		inds = append(inds, 0, uint32(i+1), uint32(i+2))
	}
	return verts, inds
}

func (m *MeshRendererComponent) tintColor() *Color { return &m.Color }
