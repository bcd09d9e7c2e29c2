package lumen

// maxBatchQuads caps a single batch so index values stay small and buffers
// stay reusable.
const maxBatchQuads = 8192

// quadBatch coalesces consecutive quads sharing a texture and blend mode
// into one DrawIndexed call. The vertex array is created on the first flush
// and reused by later frames.
type quadBatch struct {
	api   RendererAPI
	stats *FrameStats

	vao, vb, ib Handle

	verts []Vertex
	inds  []uint32
	tex   Handle
	blend BlendMode
}

// begin prepares the batch for a pass. A different API invalidates the
// cached vertex array.
func (q *quadBatch) begin(api RendererAPI, stats *FrameStats) {
	if q.api != api {
		q.vao, q.vb, q.ib = Handle{}, Handle{}, Handle{}
	}
	q.api = api
	q.stats = stats
	q.verts = q.verts[:0]
	q.inds = q.inds[:0]
}

// push appends one quad. Vertices are TL, TR, BL, BR.
func (q *quadBatch) push(tex Handle, blend BlendMode, v *[4]Vertex) error {
	if len(q.verts) > 0 && (tex != q.tex || blend != q.blend || len(q.verts) >= maxBatchQuads*4) {
		if err := q.flush(); err != nil {
			return err
		}
	}
	q.tex = tex
	q.blend = blend

	base := uint32(len(q.verts))
	q.verts = append(q.verts, v[0], v[1], v[2], v[3])
	// Two triangles: TL-TR-BL, TR-BR-BL
	q.inds = append(q.inds,
		base+0, base+1, base+2,
		base+1, base+3, base+2,
	)
	if q.stats != nil {
		q.stats.Items++
	}
	return nil
}

// pushGeometry appends an indexed triangle list. Indices are relative to
// verts.
func (q *quadBatch) pushGeometry(tex Handle, blend BlendMode, verts []Vertex, inds []uint32) error {
	if len(inds) == 0 {
		return nil
	}
	if len(q.verts) > 0 && (tex != q.tex || blend != q.blend || len(q.verts)+len(verts) > maxBatchQuads*4) {
		if err := q.flush(); err != nil {
			return err
		}
	}
	q.tex = tex
	q.blend = blend

	base := uint32(len(q.verts))
	q.verts = append(q.verts, verts...)
	for _, i := range inds {
		q.inds = append(q.inds, base+i)
	}
	if q.stats != nil {
		q.stats.Items++
	}
	return nil
}

// flush submits the accumulated quads as one draw call.
func (q *quadBatch) flush() error {
	if len(q.inds) == 0 {
		return nil
	}
	defer func() {
		q.verts = q.verts[:0]
		q.inds = q.inds[:0]
	}()

	api := q.api
	if q.vao.IsZero() {
		vb, err := api.CreateVertexBuffer(q.verts)
		if err != nil {
			return err
		}
		ib, err := api.CreateIndexBuffer(q.inds)
		if err != nil {
			return err
		}
		vao, err := api.CreateVertexArray(vb, ib)
		if err != nil {
			return err
		}
		q.vao, q.vb, q.ib = vao, vb, ib
	} else {
		if err := api.UpdateVertexBuffer(q.vb, q.verts); err != nil {
			return err
		}
		if err := api.UpdateIndexBuffer(q.ib, q.inds); err != nil {
			return err
		}
	}
	if err := api.BindVertexArray(q.vao); err != nil {
		return err
	}
	if err := api.BindTexture(q.tex); err != nil {
		return err
	}
	api.SetBlendFunc(q.blend)
	if err := api.DrawIndexed(0, len(q.inds)); err != nil {
		return err
	}
	if q.stats != nil {
		q.stats.DrawCalls++
		q.stats.Batches++
	}
	return nil
}

// end flushes and drops the per-pass references.
func (q *quadBatch) end() error {
	err := q.flush()
	q.stats = nil
	return err
}

// release destroys the cached vertex array. Must run on the render thread.
func (q *quadBatch) release() {
	if q.api != nil && !q.vao.IsZero() {
		_ = q.api.DestroyVertexArray(q.vao)
	}
	q.api = nil
	q.vao, q.vb, q.ib = Handle{}, Handle{}, Handle{}
	q.verts = nil
	q.inds = nil
}

// buildQuad fills v with the four corners of the local rectangle
// (x, y, w, h) transformed by m, sampling src from the texture.
func buildQuad(v *[4]Vertex, m [6]float64, x, y, w, h float64, src TextureRegion, c Color) {
	lx := [4]float64{x, x + w, x, x + w}
	ly := [4]float64{y, y, y + h, y + h}

	var sx, sy [4]float32
	if src.Rotated {
		// Rotated regions are stored 90 degrees clockwise: the stored rect is
		// Height wide and Width tall.
		rx := float32(src.X)
		ry := float32(src.Y)
		rh := float32(src.Height)
		rw := float32(src.Width)
		sx = [4]float32{rx + rh, rx + rh, rx, rx}
		sy = [4]float32{ry, ry + rw, ry, ry + rw}
	} else {
		rx := float32(src.X)
		ry := float32(src.Y)
		rw := float32(src.Width)
		rh := float32(src.Height)
		sx = [4]float32{rx, rx + rw, rx, rx + rw}
		sy = [4]float32{ry, ry, ry + rh, ry + rh}
	}

	cr, cg, cb, ca := c.premultiplied()
	a, b, cc, d, tx, ty := m[0], m[1], m[2], m[3], m[4], m[5]
	for i := 0; i < 4; i++ {
		v[i] = Vertex{
			DstX:   float32(a*lx[i] + cc*ly[i] + tx),
			DstY:   float32(b*lx[i] + d*ly[i] + ty),
			SrcX:   sx[i],
			SrcY:   sy[i],
			ColorR: cr,
			ColorG: cg,
			ColorB: cb,
			ColorA: ca,
		}
	}
}
