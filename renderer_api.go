package lumen

import "image"

// Vertex is one vertex of submitted geometry. DstX/DstY are absolute
// framebuffer pixels (the viewport clips, it does not offset), SrcX/SrcY are
// texels of the bound texture. Colors are premultiplied.
type Vertex struct {
	DstX, DstY             float32
	SrcX, SrcY             float32
	ColorR, ColorG, ColorB float32
	ColorA                 float32
}

// RendererAPI is the graphics backend. The render pipeline reaches native
// graphics only through it. Every method must be called on the render thread.
//
// Handles returned by one RendererAPI are meaningless to another. Calls with a
// freed handle return ErrStaleHandle.
type RendererAPI interface {
	// Framebuffers.
	CreateFramebuffer(width, height int) (Handle, error)
	ResizeFramebuffer(fb Handle, width, height int) error
	FramebufferSize(fb Handle) (width, height int, err error)
	DestroyFramebuffer(fb Handle) error

	// Textures.
	CreateTexture(img image.Image) (Handle, error)
	TextureSize(tex Handle) (width, height int, err error)
	DestroyTexture(tex Handle) error

	// Geometry. A vertex array owns the buffers it was created from and
	// destroys them with itself.
	CreateVertexBuffer(vertices []Vertex) (Handle, error)
	UpdateVertexBuffer(vb Handle, vertices []Vertex) error
	CreateIndexBuffer(indices []uint32) (Handle, error)
	UpdateIndexBuffer(ib Handle, indices []uint32) error
	CreateVertexArray(vb, ib Handle) (Handle, error)
	DestroyVertexArray(va Handle) error

	// Binding. A zero texture handle binds the built-in white texture.
	BindFramebuffer(fb Handle) error
	UnbindFramebuffer()
	BindTexture(tex Handle) error
	BindFramebufferTexture(fb Handle) error
	BindVertexArray(va Handle) error
	// Unbind releases the bound texture and vertex array.
	Unbind()

	// State.
	SetViewport(r Rect)
	SetBlendFunc(b BlendMode)
	SetDepthFunc(f DepthFunc)
	Clear(c Color) error

	// Drawing, as triangle lists from the bound vertex array.
	DrawArray(first, count int) error
	DrawIndexed(first, count int) error
}
