package lumen

import "fmt"

// GID flag bits (same convention as Tiled TMX format).
const (
	TileFlipH    uint32 = 1 << 31 // horizontal flip
	TileFlipV    uint32 = 1 << 30 // vertical flip
	TileFlipD    uint32 = 1 << 29 // diagonal flip (x/y swap)
	tileFlagMask uint32 = TileFlipH | TileFlipV | TileFlipD
)

// AnimFrame describes a single frame in a tile animation sequence.
type AnimFrame struct {
	GID      uint32 // tile GID for this frame (no flag bits)
	Duration int    // milliseconds
}

// uvOrder defines vertex UV assignment for each combination of flip flags.
// Indexed by 3-bit flag value: (flipH << 2) | (flipV << 1) | flipD. The
// diagonal flip swaps x and y and is applied before H and V.
// Each entry contains 4 corner indices: TL=0, TR=1, BL=2, BR=3.
//
//	result[i] is which source corner goes to vertex position i.
var uvOrder = [8][4]int{
	{0, 1, 2, 3}, // no flags
	{0, 2, 1, 3}, // D only (transpose)
	{2, 3, 0, 1}, // V flip
	{1, 3, 0, 2}, // V+D (90° CCW)
	{1, 0, 3, 2}, // H flip
	{2, 0, 3, 1}, // H+D (90° CW)
	{3, 2, 1, 0}, // H+V (180°)
	{3, 1, 2, 0}, // H+V+D (anti-transpose)
}

// TileMapComponent draws a grid of tiles from a tileset texture as one mesh
// in the entity's local space. Tile GIDs are 1-based indices into the
// tileset, read left to right and top to bottom; 0 is empty. The high bits
// carry TileFlipH, TileFlipV and TileFlipD.
type TileMapComponent struct {
	ComponentBase

	Tileset    AssetHandle[*Texture]
	TileWidth  int
	TileHeight int
	Color      Color

	width, height int
	data          []uint32
	anims         map[uint32][]AnimFrame
	animElapsed   float64 // milliseconds

	verts []Vertex
	inds  []uint32
	dirty bool

	blend BlendMode
	layer int
	order int
}

// NewTileMap creates an empty cols×rows map of tileW×tileH tiles.
func NewTileMap(tileset AssetHandle[*Texture], tileW, tileH, cols, rows int) *TileMapComponent {
	return &TileMapComponent{
		Tileset:    tileset,
		TileWidth:  tileW,
		TileHeight: tileH,
		Color:      ColorWhite,
		width:      max(cols, 0),
		height:     max(rows, 0),
		data:       make([]uint32, max(cols, 0)*max(rows, 0)),
		dirty:      true,
	}
}

// Attach registers the map with the AnimationSystem and RenderSystem.
func (t *TileMapComponent) Attach(w *World) error {
	if t.TileWidth <= 0 || t.TileHeight <= 0 {
		return fmt.Errorf("lumen: invalid tile size %dx%d", t.TileWidth, t.TileHeight)
	}
	attachAnimated(w, t)
	if rs, ok := GetSystem[*RenderSystem](w); ok {
		rs.RegisterMesh(t)
	}
	return nil
}

// Detach unregisters the map.
func (t *TileMapComponent) Detach(w *World) {
	detachAnimated(w, t)
	if rs, ok := GetSystem[*RenderSystem](w); ok {
		rs.Unregister(t)
	}
}

// Clone returns a detached copy with its own tile data.
func (t *TileMapComponent) Clone() Component {
	c := &TileMapComponent{
		ComponentBase: t.cloneBase(),
		Tileset:       t.Tileset,
		TileWidth:     t.TileWidth,
		TileHeight:    t.TileHeight,
		Color:         t.Color,
		width:         t.width,
		height:        t.height,
		data:          append([]uint32(nil), t.data...),
		dirty:         true,
		blend:         t.blend,
		layer:         t.layer,
		order:         t.order,
	}
	if t.anims != nil {
		c.anims = make(map[uint32][]AnimFrame, len(t.anims))
		for k, v := range t.anims {
			c.anims[k] = append([]AnimFrame(nil), v...)
		}
	}
	return c
}

// Size returns the map size in tiles.
func (t *TileMapComponent) Size() (cols, rows int) { return t.width, t.height }

// Data returns the row-major GIDs. The returned slice MUST NOT be mutated by
// the caller; use SetTile or SetData.
func (t *TileMapComponent) Data() []uint32 { return t.data }

// Tile returns the GID at (col, row), or 0 outside the map.
func (t *TileMapComponent) Tile(col, row int) uint32 {
	if col < 0 || col >= t.width || row < 0 || row >= t.height {
		return 0
	}
	return t.data[row*t.width+col]
}

// SetTile updates a single tile. Returns false outside the map.
func (t *TileMapComponent) SetTile(col, row int, gid uint32) bool {
	if col < 0 || col >= t.width || row < 0 || row >= t.height {
		return false
	}
	i := row*t.width + col
	if t.data[i] != gid {
		t.data[i] = gid
		t.dirty = true
	}
	return true
}

// SetData replaces the entire tile data array. len(data) must be w*h.
func (t *TileMapComponent) SetData(data []uint32, w, h int) error {
	if w < 0 || h < 0 || len(data) != w*h {
		return fmt.Errorf("lumen: tile data has %d tiles, want %dx%d", len(data), w, h)
	}
	t.data = append(t.data[:0], data...)
	t.width, t.height = w, h
	t.dirty = true
	return nil
}

// SetAnimations sets the animation definitions, keyed by base GID (no flag
// bits).
func (t *TileMapComponent) SetAnimations(anims map[uint32][]AnimFrame) {
	t.anims = anims
	t.dirty = true
}

// Animations returns the animation definitions.
func (t *TileMapComponent) Animations() map[uint32][]AnimFrame { return t.anims }

// Advance implements Animated.
func (t *TileMapComponent) Advance(dt float64) {
	if len(t.anims) == 0 {
		return
	}
	t.animElapsed += dt * 1000
	t.dirty = true
}

// frameGID returns the GID to draw for base at the current animation time.
func (t *TileMapComponent) frameGID(base uint32) uint32 {
	frames, ok := t.anims[base]
	if !ok || len(frames) == 0 {
		return base
	}
	total := 0
	for _, f := range frames {
		total += f.Duration
	}
	if total <= 0 {
		return frames[0].GID
	}
	elapsed := int(t.animElapsed) % total
	acc := 0
	for _, f := range frames {
		acc += f.Duration
		if elapsed < acc {
			return f.GID
		}
	}
	return frames[0].GID
}

// rebuild fills the mesh from the tile data. Returns false while the tileset
// is unresolved.
func (t *TileMapComponent) rebuild() bool {
	tex, ok := t.Tileset.Get()
	if !ok || tex == nil {
		return false
	}
	texW, _ := tex.Size()
	columns := int(texW) / t.TileWidth
	if columns <= 0 {
		return false
	}
	tw, th := float32(t.TileWidth), float32(t.TileHeight)

	t.verts = t.verts[:0]
	t.inds = t.inds[:0]
	for row := 0; row < t.height; row++ {
		for col := 0; col < t.width; col++ {
			gid := t.data[row*t.width+col]
			if gid == 0 {
				continue
			}
			flags := gid & tileFlagMask
			id := t.frameGID(gid&^tileFlagMask) - 1
			region := TextureRegion{
				X:      float64(int(id)%columns) * float64(t.TileWidth),
				Y:      float64(int(id)/columns) * float64(t.TileHeight),
				Width:  float64(t.TileWidth),
				Height: float64(t.TileHeight),
			}

			x0, y0 := float32(col)*tw, float32(row)*th
			base := uint32(len(t.verts))
			white := Vertex{ColorR: 1, ColorG: 1, ColorB: 1, ColorA: 1}
			t.verts = append(t.verts,
				withCorner(white, x0, y0, 0, 0),
				withCorner(white, x0+tw, y0, 0, 0),
				withCorner(white, x0, y0+th, 0, 0),
				withCorner(white, x0+tw, y0+th, 0, 0),
			)
			setTileUVs(t.verts[base:], region, flags)
			t.inds = append(t.inds, base, base+1, base+2, base+1, base+3, base+2)
		}
	}
	t.dirty = false
	return true
}

// setTileUVs sets the UV (SrcX/SrcY) coordinates for 4 vertices of a tile,
// applying flip flags via the lookup table.
func setTileUVs(verts []Vertex, region TextureRegion, flags uint32) {
	sx := float32(region.X)
	sy := float32(region.Y)
	sw := float32(region.Width)
	sh := float32(region.Height)

	// The four UV corners: TL(0), TR(1), BL(2), BR(3).
	uvX := [4]float32{sx, sx + sw, sx, sx + sw}
	uvY := [4]float32{sy, sy, sy + sh, sy + sh}

	flagIdx := 0
	if flags&TileFlipH != 0 {
		flagIdx |= 4
	}
	if flags&TileFlipV != 0 {
		flagIdx |= 2
	}
	if flags&TileFlipD != 0 {
		flagIdx |= 1
	}
	order := uvOrder[flagIdx]

	for i := 0; i < 4; i++ {
		verts[i].SrcX = uvX[order[i]]
		verts[i].SrcY = uvY[order[i]]
	}
}

// BlendMode returns the blend mode.
func (t *TileMapComponent) BlendMode() BlendMode { return t.blend }

// SetBlendMode changes the blend mode and re-sorts the map.
func (t *TileMapComponent) SetBlendMode(b BlendMode) {
	if t.blend == b {
		return
	}
	t.blend = b
	resortRenderData(t)
}

// Order returns the secondary sort key.
func (t *TileMapComponent) Order() int { return t.order }

// SetOrder changes the secondary sort key and re-sorts the map.
func (t *TileMapComponent) SetOrder(o int) {
	if t.order == o {
		return
	}
	t.order = o
	resortRenderData(t)
}

// Layer returns the render layer index.
func (t *TileMapComponent) Layer() int { return t.layer }

// SetLayer moves the map to another render layer.
func (t *TileMapComponent) SetLayer(l int) {
	if t.layer == l {
		return
	}
	old := t.layer
	t.layer = l
	relayerRenderData(t, old)
}

func (t *TileMapComponent) renderLayer() int { return t.layer }

// SortKey implements Sorted.
func (t *TileMapComponent) SortKey() SortKey {
	return SortKey{Blend: t.blend, Order: t.order}
}

// MeshData implements MeshRenderData, rebuilding the geometry if the tiles,
// animations or tileset changed. An unresolved tileset draws nothing.
func (t *TileMapComponent) MeshData() Mesh {
	md := Mesh{
		Color:     t.Color,
		Blend:     t.blend,
		Transform: EntityWorldMatrix(t.Entity()),
	}
	if t.dirty && !t.rebuild() {
		return md
	}
	tex, ok := t.Tileset.Get()
	if !ok || tex == nil {
		return md
	}
	md.Texture = tex
	md.Vertices = t.verts
	md.Indices = t.inds
	return md
}

// Bounds returns the local-space size of the map in pixels.
func (t *TileMapComponent) Bounds() Rect {
	return Rect{Width: float64(t.width * t.TileWidth), Height: float64(t.height * t.TileHeight)}
}
