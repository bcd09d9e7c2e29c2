package lumen

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
)

// Atlas holds one or more page textures and a map of named frames. Each
// frame is also registered with the asset registry as "<atlas>#<frame>", so
// sprites can link to frames by name.
type Atlas struct {
	Name   string
	Pages  []*Texture
	frames map[string]*Texture
}

// Frame returns the region texture for name. Missing frames return a 1×1
// magenta placeholder and false.
func (a *Atlas) Frame(name string) (*Texture, bool) {
	if t, ok := a.frames[name]; ok {
		return t, true
	}
	return magentaTexture(), false
}

// FrameNames returns the frame names, sorted.
func (a *Atlas) FrameNames() []string {
	out := make([]string, 0, len(a.frames))
	for n := range a.frames {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// FrameAssetName returns the registry name of a frame.
func FrameAssetName(atlas, frame string) string {
	return atlas + "#" + frame
}

// ParseAtlas parses TexturePacker JSON and binds the frames to the given
// pages. Supports both the hash format (single "frames" object) and the array
// format ("textures" array with per-page frame lists).
func ParseAtlas(name string, jsonData []byte, pages []*Texture) (*Atlas, error) {
	doc, err := probeAtlas(jsonData)
	if err != nil {
		return nil, err
	}
	a := &Atlas{Name: name, Pages: pages, frames: make(map[string]*Texture)}
	if doc.Textures != nil {
		var textures []jsonTexturePage
		if err := json.Unmarshal(doc.Textures, &textures); err != nil {
			return nil, fmt.Errorf("lumen: failed to parse atlas textures array: %w", err)
		}
		for i, tex := range textures {
			if i >= len(pages) {
				return nil, fmt.Errorf("lumen: atlas page %d has no image", i)
			}
			for fname, f := range tex.Frames {
				a.frames[fname] = NewRegionTexture(FrameAssetName(name, fname), pages[i], frameToRegion(f))
			}
		}
		return a, nil
	}
	var frames map[string]jsonFrame
	if err := json.Unmarshal(doc.Frames, &frames); err != nil {
		return nil, fmt.Errorf("lumen: failed to parse atlas frames: %w", err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("lumen: atlas has no page image")
	}
	for fname, f := range frames {
		a.frames[fname] = NewRegionTexture(FrameAssetName(name, fname), pages[0], frameToRegion(f))
	}
	return a, nil
}

type atlasDoc struct {
	Frames   json.RawMessage `json:"frames"`
	Textures json.RawMessage `json:"textures"`
	Meta     struct {
		Image string `json:"image"`
	} `json:"meta"`
}

// probeAtlas decodes the top-level keys to detect the format.
func probeAtlas(jsonData []byte) (*atlasDoc, error) {
	var doc atlasDoc
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return nil, fmt.Errorf("lumen: failed to parse atlas JSON: %w", err)
	}
	if doc.Textures == nil && doc.Frames == nil {
		return nil, fmt.Errorf("lumen: atlas JSON has neither \"frames\" nor \"textures\" key")
	}
	return &doc, nil
}

// pageImages returns the page image names referenced by the atlas.
func (d *atlasDoc) pageImages() ([]string, error) {
	if d.Textures != nil {
		var textures []jsonTexturePage
		if err := json.Unmarshal(d.Textures, &textures); err != nil {
			return nil, fmt.Errorf("lumen: failed to parse atlas textures array: %w", err)
		}
		out := make([]string, len(textures))
		for i, t := range textures {
			out[i] = t.Image
		}
		return out, nil
	}
	if d.Meta.Image == "" {
		return nil, fmt.Errorf("lumen: atlas meta.image is empty")
	}
	return []string{d.Meta.Image}, nil
}

// --- JSON structure types ---

type jsonRect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

type jsonSize struct {
	W int `json:"w"`
	H int `json:"h"`
}

type jsonFrame struct {
	Frame            jsonRect `json:"frame"`
	Rotated          bool     `json:"rotated"`
	Trimmed          bool     `json:"trimmed"`
	SpriteSourceSize jsonRect `json:"spriteSourceSize"`
	SourceSize       jsonSize `json:"sourceSize"`
}

type jsonTexturePage struct {
	Image  string               `json:"image"`
	Frames map[string]jsonFrame `json:"frames"`
}

func frameToRegion(f jsonFrame) TextureRegion {
	return TextureRegion{
		X:         float64(f.Frame.X),
		Y:         float64(f.Frame.Y),
		Width:     float64(f.Frame.W),
		Height:    float64(f.Frame.H),
		OriginalW: float64(f.SourceSize.W),
		OriginalH: float64(f.SourceSize.H),
		OffsetX:   float64(f.SpriteSourceSize.X),
		OffsetY:   float64(f.SpriteSourceSize.Y),
		Rotated:   f.Rotated,
	}
}

// loadAtlasAsset loads the page images relative to the atlas file, then
// registers every frame.
func loadAtlasAsset(r *AssetRegistry, name string, data []byte) (any, error) {
	doc, err := probeAtlas(data)
	if err != nil {
		return nil, err
	}
	images, err := doc.pageImages()
	if err != nil {
		return nil, err
	}
	dir := path.Dir(name)
	pages := make([]*Texture, 0, len(images))
	for _, img := range images {
		ref, err := r.Load(path.Join(dir, img))
		if err != nil {
			return nil, err
		}
		tex, ok := ref.Value.(*Texture)
		if !ok {
			return nil, fmt.Errorf("lumen: atlas page %s is %T, not a texture", img, ref.Value)
		}
		pages = append(pages, tex)
	}
	a, err := ParseAtlas(name, data, pages)
	if err != nil {
		return nil, err
	}
	for fname, t := range a.frames {
		key := FrameAssetName(name, fname)
		// Frames already registered are updated in place so handles keep
		// pointing at the same texture across reloads.
		if old, ok := GetNamed[*Texture](r, key); ok {
			old.page = t.page
			old.Region = t.Region
			a.frames[fname] = old
			continue
		}
		r.Register(key, t)
	}
	return a, nil
}

// replaceWith swaps in a reloaded atlas. Existing frame textures are updated
// in place so sprites keep their handles.
func (a *Atlas) replaceWith(v any) error {
	na, ok := v.(*Atlas)
	if !ok {
		return fmt.Errorf("cannot replace atlas with %T", v)
	}
	for fname, nt := range na.frames {
		if t, ok := a.frames[fname]; ok {
			t.page = nt.page
			t.Region = nt.Region
			na.frames[fname] = t
		}
	}
	a.Pages = na.Pages
	a.frames = na.frames
	return nil
}
