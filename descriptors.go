package lumen

import (
	"fmt"
	"math"
	"slices"
)

func init() {
	RegisterComponentType(ComponentDescriptor{
		Name: "Transform",
		New:  func() Component { return NewTransform() },
		Encode: func(c Component, f Fields) error {
			t := c.(*TransformComponent)
			f["X"], f["Y"] = t.X, t.Y
			f["ScaleX"], f["ScaleY"] = t.ScaleX, t.ScaleY
			f["Rotation"] = t.Rotation
			f["PivotX"], f["PivotY"] = t.PivotX, t.PivotY
			return nil
		},
		Decode: func(c Component, f Fields, _ *Decoder) error {
			t := c.(*TransformComponent)
			t.X, t.Y = f.Float("X", 0), f.Float("Y", 0)
			t.ScaleX, t.ScaleY = f.Float("ScaleX", 1), f.Float("ScaleY", 1)
			t.Rotation = f.Float("Rotation", 0)
			t.PivotX, t.PivotY = f.Float("PivotX", 0), f.Float("PivotY", 0)
			t.dirty = true
			return nil
		},
	})

	RegisterComponentType(ComponentDescriptor{
		Name: "Camera",
		New:  func() Component { return NewCamera(Rect{}) },
		Encode: func(c Component, f Fields) error {
			cam := c.(*CameraComponent)
			f["Zoom"] = cam.Zoom
			f["Rotation"] = cam.Rotation
			f.SetRect("Viewport", cam.Viewport)
			f["Layer"] = cam.Layer
			f["Primary"] = cam.primary
			f["BoundsEnabled"] = cam.BoundsEnabled
			f.SetRect("Bounds", cam.Bounds)
			return nil
		},
		Decode: func(c Component, f Fields, _ *Decoder) error {
			cam := c.(*CameraComponent)
			cam.Zoom = f.Float("Zoom", 1)
			cam.Rotation = f.Float("Rotation", 0)
			cam.Viewport = f.Rect("Viewport", Rect{})
			cam.Layer = f.Int("Layer", 0)
			cam.primary = f.Bool("Primary", false)
			cam.BoundsEnabled = f.Bool("BoundsEnabled", false)
			cam.Bounds = f.Rect("Bounds", Rect{})
			return nil
		},
	})

	RegisterComponentType(ComponentDescriptor{
		Name: "SpriteRenderer",
		New:  func() Component { return NewSpriteRenderer(AssetHandle[*Texture]{}) },
		Encode: func(c Component, f Fields) error {
			s := c.(*SpriteRendererComponent)
			f.SetAsset("Texture", s.Texture.Name())
			f.SetColor("Color", s.Color)
			f.SetVec2("Size", s.Size)
			f.SetVec2("Pivot", s.Pivot)
			f["Blend"] = s.blend.String()
			f["Layer"] = s.layer
			f["Order"] = s.order
			return nil
		},
		Decode: func(c Component, f Fields, d *Decoder) error {
			s := c.(*SpriteRendererComponent)
			s.Color = f.Color("Color", ColorWhite)
			s.Size = f.Vec2("Size", Vec2{})
			s.Pivot = f.Vec2("Pivot", Vec2{})
			blend, err := blendField(f)
			if err != nil {
				return err
			}
			s.blend = blend
			s.layer = f.Int("Layer", 0)
			s.order = f.Int("Order", 0)
			deferTexture(d, f.Asset("Texture"), func(h AssetHandle[*Texture]) { s.Texture = h })
			return nil
		},
	})

	RegisterComponentType(ComponentDescriptor{
		Name: "UIImage",
		New:  func() Component { return NewUIImage(AssetHandle[*Texture]{}) },
		Encode: func(c Component, f Fields) error {
			u := c.(*UIImageComponent)
			f.SetAsset("Texture", u.Texture.Name())
			f.SetColor("Color", u.Color)
			f.SetVec2("Size", u.Size)
			f.SetVec2("Pivot", u.Pivot)
			f["Blend"] = u.blend.String()
			f["Layer"] = u.layer
			f["Order"] = u.order
			return nil
		},
		Decode: func(c Component, f Fields, d *Decoder) error {
			u := c.(*UIImageComponent)
			u.Color = f.Color("Color", ColorWhite)
			u.Size = f.Vec2("Size", Vec2{})
			u.Pivot = f.Vec2("Pivot", Vec2{})
			blend, err := blendField(f)
			if err != nil {
				return err
			}
			u.blend = blend
			u.layer = f.Int("Layer", 0)
			u.order = f.Int("Order", 0)
			deferTexture(d, f.Asset("Texture"), func(h AssetHandle[*Texture]) { u.Texture = h })
			return nil
		},
	})

	RegisterComponentType(ComponentDescriptor{
		Name: "MeshRenderer",
		New:  func() Component { return NewMeshRenderer(nil, nil, AssetHandle[*Texture]{}) },
		Encode: func(c Component, f Fields) error {
			m := c.(*MeshRendererComponent)
			flat := make([]float64, 0, 8*len(m.Vertices))
			for _, v := range m.Vertices {
				flat = append(flat,
					float64(v.DstX), float64(v.DstY), float64(v.SrcX), float64(v.SrcY),
					float64(v.ColorR), float64(v.ColorG), float64(v.ColorB), float64(v.ColorA))
			}
			f["Vertices"] = flat
			inds := make([]float64, len(m.Indices))
			for i, x := range m.Indices {
				inds[i] = float64(x)
			}
			f["Indices"] = inds
			f.SetAsset("Texture", m.Texture.Name())
			f.SetColor("Color", m.Color)
			f["Blend"] = m.blend.String()
			f["Layer"] = m.layer
			f["Order"] = m.order
			return nil
		},
		Decode: func(c Component, f Fields, d *Decoder) error {
			m := c.(*MeshRendererComponent)
			flat, err := f.Floats("Vertices")
			if err != nil {
				return err
			}
			if len(flat)%8 != 0 {
				return fmt.Errorf("mesh vertices: %d values is not a multiple of 8", len(flat))
			}
			m.Vertices = make([]Vertex, len(flat)/8)
			for i := range m.Vertices {
				v := flat[8*i : 8*i+8]
				m.Vertices[i] = Vertex{
					DstX: float32(v[0]), DstY: float32(v[1]), SrcX: float32(v[2]), SrcY: float32(v[3]),
					ColorR: float32(v[4]), ColorG: float32(v[5]), ColorB: float32(v[6]), ColorA: float32(v[7]),
				}
			}
			inds, err := f.Floats("Indices")
			if err != nil {
				return err
			}
			m.Indices = make([]uint32, len(inds))
			for i, x := range inds {
				if x < 0 || int(x) >= len(m.Vertices) {
					return fmt.Errorf("mesh index %d out of range", int(x))
				}
				m.Indices[i] = uint32(x)
			}
			m.Color = f.Color("Color", ColorWhite)
			blend, err := blendField(f)
			if err != nil {
				return err
			}
			m.blend = blend
			m.layer = f.Int("Layer", 0)
			m.order = f.Int("Order", 0)
			deferTexture(d, f.Asset("Texture"), func(h AssetHandle[*Texture]) { m.Texture = h })
			return nil
		},
	})

	RegisterComponentType(ComponentDescriptor{
		Name: "TextRenderer",
		New:  func() Component { return NewTextRenderer("") },
		Encode: func(c Component, f Fields) error {
			t := c.(*TextRendererComponent)
			f["Content"] = t.Content
			f.SetAsset("Font", t.Font.Name())
			f["Size"] = t.Size
			f.SetColor("Color", t.Color)
			f["Align"] = alignNames[t.Align]
			f["Layer"] = t.layer
			return nil
		},
		Decode: func(c Component, f Fields, d *Decoder) error {
			t := c.(*TextRendererComponent)
			t.Content = f.String("Content", "")
			t.Size = f.Float("Size", 13)
			t.Color = f.Color("Color", ColorWhite)
			align, ok := parseAlign(f.String("Align", "left"))
			if !ok {
				return fmt.Errorf("unknown text alignment %q", f.String("Align", ""))
			}
			t.Align = align
			t.layer = f.Int("Layer", 0)
			if name := f.Asset("Font"); name != "" {
				d.Defer(func() error {
					d.resolveAsset(name)
					t.Font = HandleOf[*Font](d.assets, name)
					return nil
				})
			}
			return nil
		},
	})

	RegisterComponentType(ComponentDescriptor{
		Name: "LineRenderer",
		New:  func() Component { return NewLineRenderer() },
		Encode: func(c Component, f Fields) error {
			l := c.(*LineRendererComponent)
			f.SetPoints("Points", l.Points)
			f["Width"] = l.Width
			f.SetColor("Color", l.Color)
			f["Closed"] = l.Closed
			f["Layer"] = l.layer
			return nil
		},
		Decode: func(c Component, f Fields, _ *Decoder) error {
			l := c.(*LineRendererComponent)
			pts, err := f.Points("Points")
			if err != nil {
				return err
			}
			l.Points = pts
			l.Width = f.Float("Width", 1)
			l.Color = f.Color("Color", ColorWhite)
			l.Closed = f.Bool("Closed", false)
			l.layer = f.Int("Layer", 0)
			return nil
		},
	})

	RegisterComponentType(ComponentDescriptor{
		Name:   "PointLight",
		New:    func() Component { return NewPointLight(0) },
		Encode: func(c Component, f Fields) error { encodeLight(&c.(*PointLightComponent).LightBase, f); return nil },
		Decode: func(c Component, f Fields, _ *Decoder) error {
			decodeLight(&c.(*PointLightComponent).LightBase, f)
			return nil
		},
	})

	RegisterComponentType(ComponentDescriptor{
		Name: "SpotLight",
		New:  func() Component { return NewSpotLight(0, 0) },
		Encode: func(c Component, f Fields) error {
			l := c.(*SpotLightComponent)
			encodeLight(&l.LightBase, f)
			f["Direction"] = l.Direction
			f["ConeAngle"] = l.ConeAngle
			return nil
		},
		Decode: func(c Component, f Fields, _ *Decoder) error {
			l := c.(*SpotLightComponent)
			decodeLight(&l.LightBase, f)
			l.Direction = f.Float("Direction", 0)
			l.ConeAngle = f.Float("ConeAngle", 0)
			return nil
		},
	})

	RegisterComponentType(ComponentDescriptor{
		Name: "BoxCollider",
		New:  func() Component { return NewBoxCollider(0, 0) },
		Encode: func(c Component, f Fields) error {
			b := c.(*BoxCollider)
			f.SetVec2("Offset", b.offset)
			f["Width"], f["Height"] = b.width, b.height
			return nil
		},
		Decode: func(c Component, f Fields, _ *Decoder) error {
			b := c.(*BoxCollider)
			b.offset = f.Vec2("Offset", Vec2{})
			b.width, b.height = f.Float("Width", 0), f.Float("Height", 0)
			return nil
		},
	})

	RegisterComponentType(ComponentDescriptor{
		Name: "CircleCollider",
		New:  func() Component { return NewCircleCollider(0) },
		Encode: func(c Component, f Fields) error {
			cc := c.(*CircleCollider)
			f.SetVec2("Offset", cc.offset)
			f["Radius"] = cc.radius
			return nil
		},
		Decode: func(c Component, f Fields, _ *Decoder) error {
			cc := c.(*CircleCollider)
			cc.offset = f.Vec2("Offset", Vec2{})
			cc.radius = f.Float("Radius", 0)
			return nil
		},
	})

	RegisterComponentType(ComponentDescriptor{
		Name: "PolygonCollider",
		New:  func() Component { return NewPolygonCollider() },
		Encode: func(c Component, f Fields) error {
			p := c.(*PolygonCollider)
			f.SetVec2("Offset", p.offset)
			f.SetPoints("Points", p.points)
			return nil
		},
		Decode: func(c Component, f Fields, _ *Decoder) error {
			p := c.(*PolygonCollider)
			p.offset = f.Vec2("Offset", Vec2{})
			pts, err := f.Points("Points")
			if err != nil {
				return err
			}
			p.points = pts
			return nil
		},
	})

	RegisterComponentType(ComponentDescriptor{
		Name: "Tween",
		New:  func() Component { return NewTween(TweenPosition, 0, "") },
		Encode: func(c Component, f Fields) error {
			t := c.(*TweenComponent)
			f["Property"] = t.Property.String()
			f["To"] = t.To[:t.Property.fields()]
			f["Duration"] = float64(t.Duration)
			f["Ease"] = t.Ease
			f["Loop"] = t.Loop
			f["AutoPlay"] = t.AutoPlay
			return nil
		},
		Decode: func(c Component, f Fields, _ *Decoder) error {
			t := c.(*TweenComponent)
			prop, ok := ParseTweenProperty(f.String("Property", "position"))
			if !ok {
				return fmt.Errorf("unknown tween property %q", f.String("Property", ""))
			}
			t.Property = prop
			to, err := f.Floats("To")
			if err != nil {
				return err
			}
			copy(t.To[:], to)
			t.Duration = float32(f.Float("Duration", 0))
			t.Ease = f.String("Ease", "")
			if _, ok := EaseByName(t.Ease); !ok {
				return fmt.Errorf("unknown ease %q", t.Ease)
			}
			t.Loop = f.Bool("Loop", false)
			t.AutoPlay = f.Bool("AutoPlay", false)
			return nil
		},
	})

	RegisterComponentType(ComponentDescriptor{
		Name: "ParticleEmitter",
		New:  func() Component { return NewParticleEmitter(DefaultEmitterConfig()) },
		Encode: func(c Component, f Fields) error {
			e := c.(*ParticleEmitterComponent)
			cfg := e.Config
			f["MaxParticles"] = cfg.MaxParticles
			f["EmitRate"] = cfg.EmitRate
			f.SetRange("Lifetime", cfg.Lifetime)
			f.SetRange("Speed", cfg.Speed)
			f.SetRange("Angle", cfg.Angle)
			f.SetRange("StartScale", cfg.StartScale)
			f.SetRange("EndScale", cfg.EndScale)
			f.SetRange("StartAlpha", cfg.StartAlpha)
			f.SetRange("EndAlpha", cfg.EndAlpha)
			f.SetVec2("Gravity", cfg.Gravity)
			f.SetColor("StartColor", cfg.StartColor)
			f.SetColor("EndColor", cfg.EndColor)
			f.SetVec2("Size", cfg.Size)
			f["WorldSpace"] = cfg.WorldSpace
			f["Emitting"] = e.emitting
			f.SetAsset("Texture", e.Texture.Name())
			f["Blend"] = e.blend.String()
			f["Layer"] = e.layer
			f["Order"] = e.order
			return nil
		},
		Decode: func(c Component, f Fields, d *Decoder) error {
			e := c.(*ParticleEmitterComponent)
			def := DefaultEmitterConfig()
			e.Config = EmitterConfig{
				MaxParticles: f.Int("MaxParticles", def.MaxParticles),
				EmitRate:     f.Float("EmitRate", def.EmitRate),
				Lifetime:     f.Range("Lifetime", def.Lifetime),
				Speed:        f.Range("Speed", def.Speed),
				Angle:        f.Range("Angle", def.Angle),
				StartScale:   f.Range("StartScale", def.StartScale),
				EndScale:     f.Range("EndScale", def.EndScale),
				StartAlpha:   f.Range("StartAlpha", def.StartAlpha),
				EndAlpha:     f.Range("EndAlpha", def.EndAlpha),
				Gravity:      f.Vec2("Gravity", def.Gravity),
				StartColor:   f.Color("StartColor", def.StartColor),
				EndColor:     f.Color("EndColor", def.EndColor),
				Size:         f.Vec2("Size", def.Size),
				WorldSpace:   f.Bool("WorldSpace", false),
			}
			if e.Config.MaxParticles < 0 {
				return fmt.Errorf("negative particle pool size %d", e.Config.MaxParticles)
			}
			e.emitting = f.Bool("Emitting", true)
			blend, err := blendField(f)
			if err != nil {
				return err
			}
			e.blend = blend
			e.layer = f.Int("Layer", 0)
			e.order = f.Int("Order", 0)
			deferTexture(d, f.Asset("Texture"), func(h AssetHandle[*Texture]) { e.Texture = h })
			return nil
		},
	})

	RegisterComponentType(ComponentDescriptor{
		Name: "TileMap",
		New:  func() Component { return NewTileMap(AssetHandle[*Texture]{}, 1, 1, 0, 0) },
		Encode: func(c Component, f Fields) error {
			t := c.(*TileMapComponent)
			f.SetAsset("Tileset", t.Tileset.Name())
			f["TileWidth"], f["TileHeight"] = t.TileWidth, t.TileHeight
			f["Columns"], f["Rows"] = t.width, t.height
			data := make([]float64, len(t.data))
			for i, gid := range t.data {
				data[i] = float64(gid)
			}
			f["Data"] = data
			anims := make([]any, 0, len(t.anims))
			for _, gid := range sortedGIDs(t.anims) {
				frames := make([]float64, 0, 2*len(t.anims[gid]))
				for _, fr := range t.anims[gid] {
					frames = append(frames, float64(fr.GID), float64(fr.Duration))
				}
				anims = append(anims, map[string]any{"Tile": float64(gid), "Frames": frames})
			}
			f["Animations"] = anims
			f.SetColor("Color", t.Color)
			f["Blend"] = t.blend.String()
			f["Layer"] = t.layer
			f["Order"] = t.order
			return nil
		},
		Decode: func(c Component, f Fields, d *Decoder) error {
			t := c.(*TileMapComponent)
			t.TileWidth = f.Int("TileWidth", 1)
			t.TileHeight = f.Int("TileHeight", 1)
			raw, err := f.Floats("Data")
			if err != nil {
				return err
			}
			data := make([]uint32, len(raw))
			for i, v := range raw {
				if v < 0 || v > math.MaxUint32 {
					return fmt.Errorf("tile %d: gid %v out of range", i, v)
				}
				data[i] = uint32(v)
			}
			if err := t.SetData(data, f.Int("Columns", 0), f.Int("Rows", 0)); err != nil {
				return err
			}
			objs, err := f.Objects("Animations")
			if err != nil {
				return err
			}
			if len(objs) > 0 {
				anims := make(map[uint32][]AnimFrame, len(objs))
				for _, o := range objs {
					flat, err := o.Floats("Frames")
					if err != nil {
						return err
					}
					if len(flat)%2 != 0 {
						return fmt.Errorf("tile animation %d: odd frame list", o.Int("Tile", 0))
					}
					frames := make([]AnimFrame, len(flat)/2)
					for i := range frames {
						frames[i] = AnimFrame{GID: uint32(flat[2*i]), Duration: int(flat[2*i+1])}
					}
					anims[uint32(o.Int("Tile", 0))] = frames
				}
				t.SetAnimations(anims)
			}
			t.Color = f.Color("Color", ColorWhite)
			blend, err := blendField(f)
			if err != nil {
				return err
			}
			t.blend = blend
			t.layer = f.Int("Layer", 0)
			t.order = f.Int("Order", 0)
			deferTexture(d, f.Asset("Tileset"), func(h AssetHandle[*Texture]) { t.Tileset = h; t.dirty = true })
			return nil
		},
	})
}

func blendField(f Fields) (BlendMode, error) {
	name := f.String("Blend", "normal")
	b, ok := ParseBlendMode(name)
	if !ok {
		return BlendNormal, fmt.Errorf("unknown blend mode %q", name)
	}
	return b, nil
}

var alignNames = [...]string{
	TextAlignLeft:   "left",
	TextAlignCenter: "center",
	TextAlignRight:  "right",
}

func parseAlign(s string) (TextAlign, bool) {
	for i, n := range alignNames {
		if n == s {
			return TextAlign(i), true
		}
	}
	return TextAlignLeft, false
}

func encodeLight(l *LightBase, f Fields) {
	f.SetColor("Color", l.Color)
	f["Intensity"] = l.Intensity
	f["Radius"] = l.Radius
	f["Layer"] = l.layer
}

func decodeLight(l *LightBase, f Fields) {
	l.Color = f.Color("Color", ColorWhite)
	l.Intensity = f.Float("Intensity", 1)
	l.Radius = f.Float("Radius", 0)
	l.layer = f.Int("Layer", 0)
}

func sortedGIDs(anims map[uint32][]AnimFrame) []uint32 {
	gids := make([]uint32, 0, len(anims))
	for gid := range anims {
		gids = append(gids, gid)
	}
	slices.Sort(gids)
	return gids
}
