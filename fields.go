package lumen

import (
	"encoding/json"
	"fmt"
)

// Fields is the loosely typed field map of one serialized component. Scene
// documents (JSON) and prefabs (YAML) both decode into it, so the getters
// accept every numeric representation those decoders produce.
type Fields map[string]any

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Float returns the number at key, or def.
func (f Fields) Float(key string, def float64) float64 {
	if v, ok := toFloat(f[key]); ok {
		return v
	}
	return def
}

// Int returns the number at key truncated to int, or def.
func (f Fields) Int(key string, def int) int {
	if v, ok := toFloat(f[key]); ok {
		return int(v)
	}
	return def
}

// Bool returns the boolean at key, or def.
func (f Fields) Bool(key string, def bool) bool {
	if v, ok := f[key].(bool); ok {
		return v
	}
	return def
}

// String returns the string at key, or def.
func (f Fields) String(key, def string) string {
	if v, ok := f[key].(string); ok {
		return v
	}
	return def
}

// Floats returns the number list at key.
func (f Fields) Floats(key string) ([]float64, error) {
	raw, ok := f[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch list := raw.(type) {
	case []float64:
		return list, nil
	case []any:
		out := make([]float64, len(list))
		for i, v := range list {
			n, ok := toFloat(v)
			if !ok {
				return nil, fmt.Errorf("field %s[%d]: not a number", key, i)
			}
			out[i] = n
		}
		return out, nil
	}
	return nil, fmt.Errorf("field %s: not a list", key)
}

// Object returns the nested map at key.
func (f Fields) Object(key string) (Fields, bool) {
	switch m := f[key].(type) {
	case Fields:
		return m, true
	case map[string]any:
		return Fields(m), true
	}
	return nil, false
}

// Vec2 returns the {"X","Y"} object at key, or def.
func (f Fields) Vec2(key string, def Vec2) Vec2 {
	o, ok := f.Object(key)
	if !ok {
		return def
	}
	return Vec2{X: o.Float("X", def.X), Y: o.Float("Y", def.Y)}
}

// SetVec2 writes v as an {"X","Y"} object.
func (f Fields) SetVec2(key string, v Vec2) {
	f[key] = map[string]any{"X": v.X, "Y": v.Y}
}

// Rect returns the {"X","Y","Width","Height"} object at key, or def.
func (f Fields) Rect(key string, def Rect) Rect {
	o, ok := f.Object(key)
	if !ok {
		return def
	}
	return Rect{
		X:      o.Float("X", def.X),
		Y:      o.Float("Y", def.Y),
		Width:  o.Float("Width", def.Width),
		Height: o.Float("Height", def.Height),
	}
}

// SetRect writes r as an object.
func (f Fields) SetRect(key string, r Rect) {
	f[key] = map[string]any{"X": r.X, "Y": r.Y, "Width": r.Width, "Height": r.Height}
}

// Color returns the {"R","G","B","A"} object at key, or def.
func (f Fields) Color(key string, def Color) Color {
	o, ok := f.Object(key)
	if !ok {
		return def
	}
	return Color{R: o.Float("R", def.R), G: o.Float("G", def.G), B: o.Float("B", def.B), A: o.Float("A", def.A)}
}

// SetColor writes c as an object.
func (f Fields) SetColor(key string, c Color) {
	f[key] = map[string]any{"R": c.R, "G": c.G, "B": c.B, "A": c.A}
}

// Points returns a flat [x0, y0, x1, y1, ...] list at key as points.
func (f Fields) Points(key string) ([]Vec2, error) {
	flat, err := f.Floats(key)
	if err != nil {
		return nil, err
	}
	if len(flat)%2 != 0 {
		return nil, fmt.Errorf("field %s: odd number of coordinates", key)
	}
	pts := make([]Vec2, len(flat)/2)
	for i := range pts {
		pts[i] = Vec2{X: flat[2*i], Y: flat[2*i+1]}
	}
	return pts, nil
}

// SetPoints writes pts as a flat coordinate list.
func (f Fields) SetPoints(key string, pts []Vec2) {
	flat := make([]float64, 0, 2*len(pts))
	for _, p := range pts {
		flat = append(flat, p.X, p.Y)
	}
	f[key] = flat
}

// Asset returns the name of the {"$asset": name} link at key. A bare string
// is accepted as a name.
func (f Fields) Asset(key string) string {
	switch v := f[key].(type) {
	case string:
		return v
	case nil:
		return ""
	}
	if o, ok := f.Object(key); ok {
		return o.String("$asset", "")
	}
	return ""
}

// SetAsset writes a link to the asset name, or null for no link.
func (f Fields) SetAsset(key, name string) {
	if name == "" {
		f[key] = nil
		return
	}
	f[key] = map[string]any{"$asset": name}
}

// Range returns the {"Min","Max"} object at key, or def.
func (f Fields) Range(key string, def Range) Range {
	o, ok := f.Object(key)
	if !ok {
		return def
	}
	return Range{Min: o.Float("Min", def.Min), Max: o.Float("Max", def.Max)}
}

// SetRange writes r as an object.
func (f Fields) SetRange(key string, r Range) {
	f[key] = map[string]any{"Min": r.Min, "Max": r.Max}
}

// Objects returns the list of objects at key.
func (f Fields) Objects(key string) ([]Fields, error) {
	raw, ok := f[key]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("field %s: not a list", key)
	}
	out := make([]Fields, len(list))
	for i, v := range list {
		switch m := v.(type) {
		case Fields:
			out[i] = m
		case map[string]any:
			out[i] = Fields(m)
		default:
			return nil, fmt.Errorf("field %s[%d]: not an object", key, i)
		}
	}
	return out, nil
}
