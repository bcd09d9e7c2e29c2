package lumen

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Prefab is an entity template loaded from YAML:
//
//	name: player
//	components:
//	  - type: Transform
//	    X: 10
//	  - type: SpriteRenderer
//	    Texture: hero.png
//	children:
//	  - name: shadow
//	    components: [...]
type Prefab struct {
	Name       string           `yaml:"name"`
	Disabled   bool             `yaml:"disabled,omitempty"`
	Components []map[string]any `yaml:"components"`
	Children   []*Prefab        `yaml:"children,omitempty"`
}

// ParsePrefab decodes YAML prefab data and checks every component type.
func ParsePrefab(data []byte) (*Prefab, error) {
	var p Prefab
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("lumen: parse prefab: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Prefab) validate() error {
	for i, c := range p.Components {
		name, _ := c["type"].(string)
		if _, ok := LookupComponentType(name); !ok {
			return fmt.Errorf("lumen: prefab %q component %d: unknown type %q", p.Name, i, name)
		}
	}
	for _, child := range p.Children {
		if err := child.validate(); err != nil {
			return err
		}
	}
	return nil
}

// Instantiate builds the prefab's entity tree in scene and adds it. When the
// scene is loaded the components attach immediately.
func (p *Prefab) Instantiate(scene *Scene) (*Entity, error) {
	d := newDecoder(scene.assets, scene.logger)
	root, err := p.build(scene, d, nil)
	if err != nil {
		return nil, err
	}
	if err := d.runDeferred(); err != nil {
		return nil, err
	}
	if err := scene.AddEntity(root); err != nil {
		return root, err
	}
	return root, nil
}

func (p *Prefab) build(scene *Scene, d *Decoder, parent *Entity) (*Entity, error) {
	e := newEntity(scene, p.Name)
	e.disabled = p.Disabled
	for _, raw := range p.Components {
		f := make(Fields, len(raw))
		for k, v := range raw {
			if k == "type" {
				f["$type"] = v
				continue
			}
			f[k] = v
		}
		c, err := DecodeComponent(f, d)
		if err != nil {
			return nil, fmt.Errorf("lumen: prefab %q: %w", p.Name, err)
		}
		if !allowsMultiple(c) {
			if _, dup := findSameType(e, c); dup {
				return nil, fmt.Errorf("lumen: prefab %q has two %T", p.Name, c)
			}
		}
		if err := e.AddComponent(c); err != nil {
			return nil, err
		}
	}
	if parent != nil {
		e.parent = parent
		parent.children = append(parent.children, e)
	}
	for _, child := range p.Children {
		if _, err := child.build(scene, d, e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func loadPrefabAsset(_ *AssetRegistry, _ string, data []byte) (any, error) {
	return ParsePrefab(data)
}

// replaceWith swaps in a reloaded template. Entities already instantiated
// are unaffected.
func (p *Prefab) replaceWith(v any) error {
	np, ok := v.(*Prefab)
	if !ok {
		return fmt.Errorf("cannot replace prefab with %T", v)
	}
	*p = *np
	return nil
}
