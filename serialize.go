package lumen

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrMalformedScene is returned for scene documents that cannot be decoded:
// bad structure, unknown component types or dangling parent links.
var ErrMalformedScene = errors.New("lumen: malformed scene document")

// ComponentDescriptor describes how one component type is serialized. The
// table is explicit: every serializable type registers a descriptor.
type ComponentDescriptor struct {
	// Name is the "$type" written to documents.
	Name string
	// New returns a zero-state instance.
	New func() Component
	// Encode writes c's fields.
	Encode func(c Component, f Fields) error
	// Decode reads fields into c. Cross-references are resolved through
	// d.Defer.
	Decode func(c Component, f Fields, d *Decoder) error
}

var (
	descriptorsByName = map[string]*ComponentDescriptor{}
	descriptorsByType = map[reflect.Type]*ComponentDescriptor{}
)

// RegisterComponentType adds desc to the descriptor table. Panics if the
// name or the concrete type is already registered.
func RegisterComponentType(desc ComponentDescriptor) {
	if desc.Name == "" || desc.New == nil || desc.Encode == nil || desc.Decode == nil {
		panic("lumen: incomplete component descriptor")
	}
	t := reflect.TypeOf(desc.New())
	if _, dup := descriptorsByName[desc.Name]; dup {
		panic(fmt.Sprintf("lumen: component type %q already registered", desc.Name))
	}
	if _, dup := descriptorsByType[t]; dup {
		panic(fmt.Sprintf("lumen: component type %v already registered", t))
	}
	d := desc
	descriptorsByName[desc.Name] = &d
	descriptorsByType[t] = &d
}

// ComponentTypeNames returns the registered descriptor names, sorted.
func ComponentTypeNames() []string {
	names := make([]string, 0, len(descriptorsByName))
	for n := range descriptorsByName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DescriptorFor returns the descriptor of c's concrete type.
func DescriptorFor(c Component) (*ComponentDescriptor, bool) {
	d, ok := descriptorsByType[reflect.TypeOf(c)]
	return d, ok
}

// LookupComponentType returns the descriptor registered under name.
func LookupComponentType(name string) (*ComponentDescriptor, bool) {
	d, ok := descriptorsByName[name]
	return d, ok
}

// --- Document model ---

type values[T any] struct {
	Values []T `json:"$values"`
}

type sceneDoc struct {
	Type     string            `json:"$type"`
	Name     string            `json:"Name"`
	Entities values[entityDoc] `json:"Entities"`
}

type entityDoc struct {
	ID         string          `json:"Id"`
	Name       string          `json:"Name"`
	Enabled    bool            `json:"Enabled"`
	Parent     *string         `json:"Parent"`
	Components values[Fields] `json:"Components"`
}

// Decoder resolves a document in two passes: entities and components first,
// then the deferred cross-reference actions.
type Decoder struct {
	assets *AssetRegistry
	logger *zap.Logger

	byID    map[uuid.UUID]*Entity
	actions []func() error
}

func newDecoder(assets *AssetRegistry, logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{assets: assets, logger: logger, byID: make(map[uuid.UUID]*Entity)}
}

// Defer queues fn to run once every entity exists.
func (d *Decoder) Defer(fn func() error) { d.actions = append(d.actions, fn) }

// Assets returns the registry asset links resolve against, or nil.
func (d *Decoder) Assets() *AssetRegistry { return d.assets }

func (d *Decoder) runDeferred() error {
	// Actions may queue more actions.
	for i := 0; i < len(d.actions); i++ {
		if err := d.actions[i](); err != nil {
			return err
		}
	}
	d.actions = nil
	return nil
}

// resolveAsset loads name if needed. A missing asset is logged and reported
// as not found; the caller keeps the unresolved link.
func (d *Decoder) resolveAsset(name string) {
	if d.assets == nil || name == "" {
		return
	}
	if _, _, ok := d.assets.entry(name); ok {
		return
	}
	if _, err := d.assets.Load(name); err != nil {
		d.logger.Error("asset link unresolved", zap.String("asset", name), zap.Error(err))
	}
}

// texture links name as a texture handle once the assets are resolved.
func deferTexture(d *Decoder, name string, set func(AssetHandle[*Texture])) {
	if name == "" {
		return
	}
	d.Defer(func() error {
		d.resolveAsset(name)
		set(HandleOf[*Texture](d.assets, name))
		return nil
	})
}

// --- Scene documents ---

// EncodeScene writes scene as a JSON document.
func EncodeScene(scene *Scene) ([]byte, error) {
	doc := sceneDoc{Type: "Scene", Name: scene.Name}
	ents, err := encodeEntityList(scene.attachOrder(), nil)
	if err != nil {
		return nil, err
	}
	doc.Entities.Values = ents
	return json.MarshalIndent(doc, "", "  ")
}

// DecodeScene builds an unloaded scene from a JSON document.
func DecodeScene(data []byte, opts SceneOptions) (*Scene, error) {
	var doc sceneDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedScene, err)
	}
	if doc.Type != "Scene" {
		return nil, fmt.Errorf("%w: $type %q, want Scene", ErrMalformedScene, doc.Type)
	}
	scene := NewScene(doc.Name, opts)
	d := newDecoder(opts.Assets, scene.logger)
	roots, err := d.decodeEntities(scene, doc.Entities.Values, false)
	if err != nil {
		return nil, err
	}
	for _, e := range roots {
		if err := scene.AddEntity(e); err != nil {
			return nil, err
		}
	}
	return scene, nil
}

// SceneDocument is a decoded-on-demand scene file held by the asset registry.
type SceneDocument struct {
	Name string
	data []byte
}

// Instantiate builds a fresh scene from the document.
func (doc *SceneDocument) Instantiate(opts SceneOptions) (*Scene, error) {
	return DecodeScene(doc.data, opts)
}

func (doc *SceneDocument) replaceWith(v any) error {
	nd, ok := v.(*SceneDocument)
	if !ok {
		return fmt.Errorf("cannot replace scene document with %T", v)
	}
	doc.data = nd.data
	return nil
}

func loadSceneDocumentAsset(_ *AssetRegistry, name string, data []byte) (any, error) {
	var head struct {
		Type string `json:"$type"`
		Name string `json:"Name"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedScene, err)
	}
	if head.Type != "Scene" {
		return nil, fmt.Errorf("%w: $type %q, want Scene", ErrMalformedScene, head.Type)
	}
	return &SceneDocument{Name: head.Name, data: data}, nil
}

// --- Entity subsets ---

type entitiesDoc struct {
	Type     string            `json:"$type"`
	Entities values[entityDoc] `json:"Entities"`
}

// EncodeEntities writes the given entities and their subtrees. Parent links
// leaving the set are written as null.
func EncodeEntities(roots ...*Entity) ([]byte, error) {
	var order []*Entity
	var walk func(e *Entity)
	walk = func(e *Entity) {
		order = append(order, e)
		for _, c := range e.children {
			walk(c)
		}
	}
	for _, e := range roots {
		walk(e)
	}
	set := make(map[*Entity]bool, len(order))
	for _, e := range order {
		set[e] = true
	}
	ents, err := encodeEntityList(order, set)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(entitiesDoc{Type: "Entities", Entities: values[entityDoc]{ents}}, "", "  ")
}

// DecodeEntities decodes an entity subset into scene and adds it. With
// freshIDs every entity gets a new id. Returns the subset's roots. The paste
// is all-or-nothing: when any root fails to attach, every root added so far
// is destroyed and no roots are returned.
func DecodeEntities(scene *Scene, data []byte, freshIDs bool) ([]*Entity, error) {
	var doc entitiesDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedScene, err)
	}
	if doc.Type != "Entities" {
		return nil, fmt.Errorf("%w: $type %q, want Entities", ErrMalformedScene, doc.Type)
	}
	d := newDecoder(scene.assets, scene.logger)
	roots, err := d.decodeEntities(scene, doc.Entities.Values, freshIDs)
	if err != nil {
		return nil, err
	}
	for i, e := range roots {
		if err := scene.AddEntity(e); err != nil {
			for j := i; j >= 0; j-- {
				scene.DestroyEntity(roots[j])
			}
			return nil, err
		}
	}
	return roots, nil
}

// --- Shared encode/decode ---

func encodeEntityList(order []*Entity, set map[*Entity]bool) ([]entityDoc, error) {
	out := make([]entityDoc, 0, len(order))
	for _, e := range order {
		ed := entityDoc{ID: e.ID.String(), Name: e.Name, Enabled: e.Enabled()}
		if p := e.parent; p != nil && (set == nil || set[p]) {
			id := p.ID.String()
			ed.Parent = &id
		}
		for _, c := range e.components {
			f, err := EncodeComponent(c)
			if err != nil {
				return nil, fmt.Errorf("lumen: encode entity %q: %w", e.Name, err)
			}
			ed.Components.Values = append(ed.Components.Values, f)
		}
		out = append(out, ed)
	}
	return out, nil
}

// EncodeComponent writes c with its "$type" and "Enabled" fields.
func EncodeComponent(c Component) (Fields, error) {
	desc, ok := DescriptorFor(c)
	if !ok {
		return nil, fmt.Errorf("lumen: no descriptor for %T", c)
	}
	f := Fields{"$type": desc.Name, "Enabled": c.Enabled()}
	if err := desc.Encode(c, f); err != nil {
		return nil, fmt.Errorf("lumen: encode %s: %w", desc.Name, err)
	}
	return f, nil
}

// DecodeComponent builds a component from fields carrying a "$type".
func DecodeComponent(f Fields, d *Decoder) (Component, error) {
	name := f.String("$type", "")
	desc, ok := LookupComponentType(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown component type %q", ErrMalformedScene, name)
	}
	c := desc.New()
	if err := desc.Decode(c, f, d); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrMalformedScene, name, err)
	}
	if !f.Bool("Enabled", true) {
		c.SetEnabled(false)
	}
	return c, nil
}

// decodeEntities runs both passes over docs and returns the entities whose
// parent is outside the set.
func (d *Decoder) decodeEntities(scene *Scene, docs []entityDoc, freshIDs bool) ([]*Entity, error) {
	ents := make([]*Entity, 0, len(docs))
	for i := range docs {
		ed := &docs[i]
		id, err := uuid.Parse(ed.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: entity %q: bad id %q", ErrMalformedScene, ed.Name, ed.ID)
		}
		if _, dup := d.byID[id]; dup {
			return nil, fmt.Errorf("%w: duplicate entity id %s", ErrMalformedScene, id)
		}
		e := newEntity(scene, ed.Name)
		if !freshIDs {
			e.ID = id
		}
		e.disabled = !ed.Enabled
		d.byID[id] = e
		ents = append(ents, e)

		for _, f := range ed.Components.Values {
			c, err := DecodeComponent(f, d)
			if err != nil {
				return nil, fmt.Errorf("entity %q: %w", ed.Name, err)
			}
			if !allowsMultiple(c) {
				if _, dup := findSameType(e, c); dup {
					return nil, fmt.Errorf("%w: entity %q has two %T", ErrMalformedScene, ed.Name, c)
				}
			}
			if err := e.AddComponent(c); err != nil {
				return nil, err
			}
		}
		if ed.Parent != nil {
			pid, err := uuid.Parse(*ed.Parent)
			if err != nil {
				return nil, fmt.Errorf("%w: entity %q: bad parent id %q", ErrMalformedScene, ed.Name, *ed.Parent)
			}
			child := e
			d.Defer(func() error {
				p, ok := d.byID[pid]
				if !ok {
					return fmt.Errorf("%w: entity %q: missing parent %s", ErrMalformedScene, child.Name, pid)
				}
				if isAncestor(child, p) {
					return fmt.Errorf("%w: entity %q: parent cycle", ErrMalformedScene, child.Name)
				}
				child.parent = p
				p.children = append(p.children, child)
				return nil
			})
		}
	}
	if err := d.runDeferred(); err != nil {
		return nil, err
	}
	var roots []*Entity
	for _, e := range ents {
		if e.parent == nil {
			roots = append(roots, e)
		}
	}
	return roots, nil
}

func findSameType(e *Entity, c Component) (Component, bool) {
	t := reflect.TypeOf(c)
	for _, existing := range e.components {
		if reflect.TypeOf(existing) == t {
			return existing, true
		}
	}
	return nil, false
}
