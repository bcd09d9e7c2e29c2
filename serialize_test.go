package lumen

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func buildSerializableScene(t *testing.T, reg *AssetRegistry) (*Scene, *Entity, *Entity) {
	t.Helper()
	s := NewScene("level", SceneOptions{Assets: reg})
	root := s.CreateEntity("root")
	root.Transform().SetPosition(3, 4)
	root.Transform().SetRotation(0.5)

	child := s.CreateEntity("child")
	child.SetParent(root)
	child.SetEnabled(false)
	sp := NewSpriteRenderer(HandleOf[*Texture](reg, "hero.png"))
	sp.Color = Color{R: 1, G: 0.5, B: 0.25, A: 1}
	sp.SetOrder(7)
	if err := child.AddComponent(sp); err != nil {
		t.Fatal(err)
	}

	cam := NewCamera(Rect{Width: 320, Height: 180})
	cam.SetPrimary(true)
	cam.Zoom = 2
	if err := s.CreateEntity("camera").AddComponent(cam); err != nil {
		t.Fatal(err)
	}
	return s, root, child
}

func TestSceneRoundTrip(t *testing.T) {
	reg := NewAssetRegistry(nil)
	tex := NewTexture("hero.png", solidImage(8, 8))
	reg.Register("hero.png", tex)

	s, root, child := buildSerializableScene(t, reg)
	data, err := EncodeScene(s)
	if err != nil {
		t.Fatal(err)
	}

	got, err := DecodeScene(data, SceneOptions{Assets: reg})
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "level" || got.State() != SceneUnloaded {
		t.Errorf("Name = %q, State = %v", got.Name, got.State())
	}
	if len(got.Entities()) != 3 {
		t.Fatalf("Entities = %d, want 3", len(got.Entities()))
	}

	r, ok := got.FindEntity(root.ID)
	if !ok {
		t.Fatal("root id not preserved")
	}
	if r.Transform().X != 3 || r.Transform().Y != 4 || r.Transform().Rotation != 0.5 {
		t.Errorf("root transform = %+v", r.Transform())
	}

	c, ok := got.FindEntity(child.ID)
	if !ok {
		t.Fatal("child id not preserved")
	}
	if c.Parent() != r || c.Enabled() {
		t.Error("child parent link or enabled flag lost")
	}
	sp, ok := GetComponent[*SpriteRendererComponent](c)
	if !ok {
		t.Fatal("sprite lost")
	}
	if v, ok := sp.Texture.Get(); !ok || v != tex {
		t.Error("texture link not resolved through the registry")
	}
	if sp.Color != (Color{R: 1, G: 0.5, B: 0.25, A: 1}) || sp.Order() != 7 {
		t.Errorf("sprite fields = %+v order %d", sp.Color, sp.Order())
	}

	camEnt, _ := got.FindEntityByName("camera")
	cam, ok := GetComponent[*CameraComponent](camEnt)
	if !ok || !cam.Primary() || cam.Zoom != 2 || cam.Viewport.Width != 320 {
		t.Error("camera fields lost")
	}

	// Encoding the decoded scene again yields the same document.
	again, err := EncodeScene(got)
	if err != nil {
		t.Fatal(err)
	}
	if string(again) != string(data) {
		t.Errorf("re-encoded document differs:\n%s\n---\n%s", data, again)
	}
}

func TestDecodeSceneMissingAssetKeepsLink(t *testing.T) {
	reg := NewAssetRegistry(nil, t.TempDir())
	s, _, child := buildSerializableScene(t, NewAssetRegistry(nil))
	data, err := EncodeScene(s)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeScene(data, SceneOptions{Assets: reg})
	if err != nil {
		t.Fatalf("missing asset should not fail decoding: %v", err)
	}
	c, _ := got.FindEntity(child.ID)
	sp, _ := GetComponent[*SpriteRendererComponent](c)
	if sp.Texture.Name() != "hero.png" || sp.Texture.Valid() {
		t.Errorf("Texture = %q valid=%v, want unresolved hero.png", sp.Texture.Name(), sp.Texture.Valid())
	}
}

func sceneJSON(entities ...string) []byte {
	return []byte(fmt.Sprintf(`{"$type":"Scene","Name":"s","Entities":{"$values":[%s]}}`, strings.Join(entities, ",")))
}

func entityJSON(id, name, parent string, components ...string) string {
	p := "null"
	if parent != "" {
		p = `"` + parent + `"`
	}
	return fmt.Sprintf(`{"Id":%q,"Name":%q,"Enabled":true,"Parent":%s,"Components":{"$values":[%s]}}`,
		id, name, p, strings.Join(components, ","))
}

func TestDecodeSceneMalformed(t *testing.T) {
	a := uuid.NewString()
	b := uuid.NewString()
	tr := `{"$type":"Transform","X":1}`
	cases := []struct {
		name string
		data []byte
	}{
		{"not json", []byte(`{"$type":`)},
		{"wrong type", []byte(`{"$type":"Prefab","Name":"s"}`)},
		{"bad id", sceneJSON(entityJSON("not-a-uuid", "a", ""))},
		{"unknown component", sceneJSON(entityJSON(a, "a", "", `{"$type":"Teleporter"}`))},
		{"missing parent", sceneJSON(entityJSON(a, "a", b))},
		{"bad parent id", sceneJSON(entityJSON(a, "a", "zzz"))},
		{"duplicate id", sceneJSON(entityJSON(a, "a", ""), entityJSON(a, "b", ""))},
		{"duplicate component", sceneJSON(entityJSON(a, "a", "", tr, tr))},
		{"parent cycle", sceneJSON(entityJSON(a, "a", b), entityJSON(b, "b", a))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeScene(tc.data, SceneOptions{})
			if !errors.Is(err, ErrMalformedScene) {
				t.Errorf("err = %v, want ErrMalformedScene", err)
			}
		})
	}
}

func TestDecodeSceneDefaults(t *testing.T) {
	a := uuid.NewString()
	s, err := DecodeScene(sceneJSON(entityJSON(a, "a", "", `{"$type":"Transform","X":1}`)), SceneOptions{})
	if err != nil {
		t.Fatal(err)
	}
	e, _ := s.FindEntityByName("a")
	tr := e.Transform()
	if tr.X != 1 || tr.ScaleX != 1 || tr.ScaleY != 1 {
		t.Errorf("transform = %+v, want X=1 and unit scale", tr)
	}
}

func TestEncodeSceneWithoutDescriptorFails(t *testing.T) {
	s := newTestScene("s")
	s.CreateEmptyEntity("e").AddComponent(&probeComponent{})
	if _, err := EncodeScene(s); err == nil {
		t.Error("EncodeScene succeeded with an unregistered component type")
	}
}

func TestEntitiesFreshIDs(t *testing.T) {
	src := newTestScene("src")
	root := src.CreateEntity("root")
	kid := src.CreateEntity("kid")
	kid.SetParent(root)
	kid.Transform().SetPosition(1, 2)
	outsider := src.CreateEntity("outsider")
	root.SetParent(outsider)

	data, err := EncodeEntities(root)
	if err != nil {
		t.Fatal(err)
	}

	dst := loadedScene(t, "dst")
	roots, err := DecodeEntities(dst, data, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(roots) != 1 {
		t.Fatalf("roots = %d, want 1 (parent outside the set is dropped)", len(roots))
	}
	r := roots[0]
	if r.ID == root.ID || r.Parent() != nil || r.Name != "root" {
		t.Error("root not decoded with a fresh id")
	}
	if len(r.Children()) != 1 {
		t.Fatalf("children = %d, want 1", len(r.Children()))
	}
	k := r.Children()[0]
	if k.ID == kid.ID || k.Transform().X != 1 {
		t.Error("child not decoded with a fresh id")
	}
	if !k.Transform().IsAttached() {
		t.Error("decoded entities not attached in a loaded scene")
	}
	if len(dst.Entities()) != 2 {
		t.Errorf("dst Entities = %d, want 2", len(dst.Entities()))
	}

	// Without fresh ids the originals are kept.
	other := newTestScene("other")
	roots, err = DecodeEntities(other, data, false)
	if err != nil {
		t.Fatal(err)
	}
	if roots[0].ID != root.ID {
		t.Error("ids not kept")
	}
}

func TestDecodeEntitiesWrongType(t *testing.T) {
	_, err := DecodeEntities(newTestScene("s"), sceneJSON(), false)
	if !errors.Is(err, ErrMalformedScene) {
		t.Errorf("err = %v, want ErrMalformedScene", err)
	}
}

func TestRegisterComponentTypeDuplicatePanics(t *testing.T) {
	desc, ok := LookupComponentType("Transform")
	if !ok {
		t.Fatal("Transform not registered")
	}
	expectPanic(t, func() { RegisterComponentType(*desc) })
	expectPanic(t, func() { RegisterComponentType(ComponentDescriptor{Name: "Half"}) })

	names := ComponentTypeNames()
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("names not sorted: %v", names)
		}
	}
}

// refusingComponent fails every attach.
type refusingComponent struct{ ComponentBase }

var errRefused = errors.New("refused")

func (*refusingComponent) Attach(*World) error { return errRefused }
func (*refusingComponent) Detach(*World)       {}

func (r *refusingComponent) Clone() Component {
	return &refusingComponent{ComponentBase: r.cloneBase()}
}

func registerRefusing() {
	if _, ok := LookupComponentType("Refusing"); ok {
		return
	}
	RegisterComponentType(ComponentDescriptor{
		Name:   "Refusing",
		New:    func() Component { return &refusingComponent{} },
		Encode: func(Component, Fields) error { return nil },
		Decode: func(Component, Fields, *Decoder) error { return nil },
	})
}

func TestDecodeEntitiesAllOrNothing(t *testing.T) {
	registerRefusing()
	src := newTestScene("src")
	first := src.CreateEntity("first")
	src.CreateEntity("kid").SetParent(first)
	second := src.CreateEntity("second")
	second.AddComponent(&refusingComponent{})

	data, err := EncodeEntities(first, second)
	if err != nil {
		t.Fatal(err)
	}

	dst := loadedScene(t, "dst")
	keep := dst.CreateEntity("keep")
	roots, err := DecodeEntities(dst, data, true)
	if !errors.Is(err, errRefused) {
		t.Fatalf("err = %v, want refused", err)
	}
	if roots != nil {
		t.Errorf("roots = %v, want nil", roots)
	}
	if ents := dst.Entities(); len(ents) != 1 || ents[0] != keep {
		t.Errorf("Entities = %d after a failed paste, want only the existing one", len(ents))
	}
}
