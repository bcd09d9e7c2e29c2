package lumen

import (
	"math"
	"testing"
)

// --- computeLocalTransform ---

func TestLocalTransformIdentity(t *testing.T) {
	got := computeLocalTransform(NewTransform())
	assertMatrix(t, "identity", got, [6]float64{1, 0, 0, 1, 0, 0})
}

func TestLocalTransformTranslation(t *testing.T) {
	tr := NewTransform()
	tr.X = 10
	tr.Y = 20
	assertMatrix(t, "translation", computeLocalTransform(tr), [6]float64{1, 0, 0, 1, 10, 20})
}

func TestLocalTransformScale(t *testing.T) {
	tr := NewTransform()
	tr.ScaleX = 2
	tr.ScaleY = 3
	assertMatrix(t, "scale", computeLocalTransform(tr), [6]float64{2, 0, 0, 3, 0, 0})
}

func TestLocalTransformRotation90(t *testing.T) {
	tr := NewTransform()
	tr.Rotation = math.Pi / 2
	// cos(90)=0, sin(90)=1 → a=0, b=1, c=-1, d=0
	assertMatrix(t, "rot90", computeLocalTransform(tr), [6]float64{0, 1, -1, 0, 0, 0})
}

func TestLocalTransformPivot(t *testing.T) {
	tr := NewTransform()
	tr.X = 100
	tr.Y = 200
	tr.PivotX = 16
	tr.PivotY = 16
	// T(100,200) * T(-16,-16) = [1,0,0,1, 84, 184]
	assertMatrix(t, "pivot", computeLocalTransform(tr), [6]float64{1, 0, 0, 1, 84, 184})
}

func TestLocalTransformPivotScaled(t *testing.T) {
	tr := NewTransform()
	tr.ScaleX = 2
	tr.ScaleY = 2
	tr.PivotX = 5
	tr.PivotY = 5
	assertMatrix(t, "pivot scaled", computeLocalTransform(tr), [6]float64{2, 0, 0, 2, -10, -10})
}

// --- matrix helpers ---

func TestMultiplyAffineIdentity(t *testing.T) {
	m := [6]float64{2, 1, -1, 3, 4, 5}
	assertMatrix(t, "I*m", multiplyAffine(identityTransform, m), m)
	assertMatrix(t, "m*I", multiplyAffine(m, identityTransform), m)
}

func TestInvertAffine(t *testing.T) {
	m := [6]float64{2, 1, -1, 3, 4, 5}
	assertMatrix(t, "m*inv", multiplyAffine(m, invertAffine(m)), identityTransform)
}

func TestInvertAffineSingular(t *testing.T) {
	assertMatrix(t, "singular", invertAffine([6]float64{0, 0, 0, 0, 3, 4}), identityTransform)
}

func TestTransformPoint(t *testing.T) {
	x, y := transformPoint([6]float64{0, 1, -1, 0, 10, 0}, 1, 0)
	assertNear(t, "x", x, 10)
	assertNear(t, "y", y, 1)
}

// --- world matrices ---

func TestWorldMatrixParentChain(t *testing.T) {
	s := newTestScene("s")
	parent := s.CreateEntity("parent")
	parent.Transform().SetPosition(100, 50)
	parent.Transform().SetScale(2, 2)
	child := s.CreateEntity("child")
	child.SetParent(parent)
	child.Transform().SetPosition(10, 5)

	p := child.Transform().WorldPosition()
	assertNear(t, "world x", p.X, 120)
	assertNear(t, "world y", p.Y, 60)

	lx, ly := child.Transform().WorldToLocal(120, 60)
	assertNear(t, "local x", lx, 0)
	assertNear(t, "local y", ly, 0)
	wx, wy := child.Transform().LocalToWorld(1, 1)
	assertNear(t, "LocalToWorld x", wx, 122)
	assertNear(t, "LocalToWorld y", wy, 62)
}

func TestWorldMatrixSkipsEntitiesWithoutTransform(t *testing.T) {
	s := newTestScene("s")
	root := s.CreateEntity("root")
	root.Transform().SetPosition(5, 5)
	group := s.CreateEmptyEntity("group")
	group.SetParent(root)
	leaf := s.CreateEntity("leaf")
	leaf.SetParent(group)

	p := leaf.Transform().WorldPosition()
	assertNear(t, "x", p.X, 5)
	assertNear(t, "y", p.Y, 5)
	assertMatrix(t, "group", EntityWorldMatrix(group), [6]float64{1, 0, 0, 1, 5, 5})
	assertMatrix(t, "nil", EntityWorldMatrix(nil), identityTransform)
}

func TestMarkDirtyReachesDescendants(t *testing.T) {
	s := newTestScene("s")
	parent := s.CreateEntity("parent")
	child := s.CreateEntity("child")
	child.SetParent(parent)
	child.Transform().WorldMatrix()
	parent.Transform().WorldMatrix()
	if child.Transform().Dirty() || parent.Transform().Dirty() {
		t.Fatal("transforms still dirty after WorldMatrix")
	}

	parent.Transform().SetPosition(1, 1)
	if !child.Transform().Dirty() {
		t.Error("child not dirty after parent moved")
	}
	p := child.Transform().WorldPosition()
	assertNear(t, "x", p.X, 1)
}

func TestWorldMatrixEmitsChanged(t *testing.T) {
	tr := NewTransform()
	n := 0
	tr.OnChanged().Subscribe(func(*TransformComponent) { n++ })
	tr.WorldMatrix()
	tr.WorldMatrix()
	if n != 1 {
		t.Errorf("changed = %d, want 1", n)
	}
}

func TestTransformSystemUpdate(t *testing.T) {
	s := loadedScene(t, "s")
	ts, ok := GetSystem[*TransformSystem](s.World())
	if !ok {
		t.Fatal("TransformSystem missing")
	}
	parent := s.CreateEntity("parent")
	child := s.CreateEntity("child")
	child.SetParent(parent)
	if ts.Len() != 2 {
		t.Errorf("Len = %d, want 2", ts.Len())
	}

	parent.Transform().X = 7
	parent.Transform().MarkDirty()
	if err := ts.Update(0); err != nil {
		t.Fatal(err)
	}
	if parent.Transform().Dirty() || child.Transform().Dirty() {
		t.Error("Update left dirty transforms")
	}
	assertNear(t, "child x", child.Transform().world[4], 7)

	// Reparenting marks the moved subtree dirty through the scene signal.
	other := s.CreateEntity("other")
	other.Transform().SetPosition(0, 3)
	ts.Update(0)
	child.SetParent(other)
	if !child.Transform().Dirty() {
		t.Error("reparented transform not dirty")
	}
	ts.Update(0)
	assertNear(t, "reparented y", child.Transform().world[5], 3)

	RemoveComponent[*TransformComponent](other)
	if ts.Len() != 2 {
		t.Errorf("Len after remove = %d, want 2", ts.Len())
	}
}

func TestTransformRegisterTwicePanics(t *testing.T) {
	ts := NewTransformSystem()
	tr := NewTransform()
	ts.Register(tr)
	expectPanic(t, func() { ts.Register(tr) })
}
