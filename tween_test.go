package lumen

import (
	"strings"
	"testing"
)

func tweenScene(t *testing.T) (*Scene, *TweenSystem) {
	t.Helper()
	s := startedScene(t, "s")
	ts, ok := GetSystem[*TweenSystem](s.World())
	if !ok {
		t.Fatal("TweenSystem missing")
	}
	return s, ts
}

func TestTweenPositionLandsOnTarget(t *testing.T) {
	s, ts := tweenScene(t)
	e := s.CreateEntity("e")
	tw := NewTween(TweenPosition, 1, "linear", 10, 20)
	if err := e.AddComponent(tw); err != nil {
		t.Fatal(err)
	}
	if !tw.Play() {
		t.Fatal("Play returned false")
	}

	ts.Update(0.5)
	assertNear(t, "mid x", e.Transform().X, 5)
	assertNear(t, "mid y", e.Transform().Y, 10)
	if !tw.Playing() || tw.Done() {
		t.Error("tween should still be playing")
	}

	finished := 0
	tw.OnFinished().Subscribe(func(*TweenComponent) { finished++ })
	ts.Update(0.75)
	if e.Transform().X != 10 || e.Transform().Y != 20 {
		t.Errorf("end = %v,%v, want exactly 10,20", e.Transform().X, e.Transform().Y)
	}
	if tw.Playing() || !tw.Done() || finished != 1 {
		t.Errorf("Playing=%v Done=%v finished=%d", tw.Playing(), tw.Done(), finished)
	}
	if ts.Len() != 1 {
		t.Error("finished tween was unregistered")
	}

	ts.Update(1)
	if finished != 1 {
		t.Error("finished tween kept updating")
	}
}

func TestTweenLoop(t *testing.T) {
	s, ts := tweenScene(t)
	e := s.CreateEntity("e")
	tw := NewTween(TweenRotation, 1, "", 2)
	tw.Loop = true
	e.AddComponent(tw)
	tw.Play()

	finished := 0
	tw.OnFinished().Subscribe(func(*TweenComponent) { finished++ })
	ts.Update(1)
	if finished != 1 || !tw.Playing() || tw.Done() {
		t.Errorf("finished=%d Playing=%v Done=%v", finished, tw.Playing(), tw.Done())
	}
	ts.Update(0.5)
	assertNear(t, "looped rotation", e.Transform().Rotation, 1)
}

func TestTweenAutoPlay(t *testing.T) {
	s, ts := tweenScene(t)
	e := s.CreateEntity("e")
	e.Transform().SetScale(1, 1)
	tw := NewTween(TweenScale, 1, "linear", 3, 3)
	tw.AutoPlay = true
	e.AddComponent(tw)
	ts.Update(0.5)
	assertNear(t, "scale", e.Transform().ScaleX, 2)
}

func TestTweenAlphaOnSprite(t *testing.T) {
	s, ts := tweenScene(t)
	e := s.CreateEntity("e")
	sp := NewSpriteRenderer(AssetHandle[*Texture]{})
	e.AddComponent(sp)
	tw := NewTween(TweenAlpha, 1, "linear", 0)
	e.AddComponent(tw)
	if !tw.Play() {
		t.Fatal("Play returned false with a sprite present")
	}
	ts.Update(0.25)
	assertNear(t, "alpha", sp.Color.A, 0.75)
	if sp.Color.R != 1 {
		t.Error("alpha tween touched R")
	}
}

func TestTweenColor(t *testing.T) {
	s, ts := tweenScene(t)
	e := s.CreateEntity("e")
	sp := NewSpriteRenderer(AssetHandle[*Texture]{})
	e.AddComponent(sp)
	tw := NewTween(TweenColor, 1, "", 0, 0, 0, 1)
	e.AddComponent(tw)
	tw.Play()
	ts.Update(2)
	if sp.Color != ColorBlack {
		t.Errorf("Color = %+v, want black", sp.Color)
	}
}

func TestTweenNothingToAnimate(t *testing.T) {
	s, _ := tweenScene(t)
	tw := NewTween(TweenAlpha, 1, "", 0)
	s.CreateEntity("e").AddComponent(tw)
	if tw.Play() {
		t.Error("alpha tween played without a renderer")
	}
	pos := NewTween(TweenPosition, 1, "", 1, 1)
	s.CreateEmptyEntity("bare").AddComponent(pos)
	if pos.Play() {
		t.Error("position tween played without a transform")
	}
	if NewTween(TweenPosition, 1, "").Play() {
		t.Error("unowned tween played")
	}
}

func TestTweenUnknownEaseFailsAttach(t *testing.T) {
	s, ts := tweenScene(t)
	err := s.CreateEntity("e").AddComponent(NewTween(TweenPosition, 1, "wobble", 1, 1))
	if err == nil || !strings.Contains(err.Error(), "wobble") {
		t.Errorf("err = %v, want unknown ease", err)
	}
	if ts.Len() != 0 {
		t.Error("failed tween registered")
	}
}

func TestTweenInactiveDoesNotAdvance(t *testing.T) {
	s, ts := tweenScene(t)
	e := s.CreateEntity("e")
	tw := NewTween(TweenPosition, 1, "linear", 10, 0)
	e.AddComponent(tw)
	tw.Play()
	e.SetEnabled(false)
	ts.Update(0.5)
	if e.Transform().X != 0 {
		t.Error("tween advanced on a disabled entity")
	}
}

func TestTweenProperties(t *testing.T) {
	for _, p := range []TweenProperty{TweenPosition, TweenScale, TweenRotation, TweenAlpha, TweenColor} {
		got, ok := ParseTweenProperty(p.String())
		if !ok || got != p {
			t.Errorf("ParseTweenProperty(%q) = %v, %v", p.String(), got, ok)
		}
	}
	if _, ok := ParseTweenProperty("size"); ok {
		t.Error("ParseTweenProperty accepted an unknown name")
	}
	names := EaseNames()
	if len(names) == 0 || names[0] > names[len(names)-1] {
		t.Errorf("EaseNames = %v", names)
	}
	for _, n := range names {
		if _, ok := EaseByName(n); !ok {
			t.Errorf("EaseByName(%q) failed", n)
		}
	}
}
