// Package lumen is a component-based 2D engine runtime for [Ebitengine].
//
// Lumen provides scenes of entities, components attached to a per-scene
// [World] of systems, a render pipeline of ordered passes, lights,
// tweens (via [gween]), particles, tile maps, colliders, asset loading with
// hot reload, and a JSON scene format that round-trips everything above.
//
// # Quick start
//
// The simplest way to get started is [Run], which loads the entry scene from
// the config, creates a window and drives the engine:
//
//	cfg, err := lumen.LoadConfig("lumen.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	engine, err := lumen.NewEngine(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Close()
//	if err := lumen.Run(engine); err != nil {
//		log.Fatal(err)
//	}
//
// # Scenes and entities
//
// A [Scene] owns entities. Loading the scene creates its [World] and
// attaches every component of every entity; unloading detaches them again.
// Entities form a tree: children inherit their parent's transform and
// enabled state.
//
//	scene := engine.NewScene("level")
//	hero := scene.CreateEntity("hero")
//	hero.Transform().SetPosition(100, 50)
//	hero.AddComponent(lumen.NewSpriteRenderer(lumen.HandleOf[*lumen.Texture](engine.Assets, "hero.png")))
//	engine.Scenes.SetCurrent("level")
//
// Components are looked up by type with [GetComponent], systems with
// [GetSystem]. The systems a world starts with come from [DefaultSystems];
// set [SceneManager.Installers] to add more, such as the physics package.
//
// # Rendering
//
// The [RenderSystem] keeps every renderable sorted per layer by blend mode
// and order. The [Pipeline] runs its passes on the render thread against a
// [RendererAPI]; [DefaultPasses] clears, draws the layers through the
// primary camera and composites the lights. Work queued from the update
// side with [RenderThread.Execute] runs at the start of the next frame.
//
// # Serialization
//
// [EncodeScene] and [DecodeScene] read and write scene documents. Each
// component type is described by a [ComponentDescriptor] registered with
// [RegisterComponentType]; asset links are stored by name and resolved
// through the scene's [AssetRegistry].
//
// [Ebitengine]: https://ebitengine.org
// [gween]: https://github.com/tanema/gween
package lumen
