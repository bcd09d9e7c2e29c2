package lumen

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// ErrAssetNotFound is returned when an asset file or name cannot be found.
var ErrAssetNotFound = errors.New("lumen: asset not found")

// AssetLoader decodes the bytes of one asset file. name is the registry name
// (the slash-separated path the asset was requested with).
type AssetLoader func(r *AssetRegistry, name string, data []byte) (any, error)

// replacer is implemented by asset values that can take a freshly loaded
// value in place, so pointers held elsewhere stay valid across Reload.
type replacer interface {
	replaceWith(v any) error
}

type assetEntry struct {
	name  string
	value any
	refs  int
	file  bool
}

// AssetRef identifies a loaded asset.
type AssetRef struct {
	Name  string
	Value any
}

// AssetRegistry loads assets from disk by extension and hands out weak,
// generation-checked handles to them. It is a process-scoped service: create
// one per Engine and pass it to scenes.
type AssetRegistry struct {
	logger *zap.Logger
	roots  []string
	render *RenderThread

	loaders []loaderEntry
	entries ResourceTable[*assetEntry]
	names   map[string]Handle

	// AutoRelease unloads an asset when Release drops its count to zero.
	AutoRelease bool

	reloaded Signal[string]
}

type loaderEntry struct {
	suffix string
	load   AssetLoader
}

// NewAssetRegistry creates a registry reading from the given root
// directories, with the built-in loaders installed.
func NewAssetRegistry(logger *zap.Logger, roots ...string) *AssetRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &AssetRegistry{
		logger: logger.Named("assets"),
		roots:  roots,
		names:  make(map[string]Handle),
	}
	r.RegisterLoader(".png", loadPNG)
	r.RegisterLoader(".atlas.json", loadAtlasAsset)
	r.RegisterLoader(".ttf", loadFontAsset)
	r.RegisterLoader(".otf", loadFontAsset)
	r.RegisterLoader(".prefab.yaml", loadPrefabAsset)
	r.RegisterLoader(".prefab.yml", loadPrefabAsset)
	r.RegisterLoader(".scene.json", loadSceneDocumentAsset)
	return r
}

// SetRenderThread routes GPU releases through rt.
func (r *AssetRegistry) SetRenderThread(rt *RenderThread) { r.render = rt }

// Roots returns the directories assets are read from.
func (r *AssetRegistry) Roots() []string { return r.roots }

// RegisterLoader installs a loader for files ending in suffix. Longer
// suffixes win, so ".atlas.json" beats ".json".
func (r *AssetRegistry) RegisterLoader(suffix string, load AssetLoader) {
	suffix = strings.ToLower(suffix)
	for i := range r.loaders {
		if r.loaders[i].suffix == suffix {
			r.loaders[i].load = load
			return
		}
	}
	r.loaders = append(r.loaders, loaderEntry{suffix: suffix, load: load})
	sort.SliceStable(r.loaders, func(i, j int) bool {
		return len(r.loaders[i].suffix) > len(r.loaders[j].suffix)
	})
}

func (r *AssetRegistry) loaderFor(name string) (AssetLoader, bool) {
	lower := strings.ToLower(name)
	for _, l := range r.loaders {
		if strings.HasSuffix(lower, l.suffix) {
			return l.load, true
		}
	}
	return nil, false
}

// resolve finds the file for name under the roots.
func (r *AssetRegistry) resolve(name string) (string, error) {
	if len(r.roots) == 0 {
		if _, err := os.Stat(name); err != nil {
			return "", fmt.Errorf("%w: %s", ErrAssetNotFound, name)
		}
		return name, nil
	}
	for _, root := range r.roots {
		p := filepath.Join(root, filepath.FromSlash(name))
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrAssetNotFound, name)
}

// NameForFile maps an absolute or root-relative file path back to its
// registry name, if it lies under one of the roots.
func (r *AssetRegistry) NameForFile(file string) (string, bool) {
	for _, root := range r.roots {
		rel, err := filepath.Rel(root, file)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		return filepath.ToSlash(rel), true
	}
	return "", false
}

func (r *AssetRegistry) read(name string) ([]byte, error) {
	p, err := r.resolve(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, name)
		}
		return nil, fmt.Errorf("lumen: read asset %s: %w", name, err)
	}
	return data, nil
}

func (r *AssetRegistry) decode(name string) (any, error) {
	load, ok := r.loaderFor(name)
	if !ok {
		return nil, fmt.Errorf("lumen: no loader for asset %s", name)
	}
	data, err := r.read(name)
	if err != nil {
		return nil, err
	}
	v, err := load(r, name, data)
	if err != nil {
		return nil, fmt.Errorf("lumen: load asset %s: %w", name, err)
	}
	return v, nil
}

// Load reads and decodes the asset at name, picking the loader by extension.
// Loading an already-loaded name returns the existing value.
func (r *AssetRegistry) Load(name string) (AssetRef, error) {
	name = path.Clean(filepath.ToSlash(name))
	if h, ok := r.names[name]; ok {
		e, _ := r.entries.Get(h)
		return AssetRef{Name: name, Value: e.value}, nil
	}
	v, err := r.decode(name)
	if err != nil {
		return AssetRef{}, err
	}
	r.put(name, v, true)
	r.logger.Debug("asset loaded", zap.String("name", name), zap.String("type", fmt.Sprintf("%T", v)))
	return AssetRef{Name: name, Value: v}, nil
}

// Register stores value under name, replacing any previous value in place.
func (r *AssetRegistry) Register(name string, value any) AssetRef {
	r.put(name, value, false)
	return AssetRef{Name: name, Value: value}
}

func (r *AssetRegistry) put(name string, value any, file bool) {
	if h, ok := r.names[name]; ok {
		e, _ := r.entries.Get(h)
		e.value = value
		e.file = file
		return
	}
	r.names[name] = r.entries.Alloc(&assetEntry{name: name, value: value, file: file})
}

func (r *AssetRegistry) entry(name string) (*assetEntry, Handle, bool) {
	h, ok := r.names[name]
	if !ok {
		return nil, Handle{}, false
	}
	e, err := r.entries.Get(h)
	if err != nil {
		return nil, Handle{}, false
	}
	return e, h, true
}

// Reload re-reads a loaded asset from disk and swaps the new value in place.
// Handles stay valid.
func (r *AssetRegistry) Reload(name string) error {
	e, _, ok := r.entry(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAssetNotFound, name)
	}
	v, err := r.decode(name)
	if err != nil {
		return err
	}
	if rp, ok := e.value.(replacer); ok {
		if err := rp.replaceWith(v); err != nil {
			return fmt.Errorf("lumen: reload asset %s: %w", name, err)
		}
	} else {
		e.value = v
	}
	r.logger.Info("asset reloaded", zap.String("name", name))
	r.reloaded.Emit(name)
	return nil
}

// OnReloaded fires with the asset name after a successful Reload.
func (r *AssetRegistry) OnReloaded() *Signal[string] { return &r.reloaded }

// Unload frees the asset. Handles to it go stale.
func (r *AssetRegistry) Unload(name string) bool {
	e, h, ok := r.entry(name)
	if !ok {
		return false
	}
	_, _ = r.entries.Free(h)
	delete(r.names, name)
	if tex, ok := e.value.(*Texture); ok && tex.page == nil {
		r.onRenderThread(tex.ReleaseGPU)
	}
	r.logger.Debug("asset unloaded", zap.String("name", name))
	return true
}

func (r *AssetRegistry) onRenderThread(fn func()) {
	if r.render != nil {
		r.render.Execute(fn)
		return
	}
	fn()
}

// Retain increments the asset's reference count.
func (r *AssetRegistry) Retain(name string) bool {
	e, _, ok := r.entry(name)
	if !ok {
		return false
	}
	e.refs++
	return true
}

// Release decrements the reference count. With AutoRelease the asset is
// unloaded at zero.
func (r *AssetRegistry) Release(name string) {
	e, _, ok := r.entry(name)
	if !ok || e.refs == 0 {
		return
	}
	e.refs--
	if e.refs == 0 && r.AutoRelease {
		r.Unload(name)
	}
}

// RefCount returns the asset's reference count.
func (r *AssetRegistry) RefCount(name string) int {
	e, _, ok := r.entry(name)
	if !ok {
		return 0
	}
	return e.refs
}

// Names returns the registered names, sorted.
func (r *AssetRegistry) Names() []string {
	out := make([]string, 0, len(r.names))
	for n := range r.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Loaded reports whether name was loaded from a file (as opposed to
// registered in memory).
func (r *AssetRegistry) Loaded(name string) bool {
	e, _, ok := r.entry(name)
	return ok && e.file
}

// GetNamed returns the asset registered under name if it has type T.
func GetNamed[T any](r *AssetRegistry, name string) (T, bool) {
	var zero T
	e, _, ok := r.entry(name)
	if !ok {
		return zero, false
	}
	v, ok := e.value.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// HandleOf returns a weak handle to the asset registered under name. If the
// name is not registered the handle is unresolved: Get fails, but Name is
// kept so the link survives serialization.
func HandleOf[T any](r *AssetRegistry, name string) AssetHandle[T] {
	h := AssetHandle[T]{reg: r, name: name}
	if r != nil {
		if slot, ok := r.names[name]; ok {
			h.slot = slot
		}
	}
	return h
}

// AssetValue returns a handle holding v directly, outside any registry.
func AssetValue[T any](name string, v T) AssetHandle[T] {
	return AssetHandle[T]{name: name, value: v, direct: true}
}

// AssetHandle is a weak reference to a registry asset. Unloading the asset
// makes Get fail instead of returning a dangling value.
type AssetHandle[T any] struct {
	reg    *AssetRegistry
	name   string
	slot   Handle
	value  T
	direct bool
}

// Name returns the asset name the handle links to.
func (h AssetHandle[T]) Name() string { return h.name }

// IsZero reports whether the handle links to nothing.
func (h AssetHandle[T]) IsZero() bool { return h.name == "" && !h.direct }

// Get returns the asset if it is still registered with type T.
func (h AssetHandle[T]) Get() (T, bool) {
	if h.direct {
		return h.value, true
	}
	var zero T
	if h.reg == nil {
		return zero, false
	}
	e, err := h.reg.entries.Get(h.slot)
	if err != nil {
		return zero, false
	}
	v, ok := e.value.(T)
	return v, ok
}

// Valid reports whether Get would succeed.
func (h AssetHandle[T]) Valid() bool {
	_, ok := h.Get()
	return ok
}

// --- Built-in loaders ---

func loadPNG(_ *AssetRegistry, name string, data []byte) (any, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return NewTexture(name, img), nil
}

// replaceWith keeps the texture pointer and swaps in the new image.
func (t *Texture) replaceWith(v any) error {
	nt, ok := v.(*Texture)
	if !ok {
		return fmt.Errorf("cannot replace texture with %T", v)
	}
	t.Replace(nt.Image())
	return nil
}
