package lumen

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// watchDebounce is how long a file must stay quiet before it is reloaded.
const watchDebounce = 100 * time.Millisecond

// AssetWatcher reloads loaded assets when their files change. Reloads run on
// the render thread so GPU copies are refreshed there.
type AssetWatcher struct {
	assets  *AssetRegistry
	render  *RenderThread
	logger  *zap.Logger
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer

	closeCh chan struct{}
	once    sync.Once
	done    chan struct{}
}

// NewAssetWatcher watches every root directory of assets, recursively.
func NewAssetWatcher(assets *AssetRegistry, render *RenderThread, logger *zap.Logger) (*AssetWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, root := range assets.Roots() {
		err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return fw.Add(p)
			}
			return nil
		})
		if err != nil {
			_ = fw.Close()
			return nil, err
		}
	}
	w := &AssetWatcher{
		assets:  assets,
		render:  render,
		logger:  logger.Named("watcher"),
		watcher: fw,
		pending: make(map[string]*time.Timer),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Close stops watching. Pending reloads are dropped.
func (w *AssetWatcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.closeCh)
		err = w.watcher.Close()
		<-w.done
		w.mu.Lock()
		for name, t := range w.pending {
			t.Stop()
			delete(w.pending, name)
		}
		w.mu.Unlock()
	})
	return err
}

func (w *AssetWatcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			name, ok := w.assets.NameForFile(event.Name)
			if !ok {
				continue
			}
			w.schedule(name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch error", zap.Error(err))
		case <-w.closeCh:
			return
		}
	}
}

// schedule (re)starts the debounce timer for name.
func (w *AssetWatcher) schedule(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[name]; ok {
		t.Reset(watchDebounce)
		return
	}
	w.pending[name] = time.AfterFunc(watchDebounce, func() {
		w.mu.Lock()
		delete(w.pending, name)
		w.mu.Unlock()
		w.render.Execute(func() { w.reload(name) })
	})
}

// reload runs on the render thread. Files that were never loaded are
// ignored.
func (w *AssetWatcher) reload(name string) {
	if !w.assets.Loaded(name) {
		return
	}
	if err := w.assets.Reload(name); err != nil {
		w.logger.Error("asset reload failed", zap.String("asset", name), zap.Error(err))
	}
}
