// Package assets watches the asset directories for edits and decodes the
// image files textures are made from.
package assets

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/magma/engine/core"
)

type AssetType int

const (
	AssetTypeNone AssetType = iota
	AssetTypeShader
	AssetTypePipeline
	AssetTypeTexture
	AssetTypeFont
)

var assetTypeNames = [...]string{"none", "shader", "pipeline", "texture", "font"}

func (t AssetType) String() string {
	if t >= 0 && int(t) < len(assetTypeNames) {
		return assetTypeNames[t]
	}
	return "unknown"
}

func determineAssetType(path string) AssetType {
	if strings.HasPrefix(filepath.Base(path), ".") {
		// editor swap and lock files
		return AssetTypeNone
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".vert", ".frag", ".glsl", ".wgsl", ".spv":
		return AssetTypeShader
	case ".toml", ".yaml", ".yml", ".json":
		return AssetTypePipeline
	case ".png", ".jpg", ".jpeg", ".bmp", ".tiff":
		return AssetTypeTexture
	case ".fnt":
		return AssetTypeFont
	default:
		return AssetTypeNone
	}
}

// Change lists the asset files touched during one debounce window.
type Change struct {
	Paths []string
	types map[AssetType]bool
}

func (c *Change) add(path string, t AssetType) {
	if c.types == nil {
		c.types = make(map[AssetType]bool)
	}
	c.types[t] = true
	if !slices.Contains(c.Paths, path) {
		c.Paths = append(c.Paths, path)
	}
}

func (c Change) Empty() bool {
	return len(c.Paths) == 0
}

func (c Change) Has(t AssetType) bool {
	return c.types[t]
}

// NeedsRecompile reports whether pipelines have to be rebuilt for this change.
func (c Change) NeedsRecompile() bool {
	return c.Has(AssetTypeShader) || c.Has(AssetTypePipeline)
}

/**
 * @brief Watches directories recursively and reports debounced changes. It never
 * touches GPU objects; the render thread polls Changes and reloads itself.
 */
type Watcher struct {
	debounce time.Duration

	mutex    sync.Mutex
	fsnotify *fsnotify.Watcher
	isClosed bool

	changes chan Change
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
}

func NewWatcher(debounce time.Duration) (*Watcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		debounce: debounce,
		fsnotify: fsWatch,
		changes:  make(chan Change, 1),
		errors:   make(chan error, 8),
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.start()
	return w, nil
}

// Watch starts watching the named directories and all their sub-directories.
func (w *Watcher) Watch(dirs ...string) error {
	for _, dir := range dirs {
		if err := w.watchRecursive(dir); err != nil {
			return err
		}
		core.LogDebug("watching %s for changes", dir)
	}
	return nil
}

// Changes delivers one Change per quiet period. Poll it without blocking.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Poll returns the pending change, if any, without blocking.
func (w *Watcher) Poll() (Change, bool) {
	select {
	case c := <-w.changes:
		return c, true
	default:
		return Change{}, false
	}
}

func (w *Watcher) Close() error {
	w.mutex.Lock()
	if w.isClosed {
		w.mutex.Unlock()
		return nil
	}
	w.isClosed = true
	w.mutex.Unlock()

	close(w.done)
	w.wg.Wait()
	return w.fsnotify.Close()
}

func (w *Watcher) start() {
	defer w.wg.Done()

	var pending Change
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	var fire <-chan time.Time

	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			if e.Op&fsnotify.Create != 0 {
				if s, err := os.Stat(e.Name); err == nil && s.IsDir() {
					if err := w.watchRecursive(e.Name); err != nil {
						core.LogWarn("failed to watch %s: %s", e.Name, err)
					}
					continue
				}
			}
			if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			t := determineAssetType(e.Name)
			if t == AssetTypeNone {
				continue
			}
			pending.add(e.Name, t)
			timer.Reset(w.debounce)
			fire = timer.C

		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("%s", err)
			select {
			case w.errors <- err:
			default:
			}

		case <-fire:
			select {
			case w.changes <- pending:
				pending = Change{}
				fire = nil
			default:
				// the previous change has not been consumed yet
				timer.Reset(w.debounce)
			}

		case <-w.done:
			timer.Stop()
			return
		}
	}
}

// watchRecursive adds path and every directory under it to the watch list.
// Files created before the watch is added are not reported.
func (w *Watcher) watchRecursive(path string) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.isClosed {
		return errors.New("watcher already closed")
	}
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return w.fsnotify.Add(walkPath)
		}
		return nil
	})
}
