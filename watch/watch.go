// Package watch invalidates cached assets when their backing files change.
//
// A Watcher observes an asset tree recursively. When a file is written,
// created, removed or renamed, the path relative to the root is mapped to a
// resource name and Invalidate is called on the bound loader, so the next
// request reloads the asset from disk. Pairs with loader.Loader for
// hot-reload during development.
package watch

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Invalidator is the loader-side surface the watcher needs.
// loader.Loader[V] satisfies it.
type Invalidator interface {
	Invalidate(name string) bool
}

// Options configures a Watcher.
type Options struct {
	// Root is the asset tree to watch, recursively. Required.
	Root string

	// Name maps a changed file (slash-separated path relative to Root) to
	// the resource name to invalidate. Nil means the relative path is the
	// name, which matches loaders that read Root + name from disk.
	Name func(rel string) string

	// Logger receives invalidation and watch-error records. Nil disables it.
	Logger *log.Logger
}

// Watcher owns an fsnotify watcher and the goroutine draining its events.
// Call Close to stop it.
type Watcher struct {
	inv    Invalidator
	opt    Options
	fw     *fsnotify.Watcher
	done   chan struct{}
	wg     sync.WaitGroup
	closed sync.Once
}

// New starts watching opt.Root (and all subdirectories) and invalidates
// resources on inv as their files change.
func New(inv Invalidator, opt Options) (*Watcher, error) {
	if opt.Root == "" {
		return nil, errors.New("watch: Root must be provided")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		inv:  inv,
		opt:  opt,
		fw:   fw,
		done: make(chan struct{}),
	}
	if err := w.addRecursive(opt.Root); err != nil {
		_ = fw.Close()
		return nil, err
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Close stops the watcher. Idempotent.
func (w *Watcher) Close() error {
	var err error
	w.closed.Do(func() {
		close(w.done)
		err = w.fw.Close()
		w.wg.Wait()
	})
	return err
}

// addRecursive registers root and every subdirectory with fsnotify.
// fsnotify watches are not recursive on their own.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			if w.opt.Logger != nil {
				w.opt.Logger.Error("watch error", "err", err)
			}
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	// New directories must join the watch set as they appear.
	// Add on a plain file is harmless.
	if ev.Op&fsnotify.Create != 0 {
		_ = w.fw.Add(ev.Name)
	}

	rel, ok := RelName(w.opt.Root, ev.Name)
	if !ok {
		return
	}
	name := rel
	if w.opt.Name != nil {
		name = w.opt.Name(rel)
	}
	if name == "" {
		return
	}
	if w.inv.Invalidate(name) && w.opt.Logger != nil {
		w.opt.Logger.Debug("asset invalidated", "name", name, "op", ev.Op.String())
	}
}

// RelName converts an absolute event path into a slash-separated path
// relative to root. ok is false for paths outside the root.
func RelName(root, path string) (rel string, ok bool) {
	r, err := filepath.Rel(root, path)
	if err != nil {
		return "", false
	}
	r = filepath.ToSlash(r)
	if r == "." || r == ".." || strings.HasPrefix(r, "../") {
		return "", false
	}
	return r, true
}
