package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/IvanBrykalov/imageloader/cache"
	"github.com/IvanBrykalov/imageloader/generator"
	"github.com/IvanBrykalov/imageloader/loader"
)

// fileTarget is a "view" that renders by writing PNGs into a directory.
// It reports display transitions to the cache so on-screen entries are never
// recycled.
type fileTarget struct {
	name  string
	out   string
	cache cache.Cache
	log   *zap.Logger

	mu      sync.Mutex
	current *loader.Task
	shown   *cache.Entry
	frames  int
}

func newFileTarget(name, out string, c cache.Cache, log *zap.Logger) *fileTarget {
	return &fileTarget{name: name, out: out, cache: c, log: log.With(zap.String("view", name))}
}

func (f *fileTarget) Bind(_ context.Context, e *cache.Entry, animated bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Rebinding the shown entry is not a display transition.
	if e != nil && e == f.shown {
		return nil
	}
	if prev := f.shown; prev != nil {
		f.cache.OnEntryHidden(prev.Key())
	}
	f.shown = e
	if e == nil {
		return nil
	}
	f.cache.OnEntryDisplayed(e.Key())
	f.frames++

	placeholder := f.current != nil && f.current.IsLoadingPlaceholder(e)
	f.log.Info("bound image",
		zap.String("key", e.Key()),
		zap.Int("width", e.Info.Width),
		zap.Int("height", e.Info.Height),
		zap.Bool("animated", animated),
		zap.Bool("placeholder", placeholder),
	)
	if f.out == "" || placeholder {
		return nil
	}
	bm, ok := e.Buffer.(*generator.Bitmap)
	if !ok || !bm.Valid() {
		return nil
	}
	dst := filepath.Join(f.out, fmt.Sprintf("%s-%d.png", sanitize(f.name), f.frames))
	if err := imaging.Save(bm.Image(), dst); err != nil {
		return fmt.Errorf("failed to save %s: %w", dst, err)
	}
	return nil
}

// Hide takes the view off screen.
func (f *fileTarget) Hide() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.shown != nil {
		f.cache.OnEntryHidden(f.shown.Key())
		f.shown = nil
	}
}

func (f *fileTarget) IsTaskCurrent(t *loader.Task) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current == t
}

func (f *fileTarget) SetCurrentTask(t *loader.Task) {
	f.mu.Lock()
	f.current = t
	f.mu.Unlock()
}

func (f *fileTarget) UsesSameNativeHandle(t *loader.Task) bool {
	o, ok := t.Target().(*fileTarget)
	return ok && o.name == f.name
}

func sanitize(s string) string {
	return strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_").Replace(s)
}
