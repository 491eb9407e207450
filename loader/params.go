package loader

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"

	"github.com/IvanBrykalov/imageloader/cache"
	"github.com/IvanBrykalov/imageloader/key"
)

// Source kinds, shared with the key builder.
type Source = key.Source

const (
	SourcePath   = key.SourcePath
	SourceStream = key.SourceStream
	SourceCustom = key.SourceCustom
)

// CacheType is the cache-tier preference of a request.
type CacheType = key.CacheType

const (
	CacheAll    = key.CacheAll
	CacheMemory = key.CacheMemory
	CacheDisk   = key.CacheDisk
)

// Transformation is a named image transformation. Key must identify the
// transformation and its parameters; it becomes part of the cache key.
type Transformation interface {
	Key() string
	Transform(img image.Image) image.Image
}

// Downsample requests a maximum decoded size. Zero or negative sides are
// unconstrained.
type Downsample struct {
	Width  int
	Height int
	// DIP marks the sizes as density-independent units.
	DIP bool
}

// Placeholder configures a loading or error placeholder.
type Placeholder struct {
	Path   string
	Source Source
	// Resolver overrides the default resolver for this placeholder.
	Resolver Resolver
}

// Params describes one load request. It must not be modified after it is
// handed to a Task; the Task owns it until it finishes.
type Params struct {
	Source Source
	Path   string
	// Stream opens the request bytes when Source is SourceStream.
	Stream func(ctx context.Context) (io.ReadCloser, error)

	CustomKey string
	CacheType CacheType

	Downsample      Downsample
	Transformations []Transformation

	Loading Placeholder
	Error   Placeholder

	// Optional per-request overrides of Config defaults.
	FadeAnimation          *bool
	FadeAnimationForCached *bool
	TransformPlaceholders  *bool

	// Preload warms caches without binding to a target.
	Preload bool

	// Resolver overrides the default resolver for the main image.
	Resolver Resolver

	OnSuccess func(info cache.ImageInfo, result Result)
	OnError   func(err error)
	OnFinish  func(t *Task)

	mu      sync.Mutex
	closers []io.Closer
	closed  bool
}

// Bool returns a pointer to v, for the optional override fields.
func Bool(v bool) *bool { return &v }

// Own hands c to the request; it is closed by Close. Owning after Close
// closes c immediately.
func (p *Params) Own(c io.Closer) {
	if c == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = c.Close()
		return
	}
	p.closers = append(p.closers, c)
	p.mu.Unlock()
}

// Close releases every owned resource. It is idempotent.
func (p *Params) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	cs := p.closers
	p.closers = nil
	p.mu.Unlock()

	var errs []error
	for _, c := range cs {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Params) transformationKeys() []string {
	if len(p.Transformations) == 0 {
		return nil
	}
	ids := make([]string, len(p.Transformations))
	for i, tr := range p.Transformations {
		ids[i] = tr.Key()
	}
	return ids
}

func (p *Params) keyRequest() key.Request {
	return key.Request{
		Source:                p.Source,
		Path:                  p.Path,
		CustomKey:             p.CustomKey,
		CacheType:             p.CacheType,
		Vector:                sizeHint(p.Resolver),
		DownsampleWidth:       p.Downsample.Width,
		DownsampleHeight:      p.Downsample.Height,
		DownsampleDIP:         p.Downsample.DIP,
		Transformations:       p.transformationKeys(),
		Loading:               key.Placeholder{Path: p.Loading.Path, Vector: sizeHint(p.Loading.Resolver)},
		Error:                 key.Placeholder{Path: p.Error.Path, Vector: sizeHint(p.Error.Resolver)},
		TransformPlaceholders: p.TransformPlaceholders,
	}
}

func sizeHint(r Resolver) *key.SizeHint {
	if sh, ok := r.(SizeHinter); ok {
		h := sh.SizeHint()
		return &h
	}
	return nil
}
