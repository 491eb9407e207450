// Package resolver provides reference resolvers that turn a request path into
// a byte stream for the loader pipeline.
package resolver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/IvanBrykalov/imageloader/cache"
	"github.com/IvanBrykalov/imageloader/key"
	"github.com/IvanBrykalov/imageloader/loader"
)

var (
	// ErrNoStream is returned when a stream request carries no opener.
	ErrNoStream = errors.New("resolver: request has no stream")
	// ErrNoResolver is returned for custom sources without a resolver.
	ErrNoResolver = errors.New("resolver: no resolver for source")
)

// File resolves local file paths, relative to Root when set.
type File struct {
	Root string
}

var _ loader.Resolver = File{}

func (f File) Resolve(ctx context.Context, path string, _ *loader.Params) (*loader.Resolved, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full := path
	if f.Root != "" && !filepath.IsAbs(path) {
		full = filepath.Join(f.Root, path)
	}

	fh, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	st, err := fh.Stat()
	if err != nil {
		_ = fh.Close()
		return nil, fmt.Errorf("failed to stat image: %w", err)
	}

	return &loader.Resolved{
		Data:   fh,
		Result: loader.ResultLocalFile,
		Info: cache.ImageInfo{
			Path:        path,
			Format:      formatFromExt(path),
			SourceBytes: st.Size(),
		},
	}, nil
}

// Stream resolves requests whose bytes come from Params.Stream.
type Stream struct{}

var _ loader.Resolver = Stream{}

func (Stream) Resolve(ctx context.Context, path string, p *loader.Params) (*loader.Resolved, error) {
	if p == nil || p.Stream == nil {
		return nil, ErrNoStream
	}
	rc, err := p.Stream(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	return &loader.Resolved{
		Data:   rc,
		Result: loader.ResultStream,
		Info:   cache.ImageInfo{Path: path},
	}, nil
}

// Func adapts a function to a Resolver.
type Func func(ctx context.Context, path string, p *loader.Params) (*loader.Resolved, error)

func (fn Func) Resolve(ctx context.Context, path string, p *loader.Params) (*loader.Resolved, error) {
	return fn(ctx, path, p)
}

// Vector wraps a resolver of vector sources. The render size becomes part of
// the cache key, so the same source at two sizes is cached twice.
type Vector struct {
	loader.Resolver
	Width  int
	Height int
	DIP    bool
}

var _ loader.SizeHinter = Vector{}

// SizeHint reports the logical render size.
func (v Vector) SizeHint() key.SizeHint {
	return key.SizeHint{Width: v.Width, Height: v.Height, DIP: v.DIP}
}

// Factory picks a default resolver by source kind.
type Factory struct {
	File   File
	Stream Stream
	// Custom serves SourceCustom requests that carry no resolver of their own.
	Custom loader.Resolver
}

var _ loader.ResolverFactory = Factory{}

func (f Factory) Resolver(path string, src loader.Source, _ *loader.Params) (loader.Resolver, error) {
	switch src {
	case loader.SourcePath:
		return f.File, nil
	case loader.SourceStream:
		return f.Stream, nil
	case loader.SourceCustom:
		if f.Custom != nil {
			return f.Custom, nil
		}
	}
	return nil, fmt.Errorf("%w %s (%q)", ErrNoResolver, src, path)
}

// Bytes returns a Func serving a fixed payload; handy for embedded
// placeholders.
func Bytes(data []byte, result loader.Result) Func {
	return func(ctx context.Context, path string, _ *loader.Params) (*loader.Resolved, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &loader.Resolved{
			Data:   io.NopCloser(bytes.NewReader(data)),
			Result: result,
			Info:   cache.ImageInfo{Path: path, SourceBytes: int64(len(data))},
		}, nil
	}
}

func formatFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "png"
	case ".jpg", ".jpeg":
		return "jpeg"
	case ".gif":
		return "gif"
	case ".bmp":
		return "bmp"
	case ".tif", ".tiff":
		return "tiff"
	default:
		return "unknown"
	}
}
