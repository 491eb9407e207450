// Package generator is the reference decode/transform step of the loader
// pipeline. It decodes with disintegration/imaging, downsamples with
// imaging.Fit, applies the request's transformation chain and writes the
// result into a Bitmap, preferring a buffer checked out from the memory
// cache's reuse pool over a fresh allocation.
package generator

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/IvanBrykalov/imageloader/cache"
	"github.com/IvanBrykalov/imageloader/loader"
)

// DefaultMaxPixels bounds a single decode (64 megapixels, 256 MiB as NRGBA).
const DefaultMaxPixels = 64 << 20

// Options configures a Generator.
type Options struct {
	// Cache, when set, is asked for a reusable buffer before allocating.
	Cache cache.Cache

	// MaxPixels rejects larger images with loader.ErrResourceExhausted.
	// <=0 => DefaultMaxPixels.
	MaxPixels int

	// AutoOrient applies EXIF orientation on decode.
	AutoOrient bool

	Logger *zap.Logger
}

// Generator implements loader.Generator.
type Generator struct {
	opt Options
	log *zap.Logger
}

var _ loader.Generator = (*Generator)(nil)

// New constructs a Generator.
func New(opt Options) *Generator {
	if opt.MaxPixels <= 0 {
		opt.MaxPixels = DefaultMaxPixels
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	return &Generator{opt: opt, log: opt.Logger.Named("generator")}
}

func (g *Generator) Generate(ctx context.Context, req loader.GenerateRequest) (cache.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Data == nil {
		return nil, nil
	}

	img, err := imaging.Decode(req.Data, imaging.AutoOrientation(g.opt.AutoOrient))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	b := img.Bounds()
	if req.Info != nil {
		req.Info.OriginalWidth, req.Info.OriginalHeight = b.Dx(), b.Dy()
	}
	if b.Dx()*b.Dy() > g.opt.MaxPixels {
		return nil, fmt.Errorf("%dx%d exceeds %d pixels: %w", b.Dx(), b.Dy(), g.opt.MaxPixels, loader.ErrResourceExhausted)
	}

	img = downsample(img, req.Downsample)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, tr := range req.Transformations {
		img = tr.Transform(img)
		if img == nil {
			return nil, fmt.Errorf("transformation %q produced no image", tr.Key())
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bm := g.output(img)
	if req.Info != nil {
		req.Info.Width, req.Info.Height = bm.Width(), bm.Height()
	}
	return bm, nil
}

// output copies img into a pooled bitmap when one is available.
func (g *Generator) output(img image.Image) *Bitmap {
	b := img.Bounds()
	if g.opt.Cache != nil {
		req := cache.ReuseRequest{Width: b.Dx(), Height: b.Dy(), Format: cache.FormatARGB8888}
		if e, ok := g.opt.Cache.GetReusable(req); ok {
			defer e.Release()
			if bm, ok := e.Buffer.(*Bitmap); ok && bm.Reconfigure(b.Dx(), b.Dy()) {
				dst := bm.Image()
				draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
				g.log.Debug("decoded into reused buffer",
					zap.String("from", e.Key()),
					zap.Int64("bytes", bm.ByteCount()),
				)
				return bm
			}
		}
	}
	return FromImage(img)
}

// downsample shrinks img to fit the requested box. It never upscales.
func downsample(img image.Image, d loader.Downsample) image.Image {
	w, h := d.Width, d.Height
	b := img.Bounds()
	switch {
	case w <= 0 && h <= 0:
		return img
	case w > 0 && h > 0:
		if b.Dx() <= w && b.Dy() <= h {
			return img
		}
		return imaging.Fit(img, w, h, imaging.Lanczos)
	case w > 0:
		if b.Dx() <= w {
			return img
		}
		return imaging.Resize(img, w, 0, imaging.Lanczos)
	default:
		if b.Dy() <= h {
			return img
		}
		return imaging.Resize(img, 0, h, imaging.Lanczos)
	}
}
