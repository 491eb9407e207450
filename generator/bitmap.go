package generator

import (
	"image"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/IvanBrykalov/imageloader/cache"
)

// Bitmap is an NRGBA-backed cache.Buffer. Its pixel slice may be shrunk in
// place for a smaller image, which is what makes a pooled Bitmap reusable:
// ByteCount is the current image, AllocationByteCount the capacity.
type Bitmap struct {
	mu       sync.RWMutex
	img      *image.NRGBA
	recycled bool
}

var _ cache.Buffer = (*Bitmap)(nil)

// NewBitmap allocates a w×h bitmap.
func NewBitmap(w, h int) *Bitmap {
	return &Bitmap{img: image.NewNRGBA(image.Rect(0, 0, w, h))}
}

// FromImage copies img into a new bitmap.
func FromImage(img image.Image) *Bitmap {
	return &Bitmap{img: imaging.Clone(img)}
}

// Image returns the backing image. It is nil after Recycle.
func (b *Bitmap) Image() *image.NRGBA {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.img
}

// Reconfigure resizes the bitmap in place to w×h, reusing the allocation.
// It reports false when the allocation is too small or the bitmap was recycled.
func (b *Bitmap) Reconfigure(w, h int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.recycled || w <= 0 || h <= 0 {
		return false
	}
	n := w * h * 4
	if n > cap(b.img.Pix) {
		return false
	}
	b.img = &image.NRGBA{Pix: b.img.Pix[:n], Stride: w * 4, Rect: image.Rect(0, 0, w, h)}
	return true
}

// Recycle drops the pixel storage. The bitmap is invalid afterwards.
func (b *Bitmap) Recycle() {
	b.mu.Lock()
	b.recycled = true
	b.img = nil
	b.mu.Unlock()
}

func (b *Bitmap) Valid() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.recycled
}

func (b *Bitmap) Mutable() bool { return b.Valid() }

func (b *Bitmap) Width() int { return b.bounds().Dx() }

func (b *Bitmap) Height() int { return b.bounds().Dy() }

func (b *Bitmap) Format() cache.PixelFormat { return cache.FormatARGB8888 }

func (b *Bitmap) ByteCount() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.img == nil {
		return 0
	}
	return int64(len(b.img.Pix))
}

func (b *Bitmap) AllocationByteCount() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.img == nil {
		return 0
	}
	return int64(cap(b.img.Pix))
}

func (b *Bitmap) bounds() image.Rectangle {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.img == nil {
		return image.Rectangle{}
	}
	return b.img.Rect
}
