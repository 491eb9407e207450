package cache

// PixelFormat is the in-memory layout of a buffer.
type PixelFormat int

const (
	// FormatARGB8888: 4 bytes per pixel (default).
	FormatARGB8888 PixelFormat = iota
	// FormatRGB565: 2 bytes per pixel.
	FormatRGB565
	// FormatARGB4444: 2 bytes per pixel.
	FormatARGB4444
	// FormatAlpha8: 1 byte per pixel.
	FormatAlpha8
)

// BytesPerPixel returns the per-pixel footprint of f.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatARGB8888:
		return 4
	case FormatRGB565, FormatARGB4444:
		return 2
	default:
		return 1
	}
}

func (f PixelFormat) String() string {
	switch f {
	case FormatRGB565:
		return "rgb565"
	case FormatARGB4444:
		return "argb4444"
	case FormatAlpha8:
		return "alpha8"
	default:
		return "argb8888"
	}
}

// ReuseRequest describes the allocation a decoder is about to make.
type ReuseRequest struct {
	Width  int
	Height int
	// SampleSize is the decoder's sub-sampling factor; values < 1 mean 1.
	SampleSize int
	Format     PixelFormat
}

func (r ReuseRequest) sample() int {
	if r.SampleSize < 1 {
		return 1
	}
	return r.SampleSize
}

// Footprint is the number of bytes the requested image will occupy.
func (r ReuseRequest) Footprint() int64 {
	s := r.sample()
	return int64(r.Width/s) * int64(r.Height/s) * int64(r.Format.BytesPerPixel())
}

// ReusePredicate decides whether candidate can hold the requested image.
// Validity, mutability and retention are checked by the cache beforehand.
type ReusePredicate func(candidate Buffer, req ReuseRequest) bool

// FlexibleReuse accepts any candidate whose allocation is large enough for
// the requested footprint.
func FlexibleReuse(candidate Buffer, req ReuseRequest) bool {
	return req.Footprint() <= candidate.AllocationByteCount()
}

// ExactReuse accepts only candidates with identical dimensions when no
// sub-sampling is requested.
func ExactReuse(candidate Buffer, req ReuseRequest) bool {
	return candidate.Width() == req.Width &&
		candidate.Height() == req.Height &&
		req.sample() == 1
}

var (
	_ ReusePredicate = FlexibleReuse
	_ ReusePredicate = ExactReuse
)
