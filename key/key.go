// Package key derives deterministic memory-cache keys from image request
// parameters.
//
// A key is made of three segments:
//
//	identity [ ";" W "x" H ] [ ";" t1 ";" t2 ... ]
//
// The identity is the custom key, a per-process stream token, the request
// path or, as a last resort, a random identifier. Two requests with the same
// identity, downsample size and transformation chain always map to the same
// key; changing any of them changes the key. Transformation order is part of
// the key because it changes the rendered output.
package key

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// Source identifies where the request bytes come from.
type Source int

const (
	// SourcePath: a file path, URL or other resolvable identifier.
	SourcePath Source = iota
	// SourceStream: caller-supplied byte stream; has no stable identity.
	SourceStream
	// SourceCustom: bytes produced by a caller-supplied resolver.
	SourceCustom
)

func (s Source) String() string {
	switch s {
	case SourceStream:
		return "stream"
	case SourceCustom:
		return "custom"
	default:
		return "path"
	}
}

// CacheType is the caller's cache-tier preference.
type CacheType int

const (
	// CacheAll uses both memory and disk tiers.
	CacheAll CacheType = iota
	// CacheMemory uses only the memory tier.
	CacheMemory
	// CacheDisk uses only the disk tier; results are never memory-cached.
	CacheDisk
)

// SizeHint is the logical render size of a vector source.
type SizeHint struct {
	Width  int
	Height int
	DIP    bool
}

func (h SizeHint) suffix() string {
	return fmt.Sprintf(";(size=%dx%d,dip=%t)", h.Width, h.Height, h.DIP)
}

// Placeholder describes a loading or error placeholder for key purposes.
type Placeholder struct {
	Path   string
	Vector *SizeHint // non-nil when the placeholder's resolver renders vectors
}

// Request holds the parameters that take part in key derivation.
type Request struct {
	Source    Source
	Path      string
	CustomKey string
	CacheType CacheType

	// Vector is the main resolver's size hint, if it renders vectors.
	Vector *SizeHint

	DownsampleWidth  int
	DownsampleHeight int
	DownsampleDIP    bool

	// Transformations are the ordered transformation identifiers.
	Transformations []string

	Loading Placeholder
	Error   Placeholder

	// TransformPlaceholders overrides Builder.TransformPlaceholders when set.
	TransformPlaceholders *bool
}

// Keys is the full set of keys derived for one request.
type Keys struct {
	Key                    string
	WithoutTransformations string
	Raw                    string
	DownsampleOnly         string
	TransformationsOnly    string
	LoadingPlaceholder     string
	ErrorPlaceholder       string

	// CanUseMemoryCache reports whether the result may be memory-cached.
	CanUseMemoryCache bool
}

// Builder derives Keys. The zero value is usable: DIP sizes are taken as
// pixels and placeholders are not transformed.
type Builder struct {
	// DPIToPixels converts a DIP size to pixels. Nil => identity.
	DPIToPixels func(int) int
	// TransformPlaceholders is the global default for placeholder transformation.
	TransformPlaceholders bool
}

// streamIndex is never reset; it only has to be unique within the process.
var streamIndex atomic.Uint64

func nextStreamToken() string {
	return "Stream_" + strconv.FormatUint(streamIndex.Add(1), 10)
}

// Build derives all keys for r.
func (b Builder) Build(r Request) Keys {
	k := Keys{CanUseMemoryCache: true}

	raw := r.Path
	if r.Source == SourceStream {
		k.CanUseMemoryCache = false
		raw = nextStreamToken()
	}
	if strings.TrimSpace(r.CustomKey) != "" {
		k.CanUseMemoryCache = true
		raw = r.CustomKey
	}
	if r.CacheType == CacheDisk {
		k.CanUseMemoryCache = false
	}
	if strings.TrimSpace(raw) == "" {
		raw = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	if r.Vector != nil {
		raw += r.Vector.suffix()
	}
	k.Raw = raw

	k.DownsampleOnly = b.downsample(r)
	k.TransformationsOnly = Transformations(r.Transformations)

	k.Key = k.Raw + k.DownsampleOnly + k.TransformationsOnly
	k.WithoutTransformations = k.Raw + k.DownsampleOnly

	transform := b.TransformPlaceholders
	if r.TransformPlaceholders != nil {
		transform = *r.TransformPlaceholders
	}
	k.LoadingPlaceholder = k.placeholder(r.Loading, transform)
	k.ErrorPlaceholder = k.placeholder(r.Error, transform)
	return k
}

func (b Builder) downsample(r Request) string {
	if r.DownsampleWidth <= 0 && r.DownsampleHeight <= 0 {
		return ""
	}
	w, h := r.DownsampleWidth, r.DownsampleHeight
	if r.DownsampleDIP && b.DPIToPixels != nil {
		w, h = b.DPIToPixels(w), b.DPIToPixels(h)
	}
	return ";" + strconv.Itoa(w) + "x" + strconv.Itoa(h)
}

func (k Keys) placeholder(p Placeholder, transform bool) string {
	if strings.TrimSpace(p.Path) == "" {
		return ""
	}
	s := p.Path + k.DownsampleOnly
	if transform {
		s += k.TransformationsOnly
	}
	if p.Vector != nil {
		s += p.Vector.suffix()
	}
	return s
}

// Transformations formats an ordered transformation chain as a key segment.
// It returns "" for an empty chain.
func Transformations(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return ";" + strings.Join(ids, ";")
}
