package generator

import (
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/IvanBrykalov/imageloader/loader"
)

// Grayscale desaturates the image.
type Grayscale struct{}

func (Grayscale) Key() string                           { return "grayscale" }
func (Grayscale) Transform(img image.Image) image.Image { return imaging.Grayscale(img) }

// Blur applies a gaussian blur.
type Blur struct{ Sigma float64 }

func (b Blur) Key() string                           { return fmt.Sprintf("blur(sigma=%.2f)", b.Sigma) }
func (b Blur) Transform(img image.Image) image.Image { return imaging.Blur(img, b.Sigma) }

// FlipH mirrors the image horizontally.
type FlipH struct{}

func (FlipH) Key() string                           { return "flip_h" }
func (FlipH) Transform(img image.Image) image.Image { return imaging.FlipH(img) }

// Rotate90 rotates the image 90 degrees counter-clockwise.
type Rotate90 struct{}

func (Rotate90) Key() string                           { return "rotate90" }
func (Rotate90) Transform(img image.Image) image.Image { return imaging.Rotate90(img) }

// Invert negates every colour channel.
type Invert struct{}

func (Invert) Key() string                           { return "invert" }
func (Invert) Transform(img image.Image) image.Image { return effect.Invert(img) }

// Sepia applies a sepia tone.
type Sepia struct{}

func (Sepia) Key() string                           { return "sepia" }
func (Sepia) Transform(img image.Image) image.Image { return effect.Sepia(img) }

// Brightness shifts brightness by Change in [-1, 1].
type Brightness struct{ Change float64 }

func (b Brightness) Key() string { return fmt.Sprintf("brightness(%.2f)", b.Change) }
func (b Brightness) Transform(img image.Image) image.Image {
	return adjust.Brightness(img, b.Change)
}

// Tint blends every pixel towards a colour in Lab space.
type Tint struct {
	color  colorful.Color
	amount float64
}

// NewTint parses a #rrggbb colour. amount is clamped to [0, 1].
func NewTint(hex string, amount float64) (Tint, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return Tint{}, fmt.Errorf("invalid tint colour %q: %w", hex, err)
	}
	return Tint{color: c, amount: min(max(amount, 0), 1)}, nil
}

func (t Tint) Key() string { return fmt.Sprintf("tint(%s,%.2f)", t.color.Hex(), t.amount) }

func (t Tint) Transform(img image.Image) image.Image {
	dst := imaging.Clone(img)
	if t.amount == 0 {
		return dst
	}
	for i := 0; i+3 < len(dst.Pix); i += 4 {
		c := colorful.Color{
			R: float64(dst.Pix[i]) / 255,
			G: float64(dst.Pix[i+1]) / 255,
			B: float64(dst.Pix[i+2]) / 255,
		}
		dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2] = c.BlendLab(t.color, t.amount).Clamped().RGB255()
	}
	return dst
}

var (
	_ loader.Transformation = Grayscale{}
	_ loader.Transformation = Blur{}
	_ loader.Transformation = FlipH{}
	_ loader.Transformation = Rotate90{}
	_ loader.Transformation = Invert{}
	_ loader.Transformation = Sepia{}
	_ loader.Transformation = Brightness{}
	_ loader.Transformation = Tint{}
)

// Parse builds a transformation from its command-line form:
//
//	grayscale | flip_h | rotate90 | invert | sepia
//	blur:<sigma> | brightness:<change> | tint:<#rrggbb>[:<amount>]
func Parse(s string) (loader.Transformation, error) {
	name, arg, _ := strings.Cut(strings.TrimSpace(s), ":")
	switch strings.ToLower(name) {
	case "grayscale":
		return Grayscale{}, nil
	case "flip_h":
		return FlipH{}, nil
	case "rotate90":
		return Rotate90{}, nil
	case "invert":
		return Invert{}, nil
	case "sepia":
		return Sepia{}, nil
	case "blur":
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("blur: invalid sigma %q", arg)
		}
		return Blur{Sigma: v}, nil
	case "brightness":
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil || v < -1 || v > 1 {
			return nil, fmt.Errorf("brightness: invalid change %q", arg)
		}
		return Brightness{Change: v}, nil
	case "tint":
		hex, amt, ok := strings.Cut(arg, ":")
		amount := 0.5
		if ok {
			v, err := strconv.ParseFloat(amt, 64)
			if err != nil {
				return nil, fmt.Errorf("tint: invalid amount %q", amt)
			}
			amount = v
		}
		return NewTint(hex, amount)
	}
	return nil, fmt.Errorf("unknown transformation %q", name)
}

// ParseList parses a comma-separated chain, preserving order.
func ParseList(s string) ([]loader.Transformation, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []loader.Transformation
	for _, part := range strings.Split(s, ",") {
		tr, err := Parse(part)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, nil
}
