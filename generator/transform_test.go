package generator

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func rgbaAt(img image.Image, x, y int) color.NRGBA {
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}

func TestTransformations(t *testing.T) {
	t.Parallel()

	src := solid(4, 2, color.NRGBA{R: 200, G: 100, B: 50, A: 255})

	inv := rgbaAt(Invert{}.Transform(src), 0, 0)
	assert.Equal(t, color.NRGBA{R: 55, G: 155, B: 205, A: 255}, inv)

	gray := rgbaAt(Grayscale{}.Transform(src), 1, 1)
	assert.Equal(t, gray.R, gray.B)

	rot := Rotate90{}.Transform(src)
	assert.Equal(t, image.Rect(0, 0, 2, 4), rot.Bounds())

	flip := FlipH{}.Transform(solid(2, 1, color.NRGBA{A: 255}))
	assert.Equal(t, 2, flip.Bounds().Dx())

	sep := rgbaAt(Sepia{}.Transform(src), 0, 0)
	assert.GreaterOrEqual(t, sep.R, sep.B)

	bright := rgbaAt(Brightness{Change: 0.2}.Transform(src), 0, 0)
	assert.Greater(t, bright.B, uint8(50))

	blur := Blur{Sigma: 1}.Transform(src)
	assert.Equal(t, src.Bounds(), blur.Bounds())
}

func TestTint(t *testing.T) {
	t.Parallel()

	tint, err := NewTint("#0000ff", 1)
	require.NoError(t, err)
	px := rgbaAt(tint.Transform(solid(1, 1, color.NRGBA{R: 255, A: 255})), 0, 0)
	assert.Equal(t, color.NRGBA{B: 255, A: 255}, px)

	none, err := NewTint("#0000ff", -3)
	require.NoError(t, err)
	px = rgbaAt(none.Transform(solid(1, 1, color.NRGBA{R: 255, A: 255})), 0, 0)
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, px)

	_, err = NewTint("blue", 0.5)
	assert.Error(t, err)
}

func TestKeysAreStableAndDistinct(t *testing.T) {
	t.Parallel()

	tint, err := NewTint("#FF8800", 0.25)
	require.NoError(t, err)

	keys := map[string]bool{}
	for _, k := range []string{
		Grayscale{}.Key(), FlipH{}.Key(), Rotate90{}.Key(), Invert{}.Key(), Sepia{}.Key(),
		Blur{Sigma: 1}.Key(), Blur{Sigma: 2}.Key(),
		Brightness{Change: 0.1}.Key(), tint.Key(),
	} {
		assert.False(t, keys[k], "duplicate key %q", k)
		keys[k] = true
	}
	assert.Equal(t, "blur(sigma=2.00)", Blur{Sigma: 2}.Key())
	assert.Equal(t, "tint(#ff8800,0.25)", tint.Key())
}

func TestParseList(t *testing.T) {
	t.Parallel()

	chain, err := ParseList("grayscale, blur:1.5,tint:#00ff00:0.3,invert")
	require.NoError(t, err)
	require.Len(t, chain, 4)
	assert.Equal(t, Grayscale{}, chain[0])
	assert.Equal(t, Blur{Sigma: 1.5}, chain[1])
	assert.Equal(t, "tint(#00ff00,0.30)", chain[2].Key())
	assert.Equal(t, Invert{}, chain[3])

	chain, err = ParseList("  ")
	require.NoError(t, err)
	assert.Nil(t, chain)

	for _, bad := range []string{"blur:x", "blur:-1", "brightness:3", "tint:#zz", "tint:#000000:abc", "swirl"} {
		_, err := ParseList(bad)
		assert.Error(t, err, bad)
	}
}
