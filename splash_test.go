package main

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// newBGRImage builds a width x height image filled with one BGR color.
func newBGRImage(width, height int, b, g, r uint8) gocv.Mat {
	img := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetUCharAt(y, x*3+0, b)
			img.SetUCharAt(y, x*3+1, g)
			img.SetUCharAt(y, x*3+2, r)
		}
	}
	return img
}

// newMask builds a width x height mask with the given pixels set to 255.
func newMask(width, height int, pixels ...[2]int) gocv.Mat {
	m := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC1)
	for _, p := range pixels {
		m.SetUCharAt(p[1], p[0], 255)
	}
	return m
}

func pixelAt(img gocv.Mat, x, y int) [3]uint8 {
	return [3]uint8{
		img.GetUCharAt(y, x*3+0),
		img.GetUCharAt(y, x*3+1),
		img.GetUCharAt(y, x*3+2),
	}
}

func assertMatsEqual(t *testing.T, want, got gocv.Mat) {
	t.Helper()
	require.Equal(t, want.Rows(), got.Rows())
	require.Equal(t, want.Cols(), got.Cols())
	for y := 0; y < want.Rows(); y++ {
		for x := 0; x < want.Cols(); x++ {
			assert.Equal(t, pixelAt(want, x, y), pixelAt(got, x, y), "pixel (%d,%d)", x, y)
		}
	}
}

func TestColorSplashNoMasks(t *testing.T) {
	img := newBGRImage(2, 2, 0, 0, 255) // pure red
	defer img.Close()

	out := ColorSplash(img, nil)
	defer out.Close()

	// red desaturates to the 0.299 luminance weight of the R channel
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			px := pixelAt(out, x, y)
			for c := 0; c < 3; c++ {
				assert.InDelta(t, 76, px[c], 1, "pixel (%d,%d) channel %d", x, y, c)
			}
		}
	}
}

func TestColorSplashFullCoverage(t *testing.T) {
	img := newBGRImage(3, 2, 10, 200, 40)
	defer img.Close()
	full := newMask(3, 2, [2]int{0, 0}, [2]int{1, 0}, [2]int{2, 0}, [2]int{0, 1}, [2]int{1, 1}, [2]int{2, 1})
	defer full.Close()

	out := ColorSplash(img, []gocv.Mat{full})
	defer out.Close()

	assertMatsEqual(t, img, out)
}

func TestColorSplashTopRowScenario(t *testing.T) {
	img := newBGRImage(2, 2, 0, 0, 255)
	defer img.Close()
	topRow := newMask(2, 2, [2]int{0, 0}, [2]int{1, 0})
	defer topRow.Close()

	out := ColorSplash(img, []gocv.Mat{topRow})
	defer out.Close()

	for x := 0; x < 2; x++ {
		assert.Equal(t, [3]uint8{0, 0, 255}, pixelAt(out, x, 0), "top row keeps color")
		px := pixelAt(out, x, 1)
		for c := 0; c < 3; c++ {
			assert.InDelta(t, 76, px[c], 1, "bottom row is gray")
		}
	}
}

func TestColorSplashOrderInvariance(t *testing.T) {
	img := newBGRImage(4, 4, 30, 60, 90)
	defer img.Close()
	a := newMask(4, 4, [2]int{0, 0}, [2]int{1, 1})
	defer a.Close()
	b := newMask(4, 4, [2]int{3, 3}, [2]int{1, 1})
	defer b.Close()

	ab := ColorSplash(img, []gocv.Mat{a, b})
	defer ab.Close()
	ba := ColorSplash(img, []gocv.Mat{b, a})
	defer ba.Close()

	assertMatsEqual(t, ab, ba)
}

func TestMergeMasks(t *testing.T) {
	a := newMask(3, 1, [2]int{0, 0})
	defer a.Close()
	b := newMask(3, 1, [2]int{2, 0})
	defer b.Close()

	union := mergeMasks([]gocv.Mat{a, b})
	defer union.Close()

	assert.EqualValues(t, 255, union.GetUCharAt(0, 0))
	assert.EqualValues(t, 0, union.GetUCharAt(0, 1))
	assert.EqualValues(t, 255, union.GetUCharAt(0, 2))
}

func TestMaskBounds(t *testing.T) {
	m := newMask(6, 5, [2]int{2, 1}, [2]int{4, 3})
	defer m.Close()

	assert.Equal(t, image.Rect(2, 1, 5, 4), maskBounds(m))
}

func TestMaskBoundsEmpty(t *testing.T) {
	m := newMask(4, 4)
	defer m.Close()

	assert.True(t, maskBounds(m).Empty())
}
