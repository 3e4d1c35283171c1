package vision

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniformImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func Test_DecodeImage(t *testing.T) {
	data := pngBytes(t, uniformImage(8, 8, color.White))

	img, err := decodeImage(data)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())

	_, err = decodeImage([]byte("not an image"))
	require.Error(t, err)
}

func Test_ToCHW_Layout(t *testing.T) {
	img := uniformImage(4, 4, color.RGBA{R: 200, G: 100, B: 50, A: 255})

	data := toCHW(img, 2, 2, 127.5, 127.5)
	require.Len(t, data, 3*2*2)

	// Channel planes are contiguous: R, then G, then B.
	assert.InDelta(t, (200.0-127.5)/127.5, float64(data[0]), 1e-4)
	assert.InDelta(t, (100.0-127.5)/127.5, float64(data[4]), 1e-4)
	assert.InDelta(t, (50.0-127.5)/127.5, float64(data[8]), 1e-4)
}

func Test_ResizeImage(t *testing.T) {
	img := uniformImage(10, 20, color.White)
	resized := resizeImage(img, 4, 4)
	assert.Equal(t, 4, resized.Bounds().Dx())
	assert.Equal(t, 4, resized.Bounds().Dy())
}

func Test_CropFace_PadsAndClamps(t *testing.T) {
	img := uniformImage(100, 100, color.White)

	crop := cropFace(img, [4]float32{40, 40, 60, 60})
	require.NotNil(t, crop)
	// 20px box plus 10% padding on each side.
	assert.Equal(t, 24, crop.Bounds().Dx())
	assert.Equal(t, 24, crop.Bounds().Dy())

	// A box at the edge clamps instead of reading out of bounds.
	edge := cropFace(img, [4]float32{-10, -10, 10, 10})
	require.NotNil(t, edge)
	assert.LessOrEqual(t, edge.Bounds().Dx(), 14)
}

func Test_CropFace_DegenerateBox(t *testing.T) {
	img := uniformImage(100, 100, color.White)
	assert.Nil(t, cropFace(img, [4]float32{50, 50, 50, 50}))
	assert.Nil(t, cropFace(img, [4]float32{60, 60, 40, 40}))
}

func Test_PatchStdDev(t *testing.T) {
	flat := uniformImage(32, 32, color.Gray{Y: 128})
	assert.InDelta(t, 0.0, patchStdDev(flat, 16, 16, 4), 1e-6)

	// A checkerboard patch has plenty of variance.
	busy := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			if (x+y)%2 == 0 {
				busy.Set(x, y, color.White)
			} else {
				busy.Set(x, y, color.Black)
			}
		}
	}
	assert.Greater(t, patchStdDev(busy, 16, 16, 4), 10.0)

	// Off-image centers degrade to zero rather than panicking.
	assert.Equal(t, 0.0, patchStdDev(flat, -100, -100, 4))
}
