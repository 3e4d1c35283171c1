package vision

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
)

func decodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

// toCHW resizes img and converts it to normalised CHW float32 layout:
// pixel = (pixel - mean) / std, per channel.
func toCHW(img image.Image, targetW, targetH int, mean, std float32) []float32 {
	resized := resizeImage(img, targetW, targetH)
	bounds := resized.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	data := make([]float32, 3*h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := resized.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()

			idx := y*w + x
			data[0*h*w+idx] = (float32(r>>8) - mean) / std
			data[1*h*w+idx] = (float32(g>>8) - mean) / std
			data[2*h*w+idx] = (float32(b>>8) - mean) / std
		}
	}
	return data
}

// resizeImage performs nearest-neighbour resize, good enough for model input.
func resizeImage(img image.Image, targetW, targetH int) image.Image {
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	for y := 0; y < targetH; y++ {
		for x := 0; x < targetW; x++ {
			srcX := bounds.Min.X + x*srcW/targetW
			srcY := bounds.Min.Y + y*srcH/targetH
			dst.Set(x, y, img.At(srcX, srcY))
		}
	}
	return dst
}

// cropFace extracts the face box from img with 10% padding on each side.
// Returns nil if the clamped region is empty.
func cropFace(img image.Image, bbox [4]float32) image.Image {
	bounds := img.Bounds()

	w := int(bbox[2] - bbox[0])
	h := int(bbox[3] - bbox[1])
	if w <= 0 || h <= 0 {
		return nil
	}

	x1 := int(bbox[0]) - w/10
	y1 := int(bbox[1]) - h/10
	x2 := int(bbox[2]) + w/10
	y2 := int(bbox[3]) + h/10

	x1 = clampInt(x1, bounds.Min.X, bounds.Max.X)
	y1 = clampInt(y1, bounds.Min.Y, bounds.Max.Y)
	x2 = clampInt(x2, bounds.Min.X, bounds.Max.X)
	y2 = clampInt(y2, bounds.Min.Y, bounds.Max.Y)
	if x2-x1 <= 0 || y2-y1 <= 0 {
		return nil
	}

	crop := image.NewRGBA(image.Rect(0, 0, x2-x1, y2-y1))
	for cy := y1; cy < y2; cy++ {
		for cx := x1; cx < x2; cx++ {
			crop.Set(cx-x1, cy-y1, img.At(cx, cy))
		}
	}
	return crop
}

// patchStdDev returns the grayscale standard deviation of a square patch
// of the given radius centered at (cx, cy), clamped to the image.
func patchStdDev(img image.Image, cx, cy, radius int) float64 {
	bounds := img.Bounds()

	x1 := clampInt(cx-radius, bounds.Min.X, bounds.Max.X)
	y1 := clampInt(cy-radius, bounds.Min.Y, bounds.Max.Y)
	x2 := clampInt(cx+radius, bounds.Min.X, bounds.Max.X)
	y2 := clampInt(cy+radius, bounds.Min.Y, bounds.Max.Y)

	var sum, sumSq float64
	count := 0
	for y := y1; y < y2; y++ {
		for x := x1; x < x2; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			gray := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 256.0
			sum += gray
			sumSq += gray * gray
			count++
		}
	}
	if count == 0 {
		return 0
	}
	mean := sum / float64(count)
	variance := sumSq/float64(count) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
