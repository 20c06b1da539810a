package capture

import (
	"image"
)

const (
	// laplacianRef is the Laplacian variance treated as perfectly sharp.
	// Variances above it clamp to 1.0.
	laplacianRef = 1000.0
	// referencePixels is the frame resolution treated as fully adequate
	// for recognition (VGA). Smaller frames score proportionally lower.
	referencePixels = 640.0 * 480.0

	blurWeight = 0.6
	sizeWeight = 0.4
)

// QualityScore estimates how usable a frame is for face recognition,
// in [0, 1]. Sharpness dominates: a blurry frame produces unstable
// embeddings no matter its resolution.
func QualityScore(img image.Image) float64 {
	return blurWeight*blurScore(img) + sizeWeight*sizeScore(img.Bounds())
}

// blurScore measures sharpness as the variance of a 4-neighbor Laplacian
// over the luminance channel, normalized against laplacianRef.
func blurScore(img image.Image) float64 {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	gray := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// ITU-R BT.601 luma, 16-bit channels scaled to 0..255.
			gray[y*w+x] = (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 257.0
		}
	}

	n := 0
	sum := 0.0
	sumSq := 0.0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			center := gray[y*w+x]
			lap := gray[(y-1)*w+x] + gray[(y+1)*w+x] + gray[y*w+x-1] + gray[y*w+x+1] - 4*center
			sum += lap
			sumSq += lap * lap
			n++
		}
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean

	score := variance / laplacianRef
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

// sizeScore rates the frame resolution against the reference. A frame at
// or above VGA scores 1.0.
func sizeScore(bounds image.Rectangle) float64 {
	pixels := float64(bounds.Dx() * bounds.Dy())
	score := pixels / referencePixels
	if score > 1 {
		score = 1
	}
	return score
}
