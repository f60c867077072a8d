package detections

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// LetterboxParams records how an original image was placed on the model canvas,
// so boxes can be mapped back.
type LetterboxParams struct {
	Scale float64
	PadX  float64
	PadY  float64
}

// Letterbox scales img to fit a size x size canvas without changing its aspect
// ratio and centers it on a gray border.
func Letterbox(img image.Image, size int) (*image.NRGBA, LetterboxParams) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	scale := math.Min(float64(size)/float64(w), float64(size)/float64(h))
	nw := max(1, int(math.Round(float64(w)*scale)))
	nh := max(1, int(math.Round(float64(h)*scale)))

	resized := imaging.Resize(img, nw, nh, imaging.Linear)

	padX := (size - nw) / 2
	padY := (size - nh) / 2

	canvas := imaging.New(size, size, color.NRGBA{R: LetterboxPad, G: LetterboxPad, B: LetterboxPad, A: 255})
	canvas = imaging.Paste(canvas, resized, image.Pt(padX, padY))

	return canvas, LetterboxParams{
		Scale: scale,
		PadX:  float64(padX),
		PadY:  float64(padY),
	}
}

// Unmap converts a point on the model canvas back to original image pixels.
func (p LetterboxParams) Unmap(x, y float64) (float64, float64) {
	return (x - p.PadX) / p.Scale, (y - p.PadY) / p.Scale
}
