package detections

import (
	"fmt"
	"math"
)

// Box is a single detection with its corners normalized to the original image.
type Box struct {
	ClassIndex int
	Confidence float32
	// XYXYN holds xmin, ymin, xmax, ymax in [0,1].
	XYXYN [4]float32
}

// ResultSet groups the boxes found in one image.
type ResultSet struct {
	Boxes []Box
}

type DecodeOptions struct {
	ConfThreshold float32
	IoUThreshold  float32
	MaxDetections int
}

func DefaultDecodeOptions() DecodeOptions {
	return DecodeOptions{
		ConfThreshold: DefaultConfThreshold,
		IoUThreshold:  DefaultIoUThreshold,
		MaxDetections: DefaultMaxDetections,
	}
}

type candidate struct {
	class      int
	confidence float32
	// box is xyxy in model canvas pixels.
	box [4]float32
}

// DecodeOutput turns the raw [1, 4+numClasses, numAnchors] YOLO head into
// boxes normalized against an origW x origH image.
func DecodeOutput(data []float32, numClasses, numAnchors int, lb LetterboxParams, origW, origH int, opts DecodeOptions) ([]Box, error) {
	if want := (BoxChannels + numClasses) * numAnchors; len(data) != want {
		return nil, fmt.Errorf("unexpected predictions length: got %d, want %d", len(data), want)
	}
	if origW <= 0 || origH <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", origW, origH)
	}

	var candidates []candidate
	for i := 0; i < numAnchors; i++ {
		classID, score := 0, float32(-1)
		for j := 0; j < numClasses; j++ {
			if s := data[(BoxChannels+j)*numAnchors+i]; s > score {
				score = s
				classID = j
			}
		}
		if score <= opts.ConfThreshold {
			continue
		}

		cx := data[i]
		cy := data[numAnchors+i]
		w := data[2*numAnchors+i]
		h := data[3*numAnchors+i]

		candidates = append(candidates, candidate{
			class:      classID,
			confidence: score,
			box:        [4]float32{cx - w/2, cy - h/2, cx + w/2, cy + h/2},
		})
	}

	kept := nonMaxSuppression(candidates, float64(opts.IoUThreshold), opts.MaxDetections)

	boxes := make([]Box, 0, len(kept))
	for _, c := range kept {
		boxes = append(boxes, Box{
			ClassIndex: c.class,
			Confidence: clamp32(c.confidence, 0, 1),
			XYXYN:      normalizeBox(c.box, lb, origW, origH),
		})
	}
	return boxes, nil
}

func normalizeBox(box [4]float32, lb LetterboxParams, origW, origH int) [4]float32 {
	x1, y1 := lb.Unmap(float64(box[0]), float64(box[1]))
	x2, y2 := lb.Unmap(float64(box[2]), float64(box[3]))

	fw, fh := float64(origW), float64(origH)
	x1 = clamp(x1, 0, fw) / fw
	x2 = clamp(x2, 0, fw) / fw
	y1 = clamp(y1, 0, fh) / fh
	y2 = clamp(y2, 0, fh) / fh

	if x1 > x2 {
		x1, x2 = x2, x1
	}
	if y1 > y2 {
		y1, y2 = y2, y1
	}

	return [4]float32{float32(x1), float32(y1), float32(x2), float32(y2)}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func clamp32(v, lo, hi float32) float32 {
	return float32(clamp(float64(v), float64(lo), float64(hi)))
}
