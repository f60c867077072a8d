package detections

import (
	"math"
	"sort"
)

func calculateIOU(box1, box2 [4]float32) float64 {
	x1 := math.Max(float64(box1[0]), float64(box2[0]))
	y1 := math.Max(float64(box1[1]), float64(box2[1]))
	x2 := math.Min(float64(box1[2]), float64(box2[2]))
	y2 := math.Min(float64(box1[3]), float64(box2[3]))

	if x2 <= x1 || y2 <= y1 {
		return 0.0
	}

	intersection := (x2 - x1) * (y2 - y1)
	area1 := float64((box1[2] - box1[0]) * (box1[3] - box1[1]))
	area2 := float64((box2[2] - box2[0]) * (box2[3] - box2[1]))
	union := area1 + area2 - intersection
	if union <= 0 {
		return 0.0
	}

	return intersection / union
}

// nonMaxSuppression keeps the highest scoring box of every overlapping group of
// the same class. The result is ordered by confidence, highest first, and holds
// at most maxDet entries.
func nonMaxSuppression(candidates []candidate, iouThreshold float64, maxDet int) []candidate {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].confidence > candidates[j].confidence
	})

	kept := make([]candidate, 0, min(len(candidates), maxDet))
	suppressed := make([]bool, len(candidates))

	for i := range candidates {
		if suppressed[i] {
			continue
		}
		kept = append(kept, candidates[i])
		if len(kept) == maxDet {
			break
		}

		for j := i + 1; j < len(candidates); j++ {
			if suppressed[j] || candidates[j].class != candidates[i].class {
				continue
			}
			if calculateIOU(candidates[i].box, candidates[j].box) > iouThreshold {
				suppressed[j] = true
			}
		}
	}

	return kept
}
