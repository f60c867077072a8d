package stages

import (
	"github.com/pomegranate-lab/stage-detection-service/detections"
	"github.com/pomegranate-lab/stage-detection-service/models"
)

type ClassNamer interface {
	ClassName(idx int) string
}

// Aggregate flattens every result set in model order, localizes each label and
// counts detections per stage. The returned response has no Time set.
//
// The dominant stage is the first stage, in order of first appearance, whose
// count equals the maximum.
func Aggregate(sets []detections.ResultSet, names ClassNamer, labels LabelMap) *models.PredictResponse {
	resp := &models.PredictResponse{
		Detections:  make([]models.Detection, 0),
		StageCounts: make(map[string]int),
	}

	var order []string
	for _, set := range sets {
		for _, box := range set.Boxes {
			stage := names.ClassName(box.ClassIndex)
			resp.Detections = append(resp.Detections, models.Detection{
				Stage:      stage,
				StageAr:    labels.Localize(stage),
				Confidence: float64(box.Confidence),
				BBox: [4]float64{
					float64(box.XYXYN[0]),
					float64(box.XYXYN[1]),
					float64(box.XYXYN[2]),
					float64(box.XYXYN[3]),
				},
			})

			if _, seen := resp.StageCounts[stage]; !seen {
				order = append(order, stage)
			}
			resp.StageCounts[stage]++
		}
	}

	resp.Total = len(resp.Detections)
	resp.Dominant = dominant(order, resp.StageCounts)
	resp.DominantAr = labels.Localize(resp.Dominant)
	return resp
}

func dominant(order []string, counts map[string]int) string {
	best, bestCount := Unknown, 0
	for _, stage := range order {
		if c := counts[stage]; c > bestCount {
			best, bestCount = stage, c
		}
	}
	return best
}
