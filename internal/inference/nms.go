package inference

import (
	"image"
	"sort"

	"falldetector/internal/dto"
)

// NMS performs class-wise greedy non-maximum suppression. Boxes are visited
// from the highest confidence down; a box is dropped when its IoU with an
// already kept box of the same class exceeds iouThreshold.
func NMS(dets []dto.DetectionResult, iouThreshold float64) []dto.DetectionResult {
	if len(dets) < 2 {
		return dets
	}

	order := make([]int, len(dets))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return dets[order[a]].Confidence > dets[order[b]].Confidence
	})

	kept := make([]dto.DetectionResult, 0, len(dets))
	for _, idx := range order {
		candidate := dets[idx]
		suppressed := false
		for _, k := range kept {
			if k.ClassID == candidate.ClassID && IoU(k, candidate) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, candidate)
		}
	}
	return kept
}

// IoU returns the intersection over union of two boxes.
func IoU(a, b dto.DetectionResult) float64 {
	ra := image.Rect(a.X, a.Y, a.X+a.Width, a.Y+a.Height)
	rb := image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)

	inter := ra.Intersect(rb)
	if inter.Empty() {
		return 0
	}
	interArea := float64(inter.Dx() * inter.Dy())
	union := float64(ra.Dx()*ra.Dy()+rb.Dx()*rb.Dy()) - interArea
	if union <= 0 {
		return 0
	}
	return interArea / union
}
