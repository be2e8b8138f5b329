package processing

import (
	"github.com/chewxy/math32"
	"github.com/okieraised/go-rpn-pipeline/utils"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// IoU returns intersection over union for two (x1, y1, x2, y2) corner boxes,
// using inclusive pixel spans (width = x2-x1+1).
func IoU(a, b []float32) float32 {
	ix1 := math32.Max(a[0], b[0])
	iy1 := math32.Max(a[1], b[1])
	ix2 := math32.Min(a[2], b[2])
	iy2 := math32.Min(a[3], b[3])

	iw := math32.Max(ix2-ix1+1, 0)
	ih := math32.Max(iy2-iy1+1, 0)
	inter := iw * ih
	if inter == 0 {
		return 0
	}

	areaA := (a[2] - a[0] + 1) * (a[3] - a[1] + 1)
	areaB := (b[2] - b[0] + 1) * (b[3] - b[1] + 1)

	return inter / (areaA + areaB - inter)
}

// NMS greedily selects rows of dets, a (N, 5) tensor of (x1, y1, x2, y2,
// score) rows. Rows are visited in descending score order, ties keeping
// their original order, and a candidate survives only when its IoU with
// every previously kept box stays below iouThreshold. Selection stops once
// maxOutput rows are kept; a negative maxOutput disables the cap. The
// returned indices point into dets in acceptance order.
func NMS(dets *tensor.Dense, iouThreshold float32, maxOutput int) ([]int, error) {
	shape := dets.Shape()
	if len(shape) != 2 || shape[1] != 5 {
		return nil, errors.Errorf("expected (N, 5) detections, got shape %v", shape)
	}
	if iouThreshold < 0 || iouThreshold > 1 {
		return nil, errors.Wrapf(ErrInvalidProposalConfig, "iou threshold must be within [0, 1], got %f", iouThreshold)
	}

	n := shape[0]
	keep := make([]int, 0)
	if n == 0 || maxOutput == 0 {
		return keep, nil
	}

	vals := dets.Float32s()
	scoreData := make([]float32, n)
	for i := range n {
		scoreData[i] = vals[i*5+4]
	}
	scores := tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(n), tensor.WithBacking(scoreData))

	order, err := utils.ArgSortDescending(scores)
	if err != nil {
		return nil, err
	}

	for _, i := range order {
		box := vals[i*5 : i*5+4]
		suppressed := false
		for _, j := range keep {
			if IoU(box, vals[j*5:j*5+4]) >= iouThreshold {
				suppressed = true
				break
			}
		}
		if suppressed {
			continue
		}
		keep = append(keep, i)
		if maxOutput > 0 && len(keep) == maxOutput {
			break
		}
	}

	return keep, nil
}
