package processing

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// widthUpright returns the inclusive width and height of a corner box and
// its upright center.
func widthUpright(x1, y1, x2, y2 float32) (w, h, urx, ury float32) {
	w = x2 - x1 + 1
	h = y2 - y1 + 1
	urx = x1 + 0.5*w
	ury = y1 + 0.5*h
	return w, h, urx, ury
}

// EncodeBoxes expresses target boxes as center and log-size offsets relative
// to their anchors. variances[0] scales the center offsets, variances[1] the
// size offsets; nil selects (1, 1).
func EncodeBoxes(anchors, targets *tensor.Dense, variances []float32) (*tensor.Dense, error) {
	err := checkBoxPair(anchors, targets)
	if err != nil {
		return nil, err
	}
	v, err := boxVariances(variances)
	if err != nil {
		return nil, err
	}

	n := anchors.Shape()[0]
	if n == 0 {
		return tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(0, 4)), nil
	}

	av := anchors.Float32s()
	tv := targets.Float32s()
	out := make([]float32, n*4)
	for i := range n {
		w, h, urx, ury := widthUpright(av[i*4], av[i*4+1], av[i*4+2], av[i*4+3])
		gw, gh, gurx, gury := widthUpright(tv[i*4], tv[i*4+1], tv[i*4+2], tv[i*4+3])

		out[i*4] = (gurx - urx) / (w * v[0])
		out[i*4+1] = (gury - ury) / (h * v[0])
		out[i*4+2] = math32.Log(gw/w) / v[1]
		out[i*4+3] = math32.Log(gh/h) / v[1]
	}

	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(n, 4),
		tensor.WithBacking(out),
	), nil
}

// DecodeBoxes applies predicted offsets to their anchors, recovering corner
// boxes. The upper corners land at center plus half size minus one, keeping
// DecodeBoxes the exact inverse of EncodeBoxes.
func DecodeBoxes(anchors, deltas *tensor.Dense, variances []float32) (*tensor.Dense, error) {
	err := checkBoxPair(anchors, deltas)
	if err != nil {
		return nil, err
	}
	v, err := boxVariances(variances)
	if err != nil {
		return nil, err
	}

	n := anchors.Shape()[0]
	if n == 0 {
		return tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(0, 4)), nil
	}

	av := anchors.Float32s()
	dv := deltas.Float32s()
	out := make([]float32, n*4)
	for i := range n {
		w, h, urx, ury := widthUpright(av[i*4], av[i*4+1], av[i*4+2], av[i*4+3])

		predURX := dv[i*4]*w*v[0] + urx
		predURY := dv[i*4+1]*h*v[0] + ury
		predW := math32.Exp(dv[i*4+2]*v[1]) * w
		predH := math32.Exp(dv[i*4+3]*v[1]) * h

		out[i*4] = predURX - 0.5*predW
		out[i*4+1] = predURY - 0.5*predH
		out[i*4+2] = predURX + 0.5*predW - 1
		out[i*4+3] = predURY + 0.5*predH - 1
	}

	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(n, 4),
		tensor.WithBacking(out),
	), nil
}

// ClipBoxes clamps corner boxes to the image bounds in place, x to
// [0, width-1] and y to [0, height-1]. The proposal pipeline never clips;
// this serves rendering.
func ClipBoxes(boxes *tensor.Dense, imgShape [2]int) (*tensor.Dense, error) {
	shape := boxes.Shape()
	if len(shape) != 2 || shape[1] != 4 {
		return nil, errors.Errorf("expected (N, 4) boxes, got shape %v", shape)
	}

	height := float32(imgShape[0] - 1)
	width := float32(imgShape[1] - 1)

	vals := boxes.Float32s()
	for i := range shape[0] {
		vals[i*4] = math32.Max(math32.Min(vals[i*4], width), 0)
		vals[i*4+1] = math32.Max(math32.Min(vals[i*4+1], height), 0)
		vals[i*4+2] = math32.Max(math32.Min(vals[i*4+2], width), 0)
		vals[i*4+3] = math32.Max(math32.Min(vals[i*4+3], height), 0)
	}

	return boxes, nil
}

func checkBoxPair(a, b *tensor.Dense) error {
	aShape := a.Shape()
	if len(aShape) != 2 || aShape[1] != 4 {
		return errors.Errorf("expected (N, 4) boxes, got shape %v", aShape)
	}
	bShape := b.Shape()
	if len(bShape) != 2 || bShape[1] != 4 {
		return errors.Errorf("expected (N, 4) boxes, got shape %v", bShape)
	}
	if aShape[0] != bShape[0] {
		return errors.Errorf("row count mismatch: %d vs %d", aShape[0], bShape[0])
	}
	return nil
}

func boxVariances(variances []float32) ([2]float32, error) {
	if variances == nil {
		return [2]float32{1, 1}, nil
	}
	if len(variances) != 2 {
		return [2]float32{}, errors.Wrapf(ErrInvalidProposalConfig, "variances must have length 2, got %d", len(variances))
	}
	if variances[0] <= 0 || variances[1] <= 0 {
		return [2]float32{}, errors.Wrap(ErrInvalidProposalConfig, "variances must be positive")
	}
	return [2]float32{variances[0], variances[1]}, nil
}
