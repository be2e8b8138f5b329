package rcnn

import (
	"github.com/okieraised/go-rpn-pipeline/processing"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// AnchorIndex returns the row of the anchor for grid cell (y, x) and
// reference r in the flat set produced by Anchors. Rows advance over
// references first, then x, then y.
func AnchorIndex(y, x, r, width, numReferences int) int {
	return (y*width+x)*numReferences + r
}

// Anchors tiles the reference set over a height x width feature grid. Cell
// (y, x) shifts every reference corner by (x*stride, y*stride), producing a
// (height*width*A, 4) tensor ordered per AnchorIndex.
func Anchors(height, width, stride int, baseAnchor *tensor.Dense) (*tensor.Dense, error) {
	if height <= 0 || width <= 0 {
		return nil, errors.Wrapf(processing.ErrInvalidAnchorConfig, "grid size must be positive, got %dx%d", height, width)
	}
	if stride <= 0 {
		return nil, errors.Wrapf(processing.ErrInvalidAnchorConfig, "stride must be positive, got %d", stride)
	}
	baseShape := baseAnchor.Shape()
	if len(baseShape) != 2 || baseShape[1] != 4 {
		return nil, errors.Errorf("expected (A, 4) reference anchors, got shape %v", baseShape)
	}

	a := baseShape[0]
	base := baseAnchor.Float32s()
	all := make([]float32, height*width*a*4)

	for ih := range height {
		sh := float32(ih * stride)
		for iw := range width {
			sw := float32(iw * stride)
			for k := range a {
				row := AnchorIndex(ih, iw, k, width, a) * 4
				all[row] = base[k*4] + sw
				all[row+1] = base[k*4+1] + sh
				all[row+2] = base[k*4+2] + sw
				all[row+3] = base[k*4+3] + sh
			}
		}
	}

	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(height*width*a, 4),
		tensor.WithBacking(all),
	), nil
}
