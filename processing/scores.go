package processing

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// SoftmaxObjectness reduces two-class (background, object) logits of shape
// (N, 2) to the object-class probability, shape (N,). The row maximum is
// subtracted before exponentiation so large logits stay finite.
func SoftmaxObjectness(cls *tensor.Dense) (*tensor.Dense, error) {
	shape := cls.Shape()
	if len(shape) != 2 || shape[1] != 2 {
		return nil, errors.Errorf("expected (N, 2) class scores, got shape %v", shape)
	}

	n := shape[0]
	if n == 0 {
		return tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(0)), nil
	}

	vals := cls.Float32s()
	out := make([]float32, n)
	for i := range n {
		background, object := vals[i*2], vals[i*2+1]
		m := math32.Max(background, object)
		eb := math32.Exp(background - m)
		eo := math32.Exp(object - m)
		out[i] = eo / (eb + eo)
	}

	return tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(n), tensor.WithBacking(out)), nil
}
