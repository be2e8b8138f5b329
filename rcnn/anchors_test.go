package rcnn

import (
	"testing"

	"github.com/okieraised/go-rpn-pipeline/processing"
	"github.com/stretchr/testify/assert"
	"gorgonia.org/tensor"
)

func genTestReference(vals ...float32) *tensor.Dense {
	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(len(vals)/4, 4),
		tensor.WithBacking(vals),
	)
}

func TestAnchorIndex(t *testing.T) {
	assert.Equal(t, 0, AnchorIndex(0, 0, 0, 7, 3))
	assert.Equal(t, 1, AnchorIndex(0, 0, 1, 7, 3))
	assert.Equal(t, 3, AnchorIndex(0, 1, 0, 7, 3))
	assert.Equal(t, 21, AnchorIndex(1, 0, 0, 7, 3))
	assert.Equal(t, 22, AnchorIndex(1, 0, 1, 7, 3))
}

func TestAnchors_GridCount(t *testing.T) {
	ref := genTestReference(
		-7.5, -7.5, 7.5, 7.5,
		-15.5, -7.5, 15.5, 7.5,
		-7.5, -15.5, 7.5, 15.5,
	)

	anchors, err := Anchors(4, 5, 16, ref)
	assert.NoError(t, err)
	assert.Equal(t, tensor.Shape{60, 4}, anchors.Shape())

	// cell (0, 0) carries the untranslated reference rows
	vals := anchors.Float32s()
	assert.Equal(t, ref.Float32s(), vals[:12])
}

func TestAnchors_ShiftOrder(t *testing.T) {
	ref := genTestReference(
		0, 0, 9, 9,
		-5, -5, 4, 4,
	)

	anchors, err := Anchors(2, 3, 16, ref)
	assert.NoError(t, err)
	assert.Equal(t, tensor.Shape{12, 4}, anchors.Shape())

	vals := anchors.Float32s()

	// one cell to the right shifts x by one stride
	row := AnchorIndex(0, 1, 0, 3, 2)
	assert.Equal(t, 2, row)
	assert.Equal(t, []float32{16, 0, 25, 9}, vals[row*4:row*4+4])

	// one cell down shifts y by one stride
	row = AnchorIndex(1, 0, 1, 3, 2)
	assert.Equal(t, 7, row)
	assert.Equal(t, []float32{-5, 11, 4, 20}, vals[row*4:row*4+4])

	// the far corner shifts both
	row = AnchorIndex(1, 2, 1, 3, 2)
	assert.Equal(t, 11, row)
	assert.Equal(t, []float32{27, 11, 36, 20}, vals[row*4:row*4+4])
}

func TestAnchors_SingleCell(t *testing.T) {
	ref, err := processing.GenerateAnchorReference(processing.AnchorConfig{
		BaseSize: 256,
		Ratios:   []float32{0.5, 1, 2},
		Scales:   []float32{0.125, 0.25, 0.5, 1, 2},
	})
	assert.NoError(t, err)

	anchors, err := Anchors(1, 1, 16, ref)
	assert.NoError(t, err)
	assert.Equal(t, ref.Shape(), anchors.Shape())
	assert.Equal(t, ref.Float32s(), anchors.Float32s())
}

func TestAnchors_SingleReference(t *testing.T) {
	ref, err := processing.GenerateAnchorReference(processing.AnchorConfig{
		BaseSize: 256,
		Ratios:   []float32{1},
		Scales:   []float32{1},
	})
	assert.NoError(t, err)

	anchors, err := Anchors(1, 1, 16, ref)
	assert.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 4}, anchors.Shape())

	vals := anchors.Float32s()
	assert.InDelta(t, -127.5, vals[0], 1e-4)
	assert.InDelta(t, -127.5, vals[1], 1e-4)
	assert.InDelta(t, 127.5, vals[2], 1e-4)
	assert.InDelta(t, 127.5, vals[3], 1e-4)
}

func TestAnchors_InvalidInputs(t *testing.T) {
	ref := genTestReference(0, 0, 9, 9)

	_, err := Anchors(0, 5, 16, ref)
	assert.ErrorIs(t, err, processing.ErrInvalidAnchorConfig)

	_, err = Anchors(5, -1, 16, ref)
	assert.ErrorIs(t, err, processing.ErrInvalidAnchorConfig)

	_, err = Anchors(5, 5, 0, ref)
	assert.ErrorIs(t, err, processing.ErrInvalidAnchorConfig)

	bad := tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(2, 3),
		tensor.WithBacking(make([]float32, 6)),
	)
	_, err = Anchors(2, 2, 16, bad)
	assert.Error(t, err)
}
