package processing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorgonia.org/tensor"
)

func genTestDets(vals ...float32) *tensor.Dense {
	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(len(vals)/5, 5),
		tensor.WithBacking(vals),
	)
}

func TestIoU(t *testing.T) {
	a := []float32{0, 0, 9, 9}
	b := []float32{5, 0, 14, 9}

	// both boxes cover 100 pixels and share 50 of them
	assert.InDelta(t, 1.0/3.0, IoU(a, b), 1e-6)
	assert.InDelta(t, 1.0/3.0, IoU(b, a), 1e-6)

	assert.InDelta(t, 1, IoU(a, a), 1e-6)

	disjoint := []float32{20, 20, 29, 29}
	assert.Equal(t, float32(0), IoU(a, disjoint))

	// boxes that merely touch along an edge still share a pixel row
	touching := []float32{9, 0, 18, 9}
	assert.Greater(t, IoU(a, touching), float32(0))
}

func TestNMS_IdenticalBoxes(t *testing.T) {
	dets := genTestDets(
		10, 10, 20, 20, 0.9,
		10, 10, 20, 20, 0.8,
	)

	keep, err := NMS(dets, 0.5, -1)
	assert.NoError(t, err)
	assert.Equal(t, []int{0}, keep)
}

func TestNMS_ScoreOrder(t *testing.T) {
	// disjoint boxes survive in descending score order regardless of the
	// incoming row order
	dets := genTestDets(
		0, 0, 9, 9, 0.3,
		20, 0, 29, 9, 0.9,
		40, 0, 49, 9, 0.5,
	)

	keep, err := NMS(dets, 0.5, -1)
	assert.NoError(t, err)
	assert.Equal(t, []int{1, 2, 0}, keep)
}

func TestNMS_ChainSuppression(t *testing.T) {
	// neighbors along the chain overlap at IoU 1/3, alternates do not
	// overlap at all
	dets := genTestDets(
		0, 0, 9, 9, 0.9,
		5, 0, 14, 9, 0.8,
		10, 0, 19, 9, 0.7,
		15, 0, 24, 9, 0.6,
		20, 0, 29, 9, 0.5,
	)

	keep, err := NMS(dets, 0.3, -1)
	assert.NoError(t, err)
	assert.Equal(t, []int{0, 2, 4}, keep)

	keep, err = NMS(dets, 0.5, -1)
	assert.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, keep)
}

func TestNMS_ThresholdIsExclusive(t *testing.T) {
	// the pair overlaps at exactly IoU 1/3; a candidate at the threshold
	// is suppressed
	dets := genTestDets(
		0, 0, 9, 9, 0.9,
		5, 0, 14, 9, 0.8,
	)

	keep, err := NMS(dets, 1.0/3.0, -1)
	assert.NoError(t, err)
	assert.Equal(t, []int{0}, keep)
}

func TestNMS_MaxOutput(t *testing.T) {
	dets := genTestDets(
		0, 0, 9, 9, 0.9,
		20, 0, 29, 9, 0.8,
		40, 0, 49, 9, 0.7,
	)

	keep, err := NMS(dets, 0.5, 2)
	assert.NoError(t, err)
	assert.Equal(t, []int{0, 1}, keep)

	keep, err = NMS(dets, 0.5, 0)
	assert.NoError(t, err)
	assert.Empty(t, keep)
}

func TestNMS_TieBreak(t *testing.T) {
	// equal scores keep their original relative order
	dets := genTestDets(
		0, 0, 9, 9, 0.8,
		20, 0, 29, 9, 0.8,
		40, 0, 49, 9, 0.8,
	)

	keep, err := NMS(dets, 0.5, -1)
	assert.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, keep)
}

func TestNMS_PairwiseInvariant(t *testing.T) {
	dets := genTestDets(
		0, 0, 19, 19, 0.9,
		5, 5, 24, 24, 0.85,
		10, 0, 29, 19, 0.8,
		50, 50, 69, 69, 0.7,
		52, 50, 71, 69, 0.6,
	)

	iouThreshold := float32(0.4)
	keep, err := NMS(dets, iouThreshold, -1)
	assert.NoError(t, err)
	assert.NotEmpty(t, keep)

	vals := dets.Float32s()
	for i := range keep {
		for j := i + 1; j < len(keep); j++ {
			a := vals[keep[i]*5 : keep[i]*5+4]
			b := vals[keep[j]*5 : keep[j]*5+4]
			assert.Less(t, IoU(a, b), iouThreshold)
		}
	}
}

func TestNMS_Empty(t *testing.T) {
	dets := tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(0, 5))

	keep, err := NMS(dets, 0.5, -1)
	assert.NoError(t, err)
	assert.Empty(t, keep)
}

func TestNMS_InvalidInputs(t *testing.T) {
	_, err := NMS(genTestBoxes(0, 0, 9, 9), 0.5, -1)
	assert.Error(t, err)

	dets := genTestDets(0, 0, 9, 9, 0.9)
	_, err = NMS(dets, -0.1, -1)
	assert.ErrorIs(t, err, ErrInvalidProposalConfig)

	_, err = NMS(dets, 1.5, -1)
	assert.ErrorIs(t, err, ErrInvalidProposalConfig)
}
