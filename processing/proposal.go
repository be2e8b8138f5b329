package processing

import (
	"github.com/chewxy/math32"
	"github.com/okieraised/go-rpn-pipeline/utils"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ProposalConfig controls how per-anchor predictions are reduced to the
// final proposal set.
type ProposalConfig struct {
	PreNMSTopN   int
	PostNMSTopN  int
	NMSThreshold float32
	Variances    []float32
}

// Validate rejects settings that are out of range. Zero top-N values are
// valid and yield empty proposal sets.
func (c ProposalConfig) Validate() error {
	if c.PreNMSTopN < 0 {
		return errors.Wrapf(ErrInvalidProposalConfig, "pre-nms top n must be non-negative, got %d", c.PreNMSTopN)
	}
	if c.PostNMSTopN < 0 {
		return errors.Wrapf(ErrInvalidProposalConfig, "post-nms top n must be non-negative, got %d", c.PostNMSTopN)
	}
	if c.NMSThreshold < 0 || c.NMSThreshold > 1 {
		return errors.Wrapf(ErrInvalidProposalConfig, "nms threshold must be within [0, 1], got %f", c.NMSThreshold)
	}
	if c.Variances != nil {
		_, err := boxVariances(c.Variances)
		if err != nil {
			return err
		}
	}
	return nil
}

// FilterOutsideAnchors drops anchors that cross the image boundary, together
// with their scores and deltas. allowedBorder relaxes the boundary by that
// many pixels on every side; zero keeps only fully contained anchors.
func FilterOutsideAnchors(anchors, scores, deltas *tensor.Dense, imgShape [2]int, allowedBorder int) (*tensor.Dense, *tensor.Dense, *tensor.Dense, error) {
	err := checkProposalInputs(anchors, scores, deltas)
	if err != nil {
		return nil, nil, nil, err
	}

	border := float32(allowedBorder)
	height := float32(imgShape[0]) + border
	width := float32(imgShape[1]) + border

	vals := anchors.Float32s()
	n := anchors.Shape()[0]
	inside := make([]int, 0, n)
	for i := range n {
		x1, y1, x2, y2 := vals[i*4], vals[i*4+1], vals[i*4+2], vals[i*4+3]
		if x1 >= -border && y1 >= -border && x2 < width && y2 < height {
			inside = append(inside, i)
		}
	}

	if len(inside) == n {
		return anchors, scores, deltas, nil
	}
	if len(inside) == 0 {
		return emptyBoxes(), emptyScores(), emptyBoxes(), nil
	}

	keptAnchors, err := utils.SelectRows2D(anchors, inside)
	if err != nil {
		return nil, nil, nil, err
	}
	keptScores, err := utils.SelectRows1D(scores, inside)
	if err != nil {
		return nil, nil, nil, err
	}
	keptDeltas, err := utils.SelectRows2D(deltas, inside)
	if err != nil {
		return nil, nil, nil, err
	}

	return keptAnchors, keptScores, keptDeltas, nil
}

// FilterZeroArea drops boxes whose exclusive spans collapse to zero or
// negative area, along with their scores.
func FilterZeroArea(boxes, scores *tensor.Dense) (*tensor.Dense, *tensor.Dense, error) {
	err := checkBoxScorePair(boxes, scores)
	if err != nil {
		return nil, nil, err
	}

	vals := boxes.Float32s()
	n := boxes.Shape()[0]
	kept := make([]int, 0, n)
	for i := range n {
		w := math32.Max(vals[i*4+2]-vals[i*4], 0)
		h := math32.Max(vals[i*4+3]-vals[i*4+1], 0)
		if w*h > 0 {
			kept = append(kept, i)
		}
	}

	if len(kept) == n {
		return boxes, scores, nil
	}
	if len(kept) == 0 {
		return emptyBoxes(), emptyScores(), nil
	}

	keptBoxes, err := utils.SelectRows2D(boxes, kept)
	if err != nil {
		return nil, nil, err
	}
	keptScores, err := utils.SelectRows1D(scores, kept)
	if err != nil {
		return nil, nil, err
	}

	return keptBoxes, keptScores, nil
}

// TopKByScore orders boxes by descending score and keeps the first k. Ties
// preserve the incoming row order.
func TopKByScore(boxes, scores *tensor.Dense, k int) (*tensor.Dense, *tensor.Dense, error) {
	err := checkBoxScorePair(boxes, scores)
	if err != nil {
		return nil, nil, err
	}
	if k < 0 {
		return nil, nil, errors.Wrapf(ErrInvalidProposalConfig, "top k must be non-negative, got %d", k)
	}

	n := boxes.Shape()[0]
	if k > n {
		k = n
	}
	if k == 0 {
		return emptyBoxes(), emptyScores(), nil
	}

	order, err := utils.ArgSortDescending(scores)
	if err != nil {
		return nil, nil, err
	}
	top := order[:k]

	topBoxes, err := utils.SelectRows2D(boxes, top)
	if err != nil {
		return nil, nil, err
	}
	topScores, err := utils.TensorByIndices(scores, top)
	if err != nil {
		return nil, nil, err
	}

	return topBoxes, topScores, nil
}

// GenerateProposals runs the full reduction from per-anchor predictions to
// the final proposal set: boundary filter, box decoding, degenerate-box
// filter, score top-k, then greedy NMS. It returns (M, 4) boxes and (M,)
// scores in acceptance order, bounded by both top-N settings. Every stage
// may legitimately shrink the set to empty; that is a normal result, not an
// error.
func GenerateProposals(anchors, objectness, deltas *tensor.Dense, imgShape [2]int, allowedBorder int, cfg ProposalConfig) (*tensor.Dense, *tensor.Dense, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, nil, err
	}

	anchorsIn, scoresIn, deltasIn, err := FilterOutsideAnchors(anchors, objectness, deltas, imgShape, allowedBorder)
	if err != nil {
		return nil, nil, err
	}
	if anchorsIn.Shape()[0] == 0 {
		return emptyBoxes(), emptyScores(), nil
	}

	decoded, err := DecodeBoxes(anchorsIn, deltasIn, cfg.Variances)
	if err != nil {
		return nil, nil, err
	}

	boxes, scores, err := FilterZeroArea(decoded, scoresIn)
	if err != nil {
		return nil, nil, err
	}
	if boxes.Shape()[0] == 0 {
		return boxes, scores, nil
	}

	boxes, scores, err = TopKByScore(boxes, scores, min(cfg.PreNMSTopN, boxes.Shape()[0]))
	if err != nil {
		return nil, nil, err
	}
	if boxes.Shape()[0] == 0 {
		return boxes, scores, nil
	}

	scoresCol := scores.Clone().(*tensor.Dense)
	err = scoresCol.Reshape(scores.Shape()[0], 1)
	if err != nil {
		return nil, nil, err
	}
	dets, err := utils.HStack([]*tensor.Dense{boxes, scoresCol})
	if err != nil {
		return nil, nil, err
	}

	keep, err := NMS(dets, cfg.NMSThreshold, cfg.PostNMSTopN)
	if err != nil {
		return nil, nil, err
	}
	if len(keep) == 0 {
		return emptyBoxes(), emptyScores(), nil
	}

	outBoxes, err := utils.SelectRows2D(boxes, keep)
	if err != nil {
		return nil, nil, err
	}
	outScores, err := utils.TensorByIndices(scores, keep)
	if err != nil {
		return nil, nil, err
	}

	return outBoxes, outScores, nil
}

func checkProposalInputs(anchors, scores, deltas *tensor.Dense) error {
	aShape := anchors.Shape()
	if len(aShape) != 2 || aShape[1] != 4 {
		return errors.Errorf("expected (N, 4) anchors, got shape %v", aShape)
	}
	dShape := deltas.Shape()
	if len(dShape) != 2 || dShape[1] != 4 {
		return errors.Errorf("expected (N, 4) deltas, got shape %v", dShape)
	}
	sShape := scores.Shape()
	if len(sShape) != 1 {
		return errors.Errorf("expected (N,) scores, got shape %v", sShape)
	}
	if aShape[0] != sShape[0] || aShape[0] != dShape[0] {
		return errors.Errorf("row count mismatch: %d anchors, %d scores, %d deltas", aShape[0], sShape[0], dShape[0])
	}
	return nil
}

func checkBoxScorePair(boxes, scores *tensor.Dense) error {
	bShape := boxes.Shape()
	if len(bShape) != 2 || bShape[1] != 4 {
		return errors.Errorf("expected (N, 4) boxes, got shape %v", bShape)
	}
	sShape := scores.Shape()
	if len(sShape) != 1 {
		return errors.Errorf("expected (N,) scores, got shape %v", sShape)
	}
	if bShape[0] != sShape[0] {
		return errors.Errorf("row count mismatch: %d boxes, %d scores", bShape[0], sShape[0])
	}
	return nil
}

func emptyBoxes() *tensor.Dense {
	return tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(0, 4))
}

func emptyScores() *tensor.Dense {
	return tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(0))
}
