package utils

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// ImageToOpenCV converts the raw image into OpenCV Matrix
func ImageToOpenCV(bImage []byte) (*gocv.Mat, error) {
	dstMat := gocv.Mat{}
	srcMat, err := gocv.IMDecode(bImage, gocv.IMReadUnchanged)
	if err != nil {
		return &gocv.Mat{}, err
	}

	// Add the rows, columns, and number of channel to the dimension
	dimension := []int{}
	dimension = append(dimension, srcMat.Size()...)
	dimension = append(dimension, srcMat.Channels())

	if len(dimension) < 3 {
		return &dstMat, errors.Errorf("invalid number of dimension: %d", len(dimension))
	}

	if dimension[2] == 4 { // RGBA
		gocv.CvtColor(srcMat, &dstMat, gocv.ColorBGRAToBGR)
	} else if dimension[2] == 1 { // Grayscale
		gocv.CvtColor(srcMat, &dstMat, gocv.ColorGrayToBGR)
	} else {
		dstMat = srcMat
	}
	return &dstMat, nil
}

// DrawProposals draws the first topN boxes onto img in place. Boxes are
// (x1, y1, x2, y2) corner rows, already clipped to the image bounds.
func DrawProposals(img *gocv.Mat, boxes *tensor.Dense, topN int, clr color.RGBA, thickness int) error {
	shape := boxes.Shape()
	if len(shape) != 2 || shape[1] != 4 {
		return errors.Errorf("expected (N, 4) boxes, got shape %v", shape)
	}

	n := shape[0]
	if topN < 0 || topN > n {
		topN = n
	}

	vals := boxes.Float32s()
	for i := range topN {
		rect := image.Rect(int(vals[i*4]), int(vals[i*4+1]), int(vals[i*4+2]), int(vals[i*4+3]))
		gocv.Rectangle(img, rect, clr, thickness)
	}

	return nil
}
