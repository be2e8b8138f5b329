package processing

import (
	"github.com/chewxy/math32"
	"github.com/okieraised/go-rpn-pipeline/utils"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

type AnchorConfig struct {
	BaseSize      int
	Ratios        []float32
	Scales        []float32
	AllowedBorder int
}

// GenerateAnchorReference builds the (len(Ratios)*len(Scales), 4) reference
// anchor set centered on the origin. Row k holds ratio k/len(Scales) at
// scale k%len(Scales), so the ratio varies slowest and the scale fastest.
func GenerateAnchorReference(cfg AnchorConfig) (*tensor.Dense, error) {
	if cfg.BaseSize <= 0 {
		return nil, errors.Wrapf(ErrInvalidAnchorConfig, "base size must be positive, got %d", cfg.BaseSize)
	}
	if len(cfg.Ratios) == 0 || len(cfg.Scales) == 0 {
		return nil, errors.Wrap(ErrInvalidAnchorConfig, "ratios and scales must be non-empty")
	}
	for _, ratio := range cfg.Ratios {
		if ratio <= 0 {
			return nil, errors.Wrapf(ErrInvalidAnchorConfig, "aspect ratio must be positive, got %f", ratio)
		}
	}
	for _, scale := range cfg.Scales {
		if scale <= 0 {
			return nil, errors.Wrapf(ErrInvalidAnchorConfig, "scale must be positive, got %f", scale)
		}
	}

	base := float32(cfg.BaseSize)
	blocks := make([]*tensor.Dense, 0, len(cfg.Ratios))
	for _, ratio := range cfg.Ratios {
		sqrtRatio := math32.Sqrt(ratio)
		ws := make([]float32, len(cfg.Scales))
		hs := make([]float32, len(cfg.Scales))
		for i, scale := range cfg.Scales {
			ws[i] = scale / sqrtRatio * base
			hs[i] = scale * sqrtRatio * base
		}
		wsT := tensor.New(
			tensor.Of(tensor.Float32),
			tensor.WithShape(1, len(ws)),
			tensor.WithBacking(ws),
		)
		hsT := tensor.New(
			tensor.Of(tensor.Float32),
			tensor.WithShape(1, len(hs)),
			tensor.WithBacking(hs),
		)
		block, err := mkanchors(wsT, hsT, 0, 0)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}

	anchors, err := utils.VStack(blocks)
	if err != nil {
		return nil, err
	}

	err = validateAnchorSpans(anchors, cfg.BaseSize)
	if err != nil {
		return nil, err
	}

	return anchors, nil
}

// validateAnchorSpans rejects reference sets whose integer corner spans
// collapse to zero, which happens when the base size is too small for a
// scale/ratio pair.
func validateAnchorSpans(anchors *tensor.Dense, baseSize int) error {
	vals := anchors.Float32s()
	for i := range anchors.Shape()[0] {
		x1, y1, x2, y2 := vals[i*4], vals[i*4+1], vals[i*4+2], vals[i*4+3]
		if int(x2-x1) == 0 || int(y2-y1) == 0 {
			return errors.Wrapf(ErrInvalidAnchorConfig, "base size %d is too small for the configured ratios and scales", baseSize)
		}
	}
	return nil
}

func mkanchors(ws, hs *tensor.Dense, centerX, centerY float32) (*tensor.Dense, error) {

	wsShape := ws.Shape()
	err := ws.Reshape(wsShape[1], 1)
	if err != nil {
		return nil, err
	}

	hsShape := hs.Shape()
	err = hs.Reshape(hsShape[1], 1)
	if err != nil {
		return nil, err
	}
	ws, err = ws.SubScalar(float32(1.0), true)
	if err != nil {
		return nil, err
	}
	ws, err = ws.MulScalar(float32(0.5), true)
	if err != nil {
		return nil, err
	}
	anchor0, err := ws.SubScalar(centerX, false)
	if err != nil {
		return nil, err
	}
	anchor2, err := ws.AddScalar(centerX, false)
	if err != nil {
		return nil, err
	}
	hs, err = hs.SubScalar(float32(1.0), true)
	if err != nil {
		return nil, err
	}
	hs, err = hs.MulScalar(float32(0.5), true)
	if err != nil {
		return nil, err
	}
	anchor1, err := hs.SubScalar(centerY, false)
	if err != nil {
		return nil, err
	}
	anchor3, err := hs.AddScalar(centerY, false)
	if err != nil {
		return nil, err
	}

	anchors, err := anchor0.Hstack(anchor1, anchor2, anchor3)
	if err != nil {
		return nil, err
	}

	return anchors, nil
}
