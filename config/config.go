package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type RegionProposalParams struct {
	ModelName     string        `json:"model_name" yaml:"model_name"`
	Timeout       time.Duration `json:"timeout" yaml:"timeout"`
	BaseSize      int           `json:"base_size" yaml:"base_size"`
	Ratios        []float32     `json:"ratios" yaml:"ratios"`
	Scales        []float32     `json:"scales" yaml:"scales"`
	AnchorStride  int           `json:"anchor_stride" yaml:"anchor_stride"`
	AllowedBorder int           `json:"allowed_border" yaml:"allowed_border"`
	PreNMSTopN    int           `json:"pre_nms_top_n" yaml:"pre_nms_top_n"`
	PostNMSTopN   int           `json:"post_nms_top_n" yaml:"post_nms_top_n"`
	NMSThreshold  float32       `json:"nms_threshold" yaml:"nms_threshold"`
	Variances     []float32     `json:"variances" yaml:"variances"`
}

var DefaultRegionProposalParams = &RegionProposalParams{
	ModelName:     "region_proposal",
	Timeout:       20 * time.Second,
	BaseSize:      256,
	Ratios:        []float32{0.5, 1, 2},
	Scales:        []float32{0.125, 0.25, 0.5, 1, 2},
	AnchorStride:  16,
	AllowedBorder: 0,
	PreNMSTopN:    12000,
	PostNMSTopN:   2000,
	NMSThreshold:  0.7,
	Variances:     []float32{1, 1},
}

func NewRegionProposalParams(modelName string, timeout time.Duration, baseSize int, ratios, scales []float32, anchorStride, allowedBorder, preNMSTopN, postNMSTopN int, nmsThreshold float32, variances []float32) *RegionProposalParams {
	return &RegionProposalParams{
		ModelName:     modelName,
		Timeout:       timeout,
		BaseSize:      baseSize,
		Ratios:        ratios,
		Scales:        scales,
		AnchorStride:  anchorStride,
		AllowedBorder: allowedBorder,
		PreNMSTopN:    preNMSTopN,
		PostNMSTopN:   postNMSTopN,
		NMSThreshold:  nmsThreshold,
		Variances:     variances,
	}
}

// RegionProposalParamsFromYAML reads parameters from a YAML file. Keys
// missing from the file keep their default values.
func RegionProposalParamsFromYAML(path string) (*RegionProposalParams, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read params file %s", path)
	}

	params := *DefaultRegionProposalParams
	err = yaml.Unmarshal(content, &params)
	if err != nil {
		return nil, errors.Wrapf(err, "parse params file %s", path)
	}

	return &params, nil
}
