package modules

import (
	"time"

	"github.com/okieraised/go-rpn-pipeline/config"
	"github.com/okieraised/go-rpn-pipeline/processing"
	"github.com/okieraised/go-rpn-pipeline/rcnn"
	"github.com/okieraised/go-rpn-pipeline/utils"
	gotritonclient "github.com/okieraised/go-triton-client"
	"github.com/okieraised/go-triton-client/triton_proto"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

type RegionProposalClient struct {
	tritonClient  *gotritonclient.TritonGRPCClient
	ModelParams   *config.RegionProposalParams
	ModelConfig   *triton_proto.ModelConfigResponse
	logger        *zap.Logger
	anchorRef     *tensor.Dense
	numAnchors    int
	featStride    int
	allowedBorder int
	proposalCfg   processing.ProposalConfig
	pixelMeans    []float32
}

// NewRegionProposalClient validates cfg, builds the reference anchor set and
// fetches the model configuration from the Triton server. Configuration
// errors surface here, before any image is processed. A nil cfg selects the
// defaults and a nil logger disables logging.
func NewRegionProposalClient(tritonClient *gotritonclient.TritonGRPCClient, cfg *config.RegionProposalParams, logger *zap.Logger) (*RegionProposalClient, error) {
	if cfg == nil {
		cfg = config.DefaultRegionProposalParams
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := &RegionProposalClient{}
	client.ModelParams = cfg
	client.logger = logger

	anchorRef, err := processing.GenerateAnchorReference(processing.AnchorConfig{
		BaseSize:      cfg.BaseSize,
		Ratios:        cfg.Ratios,
		Scales:        cfg.Scales,
		AllowedBorder: cfg.AllowedBorder,
	})
	if err != nil {
		return nil, err
	}
	if cfg.AnchorStride <= 0 {
		return nil, errors.Wrapf(processing.ErrInvalidAnchorConfig, "anchor stride must be positive, got %d", cfg.AnchorStride)
	}
	client.anchorRef = anchorRef
	client.numAnchors = anchorRef.Shape()[0]
	client.featStride = cfg.AnchorStride
	client.allowedBorder = cfg.AllowedBorder

	client.proposalCfg = processing.ProposalConfig{
		PreNMSTopN:   cfg.PreNMSTopN,
		PostNMSTopN:  cfg.PostNMSTopN,
		NMSThreshold: cfg.NMSThreshold,
		Variances:    cfg.Variances,
	}
	err = client.proposalCfg.Validate()
	if err != nil {
		return nil, err
	}

	inferenceConfig, err := tritonClient.GetModelConfiguration(cfg.Timeout, cfg.ModelName, "")
	if err != nil {
		return nil, err
	}
	client.tritonClient = tritonClient
	client.ModelConfig = inferenceConfig

	client.pixelMeans = []float32{123.68, 116.78, 103.94}

	return client, nil
}

// preprocess converts the BGR image into a mean-subtracted RGB NCHW tensor.
// The extractor is fully convolutional, so the image keeps its native
// resolution.
func (c *RegionProposalClient) preprocess(img gocv.Mat) (*tensor.Dense, error) {
	imgShape := img.Size()
	if len(imgShape) != 2 {
		return nil, errors.Errorf("expected a 2D image, got %d dims", len(imgShape))
	}

	imgTensors := tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(1, 3, imgShape[0], imgShape[1]),
	)

	for z := range 3 {
		for y := range imgShape[0] {
			for x := range imgShape[1] {
				err := imgTensors.SetAt(float32(img.GetVecbAt(y, x)[2-z])-c.pixelMeans[z], 0, z, y, x)
				if err != nil {
					return nil, err
				}
			}
		}
	}

	return imgTensors, nil
}

// Infer runs the extractor on a single image and reduces its class scores
// and box deltas to the final proposal set. It returns (M, 4) proposal
// boxes and their (M,) objectness scores; an empty set is a normal result.
func (c *RegionProposalClient) Infer(img gocv.Mat) (*tensor.Dense, *tensor.Dense, error) {
	started := time.Now()

	imgShape := img.Size()
	imgTensors, err := c.preprocess(img)
	if err != nil {
		return nil, nil, err
	}

	modelRequest := &triton_proto.ModelInferRequest{
		ModelName: c.ModelParams.ModelName,
	}

	modelInputs := make([]*triton_proto.ModelInferRequest_InferInputTensor, 0)
	for _, inputCfg := range c.ModelConfig.Config.Input {
		modelInput := &triton_proto.ModelInferRequest_InferInputTensor{
			Name:     inputCfg.Name,
			Datatype: inputCfg.DataType.String()[5:],
			Shape:    []int64{1, 3, int64(imgShape[0]), int64(imgShape[1])},
			Contents: &triton_proto.InferTensorContents{
				Fp32Contents: imgTensors.Float32s(),
			},
		}
		modelInputs = append(modelInputs, modelInput)
	}
	modelRequest.Inputs = modelInputs

	inferResp, err := c.tritonClient.ModelGRPCInfer(c.ModelParams.Timeout, modelRequest)
	if err != nil {
		return nil, nil, err
	}

	var clsRaw, deltaRaw *tensor.Dense
	for idx, out := range inferResp.Outputs {
		outShape := make([]int, 0)
		for _, shape := range out.Shape {
			outShape = append(outShape, int(shape))
		}
		if len(outShape) != 4 || outShape[0] != 1 {
			return nil, nil, errors.Errorf("output %s must be (1, C, H, W), got shape %v", out.Name, outShape)
		}
		outTensors := tensor.New(
			tensor.Of(tensor.Float32),
			tensor.WithShape(outShape...),
			tensor.WithBacking(utils.BytesToT32[float32](inferResp.RawOutputContents[idx])),
		)

		switch outShape[1] {
		case 2 * c.numAnchors:
			clsRaw = outTensors
		case 4 * c.numAnchors:
			deltaRaw = outTensors
		default:
			return nil, nil, errors.Errorf("output %s has %d channels, expected %d or %d", out.Name, outShape[1], 2*c.numAnchors, 4*c.numAnchors)
		}
	}
	if clsRaw == nil || deltaRaw == nil {
		return nil, nil, errors.New("extractor must emit both class scores and box deltas")
	}

	height, width := deltaRaw.Shape()[2], deltaRaw.Shape()[3]
	if clsRaw.Shape()[2] != height || clsRaw.Shape()[3] != width {
		return nil, nil, errors.Errorf("score grid %dx%d does not match delta grid %dx%d", clsRaw.Shape()[2], clsRaw.Shape()[3], height, width)
	}

	cls := flattenHead(clsRaw, c.numAnchors, 2)
	deltas := flattenHead(deltaRaw, c.numAnchors, 4)

	anchors, err := rcnn.Anchors(height, width, c.featStride, c.anchorRef)
	if err != nil {
		return nil, nil, err
	}

	objectness, err := processing.SoftmaxObjectness(cls)
	if err != nil {
		return nil, nil, err
	}

	c.logger.Debug("feature grid",
		zap.Int("height", height),
		zap.Int("width", width),
		zap.Int("anchors", anchors.Shape()[0]),
	)

	proposals, scores, err := processing.GenerateProposals(anchors, objectness, deltas, [2]int{imgShape[0], imgShape[1]}, c.allowedBorder, c.proposalCfg)
	if err != nil {
		return nil, nil, err
	}

	c.logger.Debug("proposals generated",
		zap.Int("count", proposals.Shape()[0]),
		zap.Duration("elapsed", time.Since(started)),
	)

	return proposals, scores, nil
}

// flattenHead reorders a (1, numAnchors*cols, H, W) head output into
// (H*W*numAnchors, cols) rows, the same layout rcnn.Anchors emits.
func flattenHead(raw *tensor.Dense, numAnchors, cols int) *tensor.Dense {
	shape := raw.Shape()
	height, width := shape[2], shape[3]

	vals := raw.Float32s()
	out := make([]float32, height*width*numAnchors*cols)
	for y := range height {
		for x := range width {
			for a := range numAnchors {
				row := rcnn.AnchorIndex(y, x, a, width, numAnchors) * cols
				for col := range cols {
					out[row+col] = vals[((a*cols+col)*height+y)*width+x]
				}
			}
		}
	}

	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(height*width*numAnchors, cols),
		tensor.WithBacking(out),
	)
}
