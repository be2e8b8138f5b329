package go_rpn_pipeline

import (
	"github.com/okieraised/go-rpn-pipeline/config"
	"github.com/okieraised/go-rpn-pipeline/modules"
	gotritonclient "github.com/okieraised/go-triton-client"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

type ProposalExtractionResult struct {
	Proposals     *tensor.Dense `json:"proposals"`
	Scores        *tensor.Dense `json:"scores"`
	ProposalCount int           `json:"proposal_count"`
}

type ProposalExtractPipeline struct {
	tritonClient   *gotritonclient.TritonGRPCClient
	regionProposal *modules.RegionProposalClient
}

// NewProposalExtractPipeline initializes a proposal extraction pipeline with
// the default parameters.
func NewProposalExtractPipeline(tritonClient *gotritonclient.TritonGRPCClient, logger *zap.Logger) (*ProposalExtractPipeline, error) {
	return NewProposalExtractPipelineWithParams(tritonClient, config.DefaultRegionProposalParams, logger)
}

func NewProposalExtractPipelineWithParams(tritonClient *gotritonclient.TritonGRPCClient, params *config.RegionProposalParams, logger *zap.Logger) (*ProposalExtractPipeline, error) {
	client := &ProposalExtractPipeline{}
	client.tritonClient = tritonClient

	regionProposal, err := modules.NewRegionProposalClient(tritonClient, params, logger)
	if err != nil {
		return client, err
	}
	client.regionProposal = regionProposal

	return client, nil
}

// ExtractProposals runs the extractor on img and returns the proposal set.
// An image yielding zero proposals is a normal, non-error result.
func (c *ProposalExtractPipeline) ExtractProposals(img gocv.Mat) (*ProposalExtractionResult, error) {
	resp := &ProposalExtractionResult{}

	proposals, scores, err := c.regionProposal.Infer(img)
	if err != nil {
		return resp, err
	}
	resp.Proposals = proposals
	resp.Scores = scores
	resp.ProposalCount = proposals.Shape()[0]

	return resp, nil
}
