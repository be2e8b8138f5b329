package processing

import "github.com/pkg/errors"

var (
	// ErrInvalidAnchorConfig reports reference or grid geometry that cannot
	// produce usable anchors.
	ErrInvalidAnchorConfig = errors.New("invalid anchor configuration")

	// ErrInvalidProposalConfig reports proposal selection settings that are
	// out of range. Both errors surface at configuration time, before any
	// image is processed.
	ErrInvalidProposalConfig = errors.New("invalid proposal configuration")
)
