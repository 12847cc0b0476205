package service

import "errors"

// Analysis failure taxonomy. Wrapped with context at the point of failure;
// callers branch with errors.Is.
var (
	// ErrInsufficientData: window shorter than the calibrated minimum, or
	// bar dates out of order / duplicated.
	ErrInsufficientData = errors.New("insufficient data for analysis")

	// ErrInvalidBar: non-positive price, negative volume, or high < low.
	ErrInvalidBar = errors.New("invalid bar in window")

	// ErrMetadataUnavailable: instrument metadata could not be loaded. The
	// pipeline degrades to an unadjusted score rather than failing.
	ErrMetadataUnavailable = errors.New("instrument metadata unavailable")
)
