package qcp

import "errors"

var (
	errMismatchedLengths = errors.New("qcp: moved, target, and weights must have equal length")
	errEmptyInput        = errors.New("qcp: moved and target must contain at least one point")
	errZeroTotalWeight   = errors.New("qcp: total weight must be > 0")
)
