package domain

import "errors"

var (
	ErrInvalidDimension    = errors.New("opinion dimension must be at least 2")
	ErrNegativeMass        = errors.New("belief masses must be non-negative")
	ErrBeliefSumExceeded   = errors.New("belief masses sum to more than 1")
	ErrInvalidBaseRate     = errors.New("base rate must be non-negative and sum to 1")
	ErrDimensionMismatch   = errors.New("opinion dimensions do not match")
	ErrNotBinomial         = errors.New("operation requires a binomial opinion")
	ErrInvalidWeights      = errors.New("weights must be non-negative and sum to 1")
	ErrInvalidEvidence     = errors.New("evidence must be non-negative")
	ErrInvalidPrior        = errors.New("non-informative prior weight must be positive")
	ErrNonFinite           = errors.New("value is NaN or infinite")
	ErrDegenerateOperation = errors.New("operation is undefined for these operands")
)
