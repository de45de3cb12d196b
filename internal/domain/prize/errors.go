package prize

import "errors"

var (
	ErrEmptyCatalog   = errors.New("catalog has no prizes")
	ErrInvalidPrize   = errors.New("invalid prize")
	ErrDuplicatePrize = errors.New("duplicate prize id")
	ErrMixedWeights   = errors.New("catalog mixes weight and probability")
	ErrParseCatalog   = errors.New("parse catalog")
)
