package processors

import "errors"

var (
	ErrUnsupportedKind = errors.New("unsupported policy kind")
	ErrProbeFailed     = errors.New("media probe failed")
)
