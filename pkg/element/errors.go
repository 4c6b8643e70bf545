package element

import "github.com/pkg/errors"

// Configuration errors. They are returned synchronously by the
// operation that triggered them and are never recovered internally.
var (
	ErrUnknownType      = errors.New("unknown element type")
	ErrDuplicate        = errors.New("element already registered")
	ErrAmbiguousContent = errors.New("ambiguous default content slot")
	ErrMissingContent   = errors.New("missing content slot")
	ErrInvalid          = errors.New("invalid element")
)
