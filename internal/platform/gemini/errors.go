package gemini

import "errors"

var (
	// ErrEmptyPath is returned when text generation is requested with no
	// ancestor path.
	ErrEmptyPath = errors.New("ancestor path cannot be empty")

	// ErrNilTreeConfig is returned when generation is requested without a
	// tree generation config.
	ErrNilTreeConfig = errors.New("tree generation config cannot be nil")
)
