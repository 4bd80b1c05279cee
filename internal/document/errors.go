package document

import "errors"

var (
	// ErrMalformed is returned when the input is not a well-formed document.
	ErrMalformed = errors.New("malformed document")
	// ErrTrailingData is returned when a single-value document is followed by more data.
	ErrTrailingData = errors.New("unexpected data after document")
	// ErrTooDeep is returned when containers nest deeper than the decode limit.
	ErrTooDeep = errors.New("document nesting exceeds the decode limit")
	// ErrTooLarge is returned when YAML aliases expand past the node limit.
	ErrTooLarge = errors.New("document expands beyond the node limit")
	// ErrUnsupportedFormat is returned for unknown format names and media types.
	ErrUnsupportedFormat = errors.New("unsupported document format")
)
