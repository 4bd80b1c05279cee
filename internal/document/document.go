package document

import (
	"fmt"
	"io"

	"github.com/eugenenazirov/keyflat/internal/flatten"
)

// DecodeOption configures Decode.
type DecodeOption func(*decodeConfig)

type decodeConfig struct {
	maxDepth int
	maxNodes int
}

// WithMaxNesting bounds how deeply objects and arrays may nest while
// decoding. Zero or a negative value disables the bound.
func WithMaxNesting(depth int) DecodeOption {
	return func(cfg *decodeConfig) {
		cfg.maxDepth = depth
	}
}

// WithMaxNodes bounds the size of a YAML document after alias expansion,
// counting every key, value and container. Zero or a negative value
// disables the bound. JSON has no aliases and ignores it.
func WithMaxNodes(n int) DecodeOption {
	return func(cfg *decodeConfig) {
		cfg.maxNodes = n
	}
}

// EncodeOptions controls Encode output.
type EncodeOptions struct {
	// Pretty indents JSON output and sets a two-space indent for YAML.
	Pretty bool
}

// Decode reads a single document from r. Objects and mappings decode to
// *flatten.Object in document order, arrays to []any. JSON numbers decode
// to json.Number so no precision is lost.
func Decode(r io.Reader, format Format, opts ...DecodeOption) (any, error) {
	var cfg decodeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	switch format {
	case FormatJSON:
		return decodeJSON(r, cfg.maxDepth)
	case FormatYAML:
		return decodeYAML(r, cfg.maxDepth, cfg.maxNodes)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// Encode writes obj to w in the given format, keeping key order.
func Encode(w io.Writer, format Format, obj *flatten.Object, opts EncodeOptions) error {
	switch format {
	case FormatJSON:
		return encodeJSON(w, obj, opts)
	case FormatYAML:
		return encodeYAML(w, obj, opts)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
