package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/eugenenazirov/keyflat/internal/flatten"
)

type jsonDecoder struct {
	dec      *json.Decoder
	maxDepth int
}

func decodeJSON(r io.Reader, maxDepth int) (any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read JSON: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty JSON document", ErrMalformed)
	}

	// Token skips separators without checking them and accepts any run of
	// number characters, so the whole input is validated up front.
	if !json.Valid(data) {
		if end := firstValueEnd(data); end < len(data) && json.Valid(data[:end]) {
			return nil, ErrTrailingData
		}
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformed)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	d := &jsonDecoder{dec: dec, maxDepth: maxDepth}

	tok, err := d.dec.Token()
	if err != nil {
		return nil, malformed(err)
	}
	v, err := d.value(tok, 1)
	if err != nil {
		return nil, err
	}

	if _, err := d.dec.Token(); !errors.Is(err, io.EOF) {
		return nil, ErrTrailingData
	}
	return v, nil
}

// firstValueEnd returns the offset just past the first JSON value in data,
// which starts with a non-space byte. It only tracks strings and brackets;
// the caller validates the slice it delimits.
func firstValueEnd(data []byte) int {
	switch data[0] {
	case '{', '[', '"':
	default:
		if i := bytes.IndexAny(data, " \t\r\n{[\""); i > 0 {
			return i
		}
		return len(data)
	}

	depth := 0
	inString, escaped := false, false
	for i, c := range data {
		switch {
		case inString:
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
				if depth == 0 {
					return i + 1
				}
			}
		case c == '"':
			inString = true
		case c == '{' || c == '[':
			depth++
		case c == '}' || c == ']':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(data)
}

func (d *jsonDecoder) value(tok json.Token, depth int) (any, error) {
	switch t := tok.(type) {
	case json.Delim:
		if d.maxDepth > 0 && depth > d.maxDepth {
			return nil, fmt.Errorf("%w (limit %d)", ErrTooDeep, d.maxDepth)
		}
		switch t {
		case '{':
			return d.object(depth)
		case '[':
			return d.array(depth)
		default:
			return nil, fmt.Errorf("%w: unexpected %q", ErrMalformed, rune(t))
		}
	case json.Number:
		return t, nil
	case float64:
		return json.Number(strconv.FormatFloat(t, 'g', -1, 64)), nil
	case string, bool, nil:
		return t, nil
	default:
		return nil, fmt.Errorf("%w: unexpected token %v", ErrMalformed, tok)
	}
}

func (d *jsonDecoder) object(depth int) (*flatten.Object, error) {
	obj := flatten.NewObject()
	for {
		tok, err := d.next()
		if err != nil {
			return nil, err
		}
		if delim, ok := tok.(json.Delim); ok && delim == '}' {
			return obj, nil
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: object key must be a string, got %v", ErrMalformed, tok)
		}

		tok, err = d.next()
		if err != nil {
			return nil, err
		}
		v, err := d.value(tok, depth+1)
		if err != nil {
			return nil, err
		}
		obj.Set(key, v)
	}
}

func (d *jsonDecoder) array(depth int) ([]any, error) {
	arr := []any{}
	for {
		tok, err := d.next()
		if err != nil {
			return nil, err
		}
		if delim, ok := tok.(json.Delim); ok && delim == ']' {
			return arr, nil
		}
		v, err := d.value(tok, depth+1)
		if err != nil {
			return nil, err
		}
		arr = append(arr, v)
	}
}

// next reads a token inside a container, where EOF is always an error.
func (d *jsonDecoder) next() (json.Token, error) {
	tok, err := d.dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, io.ErrUnexpectedEOF)
		}
		return nil, malformed(err)
	}
	return tok, nil
}

func malformed(err error) error {
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}

func encodeJSON(w io.Writer, obj *flatten.Object, opts EncodeOptions) error {
	data, err := obj.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}

	var buf bytes.Buffer
	if opts.Pretty {
		if err := json.Indent(&buf, data, "", "  "); err != nil {
			return fmt.Errorf("indent JSON: %w", err)
		}
	} else {
		buf.Write(data)
	}
	buf.WriteByte('\n')

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write JSON: %w", err)
	}
	return nil
}
