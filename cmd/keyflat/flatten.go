package main

import (
	"fmt"
	"io"
	"os"

	"github.com/eugenenazirov/keyflat/internal/document"
	"github.com/eugenenazirov/keyflat/internal/flatten"
)

type flattenOptions struct {
	path       string
	format     string
	output     string
	prefix     string
	pretty     bool
	maxDepth   int
	maxEntries int
}

// flattenFile resolves the input named by opts.path, falling back to stdin,
// and writes the flattened document to stdout.
func flattenFile(opts flattenOptions, stdin io.Reader, stdout io.Writer) error {
	in := stdin
	if opts.path != "" && opts.path != "-" {
		f, err := os.Open(opts.path)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}
	return runFlatten(in, stdout, opts)
}

func runFlatten(in io.Reader, out io.Writer, opts flattenOptions) error {
	inFormat := document.FormatJSON
	switch {
	case opts.format != "":
		f, err := document.ParseFormat(opts.format)
		if err != nil {
			return err
		}
		inFormat = f
	case opts.path != "":
		if f, ok := document.FormatFromPath(opts.path); ok {
			inFormat = f
		}
	}

	outFormat := document.FormatJSON
	if opts.output != "" {
		f, err := document.ParseFormat(opts.output)
		if err != nil {
			return err
		}
		outFormat = f
	}

	input, err := document.Decode(in, inFormat,
		document.WithMaxNesting(opts.maxDepth),
		document.WithMaxNodes(opts.maxEntries),
	)
	if err != nil {
		return fmt.Errorf("decode %s input: %w", inFormat, err)
	}

	flattener := flatten.New(
		flatten.WithMaxDepth(opts.maxDepth),
		flatten.WithMaxEntries(opts.maxEntries),
		flatten.WithCycleDetection(true),
	)
	result, err := flattener.Flatten(input, opts.prefix, nil)
	if err != nil {
		return fmt.Errorf("flatten: %w", err)
	}

	if err := document.Encode(out, outFormat, result, document.EncodeOptions{Pretty: opts.pretty}); err != nil {
		return fmt.Errorf("encode %s output: %w", outFormat, err)
	}
	return nil
}
