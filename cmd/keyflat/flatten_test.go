package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eugenenazirov/keyflat/internal/document"
)

func TestRunFlatten(t *testing.T) {
	tests := []struct {
		name  string
		input string
		opts  flattenOptions
		want  string
	}{
		{
			name:  "JSONDefaults",
			input: `{"b":{"y":1,"x":[1,{"z":2}]},"a":null,"e":{}}`,
			opts:  flattenOptions{maxDepth: 8},
			want:  "{\"b.y\":1,\"b.x\":[1,{\"z\":2}],\"a\":null}\n",
		},
		{
			name:  "Prefix",
			input: `{"a":{"b":"c"}}`,
			opts:  flattenOptions{prefix: "root"},
			want:  "{\"root.a.b\":\"c\"}\n",
		},
		{
			name:  "YAMLInputByFlag",
			input: "server:\n  port: 8080\n  tls: false\n",
			opts:  flattenOptions{format: "yaml"},
			want:  "{\"server.port\":8080,\"server.tls\":false}\n",
		},
		{
			name:  "YAMLInputByExtension",
			input: "a:\n  b: 1\n",
			opts:  flattenOptions{path: "settings.yml"},
			want:  "{\"a.b\":1}\n",
		},
		{
			name:  "YAMLOutput",
			input: `{"a":{"b":1.5},"c":"d"}`,
			opts:  flattenOptions{output: "yaml"},
			want:  "a.b: 1.5\nc: d\n",
		},
		{
			name:  "PrettyJSON",
			input: `{"a":{"b":1}}`,
			opts:  flattenOptions{pretty: true},
			want:  "{\n  \"a.b\": 1\n}\n",
		},
		{
			name:  "NonMappingInput",
			input: `[1,2]`,
			want:  "{}\n",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			require.NoError(t, runFlatten(strings.NewReader(tc.input), &out, tc.opts))
			assert.Equal(t, tc.want, out.String())
		})
	}
}

func TestRunFlattenErrors(t *testing.T) {
	t.Run("malformed input", func(t *testing.T) {
		err := runFlatten(strings.NewReader(`{"a":`), &bytes.Buffer{}, flattenOptions{})
		assert.ErrorIs(t, err, document.ErrMalformed)
	})

	t.Run("too deep while decoding", func(t *testing.T) {
		err := runFlatten(strings.NewReader(`{"a":{"b":{"c":1}}}`), &bytes.Buffer{}, flattenOptions{maxDepth: 2})
		assert.ErrorIs(t, err, document.ErrTooDeep)
	})

	t.Run("alias expansion", func(t *testing.T) {
		var doc strings.Builder
		doc.WriteString("l0: &l0 {v: 1}\n")
		for i := 1; i <= 24; i++ {
			fmt.Fprintf(&doc, "l%d: &l%d {a: *l%d, b: *l%d}\n", i, i, i-1, i-1)
		}

		var out bytes.Buffer
		err := runFlatten(strings.NewReader(doc.String()), &out, flattenOptions{format: "yaml", maxEntries: 10_000})
		assert.ErrorIs(t, err, document.ErrTooLarge)
		assert.Zero(t, out.Len())
	})

	t.Run("unknown format", func(t *testing.T) {
		err := runFlatten(strings.NewReader(`{}`), &bytes.Buffer{}, flattenOptions{format: "toml"})
		assert.ErrorIs(t, err, document.ErrUnsupportedFormat)
	})
}

func TestFlattenFileReadsPathOrStdin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a:\n  b: [x]\n"), 0o600))

	var out bytes.Buffer
	require.NoError(t, flattenFile(flattenOptions{path: path}, strings.NewReader("ignored"), &out))
	assert.Equal(t, "{\"a.b\":[\"x\"]}\n", out.String())

	out.Reset()
	require.NoError(t, flattenFile(flattenOptions{path: "-"}, strings.NewReader(`{"k":{"v":true}}`), &out))
	assert.Equal(t, "{\"k.v\":true}\n", out.String())

	err := flattenFile(flattenOptions{path: filepath.Join(t.TempDir(), "missing.json")}, nil, &out)
	assert.Error(t, err)
}
