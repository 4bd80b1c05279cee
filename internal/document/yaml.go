package document

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/keyflat/internal/flatten"
)

const mergeTag = "!!merge"

type yamlDecoder struct {
	maxDepth int
	// anchors maps anchored container nodes to their decoded value so that
	// aliases share it instead of producing copies.
	anchors map[*yaml.Node]any
}

func decodeYAML(r io.Reader, maxDepth, maxNodes int) (any, error) {
	dec := yaml.NewDecoder(r)

	var doc yaml.Node
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, malformed(err)
	}

	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, ErrTrailingData
	}

	if maxNodes > 0 {
		if n := expandedSize(&doc, make(map[*yaml.Node]int), maxNodes); n > maxNodes {
			return nil, fmt.Errorf("%w: aliases expand past %d nodes", ErrTooLarge, maxNodes)
		}
	}

	d := &yamlDecoder{maxDepth: maxDepth, anchors: make(map[*yaml.Node]any)}
	return d.node(&doc, 1)
}

// expandedSize counts the nodes under n as if every alias were replaced by a
// copy of its anchor. Counting stops once limit is exceeded. An alias back
// into an enclosing node counts once; the flattener rejects such cycles.
func expandedSize(n *yaml.Node, memo map[*yaml.Node]int, limit int) int {
	if n.Kind == yaml.AliasNode {
		if n.Alias == nil {
			return 1
		}
		return expandedSize(n.Alias, memo, limit)
	}
	if size, ok := memo[n]; ok {
		if size < 0 {
			return 1
		}
		return size
	}

	memo[n] = -1
	size := 1
	for _, child := range n.Content {
		size += expandedSize(child, memo, limit)
		if size > limit {
			size = limit + 1
			break
		}
	}
	memo[n] = size
	return size
}

func (d *yamlDecoder) node(n *yaml.Node, depth int) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return d.node(n.Content[0], depth)
	case yaml.AliasNode:
		if n.Alias == nil {
			return nil, fmt.Errorf("%w: unresolved alias %q", ErrMalformed, n.Value)
		}
		return d.node(n.Alias, depth)
	case yaml.MappingNode:
		if v, ok := d.anchors[n]; ok {
			return v, nil
		}
		if err := d.checkDepth(depth); err != nil {
			return nil, err
		}
		return d.mapping(n, depth)
	case yaml.SequenceNode:
		if v, ok := d.anchors[n]; ok {
			return v, nil
		}
		if err := d.checkDepth(depth); err != nil {
			return nil, err
		}
		return d.sequence(n, depth)
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, n.Line, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%w: unknown node kind %d at line %d", ErrMalformed, n.Kind, n.Line)
	}
}

func (d *yamlDecoder) checkDepth(depth int) error {
	if d.maxDepth > 0 && depth > d.maxDepth {
		return fmt.Errorf("%w (limit %d)", ErrTooDeep, d.maxDepth)
	}
	return nil
}

// mapping decodes a mapping node. Merge keys are applied first so that
// explicit keys override merged ones regardless of where "<<" appears.
func (d *yamlDecoder) mapping(n *yaml.Node, depth int) (*flatten.Object, error) {
	obj := flatten.NewObjectCap(len(n.Content) / 2)
	if n.Anchor != "" {
		d.anchors[n] = obj
	}

	var merges []*yaml.Node
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Kind == yaml.ScalarNode && n.Content[i].ShortTag() == mergeTag {
			merges = append(merges, n.Content[i+1])
		}
	}
	for _, m := range merges {
		if err := d.merge(obj, m, depth); err != nil {
			return nil, err
		}
	}

	for i := 0; i+1 < len(n.Content); i += 2 {
		keyNode, valueNode := n.Content[i], n.Content[i+1]
		if keyNode.Kind == yaml.ScalarNode && keyNode.ShortTag() == mergeTag {
			continue
		}
		key, err := mappingKey(keyNode)
		if err != nil {
			return nil, err
		}
		v, err := d.node(valueNode, depth+1)
		if err != nil {
			return nil, err
		}
		obj.Set(key, v)
	}
	return obj, nil
}

// merge copies entries from a "<<" source into obj without replacing keys
// an earlier source already provided.
func (d *yamlDecoder) merge(obj *flatten.Object, src *yaml.Node, depth int) error {
	target := src
	if target.Kind == yaml.AliasNode && target.Alias != nil {
		target = target.Alias
	}

	if target.Kind == yaml.SequenceNode {
		for _, item := range target.Content {
			if err := d.merge(obj, item, depth); err != nil {
				return err
			}
		}
		return nil
	}
	if target.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: line %d: merge value must be a mapping", ErrMalformed, src.Line)
	}

	v, err := d.node(target, depth+1)
	if err != nil {
		return err
	}
	merged, ok := v.(*flatten.Object)
	if !ok {
		return fmt.Errorf("%w: line %d: merge value must be a mapping", ErrMalformed, src.Line)
	}
	merged.Range(func(k string, val any) bool {
		if !obj.Has(k) {
			obj.Set(k, val)
		}
		return true
	})
	return nil
}

func (d *yamlDecoder) sequence(n *yaml.Node, depth int) ([]any, error) {
	arr := make([]any, len(n.Content))
	if n.Anchor != "" {
		d.anchors[n] = arr
	}
	for i, item := range n.Content {
		v, err := d.node(item, depth+1)
		if err != nil {
			return nil, err
		}
		arr[i] = v
	}
	return arr, nil
}

// mappingKey renders a key node as a string. Scalar keys use their source
// text so that 1, true and null keep their spelling.
func mappingKey(n *yaml.Node) (string, error) {
	if n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	if n.Kind != yaml.ScalarNode {
		return "", fmt.Errorf("%w: line %d: mapping keys must be scalars", ErrMalformed, n.Line)
	}
	return n.Value, nil
}

func encodeYAML(w io.Writer, obj *flatten.Object, opts EncodeOptions) error {
	root, err := yamlNode(obj)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	if opts.Pretty {
		enc.SetIndent(2)
	}
	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("encode YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close YAML encoder: %w", err)
	}
	return nil
}

// yamlNode builds a node tree that keeps Object key order and renders
// json.Number values as plain numbers.
func yamlNode(v any) (*yaml.Node, error) {
	switch t := v.(type) {
	case *flatten.Object:
		if t == nil {
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
		}
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		var err error
		t.Range(func(k string, val any) bool {
			var child *yaml.Node
			child, err = yamlNode(val)
			if err != nil {
				return false
			}
			n.Content = append(n.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
				child,
			)
			return true
		})
		if err != nil {
			return nil, err
		}
		return n, nil
	case []any:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range t {
			child, err := yamlNode(item)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, child)
		}
		return n, nil
	case json.Number:
		tag := "!!int"
		if strings.ContainsAny(string(t), ".eE") {
			tag = "!!float"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: string(t)}, nil
	default:
		n := &yaml.Node{}
		if err := n.Encode(v); err != nil {
			return nil, fmt.Errorf("encode YAML value: %w", err)
		}
		return n, nil
	}
}
