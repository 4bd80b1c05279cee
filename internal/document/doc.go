// Package document decodes JSON and YAML into order-preserving mappings and
// encodes flat results back out. JSON is read token by token through
// github.com/goccy/go-json; YAML goes through the gopkg.in/yaml.v3 node tree,
// so key order survives in both directions.
package document
