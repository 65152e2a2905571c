// Package yaml reads YAML configuration files into the generic mappings the
// config package consumes.
package yaml

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/vk/taskgraph/internal/ctxlog"
	yamlv3 "gopkg.in/yaml.v3"
)

// Decoder is the YAML implementation of config.Decoder.
type Decoder struct{}

// NewDecoder creates a YAML decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Extensions implements config.Decoder.
func (d *Decoder) Extensions() []string {
	return []string{".yml", ".yaml"}
}

// DecodeFile implements config.Decoder.
func (d *Decoder) DecodeFile(ctx context.Context, path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return d.Decode(ctx, data, path)
}

// Decode parses a single YAML document. An empty document yields an empty
// mapping; a document whose root is not a mapping is an error.
func (d *Decoder) Decode(ctx context.Context, data []byte, filename string) (map[string]any, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Decoding YAML file.", "file", filename)

	var doc any
	if err := yamlv3.Unmarshal(data, &doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unmarshal %s: %w", filename, err)
	}
	if doc == nil {
		return map[string]any{}, nil
	}

	normalized, err := normalize(doc)
	if err != nil {
		return nil, fmt.Errorf("in %s: %w", filename, err)
	}
	m, ok := normalized.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("in %s: top level must be a mapping, got %T", filename, doc)
	}
	logger.Debug("Decoded YAML file.", "file", filename, "keys", len(m))
	return m, nil
}

// normalize rewrites mappings with non-string keys into map[string]any so
// every decoded document has the same shape as an HCL one.
func normalize(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			n, err := normalize(e)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			x[k] = n
		}
		return x, nil
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			key, ok := k.(string)
			if !ok {
				key = fmt.Sprint(k)
			}
			n, err := normalize(e)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out[key] = n
		}
		return out, nil
	case []any:
		for i, e := range x {
			n, err := normalize(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			x[i] = n
		}
		return x, nil
	default:
		return v, nil
	}
}
