package config

import "context"

// Decoder is implemented by format-specific configuration readers.
type Decoder interface {
	// Extensions lists the file extensions the decoder handles, with the
	// leading dot (e.g., ".hcl").
	Extensions() []string

	// DecodeFile reads a file into a generic mapping. Nested mappings are
	// map[string]any, lists are []any, integral numbers are int.
	DecodeFile(ctx context.Context, path string) (map[string]any, error)
}
