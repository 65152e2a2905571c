package hcl

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/taskgraph/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Decoder is the HCL implementation of config.Decoder.
type Decoder struct {
	evalCtx *hcl.EvalContext
}

// NewDecoder creates a decoder. Expressions may call a small set of string
// and collection functions and read the process environment as env.NAME.
func NewDecoder() *Decoder {
	return &Decoder{evalCtx: &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": environment()},
		Functions: map[string]function.Function{
			"upper":  stdlib.UpperFunc,
			"lower":  stdlib.LowerFunc,
			"format": stdlib.FormatFunc,
			"join":   stdlib.JoinFunc,
			"concat": stdlib.ConcatFunc,
			"merge":  stdlib.MergeFunc,
		},
	}}
}

// Extensions implements config.Decoder.
func (d *Decoder) Extensions() []string {
	return []string{".hcl"}
}

// DecodeFile implements config.Decoder.
func (d *Decoder) DecodeFile(ctx context.Context, path string) (map[string]any, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return d.Decode(ctx, src, path)
}

// Decode parses src, using filename for diagnostics.
func (d *Decoder) Decode(ctx context.Context, src []byte, filename string) (map[string]any, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Decoding HCL file.", "file", filename)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("unexpected HCL body type %T in %s", file.Body, filename)
	}

	out, err := d.decodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, err)
	}
	logger.Debug("Decoded HCL file.", "file", filename, "keys", len(out))
	return out, nil
}

func (d *Decoder) decodeBody(body *hclsyntax.Body) (map[string]any, error) {
	out := make(map[string]any, len(body.Attributes)+len(body.Blocks))

	for name, attr := range body.Attributes {
		val, diags := attr.Expr.Value(d.evalCtx)
		if diags.HasErrors() {
			return nil, diags
		}
		native, err := ctyToNative(val)
		if err != nil {
			return nil, fmt.Errorf("in attribute '%s': %w", name, err)
		}
		out[name] = native
	}

	for _, block := range body.Blocks {
		inner, err := d.decodeBody(block.Body)
		if err != nil {
			return nil, fmt.Errorf("in block '%s': %w", block.Type, err)
		}
		if err := insertBlock(out, block, inner); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// insertBlock places a decoded block body into its parent mapping.
func insertBlock(parent map[string]any, block *hclsyntax.Block, inner map[string]any) error {
	if len(block.Labels) == 0 {
		if _, exists := parent[block.Type]; exists {
			return fmt.Errorf("%s: duplicate '%s' definition", block.DefRange(), block.Type)
		}
		parent[block.Type] = inner
		return nil
	}

	key := plural(block.Type)
	cur := parent
	for i, label := range block.Labels {
		existing, ok := cur[key]
		if !ok {
			existing = map[string]any{}
			cur[key] = existing
		}
		next, ok := existing.(map[string]any)
		if !ok {
			return fmt.Errorf("%s: '%s' is already set as an attribute", block.DefRange(), key)
		}
		if i == len(block.Labels)-1 {
			if _, dup := next[label]; dup {
				return fmt.Errorf("%s: duplicate %s %q", block.DefRange(), block.Type, label)
			}
			next[label] = inner
			return nil
		}
		cur, key = next, label
	}
	return nil
}

var plurals = map[string]string{
	"repository": "repositories",
	"alias":      "aliases",
}

func plural(word string) string {
	if p, ok := plurals[word]; ok {
		return p
	}
	return word + "s"
}

func environment() cty.Value {
	vars := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		if name, value, ok := strings.Cut(kv, "="); ok && name != "" {
			vars[name] = cty.StringVal(value)
		}
	}
	return cty.ObjectVal(vars)
}
