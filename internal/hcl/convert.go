package hcl

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// ctyToNative recursively converts a cty.Value to the plain Go values a
// YAML decoder would produce: strings, bools, int for integral numbers,
// float64 otherwise, []any and map[string]any.
func ctyToNative(v cty.Value) (any, error) {
	// A null or unknown value becomes a nil interface{}.
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()

	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			var n int
			if err := gocty.FromCtyValue(v, &n); err == nil {
				return n, nil
			}
		}
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("could not convert cty.Number to float64: %w", err)
		}
		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		slice := make([]any, 0, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			_, val := it.Element()
			nativeVal, err := ctyToNative(val)
			if err != nil {
				return nil, err
			}
			slice = append(slice, nativeVal)
		}
		return slice, nil

	case ty.IsObjectType() || ty.IsMapType():
		goMap := make(map[string]any)
		it := v.ElementIterator()
		for it.Next() {
			key, val := it.Element()
			keyStr := key.AsString()
			nativeVal, err := ctyToNative(val)
			if err != nil {
				return nil, fmt.Errorf("in attribute '%s': %w", keyStr, err)
			}
			goMap[keyStr] = nativeVal
		}
		return goMap, nil

	default:
		return nil, fmt.Errorf("unsupported cty type for conversion: %s", ty.FriendlyName())
	}
}
