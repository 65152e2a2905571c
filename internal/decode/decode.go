// Package decode binds decoded configuration documents (the maps the YAML
// and HCL readers produce) to structs tagged with `mapstructure:"..."`.
//
// Scalars are coerced the way a config author expects: `level: 3` fills a
// string field with "3", and a single value fills a list field. Types whose
// file form is not a plain mapping implement Unmarshaler.
package decode

import (
	"fmt"
	"reflect"

	"github.com/go-viper/mapstructure/v2"
)

// Unmarshaler is implemented by types that decode themselves from a raw
// configuration value.
type Unmarshaler interface {
	UnmarshalValue(v any) error
}

var unmarshalerType = reflect.TypeFor[Unmarshaler]()

type options struct {
	strict bool
}

// Option tunes Into.
type Option func(*options)

// Strict rejects keys that match no field.
func Strict() Option {
	return func(o *options) { o.strict = true }
}

// Into decodes in into out, which must be a non-nil pointer. Fields missing
// from in keep their current value, so out may be pre-filled with defaults.
func Into(in, out any, opts ...Option) error {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.DecodeHookFuncType(unmarshalerHook),
		WeaklyTypedInput: true,
		ErrorUnused:      o.strict,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	return dec.Decode(in)
}

// unmarshalerHook hands the raw value to the target's UnmarshalValue.
// Pointer targets are skipped; the hook runs again for the element.
func unmarshalerHook(from, to reflect.Type, data any) (any, error) {
	if from == to || to.Kind() == reflect.Pointer || !reflect.PointerTo(to).Implements(unmarshalerType) {
		return data, nil
	}
	v := reflect.New(to)
	if err := v.Interface().(Unmarshaler).UnmarshalValue(data); err != nil {
		return nil, err
	}
	return v.Elem().Interface(), nil
}
