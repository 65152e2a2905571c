// Package config defines the typed configuration consumed by task graph
// generation, along with the Decoder interface implemented by the
// format-specific packages (internal/hcl, internal/yaml).
//
// Configuration lives under a root directory:
//
//	<root>/config.{hcl,yml,yaml}           graph configuration
//	<root>/kinds/<name>/kind.{hcl,yml,yaml} one directory per kind
//
// Decoders only turn a file into a generic map[string]any. Everything after
// that (typed conversion, defaults, validation) happens here, so both
// formats behave identically.
package config
