// Package hcl reads HCL configuration files into the generic mappings the
// config package consumes.
//
// Attributes become map entries. A block without labels becomes a nested
// mapping under its type. A labeled block is collected under the plural
// of its type and keyed by its label, so
//
//	task "build" {
//	  description = "compile"
//	}
//
// decodes the same way as the YAML mapping tasks.build.description.
package hcl
