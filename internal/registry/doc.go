// Package registry provides the central "glue" between configuration and
// compiled Go code.
//
// Kind configuration refers to loaders, transforms, optimization strategies
// and target task selectors by name (e.g., "default", "run",
// "skip-unless-changed"). A Registry maps those names to the Go values that
// implement them. Names are resolved when configuration is loaded, so a typo
// in a kind file is reported up front with the offending reference instead
// of surfacing halfway through a generation run.
//
// Each consuming package (loader, transform, optimize, target) owns one
// Registry for its own value type and wraps lookup failures in its own
// sentinel error.
package registry
