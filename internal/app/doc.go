// Package app wires configuration loading, logging and the task graph
// generator together and renders generated artifacts. It knows nothing
// about the command line; internal/cli drives it.
package app
