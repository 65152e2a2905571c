// Package cli builds the taskgraph command tree. It translates flags into
// an app.Config, runs the requested command and maps failures to exit
// codes.
package cli
