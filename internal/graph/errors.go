package graph

import "errors"

var (
	// ErrMalformedGraph is returned when an edge or seed references a node
	// that is not a member of the graph.
	ErrMalformedGraph = errors.New("malformed graph")
	// ErrCyclicGraph is returned when a traversal finds a dependency cycle.
	ErrCyclicGraph = errors.New("cyclic graph")
)
