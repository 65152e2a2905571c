// Package graph provides the immutable directed graph used by every stage of
// task graph generation.
//
// # Model
//
// A Graph is a pair of a node set and an edge set. Nodes are opaque string
// identifiers (kind names, task labels or task ids depending on the stage).
// Each Edge is a (From, To, Name) triple meaning "From depends on To, and
// refers to it by Name".
//
//	  t-2 ──prev──▶ t-1 ──prev──▶ t-0
//	(dependent)              (dependency)
//
// Graphs are values: they are built once by New and never mutated. Every
// operation that narrows a graph (Subgraph, TransitiveClosure) returns a new
// Graph. Two graphs are Equal when they have the same nodes and the same
// edges, regardless of how they were built.
//
// # Traversal
//
// VisitPostorder and VisitPreorder return a Walk, a lazy single-pass
// iterator. Postorder yields a node only after all of its dependencies;
// preorder yields a node only after all of its dependents. Ties are broken
// by node order, so two walks over equal graphs always agree. A cycle is
// reported as ErrCyclicGraph by the Walk once no further node can be
// emitted.
//
// # Thread-Safety
//
// A Graph is safe for concurrent reads. A Walk is not safe for concurrent
// use and cannot be restarted.
package graph
