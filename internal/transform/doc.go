// Package transform implements kind transform pipelines.
//
// A Transform consumes a stream of raw tasks and produces another. A kind's
// configuration lists transform names; they are resolved in a registry and
// applied in declared order, each one wrapping the stream produced by the
// previous. Nothing is pulled until the kind loader drains the final
// stream.
//
// Built-in transforms:
//
//	from-deps  expands each task into one task per kind-dependency task
//	run        validates names and labels and folds the run section into
//	           the task definition
//	task       finalizes attributes and scheduler metadata
package transform
