// Package task defines the units of work produced by kinds.
//
// A RawTask is the loosely typed shape that flows through a kind's loader
// and transform pipeline. Once the pipeline has finished, each RawTask is
// frozen into a Task. Tasks are never modified afterwards, with one
// exception: the optimization stage works on clones and sets TaskID.
package task
