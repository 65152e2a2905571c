package app

import (
	"context"

	"github.com/vk/taskgraph/internal/generator"
	"github.com/vk/taskgraph/internal/taskgraph"
)

// Artifact names something the generator can produce.
type Artifact string

const (
	Full        Artifact = "full"
	Target      Artifact = "target"
	TargetGraph Artifact = "target-graph"
	Optimized   Artifact = "optimized"
	Kinds       Artifact = "kinds"
)

var artifacts = map[Artifact]func(*generator.TaskGraphGenerator, context.Context) (*taskgraph.TaskGraph, error){
	Full:        (*generator.TaskGraphGenerator).FullTaskGraph,
	Target:      (*generator.TaskGraphGenerator).TargetTaskSet,
	TargetGraph: (*generator.TaskGraphGenerator).TargetTaskGraph,
	Optimized:   (*generator.TaskGraphGenerator).OptimizedTaskGraph,
}
