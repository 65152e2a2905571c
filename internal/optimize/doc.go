// Package optimize prunes a target task graph.
//
// Optimization runs in three phases. Removal walks the graph from
// dependents to dependencies and drops tasks that nothing kept needs and
// whose strategy says they are unnecessary. Replacement walks from
// dependencies to dependents and substitutes tasks with equivalent ones
// from earlier runs. Finally every remaining task gets a task id, its
// definition's task references are resolved, and the graph is restated
// over task ids.
//
// Each task names its strategy in its optimization field; a task without
// one is never optimized. Strategies are looked up in a registry, so
// repositories can add their own.
package optimize
