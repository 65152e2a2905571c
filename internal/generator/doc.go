// Package generator builds task graphs in stages.
//
// A TaskGraphGenerator computes, in order and at most once each, the kind
// graph, the full task set, the full task graph, the target task set, the
// target task graph and the optimized task graph. Every query runs the
// pipeline only as far as the requested stage and then serves the cached
// value. A stage that fails poisons the generator: every later query
// returns the same error and no artifact past the failure is exposed.
//
// Each stage runs inside an OpenTelemetry span named generator.<stage> and
// records its duration and task count on the configured meter.
package generator
