package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Walk is a lazy, single-pass traversal of a Graph. Each call to Next
// yields one node whose prerequisites have all been yielded already.
type Walk struct {
	// blockers counts the prerequisites of each node not yet emitted.
	blockers map[string]int
	// unblocks maps a node to the nodes waiting on it.
	unblocks map[string][]string
	// ready holds emittable nodes, kept sorted.
	ready []string
	// remaining is the number of nodes not yet emitted.
	remaining int
	err       error
}

// VisitPostorder walks the graph so that every node comes after all of the
// nodes it depends on.
func (g *Graph) VisitPostorder() *Walk {
	return newWalk(g.Links(), g.ReverseLinks())
}

// VisitPreorder walks the graph so that every node comes after all of the
// nodes that depend on it.
func (g *Graph) VisitPreorder() *Walk {
	return newWalk(g.ReverseLinks(), g.Links())
}

func newWalk(prereqs, waiters map[string][]string) *Walk {
	w := &Walk{
		blockers:  make(map[string]int, len(prereqs)),
		unblocks:  waiters,
		remaining: len(prereqs),
	}
	for n, deps := range prereqs {
		w.blockers[n] = len(deps)
		if len(deps) == 0 {
			w.ready = append(w.ready, n)
		}
	}
	sort.Strings(w.ready)
	return w
}

// Next returns the next node. ok is false once the walk is finished. If the
// remaining nodes form a cycle, Next returns an error wrapping
// ErrCyclicGraph, and keeps returning it on later calls.
func (w *Walk) Next() (node string, ok bool, err error) {
	if w.err != nil {
		return "", false, w.err
	}
	if len(w.ready) == 0 {
		if w.remaining == 0 {
			return "", false, nil
		}
		w.err = w.cycleError()
		return "", false, w.err
	}

	node = w.ready[0]
	w.ready = w.ready[1:]
	w.remaining--
	delete(w.blockers, node)

	for _, waiter := range w.unblocks[node] {
		w.blockers[waiter]--
		if w.blockers[waiter] == 0 {
			w.push(waiter)
		}
	}
	return node, true, nil
}

// Drain consumes the rest of the walk and returns the nodes in order.
func (w *Walk) Drain() ([]string, error) {
	var out []string
	for {
		n, ok, err := w.Next()
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, n)
	}
}

func (w *Walk) push(n string) {
	i := sort.SearchStrings(w.ready, n)
	w.ready = append(w.ready, "")
	copy(w.ready[i+1:], w.ready[i:])
	w.ready[i] = n
}

func (w *Walk) cycleError() error {
	stuck := make([]string, 0, len(w.blockers))
	for n := range w.blockers {
		stuck = append(stuck, n)
	}
	sort.Strings(stuck)
	return fmt.Errorf("%w: no ordering exists for nodes [%s]", ErrCyclicGraph, strings.Join(stuck, ", "))
}
