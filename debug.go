package arbor

import (
	"fmt"
	"log/slog"
)

// globalDebug mirrors the most recently set Scene debug flag. It only governs
// nodes that belong to no scene; a node in a scene follows that scene's mode.
var globalDebug bool

// debugLogger receives debug-mode warnings for detached nodes. Replaced by
// SetDebugMode.
var debugLogger = slog.Default()

// debugFor reports whether tree operations on n run debug checks and where
// their warnings go.
func debugFor(n *Node) (bool, *slog.Logger) {
	if s := n.scene; s != nil {
		return s.debug, s.logger
	}
	return globalDebug, debugLogger
}

func debugEnabled(n *Node) bool {
	on, _ := debugFor(n)
	return on
}

// debugCheckDisposed panics with a descriptive message when a disposed node is
// used in a tree operation. In release mode callers skip this entirely.
func debugCheckDisposed(n *Node, op string) {
	if n.disposed {
		panic(fmt.Sprintf("arbor debug: %s on disposed node %q (ID %s)", op, n.Name, n.ID))
	}
}

// debugCheckTreeDepth warns if tree depth exceeds the threshold.
const debugMaxTreeDepth = 32

func debugCheckTreeDepth(n *Node, logger *slog.Logger) {
	depth := 0
	for p := n; p != nil; p = p.Parent {
		depth++
	}
	if depth > debugMaxTreeDepth {
		logger.Warn("tree depth exceeds threshold",
			"depth", depth, "threshold", debugMaxTreeDepth, "node", n.Name)
	}
}

// debugCheckChildCount warns if a node has more than 1000 children.
const debugMaxChildCount = 1000

func debugCheckChildCount(n *Node, logger *slog.Logger) {
	if len(n.children) > debugMaxChildCount {
		logger.Warn("child count exceeds threshold",
			"node", n.Name, "children", len(n.children), "threshold", debugMaxChildCount)
	}
}

// debugCheckIndex verifies that the flat index matches the set of nodes
// reachable from root and that every parent/child link is mutual. It returns
// a description of the first violation found, or "".
func (s *Scene) debugCheckIndex() string {
	seen := 0
	var problem string
	s.root.Walk(func(n *Node) bool {
		if problem != "" {
			return false
		}
		seen++
		if got := s.nodes[n.ID]; got != n {
			problem = fmt.Sprintf("reachable node %q (%s) missing from index", n.Name, n.ID)
			return false
		}
		for _, c := range n.children {
			if c.Parent != n {
				problem = fmt.Sprintf("child %q of %q has parent %v", c.Name, n.Name, c.Parent)
				return false
			}
		}
		return true
	})
	if problem == "" && seen != len(s.nodes) {
		problem = fmt.Sprintf("index holds %d nodes, %d reachable", len(s.nodes), seen)
	}
	return problem
}
